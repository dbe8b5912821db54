// Package transcript records host writes made by natives into SQLite.
//
// A Recorder wraps any vm.HostIO. Each WriteBytes call is forwarded to the
// wrapped host first; the request, the count actually written and the bytes
// accepted are then stored as one row keyed by session.
package transcript

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/kettle/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("kettle.transcript")

// ErrClosed is returned by queries on a closed Recorder.
var ErrClosed = errors.New("transcript closed")

const schema = `CREATE TABLE IF NOT EXISTS writes (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	session   TEXT NOT NULL,
	channel   INTEGER NOT NULL,
	requested INTEGER NOT NULL,
	written   INTEGER NOT NULL,
	error     TEXT NOT NULL DEFAULT '',
	data      BLOB NOT NULL,
	at        INTEGER NOT NULL
)`

// Entry is one recorded write.
type Entry struct {
	Seq       int64
	Session   uuid.UUID
	Channel   int
	Requested int
	Written   int
	Error     string
	Data      []byte
	At        time.Time
}

// Recorder is a vm.HostIO decorator that logs every write.
type Recorder struct {
	db      *sql.DB
	path    string
	session uuid.UUID
	next    vm.HostIO
	mu      sync.Mutex
	closed  bool
}

// Open opens (creating if needed) the transcript database at path. Writes
// are forwarded to next and recorded under session.
func Open(path string, session uuid.UUID, next vm.HostIO) (*Recorder, error) {
	if next == nil {
		return nil, fmt.Errorf("transcript: nil host")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating transcript dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("recording session %s to %s", session, path)
	return &Recorder{db: db, path: path, session: session, next: next}, nil
}

// Session returns the session this recorder writes under.
func (r *Recorder) Session() uuid.UUID {
	return r.session
}

// Path returns the database path.
func (r *Recorder) Path() string {
	return r.path
}

// WriteBytes forwards to the wrapped host and records the outcome. A failed
// insert is logged and never changes what the caller sees.
func (r *Recorder) WriteBytes(channel int, buf []byte) (int, error) {
	n, err := r.next.WriteBytes(channel, buf)

	accepted := n
	if accepted < 0 {
		accepted = 0
	}
	if accepted > len(buf) {
		accepted = len(buf)
	}
	errText := ""
	if err != nil {
		errText = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		log.Warningf("write on channel %d after close not recorded", channel)
		return n, err
	}
	_, dbErr := r.db.Exec(
		`INSERT INTO writes (session, channel, requested, written, error, data, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.session.String(), channel, len(buf), n, errText, buf[:accepted], time.Now().UnixNano(),
	)
	if dbErr != nil {
		log.Errorf("recording write: %s", dbErr.Error())
	}
	return n, err
}

// Entries returns the writes recorded for session, oldest first.
func (r *Recorder) Entries(session uuid.UUID) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	rows, err := r.db.Query(
		`SELECT seq, session, channel, requested, written, error, data, at
		 FROM writes WHERE session = ? ORDER BY seq`,
		session.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying writes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e   Entry
			sid string
			at  int64
		)
		if err := rows.Scan(&e.Seq, &sid, &e.Channel, &e.Requested, &e.Written, &e.Error, &e.Data, &at); err != nil {
			return nil, fmt.Errorf("scanning write: %w", err)
		}
		if e.Session, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("bad session %q: %w", sid, err)
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Output concatenates the bytes written to channel during session.
func (r *Recorder) Output(session uuid.UUID, channel int) ([]byte, error) {
	entries, err := r.Entries(session)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, e := range entries {
		if e.Channel == channel {
			out = append(out, e.Data...)
		}
	}
	return out, nil
}

// Sessions lists every session in the database, in first-write order.
func (r *Recorder) Sessions() ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	rows, err := r.db.Query(`SELECT session FROM writes GROUP BY session ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("bad session %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}
