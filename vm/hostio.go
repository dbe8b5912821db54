package vm

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// ---------------------------------------------------------------------------
// Host I/O surface
// ---------------------------------------------------------------------------

// Output channels understood by the host.
const (
	ChannelStdout = 1
	ChannelStderr = 2
)

// HostIO is the single blocking write primitive natives may call. It may
// write fewer bytes than requested.
type HostIO interface {
	WriteBytes(channel int, buf []byte) (int, error)
}

// StdIO maps channel 1 to Stdout and channel 2 to Stderr.
type StdIO struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewStdIO returns a StdIO bound to the process streams.
func NewStdIO() *StdIO {
	return &StdIO{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (s *StdIO) WriteBytes(channel int, buf []byte) (int, error) {
	switch channel {
	case ChannelStdout:
		return s.Stdout.Write(buf)
	case ChannelStderr:
		return s.Stderr.Write(buf)
	default:
		return 0, fmt.Errorf("stdio: unknown channel %d", channel)
	}
}

// BufferIO collects output per channel in memory. MaxChunk > 0 caps the
// bytes accepted per call, simulating a host that performs short writes.
type BufferIO struct {
	MaxChunk int

	mu    sync.Mutex
	bufs  map[int]*bytes.Buffer
	calls int
}

// NewBufferIO creates an empty BufferIO.
func NewBufferIO() *BufferIO {
	return &BufferIO{bufs: make(map[int]*bytes.Buffer)}
}

func (b *BufferIO) WriteBytes(channel int, buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if b.MaxChunk > 0 && len(buf) > b.MaxChunk {
		buf = buf[:b.MaxChunk]
	}
	out, ok := b.bufs[channel]
	if !ok {
		out = &bytes.Buffer{}
		b.bufs[channel] = out
	}
	return out.Write(buf)
}

// Bytes returns a copy of everything written to channel.
func (b *BufferIO) Bytes(channel int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out, ok := b.bufs[channel]
	if !ok {
		return nil
	}
	return bytes.Clone(out.Bytes())
}

// String returns everything written to channel as a string.
func (b *BufferIO) String(channel int) string {
	return string(b.Bytes(channel))
}

// Calls returns the number of WriteBytes invocations.
func (b *BufferIO) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// ---------------------------------------------------------------------------
// Write policy
// ---------------------------------------------------------------------------

// WritePolicy decides what a native does when the host writes fewer bytes
// than requested.
type WritePolicy uint8

const (
	// WriteBestEffort issues one write and accepts a short count.
	WriteBestEffort WritePolicy = iota
	// WriteRetry keeps writing the remainder until done, an error, or a
	// write that makes no progress.
	WriteRetry
)

func (p WritePolicy) String() string {
	switch p {
	case WriteBestEffort:
		return "best-effort"
	case WriteRetry:
		return "retry"
	default:
		return fmt.Sprintf("WritePolicy(%d)", p)
	}
}

// ParseWritePolicy parses a policy name as used in kettle.toml.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch s {
	case "", "best-effort":
		return WriteBestEffort, nil
	case "retry":
		return WriteRetry, nil
	default:
		return 0, fmt.Errorf("unknown write policy %q", s)
	}
}
