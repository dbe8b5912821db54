package vm

import (
	"errors"
	"fmt"
)

// ErrNativeNotFound is returned when a native signature has no registered routine.
var ErrNativeNotFound = errors.New("native not found")

// IntegrityError reports a broken VM invariant: a stack type mismatch, a
// stale handle, or malformed bytecode. These are bugs in the loader or in a
// native routine, never recoverable VM faults. They are raised with panic
// and recovered once at the thread boundary.
type IntegrityError struct {
	Op  string
	Msg string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("vm integrity: %s: %s", e.Op, e.Msg)
}

func integrityf(op, format string, args ...any) {
	panic(&IntegrityError{Op: op, Msg: fmt.Sprintf(format, args...)})
}

// recoverIntegrity converts a recovered IntegrityError into err and re-panics
// anything else.
func recoverIntegrity(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*IntegrityError); ok {
		*err = ie
		return
	}
	panic(r)
}
