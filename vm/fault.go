package vm

import "fmt"

// ---------------------------------------------------------------------------
// Faults: typed exceptions raised by natives and the interpreter
// ---------------------------------------------------------------------------

// FaultKind identifies the class of a raised fault.
type FaultKind uint8

const (
	AnyFault      FaultKind = iota // handler wildcard; never raised
	NullReference                  // a required object or field reference was null
	OutOfMemory                    // the heap could not satisfy an allocation
	StackOverflow                  // the operand stack bound was exceeded
	IllegalState                   // a native was invoked in an unusable state
)

var faultNames = [...]string{
	AnyFault:      "Fault",
	NullReference: "NullReferenceFault",
	OutOfMemory:   "OutOfMemoryFault",
	StackOverflow: "StackOverflowFault",
	IllegalState:  "IllegalStateFault",
}

func (k FaultKind) String() string {
	if int(k) < len(faultNames) {
		return faultNames[k]
	}
	return fmt.Sprintf("FaultKind(%d)", k)
}

// Catches reports whether a handler declared for k catches a fault of kind other.
func (k FaultKind) Catches(other FaultKind) bool {
	return k == AnyFault || k == other
}

// Fault is a raised VM exception. Natives return it instead of panicking;
// the interpreter turns it into handler unwinding or thread termination.
type Fault struct {
	Kind    FaultKind
	Native  string // signature of the raising native, empty for interpreter faults
	Message string
}

func newFault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	switch {
	case f.Native != "" && f.Message != "":
		return fmt.Sprintf("%s in %s: %s", f.Kind, f.Native, f.Message)
	case f.Native != "":
		return fmt.Sprintf("%s in %s", f.Kind, f.Native)
	case f.Message != "":
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	default:
		return f.Kind.String()
	}
}

// UncaughtFault is returned by Thread.Run when no handler caught a fault.
// It terminates the thread.
type UncaughtFault struct {
	Fault  *Fault
	Method string
	PC     int
}

func (u *UncaughtFault) Error() string {
	return fmt.Sprintf("uncaught %v at %s+%04X", u.Fault, u.Method, u.PC)
}

func (u *UncaughtFault) Unwrap() error {
	return u.Fault
}
