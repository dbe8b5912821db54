package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var nativeLog = commonlog.GetLogger("kettle.native")

// Context is the explicit execution context handed to every native call.
// It carries the calling thread's operand stack plus the shared heap and
// host I/O, so natives never reach for global state.
type Context struct {
	Heap   *Heap
	Stack  *OperandStack
	IO     HostIO
	Policy WritePolicy

	native string // signature of the native being invoked
}

// NewContext builds a context over the given collaborators.
func NewContext(heap *Heap, stack *OperandStack, io HostIO, policy WritePolicy) *Context {
	return &Context{Heap: heap, Stack: stack, IO: io, Policy: policy}
}

// Native returns the signature of the routine currently executing.
func (c *Context) Native() string {
	return c.native
}

// Raise creates a fault of the given kind attributed to the running native.
// Natives must return its result immediately and perform no further stack
// or heap effects.
func (c *Context) Raise(kind FaultKind, format string, args ...any) *Fault {
	f := &Fault{Kind: kind, Native: c.native, Message: fmt.Sprintf(format, args...)}
	nativeLog.Debugf("raise %s", f)
	return f
}

// Write sends buf to channel following the context's write policy and
// returns the number of bytes the host accepted. Host errors and short
// writes are logged, never raised.
func (c *Context) Write(channel int, buf []byte) int {
	total := 0
	for total < len(buf) {
		n, err := c.IO.WriteBytes(channel, buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			nativeLog.Warningf("%s: write to channel %d failed after %d/%d bytes: %s",
				c.native, channel, total, len(buf), err)
			return total
		}
		if c.Policy != WriteRetry || n <= 0 {
			break
		}
	}
	if total < len(buf) {
		nativeLog.Warningf("%s: short write to channel %d: %d/%d bytes",
			c.native, channel, total, len(buf))
	}
	return total
}
