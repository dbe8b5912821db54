package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var vmLog = commonlog.GetLogger("kettle.vm")

// ---------------------------------------------------------------------------
// Methods and programs
// ---------------------------------------------------------------------------

// Handler catches faults of Kind raised by instructions in [Start, End).
type Handler struct {
	Start  int
	End    int
	Target int
	Kind   FaultKind
}

// Method is a linked bytecode method. invokenative operands are indices
// into the VM's NativeTable.
type Method struct {
	Name     string
	MaxStack int
	Code     []byte
	Handlers []Handler
}

// handlerFor returns the first handler covering pc that catches kind.
func (m *Method) handlerFor(pc int, kind FaultKind) (Handler, bool) {
	for _, h := range m.Handlers {
		if pc >= h.Start && pc < h.End && h.Kind.Catches(kind) {
			return h, true
		}
	}
	return Handler{}, false
}

// Program is a linked module: its methods plus the string constant pool.
type Program struct {
	Name    string
	Strings []string
	Methods []*Method
}

// Method returns the method called name, or nil.
func (p *Program) Method(name string) *Method {
	for _, m := range p.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Thread: one interpreter activation over its own operand stack
// ---------------------------------------------------------------------------

// Thread executes methods for a VM. It owns its operand stack; the heap,
// native table and host I/O are shared with the VM.
type Thread struct {
	vm    *VM
	stack *OperandStack
	ctx   *Context
}

// Stack returns the thread's operand stack.
func (t *Thread) Stack() *OperandStack {
	return t.stack
}

// Context returns the native-call context bound to this thread.
func (t *Thread) Context() *Context {
	return t.ctx
}

// Run executes the method called entry until it returns. A fault that no
// handler catches terminates the thread and is returned as *UncaughtFault.
// Integrity violations are returned as *IntegrityError.
func (t *Thread) Run(p *Program, entry string) (result Slot, err error) {
	m := p.Method(entry)
	if m == nil {
		return Slot{}, fmt.Errorf("program %s: no method %q", p.Name, entry)
	}
	if m.MaxStack > t.stack.Cap() {
		return Slot{}, fmt.Errorf("method %s needs %d stack slots, thread has %d",
			m.Name, m.MaxStack, t.stack.Cap())
	}

	defer recoverIntegrity(&err)
	t.stack.Reset()
	return t.run(p, m)
}

func (t *Thread) push(v Slot) *Fault {
	if t.stack.Room() == 0 {
		return newFault(StackOverflow, "operand stack full (%d slots)", t.stack.Cap())
	}
	t.stack.push(v)
	return nil
}

// discardStack empties the operand stack, releasing each distinct reference
// left on it once. Handles the program already freed are skipped.
func (t *Thread) discardStack() {
	seen := make(map[Ref]bool)
	for _, s := range t.stack.Slots() {
		if s.Kind != SlotRef || s.Ref.IsNull() || seen[s.Ref] {
			continue
		}
		seen[s.Ref] = true
		t.vm.Heap.releaseLive(s.Ref)
	}
	t.stack.Reset()
}

func (t *Thread) run(p *Program, m *Method) (Slot, error) {
	code := m.Code
	heap := t.vm.Heap
	pc := 0

	for {
		if pc >= len(code) {
			// Implicit void return at end of code
			return Slot{Kind: SlotVoid}, nil
		}

		start := pc
		op := Opcode(code[pc])
		pc++
		if t.vm.Trace {
			vmLog.Debugf("%s+%04X %s depth=%d", m.Name, start, op, t.stack.Depth())
		}

		var fault *Fault
		switch op {
		case OpNop:
			// Do nothing

		case OpPop:
			t.stack.Pop()

		case OpDup:
			fault = t.push(t.stack.Peek(0))

		case OpAConstNull:
			fault = t.push(RefSlot(NullRef))

		case OpIConst:
			v := readInt32(code, pc)
			pc += 4
			fault = t.push(IntSlot(v))

		case OpLdcStr:
			idx := int(readUint16(code, pc))
			pc += 2
			if idx >= len(p.Strings) {
				integrityf("ldc_str", "string index %d out of range (%d constants)", idx, len(p.Strings))
			}
			if t.stack.Room() == 0 {
				fault = newFault(StackOverflow, "operand stack full (%d slots)", t.stack.Cap())
				break
			}
			var ref Ref
			if ref, fault = heap.NewString(p.Strings[idx]); fault == nil {
				t.stack.PushRef(ref)
			}

		case OpInvokeNative:
			idx := int(readUint16(code, pc))
			pc += 2
			fault = t.vm.Natives.Invoke(t.ctx, idx)

		case OpRelease:
			heap.Release(t.stack.PopRef())

		case OpGoto:
			target := int(readUint16(code, pc))
			if target > len(code) {
				integrityf("goto", "target %04X outside method (len=%d)", target, len(code))
			}
			pc = target

		case OpReturn:
			return Slot{Kind: SlotVoid}, nil

		case OpIReturn:
			return IntSlot(t.stack.PopInt()), nil

		default:
			integrityf("decode", "unknown opcode 0x%02X at %s+%04X", byte(op), m.Name, start)
		}

		if fault == nil {
			continue
		}

		h, ok := m.handlerFor(start, fault.Kind)
		if !ok {
			vmLog.Infof("thread terminated: uncaught %s at %s+%04X", fault, m.Name, start)
			return Slot{}, &UncaughtFault{Fault: fault, Method: m.Name, PC: start}
		}

		t.discardStack()
		ref, allocFault := heap.allocFault(fault)
		if allocFault != nil {
			return Slot{}, &UncaughtFault{Fault: allocFault, Method: m.Name, PC: start}
		}
		t.stack.PushRef(ref)
		vmLog.Debugf("caught %s at %s+%04X, handler %04X", fault, m.Name, start, h.Target)
		pc = h.Target
	}
}
