package vm

// ---------------------------------------------------------------------------
// OperandStack: per-thread typed value stack
// ---------------------------------------------------------------------------

// OperandStack is a statically bounded stack of typed slots.
//
// Pops check the slot kind against what the caller expects. A mismatch or an
// underflow is an integrity violation and panics with *IntegrityError.
type OperandStack struct {
	slots []Slot
	sp    int // next free slot
}

// NewOperandStack creates a stack holding at most depth slots.
func NewOperandStack(depth int) *OperandStack {
	if depth < 1 {
		depth = 1
	}
	return &OperandStack{slots: make([]Slot, depth)}
}

// Depth returns the number of slots currently on the stack.
func (s *OperandStack) Depth() int {
	return s.sp
}

// Cap returns the maximum number of slots.
func (s *OperandStack) Cap() int {
	return len(s.slots)
}

// Room returns how many more slots can be pushed.
func (s *OperandStack) Room() int {
	return len(s.slots) - s.sp
}

// Reset discards every slot.
func (s *OperandStack) Reset() {
	for i := 0; i < s.sp; i++ {
		s.slots[i] = Slot{}
	}
	s.sp = 0
}

func (s *OperandStack) push(v Slot) {
	if s.sp >= len(s.slots) {
		integrityf("push", "operand stack overflow (cap=%d)", len(s.slots))
	}
	s.slots[s.sp] = v
	s.sp++
}

func (s *OperandStack) pop(want SlotKind, op string) Slot {
	if s.sp <= 0 {
		integrityf(op, "operand stack underflow")
	}
	v := s.slots[s.sp-1]
	if want != SlotVoid && v.Kind != want {
		integrityf(op, "slot kind mismatch: want %s, got %s", want, v.Kind)
	}
	s.sp--
	s.slots[s.sp] = Slot{}
	return v
}

// PushInt pushes an Int slot.
func (s *OperandStack) PushInt(v int32) {
	s.push(IntSlot(v))
}

// PushRef pushes a Ref slot.
func (s *OperandStack) PushRef(r Ref) {
	s.push(RefSlot(r))
}

// PopInt pops a slot that must be an Int.
func (s *OperandStack) PopInt() int32 {
	return s.pop(SlotInt, "popInt").Int
}

// PopRef pops a slot that must be a Ref.
func (s *OperandStack) PopRef() Ref {
	return s.pop(SlotRef, "popRef").Ref
}

// Pop removes the top slot regardless of its kind.
func (s *OperandStack) Pop() Slot {
	return s.pop(SlotVoid, "pop")
}

// Peek returns the slot n positions below the top (0 is the top).
func (s *OperandStack) Peek(n int) Slot {
	if n < 0 || n >= s.sp {
		integrityf("peek", "index %d out of range (depth=%d)", n, s.sp)
	}
	return s.slots[s.sp-1-n]
}

// Slots returns a copy of the live slots, bottom first.
func (s *OperandStack) Slots() []Slot {
	out := make([]Slot, s.sp)
	copy(out, s.slots[:s.sp])
	return out
}
