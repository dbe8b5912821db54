package vm

import (
	"fmt"
	"math"
)

// SlotKind identifies the type carried by an operand stack slot.
type SlotKind uint8

const (
	SlotVoid SlotKind = iota // no value; only meaningful as a native return kind
	SlotInt                  // 32-bit signed integer
	SlotRef                  // heap reference, possibly null
)

// String returns the descriptor-style name of the kind.
func (k SlotKind) String() string {
	switch k {
	case SlotVoid:
		return "void"
	case SlotInt:
		return "int"
	case SlotRef:
		return "ref"
	default:
		return fmt.Sprintf("SlotKind(%d)", k)
	}
}

// Ref is an opaque handle into the heap.
//
// Encoding: the upper 32 bits hold (entry index + 1) and the low 32 bits hold
// the entry generation. The zero Ref is null; it never names an object.
type Ref uint64

// NullRef is the null reference.
const NullRef Ref = 0

// maxHeapEntries bounds the number of entries addressable by a Ref.
const maxHeapEntries = 1<<31 - 1

// maxGeneration is the last generation an entry can carry. An entry freed
// at this generation is retired instead of reused.
const maxGeneration = math.MaxUint32

func makeRef(index int, gen uint32) Ref {
	return Ref(uint64(index+1)<<32 | uint64(gen))
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == NullRef
}

func (r Ref) index() int {
	return int(uint64(r)>>32) - 1
}

func (r Ref) generation() uint32 {
	return uint32(r)
}

// String formats the handle for logs and disassembly.
func (r Ref) String() string {
	if r.IsNull() {
		return "null"
	}
	return fmt.Sprintf("@%d.%d", r.index(), r.generation())
}

// Slot is one entry of the operand stack: a tagged union of Int and Ref.
type Slot struct {
	Kind SlotKind
	Int  int32
	Ref  Ref
}

// IntSlot wraps an integer.
func IntSlot(v int32) Slot {
	return Slot{Kind: SlotInt, Int: v}
}

// RefSlot wraps a reference.
func RefSlot(r Ref) Slot {
	return Slot{Kind: SlotRef, Ref: r}
}

// String formats the slot for traces.
func (s Slot) String() string {
	switch s.Kind {
	case SlotInt:
		return fmt.Sprintf("int %d", s.Int)
	case SlotRef:
		return "ref " + s.Ref.String()
	default:
		return "void"
	}
}
