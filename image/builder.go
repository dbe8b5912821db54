package image

import (
	"github.com/chazu/kettle/vm"
)

// Builder assembles an Image in memory. Native imports and string constants
// are deduplicated as they are referenced.
type Builder struct {
	name     string
	entry    string
	natives  []string
	strings  []string
	nativeIx map[string]int
	stringIx map[string]int
	methods  []*MethodBuilder
}

// NewBuilder starts an image called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:     name,
		nativeIx: make(map[string]int),
		stringIx: make(map[string]int),
	}
}

// Entry sets the method run by default.
func (b *Builder) Entry(name string) *Builder {
	b.entry = name
	return b
}

// Method starts a new method.
func (b *Builder) Method(name string, maxStack int) *MethodBuilder {
	mb := &MethodBuilder{b: b, m: Method{Name: name, MaxStack: maxStack}}
	b.methods = append(b.methods, mb)
	return mb
}

func (b *Builder) native(sig string) uint16 {
	if idx, ok := b.nativeIx[sig]; ok {
		return uint16(idx)
	}
	b.natives = append(b.natives, sig)
	b.nativeIx[sig] = len(b.natives) - 1
	return uint16(len(b.natives) - 1)
}

func (b *Builder) str(s string) uint16 {
	if idx, ok := b.stringIx[s]; ok {
		return uint16(idx)
	}
	b.strings = append(b.strings, s)
	b.stringIx[s] = len(b.strings) - 1
	return uint16(len(b.strings) - 1)
}

// Build returns the finished image.
func (b *Builder) Build() *Image {
	img := &Image{
		Magic:   Magic,
		Version: Version,
		Name:    b.name,
		Entry:   b.entry,
		Natives: append([]string(nil), b.natives...),
		Strings: append([]string(nil), b.strings...),
	}
	for _, mb := range b.methods {
		m := mb.m
		m.Code = append([]byte(nil), mb.m.Code...)
		m.Handlers = append([]Handler(nil), mb.m.Handlers...)
		img.Methods = append(img.Methods, m)
	}
	return img
}

// MethodBuilder emits bytecode for one method.
type MethodBuilder struct {
	b *Builder
	m Method
}

// Offset returns the offset of the next instruction.
func (mb *MethodBuilder) Offset() int {
	return len(mb.m.Code)
}

func (mb *MethodBuilder) emit(op vm.Opcode) *MethodBuilder {
	mb.m.Code = append(mb.m.Code, byte(op))
	return mb
}

func (mb *MethodBuilder) emit16(op vm.Opcode, v uint16) *MethodBuilder {
	mb.m.Code = vm.AppendUint16(append(mb.m.Code, byte(op)), v)
	return mb
}

func (mb *MethodBuilder) Nop() *MethodBuilder { return mb.emit(vm.OpNop) }
func (mb *MethodBuilder) Pop() *MethodBuilder { return mb.emit(vm.OpPop) }
func (mb *MethodBuilder) Dup() *MethodBuilder { return mb.emit(vm.OpDup) }
func (mb *MethodBuilder) AConstNull() *MethodBuilder { return mb.emit(vm.OpAConstNull) }
func (mb *MethodBuilder) Release() *MethodBuilder { return mb.emit(vm.OpRelease) }
func (mb *MethodBuilder) Return() *MethodBuilder { return mb.emit(vm.OpReturn) }
func (mb *MethodBuilder) IReturn() *MethodBuilder { return mb.emit(vm.OpIReturn) }

// IConst pushes an integer constant.
func (mb *MethodBuilder) IConst(v int32) *MethodBuilder {
	mb.m.Code = vm.AppendInt32(append(mb.m.Code, byte(vm.OpIConst)), v)
	return mb
}

// LdcString pushes a fresh string holding s.
func (mb *MethodBuilder) LdcString(s string) *MethodBuilder {
	return mb.emit16(vm.OpLdcStr, mb.b.str(s))
}

// InvokeNative calls the native with the given signature, importing it.
func (mb *MethodBuilder) InvokeNative(sig string) *MethodBuilder {
	return mb.emit16(vm.OpInvokeNative, mb.b.native(sig))
}

// GotoOffset jumps to a known offset.
func (mb *MethodBuilder) GotoOffset(target int) *MethodBuilder {
	return mb.emit16(vm.OpGoto, uint16(target))
}

// Goto emits a forward jump and returns the operand position to pass to
// PatchHere once the target is known.
func (mb *MethodBuilder) Goto() int {
	mb.emit16(vm.OpGoto, 0)
	return len(mb.m.Code) - 2
}

// PatchHere points the jump operand at pos to the current offset.
func (mb *MethodBuilder) PatchHere(pos int) *MethodBuilder {
	vm.PutUint16(mb.m.Code, pos, uint16(len(mb.m.Code)))
	return mb
}

// Handler adds an exception table entry.
func (mb *MethodBuilder) Handler(start, end, target int, kind vm.FaultKind) *MethodBuilder {
	mb.m.Handlers = append(mb.m.Handlers, Handler{Start: start, End: end, Target: target, Kind: kind})
	return mb
}
