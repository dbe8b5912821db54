package vm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Native signatures
// ---------------------------------------------------------------------------

// Signature describes a native routine's owner, name and typed slot contract.
//
// The textual form follows JVM method descriptors:
//
//	javax/kettle/Kettle.print(Ljava/lang/String;)V
type Signature struct {
	Owner  string
	Name   string
	Args   []SlotKind // in call order; the last argument is on top of the stack
	Return SlotKind
	text   string
}

// String returns the signature text it was parsed from.
func (s Signature) String() string {
	return s.text
}

// Arity returns the number of argument slots.
func (s Signature) Arity() int {
	return len(s.Args)
}

// ParseSignature parses "owner.name(args)ret".
func ParseSignature(text string) (Signature, error) {
	open := strings.IndexByte(text, '(')
	closing := strings.LastIndexByte(text, ')')
	if open < 0 || closing < open {
		return Signature{}, fmt.Errorf("signature %q: missing parameter list", text)
	}
	dot := strings.LastIndexByte(text[:open], '.')
	if dot <= 0 || dot == open-1 {
		return Signature{}, fmt.Errorf("signature %q: missing owner or name", text)
	}

	sig := Signature{
		Owner: text[:dot],
		Name:  text[dot+1 : open],
		text:  text,
	}

	params := text[open+1 : closing]
	for len(params) > 0 {
		kind, n, err := parseDescriptor(params)
		if err != nil {
			return Signature{}, fmt.Errorf("signature %q: %w", text, err)
		}
		if kind == SlotVoid {
			return Signature{}, fmt.Errorf("signature %q: void parameter", text)
		}
		sig.Args = append(sig.Args, kind)
		params = params[n:]
	}

	ret := text[closing+1:]
	if ret == "V" {
		sig.Return = SlotVoid
		return sig, nil
	}
	kind, n, err := parseDescriptor(ret)
	if err != nil {
		return Signature{}, fmt.Errorf("signature %q: return: %w", text, err)
	}
	if n != len(ret) {
		return Signature{}, fmt.Errorf("signature %q: trailing data after return type", text)
	}
	sig.Return = kind
	return sig, nil
}

// parseDescriptor reads one field descriptor and returns its slot kind and
// the number of bytes consumed.
func parseDescriptor(d string) (SlotKind, int, error) {
	if d == "" {
		return 0, 0, fmt.Errorf("empty descriptor")
	}
	switch d[0] {
	case 'I', 'S', 'B', 'C', 'Z':
		return SlotInt, 1, nil
	case 'V':
		return SlotVoid, 1, nil
	case 'J', 'D', 'F':
		return 0, 0, fmt.Errorf("descriptor %q: no operand slot for %c", d, d[0])
	case 'L':
		end := strings.IndexByte(d, ';')
		if end < 0 {
			return 0, 0, fmt.Errorf("descriptor %q: unterminated class name", d)
		}
		return SlotRef, end + 1, nil
	case '[':
		_, n, err := parseArrayElement(d[1:])
		if err != nil {
			return 0, 0, err
		}
		return SlotRef, n + 1, nil
	default:
		return 0, 0, fmt.Errorf("descriptor %q: unknown type %c", d, d[0])
	}
}

// parseArrayElement accepts any element type, including wide primitives,
// since the array itself is a reference.
func parseArrayElement(d string) (SlotKind, int, error) {
	if d != "" && strings.IndexByte("IJDFSBCZ", d[0]) >= 0 {
		return SlotRef, 1, nil
	}
	if d != "" && d[0] == '[' {
		_, n, err := parseArrayElement(d[1:])
		return SlotRef, n + 1, err
	}
	kind, n, err := parseDescriptor(d)
	if err == nil && kind == SlotVoid {
		err = fmt.Errorf("descriptor %q: void array element", d)
	}
	return kind, n, err
}

// ---------------------------------------------------------------------------
// Native table
// ---------------------------------------------------------------------------

// NativeFunc is a host routine callable from bytecode. It pops its arguments
// from ctx.Stack and pushes its result there. A non-nil *Fault aborts the
// call; the interpreter then unwinds.
type NativeFunc func(ctx *Context) *Fault

type nativeEntry struct {
	sig Signature
	fn  NativeFunc
}

// NativeTable maps signatures to routines. Indices are stable once assigned,
// so linked bytecode can refer to natives by index.
type NativeTable struct {
	mu      sync.RWMutex
	entries []nativeEntry
	bySig   map[string]int
}

// NewNativeTable creates an empty table.
func NewNativeTable() *NativeTable {
	return &NativeTable{bySig: make(map[string]int)}
}

// Register adds or replaces the routine for signature and returns its index.
func (t *NativeTable) Register(signature string, fn NativeFunc) (int, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return -1, err
	}
	if fn == nil {
		return -1, fmt.Errorf("native %s: nil routine", signature)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if idx, ok := t.bySig[signature]; ok {
		t.entries[idx] = nativeEntry{sig: sig, fn: fn}
		return idx, nil
	}
	t.entries = append(t.entries, nativeEntry{sig: sig, fn: fn})
	idx := len(t.entries) - 1
	t.bySig[signature] = idx
	return idx, nil
}

// MustRegister is Register for built-in tables; it panics on a bad signature.
func (t *NativeTable) MustRegister(signature string, fn NativeFunc) int {
	idx, err := t.Register(signature, fn)
	if err != nil {
		panic(err)
	}
	return idx
}

// Lookup returns the index registered for signature.
func (t *NativeTable) Lookup(signature string) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.bySig[signature]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrNativeNotFound, signature)
	}
	return idx, nil
}

// Signature returns the parsed signature at index.
func (t *NativeTable) Signature(index int) (Signature, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < 0 || index >= len(t.entries) {
		return Signature{}, false
	}
	return t.entries[index].sig, true
}

// Len returns the number of registered natives.
func (t *NativeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Signatures returns every registered signature, sorted.
func (t *NativeTable) Signatures() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.bySig))
	for s := range t.bySig {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Invoke runs the native at index against ctx.
//
// Before the call the top Arity slots must match the declared argument
// kinds; after a successful call the stack must have lost exactly those
// slots and gained one slot of the declared return kind. Violations are
// integrity errors. A fault is returned as-is: whatever the routine already
// did to the stack stays, and the interpreter discards it while unwinding.
func (t *NativeTable) Invoke(ctx *Context, index int) *Fault {
	t.mu.RLock()
	if index < 0 || index >= len(t.entries) {
		t.mu.RUnlock()
		integrityf("invokenative", "native index %d out of range (%d registered)", index, len(t.entries))
	}
	e := t.entries[index]
	t.mu.RUnlock()

	sig := e.sig
	stack := ctx.Stack
	arity := sig.Arity()
	if stack.Depth() < arity {
		integrityf("invokenative", "%s: needs %d argument slots, stack has %d", sig, arity, stack.Depth())
	}
	for i, want := range sig.Args {
		got := stack.Peek(arity - 1 - i).Kind
		if got != want {
			integrityf("invokenative", "%s: argument %d is %s, want %s", sig, i, got, want)
		}
	}
	if sig.Return != SlotVoid && stack.Room()+arity < 1 {
		return newFault(StackOverflow, "no room for %s result", sig)
	}

	want := stack.Depth() - arity
	if sig.Return != SlotVoid {
		want++
	}

	prev := ctx.native
	ctx.native = sig.text
	defer func() { ctx.native = prev }()
	fault := e.fn(ctx)

	if fault != nil {
		if fault.Native == "" {
			fault.Native = sig.text
		}
		return fault
	}
	if stack.Depth() != want {
		integrityf("invokenative", "%s: stack depth %d after call, want %d", sig, stack.Depth(), want)
	}
	if sig.Return != SlotVoid && stack.Peek(0).Kind != sig.Return {
		integrityf("invokenative", "%s: pushed %s, want %s", sig, stack.Peek(0).Kind, sig.Return)
	}
	return nil
}
