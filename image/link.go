package image

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/kettle/vm"
)

// Link resolves the image's native imports against natives and returns a
// runnable program. invokenative operands are rewritten from import indices
// to table indices. Link also checks operands a verifier would: constant and
// import indices, jump targets and handler ranges.
func Link(img *Image, natives *vm.NativeTable) (*vm.Program, error) {
	imports := make([]uint16, len(img.Natives))
	for i, sig := range img.Natives {
		idx, err := natives.Lookup(sig)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", img.Name, err)
		}
		if idx > math.MaxUint16 {
			return nil, fmt.Errorf("link %s: native %s has index %d beyond operand range", img.Name, sig, idx)
		}
		imports[i] = uint16(idx)
	}

	p := &vm.Program{Name: img.Name, Strings: img.Strings}
	seen := make(map[string]bool, len(img.Methods))
	for _, m := range img.Methods {
		if seen[m.Name] {
			return nil, fmt.Errorf("link %s: duplicate method %q", img.Name, m.Name)
		}
		seen[m.Name] = true

		linked, err := linkMethod(img, m, imports)
		if err != nil {
			return nil, fmt.Errorf("link %s.%s: %w", img.Name, m.Name, err)
		}
		p.Methods = append(p.Methods, linked)
	}
	if img.Entry != "" && !seen[img.Entry] {
		return nil, fmt.Errorf("link %s: entry method %q not defined", img.Name, img.Entry)
	}
	return p, nil
}

func linkMethod(img *Image, m Method, imports []uint16) (*vm.Method, error) {
	code := make([]byte, len(m.Code))
	copy(code, m.Code)

	starts := make(map[int]bool)
	for pc := 0; pc < len(code); {
		n, err := vm.InstructionLength(code, pc)
		if err != nil {
			return nil, err
		}
		starts[pc] = true

		switch vm.Opcode(code[pc]) {
		case vm.OpInvokeNative:
			local := int(binary.LittleEndian.Uint16(code[pc+1:]))
			if local >= len(imports) {
				return nil, fmt.Errorf("invokenative at %04X: import %d out of range (%d imports)", pc, local, len(imports))
			}
			vm.PutUint16(code, pc+1, imports[local])
		case vm.OpLdcStr:
			idx := int(binary.LittleEndian.Uint16(code[pc+1:]))
			if idx >= len(img.Strings) {
				return nil, fmt.Errorf("ldc_str at %04X: string %d out of range (%d strings)", pc, idx, len(img.Strings))
			}
		}
		pc += n
	}
	starts[len(code)] = true

	// Jump targets must land on instruction boundaries.
	for pc := 0; pc < len(code); {
		n, _ := vm.InstructionLength(code, pc)
		if vm.Opcode(code[pc]) == vm.OpGoto {
			target := int(binary.LittleEndian.Uint16(code[pc+1:]))
			if !starts[target] {
				return nil, fmt.Errorf("goto at %04X: target %04X is not an instruction", pc, target)
			}
		}
		pc += n
	}

	handlers := make([]vm.Handler, 0, len(m.Handlers))
	for i, h := range m.Handlers {
		if h.Start < 0 || h.Start >= h.End || h.End > len(code) || !starts[h.Start] || !starts[h.End] {
			return nil, fmt.Errorf("handler %d: bad range [%04X, %04X)", i, h.Start, h.End)
		}
		if h.Target >= len(code) || !starts[h.Target] {
			return nil, fmt.Errorf("handler %d: bad target %04X", i, h.Target)
		}
		handlers = append(handlers, vm.Handler{Start: h.Start, End: h.End, Target: h.Target, Kind: h.Kind})
	}

	return &vm.Method{
		Name:     m.Name,
		MaxStack: m.MaxStack,
		Code:     code,
		Handlers: handlers,
	}, nil
}
