package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of m. p and natives are
// optional and only used to annotate operands.
func (m *Method) Disassemble(p *Program, natives *NativeTable) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === %s ===\n", m.Name))
	sb.WriteString(fmt.Sprintf("; MaxStack: %d\n", m.MaxStack))
	if len(m.Handlers) > 0 {
		sb.WriteString("; Handlers:\n")
		for _, h := range m.Handlers {
			sb.WriteString(fmt.Sprintf(";   [%04X, %04X) -> %04X  %s\n", h.Start, h.End, h.Target, h.Kind))
		}
	}
	sb.WriteString("; Code:\n")

	offset := 0
	for offset < len(m.Code) {
		n, err := InstructionLength(m.Code, offset)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%04X  <%s>\n", offset, err))
			break
		}
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, m.disassembleInstruction(offset, p, natives)))
		offset += n
	}
	return sb.String()
}

func (m *Method) disassembleInstruction(offset int, p *Program, natives *NativeTable) string {
	op := Opcode(m.Code[offset])
	switch op {
	case OpIConst:
		return fmt.Sprintf("%-14s %d", op, readInt32(m.Code, offset+1))

	case OpLdcStr:
		idx := int(readUint16(m.Code, offset+1))
		if p != nil && idx < len(p.Strings) {
			s := p.Strings[idx]
			if len(s) > 40 {
				s = s[:37] + "..."
			}
			return fmt.Sprintf("%-14s %d ; %q", op, idx, s)
		}
		return fmt.Sprintf("%-14s %d", op, idx)

	case OpInvokeNative:
		idx := int(readUint16(m.Code, offset+1))
		if natives != nil {
			if sig, ok := natives.Signature(idx); ok {
				return fmt.Sprintf("%-14s %d ; %s", op, idx, sig)
			}
		}
		return fmt.Sprintf("%-14s %d", op, idx)

	case OpGoto:
		return fmt.Sprintf("%-14s %04X", op, readUint16(m.Code, offset+1))

	default:
		return op.String()
	}
}
