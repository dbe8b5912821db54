package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNop Opcode = 0x00 // no operation
	OpPop Opcode = 0x01 // discard top of stack
	OpDup Opcode = 0x02 // duplicate top of stack
)

// Push Constants
const (
	OpAConstNull Opcode = 0x10 // push null reference
	OpIConst     Opcode = 0x11 // push 32-bit signed integer
	OpLdcStr     Opcode = 0x12 // allocate string from constant pool (16-bit index), push ref
)

// Native Calls
const (
	OpInvokeNative Opcode = 0x30 // invoke native (16-bit native index)
)

// Heap
const (
	OpRelease Opcode = 0x40 // pop ref, release it
)

// Control Flow
const (
	OpGoto    Opcode = 0x60 // jump to absolute offset (16-bit)
	OpReturn  Opcode = 0x70 // return void
	OpIReturn Opcode = 0x71 // pop int, return it
)

// OpcodeInfo describes an opcode's mnemonic and operand width in bytes.
type OpcodeInfo struct {
	Name    string
	Operand int
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:          {"nop", 0},
	OpPop:          {"pop", 0},
	OpDup:          {"dup", 0},
	OpAConstNull:   {"aconst_null", 0},
	OpIConst:       {"iconst", 4},
	OpLdcStr:       {"ldc_str", 2},
	OpInvokeNative: {"invokenative", 2},
	OpRelease:      {"release", 0},
	OpGoto:         {"goto", 2},
	OpReturn:       {"return", 0},
	OpIReturn:      {"ireturn", 0},
}

// GetOpcodeInfo returns the info for op.
func GetOpcodeInfo(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op_%02X", byte(op))
}

// InstructionLength returns the length of the instruction at offset.
func InstructionLength(code []byte, offset int) (int, error) {
	if offset < 0 || offset >= len(code) {
		return 0, fmt.Errorf("offset %d out of range", offset)
	}
	info, ok := opcodeTable[Opcode(code[offset])]
	if !ok {
		return 0, fmt.Errorf("unknown opcode 0x%02X at %04X", code[offset], offset)
	}
	if offset+1+info.Operand > len(code) {
		return 0, fmt.Errorf("truncated %s at %04X", info.Name, offset)
	}
	return 1 + info.Operand, nil
}

// ---------------------------------------------------------------------------
// Operand helpers
// ---------------------------------------------------------------------------

func readUint16(code []byte, pc int) uint16 {
	if pc+2 > len(code) {
		integrityf("decode", "truncated 16-bit operand at %04X", pc)
	}
	return binary.LittleEndian.Uint16(code[pc:])
}

func readInt32(code []byte, pc int) int32 {
	if pc+4 > len(code) {
		integrityf("decode", "truncated 32-bit operand at %04X", pc)
	}
	return int32(binary.LittleEndian.Uint32(code[pc:]))
}

// PutUint16 writes a 16-bit operand at offset.
func PutUint16(code []byte, offset int, v uint16) {
	binary.LittleEndian.PutUint16(code[offset:], v)
}

// AppendUint16 appends a 16-bit operand.
func AppendUint16(code []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(code, v)
}

// AppendInt32 appends a 32-bit operand.
func AppendInt32(code []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(code, uint32(v))
}
