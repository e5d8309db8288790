package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Tape arithmetic (0x01-0x0F)
	// ========================================================================

	OpAdd  Opcode = 0x01 // Add to current cell, wrapping: OpAdd <amount:u8>
	OpMove Opcode = 0x02 // Shift the cursor: OpMove <delta:i16>
	OpSet  Opcode = 0x03 // Store into current cell: OpSet <value:u8>

	// ========================================================================
	// Loop composites (0x10-0x1F)
	// ========================================================================

	OpScan   Opcode = 0x10 // Shift cursor by stride until current cell is zero: OpScan <stride:i16>
	OpMulAdd Opcode = 0x11 // Add current cell times factor into another cell: OpMulAdd <offset:i16> <factor:u8>

	// ========================================================================
	// I/O (0x20-0x2F)
	// ========================================================================

	OpOutput Opcode = 0x20 // Write current cell to the byte sink
	OpInput  Opcode = 0x21 // Read one byte from the byte source into current cell

	// ========================================================================
	// Control flow (0x30-0x3F)
	// ========================================================================

	OpJumpZero    Opcode = 0x30 // Jump if current cell is zero: OpJumpZero <offset:i16>
	OpJumpNotZero Opcode = 0x31 // Jump if current cell is nonzero: OpJumpNotZero <offset:i16>

	// ========================================================================
	// Halt (0xF0-0xFF)
	// ========================================================================

	OpHalt Opcode = 0xF0 // Stop execution
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata. 0x00 is deliberately
// absent: a zeroed byte is never a valid instruction.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Tape arithmetic
	OpAdd:  {"ADD", 1},
	OpMove: {"MOVE", 2},
	OpSet:  {"SET", 1},

	// Loop composites
	OpScan:   {"SCAN", 2},
	OpMulAdd: {"MUL_ADD", 3},

	// I/O
	OpOutput: {"OUTPUT", 0},
	OpInput:  {"INPUT", 0},

	// Control flow
	OpJumpZero:    {"JUMP_ZERO", 2},
	OpJumpNotZero: {"JUMP_NOT_ZERO", 2},

	// Halt
	OpHalt: {"HALT", 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), OperandLen: 0}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJumpZero && op <= OpJumpNotZero
}

// IsIO returns true if this opcode touches the byte source or sink.
func (op Opcode) IsIO() bool {
	return op >= OpOutput && op <= OpInput
}

// WritesCell returns true if this opcode can modify tape contents.
func (op Opcode) WritesCell() bool {
	switch op {
	case OpAdd, OpSet, OpMulAdd, OpInput:
		return true
	}
	return false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
