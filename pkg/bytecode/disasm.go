package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable bytecode listing with a name header.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Brainfuck Bytecode v%d\n", c.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", c.Flags))
	if c.Flags&ChunkFlagOptimized != 0 {
		sb.WriteString(" [OPTIMIZED]")
	}
	if c.Flags&ChunkFlagDebug != 0 {
		sb.WriteString(" [DEBUG]")
	}
	sb.WriteString("\n")

	if len(c.SourceMap) > 0 {
		sb.WriteString(fmt.Sprintf("; Source map: %d entries\n", len(c.SourceMap)))
	}

	sb.WriteString("\n")

	// Code section
	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)

		// Add source location if available
		if c.Flags&ChunkFlagDebug != 0 {
			if srcLine, srcCol := c.GetSourceLocation(uint32(offset)); srcLine > 0 {
				sb.WriteString(fmt.Sprintf("%04X  %-30s ; line %d:%d\n", offset, line, srcLine, srcCol))
			} else {
				sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
			}
		} else {
			sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		}

		offset += instrLen
	}

	return sb.String()
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}

	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)

	switch op {
	// Tape arithmetic
	case OpAdd:
		// The operand wraps modulo 256, so show the signed reading
		amount := int8(c.Code[offset+1])
		return fmt.Sprintf("ADD %d", amount), 2

	case OpMove:
		stride := c.readInt16(offset + 1)
		return fmt.Sprintf("MOVE %+d", stride), 3

	case OpSet:
		value := c.Code[offset+1]
		return fmt.Sprintf("SET %d", value), 2

	// Loop composites
	case OpScan:
		stride := c.readInt16(offset + 1)
		return fmt.Sprintf("SCAN %+d", stride), 3

	case OpMulAdd:
		target := c.readInt16(offset + 1)
		factor := int8(c.Code[offset+3])
		return fmt.Sprintf("MUL_ADD %+d *%d", target, factor), 4

	// I/O
	case OpOutput:
		return "OUTPUT", 1
	case OpInput:
		return "INPUT", 1

	// Jumps
	case OpJumpZero:
		delta := c.readInt16(offset + 1)
		jumpTarget := offset + 3 + int(delta)
		return fmt.Sprintf("JUMP_ZERO %+d (-> %04X)", delta, jumpTarget), 3

	case OpJumpNotZero:
		delta := c.readInt16(offset + 1)
		jumpTarget := offset + 3 + int(delta)
		return fmt.Sprintf("JUMP_NOT_ZERO %+d (-> %04X)", delta, jumpTarget), 3

	case OpHalt:
		return "HALT", 1

	// Default: use info from table
	default:
		instrLen := 1 + info.OperandLen
		if info.OperandLen == 0 {
			return info.Name, instrLen
		}

		// Format operands generically
		operands := make([]string, 0, info.OperandLen)
		for i := 0; i < info.OperandLen; i++ {
			if offset+1+i < len(c.Code) {
				operands = append(operands, fmt.Sprintf("0x%02X", c.Code[offset+1+i]))
			}
		}
		return fmt.Sprintf("%s %s", info.Name, strings.Join(operands, " ")), instrLen
	}
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (c *Chunk) DisassembleInstruction(offset int) string {
	line, _ := c.disassembleInstruction(offset)
	return line
}

// readUint16 reads a big-endian uint16 from the code at the given offset.
func (c *Chunk) readUint16(offset int) uint16 {
	if offset+1 >= len(c.Code) {
		return 0
	}
	return binary.BigEndian.Uint16(c.Code[offset:])
}

// readInt16 reads a big-endian int16 from the code at the given offset.
func (c *Chunk) readInt16(offset int) int16 {
	return int16(c.readUint16(offset))
}

// DisassembleToLines returns the disassembly as a slice of lines.
func (c *Chunk) DisassembleToLines() []string {
	var lines []string
	offset := 0
	for offset < len(c.Code) {
		line, instrLen := c.disassembleInstruction(offset)
		lines = append(lines, fmt.Sprintf("%04X  %s", offset, line))
		offset += instrLen
	}
	return lines
}

// InstructionCount returns the number of instructions in the chunk.
// Note: This iterates through all code, so it's O(n).
func (c *Chunk) InstructionCount() int {
	count := 0
	offset := 0
	for offset < len(c.Code) {
		op := Opcode(c.Code[offset])
		offset += op.InstructionLen()
		count++
	}
	return count
}
