package bytecode

import (
	"encoding/binary"
	"fmt"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for bytecode files: "BFBC" (BrainFuck ByteCode)
var BytecodeMagic = []byte{'B', 'F', 'B', 'C'}

// ChunkFlags contains compilation flags for a chunk.
type ChunkFlags uint16

const (
	// ChunkFlagOptimized indicates the chunk was generated from an
	// optimized program.
	ChunkFlagOptimized ChunkFlags = 1 << 0

	// ChunkFlagDebug indicates debug information is present.
	ChunkFlagDebug ChunkFlags = 1 << 1
)

// SourceLocation maps bytecode position to source location for debugging.
type SourceLocation struct {
	BytecodeOffset uint32 `cbor:"1,keyasint"` // Offset in code section
	Line           uint32 `cbor:"2,keyasint"` // Source line number (1-based)
	Column         uint16 `cbor:"3,keyasint"` // Source column number (1-based)
}

// Chunk represents a compiled program.
// It is the fundamental unit of bytecode that can be serialized and executed.
type Chunk struct {
	// Header
	Version uint16     `cbor:"1,keyasint"` // Bytecode format version
	Flags   ChunkFlags `cbor:"2,keyasint"` // Compilation flags

	// Code section
	Code []byte `cbor:"3,keyasint"` // Bytecode instructions

	// Debug information (optional, present if ChunkFlagDebug is set)
	SourceMap []SourceLocation `cbor:"4,keyasint,omitempty"` // Bytecode offset -> source location
}

// NewChunk creates a new empty chunk with the current version.
func NewChunk() *Chunk {
	return &Chunk{
		Version: BytecodeVersion,
		Code:    make([]byte, 0, 64),
	}
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitU8 appends an opcode with a one-byte operand.
func (c *Chunk) EmitU8(op Opcode, v byte) int {
	return c.EmitWithOperand(op, v)
}

// EmitI16 appends an opcode with a signed 16-bit big-endian operand.
func (c *Chunk) EmitI16(op Opcode, v int16) int {
	return c.EmitWithOperand(op, byte(uint16(v)>>8), byte(uint16(v)))
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), 0xFF, 0xFF) // Placeholder
	return offset + 1                             // Return offset of the placeholder bytes
}

// PatchJump patches a jump instruction's offset to jump to the current position.
func (c *Chunk) PatchJump(placeholderOffset int) {
	// Calculate relative jump from after the jump instruction
	jumpFrom := placeholderOffset + 2 // After the 2-byte offset
	jumpTo := len(c.Code)
	delta := jumpTo - jumpFrom

	// Encode as signed 16-bit
	c.Code[placeholderOffset] = byte(delta >> 8)
	c.Code[placeholderOffset+1] = byte(delta)
}

// PatchJumpTo patches a jump to go to a specific offset.
func (c *Chunk) PatchJumpTo(placeholderOffset int, target int) {
	jumpFrom := placeholderOffset + 2
	delta := target - jumpFrom

	c.Code[placeholderOffset] = byte(delta >> 8)
	c.Code[placeholderOffset+1] = byte(delta)
}

// EmitLoop emits a backward jump to the given loop start.
func (c *Chunk) EmitLoop(op Opcode, loopStart int) {
	// Jump goes backward, so delta is negative
	jumpFrom := len(c.Code) + 3 // After this instruction
	delta := loopStart - jumpFrom

	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, byte(delta>>8), byte(delta))
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// Optimized returns true if the chunk was generated with optimization on.
func (c *Chunk) Optimized() bool {
	return c.Flags&ChunkFlagOptimized != 0
}

// AddSourceLocation adds a debug source location mapping.
func (c *Chunk) AddSourceLocation(bytecodeOffset uint32, line uint32, column uint16) {
	c.Flags |= ChunkFlagDebug
	c.SourceMap = append(c.SourceMap, SourceLocation{
		BytecodeOffset: bytecodeOffset,
		Line:           line,
		Column:         column,
	})
}

// GetSourceLocation returns the source location for a bytecode offset.
// Returns line 0, column 0 if no mapping exists.
func (c *Chunk) GetSourceLocation(offset uint32) (line uint32, column uint16) {
	// Find the nearest mapping at or before the offset
	for i := len(c.SourceMap) - 1; i >= 0; i-- {
		if c.SourceMap[i].BytecodeOffset <= offset {
			return c.SourceMap[i].Line, c.SourceMap[i].Column
		}
	}
	return 0, 0
}

// Serialize encodes the chunk to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[code_len:4] [code:...]
//	[debug_present:1] [debug_info:...] (if ChunkFlagDebug)
func (c *Chunk) Serialize() ([]byte, error) {
	estimatedSize := 8 + 4 + len(c.Code) + 1 + len(c.SourceMap)*10
	buf := make([]byte, 0, estimatedSize)

	// Magic number: "BFBC"
	buf = append(buf, BytecodeMagic...)

	// Version and flags
	buf = binary.BigEndian.AppendUint16(buf, c.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(c.Flags))

	// Code section
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Code)))
	buf = append(buf, c.Code...)

	// Debug info (if present)
	if c.Flags&ChunkFlagDebug != 0 {
		buf = append(buf, 1) // Debug present marker

		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.SourceMap)))
		for _, loc := range c.SourceMap {
			buf = binary.BigEndian.AppendUint32(buf, loc.BytecodeOffset)
			buf = binary.BigEndian.AppendUint32(buf, loc.Line)
			buf = binary.BigEndian.AppendUint16(buf, loc.Column)
		}
	} else {
		buf = append(buf, 0) // No debug info
	}

	return buf, nil
}

// Deserialize decodes a chunk from bytes.
func Deserialize(data []byte) (*Chunk, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("bytecode too short: need at least 8 bytes, got %d", len(data))
	}

	// Check magic
	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", BytecodeMagic, data[0:4])
	}

	c := &Chunk{
		Version: binary.BigEndian.Uint16(data[4:6]),
		Flags:   ChunkFlags(binary.BigEndian.Uint16(data[6:8])),
	}

	pos := 8

	// Version check
	if c.Version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", c.Version, BytecodeVersion)
	}

	// Code section
	if pos+4 > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading code length at pos %d", pos)
	}
	codeLen := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	if pos+int(codeLen) > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading code section: need %d bytes at pos %d", codeLen, pos)
	}
	c.Code = make([]byte, codeLen)
	copy(c.Code, data[pos:pos+int(codeLen)])
	pos += int(codeLen)

	// Debug info
	if pos >= len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading debug marker")
	}
	hasDebug := data[pos]
	pos++

	if hasDebug != 0 {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading source map count")
		}
		sourceMapLen := binary.BigEndian.Uint32(data[pos:])
		pos += 4

		if pos+int(sourceMapLen)*10 > len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading source map: need %d entries at pos %d", sourceMapLen, pos)
		}
		c.SourceMap = make([]SourceLocation, sourceMapLen)
		for i := range c.SourceMap {
			c.SourceMap[i].BytecodeOffset = binary.BigEndian.Uint32(data[pos:])
			pos += 4
			c.SourceMap[i].Line = binary.BigEndian.Uint32(data[pos:])
			pos += 4
			c.SourceMap[i].Column = binary.BigEndian.Uint16(data[pos:])
			pos += 2
		}
	}

	return c, nil
}
