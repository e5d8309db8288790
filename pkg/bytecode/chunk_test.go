package bytecode

import (
	"bytes"
	"testing"
)

func TestNewChunk(t *testing.T) {
	c := NewChunk()

	if c.Version != BytecodeVersion {
		t.Errorf("Version = %d, want %d", c.Version, BytecodeVersion)
	}
	if c.Code == nil {
		t.Error("Code is nil")
	}
	if c.CodeLen() != 0 {
		t.Errorf("CodeLen() = %d, want 0", c.CodeLen())
	}
}

func TestChunkEmit(t *testing.T) {
	c := NewChunk()

	// Emit simple opcode
	off0 := c.Emit(OpOutput)
	if off0 != 0 {
		t.Errorf("First emit offset = %d, want 0", off0)
	}

	off1 := c.Emit(OpHalt)
	if off1 != 1 {
		t.Errorf("Second emit offset = %d, want 1", off1)
	}

	if c.CodeLen() != 2 {
		t.Errorf("CodeLen() = %d, want 2", c.CodeLen())
	}

	if Opcode(c.Code[0]) != OpOutput {
		t.Errorf("Code[0] = 0x%02X, want OpOutput", c.Code[0])
	}
	if Opcode(c.Code[1]) != OpHalt {
		t.Errorf("Code[1] = 0x%02X, want OpHalt", c.Code[1])
	}
}

func TestChunkEmitU8(t *testing.T) {
	c := NewChunk()

	off := c.EmitU8(OpAdd, 5)
	if off != 0 {
		t.Errorf("Emit offset = %d, want 0", off)
	}

	if c.CodeLen() != 2 {
		t.Errorf("CodeLen() = %d, want 2", c.CodeLen())
	}

	if Opcode(c.Code[0]) != OpAdd {
		t.Errorf("Code[0] = 0x%02X, want OpAdd", c.Code[0])
	}
	if c.Code[1] != 5 {
		t.Errorf("Code[1] = %d, want 5", c.Code[1])
	}
}

func TestChunkEmitI16(t *testing.T) {
	tests := []struct {
		value int16
		hi    byte
		lo    byte
	}{
		{1, 0x00, 0x01},
		{258, 0x01, 0x02},
		{-1, 0xFF, 0xFF},
		{-2, 0xFF, 0xFE},
		{-300, 0xFE, 0xD4},
	}

	for _, tt := range tests {
		c := NewChunk()
		c.EmitI16(OpMove, tt.value)

		if c.CodeLen() != 3 {
			t.Errorf("EmitI16(%d): CodeLen() = %d, want 3", tt.value, c.CodeLen())
		}
		if c.Code[1] != tt.hi || c.Code[2] != tt.lo {
			t.Errorf("EmitI16(%d): operand bytes = %02X,%02X, want %02X,%02X",
				tt.value, c.Code[1], c.Code[2], tt.hi, tt.lo)
		}
	}
}

func TestChunkJumpPatch(t *testing.T) {
	c := NewChunk()

	// Emit some code
	c.Emit(OpOutput) // offset 0, 1 byte

	// Emit jump with placeholder
	placeholderOff := c.EmitJump(OpJumpZero) // offset 1-3, returns 2 (placeholder offset)

	// Emit body
	c.Emit(OpOutput) // offset 4, 1 byte
	c.Emit(OpOutput) // offset 5, 1 byte

	// Patch jump to current position (offset 6)
	c.PatchJump(placeholderOff)

	// Emit more code
	c.Emit(OpHalt) // offset 6, 1 byte

	// Verify jump target
	// placeholderOff = 2
	// jumpFrom = placeholderOff + 2 = 4 (after the 2-byte offset)
	// jumpTo = 6 (len when PatchJump was called)
	// delta = 6 - 4 = 2
	delta := int16(c.Code[placeholderOff])<<8 | int16(c.Code[placeholderOff+1])

	if delta != 2 {
		t.Errorf("Jump delta = %d, want 2", delta)
	}
}

func TestChunkPatchJumpTo(t *testing.T) {
	c := NewChunk()

	placeholderOff := c.EmitJump(OpJumpZero) // offset 0-2, returns 1
	c.Emit(OpOutput)                         // offset 3
	c.Emit(OpOutput)                         // offset 4
	c.Emit(OpHalt)                           // offset 5

	// Jump lands on the second OpOutput
	c.PatchJumpTo(placeholderOff, 4)

	// jumpFrom = 1 + 2 = 3, delta = 4 - 3 = 1
	delta := int16(c.Code[placeholderOff])<<8 | int16(c.Code[placeholderOff+1])
	if delta != 1 {
		t.Errorf("Jump delta = %d, want 1", delta)
	}
}

func TestChunkEmitLoop(t *testing.T) {
	c := NewChunk()

	// Loop start
	loopStart := c.CurrentOffset()
	c.Emit(OpOutput)
	c.EmitU8(OpAdd, 1)

	// Back edge
	c.EmitLoop(OpJumpNotZero, loopStart)

	// Verify backward jump
	// EmitLoop is at offset 3
	// Jump instruction is 3 bytes, so jump "from" is offset 6
	// Target is offset 0, so delta = 0 - 6 = -6
	jumpOffset := c.CodeLen() - 2 // Position of delta bytes
	delta := int16(c.Code[jumpOffset])<<8 | int16(c.Code[jumpOffset+1])

	if delta != -6 {
		t.Errorf("Loop delta = %d, want -6", delta)
	}
}

func TestChunkOptimizedFlag(t *testing.T) {
	c := NewChunk()
	if c.Optimized() {
		t.Error("New chunk reports Optimized() = true")
	}

	c.Flags |= ChunkFlagOptimized
	if !c.Optimized() {
		t.Error("Optimized() = false with ChunkFlagOptimized set")
	}
}

func TestChunkSourceLocation(t *testing.T) {
	c := NewChunk()

	c.AddSourceLocation(0, 10, 5)
	c.AddSourceLocation(5, 12, 10)

	if c.Flags&ChunkFlagDebug == 0 {
		t.Error("ChunkFlagDebug not set")
	}

	// Query locations
	line, col := c.GetSourceLocation(0)
	if line != 10 || col != 5 {
		t.Errorf("Location at 0 = (%d, %d), want (10, 5)", line, col)
	}

	line, col = c.GetSourceLocation(3)
	if line != 10 || col != 5 {
		t.Errorf("Location at 3 = (%d, %d), want (10, 5) (should use nearest before)", line, col)
	}

	line, col = c.GetSourceLocation(5)
	if line != 12 || col != 10 {
		t.Errorf("Location at 5 = (%d, %d), want (12, 10)", line, col)
	}
}

func TestChunkSourceLocationMiss(t *testing.T) {
	c := NewChunk()

	line, col := c.GetSourceLocation(0)
	if line != 0 || col != 0 {
		t.Errorf("Location with empty map = (%d, %d), want (0, 0)", line, col)
	}
}

// ============================================================================
// Serialization Tests
// ============================================================================

func TestSerializeDeserializeEmpty(t *testing.T) {
	c := NewChunk()

	data, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}

	// Check magic
	if !bytes.HasPrefix(data, BytecodeMagic) {
		t.Error("Serialized data missing magic header")
	}

	// Deserialize
	c2, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize error: %v", err)
	}

	if c2.Version != c.Version {
		t.Errorf("Version mismatch: got %d, want %d", c2.Version, c.Version)
	}
	if c2.CodeLen() != 0 {
		t.Errorf("Code length: got %d, want 0", c2.CodeLen())
	}
}

func TestSerializeDeserializeWithCode(t *testing.T) {
	c := NewChunk()
	c.Flags |= ChunkFlagOptimized

	// Add some code
	c.EmitU8(OpAdd, 3)
	c.EmitI16(OpMove, 1)
	c.Emit(OpOutput)
	c.Emit(OpHalt)

	data, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}

	c2, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize error: %v", err)
	}

	if c2.CodeLen() != c.CodeLen() {
		t.Errorf("Code length: got %d, want %d", c2.CodeLen(), c.CodeLen())
	}

	if !bytes.Equal(c2.Code, c.Code) {
		t.Error("Code mismatch")
	}

	if !c2.Optimized() {
		t.Error("ChunkFlagOptimized not preserved")
	}
}

func TestSerializeDeserializeWithDebug(t *testing.T) {
	c := NewChunk()

	c.EmitU8(OpAdd, 1)
	c.AddSourceLocation(0, 1, 1)

	c.EmitI16(OpMove, 2)
	c.AddSourceLocation(2, 1, 2)

	c.Emit(OpHalt)
	c.AddSourceLocation(5, 2, 1)

	data, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}

	c2, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize error: %v", err)
	}

	if c2.Flags&ChunkFlagDebug == 0 {
		t.Error("ChunkFlagDebug not preserved")
	}

	if len(c2.SourceMap) != 3 {
		t.Errorf("SourceMap length: got %d, want 3", len(c2.SourceMap))
	}

	line, col := c2.GetSourceLocation(2)
	if line != 1 || col != 2 {
		t.Errorf("Source location at 2: got (%d, %d), want (1, 2)", line, col)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	// Build a chunk shaped like real compiled output: a counted loop
	c := NewChunk()

	c.EmitU8(OpAdd, 5)

	jumpOff := c.EmitJump(OpJumpZero)
	bodyStart := c.CurrentOffset()

	c.Emit(OpOutput)
	c.EmitU8(OpAdd, 0xFF) // ADD -1

	c.EmitLoop(OpJumpNotZero, bodyStart)
	c.PatchJump(jumpOff)

	c.Emit(OpHalt)

	// Serialize
	data, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}

	// Deserialize
	c2, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize error: %v", err)
	}

	if c2.Version != c.Version {
		t.Errorf("Version: got %d, want %d", c2.Version, c.Version)
	}
	if !bytes.Equal(c2.Code, c.Code) {
		t.Error("Code mismatch")
		t.Logf("Original: %v", c.Code)
		t.Logf("Deserialized: %v", c2.Code)
	}

	// Verify we can serialize again and get the same result
	data2, err := c2.Serialize()
	if err != nil {
		t.Fatalf("Second serialize error: %v", err)
	}

	if !bytes.Equal(data, data2) {
		t.Error("Second serialization produced different result")
	}
}

func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"wrong magic", []byte{'X', 'X', 'X', 'X', 0, 1, 0, 0}},
		{"truncated code", append(BytecodeMagic, 0, 1, 0, 0, 0, 0, 0, 10)}, // Claims 10 bytes of code but has none
		{"missing debug marker", append(BytecodeMagic, 0, 1, 0, 0, 0, 0, 0, 0)},
		{"truncated source map", append(BytecodeMagic, 0, 1, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestDeserializeFutureVersion(t *testing.T) {
	// Create data with version 999
	data := append(BytecodeMagic, 3, 231, 0, 0) // Version 999, flags 0
	data = append(data, 0, 0, 0, 0)             // Code length 0
	data = append(data, 0)                      // No debug info

	_, err := Deserialize(data)
	if err == nil {
		t.Error("Expected version error, got nil")
	}
}
