// Package bytecode provides a compact instruction set and a dispatch-loop
// virtual machine for executing compiled Brainfuck programs. Source is
// lowered once into fixed-width instructions, so loops no longer re-scan
// source text or re-match brackets on every iteration.
//
// The bytecode format is designed for:
//   - Compact representation (1-4 bytes per instruction)
//   - Fast decoding (fixed-width opcodes, simple operand formats)
//   - Easy serialization (can be cached in SQLite or written to .bfc files)
//
// # Architecture Overview
//
// The package consists of several components:
//
//   - Opcodes: ten tape-machine instructions covering cell arithmetic,
//     cursor movement, collapsed loop forms, I/O, and control flow
//
//   - Chunk: a compiled bytecode unit containing code, flags, and an
//     optional source map. Chunks can be serialized to bytes using the
//     "BFBC" format (BrainFuck ByteCode) for .bfc files, or to canonical
//     CBOR for the compile cache.
//
//   - Codegen: converts the compiler's instruction stream to bytecode,
//     resolving bracket pairs into relative 16-bit jump offsets.
//
//   - VM: dispatch-loop interpreter that executes chunks against a byte
//     tape. Cell arithmetic wraps modulo 256.
//
// # Why a Dispatch Loop
//
// A traditional Brainfuck JIT emits native machine code into executable
// memory. This package compiles to portable bytecode and interprets it with
// a dispatch loop instead. The optimizer has already collapsed the patterns
// that dominate runtime (long command runs, zeroing loops, scan loops, and
// multiply loops) into single instructions, so little dispatch overhead
// remains, and the result runs identically on every platform Go targets
// with no executable-page mapping and no per-architecture encoders.
//
// # Tape Semantics
//
// The tape is a fixed-length byte array, zeroed at startup, with the cursor
// on cell zero. Moving the cursor outside the tape is not defined behavior.
// By default the first out-of-range access surfaces as the Go runtime's
// slice range fault; running with Options.CheckBounds instead reports a
// *TapeFaultError naming the cursor, the tape size, and the bytecode offset
// of the faulting instruction.
//
// # End of Input
//
// What OpInput stores once the byte source is exhausted is a configuration
// choice, not a language rule. EOFPolicy selects between leaving the cell
// unchanged (the default), storing zero, and storing 0xFF.
package bytecode
