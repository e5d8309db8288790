package bytecode

import (
	"fmt"
	"math"

	"github.com/chazu/bfjit/compiler"
)

// Generate lowers a matched program to a bytecode chunk. The flags are
// recorded in the chunk header; when ChunkFlagDebug is set the generator
// also emits a source map.
//
// Composites lower to single branch-free instructions. Loops that survived
// optimization (or were never optimized) lower to a conditional jump pair:
// a forward jump over the body taken when the cell is zero, and a backward
// jump to the body start taken while it is nonzero.
func Generate(prog *compiler.Program, flags ChunkFlags) (*Chunk, error) {
	g := &generator{
		chunk: &Chunk{
			Version: BytecodeVersion,
			Flags:   flags,
			Code:    make([]byte, 0, len(prog.Code)*2+1),
		},
		debug: flags&ChunkFlagDebug != 0,
	}

	for _, ins := range prog.Code {
		if err := g.instruction(ins); err != nil {
			return nil, err
		}
	}
	if len(g.opens) > 0 {
		return nil, fmt.Errorf("cannot generate code for unmatched loop open")
	}
	g.chunk.Emit(OpHalt)

	return g.chunk, nil
}

// Compile runs the full pipeline over source text: lex, match, optionally
// optimize, then generate.
func Compile(source string, optimize bool) (*Chunk, error) {
	prog, err := compiler.Parse(source)
	if err != nil {
		return nil, err
	}
	var flags ChunkFlags
	if optimize {
		prog = compiler.Optimize(prog)
		flags |= ChunkFlagOptimized
	}
	return Generate(prog, flags)
}

// generator tracks lowering state: the chunk under construction and the
// placeholder offsets of still-open loops.
type generator struct {
	chunk *Chunk
	debug bool
	opens []int // placeholder offsets of pending forward jumps
}

// mark records a source location for the next instruction.
func (g *generator) mark(pos compiler.Position) {
	if !g.debug {
		return
	}
	g.chunk.AddSourceLocation(uint32(len(g.chunk.Code)), uint32(pos.Line), uint16(pos.Column))
}

func (g *generator) instruction(ins compiler.Instruction) error {
	g.mark(ins.Pos)

	switch ins.Kind {
	case compiler.OpInc:
		g.chunk.EmitU8(OpAdd, byte(ins.Arg))

	case compiler.OpDec:
		g.chunk.EmitU8(OpAdd, byte(-ins.Arg))

	case compiler.OpAdd:
		// Cell arithmetic wraps, so the amount truncates to its low byte.
		g.chunk.EmitU8(OpAdd, byte(ins.Arg))

	case compiler.OpRight:
		g.chunk.EmitI16(OpMove, int16(ins.Arg))

	case compiler.OpLeft:
		g.chunk.EmitI16(OpMove, int16(-ins.Arg))

	case compiler.OpMove:
		if !fitsInt16(ins.Arg) {
			return fmt.Errorf("cursor move of %d at %s exceeds the 16-bit operand range", ins.Arg, ins.Pos)
		}
		g.chunk.EmitI16(OpMove, int16(ins.Arg))

	case compiler.OpSet:
		g.chunk.EmitU8(OpSet, byte(ins.Arg))

	case compiler.OpScan:
		if !fitsInt16(ins.Arg) {
			return fmt.Errorf("scan stride of %d at %s exceeds the 16-bit operand range", ins.Arg, ins.Pos)
		}
		g.chunk.EmitI16(OpScan, int16(ins.Arg))

	case compiler.OpMulAdd:
		if !fitsInt16(ins.Arg) {
			return fmt.Errorf("multiply target offset of %d at %s exceeds the 16-bit operand range", ins.Arg, ins.Pos)
		}
		off := uint16(int16(ins.Arg))
		g.chunk.EmitWithOperand(OpMulAdd, byte(off>>8), byte(off), byte(ins.Aux))

	case compiler.OpOutput:
		g.chunk.Emit(OpOutput)

	case compiler.OpInput:
		g.chunk.Emit(OpInput)

	case compiler.OpLoopOpen:
		g.opens = append(g.opens, g.chunk.EmitJump(OpJumpZero))

	case compiler.OpLoopClose:
		if len(g.opens) == 0 {
			return fmt.Errorf("cannot generate code for unmatched loop close")
		}
		placeholder := g.opens[len(g.opens)-1]
		g.opens = g.opens[:len(g.opens)-1]

		bodyStart := placeholder + 2
		backward := bodyStart - (len(g.chunk.Code) + 3)
		if !fitsInt16(backward) {
			return fmt.Errorf("loop body ending at %s is too large for a 16-bit jump", ins.Pos)
		}
		g.chunk.EmitLoop(OpJumpNotZero, bodyStart)

		forward := len(g.chunk.Code) - (placeholder + 2)
		if !fitsInt16(forward) {
			return fmt.Errorf("loop body ending at %s is too large for a 16-bit jump", ins.Pos)
		}
		g.chunk.PatchJump(placeholder)

	default:
		return fmt.Errorf("cannot generate code for %s", ins.Kind)
	}
	return nil
}

func fitsInt16(v int) bool {
	return v >= math.MinInt16 && v <= math.MaxInt16
}
