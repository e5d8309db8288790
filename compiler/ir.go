package compiler

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// IR: instruction stream shared by the whole pipeline
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// OpKind identifies an IR instruction.
//
// The lexer emits only primitive kinds. The optimizer may replace runs and
// whole loops with composite kinds; the code generator accepts both.
type OpKind int

const (
	// Primitives, one per source command
	OpRight     OpKind = iota // >
	OpLeft                    // <
	OpInc                     // +
	OpDec                     // -
	OpOutput                  // .
	OpInput                   // ,
	OpLoopOpen                // [
	OpLoopClose               // ]

	// Composites introduced by the optimizer
	OpAdd    // add Arg to current cell (mod 256)
	OpMove   // move cursor by Arg
	OpSet    // store Arg in current cell
	OpScan   // move cursor by Arg until current cell is zero
	OpMulAdd // add current cell times Aux to cell at cursor+Arg
)

var opKindNames = map[OpKind]string{
	OpRight:     "RIGHT",
	OpLeft:      "LEFT",
	OpInc:       "INC",
	OpDec:       "DEC",
	OpOutput:    "OUTPUT",
	OpInput:     "INPUT",
	OpLoopOpen:  "LOOP_OPEN",
	OpLoopClose: "LOOP_CLOSE",
	OpAdd:       "ADD",
	OpMove:      "MOVE",
	OpSet:       "SET",
	OpScan:      "SCAN",
	OpMulAdd:    "MUL_ADD",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OpKind(%d)", k)
}

// IsPrimitive returns true for kinds the lexer can emit.
func (k OpKind) IsPrimitive() bool {
	return k <= OpLoopClose
}

// IsLoopDelimiter returns true for loop open and close kinds.
func (k OpKind) IsLoopDelimiter() bool {
	return k == OpLoopOpen || k == OpLoopClose
}

// Instruction is one IR operation.
//
// Arg carries the operand: a repeat count for counted kinds, a cursor delta
// for moves and scans, a cell value for sets, a target offset for multiply
// adds. Aux is only used by OpMulAdd and holds the factor. Match links loop
// delimiters to their partners by index and is -1 everywhere else.
type Instruction struct {
	Kind  OpKind
	Arg   int
	Aux   int
	Match int
	Pos   Position
}

func (ins Instruction) String() string {
	switch ins.Kind {
	case OpAdd, OpMove, OpSet, OpScan:
		return fmt.Sprintf("%s %d", ins.Kind, ins.Arg)
	case OpMulAdd:
		return fmt.Sprintf("%s [%+d] *%d", ins.Kind, ins.Arg, ins.Aux)
	case OpLoopOpen, OpLoopClose:
		return fmt.Sprintf("%s (match=%d)", ins.Kind, ins.Match)
	default:
		return ins.Kind.String()
	}
}

// ---------------------------------------------------------------------------
// Loop tree
// ---------------------------------------------------------------------------

// LoopNode describes one loop in the program. Open and Close index the
// delimiter instructions; Parent indexes the enclosing loop's node, -1 for a
// top-level loop.
type LoopNode struct {
	Open   int
	Close  int
	Parent int
	Depth  int
}

// LoopTree holds every loop of a program in nesting order. Nodes are stored
// in a flat slice and refer to each other by index, so the tree needs no
// per-node allocation and can be walked without recursion.
type LoopTree struct {
	Nodes []LoopNode
}

// Len returns the number of loops.
func (t *LoopTree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Nodes)
}

// Roots returns the indices of all top-level loops.
func (t *LoopTree) Roots() []int {
	var roots []int
	for i, n := range t.Nodes {
		if n.Parent == -1 {
			roots = append(roots, i)
		}
	}
	return roots
}

// Children returns the indices of loops directly nested in node i.
func (t *LoopTree) Children(i int) []int {
	var kids []int
	for j, n := range t.Nodes {
		if n.Parent == i {
			kids = append(kids, j)
		}
	}
	return kids
}

// MaxDepth returns the deepest nesting level, 0 for a loop-free program.
func (t *LoopTree) MaxDepth() int {
	max := 0
	for _, n := range t.Nodes {
		if n.Depth > max {
			max = n.Depth
		}
	}
	return max
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is a matched instruction stream together with its loop tree.
// Produced by Match, transformed by Optimize, consumed by the code generator.
type Program struct {
	Code  []Instruction
	Loops *LoopTree
}

// LoopCount returns the number of loops in the program.
func (p *Program) LoopCount() int {
	return p.Loops.Len()
}

// Dump writes the instruction stream to w, one instruction per line,
// indented by loop depth.
func (p *Program) Dump(w io.Writer) {
	depth := 0
	for i, ins := range p.Code {
		if ins.Kind == OpLoopClose && depth > 0 {
			depth--
		}
		fmt.Fprintf(w, "%4d  %s%s\n", i, strings.Repeat("  ", depth), ins)
		if ins.Kind == OpLoopOpen {
			depth++
		}
	}
}
