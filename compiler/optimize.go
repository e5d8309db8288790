package compiler

import "sort"

// ---------------------------------------------------------------------------
// Optimizer: run collapsing and loop shape recognition
// ---------------------------------------------------------------------------

// Optimize rewrites a matched program into an equivalent, usually shorter
// one. Two rewrites happen in a single pass:
//
//   - runs of adds and runs of moves collapse into one counted instruction,
//     and runs that cancel to nothing disappear entirely
//   - loops whose collapsed bodies have a recognized shape are replaced by
//     branch-free composites
//
// Loop shapes are tried in a fixed order: zeroing, scan, multiply. The first
// match wins and anything unrecognized stays a loop around its collapsed
// body, so an empty loop keeps its spin-forever behavior. The input program
// is not modified and running Optimize on its own output changes nothing.
func Optimize(prog *Program) *Program {
	type frame struct {
		open Instruction
		code []Instruction
	}

	var stack []frame
	cur := make([]Instruction, 0, len(prog.Code))

	for _, ins := range prog.Code {
		switch ins.Kind {
		case OpLoopOpen:
			stack = append(stack, frame{open: ins, code: cur})
			cur = nil

		case OpLoopClose:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			body := cur
			cur = reduceLoop(top.code, top.open, body, ins)

		default:
			cur = appendCollapsed(cur, ins)
		}
	}

	tree, err := matchLoops(cur)
	if err != nil {
		// reduceLoop emits delimiters only in balanced pairs
		panic("compiler: optimizer produced unbalanced loops: " + err.Error())
	}
	return &Program{Code: cur, Loops: tree}
}

// appendCollapsed appends a non-delimiter instruction, normalizing
// primitives to their counted composite forms and merging with a same-kind
// tail. A tail whose count reaches zero is dropped, which lets earlier
// instructions merge in turn.
func appendCollapsed(code []Instruction, ins Instruction) []Instruction {
	switch ins.Kind {
	case OpInc:
		ins.Kind = OpAdd
	case OpDec:
		ins.Kind, ins.Arg = OpAdd, -ins.Arg
	case OpRight:
		ins.Kind = OpMove
	case OpLeft:
		ins.Kind, ins.Arg = OpMove, -ins.Arg
	}

	if ins.Kind == OpAdd || ins.Kind == OpMove {
		if n := len(code); n > 0 && code[n-1].Kind == ins.Kind {
			code[n-1].Arg += ins.Arg
			if code[n-1].Arg == 0 {
				code = code[:n-1]
			}
			return code
		}
		if ins.Arg == 0 {
			return code
		}
	}
	return append(code, ins)
}

// reduceLoop appends a finished loop to the parent buffer, replacing
// recognized body shapes with their composites.
func reduceLoop(code []Instruction, open Instruction, body []Instruction, close Instruction) []Instruction {
	if value, ok := setShape(body); ok {
		return append(code, Instruction{Kind: OpSet, Arg: value, Match: -1, Pos: open.Pos})
	}
	if stride, ok := scanShape(body); ok {
		return append(code, Instruction{Kind: OpScan, Arg: stride, Match: -1, Pos: open.Pos})
	}
	if targets, ok := multiplyShape(body); ok {
		for _, t := range targets {
			code = append(code, Instruction{Kind: OpMulAdd, Arg: t.offset, Aux: t.factor, Match: -1, Pos: open.Pos})
		}
		return append(code, Instruction{Kind: OpSet, Arg: 0, Match: -1, Pos: open.Pos})
	}

	code = append(code, open)
	code = append(code, body...)
	return append(code, close)
}

// setShape recognizes a body that steps the current cell by one in either
// direction. Wrapping arithmetic drives any value to zero that way, so the
// loop is a store of zero.
func setShape(body []Instruction) (value int, ok bool) {
	if len(body) == 1 && body[0].Kind == OpAdd && (body[0].Arg == 1 || body[0].Arg == -1) {
		return 0, true
	}
	return 0, false
}

// scanShape recognizes a body that only moves the cursor by a fixed
// nonzero stride.
func scanShape(body []Instruction) (stride int, ok bool) {
	if len(body) == 1 && body[0].Kind == OpMove && body[0].Arg != 0 {
		return body[0].Arg, true
	}
	return 0, false
}

// mulTarget is one destination cell of a multiply loop: the cell at offset
// from the loop cell receives the loop cell's value times factor.
type mulTarget struct {
	offset int
	factor int
}

// multiplyShape recognizes a body of adds and moves whose net cursor travel
// is zero and whose net effect on the loop cell is a step of one in either
// direction. Each iteration then adds a fixed delta to a fixed set of other
// cells, so the whole loop multiplies the loop cell into its targets and
// clears it. A loop cell stepping up runs for the complement of its value,
// which negates every factor. Targets come back in ascending offset order.
func multiplyShape(body []Instruction) ([]mulTarget, bool) {
	pos := 0
	deltas := make(map[int]int)
	for _, ins := range body {
		switch ins.Kind {
		case OpMove:
			pos += ins.Arg
		case OpAdd:
			deltas[pos] += ins.Arg
		default:
			return nil, false
		}
	}
	if pos != 0 {
		return nil, false
	}

	step := deltas[0]
	if step != 1 && step != -1 {
		return nil, false
	}

	offsets := make([]int, 0, len(deltas))
	for off, d := range deltas {
		if off != 0 && d != 0 {
			offsets = append(offsets, off)
		}
	}
	sort.Ints(offsets)

	targets := make([]mulTarget, 0, len(offsets))
	for _, off := range offsets {
		factor := deltas[off]
		if step == 1 {
			factor = -factor
		}
		targets = append(targets, mulTarget{offset: off, factor: factor})
	}
	return targets, true
}
