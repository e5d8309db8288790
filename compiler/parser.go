package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Matcher: pair loop delimiters and build the loop tree
// ---------------------------------------------------------------------------

// BracketError reports an unbalanced loop delimiter. For a stray close it
// carries that close's position; for unclosed opens it carries the innermost
// one, since that is the delimiter still waiting for a partner.
type BracketError struct {
	Pos  Position
	Open bool // true for an unclosed '[', false for a stray ']'
}

func (e *BracketError) Error() string {
	if e.Open {
		return fmt.Sprintf("unclosed '[' at %s (offset %d)", e.Pos, e.Pos.Offset)
	}
	return fmt.Sprintf("unmatched ']' at %s (offset %d)", e.Pos, e.Pos.Offset)
}

// Match pairs every loop open with its close and builds the loop tree. The
// input is not modified; the returned program owns its own instruction slice.
func Match(instrs []Instruction) (*Program, error) {
	code := make([]Instruction, len(instrs))
	copy(code, instrs)

	tree, err := matchLoops(code)
	if err != nil {
		return nil, err
	}
	return &Program{Code: code, Loops: tree}, nil
}

// matchLoops links the Match fields of loop delimiters in place and returns
// the loop tree. A single left-to-right scan with an open stack suffices:
// each close pairs with the most recent unpaired open.
func matchLoops(code []Instruction) (*LoopTree, error) {
	type openFrame struct {
		index int // instruction index of the open
		node  int // loop tree node index
	}

	tree := &LoopTree{}
	var stack []openFrame

	for i := range code {
		switch code[i].Kind {
		case OpLoopOpen:
			parent := -1
			if len(stack) > 0 {
				parent = stack[len(stack)-1].node
			}
			tree.Nodes = append(tree.Nodes, LoopNode{
				Open:   i,
				Close:  -1,
				Parent: parent,
				Depth:  len(stack) + 1,
			})
			stack = append(stack, openFrame{index: i, node: len(tree.Nodes) - 1})

		case OpLoopClose:
			if len(stack) == 0 {
				return nil, &BracketError{Pos: code[i].Pos}
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			code[top.index].Match = i
			code[i].Match = top.index
			tree.Nodes[top.node].Close = i
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, &BracketError{Pos: code[top.index].Pos, Open: true}
	}
	return tree, nil
}

// Parse lexes and matches source in one step.
func Parse(source string) (*Program, error) {
	return Match(Lex(source))
}
