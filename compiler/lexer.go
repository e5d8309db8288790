package compiler

import "unicode/utf8"

// ---------------------------------------------------------------------------
// Lexer: source text -> primitive instruction stream
// ---------------------------------------------------------------------------

// commandKinds maps the eight command characters to their instruction kinds.
// Every other character is a comment.
var commandKinds = map[rune]OpKind{
	'>': OpRight,
	'<': OpLeft,
	'+': OpInc,
	'-': OpDec,
	'.': OpOutput,
	',': OpInput,
	'[': OpLoopOpen,
	']': OpLoopClose,
}

// eof marks exhausted input. NUL is an ordinary comment byte, so the
// sentinel has to live outside the rune range.
const eof = -1

// Lexer scans source text for command characters. It cannot fail: anything
// that is not a command is skipped, so any input produces some instruction
// sequence, possibly empty.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character, eof when exhausted
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = eof
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// Next returns the next instruction. The second return value is false once
// the input is exhausted.
func (l *Lexer) Next() (Instruction, bool) {
	for l.ch != eof {
		kind, ok := commandKinds[l.ch]
		if !ok {
			l.readChar()
			continue
		}
		ins := Instruction{
			Kind:  kind,
			Match: -1,
			Pos:   l.position(),
		}
		switch kind {
		case OpRight, OpLeft, OpInc, OpDec:
			ins.Arg = 1
		}
		l.readChar()
		return ins, true
	}
	return Instruction{}, false
}

// Lex returns the full instruction sequence for the input. Loop delimiters
// come back unlinked; Match pairs them.
func Lex(input string) []Instruction {
	l := NewLexer(input)
	var instrs []Instruction
	for {
		ins, ok := l.Next()
		if !ok {
			return instrs
		}
		instrs = append(instrs, ins)
	}
}
