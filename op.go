package main

import "fmt"

// op.go - the folded instruction list the emitter consumes

// OpKind identifies one of the eight recognised instructions. The
// values are the source bytes themselves, so a kind prints as the
// character that produced it.
type OpKind byte

const (
	DpInc     OpKind = '>'
	DpDec     OpKind = '<'
	DataInc   OpKind = '+'
	DataDec   OpKind = '-'
	Input     OpKind = ','
	Output    OpKind = '.'
	LoopStart OpKind = '['
	LoopEnd   OpKind = ']'
)

// MaxRunLength is the largest run a single Op may carry. The ALU
// instructions the emitter encodes take an 8-bit signed immediate, so
// a run must fit in 0x7f; longer runs become multiple Ops.
const MaxRunLength = 0x7f

// Op is one folded instruction. Count is the run length for the four
// arithmetic and pointer-motion kinds and always 1 for the rest. Pos
// is the byte offset in the source that started this op, kept so
// bracket errors can name a position.
type Op struct {
	Kind  OpKind
	Count int
	Pos   int
}

func (op Op) String() string {
	return fmt.Sprintf("%c x%d", byte(op.Kind), op.Count)
}

// Fold scans the source and produces the folded instruction list.
// Adjacent `>`, `<`, `+` and `-` merge into a single Op until the run
// hits MaxRunLength; `,`, `.`, `[` and `]` never merge. Every other
// byte is a comment and is skipped, so runs fold across comments and
// newlines. Folding never fails; unbalanced brackets are caught later
// by the emitter.
func Fold(source string) []Op {
	var ops []Op
	for i := 0; i < len(source); i++ {
		kind := OpKind(source[i])
		switch kind {
		case DataInc, DataDec, DpInc, DpDec:
			if n := len(ops); n > 0 && ops[n-1].Kind == kind && ops[n-1].Count < MaxRunLength {
				ops[n-1].Count++
				continue
			}
			ops = append(ops, Op{Kind: kind, Count: 1, Pos: i})
		case Input, Output, LoopStart, LoopEnd:
			ops = append(ops, Op{Kind: kind, Count: 1, Pos: i})
		}
	}
	return ops
}
