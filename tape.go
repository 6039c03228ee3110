package main

import (
	"unsafe"

	"github.com/xyproto/env/v2"
)

// tape.go - the cell array the generated code manipulates

// DefaultTapeSize is the number of cells when BFJIT_TAPE_SIZE is unset.
const DefaultTapeSize = 4096

// Tape is the zero-initialised cell array. The generated code holds
// the absolute address of the current cell in rdx, so the backing
// array must stay reachable for as long as compiled code can run
// against it; the compiled buffer is not relocatable to another tape.
type Tape struct {
	cells []byte
}

// NewTape allocates a zeroed tape of the given size. A size of zero
// or less picks up BFJIT_TAPE_SIZE from the environment, defaulting
// to DefaultTapeSize. The program itself is never bounds-checked: a
// data pointer that leaves the tape is undefined behaviour.
func NewTape(size int) *Tape {
	if size <= 0 {
		size = env.Int("BFJIT_TAPE_SIZE", DefaultTapeSize)
	}
	return &Tape{cells: make([]byte, size)}
}

// Addr is the address of cell 0, the emit-time constant baked into
// the compiled prologue.
func (t *Tape) Addr() uintptr {
	return uintptr(unsafe.Pointer(&t.cells[0]))
}

// Len returns the number of cells.
func (t *Tape) Len() int {
	return len(t.cells)
}

// Cell returns the value of cell i.
func (t *Tape) Cell(i int) byte {
	return t.cells[i]
}
