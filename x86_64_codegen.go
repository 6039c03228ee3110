// Completion: 100% - x86-64 code generation complete
package main

import (
	"errors"
	"fmt"
	"os"
)

// x86_64_codegen.go - translation of the folded instruction list to
// x86-64 machine code, System V / Linux syscall convention.
//
// The data pointer lives in rdx for the whole program. The read/write
// syscall sequences need rdx for their count argument, so they save
// and restore it with push/pop.

// Linux syscall numbers for x86-64. The generated code is tied to
// this ABI no matter where the compiler itself was built, so these
// are spelled out here rather than taken from the host.
const (
	sysRead  = 0
	sysWrite = 1

	fdStdin  = 0
	fdStdout = 1
)

// placeholder32 fills a forward-jump displacement until the matching
// ']' patches it. Any recognisable value works; checking it before
// patching catches patch-stack mix-ups early.
const placeholder32 = 0x12345678

var (
	errUnmatchedLoopEnd   = errors.New("unmatched ']'")
	errUnmatchedLoopStart = errors.New("unmatched '['")
)

// patchSite is one '[' waiting for its ']'.
type patchSite struct {
	offset int // position of the placeholder displacement in the code buffer
	srcPos int // source offset of the '[', for error reports
}

// CodeBuilder turns a folded instruction list into an executable
// x86-64 buffer. The tape base address is baked into the prologue as
// a 64-bit immediate, so one compiled buffer targets one tape.
type CodeBuilder struct {
	code     CodeBuffer
	tapeAddr uint64
	patches  []patchSite
}

func NewCodeBuilder(tapeAddr uint64) *CodeBuilder {
	return &CodeBuilder{tapeAddr: tapeAddr}
}

// Compile emits machine code for ops and returns the finished buffer.
// It refuses to produce a buffer when the brackets are unbalanced.
func (cb *CodeBuilder) Compile(ops []Op) ([]byte, error) {
	cb.emitPrologue()
	for _, op := range ops {
		if VerboseMode {
			fmt.Fprintf(os.Stderr, "\n%s:", op)
		}
		if err := cb.emitOp(op); err != nil {
			return nil, err
		}
	}
	if len(cb.patches) > 0 {
		site := cb.patches[len(cb.patches)-1]
		return nil, fmt.Errorf("%w at source offset %d", errUnmatchedLoopStart, site.srcPos)
	}

	// ret
	cb.code.Write(0xC3)
	if VerboseMode {
		fmt.Fprintln(os.Stderr)
	}
	return cb.code.Bytes(), nil
}

// emitPrologue loads the tape base into the data pointer register.
//
//	mov rdx, tapeAddr
func (cb *CodeBuilder) emitPrologue() {
	cb.code.WriteBytes(0x48, 0xBA)
	cb.code.Write8u(cb.tapeAddr)
}

func (cb *CodeBuilder) emitOp(op Op) error {
	switch op.Kind {
	case DataInc, DataDec, DpInc, DpDec:
		if op.Count < 1 || op.Count > MaxRunLength {
			return fmt.Errorf("run length %d out of range for '%c' at source offset %d",
				op.Count, byte(op.Kind), op.Pos)
		}
	}

	switch op.Kind {
	case DataInc:
		// add byte [rdx], imm8
		cb.code.WriteBytes(0x80, 0x02, byte(op.Count))
	case DataDec:
		// sub byte [rdx], imm8
		cb.code.WriteBytes(0x80, 0x2A, byte(op.Count))
	case DpInc:
		// add rdx, imm8
		cb.code.WriteBytes(0x48, 0x83, 0xC2, byte(op.Count))
	case DpDec:
		// sub rdx, imm8
		cb.code.WriteBytes(0x48, 0x83, 0xEA, byte(op.Count))
	case Input:
		cb.emitSyscall(sysRead, fdStdin)
	case Output:
		cb.emitSyscall(sysWrite, fdStdout)
	case LoopStart:
		cb.emitLoopStart(op)
	case LoopEnd:
		return cb.emitLoopEnd(op)
	}
	return nil
}

// emitSyscall emits a one-byte read or write against the current cell:
//
//	mov eax, number    ; sys_read / sys_write
//	mov edi, fd        ; stdin / stdout
//	mov rsi, rdx       ; buf: current cell
//	push rdx           ; the syscall wants rdx for its count argument
//	mov edx, 1         ; count: one byte
//	syscall
//	pop rdx
//
// The syscall's return value is ignored: on EOF a read transfers
// nothing and the cell keeps its previous value.
func (cb *CodeBuilder) emitSyscall(number, fd uint32) {
	cb.code.Write(0xB8)
	cb.code.Write4u(number)
	cb.code.Write(0xBF)
	cb.code.Write4u(fd)
	cb.code.WriteBytes(0x48, 0x89, 0xD6)
	cb.code.Write(0x52)
	cb.code.Write(0xBA)
	cb.code.Write4u(1)
	cb.code.WriteBytes(0x0F, 0x05)
	cb.code.Write(0x5A)
}

// emitLoopStart emits the zero test and a forward jump whose
// displacement the matching ']' fills in later:
//
//	cmp byte [rdx], 0
//	je <past the loop>    ; placeholder, patched by emitLoopEnd
func (cb *CodeBuilder) emitLoopStart(op Op) {
	cb.code.WriteBytes(0x80, 0x3A, 0x00)
	cb.code.WriteBytes(0x0F, 0x84)
	cb.patches = append(cb.patches, patchSite{offset: cb.code.Len(), srcPos: op.Pos})
	cb.code.Write4u(placeholder32)
}

// emitLoopEnd emits the zero test and the backward jump, then patches
// the matching '[':
//
//	cmp byte [rdx], 0
//	jne <start of loop body>
//
// Both rel32 displacements are measured from the end of their jump
// instruction. The forward jump targets the byte after the jne, the
// backward jump the byte after the je, so the two displacements are
// exact negations of each other.
func (cb *CodeBuilder) emitLoopEnd(op Op) error {
	if len(cb.patches) == 0 {
		return fmt.Errorf("%w at source offset %d", errUnmatchedLoopEnd, op.Pos)
	}
	site := cb.patches[len(cb.patches)-1]
	cb.patches = cb.patches[:len(cb.patches)-1]

	cb.code.WriteBytes(0x80, 0x3A, 0x00)
	cb.code.WriteBytes(0x0F, 0x85)
	back := int32(site.offset+4) - int32(cb.code.Len()+4)
	cb.code.Write4u(uint32(back))

	if got := cb.code.Uint32At(site.offset); got != placeholder32 {
		return fmt.Errorf("loop patch at offset %d holds %#08x, want the %#08x placeholder",
			site.offset, got, uint32(placeholder32))
	}
	cb.code.Patch4u(site.offset, uint32(-back))
	return nil
}
