// Completion: 100% - Utility module complete
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// CodeBuffer accumulates little-endian x86-64 machine code. When
// VerboseMode is set every byte is traced to stderr as it is written,
// which makes it easy to diff the generated code against nasm output.
type CodeBuffer struct {
	buf bytes.Buffer
}

func (cb *CodeBuffer) Write(b byte) int {
	cb.buf.WriteByte(b)
	if VerboseMode {
		fmt.Fprintf(os.Stderr, " %02x", b)
	}
	return 1
}

func (cb *CodeBuffer) WriteBytes(bs ...byte) int {
	for _, b := range bs {
		cb.Write(b)
	}
	return len(bs)
}

func (cb *CodeBuffer) Write4u(v uint32) int {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	return cb.WriteBytes(scratch[:]...)
}

func (cb *CodeBuffer) Write8u(v uint64) int {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], v)
	return cb.WriteBytes(scratch[:]...)
}

// Patch4u overwrites four already-written bytes at offset with the
// little-endian encoding of v.
func (cb *CodeBuffer) Patch4u(offset int, v uint32) {
	binary.LittleEndian.PutUint32(cb.buf.Bytes()[offset:], v)
}

// Uint32At reads back four little-endian bytes at offset.
func (cb *CodeBuffer) Uint32At(offset int) uint32 {
	return binary.LittleEndian.Uint32(cb.buf.Bytes()[offset:])
}

func (cb *CodeBuffer) Len() int {
	return cb.buf.Len()
}

func (cb *CodeBuffer) Bytes() []byte {
	return cb.buf.Bytes()
}
