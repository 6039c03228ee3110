package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

const testTapeAddr = 0x7f00_0000_1000

// prologueSize is the mov rdx, imm64 the emitter always starts with.
const prologueSize = 10

func compileSource(t *testing.T, src string) []byte {
	t.Helper()
	code, err := NewCodeBuilder(testTapeAddr).Compile(Fold(src))
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", src, err)
	}
	return code
}

// body strips the prologue and the final ret.
func body(code []byte) []byte {
	return code[prologueSize : len(code)-1]
}

func TestCompilePrologueAndEpilogue(t *testing.T) {
	code := compileSource(t, "")
	if len(code) != prologueSize+1 {
		t.Fatalf("empty program compiled to %d bytes, want %d", len(code), prologueSize+1)
	}
	if code[0] != 0x48 || code[1] != 0xBA {
		t.Errorf("prologue starts %x %x, want 48 ba (mov rdx, imm64)", code[0], code[1])
	}
	if addr := binary.LittleEndian.Uint64(code[2:10]); addr != testTapeAddr {
		t.Errorf("baked tape address = %#x, want %#x", addr, uint64(testTapeAddr))
	}
	if code[len(code)-1] != 0xC3 {
		t.Errorf("last byte = %#x, want c3 (ret)", code[len(code)-1])
	}
}

func TestCompileArithmeticEncodings(t *testing.T) {
	cases := []struct {
		src  string
		want []byte
	}{
		{"+", []byte{0x80, 0x02, 0x01}},
		{"-", []byte{0x80, 0x2A, 0x01}},
		{">", []byte{0x48, 0x83, 0xC2, 0x01}},
		{"<", []byte{0x48, 0x83, 0xEA, 0x01}},
		{"+++", []byte{0x80, 0x02, 0x03}},
		{"<<", []byte{0x48, 0x83, 0xEA, 0x02}},
	}
	for _, c := range cases {
		got := body(compileSource(t, c.src))
		if !bytes.Equal(got, c.want) {
			t.Errorf("Compile(%q) body = % x, want % x", c.src, got, c.want)
		}
	}
}

func TestCompileSyscallSequences(t *testing.T) {
	output := []byte{
		0xB8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1 (sys_write)
		0xBF, 0x01, 0x00, 0x00, 0x00, // mov edi, 1 (stdout)
		0x48, 0x89, 0xD6, // mov rsi, rdx
		0x52,                         // push rdx
		0xBA, 0x01, 0x00, 0x00, 0x00, // mov edx, 1
		0x0F, 0x05, // syscall
		0x5A, // pop rdx
	}
	if got := body(compileSource(t, ".")); !bytes.Equal(got, output) {
		t.Errorf("Compile(\".\") body = % x, want % x", got, output)
	}

	input := append([]byte{}, output...)
	input[1] = 0x00 // sys_read
	input[6] = 0x00 // stdin
	if got := body(compileSource(t, ",")); !bytes.Equal(got, input) {
		t.Errorf("Compile(\",\") body = % x, want % x", got, input)
	}
}

func jumpDisplacements(t *testing.T, code []byte, jeDispOff, jneDispOff int) (int32, int32) {
	t.Helper()
	je := int32(binary.LittleEndian.Uint32(code[jeDispOff:]))
	jne := int32(binary.LittleEndian.Uint32(code[jneDispOff:]))
	return je, jne
}

func TestCompileEmptyLoopDisplacements(t *testing.T) {
	code := compileSource(t, "[]")
	want := []byte{
		0x80, 0x3A, 0x00, // cmp byte [rdx], 0
		0x0F, 0x84, 0x09, 0x00, 0x00, 0x00, // je +9
		0x80, 0x3A, 0x00, // cmp byte [rdx], 0
		0x0F, 0x85, 0xF7, 0xFF, 0xFF, 0xFF, // jne -9
	}
	if got := body(code); !bytes.Equal(got, want) {
		t.Fatalf("Compile(\"[]\") body = % x, want % x", got, want)
	}

	je, jne := jumpDisplacements(t, code, prologueSize+5, prologueSize+14)
	if je != 9 || jne != -9 {
		t.Errorf("displacements = %d, %d, want 9, -9", je, jne)
	}
}

func TestCompileLoopBodyDisplacements(t *testing.T) {
	// "[+]": the 3-byte add sits between the jumps.
	code := compileSource(t, "[+]")
	je, jne := jumpDisplacements(t, code, prologueSize+5, prologueSize+5+4+3+5)
	if je != 12 || jne != -12 {
		t.Errorf("displacements = %d, %d, want 12, -12", je, jne)
	}
}

func TestCompileNestedLoopDisplacements(t *testing.T) {
	code := compileSource(t, "[[]]")
	// Outer je placeholder at prologue+5, inner at prologue+9+5.
	outerJe := int32(binary.LittleEndian.Uint32(code[prologueSize+5:]))
	innerJe := int32(binary.LittleEndian.Uint32(code[prologueSize+9+5:]))
	innerJne := int32(binary.LittleEndian.Uint32(code[prologueSize+9+9+5:]))
	outerJne := int32(binary.LittleEndian.Uint32(code[prologueSize+9+9+9+5:]))

	if innerJe != 9 || innerJne != -9 {
		t.Errorf("inner displacements = %d, %d, want 9, -9", innerJe, innerJne)
	}
	if outerJe != 27 || outerJne != -27 {
		t.Errorf("outer displacements = %d, %d, want 27, -27", outerJe, outerJne)
	}
}

func TestCompileUnmatchedLoopEnd(t *testing.T) {
	code, err := NewCodeBuilder(testTapeAddr).Compile(Fold("]"))
	if !errors.Is(err, errUnmatchedLoopEnd) {
		t.Fatalf("Compile(\"]\") error = %v, want errUnmatchedLoopEnd", err)
	}
	if code != nil {
		t.Errorf("Compile(\"]\") still produced %d bytes of code", len(code))
	}
	if !strings.Contains(err.Error(), "offset 0") {
		t.Errorf("error %q does not name source offset 0", err)
	}
}

func TestCompileUnmatchedLoopStart(t *testing.T) {
	code, err := NewCodeBuilder(testTapeAddr).Compile(Fold("+["))
	if !errors.Is(err, errUnmatchedLoopStart) {
		t.Fatalf("Compile(\"+[\") error = %v, want errUnmatchedLoopStart", err)
	}
	if code != nil {
		t.Errorf("Compile(\"+[\") still produced %d bytes of code", len(code))
	}
	if !strings.Contains(err.Error(), "offset 1") {
		t.Errorf("error %q does not name source offset 1", err)
	}
}

func TestCompileRunLengthRange(t *testing.T) {
	for _, count := range []int{0, -1, 128, 300} {
		_, err := NewCodeBuilder(testTapeAddr).Compile([]Op{{Kind: DataInc, Count: count}})
		if err == nil {
			t.Errorf("Compile accepted run length %d", count)
		}
	}
}

func TestLoopPlaceholderBytes(t *testing.T) {
	cb := NewCodeBuilder(testTapeAddr)
	cb.emitLoopStart(Op{Kind: LoopStart, Count: 1})
	code := cb.code.Bytes()
	n := len(code)
	// Little-endian 0x12345678, same placeholder scheme as call patching.
	if code[n-4] != 0x78 || code[n-3] != 0x56 || code[n-2] != 0x34 || code[n-1] != 0x12 {
		t.Errorf("Expected placeholder 78 56 34 12, got % x", code[n-4:])
	}
}
