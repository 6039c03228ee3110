package main

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble renders a compiled buffer as a listing, one instruction
// per line with its offset and raw bytes. Bytes the decoder rejects
// come out as `db` lines so the listing always covers the whole
// buffer.
func Disassemble(code []byte) string {
	var sb strings.Builder
	offset := 0

	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			sb.WriteString(fmt.Sprintf("0x%04x: db 0x%02x\n", offset, code[offset]))
			offset++
			continue
		}

		var hexBytes []string
		for i := 0; i < inst.Len; i++ {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", code[offset+i]))
		}
		sb.WriteString(fmt.Sprintf(
			"0x%04x: %-29s %s\n",
			offset,
			strings.Join(hexBytes, " "),
			inst.String(),
		))

		offset += inst.Len
	}
	return sb.String()
}
