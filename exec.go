// Completion: 100% - Platform-specific module complete
package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// exec.go - executable memory management and the jump into generated code

// Execute maps an anonymous private RWX region, copies the compiled
// buffer into it, calls its start as a function taking and returning
// nothing, and releases the mapping once the generated ret brings
// control back. The mapping is rounded up to a whole page.
//
// There is no sandbox here: the buffer is trusted to be well-formed
// x86-64 code that returns with the callee-saved registers intact.
func Execute(code []byte) error {
	pageSize := unix.Getpagesize()
	size := (len(code) + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return fmt.Errorf("mmap of %d rwx bytes failed: %w", size, err)
	}
	defer unix.Munmap(mem)

	copy(mem, code)
	jump(mem)
	return nil
}

// jump transfers control to the start of mem. A Go func value is a
// pointer to a code pointer; the address of the slice header doubles
// as that indirection because the header's first word is the data
// pointer.
func jump(mem []byte) {
	type program func()
	addr := uintptr(unsafe.Pointer(&mem))
	fn := *(*program)(unsafe.Pointer(&addr))
	fn()
}
