//go:build windows

package fibermill

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func unsafeSliceFromPointer(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// platformCreateStackMemory reserves+commits size bytes plus one leading
// guard page via VirtualAlloc, then VirtualProtects the guard page to
// PAGE_NOACCESS.
func platformCreateStackMemory(size int) (*stackMemory, error) {
	total := pageSize + roundUpToPage(size)
	addr, err := windows.VirtualAlloc(0, uintptr(total), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, wrapf(ErrStackCreateFailed, "VirtualAlloc %d bytes: %v", total, err)
	}
	region := unsafeSliceFromPointer(addr, total)

	var oldProtect uint32
	if err := windows.VirtualProtect(addr, uintptr(pageSize), windows.PAGE_NOACCESS, &oldProtect); err != nil {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return nil, wrapf(ErrStackCreateFailed, "VirtualProtect guard page: %v", err)
	}
	usable := region[pageSize:]
	for i := 0; i < len(usable); i += pageSize {
		usable[i] = 0
	}
	return &stackMemory{region: region, usable: usable}, nil
}

func platformDestroyStackMemory(m *stackMemory) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(m.region)))
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("fibermill: VirtualFree stack: %w", err)
	}
	return nil
}

func roundUpToPage(n int) int {
	if n%pageSize == 0 {
		return n
	}
	return (n/pageSize + 1) * pageSize
}
