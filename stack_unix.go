//go:build unix

package fibermill

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// platformCreateStackMemory mmaps size bytes plus one leading guard page,
// mprotects the guard page to PROT_NONE, and pre-faults the usable region
// by touching its first byte per OS page.
func platformCreateStackMemory(size int) (*stackMemory, error) {
	total := pageSize + roundUpToPage(size)
	region, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, wrapf(ErrStackCreateFailed, "mmap %d bytes: %v", total, err)
	}
	if err := unix.Mprotect(region[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(region)
		return nil, wrapf(ErrStackCreateFailed, "mprotect guard page: %v", err)
	}
	usable := region[pageSize:]
	for i := 0; i < len(usable); i += pageSize {
		usable[i] = 0
	}
	return &stackMemory{region: region, usable: usable}, nil
}

func platformDestroyStackMemory(m *stackMemory) error {
	if err := unix.Munmap(m.region); err != nil {
		return fmt.Errorf("fibermill: munmap stack: %w", err)
	}
	return nil
}

func roundUpToPage(n int) int {
	if n%pageSize == 0 {
		return n
	}
	return (n/pageSize + 1) * pageSize
}
