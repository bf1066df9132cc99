//go:build unix

package sysmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Map obtains n bytes of zeroed anonymous memory.
func Map(n int) (*Region, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sysmem: invalid map size %d", n)
	}
	data, err := unix.Mmap(-1, 0, n,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("sysmem: map %d bytes: %w", n, err)
	}
	return &Region{data: data[:n], release: unmap}, nil
}

func unmap(data []byte) error {
	if err := unix.Munmap(data[:cap(data)]); err != nil {
		return fmt.Errorf("sysmem: unmap: %w", err)
	}
	return nil
}
