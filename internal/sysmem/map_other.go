//go:build !unix

package sysmem

import "fmt"

// Map falls back to plain Go allocation on platforms without mmap. The
// region contract is identical apart from release timing.
func Map(n int) (*Region, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sysmem: invalid map size %d", n)
	}
	return &Region{data: make([]byte, n)}, nil
}
