// Package sysmem hands out anonymous memory regions for the heap's block
// pools and the pure arena.
//
// On unix platforms regions come straight from mmap, so releasing one
// returns the pages to the operating system immediately instead of waiting
// for the Go collector. Elsewhere regions degrade to ordinary slices with
// the same interface.
package sysmem

import "errors"

// Region is a single allocation obtained from Map. The backing bytes stay
// valid until Unmap; touching them afterwards faults on mmap platforms.
type Region struct {
	data    []byte
	release func([]byte) error
}

// ErrClosed is returned when a region is unmapped twice.
var ErrClosed = errors.New("sysmem: region already unmapped")

// Bytes returns the region's backing storage.
func (r *Region) Bytes() []byte { return r.data }

// Len returns the usable size in bytes.
func (r *Region) Len() int { return len(r.data) }

// Unmap releases the region. The caller must drop every slice derived from
// Bytes before calling.
func (r *Region) Unmap() error {
	if r.data == nil {
		return ErrClosed
	}
	data := r.data
	r.data = nil
	if r.release == nil {
		return nil
	}
	return r.release(data)
}
