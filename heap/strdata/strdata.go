package strdata

import (
	"encoding/binary"
	"fmt"

	"github.com/joshuapare/heapkit/internal/sysmem"
)

const (
	// SlabBytes is the size of a shared payload slab.
	SlabBytes = 8 << 10

	// LargeBytes is the payload size at which a string stops sharing
	// slabs and gets a dedicated one. Dedicated payloads never move.
	LargeBytes = 1 << 10

	// Each payload is preceded by a 16-byte header: the owning string's
	// virtual address (0 while free) and the payload length in bytes.
	headerBytes = 16

	payloadAlign = 8
)

func roundUp(n int) int { return (n + payloadAlign - 1) &^ (payloadAlign - 1) }

// occupied returns the slab bytes a payload of n bytes consumes.
func occupied(n int) int { return headerBytes + roundUp(n) }

type slab struct {
	region *sysmem.Region
	buf    []byte
	used   int
	next   *slab
	large  bool
}

// Ref locates one payload. The zero Ref refers to nothing. Pinned payloads
// live in an external buffer instead of a slab and are immune to
// compaction.
type Ref struct {
	s   *slab
	off int32
	ext []byte
}

// IsZero reports whether r refers to no payload.
func (r Ref) IsZero() bool { return r.s == nil && r.ext == nil }

// Bytes returns the payload storage. The slice is invalidated by the next
// Compact unless the payload is pinned or lives in a dedicated slab.
func (r Ref) Bytes() []byte {
	if r.ext != nil {
		return r.ext
	}
	n := r.Nbytes()
	return r.s.buf[int(r.off)+headerBytes : int(r.off)+headerBytes+n]
}

// Nbytes returns the payload length.
func (r Ref) Nbytes() int {
	if r.ext != nil {
		return len(r.ext)
	}
	return int(binary.LittleEndian.Uint64(r.s.buf[r.off+8:]))
}

// Owner returns the virtual address of the string owning this payload, or
// 0 when the payload has been released.
func (r Ref) Owner() uint64 {
	if r.ext != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(r.s.buf[r.off:])
}

// Manager owns every string payload. Small payloads share append-only
// slabs that Compact slides together; payloads of LargeBytes or more get a
// dedicated slab returned to the system as soon as the owner dies.
//
// Not safe for concurrent use.
type Manager struct {
	oldest  *slab // shared slabs, oldest first; compaction order
	current *slab
	large   *slab // dedicated slabs
	slabs   int
	mapped  int64
	inUse   int64 // live payload bytes, headers excluded
}

// NewManager returns an empty payload store.
func NewManager() *Manager { return &Manager{} }

// Alloc reserves nbytes of payload owned by the string at owner. The
// returned payload is zeroed.
func (m *Manager) Alloc(owner uint64, nbytes int) (Ref, error) {
	if nbytes < 0 {
		return Ref{}, fmt.Errorf("strdata: negative payload size %d", nbytes)
	}
	if owner == 0 {
		return Ref{}, fmt.Errorf("strdata: payload needs an owner")
	}
	need := occupied(nbytes)

	if nbytes >= LargeBytes {
		region, err := sysmem.Map(need)
		if err != nil {
			return Ref{}, err
		}
		s := &slab{region: region, buf: region.Bytes(), used: need, next: m.large, large: true}
		m.large = s
		m.slabs++
		m.mapped += int64(need)
		m.inUse += int64(nbytes)
		writeHeader(s, 0, owner, nbytes)
		return Ref{s: s, off: 0}, nil
	}

	s := m.current
	if s == nil || s.used+need > SlabBytes {
		region, err := sysmem.Map(SlabBytes)
		if err != nil {
			return Ref{}, err
		}
		s = &slab{region: region, buf: region.Bytes()}
		if m.current == nil {
			m.oldest = s
		} else {
			m.current.next = s
		}
		m.current = s
		m.slabs++
		m.mapped += SlabBytes
	}
	off := s.used
	s.used += need
	writeHeader(s, off, owner, nbytes)
	m.inUse += int64(nbytes)
	return Ref{s: s, off: int32(off)}, nil
}

// Release marks the payload dead. Slab storage is reclaimed by the next
// Compact; pinned payloads are dropped for the Go collector.
func (m *Manager) Release(r Ref) {
	if r.ext != nil || r.IsZero() {
		return
	}
	m.inUse -= int64(r.Nbytes())
	binary.LittleEndian.PutUint64(r.s.buf[r.off:], 0)
}

// Pin returns a Ref whose payload will never move. Payloads in dedicated
// slabs are already immobile; shared-slab payloads are copied out and their
// slab space released.
func (m *Manager) Pin(r Ref) Ref {
	if r.ext != nil || r.s.large {
		return r
	}
	ext := make([]byte, r.Nbytes())
	copy(ext, r.Bytes())
	m.Release(r)
	m.inUse += int64(len(ext))
	return Ref{ext: ext}
}

// Compact reclaims dead payload space. Dedicated slabs whose owner died
// are unmapped; shared slabs are walked oldest to newest, sliding each
// live payload down over the dead ones. moved is called for every payload
// that changed location so owners can be repointed; it runs before the
// compaction returns and must not allocate payloads.
func (m *Manager) Compact(moved func(owner uint64, r Ref)) {
	var keep *slab
	for s := m.large; s != nil; {
		next := s.next
		if binary.LittleEndian.Uint64(s.buf[:8]) == 0 {
			m.mapped -= int64(len(s.buf))
			m.slabs--
			s.buf = nil
			s.region.Unmap()
		} else {
			s.next = keep
			keep = s
		}
		s = next
	}
	m.large = keep

	tb := m.oldest
	if tb == nil {
		return
	}
	toOff := 0
	for fb := m.oldest; fb != nil; fb = fb.next {
		fromOff := 0
		for fromOff < fb.used {
			owner := binary.LittleEndian.Uint64(fb.buf[fromOff:])
			nbytes := int(binary.LittleEndian.Uint64(fb.buf[fromOff+8:]))
			size := occupied(nbytes)
			if owner != 0 {
				if toOff+size > SlabBytes {
					tb.used = toOff
					tb = tb.next
					toOff = 0
				}
				if fb != tb || fromOff != toOff {
					copy(tb.buf[toOff:toOff+size], fb.buf[fromOff:fromOff+size])
					moved(owner, Ref{s: tb, off: int32(toOff)})
				}
				toOff += size
			}
			fromOff += size
		}
	}
	tb.used = toOff
	m.current = tb
	for s := tb.next; s != nil; {
		next := s.next
		m.mapped -= SlabBytes
		m.slabs--
		s.buf = nil
		s.region.Unmap()
		s = next
	}
	tb.next = nil
}

// Stats reports slab count, mapped bytes and live payload bytes.
func (m *Manager) Stats() (slabs int, mapped, inUse int64) {
	return m.slabs, m.mapped, m.inUse
}

func writeHeader(s *slab, off int, owner uint64, nbytes int) {
	binary.LittleEndian.PutUint64(s.buf[off:], owner)
	binary.LittleEndian.PutUint64(s.buf[off+8:], uint64(nbytes))
}
