package heap

import (
	"bytes"
	"encoding/binary"
	"math"
	"math/big"

	"github.com/joshuapare/heapkit/heap/value"
	"github.com/joshuapare/heapkit/internal/strenc"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

// Pure storage holds objects that live for the whole process: shared
// structure built during bootstrap that no collection ever needs to trace
// or sweep. Records are encoded straight into a byte region; record words
// grow from the front, string payloads from the back, like two stacks.
//
// If the region fills up, an emergency region is chained on so bootstrap
// can finish, but collection is disabled from then on: classification
// cannot vouch for objects allocated while the arena was overflowing.
const emergencyPureBytes = 64 << 10

type pureRegion struct {
	region   *sysmem.Region
	buf      []byte
	vbase    uint64
	lispUsed int // record words, bumping up from 0
	dataUsed int // payload bytes, bumping down from the end
}

func (r *pureRegion) gap() int { return len(r.buf) - r.lispUsed - r.dataUsed }

type pureArena struct {
	regions    []*pureRegion
	nextBase   uint64
	overflowed bool
}

func newPureArena(size int) (*pureArena, error) {
	p := &pureArena{nextBase: pureBase}
	if err := p.addRegion(size); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pureArena) addRegion(size int) error {
	if p.nextBase+uint64(size) > heapBase {
		return ErrMemoryFull
	}
	region, err := sysmem.Map(size)
	if err != nil {
		return err
	}
	p.regions = append(p.regions, &pureRegion{
		region: region,
		buf:    region.Bytes(),
		vbase:  p.nextBase,
	})
	p.nextBase += (uint64(size) + blockBytes - 1) &^ (blockBytes - 1)
	return nil
}

func (p *pureArena) contains(addr uint64) bool {
	for _, r := range p.regions {
		if addr-r.vbase < uint64(len(r.buf)) {
			return true
		}
	}
	return false
}

func (p *pureArena) at(addr uint64) (*pureRegion, int) {
	for _, r := range p.regions {
		if off := addr - r.vbase; off < uint64(len(r.buf)) {
			return r, int(off)
		}
	}
	fatalf("pure reference %#x outside pure storage", addr)
	return nil, 0
}

func (p *pureArena) cur() *pureRegion { return p.regions[len(p.regions)-1] }

// allocLisp reserves n bytes of record space, 8-aligned, from the front.
func (p *pureArena) allocLisp(n int) (uint64, []byte, bool) {
	r := p.cur()
	n8 := (n + 7) &^ 7
	if n8 > r.gap() {
		return 0, nil, false
	}
	off := r.lispUsed
	r.lispUsed += n8
	return r.vbase + uint64(off), r.buf[off : off+n], true
}

// allocData reserves n payload bytes from the back.
func (p *pureArena) allocData(n int) (uint64, []byte, bool) {
	r := p.cur()
	if n > r.gap() {
		return 0, nil, false
	}
	r.dataUsed += n
	off := len(r.buf) - r.dataUsed
	return r.vbase + uint64(off), r.buf[off : off+n], true
}

// findData searches existing payloads for b, so identical contents are
// stored once. Any byte-equal run qualifies: payloads are immutable and
// carry their length in the owning header.
func (p *pureArena) findData(b []byte) (uint64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	for _, r := range p.regions {
		data := r.buf[len(r.buf)-r.dataUsed:]
		if i := bytes.Index(data, b); i >= 0 {
			return r.vbase + uint64(len(r.buf)-r.dataUsed+i), true
		}
	}
	return 0, false
}

func (p *pureArena) readValue(addr uint64) value.Value {
	r, off := p.at(addr)
	return value.Value(binary.LittleEndian.Uint64(r.buf[off:]))
}

func (p *pureArena) writeValue(buf []byte, i int, v value.Value) {
	binary.LittleEndian.PutUint64(buf[i*wordBytes:], uint64(v))
}

// readString decodes a pure string header: character count, payload view,
// multibyte flag.
func (p *pureArena) readString(addr uint64) (int64, []byte, bool) {
	r, off := p.at(addr)
	chars := int64(binary.LittleEndian.Uint64(r.buf[off:]))
	byteLen := int64(binary.LittleEndian.Uint64(r.buf[off+8:]))
	pv := binary.LittleEndian.Uint64(r.buf[off+16:])
	n := byteLen
	if byteLen < 0 {
		n = chars
	}
	if n == 0 {
		return chars, nil, byteLen >= 0
	}
	pr, poff := p.at(pv)
	return chars, pr.buf[poff : poff+int(n)], byteLen >= 0
}

func (p *pureArena) used() (lisp, data int) {
	for _, r := range p.regions {
		lisp += r.lispUsed
		data += r.dataUsed
	}
	return lisp, data
}

// pureGrow retries a failed pure allocation by chaining the emergency
// region. Collection stays off afterwards.
func (h *Heap) pureGrow() error {
	if err := h.pure.addRegion(emergencyPureBytes); err != nil {
		h.memoryFull = true
		return ErrMemoryFull
	}
	if !h.pure.overflowed {
		h.pure.overflowed = true
		debugLogf("pure storage overflow: collection disabled")
	}
	return nil
}

func (h *Heap) pureAllocLisp(n int) (uint64, []byte, error) {
	addr, buf, ok := h.pure.allocLisp(n)
	if !ok {
		if err := h.pureGrow(); err != nil {
			return 0, nil, err
		}
		addr, buf, ok = h.pure.allocLisp(n)
		if !ok {
			h.memoryFull = true
			return 0, nil, ErrMemoryFull
		}
	}
	return addr, buf, nil
}

func (h *Heap) pureAllocData(b []byte) (uint64, error) {
	if addr, ok := h.pure.findData(b); ok {
		return addr, nil
	}
	addr, buf, ok := h.pure.allocData(len(b))
	if !ok {
		if err := h.pureGrow(); err != nil {
			return 0, err
		}
		addr, buf, ok = h.pure.allocData(len(b))
		if !ok {
			h.memoryFull = true
			return 0, ErrMemoryFull
		}
	}
	copy(buf, b)
	return addr, nil
}

func (h *Heap) purePair(car, cdr value.Value) (value.Value, error) {
	addr, buf, err := h.pureAllocLisp(2 * wordBytes)
	if err != nil {
		return value.Nil, err
	}
	h.pure.writeValue(buf, 0, car)
	h.pure.writeValue(buf, 1, cdr)
	return value.FromAddr(value.TagPair, addr), nil
}

func (h *Heap) pureFloat(f value.Value) (value.Value, error) {
	addr, buf, err := h.pureAllocLisp(wordBytes)
	if err != nil {
		return value.Nil, err
	}
	b, i := h.floatAt(f.Addr())
	h.pure.writeValue(buf, 0, value.Value(math.Float64bits(b.cells[i])))
	return value.FromAddr(value.TagFloat, addr), nil
}

func (h *Heap) pureString(chars, byteLenRaw int64, payload []byte) (value.Value, error) {
	pv := uint64(0)
	if len(payload) > 0 {
		var err error
		pv, err = h.pureAllocData(payload)
		if err != nil {
			return value.Nil, err
		}
	}
	addr, buf, err := h.pureAllocLisp(3 * wordBytes)
	if err != nil {
		return value.Nil, err
	}
	binary.LittleEndian.PutUint64(buf[0:], uint64(chars))
	binary.LittleEndian.PutUint64(buf[8:], uint64(byteLenRaw))
	binary.LittleEndian.PutUint64(buf[16:], pv)
	return value.FromAddr(value.TagString, addr), nil
}

func (h *Heap) pureAllocVector(kind VecKind, slots []value.Value, extra int) (value.Value, error) {
	total := 1 + len(slots) + extra
	addr, buf, err := h.pureAllocLisp(total * wordBytes)
	if err != nil {
		return value.Nil, err
	}
	h.pure.writeValue(buf, 0, value.Value(vecHeader(kind, len(slots), extra)))
	for i, s := range slots {
		h.pure.writeValue(buf, 1+i, s)
	}
	return value.FromAddr(value.TagVector, addr), nil
}

// MakePureString interns s directly into pure storage, sharing payload
// bytes with any existing pure string that already contains them.
func (h *Heap) MakePureString(s string) (value.Value, error) {
	b := []byte(s)
	return h.pureString(int64(strenc.RuneCount(b)), int64(len(b)), b)
}

// PureCopy returns a pure equivalent of v, deeply copying pairs, strings,
// floats and vectors. Symbols are pinned in place rather than copied, so
// their identity survives; records with side state (hash tables, user
// data, finalizers) are likewise pinned. Results are cached: copying the
// same object twice yields the same pure value. After SealPure, PureCopy
// returns v unchanged.
func (h *Heap) PureCopy(v value.Value) (value.Value, error) {
	if h.pureSealed {
		return v, nil
	}
	if v.Immediate() || h.pure.contains(v.Addr()) {
		return v, nil
	}
	if pv, ok := h.pureTable[v]; ok {
		return pv, nil
	}

	var pv value.Value
	var err error
	switch v.Tag() {
	case value.TagPair:
		var car, cdr value.Value
		if car, err = h.PureCopy(h.Car(v)); err != nil {
			return value.Nil, err
		}
		if cdr, err = h.PureCopy(h.Cdr(v)); err != nil {
			return value.Nil, err
		}
		pv, err = h.purePair(car, cdr)

	case value.TagFloat:
		pv, err = h.pureFloat(v)

	case value.TagString:
		c := h.strCell(v)
		pv, err = h.pureString(c.charLen, c.byteLen, c.data.Bytes())

	case value.TagSymbol:
		// Symbols keep their identity; pin so every cycle marks them.
		h.pinSymbol(v)
		return v, nil

	case value.TagVector:
		pv, err = h.pureCopyVector(v)

	default:
		fatalf("purecopy of %s", v.String())
	}
	if err != nil {
		return value.Nil, err
	}
	h.pureTable[v] = pv
	return pv, nil
}

func (h *Heap) pureCopyVector(v value.Value) (value.Value, error) {
	kind := h.VectorKind(v)
	switch kind {
	case VecHashTable, VecUserData, VecFinalizer:
		// Not copyable; keep the original alive forever instead.
		h.pinObject(v)
		return v, nil

	case VecBignum:
		pv, err := h.pureAllocVector(VecBignum, nil, 1)
		if err != nil {
			return value.Nil, err
		}
		h.bignums[pv.Addr()] = new(big.Int).Set(h.BignumVal(v))
		return pv, nil
	}

	n := h.VectorLen(v)
	extra := h.VectorExtraWords(v)
	slots := make([]value.Value, n)
	for i := 0; i < n; i++ {
		pv, err := h.PureCopy(h.ARef(v, i))
		if err != nil {
			return value.Nil, err
		}
		slots[i] = pv
	}
	pv, err := h.pureAllocVector(kind, slots, extra)
	if err != nil {
		return value.Nil, err
	}
	for i := 0; i < extra; i++ {
		h.pureSetWord(pv, 1+n+i, h.VectorWord(v, i))
	}
	return pv, nil
}

// pureSetWord pokes a word of a pure record during its construction.
func (h *Heap) pureSetWord(v value.Value, word int, w uint64) {
	r, off := h.pure.at(v.Addr())
	binary.LittleEndian.PutUint64(r.buf[off+word*wordBytes:], w)
}

// pinObject keeps v reachable forever without copying it.
func (h *Heap) pinObject(v value.Value) {
	for _, o := range h.pinnedObjs {
		if o == v {
			return
		}
	}
	h.pinnedObjs = append(h.pinnedObjs, v)
}

// SealPure ends the bootstrap phase: the copy cache is dropped and later
// PureCopy calls become identity.
func (h *Heap) SealPure() {
	h.pureSealed = true
	h.pureTable = nil
}

// PureOverflowed reports whether pure storage spilled into its emergency
// region, which permanently disables collection.
func (h *Heap) PureOverflowed() bool { return h.pure.overflowed }
