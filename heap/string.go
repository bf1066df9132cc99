package heap

import (
	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/strdata"
	"github.com/joshuapare/heapkit/heap/value"
	"github.com/joshuapare/heapkit/internal/strenc"
)

const (
	stringSize   = 4 * wordBytes
	blockStrings = blockBytes / stringSize

	// MaxStringBytes bounds the contents of a single string.
	MaxStringBytes = int64(1)<<31 - 1
)

// stringCell is a string header. The payload lives in the strdata pool;
// data is the zero Ref exactly while the cell is free, which is also what
// the conservative scanner keys on.
type stringCell struct {
	charLen int64 // characters
	byteLen int64 // bytes, or -1 for byte strings (bytes == chars)
	data    strdata.Ref
	ivs     Interval
	pinned  bool
	marked  bool
}

func (c *stringCell) bytesLen() int64 {
	if c.byteLen < 0 {
		return c.charLen
	}
	return c.byteLen
}

type stringBlock struct {
	base  uint64
	cells [blockStrings]stringCell
	next  *stringBlock
}

func (h *Heap) newStringBlock() error {
	if err := h.chargeBlock(blockBytes); err != nil {
		return err
	}
	b := &stringBlock{
		base: h.reserveRange(blockBytes, blockBytes),
		next: h.strBlock,
	}
	h.strBlocks[b.base] = b
	h.index.Insert(b.base, b.base+blockBytes, memindex.StringBlock, b)
	h.strBlock = b
	// Every cell goes straight onto the free chain, lowest address first.
	// The string pool has no fill cursor; a free cell is exactly one whose
	// data is the zero Ref.
	for i := blockStrings - 1; i >= 0; i-- {
		b.cells[i].charLen = int64(h.strFree)
		h.strFree = b.base + uint64(i)*stringSize
	}
	return nil
}

func (h *Heap) stringAt(addr uint64) (*stringBlock, int) {
	b := h.strBlocks[addr&^(blockBytes-1)]
	if b == nil {
		fatalf("string reference %#x outside any string block", addr)
	}
	off := addr - b.base
	if off%stringSize != 0 {
		fatalf("misaligned string reference %#x", addr)
	}
	return b, int(off / stringSize)
}

func (h *Heap) strCell(v value.Value) *stringCell {
	if !v.IsString() {
		panic("heap: string accessor on " + v.String())
	}
	b, i := h.stringAt(v.Addr())
	return &b.cells[i]
}

func (h *Heap) allocStringCell() (uint64, error) {
	if h.strFree == 0 {
		if err := h.newStringBlock(); err != nil {
			return 0, err
		}
	}
	addr := h.strFree
	b, i := h.stringAt(addr)
	h.strFree = uint64(b.cells[i].charLen)
	return addr, nil
}

func (h *Heap) releaseStringCell(addr uint64) {
	b, i := h.stringAt(addr)
	b.cells[i] = stringCell{charLen: int64(h.strFree)}
	h.strFree = addr
}

func (h *Heap) makeStr(contents []byte, chars int64, multibyte bool) (value.Value, error) {
	if int64(len(contents)) > MaxStringBytes {
		return value.Nil, ErrStringTooLarge
	}
	addr, err := h.allocStringCell()
	if err != nil {
		return value.Nil, err
	}
	ref, err := h.strs.Alloc(addr, len(contents))
	if err != nil {
		h.releaseStringCell(addr)
		h.memoryFull = true
		debugLogf("payload allocation failed: %v", err)
		return value.Nil, ErrMemoryFull
	}
	copy(ref.Bytes(), contents)

	b, i := h.stringAt(addr)
	byteLen := int64(len(contents))
	if !multibyte {
		byteLen = -1
	}
	b.cells[i] = stringCell{charLen: chars, byteLen: byteLen, data: ref}

	h.stringsMade++
	h.stringCharsMade += chars
	h.tally(stringSize + int64(len(contents)))
	return value.FromAddr(value.TagString, addr), nil
}

// MakeString allocates a character string from UTF-8 text.
func (h *Heap) MakeString(s string) (value.Value, error) {
	return h.makeStr([]byte(s), int64(strenc.RuneCount([]byte(s))), true)
}

// MakeStringBytes allocates a byte string holding b verbatim.
func (h *Heap) MakeStringBytes(b []byte) (value.Value, error) {
	return h.makeStr(b, int64(len(b)), false)
}

// MakeStringLatin1 promotes Latin-1 octets to a character string.
func (h *Heap) MakeStringLatin1(b []byte) (value.Value, error) {
	utf, chars, err := strenc.PromoteLatin1(b)
	if err != nil {
		return value.Nil, err
	}
	return h.makeStr(utf, int64(chars), true)
}

// StringChars returns the character count of string v.
func (h *Heap) StringChars(v value.Value) int64 {
	if h.pure.contains(v.Addr()) {
		if !v.IsString() {
			panic("heap: string accessor on " + v.String())
		}
		chars, _, _ := h.pure.readString(v.Addr())
		return chars
	}
	return h.strCell(v).charLen
}

// StringBytesLen returns the byte count of string v.
func (h *Heap) StringBytesLen(v value.Value) int64 {
	if h.pure.contains(v.Addr()) {
		if !v.IsString() {
			panic("heap: string accessor on " + v.String())
		}
		_, b, _ := h.pure.readString(v.Addr())
		return int64(len(b))
	}
	return h.strCell(v).bytesLen()
}

// StringIsMultibyte reports whether v is a character string.
func (h *Heap) StringIsMultibyte(v value.Value) bool {
	if h.pure.contains(v.Addr()) {
		if !v.IsString() {
			panic("heap: string accessor on " + v.String())
		}
		_, _, multi := h.pure.readString(v.Addr())
		return multi
	}
	return h.strCell(v).byteLen >= 0
}

// StringBytes returns the string's backing bytes. The slice aliases heap
// storage: it is valid only until the next collection unless the string is
// pinned or pure, and must not be modified through this view.
func (h *Heap) StringBytes(v value.Value) []byte {
	if h.pure.contains(v.Addr()) {
		if !v.IsString() {
			panic("heap: string accessor on " + v.String())
		}
		_, b, _ := h.pure.readString(v.Addr())
		return b
	}
	return h.strCell(v).data.Bytes()
}

// StringText copies the contents out as a Go string.
func (h *Heap) StringText(v value.Value) string { return string(h.StringBytes(v)) }

// SetStringContents replaces the payload of string v, reusing the existing
// payload when the lengths match. Character strings must stay valid UTF-8.
func (h *Heap) SetStringContents(v value.Value, b []byte) error {
	if !v.IsString() {
		panic("heap: SetStringContents of " + v.String())
	}
	if h.pure.contains(v.Addr()) {
		return ErrPureWrite
	}
	if int64(len(b)) > MaxStringBytes {
		return ErrStringTooLarge
	}
	c := h.strCell(v)
	multibyte := c.byteLen >= 0
	if multibyte && !strenc.Valid(b) {
		return ErrWrongType
	}

	if cur := c.data.Bytes(); len(cur) == len(b) {
		copy(cur, b)
	} else {
		ref, err := h.strs.Alloc(v.Addr(), len(b))
		if err != nil {
			h.memoryFull = true
			return ErrMemoryFull
		}
		copy(ref.Bytes(), b)
		h.strs.Release(c.data)
		c.data = ref
		if c.pinned {
			c.data = h.strs.Pin(c.data)
		}
		h.tally(int64(len(b)))
	}

	if multibyte {
		c.charLen = int64(strenc.RuneCount(b))
		c.byteLen = int64(len(b))
	} else {
		c.charLen = int64(len(b))
	}
	return nil
}

// PinString fixes the payload address of v for its remaining lifetime, so
// embedders may hold raw views across collections.
func (h *Heap) PinString(v value.Value) {
	if h.pure.contains(v.Addr()) {
		return // pure payloads never move
	}
	c := h.strCell(v)
	if c.pinned {
		return
	}
	c.data = h.strs.Pin(c.data)
	c.pinned = true
}

// StringIntervals returns the root of v's text-property tree, 0 for none.
func (h *Heap) StringIntervals(v value.Value) Interval {
	if h.pure.contains(v.Addr()) {
		return 0
	}
	return h.strCell(v).ivs
}

// SetStringIntervals attaches a text-property tree to v.
func (h *Heap) SetStringIntervals(v value.Value, iv Interval) error {
	if h.pure.contains(v.Addr()) {
		return ErrPureWrite
	}
	h.strCell(v).ivs = iv
	if iv != 0 {
		h.SetIntervalOwner(iv, v)
	}
	return nil
}
