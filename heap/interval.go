package heap

import (
	"github.com/joshuapare/heapkit/heap/memindex"
	"github.com/joshuapare/heapkit/heap/value"
)

const (
	intervalSize   = 8 * wordBytes
	blockIntervals = blockBytes / intervalSize
)

// Interval names a text-property interval node. Intervals are not Values:
// no tagged word can reach one, they are traced exclusively through the
// string (or other owner) whose header points at the tree root. 0 means no
// interval.
type Interval uint64

type intervalCell struct {
	length   int64 // text length covered by this subtree
	position int64 // cached absolute position of this node

	left, right Interval
	up          Interval    // parent node, when isUpObj is false
	upObj       value.Value // owning object, when isUpObj is true
	isUpObj     bool
	marked      bool

	plist value.Value
}

type intervalBlock struct {
	base  uint64
	cells [blockIntervals]intervalCell
	next  *intervalBlock
}

func (h *Heap) newIntervalBlock() error {
	if err := h.chargeBlock(blockBytes); err != nil {
		return err
	}
	b := &intervalBlock{
		base: h.reserveRange(blockBytes, blockBytes),
		next: h.intBlock,
	}
	h.intBlocks[b.base] = b
	// Registered raw: an ambiguous word pointing into the block must not
	// resurrect interval nodes, they live and die with their owner.
	h.index.Insert(b.base, b.base+blockBytes, memindex.Raw, b)
	h.intBlock = b
	h.intIndex = 0
	return nil
}

func (h *Heap) intervalAt(iv Interval) (*intervalBlock, int) {
	addr := uint64(iv)
	b := h.intBlocks[addr&^(blockBytes-1)]
	if b == nil {
		fatalf("interval reference %#x outside any interval block", addr)
	}
	off := addr - b.base
	if off%intervalSize != 0 {
		fatalf("misaligned interval reference %#x", addr)
	}
	return b, int(off / intervalSize)
}

func (h *Heap) intervalCellOf(iv Interval) *intervalCell {
	if iv == 0 {
		panic("heap: interval accessor on the null interval")
	}
	b, i := h.intervalAt(iv)
	return &b.cells[i]
}

// MakeInterval allocates a detached interval node with an empty property
// list. The caller links it into a tree and attaches the root to an owner.
func (h *Heap) MakeInterval() (Interval, error) {
	var addr uint64
	if h.intFree != 0 {
		addr = h.intFree
		b, i := h.intervalAt(Interval(addr))
		h.intFree = uint64(b.cells[i].up)
	} else {
		if h.intBlock == nil || h.intIndex == blockIntervals {
			if err := h.newIntervalBlock(); err != nil {
				return 0, err
			}
		}
		addr = h.intBlock.base + uint64(h.intIndex)*intervalSize
		h.intIndex++
	}
	b, i := h.intervalAt(Interval(addr))
	b.cells[i] = intervalCell{plist: value.Nil}
	h.intervalsMade++
	h.tally(intervalSize)
	return Interval(addr), nil
}

// IntervalPlist returns the property list of iv.
func (h *Heap) IntervalPlist(iv Interval) value.Value { return h.intervalCellOf(iv).plist }

// SetIntervalPlist stores the property list of iv.
func (h *Heap) SetIntervalPlist(iv Interval, plist value.Value) {
	h.intervalCellOf(iv).plist = plist
}

// IntervalSpan returns the covered length and cached position.
func (h *Heap) IntervalSpan(iv Interval) (length, position int64) {
	c := h.intervalCellOf(iv)
	return c.length, c.position
}

// SetIntervalSpan stores the covered length and cached position.
func (h *Heap) SetIntervalSpan(iv Interval, length, position int64) {
	c := h.intervalCellOf(iv)
	c.length = length
	c.position = position
}

// IntervalChildren returns the left and right subtrees, 0 for none.
func (h *Heap) IntervalChildren(iv Interval) (left, right Interval) {
	c := h.intervalCellOf(iv)
	return c.left, c.right
}

// SetIntervalChildren links the subtrees of iv.
func (h *Heap) SetIntervalChildren(iv, left, right Interval) {
	c := h.intervalCellOf(iv)
	c.left = left
	c.right = right
}

// SetIntervalParent links iv under another interval node.
func (h *Heap) SetIntervalParent(iv, parent Interval) {
	c := h.intervalCellOf(iv)
	c.isUpObj = false
	c.up = parent
	c.upObj = value.Nil
}

// SetIntervalOwner makes iv a tree root owned by obj.
func (h *Heap) SetIntervalOwner(iv Interval, obj value.Value) {
	c := h.intervalCellOf(iv)
	c.isUpObj = true
	c.up = 0
	c.upObj = obj
}

// IntervalParent returns either the parent interval or the owning object.
func (h *Heap) IntervalParent(iv Interval) (parent Interval, owner value.Value, isOwner bool) {
	c := h.intervalCellOf(iv)
	return c.up, c.upObj, c.isUpObj
}
