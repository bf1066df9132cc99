package memindex

// Kind classifies a registered range for the conservative scanner.
type Kind uint8

const (
	// Raw ranges hold storage that is reachable only through exact
	// references (string payload slabs, interval pools). Ambiguous words
	// landing in them never resurrect anything.
	Raw Kind = iota
	PairBlock
	FloatBlock
	SymbolBlock
	StringBlock
	VectorBlock
	LargeVector
)

func (k Kind) String() string {
	switch k {
	case Raw:
		return "raw"
	case PairBlock:
		return "pair-block"
	case FloatBlock:
		return "float-block"
	case SymbolBlock:
		return "symbol-block"
	case StringBlock:
		return "string-block"
	case VectorBlock:
		return "vector-block"
	case LargeVector:
		return "large-vector"
	}
	return "unknown"
}

// Entry is the result of a successful lookup.
type Entry struct {
	Start uint64
	End   uint64 // exclusive
	Kind  Kind
	Owner any // the block or object the range belongs to
}

// node lives in the arena. Index 0 is the shared black sentinel standing in
// for every absent child, so the fixup procedures can read and write child
// colors without nil checks.
type node struct {
	start, end          uint64
	owner               any
	left, right, parent int32
	kind                Kind
	red                 bool
}

// Index maps half-open address ranges to block descriptors. It is a
// red-black tree over an arena of nodes addressed by index; handles into
// the arena are never exposed, callers insert and remove by address.
//
// Not safe for concurrent use. The heap serializes access under its own
// lock.
type Index struct {
	nodes    []node
	root     int32
	freeHead int32 // recycled nodes chained through left
	count    int
	lo, hi   uint64 // fast-reject bounds; they only ever widen
}

// New returns an empty index.
func New() *Index {
	ix := &Index{
		nodes: make([]node, 1, 64), // slot 0 is the sentinel
		lo:    ^uint64(0),
	}
	return ix
}

// Len returns the number of registered ranges.
func (ix *Index) Len() int { return ix.count }

// Bounds returns the widest [lo, hi) span ever covered. The bounds never
// shrink when ranges are removed; they exist only to cheaply reject words
// that cannot possibly be heap addresses.
func (ix *Index) Bounds() (lo, hi uint64) { return ix.lo, ix.hi }

// Insert registers [start, end) with the given kind and owner. Ranges must
// not overlap; the tree orders by start and lookups assume disjointness.
func (ix *Index) Insert(start, end uint64, kind Kind, owner any) {
	c := ix.root
	parent := int32(0)
	for c != 0 {
		parent = c
		if start < ix.nodes[c].start {
			c = ix.nodes[c].left
		} else {
			c = ix.nodes[c].right
		}
	}

	x := ix.alloc()
	n := &ix.nodes[x]
	n.start, n.end = start, end
	n.kind, n.owner = kind, owner
	n.parent = parent
	n.left, n.right = 0, 0
	n.red = true

	if parent != 0 {
		if start < ix.nodes[parent].start {
			ix.nodes[parent].left = x
		} else {
			ix.nodes[parent].right = x
		}
	} else {
		ix.root = x
	}
	ix.insertFixup(x)

	if start < ix.lo {
		ix.lo = start
	}
	if end > ix.hi {
		ix.hi = end
	}
	ix.count++
}

// Find returns the range containing addr, if any.
func (ix *Index) Find(addr uint64) (Entry, bool) {
	if addr < ix.lo || addr >= ix.hi {
		return Entry{}, false
	}
	i := ix.findNode(addr)
	if i == 0 {
		return Entry{}, false
	}
	n := &ix.nodes[i]
	return Entry{Start: n.start, End: n.end, Kind: n.kind, Owner: n.owner}, true
}

// Remove unregisters the range containing addr. It reports whether a range
// was found.
func (ix *Index) Remove(addr uint64) bool {
	z := ix.findNode(addr)
	if z == 0 {
		return false
	}
	ix.deleteNode(z)
	ix.count--
	return true
}

func (ix *Index) findNode(addr uint64) int32 {
	i := ix.root
	for i != 0 {
		n := &ix.nodes[i]
		switch {
		case addr < n.start:
			i = n.left
		case addr >= n.end:
			i = n.right
		default:
			return i
		}
	}
	return 0
}

func (ix *Index) alloc() int32 {
	if ix.freeHead != 0 {
		x := ix.freeHead
		ix.freeHead = ix.nodes[x].left
		return x
	}
	ix.nodes = append(ix.nodes, node{})
	return int32(len(ix.nodes) - 1)
}

func (ix *Index) freeNode(x int32) {
	n := &ix.nodes[x]
	*n = node{left: ix.freeHead}
	ix.freeHead = x
}

func (ix *Index) rotateLeft(x int32) {
	y := ix.nodes[x].right

	ix.nodes[x].right = ix.nodes[y].left
	if l := ix.nodes[y].left; l != 0 {
		ix.nodes[l].parent = x
	}
	if y != 0 {
		ix.nodes[y].parent = ix.nodes[x].parent
	}
	if p := ix.nodes[x].parent; p != 0 {
		if x == ix.nodes[p].left {
			ix.nodes[p].left = y
		} else {
			ix.nodes[p].right = y
		}
	} else {
		ix.root = y
	}
	ix.nodes[y].left = x
	if x != 0 {
		ix.nodes[x].parent = y
	}
}

func (ix *Index) rotateRight(x int32) {
	y := ix.nodes[x].left

	ix.nodes[x].left = ix.nodes[y].right
	if r := ix.nodes[y].right; r != 0 {
		ix.nodes[r].parent = x
	}
	if y != 0 {
		ix.nodes[y].parent = ix.nodes[x].parent
	}
	if p := ix.nodes[x].parent; p != 0 {
		if x == ix.nodes[p].right {
			ix.nodes[p].right = y
		} else {
			ix.nodes[p].left = y
		}
	} else {
		ix.root = y
	}
	ix.nodes[y].right = x
	if x != 0 {
		ix.nodes[x].parent = y
	}
}

func (ix *Index) insertFixup(x int32) {
	for x != ix.root && ix.nodes[ix.nodes[x].parent].red {
		p := ix.nodes[x].parent
		gp := ix.nodes[p].parent
		if p == ix.nodes[gp].left {
			y := ix.nodes[gp].right
			if ix.nodes[y].red {
				ix.nodes[p].red = false
				ix.nodes[y].red = false
				ix.nodes[gp].red = true
				x = gp
			} else {
				if x == ix.nodes[p].right {
					x = p
					ix.rotateLeft(x)
				}
				p = ix.nodes[x].parent
				gp = ix.nodes[p].parent
				ix.nodes[p].red = false
				ix.nodes[gp].red = true
				ix.rotateRight(gp)
			}
		} else {
			y := ix.nodes[gp].left
			if ix.nodes[y].red {
				ix.nodes[p].red = false
				ix.nodes[y].red = false
				ix.nodes[gp].red = true
				x = gp
			} else {
				if x == ix.nodes[p].left {
					x = p
					ix.rotateRight(x)
				}
				p = ix.nodes[x].parent
				gp = ix.nodes[p].parent
				ix.nodes[p].red = false
				ix.nodes[gp].red = true
				ix.rotateLeft(gp)
			}
		}
	}
	ix.nodes[ix.root].red = false
}

func (ix *Index) deleteNode(z int32) {
	var y int32
	if ix.nodes[z].left == 0 || ix.nodes[z].right == 0 {
		y = z
	} else {
		y = ix.nodes[z].right
		for ix.nodes[y].left != 0 {
			y = ix.nodes[y].left
		}
	}

	var x int32
	if ix.nodes[y].left != 0 {
		x = ix.nodes[y].left
	} else {
		x = ix.nodes[y].right
	}

	// The sentinel's parent is deliberately written here; deleteFixup
	// climbs through it even when x is absent.
	ix.nodes[x].parent = ix.nodes[y].parent
	if yp := ix.nodes[y].parent; yp != 0 {
		if y == ix.nodes[yp].left {
			ix.nodes[yp].left = x
		} else {
			ix.nodes[yp].right = x
		}
	} else {
		ix.root = x
	}

	if y != z {
		ix.nodes[z].start = ix.nodes[y].start
		ix.nodes[z].end = ix.nodes[y].end
		ix.nodes[z].kind = ix.nodes[y].kind
		ix.nodes[z].owner = ix.nodes[y].owner
	}
	if !ix.nodes[y].red {
		ix.deleteFixup(x)
	}
	ix.freeNode(y)
}

func (ix *Index) deleteFixup(x int32) {
	for x != ix.root && !ix.nodes[x].red {
		p := ix.nodes[x].parent
		if x == ix.nodes[p].left {
			w := ix.nodes[p].right
			if ix.nodes[w].red {
				ix.nodes[w].red = false
				ix.nodes[p].red = true
				ix.rotateLeft(p)
				w = ix.nodes[ix.nodes[x].parent].right
			}
			if !ix.nodes[ix.nodes[w].left].red && !ix.nodes[ix.nodes[w].right].red {
				ix.nodes[w].red = true
				x = ix.nodes[x].parent
			} else {
				if !ix.nodes[ix.nodes[w].right].red {
					ix.nodes[ix.nodes[w].left].red = false
					ix.nodes[w].red = true
					ix.rotateRight(w)
					w = ix.nodes[ix.nodes[x].parent].right
				}
				p = ix.nodes[x].parent
				ix.nodes[w].red = ix.nodes[p].red
				ix.nodes[p].red = false
				ix.nodes[ix.nodes[w].right].red = false
				ix.rotateLeft(p)
				x = ix.root
			}
		} else {
			w := ix.nodes[p].left
			if ix.nodes[w].red {
				ix.nodes[w].red = false
				ix.nodes[p].red = true
				ix.rotateRight(p)
				w = ix.nodes[ix.nodes[x].parent].left
			}
			if !ix.nodes[ix.nodes[w].right].red && !ix.nodes[ix.nodes[w].left].red {
				ix.nodes[w].red = true
				x = ix.nodes[x].parent
			} else {
				if !ix.nodes[ix.nodes[w].left].red {
					ix.nodes[ix.nodes[w].right].red = false
					ix.nodes[w].red = true
					ix.rotateLeft(w)
					w = ix.nodes[ix.nodes[x].parent].left
				}
				p = ix.nodes[x].parent
				ix.nodes[w].red = ix.nodes[p].red
				ix.nodes[p].red = false
				ix.nodes[ix.nodes[w].left].red = false
				ix.rotateRight(p)
				x = ix.root
			}
		}
	}
	ix.nodes[x].red = false
}
