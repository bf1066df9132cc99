package heap

import "github.com/joshuapare/heapkit/heap/value"

// Weakness selects which hash table entries the collector may drop. A weak
// reference from a table never keeps an object alive by itself; after each
// mark phase the table is rescanned and entries whose anchor died are
// removed.
type Weakness uint8

const (
	WeakNone        Weakness = iota
	WeakKey                  // entry lives while the key lives
	WeakValue                // entry lives while the value lives
	WeakKeyAndValue          // entry lives while both live
	WeakKeyOrValue           // entry lives while either lives
)

func (w Weakness) String() string {
	switch w {
	case WeakNone:
		return "strong"
	case WeakKey:
		return "key"
	case WeakValue:
		return "value"
	case WeakKeyAndValue:
		return "key-and-value"
	case WeakKeyOrValue:
		return "key-or-value"
	}
	return "unknown"
}

// Hash table record layout. Keys and values live in two plain vectors of
// equal power-of-two capacity; Unbound marks a never-used slot, Dead a
// tombstone. The three function slots hold evaluator-level test metadata
// that the heap traces but never calls.
const (
	htKeys = iota
	htVals
	htTest
	htUserHash
	htUserCmp
	htSlots

	htExtraCount = 0
	htExtraWeak  = 1
	htExtraTombs = 2
	htExtra      = 3

	htMinCap = 8
)

// MakeHashTable allocates an identity hash table. capHint sizes the
// initial slot vectors; weak selects entry retention.
func (h *Heap) MakeHashTable(weak Weakness, capHint int) (value.Value, error) {
	if capHint > VectorEltsMax {
		return value.Nil, ErrVectorTooLarge
	}
	size := htMinCap
	for size < capHint {
		size <<= 1
	}
	keys, err := h.MakeVector(size, value.Unbound)
	if err != nil {
		return value.Nil, err
	}
	vals, err := h.MakeVector(size, value.Nil)
	if err != nil {
		return value.Nil, err
	}
	tbl, err := h.allocVector(VecHashTable, htSlots, htExtra, value.Nil)
	if err != nil {
		return value.Nil, err
	}
	words, hi := h.vecLoc(tbl.Addr())
	words[hi+1+htKeys] = keys
	words[hi+1+htVals] = vals
	words[hi+1+htSlots+htExtraWeak] = value.Value(uint64(weak))
	return tbl, nil
}

func (h *Heap) htCheck(tbl value.Value) {
	if h.VectorKind(tbl) != VecHashTable {
		panic("heap: hash table accessor on " + tbl.String())
	}
}

// SetHashTableTest records evaluator-level test metadata. The heap keeps
// the three values reachable; lookup here stays identity-based.
func (h *Heap) SetHashTableTest(tbl, name, hashFn, cmpFn value.Value) error {
	h.htCheck(tbl)
	if err := h.ASet(tbl, htTest, name); err != nil {
		return err
	}
	if err := h.ASet(tbl, htUserHash, hashFn); err != nil {
		return err
	}
	return h.ASet(tbl, htUserCmp, cmpFn)
}

// HashCount returns the number of live entries.
func (h *Heap) HashCount(tbl value.Value) int {
	h.htCheck(tbl)
	return int(h.VectorWord(tbl, htExtraCount))
}

// HashWeakness returns the table's retention mode.
func (h *Heap) HashWeakness(tbl value.Value) Weakness {
	h.htCheck(tbl)
	return Weakness(h.VectorWord(tbl, htExtraWeak))
}

// identityHash mixes a value word into a table index. Identity semantics:
// equal fixnums and specials collide by construction, heap objects hash by
// address.
func identityHash(v value.Value) uint64 {
	x := uint64(v)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// HashGet looks up k by identity.
func (h *Heap) HashGet(tbl, k value.Value) (value.Value, bool) {
	h.htCheck(tbl)
	keys := h.ARef(tbl, htKeys)
	n := h.VectorLen(keys)
	mask := uint64(n - 1)
	i := identityHash(k) & mask
	for probe := 0; probe < n; probe++ {
		got := h.ARef(keys, int(i))
		if got == k {
			return h.ARef(h.ARef(tbl, htVals), int(i)), true
		}
		if got == value.Unbound {
			return value.Nil, false
		}
		i = (i + 1) & mask
	}
	return value.Nil, false
}

// HashPut binds k to v, replacing any existing binding.
func (h *Heap) HashPut(tbl, k, v value.Value) error {
	h.htCheck(tbl)
	if h.pure.contains(tbl.Addr()) {
		return ErrPureWrite
	}
	keys := h.ARef(tbl, htKeys)
	vals := h.ARef(tbl, htVals)
	n := h.VectorLen(keys)
	mask := uint64(n - 1)
	i := identityHash(k) & mask
	slot := -1
	for probe := 0; probe < n; probe++ {
		got := h.ARef(keys, int(i))
		if got == k {
			return h.ASet(vals, int(i), v)
		}
		if got == value.Dead && slot < 0 {
			slot = int(i)
		}
		if got == value.Unbound {
			if slot < 0 {
				slot = int(i)
			}
			break
		}
		i = (i + 1) & mask
	}
	if slot < 0 {
		// Every slot is live or a tombstone; rebuild and retry.
		if err := h.htRehash(tbl, n*2); err != nil {
			return err
		}
		return h.HashPut(tbl, k, v)
	}

	tombs := h.VectorWord(tbl, htExtraTombs)
	if h.ARef(keys, slot) == value.Dead {
		tombs--
	}
	if err := h.ASet(keys, slot, k); err != nil {
		return err
	}
	if err := h.ASet(vals, slot, v); err != nil {
		return err
	}
	count := h.VectorWord(tbl, htExtraCount) + 1
	if err := h.SetVectorWord(tbl, htExtraCount, count); err != nil {
		return err
	}
	if err := h.SetVectorWord(tbl, htExtraTombs, tombs); err != nil {
		return err
	}
	if (count+tombs)*4 >= uint64(n)*3 {
		return h.htRehash(tbl, n*2)
	}
	return nil
}

// HashDelete removes k's binding, reporting whether it existed.
func (h *Heap) HashDelete(tbl, k value.Value) (bool, error) {
	h.htCheck(tbl)
	if h.pure.contains(tbl.Addr()) {
		return false, ErrPureWrite
	}
	keys := h.ARef(tbl, htKeys)
	n := h.VectorLen(keys)
	mask := uint64(n - 1)
	i := identityHash(k) & mask
	for probe := 0; probe < n; probe++ {
		got := h.ARef(keys, int(i))
		if got == k {
			if err := h.ASet(keys, int(i), value.Dead); err != nil {
				return false, err
			}
			if err := h.ASet(h.ARef(tbl, htVals), int(i), value.Nil); err != nil {
				return false, err
			}
			if err := h.SetVectorWord(tbl, htExtraCount, h.VectorWord(tbl, htExtraCount)-1); err != nil {
				return false, err
			}
			return true, h.SetVectorWord(tbl, htExtraTombs, h.VectorWord(tbl, htExtraTombs)+1)
		}
		if got == value.Unbound {
			return false, nil
		}
		i = (i + 1) & mask
	}
	return false, nil
}

// HashEach calls fn for every live entry until fn returns false. The table
// must not be mutated during iteration.
func (h *Heap) HashEach(tbl value.Value, fn func(k, v value.Value) bool) {
	h.htCheck(tbl)
	keys := h.ARef(tbl, htKeys)
	vals := h.ARef(tbl, htVals)
	for i, n := 0, h.VectorLen(keys); i < n; i++ {
		k := h.ARef(keys, i)
		if k == value.Unbound || k == value.Dead {
			continue
		}
		if !fn(k, h.ARef(vals, i)) {
			return
		}
	}
}

func (h *Heap) htRehash(tbl value.Value, newCap int) error {
	oldKeys := h.ARef(tbl, htKeys)
	oldVals := h.ARef(tbl, htVals)
	oldCap := h.VectorLen(oldKeys)

	keys, err := h.MakeVector(newCap, value.Unbound)
	if err != nil {
		return err
	}
	vals, err := h.MakeVector(newCap, value.Nil)
	if err != nil {
		return err
	}
	mask := uint64(newCap - 1)
	for i := 0; i < oldCap; i++ {
		k := h.ARef(oldKeys, i)
		if k == value.Unbound || k == value.Dead {
			continue
		}
		j := identityHash(k) & mask
		for h.ARef(keys, int(j)) != value.Unbound {
			j = (j + 1) & mask
		}
		if err := h.ASet(keys, int(j), k); err != nil {
			return err
		}
		if err := h.ASet(vals, int(j), h.ARef(oldVals, i)); err != nil {
			return err
		}
	}
	if err := h.ASet(tbl, htKeys, keys); err != nil {
		return err
	}
	if err := h.ASet(tbl, htVals, vals); err != nil {
		return err
	}
	return h.SetVectorWord(tbl, htExtraTombs, 0)
}
