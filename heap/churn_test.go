package heap

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/heapkit/heap/value"
)

// TestChurnMixedWorkload drives the heap the way an interpreter would:
// random allocation of every kind, a bounded set of live bindings, and the
// collector firing on its own trigger. Afterwards every retained object
// must hold exactly what was put into it.
func TestChurnMixedWorkload(t *testing.T) {
	const steps = 30_000

	h, err := New(Config{GCThreshold: MinGCThreshold})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42)) // Fixed seed for reproducibility

	// Every retained list is also registered under its head in a weak-key
	// table, so entry retention can be checked against the live set at the
	// end.
	registry, err := h.MakeHashTable(WeakKey, 0)
	require.NoError(t, err)
	rooted(h, registry)

	type binding struct {
		slot *value.Value
		list []int64
		text string
		vec  []int64
	}
	var kept []binding

	drop := func() {
		i := rng.Intn(len(kept))
		*kept[i].slot = value.Nil
		kept[i] = kept[len(kept)-1]
		kept = kept[:len(kept)-1]
	}

	makeList := func(n int) (value.Value, []int64) {
		want := make([]int64, n)
		head := value.Nil
		for j := n - 1; j >= 0; j-- {
			want[j] = rng.Int63n(1 << 40)
			head = mustCons(t, h, value.MakeFixnum(want[j]), head)
		}
		return head, want
	}

	collections := 0
	for i := range steps {
		switch rng.Intn(10) {
		case 0, 1, 2: // short-lived list
			head := value.Nil
			for range 1 + rng.Intn(16) {
				head = mustCons(t, h, value.MakeFixnum(int64(i)), head)
			}
		case 3: // retained list, registered in the weak table
			head, want := makeList(1 + rng.Intn(12))
			kept = append(kept, binding{slot: rooted(h, head), list: want})
			require.NoError(t, h.HashPut(registry, head, value.MakeFixnum(int64(len(want)))))
		case 4: // short-lived string
			mustString(t, h, fmt.Sprintf("scratch-%d", i))
		case 5: // retained string
			s := fmt.Sprintf("kept-%d-%d", i, rng.Int63())
			kept = append(kept, binding{slot: rooted(h, mustString(t, h, s)), text: s})
		case 6: // short-lived vector
			_, verr := h.MakeVector(1+rng.Intn(40), value.MakeFixnum(int64(i)))
			require.NoError(t, verr)
		case 7: // retained vector
			n := 1 + rng.Intn(24)
			want := make([]int64, n)
			v, verr := h.MakeVector(n, value.Nil)
			require.NoError(t, verr)
			for j := range n {
				want[j] = rng.Int63n(1 << 40)
				require.NoError(t, h.ASet(v, j, value.MakeFixnum(want[j])))
			}
			kept = append(kept, binding{slot: rooted(h, v), vec: want})
		case 8: // symbol bound and immediately dropped
			sym := mustSymbol(t, h, fmt.Sprintf("sym-%d", i))
			h.SetSymbolValue(sym, value.MakeFixnum(int64(i)))
		case 9: // float garbage
			_, ferr := h.MakeFloat(float64(i) * 0.5)
			require.NoError(t, ferr)
		}

		if len(kept) > 120 {
			drop()
		}

		ran, merr := h.MaybeCollect(1)
		require.NoError(t, merr, "step %d", i)
		if ran {
			collections++
		}
	}

	require.NotZero(t, collections, "the trigger never fired")
	mustCollect(t, h)
	collections++

	// Every surviving binding reads back exactly.
	lists := 0
	for bi, bd := range kept {
		v := *bd.slot
		switch {
		case bd.list != nil:
			lists++
			for j, want := range bd.list {
				require.True(t, v.IsPair(), "binding %d truncated at element %d", bi, j)
				require.Equal(t, want, value.FixnumVal(h.Car(v)), "binding %d element %d", bi, j)
				v = h.Cdr(v)
			}
			require.Equal(t, value.Nil, v, "binding %d tail", bi)
		case bd.vec != nil:
			require.Equal(t, len(bd.vec), h.VectorLen(v), "binding %d length", bi)
			for j, want := range bd.vec {
				require.Equal(t, want, value.FixnumVal(h.ARef(v, j)), "binding %d slot %d", bi, j)
			}
		default:
			require.Equal(t, bd.text, h.StringText(v), "binding %d", bi)
		}
	}

	// Weak entries survive for exactly the lists still rooted.
	require.Equal(t, lists, h.HashCount(registry))

	// The sweep accounting agrees with the actual free chain.
	rep := h.Stats()
	row := kindRow(t, rep, "pair")
	assert.Equal(t, int64(freePairCount(h)), row.Free)

	t.Logf("%d collections over %d steps, %d live bindings, %d live pairs",
		collections, steps, len(kept), row.Live)
}
