package heap

import (
	"container/list"

	"github.com/joshuapare/heapkit/heap/value"
)

// Finalizers are ordinary records holding one function slot. A live
// finalizer sits on finLive; when a collection finds one unreachable with
// its function still present, it moves to finDoomed, gets marked so its
// storage survives the sweep, and waits for RunFinalizers. A finalizer
// whose function was already consumed dies like any other record.

type finEntry struct {
	el     *list.Element
	doomed bool
}

// MakeFinalizer arranges for fn to be called once after the returned
// record becomes unreachable. Dropping every reference to the record is
// what schedules the call.
func (h *Heap) MakeFinalizer(fn value.Value) (value.Value, error) {
	v, err := h.allocVector(VecFinalizer, 1, 0, fn)
	if err != nil {
		return value.Nil, err
	}
	h.finElems[v.Addr()] = &finEntry{el: h.finLive.PushBack(v)}
	return v, nil
}

// FinalizerFunction returns the pending function, or Nil once it has run
// or been dropped.
func (h *Heap) FinalizerFunction(v value.Value) value.Value {
	if h.VectorKind(v) != VecFinalizer {
		panic("heap: FinalizerFunction of " + v.String())
	}
	return h.ARef(v, 0)
}

// queueDoomedFinalizers moves unreachable finalizers with a function left
// to run onto the doomed list. Runs after marking, before the weak phase.
func (h *Heap) queueDoomedFinalizers() {
	for el := h.finLive.Front(); el != nil; {
		next := el.Next()
		v := el.Value.(value.Value)
		if !h.vecMarked(v.Addr()) && h.ARef(v, 0) != value.Nil {
			h.finLive.Remove(el)
			e := h.finElems[v.Addr()]
			e.el = h.finDoomed.PushBack(v)
			e.doomed = true
		}
		el = next
	}
}

// markDoomedFinalizers keeps doomed records and their functions alive for
// one more cycle so RunFinalizers has something to call.
func (h *Heap) markDoomedFinalizers() {
	for el := h.finDoomed.Front(); el != nil; el = el.Next() {
		h.markValue(el.Value.(value.Value))
	}
}

// unchainFinalizer drops a dead record from its list during sweep.
func (h *Heap) unchainFinalizer(addr uint64) {
	e, ok := h.finElems[addr]
	if !ok {
		return
	}
	delete(h.finElems, addr)
	if e.doomed {
		h.finDoomed.Remove(e.el)
	} else {
		h.finLive.Remove(e.el)
	}
}

// RunFinalizers drains the doomed list, calling each pending function
// through Config.CallFunc. Call errors are dropped after being traced;
// a finalizer never runs twice. Returns the number of finalizers run.
// Collect invokes this itself; embedders only need it for manual drains.
func (h *Heap) RunFinalizers() int {
	n := 0
	for {
		el := h.finDoomed.Front()
		if el == nil {
			return n
		}
		v := el.Value.(value.Value)
		h.finDoomed.Remove(el)
		delete(h.finElems, v.Addr())

		fn := h.ARef(v, 0)
		if err := h.ASet(v, 0, value.Nil); err != nil {
			fatalf("finalizer %#x not writable: %v", v.Addr(), err)
		}
		if fn != value.Nil && h.cfg.CallFunc != nil {
			if err := h.cfg.CallFunc(fn); err != nil {
				debugLogf("finalizer error: %v", err)
			}
		}
		n++
	}
}
