package heap

import "time"

// Collect runs a full stop-the-world collection: mark from every root,
// settle weak table entries, sweep, then run doomed finalizers and the
// post-collection hook. Returns ErrCollectInProgress without touching
// anything when a cycle is already running or collection is inhibited;
// after pure storage overflows that is permanent.
func (h *Heap) Collect() (Report, error) {
	if h.inGC || h.inhibit > 0 || h.pure.overflowed {
		return Report{}, ErrCollectInProgress
	}
	if len(h.weakTables) != 0 {
		fatalf("weak registry not empty between cycles")
	}
	h.inGC = true
	start := time.Now()
	debugLogf("collecting after %d bytes", h.bytesSinceGC)

	h.markRoots()

	// Unreferenced finalizers get one more cycle; their functions must
	// survive until RunFinalizers.
	h.queueDoomedFinalizers()
	h.markDoomedFinalizers()

	// Must run after all other marking and before the sweep.
	h.markWeakTables()

	if !h.mst.empty() {
		fatalf("mark stack not drained")
	}

	h.gcSweep()

	h.bytesSinceGC = 0
	h.updateBytesBetweenGC()
	if h.memoryFull && h.stat.blocksFreed > 0 {
		h.memoryFull = false
		debugLogf("memory full cleared, %d blocks returned", h.stat.blocksFreed)
	}

	h.gcsDone++
	elapsed := time.Since(start)
	h.gcElapsed += elapsed
	h.inGC = false

	rep := h.report()
	debugLogf("cycle %d done in %v, %d bytes live", h.gcsDone, elapsed, h.lastLiveBytes)

	// The collection proper is over: finalizers may allocate and even
	// collect again. The post-collection hook may allocate but never
	// re-enters.
	h.RunFinalizers()
	if h.cfg.OnPostGC != nil {
		release := h.InhibitCollection()
		h.cfg.OnPostGC(rep)
		release()
	}
	return rep, nil
}

// MaybeCollect collects when allocation since the last cycle exceeds the
// current allowance divided by factor, so larger factors collect more
// eagerly. factor < 1 never collects. Reports whether a cycle ran.
func (h *Heap) MaybeCollect(factor int) (bool, error) {
	if factor < 1 || h.bytesSinceGC <= h.bytesBetweenGC/int64(factor) {
		return false, nil
	}
	if _, err := h.Collect(); err != nil {
		return false, err
	}
	return true, nil
}
