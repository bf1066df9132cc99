package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/cmd/heapctl/logger"
	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/value"
)

var (
	stressSteps      int
	stressLive       int
	stressSeed       int64
	stressFactor     int
	stressThreshold  string
	stressPercentage float64
	stressMaxHeap    string
	stressPure       string
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressSteps, "steps", 200_000, "Workload steps to run")
	cmd.Flags().IntVar(&stressLive, "live", 1000, "Retained bindings before old ones are dropped")
	cmd.Flags().Int64Var(&stressSeed, "seed", 1, "Workload random seed")
	cmd.Flags().IntVar(&stressFactor, "factor", 1, "Collection eagerness factor; higher collects sooner")
	cmd.Flags().StringVar(&stressThreshold, "threshold", "", "Collection threshold, e.g. 800KB")
	cmd.Flags().Float64Var(&stressPercentage, "percentage", 0, "Collection threshold as a share of live bytes")
	cmd.Flags().StringVar(&stressMaxHeap, "max-heap", "", "Heap block budget, e.g. 64MB")
	cmd.Flags().StringVar(&stressPure, "pure", "", "Pure storage size, e.g. 256KB")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run a synthetic interpreter workload and report collector behavior",
		Long: `The stress command allocates lists, strings, vectors, symbols, floats,
hash table entries and finalizers the way an interpreter loop would, retains a
bounded working set, and lets the collection trigger fire on its own. It
reports cycle counts, pause totals, and per-kind occupancy at the end.

Example:
  heapctl stress
  heapctl stress --steps 1000000 --live 5000
  heapctl stress --threshold 200KB --percentage 0.3 --json
  heapctl stress --max-heap 2MB --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

// StressResult is the summary printed (or emitted as JSON) after a run.
type StressResult struct {
	Steps          int
	Retained       int
	Collections    int64
	GCTime         time.Duration
	AvgPause       time.Duration
	FinalizersRun  int
	PressureEvents int
	Report         heap.Report
}

// parseSize converts a human-readable size like "64MB" to bytes. Empty
// input means "use the default" and parses to zero.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	b, err := bytesize.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("bad size %q: %w", s, err)
	}
	return int64(b), nil
}

func runStress() error {
	threshold, err := parseSize(stressThreshold)
	if err != nil {
		return err
	}
	maxHeap, err := parseSize(stressMaxHeap)
	if err != nil {
		return err
	}
	pureBytes, err := parseSize(stressPure)
	if err != nil {
		return err
	}

	finalized := 0
	cfg := heap.Config{
		PureBytes:    int(pureBytes),
		MaxHeapBytes: maxHeap,
		GCThreshold:  threshold,
		GCPercentage: stressPercentage,
		CallFunc: func(fn value.Value) error {
			finalized++
			return nil
		},
		OnPostGC: func(rep heap.Report) {
			logger.Debug("collection finished",
				"cycle", rep.Collections,
				"live", rep.LiveBytes,
				"mapped", rep.HeapBytes,
				"next", rep.NextGCBytes)
			printVerbose("cycle %d: %s live, %s mapped\n",
				rep.Collections,
				bytesize.New(float64(rep.LiveBytes)),
				bytesize.New(float64(rep.HeapBytes)))
		},
	}

	h, err := heap.New(cfg)
	if err != nil {
		return fmt.Errorf("heap setup failed: %w", err)
	}

	logger.Info("stress run starting",
		"steps", stressSteps, "live", stressLive, "seed", stressSeed)

	rng := rand.New(rand.NewSource(stressSeed))
	result := StressResult{Steps: stressSteps}

	// Retained bindings. Each slot is an exact root; dropping one makes
	// its object garbage for the next cycle.
	var kept []*value.Value
	retain := func(v value.Value) {
		slot := new(value.Value)
		*slot = v
		h.RegisterRoot(slot)
		kept = append(kept, slot)
	}

	// Bounded-churn hash table standing in for an obarray-sized structure.
	table, err := h.MakeHashTable(heap.WeakNone, 1024)
	if err != nil {
		return err
	}
	retain(table)

	// relieve drops half the working set and collects, the embedder's move
	// when a budgeted run hits the memory-full wall.
	relieve := func() error {
		for i := 1; i < len(kept); i += 2 {
			*kept[i] = value.Nil
		}
		if _, cerr := h.Collect(); cerr != nil {
			return cerr
		}
		result.PressureEvents++
		logger.Warn("memory pressure relieved", "events", result.PressureEvents)
		return nil
	}

	// alloc retries an allocation once after relieving pressure.
	alloc := func(mk func() (value.Value, error)) (value.Value, error) {
		v, aerr := mk()
		if errors.Is(aerr, heap.ErrMemoryFull) {
			if rerr := relieve(); rerr != nil {
				return value.Nil, rerr
			}
			v, aerr = mk()
		}
		return v, aerr
	}

	for i := range stressSteps {
		switch rng.Intn(12) {
		case 0, 1, 2, 3: // scratch list
			head := value.Nil
			for range 1 + rng.Intn(16) {
				v, aerr := alloc(func() (value.Value, error) {
					return h.Cons(value.MakeFixnum(int64(i)), head)
				})
				if aerr != nil {
					return aerr
				}
				head = v
			}
		case 4: // retained list
			head := value.Nil
			for range 1 + rng.Intn(12) {
				v, aerr := alloc(func() (value.Value, error) {
					return h.Cons(value.MakeFixnum(rng.Int63n(1<<40)), head)
				})
				if aerr != nil {
					return aerr
				}
				head = v
			}
			retain(head)
		case 5, 6: // scratch string
			if _, aerr := alloc(func() (value.Value, error) {
				return h.MakeString(fmt.Sprintf("scratch-%d", i))
			}); aerr != nil {
				return aerr
			}
		case 7: // retained string
			v, aerr := alloc(func() (value.Value, error) {
				return h.MakeString(fmt.Sprintf("kept-%d-%d", i, rng.Int63()))
			})
			if aerr != nil {
				return aerr
			}
			retain(v)
		case 8: // vector, retained half the time
			v, aerr := alloc(func() (value.Value, error) {
				return h.MakeVector(1+rng.Intn(32), value.MakeFixnum(int64(i)))
			})
			if aerr != nil {
				return aerr
			}
			if rng.Intn(2) == 0 {
				retain(v)
			}
		case 9: // float garbage
			if _, aerr := alloc(func() (value.Value, error) {
				return h.MakeFloat(float64(i) * 1.5)
			}); aerr != nil {
				return aerr
			}
		case 10: // symbol with a plain binding, then hash table churn
			name, aerr := alloc(func() (value.Value, error) {
				return h.MakeString(fmt.Sprintf("sym-%d", i))
			})
			if aerr != nil {
				return aerr
			}
			sym, aerr := alloc(func() (value.Value, error) {
				return h.MakeSymbol(name)
			})
			if aerr != nil {
				return aerr
			}
			h.SetSymbolValue(sym, value.MakeFixnum(int64(i)))
			if aerr = h.HashPut(table,
				value.MakeFixnum(int64(i%4096)), sym); aerr != nil {
				return aerr
			}
		case 11: // finalizer on a soon-dead record
			fn, aerr := alloc(func() (value.Value, error) {
				return h.MakeString(fmt.Sprintf("fin-%d", i))
			})
			if aerr != nil {
				return aerr
			}
			if _, aerr = alloc(func() (value.Value, error) {
				return h.MakeFinalizer(fn)
			}); aerr != nil {
				return aerr
			}
		}

		if len(kept) > stressLive {
			j := rng.Intn(len(kept))
			*kept[j] = value.Nil
			kept[j] = kept[len(kept)-1]
			kept = kept[:len(kept)-1]
		}

		if _, aerr := h.MaybeCollect(stressFactor); aerr != nil {
			return fmt.Errorf("collection failed at step %d: %w", i, aerr)
		}
	}

	rep, err := h.Collect()
	if err != nil {
		return fmt.Errorf("final collection failed: %w", err)
	}

	result.Retained = len(kept)
	result.Collections = rep.Collections
	result.GCTime = rep.Elapsed
	if rep.Collections > 0 {
		result.AvgPause = rep.Elapsed / time.Duration(rep.Collections)
	}
	result.FinalizersRun = finalized
	result.Report = rep

	logger.Info("stress run finished",
		"collections", result.Collections, "gc_time", result.GCTime)

	if jsonOut {
		return printJSON(result)
	}

	printInfo("\nStress Result:\n")
	printInfo("  Steps: %s\n", formatNumber(int64(result.Steps)))
	printInfo("  Retained bindings: %s\n", formatNumber(int64(result.Retained)))
	printInfo("  Collections: %s\n", formatNumber(result.Collections))
	printInfo("  Total pause: %v\n", result.GCTime)
	printInfo("  Avg pause: %v\n", result.AvgPause)
	printInfo("  Finalizers run: %s\n", formatNumber(int64(result.FinalizersRun)))
	if result.PressureEvents > 0 {
		printInfo("  Pressure events: %d\n", result.PressureEvents)
	}
	printInfo("\n")
	printReport(rep)
	return nil
}
