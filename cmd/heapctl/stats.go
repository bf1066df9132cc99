package main

import (
	"fmt"
	"strings"

	"github.com/inhies/go-bytesize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/cmd/heapctl/logger"
	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/heap/value"
)

var (
	statsProfile string
	statsObjects int
)

func init() {
	cmd := newStatsCmd()
	cmd.Flags().StringVar(&statsProfile, "profile", "mixed",
		"Workload profile: mixed, lists, strings, vectors")
	cmd.Flags().IntVar(&statsObjects, "objects", 100_000, "Objects to allocate and retain")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-kind occupancy for a canned workload",
		Long: `The stats command builds a fully retained object graph of the chosen
profile, collects once, and prints the per-kind occupancy report plus the
cumulative allocation counters.

Example:
  heapctl stats
  heapctl stats --profile strings --objects 50000
  heapctl stats --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
	return cmd
}

// StatsResult bundles the report with the monotonic counters for JSON output.
type StatsResult struct {
	Profile string
	Objects int
	Report  heap.Report
	Counts  heap.Counts
}

func runStats() error {
	h, err := heap.New(heap.Config{})
	if err != nil {
		return fmt.Errorf("heap setup failed: %w", err)
	}

	logger.Info("building workload", "profile", statsProfile, "objects", statsObjects)

	root := new(value.Value)
	h.RegisterRoot(root)

	switch statsProfile {
	case "lists":
		head := value.Nil
		for i := range statsObjects {
			if head, err = h.Cons(value.MakeFixnum(int64(i)), head); err != nil {
				return err
			}
		}
		*root = head
	case "strings":
		head := value.Nil
		for i := range statsObjects {
			s, serr := h.MakeString(fmt.Sprintf("string-%d", i))
			if serr != nil {
				return serr
			}
			if head, err = h.Cons(s, head); err != nil {
				return err
			}
		}
		*root = head
	case "vectors":
		head := value.Nil
		for i := range statsObjects {
			v, verr := h.MakeVector(1+i%16, value.MakeFixnum(int64(i)))
			if verr != nil {
				return verr
			}
			if head, err = h.Cons(v, head); err != nil {
				return err
			}
		}
		*root = head
	case "mixed":
		head := value.Nil
		for i := range statsObjects {
			var v value.Value
			var verr error
			switch i % 5 {
			case 0:
				v, verr = h.Cons(value.MakeFixnum(int64(i)), value.Nil)
			case 1:
				v, verr = h.MakeString(fmt.Sprintf("string-%d", i))
			case 2:
				v, verr = h.MakeVector(1+i%8, value.Nil)
			case 3:
				v, verr = h.MakeFloat(float64(i) * 0.25)
			case 4:
				var name value.Value
				if name, verr = h.MakeString(fmt.Sprintf("sym-%d", i)); verr == nil {
					v, verr = h.MakeSymbol(name)
				}
			}
			if verr != nil {
				return verr
			}
			if head, err = h.Cons(v, head); err != nil {
				return err
			}
		}
		*root = head
	default:
		return fmt.Errorf("unknown profile %q", statsProfile)
	}

	rep, err := h.Collect()
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	if jsonOut {
		return printJSON(StatsResult{
			Profile: statsProfile,
			Objects: statsObjects,
			Report:  rep,
			Counts:  h.UseCounts(),
		})
	}

	printInfo("\nHeap Statistics (%s profile, %s objects):\n",
		statsProfile, formatNumber(int64(statsObjects)))
	printInfo("%s\n\n", strings.Repeat("=", 48))
	printReport(rep)

	counts := h.UseCounts()
	printInfo("\nCumulative Allocation:\n")
	printInfo("  Pairs: %s\n", formatNumber(counts.Pairs))
	printInfo("  Strings: %s (%s chars)\n",
		formatNumber(counts.Strings), formatNumber(counts.StringChars))
	printInfo("  Vector cells: %s\n", formatNumber(counts.VectorCells))
	printInfo("  Symbols: %s\n", formatNumber(counts.Symbols))
	printInfo("  Floats: %s\n", formatNumber(counts.Floats))
	printInfo("  Intervals: %s\n", formatNumber(counts.Intervals))
	return nil
}

// printReport writes the shared text rendering of a collection report.
func printReport(rep heap.Report) {
	printInfo("Collector:\n")
	printInfo("  Collections: %s\n", formatNumber(rep.Collections))
	printInfo("  Live bytes: %s\n", bytesize.New(float64(rep.LiveBytes)))
	printInfo("  Mapped blocks: %s\n", bytesize.New(float64(rep.HeapBytes)))
	printInfo("  String payload: %s\n", bytesize.New(float64(rep.PayloadBytes)))
	printInfo("  Next trigger: %s\n", bytesize.New(float64(rep.NextGCBytes)))
	printInfo("  Pure storage: %s used, %s free\n",
		bytesize.New(float64(rep.PureUsed)), bytesize.New(float64(rep.PureFree)))
	if rep.MemoryFull {
		printInfo("  MEMORY FULL\n")
	}
	if rep.PureOverflow {
		printInfo("  PURE STORAGE OVERFLOWED (collection disabled)\n")
	}

	printInfo("\nKinds:\n")
	for _, k := range rep.Kinds {
		if k.Live == 0 && k.Free == 0 {
			continue
		}
		printInfo("  %-12s %s live / %s free (%s)\n",
			k.Kind,
			formatNumber(k.Live),
			formatNumber(k.Free),
			bytesize.New(float64(k.Live*k.ObjectBytes)))
	}
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	// Add commas
	var result strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}
