package main

import (
	"errors"

	"github.com/inhies/go-bytesize"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
)

func init() {
	rootCmd.AddCommand(newMemInfoCmd())
}

func newMemInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meminfo",
		Short: "Show system memory as the heap's pressure probe sees it",
		Long: `The meminfo command prints the system memory figures the heap library
exposes to embedders that want to warn before the machine starts swapping.
Only supported on Linux.

Example:
  heapctl meminfo
  heapctl meminfo --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemInfo()
		},
	}
	return cmd
}

func runMemInfo() error {
	ms, ok := heap.MemInfo()
	if !ok {
		return errors.New("no system memory probe on this platform")
	}

	if jsonOut {
		return printJSON(ms)
	}

	// Figures arrive in KiB.
	printInfo("\nSystem Memory:\n")
	printInfo("  Total RAM: %s\n", bytesize.New(float64(ms.TotalRAM*1024)))
	printInfo("  Free RAM: %s\n", bytesize.New(float64(ms.FreeRAM*1024)))
	printInfo("  Total swap: %s\n", bytesize.New(float64(ms.TotalSwap*1024)))
	printInfo("  Free swap: %s\n", bytesize.New(float64(ms.FreeSwap*1024)))
	return nil
}
