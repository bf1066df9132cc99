package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult represents a parsed benchmark result.
type BenchmarkResult struct {
	Name        string
	Operation   string
	Variant     string // subtest parameter, e.g. vector size
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

// ComparisonResult pairs a current result with its baseline counterpart.
type ComparisonResult struct {
	Operation      string
	Variant        string
	CurrentNs      float64
	BaselineNs     float64
	Speedup        float64 // baseline / current; > 1 means the change helped
	CurrentMem     int64
	BaselineMem    int64
	CurrentAllocs  int64
	BaselineAllocs int64
	CurrentOnly    bool
}

var (
	inputFile = flag.String(
		"input",
		"",
		"Current benchmark output (stdin if not specified)",
	)
	baselineFile = flag.String("baseline", "", "Earlier benchmark output to compare against")
	outputFile   = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet        = flag.Bool("quiet", false, "Suppress progress output")
)

func main() {
	flag.Parse()

	current, err := readResults(*inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(current))
	}

	var baseline []BenchmarkResult
	if *baselineFile != "" {
		baseline, err = readResults(*baselineFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading baseline: %v\n", err)
			os.Exit(1)
		}
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Parsed %d baseline results\n", len(baseline))
		}
	}

	comparisons := generateComparisons(current, baseline)
	report := generateMarkdownReport(comparisons)

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(report), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
		}
	} else {
		fmt.Fprint(os.Stdout, report)
	}
}

func readResults(path string) ([]BenchmarkResult, error) {
	if path == "" {
		return parseBenchmarks(bufio.NewScanner(os.Stdin)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBenchmarks(bufio.NewScanner(f)), nil
}

func parseBenchmarks(scanner *bufio.Scanner) []BenchmarkResult {
	var results []BenchmarkResult

	// Regex to parse benchmark output lines
	// BenchmarkVectorChurn/17-8    500000    2450 ns/op    96 B/op    2 allocs/op
	benchmarkRegex := regexp.MustCompile(
		`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+(?:B|MB)/op)?(?:\s+([\d.]+)\s+allocs/op)?`,
	)

	for scanner.Scan() {
		line := scanner.Text()

		// Unwrap JSON test events (from -json flag)
		var testEvent map[string]any
		if err := json.Unmarshal([]byte(line), &testEvent); err == nil {
			if output, ok := testEvent["Output"].(string); ok {
				line = output
			}
		}

		matches := benchmarkRegex.FindStringSubmatch(strings.TrimSpace(line))
		if matches == nil {
			continue
		}

		name := matches[1]
		iterations, _ := strconv.Atoi(matches[2])
		nsPerOp, _ := strconv.ParseFloat(matches[3], 64)

		var bytesPerOp int64
		var allocsPerOp int64
		if matches[4] != "" {
			bytesPerOp, _ = strconv.ParseInt(matches[4], 10, 64)
		}
		if matches[5] != "" {
			allocsPerOp, _ = strconv.ParseInt(matches[5], 10, 64)
		}

		operation, variant := splitBenchmarkName(name)
		results = append(results, BenchmarkResult{
			Name:        name,
			Operation:   operation,
			Variant:     variant,
			Iterations:  iterations,
			NsPerOp:     nsPerOp,
			BytesPerOp:  bytesPerOp,
			AllocsPerOp: allocsPerOp,
		})
	}

	return results
}

// splitBenchmarkName takes apart Benchmark<Operation>[/<variant>]-<procs>.
func splitBenchmarkName(name string) (string, string) {
	parts := strings.Split(name, "/")

	operation := strings.TrimPrefix(parts[0], "Benchmark")
	variant := ""
	last := parts[len(parts)-1]

	// The -N GOMAXPROCS suffix rides on the last segment.
	if dashIdx := strings.LastIndex(last, "-"); dashIdx > 0 {
		last = last[:dashIdx]
	}
	if len(parts) == 1 {
		operation = last
	} else {
		variant = strings.Join(append(parts[1:len(parts)-1], last), "/")
	}
	return operation, variant
}

func generateComparisons(current, baseline []BenchmarkResult) []ComparisonResult {
	type key struct {
		operation string
		variant   string
	}

	base := make(map[key]BenchmarkResult)
	for _, r := range baseline {
		base[key{r.Operation, r.Variant}] = r
	}

	var comparisons []ComparisonResult
	for _, r := range current {
		k := key{r.Operation, r.Variant}
		b, ok := base[k]
		if !ok {
			comparisons = append(comparisons, ComparisonResult{
				Operation:     r.Operation,
				Variant:       r.Variant,
				CurrentNs:     r.NsPerOp,
				CurrentMem:    r.BytesPerOp,
				CurrentAllocs: r.AllocsPerOp,
				CurrentOnly:   true,
			})
			continue
		}
		comparisons = append(comparisons, ComparisonResult{
			Operation:      r.Operation,
			Variant:        r.Variant,
			CurrentNs:      r.NsPerOp,
			BaselineNs:     b.NsPerOp,
			Speedup:        b.NsPerOp / r.NsPerOp,
			CurrentMem:     r.BytesPerOp,
			BaselineMem:    b.BytesPerOp,
			CurrentAllocs:  r.AllocsPerOp,
			BaselineAllocs: b.AllocsPerOp,
		})
	}

	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].Operation != comparisons[j].Operation {
			return comparisons[i].Operation < comparisons[j].Operation
		}
		return comparisons[i].Variant < comparisons[j].Variant
	})

	return comparisons
}

func generateMarkdownReport(comparisons []ComparisonResult) string {
	var sb strings.Builder

	sb.WriteString("# GC Benchmark Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	improved := 0
	regressed := 0
	currentOnly := 0
	totalSpeedup := 0.0

	for _, comp := range comparisons {
		if comp.CurrentOnly {
			currentOnly++
			continue
		}
		if comp.Speedup > 1.0 {
			improved++
		} else if comp.Speedup < 1.0 {
			regressed++
		}
		totalSpeedup += comp.Speedup
	}

	comparableCount := len(comparisons) - currentOnly
	avgSpeedup := 0.0
	if comparableCount > 0 {
		avgSpeedup = totalSpeedup / float64(comparableCount)
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Total benchmarks**: %d\n", len(comparisons)))
	if comparableCount > 0 {
		sb.WriteString(fmt.Sprintf("- **Compared against baseline**: %d\n", comparableCount))
		sb.WriteString(
			fmt.Sprintf(
				"  - improved: %d (%.1f%%)\n",
				improved,
				float64(improved)/float64(comparableCount)*100,
			),
		)
		sb.WriteString(
			fmt.Sprintf(
				"  - regressed: %d (%.1f%%)\n",
				regressed,
				float64(regressed)/float64(comparableCount)*100,
			),
		)
		sb.WriteString(fmt.Sprintf("  - Average speedup: **%.2fx**\n", avgSpeedup))
	}
	if currentOnly > 0 {
		sb.WriteString(fmt.Sprintf("- **New benchmarks** (no baseline): %d\n", currentOnly))
	}
	sb.WriteString("\n")

	sb.WriteString("## Detailed Results\n\n")
	sb.WriteString(
		"| Operation | Variant | current (ns/op) | baseline (ns/op) | Speedup | Memory (B/op) | Allocs |\n",
	)
	sb.WriteString(
		"|-----------|---------|-----------------|------------------|---------|---------------|--------|\n",
	)

	for _, comp := range comparisons {
		if comp.CurrentOnly {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | *N/A* | *new* | %s | %s |\n",
				comp.Operation,
				comp.Variant,
				formatNumber(comp.CurrentNs),
				formatBytes(comp.CurrentMem),
				formatNumber(float64(comp.CurrentAllocs)),
			))
			continue
		}

		indicator := "✓"
		speedupStyle := "**"
		if comp.Speedup < 1.0 {
			indicator = "✗"
			speedupStyle = ""
		}

		memIndicator := ""
		if comp.CurrentMem < comp.BaselineMem {
			memIndicator = " ✓"
		} else if comp.CurrentMem > comp.BaselineMem {
			memIndicator = " ✗"
		}

		allocIndicator := ""
		if comp.CurrentAllocs < comp.BaselineAllocs {
			allocIndicator = " ✓"
		} else if comp.CurrentAllocs > comp.BaselineAllocs {
			allocIndicator = " ✗"
		}

		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s%.2fx%s %s | %s vs %s%s | %s vs %s%s |\n",
			comp.Operation,
			comp.Variant,
			formatNumber(comp.CurrentNs),
			formatNumber(comp.BaselineNs),
			speedupStyle,
			comp.Speedup,
			speedupStyle,
			indicator,
			formatBytes(comp.CurrentMem),
			formatBytes(comp.BaselineMem),
			memIndicator,
			formatNumber(float64(comp.CurrentAllocs)),
			formatNumber(float64(comp.BaselineAllocs)),
			allocIndicator,
		))
	}

	sb.WriteString("\n")

	sb.WriteString("## Performance by Category\n\n")

	categories := categorizeOperations(comparisons)
	for _, category := range []string{"Pairs", "Strings", "Vectors", "Tables", "Collection", "Other"} {
		comps := categories[category]
		if len(comps) == 0 {
			continue
		}

		avgSpeed := 0.0
		count := 0
		for _, comp := range comps {
			if !comp.CurrentOnly {
				avgSpeed += comp.Speedup
				count++
			}
		}

		if count > 0 {
			avgSpeed /= float64(count)
			status := "✓"
			if avgSpeed < 1.0 {
				status = "✗"
			}
			sb.WriteString(fmt.Sprintf("- %s **%s**: %.2fx average speedup %s\n",
				status, category, avgSpeed, status))
		} else {
			sb.WriteString(fmt.Sprintf("- **%s**: new benchmarks only\n", category))
		}
	}

	sb.WriteString("\n")

	sb.WriteString("## Notes\n\n")
	sb.WriteString("- **Speedup > 1.0**: current run is faster ✓\n")
	sb.WriteString("- **Speedup < 1.0**: current run regressed ✗\n")
	sb.WriteString("- **Memory comparison**: Lower is better\n")
	sb.WriteString("- **Allocations**: Fewer is better\n")
	sb.WriteString("- Run with `go test -bench . -benchmem ./heap/` and feed the output here\n")

	return sb.String()
}

func categorizeOperations(comparisons []ComparisonResult) map[string][]ComparisonResult {
	categories := map[string][]ComparisonResult{
		"Pairs":      {},
		"Strings":    {},
		"Vectors":    {},
		"Tables":     {},
		"Collection": {},
		"Other":      {},
	}

	for _, comp := range comparisons {
		op := strings.ToLower(comp.Operation)

		switch {
		case strings.Contains(op, "cons") || strings.Contains(op, "pair") ||
			strings.Contains(op, "list"):
			categories["Pairs"] = append(categories["Pairs"], comp)
		case strings.Contains(op, "string") || strings.Contains(op, "symbol") ||
			strings.Contains(op, "intern"):
			categories["Strings"] = append(categories["Strings"], comp)
		case strings.Contains(op, "vector") || strings.Contains(op, "record") ||
			strings.Contains(op, "closure"):
			categories["Vectors"] = append(categories["Vectors"], comp)
		case strings.Contains(op, "hash") || strings.Contains(op, "table"):
			categories["Tables"] = append(categories["Tables"], comp)
		case strings.Contains(op, "collect") || strings.Contains(op, "mark") ||
			strings.Contains(op, "sweep") || strings.Contains(op, "gc"):
			categories["Collection"] = append(categories["Collection"], comp)
		default:
			categories["Other"] = append(categories["Other"], comp)
		}
	}

	return categories
}

func formatNumber(n float64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.2fM", n/1000000)
	} else if n >= 1000 {
		return fmt.Sprintf("%.1fK", n/1000)
	}
	return fmt.Sprintf("%.0f", n)
}

func formatBytes(b int64) string {
	if b >= 1024*1024 {
		return fmt.Sprintf("%.2fMB", float64(b)/(1024*1024))
	} else if b >= 1024 {
		return fmt.Sprintf("%.1fKB", float64(b)/1024)
	}
	return fmt.Sprintf("%dB", b)
}
