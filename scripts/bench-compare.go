//go:build ignore

// Package main compares two `go test -bench` outputs for the store backends
// and fails when a benchmark got slower than the threshold allows.
//
// Usage:
//
//	go test -run '^$' -bench . ./internal/store/ > new.txt
//	go run scripts/bench-compare.go -threshold 0.2 new.txt base.txt
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	threshold = flag.Float64("threshold", 0.20, "Allowed slowdown as a fraction")
	asJSON    = flag.Bool("json", false, "Print the comparison as JSON")
	showAll   = flag.Bool("all", false, "List unchanged benchmarks too")
)

// sample is one benchmark line. Metrics maps unit to value, e.g.
// "ns/op" or the custom "entries/sec" reported by the backend benchmarks.
type sample struct {
	Name    string
	Metrics map[string]float64
}

// delta compares one benchmark across the two runs.
type delta struct {
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Current  float64 `json:"current"`
	Baseline float64 `json:"baseline"`
	Change   float64 `json:"change_percent"`
	Status   string  `json:"status"`
}

// higherIsBetter lists units where a larger number is an improvement.
var higherIsBetter = map[string]bool{"entries/sec": true, "MB/s": true}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] current.txt baseline.txt\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := readSamples(flag.Arg(0))
	if err != nil {
		fail(err)
	}
	baseline, err := readSamples(flag.Arg(1))
	if err != nil {
		fail(err)
	}

	deltas := compare(current, baseline, *threshold)
	regressed := 0
	for _, d := range deltas {
		if d.Status == "REGRESSION" {
			regressed++
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(deltas); err != nil {
			fail(err)
		}
	} else {
		printTable(deltas)
	}

	if regressed > 0 {
		fmt.Fprintf(os.Stderr, "%d benchmark(s) regressed by more than %.0f%%\n", regressed, *threshold*100)
		os.Exit(1)
	}
}

func readSamples(path string) (map[string]sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	out := make(map[string]sample)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s, ok := parseLine(sc.Text()); ok {
			out[s.Name] = s
		}
	}
	return out, sc.Err()
}

// parseLine reads "BenchmarkX-8  120  9876 ns/op  5012 entries/sec".
// The -N GOMAXPROCS suffix is dropped so runs on different hosts line up.
func parseLine(line string) (sample, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
		return sample{}, false
	}
	if _, err := strconv.Atoi(fields[1]); err != nil {
		return sample{}, false
	}

	name := fields[0]
	if i := strings.LastIndexByte(name, '-'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			name = name[:i]
		}
	}

	s := sample{Name: name, Metrics: make(map[string]float64)}
	for i := 2; i+1 < len(fields); i += 2 {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			break
		}
		s.Metrics[fields[i+1]] = v
	}
	return s, len(s.Metrics) > 0
}

func compare(current, baseline map[string]sample, limit float64) []delta {
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []delta
	for _, name := range names {
		cur := current[name]
		base, ok := baseline[name]
		if !ok {
			out = append(out, delta{Name: name, Status: "NEW"})
			continue
		}
		for unit, cv := range cur.Metrics {
			bv, ok := base.Metrics[unit]
			if !ok || bv == 0 {
				continue
			}
			change := (cv - bv) / bv
			worse := change
			if higherIsBetter[unit] {
				worse = -change
			}
			status := "OK"
			switch {
			case worse > limit:
				status = "REGRESSION"
			case worse < -limit:
				status = "IMPROVED"
			}
			out = append(out, delta{
				Name: name, Unit: unit,
				Current: cv, Baseline: bv,
				Change: change * 100, Status: status,
			})
		}
	}
	for name := range baseline {
		if _, ok := current[name]; !ok {
			out = append(out, delta{Name: name, Status: "MISSING"})
		}
	}
	return out
}

func printTable(deltas []delta) {
	fmt.Printf("%-48s %-10s %14s %14s %9s  %s\n", "BENCHMARK", "UNIT", "CURRENT", "BASELINE", "CHANGE", "STATUS")
	for _, d := range deltas {
		if d.Status == "OK" && !*showAll {
			continue
		}
		if d.Unit == "" {
			fmt.Printf("%-48s %-10s %14s %14s %9s  %s\n", d.Name, "-", "-", "-", "-", d.Status)
			continue
		}
		fmt.Printf("%-48s %-10s %14.1f %14.1f %+8.1f%%  %s\n",
			d.Name, d.Unit, d.Current, d.Baseline, d.Change, d.Status)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
