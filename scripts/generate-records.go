//go:build ignore

// Package main generates synthetic JSON-lines input for `batchidx load`.
// Usage: go run scripts/generate-records.go -n 100000 -output testdata/people.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	count       = flag.Int("n", 10000, "Number of records")
	output      = flag.String("output", "-", "Output file (- for stdout)")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
	replaceRate = flag.Float64("replace", 0.05, "Fraction of records that replace an earlier ID")
)

var (
	firstNames = []string{"Ada", "Alan", "Grace", "Edsger", "Barbara", "Donald", "Frances", "Ken", "Margaret", "Niklaus"}
	cities     = []string{"London", "Berlin", "Lagos", "Lima", "Osaka", "Oslo", "Pune", "Quito", "Sydney", "Toronto"}
	tags       = []string{"admin", "beta", "dev", "ops", "qa", "sales", "support"}
)

type record struct {
	ID      int64          `json:"id"`
	Props   map[string]any `json:"props"`
	Replace bool           `json:"replace,omitempty"`
}

func main() {
	flag.Parse()

	var w io.Writer = os.Stdout
	if *output != "-" {
		if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
			fail(err)
		}
		f, err := os.Create(*output)
		if err != nil {
			fail(err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	bw := bufio.NewWriter(w)
	if err := generate(bw, rand.New(rand.NewSource(*seed)), *count, *replaceRate); err != nil {
		fail(err)
	}
	if err := bw.Flush(); err != nil {
		fail(err)
	}
	if *output != "-" {
		fmt.Fprintf(os.Stderr, "wrote %d records to %s\n", *count, *output)
	}
}

func generate(w io.Writer, rng *rand.Rand, n int, replaceRate float64) error {
	enc := json.NewEncoder(w)
	var next int64
	for i := 0; i < n; i++ {
		rec := record{ID: next}
		if next > 0 && rng.Float64() < replaceRate {
			rec.ID = rng.Int63n(next)
			rec.Replace = true
		} else {
			next++
		}

		props := map[string]any{
			"name": firstNames[rng.Intn(len(firstNames))],
			"city": cities[rng.Intn(len(cities))],
			"age":  18 + rng.Intn(70),
		}
		if rng.Intn(3) == 0 {
			props["active"] = rng.Intn(2) == 0
		}
		if k := rng.Intn(3); k > 0 {
			picked := make([]string, 0, k)
			for _, j := range rng.Perm(len(tags))[:k] {
				picked = append(picked, tags[j])
			}
			props["tags"] = picked
		}
		rec.Props = props

		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
