// Package main is the entry point of the batchidx CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/batchidx/cmd/batchidx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
