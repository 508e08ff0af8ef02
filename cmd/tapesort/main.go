// Command tapesort reads a YAML configuration file describing a tape sort
// job and runs it to completion.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/maladetska/tapesorter/internal/config"
	"github.com/maladetska/tapesorter/internal/logging"
	"github.com/maladetska/tapesorter/internal/wiring"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "run the sort with zero delays and report the operation counts and estimated wall time (the sorted output is still written)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tapesort [--dry-run] <config.yaml>")
		os.Exit(1)
	}
	cfgPath := flag.Arg(0)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(cfg.Logger)

	if *dryRun {
		report, err := wiring.DryRun(cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("reads=%d writes=%d shifts=%d estimated=%s\n",
			report.Reads, report.Writes, report.Shifts, report.Estimated)
		return
	}

	if err := wiring.Run(cfgPath); err != nil {
		slog.Error("sort failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
