// Package wiring constructs the dependency graph for one sort invocation —
// Delays -> Tape (in/out) -> TapeSorter -> CLI runner — mirroring
// catalinm00-KVDB's bootstrap.Run(): a dig.New() container, a flat list of
// constructors handed to container.Provide, then a single container.Invoke
// to kick off the work.
package wiring

import (
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/dig"

	"github.com/maladetska/tapesorter/internal/config"
	"github.com/maladetska/tapesorter/pkg/sorter"
	"github.com/maladetska/tapesorter/pkg/tape"
	"github.com/maladetska/tapesorter/pkg/tape/delays"
)

// tapePair carries both the input and output tape out of one constructor
// under distinct dig names — dig.Provide rejects two unnamed constructors
// returning the same type.
type tapePair struct {
	dig.Out
	TapeIn  *tape.Tape `name:"in"`
	TapeOut *tape.Tape `name:"out"`
}

type sortParams struct {
	dig.In
	TapeIn  *tape.Tape `name:"in"`
	TapeOut *tape.Tape `name:"out"`
}

// Run loads the configuration at cfgPath, wires the sort pipeline, and
// executes it end to end.
func Run(cfgPath string) error {
	container := dig.New()
	providers := []interface{}{
		func() (config.Config, error) { return config.Load(cfgPath) },
		provideDelays,
		provideTapes,
		provideSorter,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return fmt.Errorf("wiring: provide: %w", err)
		}
	}

	if err := container.Invoke(func(s *sorter.TapeSorter) error {
		return s.Sort()
	}); err != nil {
		return err
	}

	return container.Invoke(func(p sortParams) error {
		if err := p.TapeIn.Close(); err != nil {
			slog.Warn("failed to close input tape", "error", err)
		}
		if err := p.TapeOut.Close(); err != nil {
			slog.Warn("failed to close output tape", "error", err)
		}
		return nil
	})
}

func provideDelays(cfg config.Config) delays.Delays {
	return delays.New(cfg.ReadDelay(), cfg.WriteDelay(), cfg.ShiftDelay())
}

func provideTapes(cfg config.Config, d delays.Delays) (tapePair, error) {
	in, err := tape.Open(cfg.PathIn, cfg.N, cfg.M, cfg.TmpDir, d)
	if err != nil {
		return tapePair{}, fmt.Errorf("wiring: open input tape: %w", err)
	}
	out, err := tape.NewEmpty(cfg.PathOut, cfg.TmpDir, d)
	if err != nil {
		return tapePair{}, fmt.Errorf("wiring: open output tape: %w", err)
	}
	return tapePair{TapeIn: in, TapeOut: out}, nil
}

func provideSorter(cfg config.Config, d delays.Delays, p sortParams) *sorter.TapeSorter {
	return sorter.New(p.TapeIn, p.TapeOut, cfg.TmpDir, d)
}

// DryRun runs the identical split/merge algorithm with all three delays
// forced to zero but operation counters live, then reports the operation
// counts and the wall time the configured (non-zero) delays would have
// added. It does not change Sort()'s semantics, only what it's timed with.
func DryRun(cfgPath string) (Report, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return Report{}, err
	}

	var counters delays.Counters
	zero := delays.New(0, 0, 0).WithCounters(&counters)

	in, err := tape.Open(cfg.PathIn, cfg.N, cfg.M, cfg.TmpDir, zero)
	if err != nil {
		return Report{}, fmt.Errorf("wiring: dry run: open input tape: %w", err)
	}
	out, err := tape.NewEmpty(cfg.PathOut, cfg.TmpDir, zero)
	if err != nil {
		return Report{}, fmt.Errorf("wiring: dry run: open output tape: %w", err)
	}

	s := sorter.New(in, out, cfg.TmpDir, zero)
	if err := s.Sort(); err != nil {
		return Report{}, fmt.Errorf("wiring: dry run: sort: %w", err)
	}

	if err := in.Close(); err != nil {
		slog.Warn("failed to close input tape", "error", err)
	}
	if err := out.Close(); err != nil {
		slog.Warn("failed to close output tape", "error", err)
	}

	report := Report{
		Reads:  counters.Reads(),
		Writes: counters.Writes(),
		Shifts: counters.Shifts(),
	}
	report.Estimated = time.Duration(report.Reads)*cfg.ReadDelay() +
		time.Duration(report.Writes)*cfg.WriteDelay() +
		time.Duration(report.Shifts)*cfg.ShiftDelay()
	return report, nil
}

// Report summarizes a dry run: the operation counts the real sort would
// charge, and the wall-clock time those counts would add under the
// configured (non-zero) latencies.
type Report struct {
	Reads     uint64
	Writes    uint64
	Shifts    uint64
	Estimated time.Duration
}
