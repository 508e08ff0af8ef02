// Package sorter drives an external merge sort over the tape abstraction: an
// initial chunk-sort pass followed by an iterative pairwise merge tree.
package sorter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/maladetska/tapesorter/internal/tempdir"
	"github.com/maladetska/tapesorter/pkg/tape"
	"github.com/maladetska/tapesorter/pkg/tape/chunk"
	"github.com/maladetska/tapesorter/pkg/tape/delays"
)

// TapeSorter sorts in onto out, staging intermediate runs under tmpRoot.
type TapeSorter struct {
	in      *tape.Tape
	out     *tape.Tape
	tmpRoot string
	delays  delays.Delays
}

// New builds a TapeSorter. tmpRoot is the root temp directory for
// intermediate runs; d is the latency profile every run and merge-result
// tape is built with.
func New(in, out *tape.Tape, tmpRoot string, d delays.Delays) *TapeSorter {
	return &TapeSorter{in: in, out: out, tmpRoot: tmpRoot, delays: d}
}

// Sort runs the full split-then-merge algorithm, leaving the sorted result
// at out's path.
func (s *TapeSorter) Sort() error {
	chunksNumber := s.in.ChunksNumber()
	if s.in.Size() == 0 || chunksNumber == 0 {
		return truncateEmpty(s.out.Path())
	}

	root, err := tempdir.New(s.tmpRoot)
	if err != nil {
		return fmt.Errorf("sorter: create temp root: %w", err)
	}
	defer tempdir.Remove(root)

	runs, err := s.split(root)
	if err != nil {
		return fmt.Errorf("sorter: split: %w", err)
	}

	if len(runs) == 1 {
		return s.finishSingleRun(runs[0])
	}

	pass := 1
	for len(runs) != 2 {
		passDir := filepath.Join(root, fmt.Sprintf("%d", pass))
		if err := os.MkdirAll(passDir, 0o755); err != nil {
			return fmt.Errorf("sorter: create pass dir: %w", err)
		}
		runs, err = s.mergePass(passDir, runs)
		if err != nil {
			return fmt.Errorf("sorter: merge pass %d: %w", pass, err)
		}
		os.RemoveAll(filepath.Join(root, fmt.Sprintf("%d", pass-1)))
		pass++
	}

	result, err := s.merge(runs[0], runs[1], s.out.Path())
	if err != nil {
		return fmt.Errorf("sorter: final merge: %w", err)
	}
	return result.Close()
}

// split reads the input tape chunk by chunk, sorts each chunk in memory, and
// writes it out as its own single-chunk sorted run. Every run's chunk width
// is pinned to the input tape's global max chunk size, so every pair
// entering the first merge pass already shares a width.
func (s *TapeSorter) split(root string) ([]*tape.Tape, error) {
	passDir := filepath.Join(root, "0")
	if err := os.MkdirAll(passDir, 0o755); err != nil {
		return nil, err
	}

	n := s.in.ChunksNumber()
	width := s.in.MaxChunkSize()
	runs := make([]*tape.Tape, n)
	for i := chunk.ChunksNumber(0); i < n; i++ {
		if err := s.in.ReadChunkRight(); err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", i, err)
		}
		buf := s.in.ChunkElements()
		sort.Slice(buf, func(a, b int) bool { return buf[a] < buf[b] })

		runPath := filepath.Join(passDir, fmt.Sprintf("%d.txt", i))
		if err := writeTokens(runPath, buf); err != nil {
			return nil, fmt.Errorf("write run %d: %w", i, err)
		}
		run, err := tape.NewRun(runPath, tape.TapeSize(len(buf)), width, s.tmpRoot, s.delays)
		if err != nil {
			return nil, err
		}
		runs[i] = run
	}
	s.in.ClearChunk()
	return runs, nil
}

// mergePass pairs up adjacent runs and merges each pair into dir. An odd run
// left over is moved (not copied) into dir and re-parented at the new path,
// rather than merged against itself.
func (s *TapeSorter) mergePass(dir string, runs []*tape.Tape) ([]*tape.Tape, error) {
	n := len(runs)
	outCount := n / 2
	if n%2 != 0 {
		outCount++
	}
	next := make([]*tape.Tape, outCount)

	idx := 0
	for i := 0; i+1 < n; i, idx = i+2, idx+1 {
		outPath := filepath.Join(dir, fmt.Sprintf("%d.txt", idx))
		merged, err := s.merge(runs[i], runs[i+1], outPath)
		if err != nil {
			return nil, fmt.Errorf("merge pair %d: %w", idx, err)
		}
		next[idx] = merged
	}

	if n%2 != 0 {
		last := runs[n-1]
		size, width := last.Size(), last.MaxChunkSize()
		if err := last.Close(); err != nil {
			return nil, fmt.Errorf("close odd run: %w", err)
		}
		newPath := filepath.Join(dir, fmt.Sprintf("%d.txt", idx))
		if err := moveFile(last.Path(), newPath); err != nil {
			return nil, fmt.Errorf("carry odd run: %w", err)
		}
		carried, err := tape.NewRun(newPath, size, width, s.tmpRoot, s.delays)
		if err != nil {
			return nil, err
		}
		next[idx] = carried
	}
	return next, nil
}

// merge combines sorted runs a and b into a new run at outPath, assembling
// one output chunk at a time.
func (s *TapeSorter) merge(a, b *tape.Tape, outPath string) (*tape.Tape, error) {
	size := a.Size() + b.Size()
	width := a.MaxChunkSize()

	result, err := tape.NewRun(outPath, size, width, s.tmpRoot, s.delays)
	if err != nil {
		return nil, err
	}
	info := chunk.NewInfo(width, size)

	endA, endB := false, false
	for i := chunk.ChunksNumber(0); i+1 < info.ChunksNumber; i++ {
		endA, endB, err = mergeOneChunk(result, a, b, endA, endB, info.MaxChunkSize)
		if err != nil {
			return nil, err
		}
	}
	if info.ChunksNumber > 0 {
		endA, endB, err = mergeOneChunk(result, a, b, endA, endB, info.WidthOf(info.ChunksNumber-1))
		if err != nil {
			return nil, err
		}
	}

	a.ClearChunk()
	b.ClearChunk()
	if err := a.Close(); err != nil {
		return nil, err
	}
	if err := b.Close(); err != nil {
		return nil, err
	}
	// The writes above leave result's head on its last cell; reopen it so the
	// next merge reads it from its first cell.
	if err := result.Close(); err != nil {
		return nil, err
	}
	return tape.NewRun(outPath, size, width, s.tmpRoot, s.delays)
}

// mergeOneChunk assembles one output chunk of size cells from a and b and
// writes it into result via WriteCell+MoveLeft, returning the updated
// exhaustion flags for a and b.
func mergeOneChunk(result, a, b *tape.Tape, endA, endB bool, size chunk.ChunkSize) (bool, bool, error) {
	buf := make([]int32, 0, size)
	for chunk.ChunkSize(len(buf)) < size {
		switch {
		case endA && endB:
			return endA, endB, fmt.Errorf("both runs exhausted before chunk filled")
		case endA:
			v, more, err := nextCell(b)
			if err != nil {
				return endA, endB, err
			}
			buf = append(buf, v)
			endB = !more
		case endB:
			v, more, err := nextCell(a)
			if err != nil {
				return endA, endB, err
			}
			buf = append(buf, v)
			endA = !more
		default:
			va, err := a.ReadCell()
			if err != nil {
				return endA, endB, err
			}
			vb, err := b.ReadCell()
			if err != nil {
				return endA, endB, err
			}
			if va < vb {
				buf = append(buf, va)
				more, err := a.MoveLeft()
				if err != nil {
					return endA, endB, err
				}
				endA = !more
			} else {
				buf = append(buf, vb)
				more, err := b.MoveLeft()
				if err != nil {
					return endA, endB, err
				}
				endB = !more
			}
		}
	}

	for _, v := range buf {
		if err := result.WriteCell(v); err != nil {
			return endA, endB, err
		}
		if _, err := result.MoveLeft(); err != nil {
			return endA, endB, err
		}
	}
	return endA, endB, nil
}

// nextCell reads the current cell of t and advances it one step, reporting
// whether t still has more cells beyond the one just read.
func nextCell(t *tape.Tape) (int32, bool, error) {
	v, err := t.ReadCell()
	if err != nil {
		return 0, false, err
	}
	more, err := t.MoveLeft()
	if err != nil {
		return 0, false, err
	}
	return v, more, nil
}

// finishSingleRun handles the case where the whole input fits in one chunk:
// the single sorted run already is the answer, so it's moved straight to
// the output path rather than merged with anything.
func (s *TapeSorter) finishSingleRun(run *tape.Tape) error {
	path := run.Path()
	if err := run.Close(); err != nil {
		return fmt.Errorf("close single run: %w", err)
	}
	if err := moveFile(path, s.out.Path()); err != nil {
		return fmt.Errorf("move single run to output: %w", err)
	}
	return nil
}

func writeTokens(path string, cells []int32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range cells {
		if _, err := fmt.Fprintf(w, "%d ", v); err != nil {
			return err
		}
	}
	return w.Flush()
}

func truncateEmpty(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create empty output: %w", err)
	}
	return f.Close()
}

// moveFile renames src to dst, falling back to copy-then-remove when they
// don't share a filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return os.Remove(src)
}
