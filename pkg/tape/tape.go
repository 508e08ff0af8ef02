// Package tape implements the simulated tape device: an ordered sequence of
// N cells persisted as whitespace-separated integers in a text file, paged
// through a single resident Chunk window under a RAM budget.
package tape

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/maladetska/tapesorter/internal/tempdir"
	"github.com/maladetska/tapesorter/pkg/tape/chunk"
	"github.com/maladetska/tapesorter/pkg/tape/delays"
)

// TapeSize counts cells on a tape. MemorySize is the configured RAM budget
// M, in cells, matching the config file's units directly.
type TapeSize = uint32
type MemorySize = uint32

// widthDivider is the divisor K in chunk width W = min(M/K, N).
const widthDivider = 16

// ErrBadToken is returned when a tape file contains a non-integer token.
var ErrBadToken = errors.New("tape: non-integer token in tape file")

// Tape is a state machine over one resident Chunk, backed by a text file of
// whitespace-separated integers.
type Tape struct {
	path   string
	size   TapeSize
	info   chunk.Info
	cur    chunk.Chunk
	delays delays.Delays
	unused bool
	file   *os.File
	tmpDir string
}

// Open opens an existing or as-yet-empty tape file of size cells, deriving
// chunk width from the RAM budget memory as W = min(M/K, N).
// tmpDir is the root under which WriteCell's private rewrite scratch lives.
func Open(path string, size TapeSize, memory MemorySize, tmpDir string, d delays.Delays) (*Tape, error) {
	width := min(memory/widthDivider, size)
	return open(path, size, width, tmpDir, d)
}

// NewEmpty opens an as-yet-unsized tape: a placeholder for a tape whose
// geometry (size, chunk width) isn't known until something else materializes
// it — typically an output tape before the sorter decides its final size.
func NewEmpty(path, tmpDir string, d delays.Delays) (*Tape, error) {
	return open(path, 0, 0, tmpDir, d)
}

// NewRun opens a tape at path with an externally computed chunk width,
// bypassing the M/K divisor calculation — the constructor pkg/sorter uses to
// hand a run or merge result tape a chunk width it has already decided,
// without reaching into Tape's internals. If path doesn't exist yet or is
// empty while size > 0, the
// backing file is pre-filled with size zero placeholders so the tape's
// normal chunk-paging machinery has something to page in — the caller (the
// sorter's merge routine) then overwrites those placeholders cell by cell via
// WriteCell, in order, as it builds the result.
func NewRun(path string, size TapeSize, width chunk.ChunkSize, tmpDir string, d delays.Delays) (*Tape, error) {
	info, statErr := os.Stat(path)
	needsPlaceholders := statErr != nil || info.Size() == 0
	if needsPlaceholders && size > 0 {
		if err := writePlaceholders(path, size); err != nil {
			return nil, fmt.Errorf("tape: seed run %s: %w", path, err)
		}
	}
	return open(path, size, width, tmpDir, d)
}

func open(path string, size TapeSize, width chunk.ChunkSize, tmpDir string, d delays.Delays) (*Tape, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tape: open %s: %w", path, err)
	}
	return &Tape{
		path:   path,
		size:   size,
		info:   chunk.NewInfo(width, size),
		cur:    chunk.New(d, 0, 0),
		delays: d,
		unused: true,
		file:   f,
		tmpDir: tmpDir,
	}, nil
}

func writePlaceholders(path string, size TapeSize) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := TapeSize(0); i < size; i++ {
		if _, err := w.WriteString("0 "); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Path, Size, ChunksNumber, MaxChunkSize and MinChunkSize are pure
// accessors over the tape's geometry.
func (t *Tape) Path() string { return t.path }
func (t *Tape) Size() TapeSize { return t.size }
func (t *Tape) ChunksNumber() chunk.ChunksNumber { return t.info.ChunksNumber }
func (t *Tape) MaxChunkSize() chunk.ChunkSize { return t.info.MaxChunkSize }
func (t *Tape) MinChunkSize() chunk.ChunkSize { return t.info.LastChunkSize }

// ChunkElements snapshots the resident chunk's cells. No latency charged.
func (t *Tape) ChunkElements() []int32 { return t.cur.Elements() }

// ClearChunk releases the resident chunk between merge passes.
func (t *Tape) ClearChunk() { t.cur.Clear() }

// Close releases the tape's backing file handle.
func (t *Tape) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	if err != nil {
		return fmt.Errorf("tape: close %s: %w", t.path, err)
	}
	return nil
}

// ensureInit forces the one-time transition out of the Unused state: chunk 0
// is loaded and the head is pinned to offset 0.
func (t *Tape) ensureInit() error {
	if !t.unused {
		return nil
	}
	if t.info.ChunksNumber == 0 {
		return nil
	}
	if err := t.loadChunk(0); err != nil {
		return err
	}
	t.cur.PlaceHeadLeft()
	t.unused = false
	return nil
}

// ReadCell forces initialization and returns the cell under the head,
// charging one read.
func (t *Tape) ReadCell() (int32, error) {
	if err := t.ensureInit(); err != nil {
		return 0, err
	}
	return t.cur.Current(), nil
}

// MoveRight shifts the tape medium one cell right: the head now refers to
// what was the cell to its left. Returns false, with no error, when already
// at the tape's global leftmost cell.
func (t *Tape) MoveRight() (bool, error) {
	if err := t.ensureInit(); err != nil {
		return false, err
	}
	if !t.cur.CanStepRight() {
		return false, nil
	}
	if !t.cur.StepTowardLeftEdge() {
		prevIndex := t.cur.Index()
		if err := t.loadChunk(prevIndex - 1); err != nil {
			return false, err
		}
		t.cur.PlaceHeadRight()
	}
	return true, nil
}

// MoveLeft is the mirror of MoveRight: the tape medium shifts one cell left,
// refusing only at the global rightmost cell.
func (t *Tape) MoveLeft() (bool, error) {
	if err := t.ensureInit(); err != nil {
		return false, err
	}
	if !t.cur.CanStepLeft(t.info.ChunksNumber) {
		return false, nil
	}
	if !t.cur.StepTowardRightEdge() {
		nextIndex := t.cur.Index() + 1
		if err := t.loadChunk(nextIndex); err != nil {
			return false, err
		}
		t.cur.PlaceHeadLeft()
	}
	return true, nil
}

// ReadChunkRight advances the resident window to the next chunk and places
// the head at its left edge — the sorter's split pass uses this to scan the
// input tape strictly left to right, one chunk at a time.
func (t *Tape) ReadChunkRight() error {
	if t.unused {
		return t.ensureInit()
	}
	nextIndex := t.cur.Index() + 1
	if err := t.loadChunk(nextIndex); err != nil {
		return err
	}
	t.cur.PlaceHeadLeft()
	return nil
}

// ReadChunkLeft is the mirror of ReadChunkRight: it reloads the previous
// chunk and places the head at its right edge.
func (t *Tape) ReadChunkLeft() error {
	if t.unused {
		return t.ensureInit()
	}
	if t.cur.Index() == 0 {
		return fmt.Errorf("tape: %s: no chunk left of chunk 0", t.path)
	}
	prevIndex := t.cur.Index() - 1
	if err := t.loadChunk(prevIndex); err != nil {
		return err
	}
	t.cur.PlaceHeadRight()
	return nil
}

// WriteCell replaces the cell under the head with value. Because the
// on-disk format is variable-width text, this cannot be a seek-and-overwrite:
// the tape rewrites its whole backing file through a private scratch file,
// charging exactly one write for the changed cell — the model bills logical
// I/O, not physical bytes rewritten. The resident chunk is then rebuilt from
// the tape's far end and walked forward back to its pre-call position,
// charging the shifts that walk costs, so the head and chunk index end up
// exactly where they were before the call.
func (t *Tape) WriteCell(value int32) error {
	if err := t.ensureInit(); err != nil {
		return err
	}
	targetIndex := t.cur.Index()
	targetPos := t.cur.Head()

	scratchDir, err := tempdir.New(t.tmpDir)
	if err != nil {
		return fmt.Errorf("tape: write cell: %w", err)
	}
	defer tempdir.Remove(scratchDir)

	scratchPath := filepath.Join(scratchDir, "rewrite.txt")
	if err := t.rewriteInto(scratchPath, targetIndex, targetPos, value); err != nil {
		return err
	}
	if err := t.replaceFileWith(scratchPath); err != nil {
		return err
	}

	lastIndex := t.info.ChunksNumber - 1
	if err := t.loadChunk(lastIndex); err != nil {
		return err
	}
	t.cur.PlaceHeadRight()
	for !t.cur.Matches(targetPos, targetIndex) {
		ok, err := t.MoveRight()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("tape: %s: lost position restoring after write", t.path)
		}
	}
	return nil
}

// rewriteInto streams every chunk of the current backing file into
// scratchPath, substituting value at (targetIndex, targetPos) in the one
// chunk it belongs to. Copying unchanged chunks is bulk bookkeeping, no
// latency charged; only the replaced cell charges a write.
func (t *Tape) rewriteInto(scratchPath string, targetIndex chunk.ChunksNumber, targetPos chunk.ChunkSize, value int32) error {
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("tape: rewrite %s: %w", t.path, err)
	}
	src := bufio.NewScanner(t.file)
	src.Split(bufio.ScanWords)

	out, err := os.Create(scratchPath)
	if err != nil {
		return fmt.Errorf("tape: rewrite %s: %w", t.path, err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	for i := chunk.ChunksNumber(0); i < t.info.ChunksNumber; i++ {
		width := t.info.WidthOf(i)
		buf := make([]int32, width)
		for pos := chunk.ChunkSize(0); pos < width; pos++ {
			if !src.Scan() {
				if err := src.Err(); err != nil {
					return fmt.Errorf("tape: rewrite %s: %w", t.path, err)
				}
				return fmt.Errorf("tape: rewrite %s: %w", t.path, io.ErrUnexpectedEOF)
			}
			if i != targetIndex || pos != targetPos {
				v, err := strconv.ParseInt(src.Text(), 10, 32)
				if err != nil {
					return fmt.Errorf("tape: rewrite %s: %w: %q", t.path, ErrBadToken, src.Text())
				}
				buf[pos] = int32(v)
			} else {
				t.delays.SleepFor(delays.KindWrite)
				buf[pos] = value
			}
		}
		built := chunk.FromElements(t.delays, i, buf)
		if err := built.Emit(w); err != nil {
			return fmt.Errorf("tape: rewrite %s: %w", t.path, err)
		}
	}
	return w.Flush()
}

// replaceFileWith streams scratchPath back into the tape's backing file,
// completing the rename-through-temp-file protocol.
func (t *Tape) replaceFileWith(scratchPath string) error {
	data, err := os.ReadFile(scratchPath)
	if err != nil {
		return fmt.Errorf("tape: replace %s: %w", t.path, err)
	}
	if err := t.file.Truncate(0); err != nil {
		return fmt.Errorf("tape: replace %s: %w", t.path, err)
	}
	if _, err := t.file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("tape: replace %s: %w", t.path, err)
	}
	return nil
}

// loadChunk rereads the backing file from the start, skips the tokens
// belonging to earlier chunks, and loads chunk newIndex into the resident
// window — charging one shift and one read per cell, per Chunk.Load.
func (t *Tape) loadChunk(newIndex chunk.ChunksNumber) error {
	width := t.info.WidthOf(newIndex)
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("tape: load chunk %d of %s: %w", newIndex, t.path, err)
	}
	sc := bufio.NewScanner(t.file)
	sc.Split(bufio.ScanWords)

	skip := uint64(newIndex) * uint64(t.info.MaxChunkSize)
	for i := uint64(0); i < skip; i++ {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return fmt.Errorf("tape: load chunk %d of %s: %w", newIndex, t.path, err)
			}
			return fmt.Errorf("tape: load chunk %d of %s: %w", newIndex, t.path, io.ErrUnexpectedEOF)
		}
	}

	src := &scannerSource{sc: sc}
	if err := t.cur.Load(src, newIndex, width); err != nil {
		return fmt.Errorf("tape: load chunk %d of %s: %w", newIndex, t.path, err)
	}
	return nil
}

// scannerSource adapts a bufio.Scanner positioned over whitespace-separated
// integers to Chunk's Source interface.
type scannerSource struct {
	sc *bufio.Scanner
}

func (s *scannerSource) Next() (int32, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	v, err := strconv.ParseInt(s.sc.Text(), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadToken, s.sc.Text())
	}
	return int32(v), nil
}
