package tape

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maladetska/tapesorter/pkg/tape/delays"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpenDerivesChunkWidth(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.txt", "3 1 2 4 ")

	// memory=256 cells -> width = min(256/16, 4) = 4.
	tp, err := Open(path, 4, 256, dir, delays.New(0, 0, 0))
	require.NoError(t, err)
	defer tp.Close()

	require.EqualValues(t, 4, tp.Size())
	require.EqualValues(t, 4, tp.MaxChunkSize())
	require.EqualValues(t, 1, tp.ChunksNumber())
}

func TestReadCellAndMoveLeftRight(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.txt", "10 20 30 ")

	tp, err := NewRun(path, 3, 2, dir, delays.New(0, 0, 0))
	require.NoError(t, err)
	defer tp.Close()

	v, err := tp.ReadCell()
	require.NoError(t, err)
	require.EqualValues(t, 10, v)

	more, err := tp.MoveLeft()
	require.NoError(t, err)
	require.True(t, more)
	v, err = tp.ReadCell()
	require.NoError(t, err)
	require.EqualValues(t, 20, v)

	more, err = tp.MoveLeft()
	require.NoError(t, err)
	require.True(t, more)
	v, err = tp.ReadCell()
	require.NoError(t, err)
	require.EqualValues(t, 30, v)

	more, err = tp.MoveLeft()
	require.NoError(t, err)
	require.False(t, more, "MoveLeft past the last cell must refuse, not error")

	more, err = tp.MoveRight()
	require.NoError(t, err)
	require.True(t, more)
	v, err = tp.ReadCell()
	require.NoError(t, err)
	require.EqualValues(t, 20, v)
}

func TestMoveRightRefusesAtGlobalLeftmost(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.txt", "1 2 3 ")

	tp, err := NewRun(path, 3, 3, dir, delays.New(0, 0, 0))
	require.NoError(t, err)
	defer tp.Close()

	_, err = tp.ReadCell()
	require.NoError(t, err)
	more, err := tp.MoveRight()
	require.NoError(t, err)
	require.False(t, more)
}

func TestWriteCellPreservesPosition(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.txt", "1 2 3 4 ")

	tp, err := NewRun(path, 4, 2, dir, delays.New(0, 0, 0))
	require.NoError(t, err)
	defer tp.Close()

	more, err := tp.MoveLeft()
	require.NoError(t, err)
	require.True(t, more)
	more, err = tp.MoveLeft()
	require.NoError(t, err)
	require.True(t, more)

	v, err := tp.ReadCell()
	require.NoError(t, err)
	require.EqualValues(t, 3, v)

	require.NoError(t, tp.WriteCell(99))

	v, err = tp.ReadCell()
	require.NoError(t, err)
	require.EqualValues(t, 99, v, "WriteCell must land on the cell the head was over, and the head must still be there afterward")
}

func TestWriteCellChargesExactlyOneWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.txt", "1 2 3 4 5 6 ")

	var counters delays.Counters
	d := delays.New(0, 0, 0).WithCounters(&counters)
	tp, err := NewRun(path, 6, 3, dir, d)
	require.NoError(t, err)
	defer tp.Close()

	require.NoError(t, tp.WriteCell(42))
	require.EqualValues(t, 1, counters.Writes())
}

func TestReadChunkRightLeft(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "in.txt", "1 2 3 4 5 6 ")

	tp, err := NewRun(path, 6, 2, dir, delays.New(0, 0, 0))
	require.NoError(t, err)
	defer tp.Close()

	require.NoError(t, tp.ReadChunkRight())
	require.Equal(t, []int32{1, 2}, tp.ChunkElements())

	require.NoError(t, tp.ReadChunkRight())
	require.Equal(t, []int32{3, 4}, tp.ChunkElements())

	require.NoError(t, tp.ReadChunkLeft())
	require.Equal(t, []int32{1, 2}, tp.ChunkElements())
}
