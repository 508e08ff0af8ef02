package sorter

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maladetska/tapesorter/pkg/tape"
	"github.com/maladetska/tapesorter/pkg/tape/delays"
)

func readInts(t *testing.T, path string) []int32 {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fields := strings.Fields(string(data))
	out := make([]int32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 32)
		require.NoError(t, err)
		out[i] = int32(v)
	}
	return out
}

func writeInts(t *testing.T, dir, name string, vals []int32) string {
	t.Helper()
	var sb strings.Builder
	for _, v := range vals {
		sb.WriteString(strconv.FormatInt(int64(v), 10))
		sb.WriteByte(' ')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func runSort(t *testing.T, vals []int32, memory tape.MemorySize, d delays.Delays) []int32 {
	t.Helper()
	dir := t.TempDir()
	inPath := writeInts(t, dir, "in.txt", vals)
	outPath := filepath.Join(dir, "out.txt")

	in, err := tape.Open(inPath, tape.TapeSize(len(vals)), memory, dir, d)
	require.NoError(t, err)
	out, err := tape.NewEmpty(outPath, dir, d)
	require.NoError(t, err)

	s := New(in, out, dir, d)
	require.NoError(t, s.Sort())

	require.NoError(t, in.Close())

	if len(vals) == 0 {
		data, err := os.ReadFile(outPath)
		require.NoError(t, err)
		require.Empty(t, strings.Fields(string(data)))
		return nil
	}
	return readInts(t, outPath)
}

func isSorted(vals []int32) bool {
	return sort.SliceIsSorted(vals, func(i, j int) bool { return vals[i] < vals[j] })
}

func multisetEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	ac := append([]int32(nil), a...)
	bc := append([]int32(nil), b...)
	sort.Slice(ac, func(i, j int) bool { return ac[i] < ac[j] })
	sort.Slice(bc, func(i, j int) bool { return bc[i] < bc[j] })
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

func TestSortEmpty(t *testing.T) {
	runSort(t, nil, 64, delays.New(0, 0, 0))
}

func TestSortSingleton(t *testing.T) {
	got := runSort(t, []int32{42}, 64, delays.New(0, 0, 0))
	require.Equal(t, []int32{42}, got)
}

func TestSortSmallUnsortedWithDuplicates(t *testing.T) {
	input := []int32{5, 3, 5, 1, 4, 1, 2, 2}
	// memory=32 cells -> width = min(32/16, 8) = 2: four 2-cell runs.
	got := runSort(t, input, 32, delays.New(0, 0, 0))
	require.True(t, isSorted(got), "output not sorted: %v", got)
	require.True(t, multisetEqual(input, got), "output is not a permutation of the input: %v", got)
}

func TestSortNegativesAndWideRange(t *testing.T) {
	input := []int32{-1000000, 500, -3, 0, 2147483647, -2147483648, 7}
	// memory=32 cells -> width = min(32/16, 7) = 2.
	got := runSort(t, input, 32, delays.New(0, 0, 0))
	require.True(t, isSorted(got), "output not sorted: %v", got)
	require.True(t, multisetEqual(input, got))
}

func TestSortAlreadySortedIsIdempotent(t *testing.T) {
	input := []int32{1, 2, 3, 4, 5, 6}
	// memory=32 cells -> width = min(32/16, 6) = 2.
	got := runSort(t, input, 32, delays.New(0, 0, 0))
	require.Equal(t, input, got)
}

func TestSortResultIndependentOfMemoryBudget(t *testing.T) {
	input := []int32{9, 4, 7, 1, 3, 8, 2, 6, 5, 0, -4, -9}
	// small: memory=16 cells, width=min(16/16,12)=1 -> twelve single-cell runs.
	// large: memory=1024 cells, width=min(1024/16,12)=12 -> the whole input in one chunk.
	small := runSort(t, input, 16, delays.New(0, 0, 0))
	large := runSort(t, input, 1024, delays.New(0, 0, 0))
	require.Equal(t, small, large, "chunk width must not affect the sorted result")
}

func TestSortChargesLatencyProportionally(t *testing.T) {
	input := []int32{5, 3, 5, 1, 4, 1, 2, 2, 9, 0}
	var counters delays.Counters
	d := delays.New(0, 0, 0).WithCounters(&counters)
	got := runSort(t, input, 128, d)
	require.True(t, isSorted(got))

	require.Positive(t, counters.Reads())
	require.Positive(t, counters.Writes())
	require.Positive(t, counters.Shifts())

	configured := delays.New(1, 2, 3)
	estimated := time.Duration(counters.Reads())*configured.Read() +
		time.Duration(counters.Writes())*configured.Write() +
		time.Duration(counters.Shifts())*configured.Shift()
	require.Positive(t, estimated)
}
