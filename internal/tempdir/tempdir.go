// Package tempdir hands out uniquely-named scratch directories under a
// configured root, so the sorter's per-pass runs and a tape's private
// single-cell-write scratch never collide — including across parallel
// invocations sharing the same root.
package tempdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// New creates and returns a fresh directory under base, for exclusive use by
// the caller until Remove is called on it.
func New(base string) (string, error) {
	dir := filepath.Join(base, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("tempdir: create %s: %w", dir, err)
	}
	return dir, nil
}

// Remove deletes dir and everything under it, best-effort.
func Remove(dir string) error {
	return os.RemoveAll(dir)
}
