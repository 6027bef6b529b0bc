// Package workdir is the scoped working-directory acquisition primitive
// spec.md §9 calls for: created on entry, removed on every exit path
// including failure, so a crashed worker leaves no permanent litter (the
// next session boot still wins regardless, per §5's crash-recovery note).
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Guard owns one repo's scratch directory for the duration of an index run
type Guard struct {
	Path string
}

// Acquire creates <root>/<repoName>@<workerID>, failing if it cannot be made
func Acquire(root, repoName string, workerID int) (*Guard, error) {
	path := filepath.Join(root, fmt.Sprintf("%s@%d", repoName, workerID))
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("workdir: clear %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("workdir: create %s: %w", path, err)
	}
	return &Guard{Path: path}, nil
}

// Release removes the working directory. Safe to call multiple times and
// on a nil receiver, so a defer in the caller never needs a nil check.
func (g *Guard) Release() error {
	if g == nil || g.Path == "" {
		return nil
	}
	return os.RemoveAll(g.Path)
}
