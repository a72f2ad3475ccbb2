package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Discover lists the regular files directly under dir whose name ends in ext
// (".txt" style, case-sensitive), sorted by name. Subdirectories are not
// descended into. A directory with no matches yields an empty slice and a nil
// error; a missing or unreadable directory is an error.
func Discover(ctx context.Context, dir, ext string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", dir, err)
	}

	var out []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ext {
			continue
		}
		p := filepath.Join(dir, e.Name())
		info, err := os.Stat(p) // follows symlinks
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
