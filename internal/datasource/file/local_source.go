// Package file implements discovery and opening of feed files on a locally
// mounted filesystem, plus the directory list files that can name sources.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local opens one feed file from the local mount.
type Local struct{ path string }

// NewLocal binds a Local to path. Safe for concurrent use.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open returns the file for reading. A context that is already done is
// reported without touching the filesystem; filesystem errors are wrapped
// with the path and still match errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
