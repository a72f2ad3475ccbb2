// Package datasource defines how the pipeline obtains the bytes of one feed
// file. Implementations live in subpackages.
package datasource

import (
	"context"
	"io"
)

// Source opens one input file for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Path identifies the file in logs.
	Path() string
}
