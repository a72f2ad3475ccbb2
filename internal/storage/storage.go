// Package storage defines the backend-agnostic writer contract for the
// unified event set and a small factory that backends register with.
//
// Every backend gives the same overwrite semantics: the partitions present in
// a write replace whatever was stored for them before (dynamic mode), or the
// whole store is replaced (static mode). Backends register from init; import
// internal/storage/all to link them in.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"marketetl/internal/schema"
)

// Overwrite modes.
const (
	OverwriteDynamic = "dynamic"
	OverwriteStatic  = "static"
)

// Repository writes one unified event set.
type Repository interface {
	// ReplacePartitions writes events, replacing the partitions they cover
	// (or every partition in static mode). Either the whole write becomes
	// visible or none of it does.
	ReplacePartitions(ctx context.Context, events []schema.MarketEvent) (WriteResult, error)
	Close()
}

// WriteResult summarizes a completed write.
type WriteResult struct {
	Rows       int64
	Partitions map[string]int64 // rows per partition key
	Files      []string         // output files, file backends only
}

// Config is the backend-agnostic storage configuration.
type Config struct {
	Kind string

	// File backends.
	Path           string
	Compression    string
	MaxRowsPerFile int

	// SQL backends.
	DSN             string
	Table           string
	AutoCreateTable bool

	OverwriteMode string

	// RunID names staging artifacts; callers set a fresh one per run.
	RunID string

	Logger *zap.Logger
}

// Static reports whether the config asks for static overwrite.
func (c Config) Static() bool { return c.OverwriteMode == OverwriteStatic }

// Log returns the configured logger or a no-op one.
func (c Config) Log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Factory constructs a Repository from a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. A later registration for the
// same kind replaces the earlier one.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New constructs the Repository registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
