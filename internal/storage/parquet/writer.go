// Package parquet writes the unified event set as a partitioned Parquet
// dataset:
//
//	<path>/partition=Q/part-00000.snappy.parquet
//	<path>/partition=T/part-00000.snappy.parquet
//	<path>/_SUCCESS
//
// Files are first written under a per-run staging directory and then
// swapped into place partition by partition, so a failed run leaves the
// previous output untouched. In dynamic mode only the partitions present in
// the write are replaced; static mode replaces every partition.
package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	goparquet "github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"go.uber.org/zap"

	"marketetl/internal/schema"
	"marketetl/internal/storage"
)

const (
	// DefaultMaxRowsPerFile caps rows per part file when unset.
	DefaultMaxRowsPerFile = 1_000_000
	// DefaultCompression is used when no codec is configured.
	DefaultCompression = "snappy"

	partitionPrefix = "partition="
	successMarker   = "_SUCCESS"
)

// Codec resolves a configured compression name.
func Codec(name string) (compress.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return &goparquet.Snappy, nil
	case "gzip":
		return &goparquet.Gzip, nil
	case "zstd":
		return &goparquet.Zstd, nil
	case "none", "uncompressed":
		return &goparquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("parquet: unsupported compression %q", name)
	}
}

// Config holds Parquet writer configuration derived from storage.Config.
type Config struct {
	Path           string
	Compression    string
	MaxRowsPerFile int
	Static         bool
	RunID          string
	Logger         *zap.Logger
}

// Writer is a file-backed storage.Repository.
type Writer struct {
	cfg   Config
	codec compress.Codec
	ext   string
	log   *zap.Logger
}

// NewWriter validates cfg and creates the output root.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("parquet: path must not be empty")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		return nil, fmt.Errorf("parquet: run id must not be empty")
	}
	codec, err := Codec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRowsPerFile <= 0 {
		cfg.MaxRowsPerFile = DefaultMaxRowsPerFile
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("parquet: create output dir: %w", err)
	}

	ext := ".parquet"
	if name := strings.ToLower(strings.TrimSpace(cfg.Compression)); name != "none" && name != "uncompressed" {
		if name == "" {
			name = DefaultCompression
		}
		ext = "." + name + ".parquet"
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{cfg: cfg, codec: codec, ext: ext, log: log.With(zap.String("backend", "parquet"))}, nil
}

// Close is a no-op; every write closes its own files.
func (w *Writer) Close() {}

// ReplacePartitions writes events under a staging directory and swaps the
// resulting partitions into the output root.
func (w *Writer) ReplacePartitions(ctx context.Context, events []schema.MarketEvent) (storage.WriteResult, error) {
	sets := storage.GroupByPartition(events)
	staging := filepath.Join(w.cfg.Path, "_staging-"+w.cfg.RunID)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return storage.WriteResult{}, fmt.Errorf("parquet: create staging: %w", err)
	}
	defer os.RemoveAll(staging)

	var staged []string
	for _, s := range sets {
		files, err := w.writePartition(ctx, filepath.Join(staging, partitionPrefix+s.Key), s.Events)
		if err != nil {
			return storage.WriteResult{}, fmt.Errorf("parquet: partition %s: %w", s.Key, err)
		}
		staged = append(staged, files...)
	}

	if err := ctx.Err(); err != nil {
		return storage.WriteResult{}, err
	}
	if err := w.swap(staging, storage.Keys(sets)); err != nil {
		return storage.WriteResult{}, err
	}
	if err := os.WriteFile(filepath.Join(w.cfg.Path, successMarker), nil, 0o644); err != nil {
		return storage.WriteResult{}, fmt.Errorf("parquet: write marker: %w", err)
	}

	res := storage.Result(sets)
	for _, f := range staged {
		rel, _ := filepath.Rel(staging, f)
		res.Files = append(res.Files, filepath.Join(w.cfg.Path, rel))
	}
	w.log.Info("partitions replaced",
		zap.String("path", w.cfg.Path),
		zap.Strings("partitions", storage.Keys(sets)),
		zap.Int64("rows", res.Rows),
		zap.Int("files", len(res.Files)),
	)
	return res, nil
}

// writePartition writes events into dir as one or more part files.
func (w *Writer) writePartition(ctx context.Context, dir string, events []schema.MarketEvent) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var files []string
	for part, lo := 0, 0; lo < len(events); part, lo = part+1, lo+w.cfg.MaxRowsPerFile {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+w.cfg.MaxRowsPerFile, len(events))
		path := filepath.Join(dir, fmt.Sprintf("part-%05d%s", part, w.ext))
		if err := w.writeFile(path, events[lo:hi]); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

func (w *Writer) writeFile(path string, events []schema.MarketEvent) error {
	rows := make([]goparquet.Row, len(events))
	for i, ev := range events {
		rows[i] = ToRow(ev)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	pw := goparquet.NewWriter(f, Schema, goparquet.Compression(w.codec))
	if _, err := pw.WriteRows(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := pw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close writer %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// swap moves the partitions being replaced aside, renames the staged ones
// into place and then drops the old ones. If a rename fails, partitions
// already published by this run are removed and the moved-aside ones are
// put back.
func (w *Writer) swap(staging string, keys []string) error {
	replace := keys
	if w.cfg.Static {
		existing, err := Partitions(w.cfg.Path)
		if err != nil {
			return err
		}
		replace = mergeKeys(existing, keys)
	}

	trash := filepath.Join(w.cfg.Path, "_trash-"+w.cfg.RunID)
	if err := os.MkdirAll(trash, 0o755); err != nil {
		return fmt.Errorf("parquet: create trash: %w", err)
	}
	defer os.RemoveAll(trash)

	dst := func(k string) string { return filepath.Join(w.cfg.Path, partitionPrefix+k) }
	var moved, published []string
	restore := func() {
		for _, k := range published {
			_ = os.RemoveAll(dst(k))
		}
		for _, k := range moved {
			_ = os.Rename(filepath.Join(trash, partitionPrefix+k), dst(k))
		}
	}

	for _, k := range replace {
		if _, err := os.Stat(dst(k)); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(dst(k), filepath.Join(trash, partitionPrefix+k)); err != nil {
			restore()
			return fmt.Errorf("parquet: move old partition %s: %w", k, err)
		}
		moved = append(moved, k)
	}
	for _, k := range keys {
		if err := os.Rename(filepath.Join(staging, partitionPrefix+k), dst(k)); err != nil {
			restore()
			return fmt.Errorf("parquet: publish partition %s: %w", k, err)
		}
		published = append(published, k)
	}
	return nil
}

// Partitions lists the partition keys present under root, sorted.
func Partitions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("parquet: list partitions: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), partitionPrefix) {
			out = append(out, strings.TrimPrefix(e.Name(), partitionPrefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func mergeKeys(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range [][]string{a, b} {
		for _, k := range s {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
