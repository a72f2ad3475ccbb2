// Package config defines the configuration model for a market-data ingestion
// run. A pipeline file lists the source directories to ingest, where the
// unified output goes, and a few runtime knobs. Files may be JSON or YAML;
// both map onto the same structs.
//
// Example (trimmed):
//
//	{
//	  "job": "market_ingest",
//	  "mount": { "root": "/mnt/adlsgen2" },
//	  "sources": [
//	    { "format": "csv",  "dir": "data/csv/2020-08-05/NYSE" },
//	    { "format": "json", "dir": "data/json/2020-08-05/NASDAQ" }
//	  ],
//	  "storage": { "kind": "parquet", "path": "output/processed_data" }
//	}
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Source formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// DefaultExt is the file extension sources are discovered by.
const DefaultExt = ".txt"

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics grouping.
	Job string `json:"job" yaml:"job" validate:"required"`

	// Mount is where the input container is mounted locally. Relative source
	// directories are resolved against Mount.Root.
	Mount Mount `json:"mount" yaml:"mount"`

	// Sources lists the directories to ingest, each with its record format.
	Sources []Source `json:"sources" yaml:"sources" validate:"dive"`

	// SourcesFile optionally names a text file with one source directory per
	// line. The format of each is inferred from a "csv" or "json" path
	// segment.
	SourcesFile string `json:"sources_file" yaml:"sources_file"`

	Storage Storage       `json:"storage" yaml:"storage"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// Mount describes the locally mounted input container. Account and Container
// are labels only; credentials belong to whatever performs the mount.
type Mount struct {
	Root      string `json:"root" yaml:"root"`
	Account   string `json:"account" yaml:"account"`
	Container string `json:"container" yaml:"container"`
}

// Source is one input directory.
type Source struct {
	// Format selects the record parser: "csv" or "json".
	Format string `json:"format" yaml:"format" validate:"required,oneof=csv json"`

	// Dir is the directory holding the feed files, e.g.
	// data/csv/2020-08-05/NYSE.
	Dir string `json:"dir" yaml:"dir" validate:"required"`

	// Ext filters files by extension. Defaults to ".txt".
	Ext string `json:"ext" yaml:"ext"`

	// Label is a human-readable name used in logs; defaults to Dir.
	Label string `json:"label" yaml:"label"`

	// Options is interpreted by the parser. CSV: delimiter, trim_space.
	// JSON: field_map, trim_space.
	Options Options `json:"options" yaml:"options"`
}

// Name returns the label used to identify the source in logs and results.
func (s Source) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Dir
}

// Extension returns the discovery extension with a leading dot.
func (s Source) Extension() string {
	ext := s.Ext
	if ext == "" {
		ext = DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Storage selects and configures the output sink.
type Storage struct {
	// Kind selects the backend: parquet, postgres, sqlite, mssql, mysql.
	Kind string `json:"kind" yaml:"kind" validate:"required"`

	// Path is the output root for file-based backends.
	Path string `json:"path" yaml:"path"`

	// DSN and Table configure SQL backends.
	DSN   string `json:"dsn" yaml:"dsn"`
	Table string `json:"table" yaml:"table"`

	// Compression codec for columnar output: snappy (default), gzip, zstd, none.
	Compression string `json:"compression" yaml:"compression" validate:"omitempty,oneof=snappy gzip zstd none"`

	// OverwriteMode is "dynamic" (replace only partitions present in the run)
	// or "static" (replace every partition).
	OverwriteMode string `json:"overwrite_mode" yaml:"overwrite_mode" validate:"omitempty,oneof=dynamic static"`

	// MaxRowsPerFile caps rows per output file; 0 means the backend default.
	MaxRowsPerFile int `json:"max_rows_per_file" yaml:"max_rows_per_file" validate:"gte=0"`

	// AutoCreateTable creates the SQL table from the canonical contract.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

// RuntimeConfig controls concurrency.
type RuntimeConfig struct {
	// SourceWorkers bounds how many sources are parsed at once.
	SourceWorkers int `json:"source_workers" yaml:"source_workers" validate:"gte=0"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"omitempty,oneof=json console"`
}

// Load reads a pipeline file. Files ending in .yaml or .yml are decoded as
// YAML, anything else as JSON.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(b, filepath.Ext(path))
}

// Decode parses pipeline bytes; ext picks the format the same way Load does.
func Decode(b []byte, ext string) (Pipeline, error) {
	var p Pipeline
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &p); err != nil {
			return Pipeline{}, fmt.Errorf("decode json config: %w", err)
		}
	}
	for i := range p.Sources {
		if p.Sources[i].Options == nil {
			p.Sources[i].Options = Options{}
		}
	}
	return p, nil
}

// InferFormat returns the record format implied by a directory path that
// follows the <root>/<format>/<date>/<exchange> layout, or "" if neither
// format segment is present.
func InferFormat(dir string) string {
	for _, seg := range strings.Split(filepath.ToSlash(dir), "/") {
		switch strings.ToLower(seg) {
		case FormatCSV:
			return FormatCSV
		case FormatJSON:
			return FormatJSON
		}
	}
	return ""
}

// Options is a small helper to fetch typed values from free-form option maps.
// It performs only minimal coercion and returns the provided default when a
// key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// YAML integers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object.
// Non-string values are ignored.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// UnmarshalJSON makes a missing or null options object decode to an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
