package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"marketetl/internal/config"
	"marketetl/internal/datasource/file"
	"marketetl/internal/schema"
)

// SourceState is where a source ended up in its lifecycle:
//
//	DISCOVERED -> PARSED -> NORMALIZED -> FILTERED -> CONTRIBUTED | SKIPPED | FAILED
type SourceState string

const (
	StateDiscovered  SourceState = "DISCOVERED"
	StateParsed      SourceState = "PARSED"
	StateNormalized  SourceState = "NORMALIZED"
	StateFiltered    SourceState = "FILTERED"
	StateContributed SourceState = "CONTRIBUTED"
	StateSkipped     SourceState = "SKIPPED"
	StateFailed      SourceState = "FAILED"
)

// SourceResult is the outcome of processing one source. Err is set for
// SKIPPED (ErrDiscoveryEmpty, ErrNoLines, ErrNoRecords) and FAILED sources.
type SourceResult struct {
	Source config.Source
	Dir    string // resolved against mount.root
	State  SourceState
	Err    error

	Files         int
	Lines         int
	Candidates    int // normalized records before the kind filter
	Dropped       int // removed by the kind filter
	StructureErrs int
	CoercionErrs  int
	Contract      schema.Contract
	Events        []schema.MarketEvent
}

// resolveSources merges the configured sources with those named in
// sources_file and resolves relative directories against mount.root.
// Sources from the list file get their format from the path.
func resolveSources(pipe config.Pipeline) ([]config.Source, error) {
	out := make([]config.Source, 0, len(pipe.Sources))
	out = append(out, pipe.Sources...)

	if pipe.SourcesFile != "" {
		listPath := pipe.SourcesFile
		if !filepath.IsAbs(listPath) && pipe.Mount.Root != "" {
			listPath = filepath.Join(pipe.Mount.Root, listPath)
		}
		dirs, err := file.ReadList(listPath)
		if err != nil {
			return nil, fmt.Errorf("sources_file: %w", err)
		}
		for _, d := range dirs {
			out = append(out, config.Source{Format: config.InferFormat(d), Dir: d, Options: config.Options{}})
		}
	}

	for i := range out {
		out[i].Dir = strings.TrimSpace(out[i].Dir)
		if out[i].Options == nil {
			out[i].Options = config.Options{}
		}
	}
	return out, nil
}

// resolveDir joins a relative source directory onto the mount root.
func resolveDir(root, dir string) string {
	if root == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}
