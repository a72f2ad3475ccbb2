// Package pipeline runs one ingestion job: every configured source is
// discovered, parsed, normalized and filtered independently; the survivors
// are unioned and written once through the configured storage backend.
//
// A source that fails or has nothing to offer never aborts the others. The
// run itself fails only when every source failed, when contracts disagree,
// or when the write fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"marketetl/internal/config"
	"marketetl/internal/datasource"
	"marketetl/internal/datasource/file"
	"marketetl/internal/metrics"
	"marketetl/internal/parser"
	csvparser "marketetl/internal/parser/csv"
	jsonparser "marketetl/internal/parser/json"
	"marketetl/internal/schema"
	"marketetl/internal/storage"
	"marketetl/internal/transformer"
)

const (
	// DefaultSourceWorkers bounds source parallelism when unset.
	DefaultSourceWorkers = 4
	// EnvSourceWorkers overrides runtime.source_workers.
	EnvSourceWorkers = "MARKETETL_SOURCE_WORKERS"

	issueExamples = 10
)

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	discoverFn      = file.Discover
	openFn          = func(path string) datasource.Source { return file.NewLocal(path) }
	newRepositoryFn = storage.New
	parseCSVFn      = csvparser.ParseEvents
	decodeJSONFn    = jsonparser.DecodeBatch
)

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Sources    []SourceResult
	Events     []schema.MarketEvent // the union that was written
	Rows       int64
	Partitions map[string]int64
	Files      []string
	Duration   time.Duration
}

// Count returns how many sources ended in state.
func (s Summary) Count(state SourceState) int {
	n := 0
	for _, r := range s.Sources {
		if r.State == state {
			n++
		}
	}
	return n
}

// counters holds cross-goroutine statistics for a run. All fields are
// updated atomically.
type counters struct {
	lines      atomic.Int64
	candidates atomic.Int64
	structure  atomic.Int64
	coercion   atomic.Int64
	dropped    atomic.Int64
}

// Runner executes one pipeline.
type Runner struct {
	pipe    config.Pipeline
	log     *zap.Logger
	workers int
}

// NewRunner binds a pipeline to a logger. A nil logger discards output.
func NewRunner(pipe config.Pipeline, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		pipe:    pipe,
		log:     log.With(zap.String("job", pipe.Job)),
		workers: getenvInt(EnvSourceWorkers, pickInt(pipe.Runtime.SourceWorkers, DefaultSourceWorkers)),
	}
}

// Run processes every source and writes the union. It returns the summary
// together with ErrNoData when nothing was written, or a fatal error.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	job := r.pipe.Job

	sources, err := resolveSources(r.pipe)
	if err != nil {
		return sum, err
	}
	r.log.Info("run started",
		zap.String("run_id", sum.RunID),
		zap.Int("sources", len(sources)),
		zap.Int("workers", r.workers),
	)

	var c counters
	issues := newErrAgg(issueExamples)
	results := make([]SourceResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = r.processSource(gctx, src, &c, issues)
			return gctx.Err()
		})
	}
	err = g.Wait()
	sum.Sources = results
	if err != nil {
		return sum, err
	}

	r.logSources(results)
	r.logIssues(issues, &c)

	for _, res := range results {
		if errors.Is(res.Err, ErrSchemaMismatch) {
			return sum, res.Err
		}
	}

	failed := sum.Count(StateFailed)
	if len(results) > 0 && failed == len(results) {
		return sum, fmt.Errorf("%w: %d of %d", ErrAllSourcesFailed, failed, len(results))
	}

	union, err := Union(results)
	if err != nil {
		return sum, err
	}
	if len(union) == 0 {
		sum.Duration = time.Since(start)
		r.log.Warn("nothing to write", zap.Int("skipped", sum.Count(StateSkipped)), zap.Int("failed", failed))
		return sum, ErrNoData
	}
	sum.Events = union

	wstart := time.Now()
	res, err := r.write(ctx, sum.RunID, union)
	metrics.RecordStep(job, "write", err, time.Since(wstart))
	if err != nil {
		return sum, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	sum.Rows, sum.Partitions, sum.Files = res.Rows, res.Partitions, res.Files
	for k, n := range res.Partitions {
		metrics.RecordPartition(job, k, n)
	}
	metrics.RecordRow(job, "written", res.Rows)
	sum.Duration = time.Since(start)

	r.log.Info("run finished",
		zap.Int64("rows", sum.Rows),
		zap.Any("partitions", sum.Partitions),
		zap.Int("files", len(sum.Files)),
		zap.Int("contributed", sum.Count(StateContributed)),
		zap.Int("skipped", sum.Count(StateSkipped)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", sum.Duration),
	)
	return sum, nil
}

func (r *Runner) write(ctx context.Context, runID string, events []schema.MarketEvent) (storage.WriteResult, error) {
	st := r.pipe.Storage
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:            st.Kind,
		Path:            resolveDir(r.pipe.Mount.Root, st.Path),
		Compression:     st.Compression,
		MaxRowsPerFile:  st.MaxRowsPerFile,
		DSN:             st.DSN,
		Table:           st.Table,
		AutoCreateTable: st.AutoCreateTable,
		OverwriteMode:   st.OverwriteMode,
		RunID:           runID,
		Logger:          r.log,
	})
	if err != nil {
		return storage.WriteResult{}, err
	}
	defer repo.Close()
	return repo.ReplacePartitions(ctx, events)
}

// processSource walks one source through its lifecycle. Problems are
// captured in the result rather than returned.
func (r *Runner) processSource(ctx context.Context, src config.Source, c *counters, issues *errAgg) SourceResult {
	job := r.pipe.Job
	res := SourceResult{Source: src, Dir: resolveDir(r.pipe.Mount.Root, src.Dir), Contract: schema.Canonical}
	log := r.log.With(zap.String("source", src.Name()), zap.String("format", src.Format))

	fail := func(step string, err error) SourceResult {
		res.State, res.Err = StateFailed, err
		res.Events = nil
		log.Error("source failed", zap.String("step", step), zap.Error(err))
		metrics.RecordSource(job, string(StateFailed))
		return res
	}
	skip := func(err error) SourceResult {
		res.State, res.Err = StateSkipped, err
		res.Events = nil
		log.Warn("source skipped", zap.Error(err), zap.Int("files", res.Files), zap.Int("lines", res.Lines))
		metrics.RecordSource(job, string(StateSkipped))
		return res
	}

	if src.Format != config.FormatCSV && src.Format != config.FormatJSON {
		return fail("discover", fmt.Errorf("cannot determine format of %q", src.Dir))
	}

	dstart := time.Now()
	files, err := discoverFn(ctx, res.Dir, src.Extension())
	metrics.RecordStep(job, "discover", err, time.Since(dstart))
	if err != nil {
		return fail("discover", err)
	}
	res.State, res.Files = StateDiscovered, len(files)
	if len(files) == 0 {
		return skip(ErrDiscoveryEmpty)
	}
	log.Debug("source discovered", zap.Int("files", len(files)))

	onErr := func(path string) parser.ErrFunc {
		return func(line int, err error) {
			var se *parser.StructureError
			var ce *schema.CoercionError
			switch {
			case errors.As(err, &se):
				res.StructureErrs++
				c.structure.Add(1)
			case errors.As(err, &ce):
				res.CoercionErrs++
				c.coercion.Add(1)
			}
			issues.add(fmt.Sprintf("%s: %v", path, err))
		}
	}

	pstart := time.Now()
	for i, path := range files {
		pr, err := r.parseFile(ctx, src, openFn(path), onErr(path))
		if err != nil {
			metrics.RecordStep(job, "parse", err, time.Since(pstart))
			return fail("parse", fmt.Errorf("%s: %w", path, err))
		}
		// The source carries its parser's contract; Union decides whether it
		// fits. Files of one source must agree with each other.
		if i == 0 {
			res.Contract = pr.Contract
		} else if pr.Contract.Fingerprint() != res.Contract.Fingerprint() {
			return fail("parse", fmt.Errorf("%w: %s disagrees with the first file of its source", ErrSchemaMismatch, path))
		}
		res.Lines += pr.Lines
		res.Events = append(res.Events, pr.Events...)
	}
	metrics.RecordStep(job, "parse", nil, time.Since(pstart))
	res.State = StateParsed

	res.Candidates = len(res.Events)
	c.lines.Add(int64(res.Lines))
	c.candidates.Add(int64(res.Candidates))
	metrics.RecordRow(job, "candidate", int64(res.Candidates))
	res.State = StateNormalized

	if res.Lines == 0 {
		return skip(ErrNoLines)
	}

	var dropped atomic.Int64
	res.Events = transforms(&dropped).Apply(res.Events)
	res.Dropped = int(dropped.Load())
	c.dropped.Add(dropped.Load())
	metrics.RecordRow(job, "filtered", dropped.Load())
	res.State = StateFiltered

	if len(res.Events) == 0 {
		return skip(ErrNoRecords)
	}

	res.State = StateContributed
	metrics.RecordSource(job, string(StateContributed))
	metrics.RecordRow(job, "contributed", int64(len(res.Events)))
	log.Info("source contributed",
		zap.Int("files", res.Files),
		zap.Int("lines", res.Lines),
		zap.Int("records", len(res.Events)),
		zap.Int("dropped_kind", res.Dropped),
		zap.Int("structure_errors", res.StructureErrs),
		zap.Int("coercion_errors", res.CoercionErrs),
	)
	return res
}

// transforms is the chain every source's candidates pass through before the
// union. dropped accumulates the records it removes.
func transforms(dropped *atomic.Int64) transformer.Chain {
	return transformer.Chain{transformer.KindFilter{Dropped: dropped}}
}

func (r *Runner) parseFile(ctx context.Context, src config.Source, in datasource.Source, onErr parser.ErrFunc) (parser.Result, error) {
	rc, err := in.Open(ctx)
	if err != nil {
		return parser.Result{}, err
	}
	defer rc.Close()
	r.log.Debug("parse file", zap.String("path", in.Path()), zap.String("format", src.Format))

	switch src.Format {
	case config.FormatJSON:
		return decodeJSONFn(ctx, rc, src.Options, onErr)
	default:
		return parseCSVFn(ctx, rc, src.Options, onErr)
	}
}

func (r *Runner) logSources(results []SourceResult) {
	for _, res := range results {
		fields := []zap.Field{
			zap.String("source", res.Source.Name()),
			zap.String("state", string(res.State)),
			zap.Int("files", res.Files),
			zap.Int("lines", res.Lines),
			zap.Int("records", len(res.Events)),
		}
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		r.log.Info("source summary", fields...)
	}
}

// logIssues prints aggregated per-line issues. Only the first N messages are
// shown.
func (r *Runner) logIssues(issues *errAgg, c *counters) {
	r.log.Info("record summary",
		zap.Int64("lines", c.lines.Load()),
		zap.Int64("candidates", c.candidates.Load()),
		zap.Int64("structure_errors", c.structure.Load()),
		zap.Int64("coercion_errors", c.coercion.Load()),
		zap.Int64("dropped_kind", c.dropped.Load()),
	)
	metrics.RecordRow(r.pipe.Job, "structure_error", c.structure.Load())
	metrics.RecordRow(r.pipe.Job, "coercion_error", c.coercion.Load())

	count, first := issues.snapshot()
	if count == 0 {
		return
	}
	r.log.Warn("record issues", zap.Int("count", count), zap.Int("shown", len(first)))
	for i, s := range first {
		r.log.Warn(fmt.Sprintf("  #%03d: %s", i+1, s))
	}
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
