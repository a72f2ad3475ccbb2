// Command marketetl ingests CSV and JSON market-event feeds, keeps trades
// and quotes, and writes the unified set to the configured storage backend.
//
// Exit codes: 0 on success (including a run where no source had data),
// 1 when the run fails, 2 for usage or configuration errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"marketetl/internal/config"
	"marketetl/internal/ddl"
	"marketetl/internal/logging"
	"marketetl/internal/metrics"
	"marketetl/internal/metrics/datadog"
	"marketetl/internal/metrics/prompush"
	"marketetl/internal/pipeline"
	"marketetl/internal/report"
	"marketetl/internal/schema"
	"marketetl/internal/storage/mssql"
	"marketetl/internal/storage/mysql"
	"marketetl/internal/storage/postgres"
	"marketetl/internal/storage/sqlite"

	// register all backends with the storage factory.
	_ "marketetl/internal/storage/all"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// dialects maps SQL storage kinds to their DDL dialect for -print-ddl.
var dialects = map[string]ddl.Dialect{
	"postgres": postgres.Dialect,
	"mysql":    mysql.Dialect,
	"mssql":    mssql.Dialect,
	"sqlite":   sqlite.Dialect,
}

// runPipelineFn is a test seam for the pipeline run.
var runPipelineFn = func(ctx context.Context, p config.Pipeline, log *zap.Logger) (pipeline.Summary, error) {
	return pipeline.NewRunner(p, log).Run(ctx)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("marketetl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath        string
		metricsBackend string
		pushGatewayURL string
		statsdAddr     string
		validate       bool
		verbose        bool
		printReport    bool
		printDDL       string
	)
	fs.StringVar(&cfgPath, "config", "configs/pipelines/market_ingest.yaml", "pipeline config path (.json, .yaml or .yml)")
	fs.StringVar(&metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	fs.StringVar(&pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&statsdAddr, "statsd-addr", "", "DogStatsD address (overrides env DD_DOGSTATSD_URL)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&verbose, "v", false, "enable debug logs")
	fs.BoolVar(&printReport, "report", false, "print a summary of the written data to stdout")
	fs.StringVar(&printDDL, "print-ddl", "", "print CREATE TABLE for a SQL backend (postgres, mysql, mssql, sqlite) and exit")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	p, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitUsage
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid: %s\n", cfgPath)
		return exitUsage
	}
	if validate {
		fmt.Fprintf(stderr, "configuration is valid: %s\n", cfgPath)
		return exitOK
	}

	if printDDL != "" {
		return writeDDL(stdout, stderr, printDDL, p.Storage.Table)
	}

	level := p.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Config{Level: level, Format: p.Log.Format, Output: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return exitUsage
	}
	defer func() { _ = log.Sync() }()

	if flush := setupMetrics(log, p.Job, metricsBackend, pushGatewayURL, statsdAddr); flush != nil {
		defer flush()
	}

	log.Debug("pipeline",
		zap.String("job", p.Job),
		zap.Int("sources", len(p.Sources)),
		zap.String("sources_file", p.SourcesFile),
		zap.String("storage", p.Storage.Kind),
	)

	sum, err := runPipelineFn(ctx, p, log)
	switch {
	case errors.Is(err, pipeline.ErrNoData):
		log.Warn("no data to process", zap.Int("sources", len(sum.Sources)))
		return exitOK
	case err != nil:
		log.Error("run failed", zap.Error(err))
		return exitFailed
	}

	if printReport {
		rep, err := report.Build(ctx, sum.Events)
		if err != nil {
			log.Error("report failed", zap.Error(err))
			return exitFailed
		}
		if err := report.Print(stdout, rep); err != nil {
			log.Error("print report", zap.Error(err))
			return exitFailed
		}
	}
	return exitOK
}

// setupMetrics installs the chosen backend and returns its flush func, or
// nil when metrics stay disabled. Flag values win over the environment.
func setupMetrics(log *zap.Logger, job, backend, gwURL, statsdAddr string) func() {
	if backend == "" {
		backend = os.Getenv("METRICS_BACKEND")
	}
	if job == "" {
		job = "marketetl"
	}

	var (
		b   metrics.Backend
		err error
	)
	switch backend {
	case "pushgateway":
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}
		b, err = prompush.NewBackend(job, gwURL)
		log = log.With(zap.String("url", gwURL))
	case "datadog":
		if statsdAddr == "" {
			statsdAddr = os.Getenv("DD_DOGSTATSD_URL")
		}
		if statsdAddr == "" {
			statsdAddr = "127.0.0.1:8125"
		}
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       statsdAddr,
			Namespace:  "marketetl.",
			GlobalTags: []string{"job:" + job},
		})
		log = log.With(zap.String("addr", statsdAddr))
	case "", "none":
		log.Debug("metrics disabled")
		return nil
	default:
		log.Warn("unknown metrics backend; metrics disabled", zap.String("backend", backend))
		return nil
	}
	if err != nil {
		log.Warn("metrics backend init failed; using nop", zap.String("backend", backend), zap.Error(err))
		return nil
	}

	log.Info("metrics enabled", zap.String("backend", backend), zap.String("job", job))
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", zap.Error(err))
		}
	}
}

func writeDDL(stdout, stderr io.Writer, kind, table string) int {
	d, ok := dialects[strings.ToLower(kind)]
	if !ok {
		fmt.Fprintf(stderr, "print-ddl: unsupported kind %q\n", kind)
		return exitUsage
	}
	if table == "" {
		table = "market_events"
	}
	stmt, err := ddl.BuildCreateTableSQL(ddl.FromContract(schema.Canonical, table, d), d)
	if err != nil {
		fmt.Fprintf(stderr, "print-ddl: %v\n", err)
		return exitFailed
	}
	fmt.Fprintln(stdout, stmt)
	return exitOK
}
