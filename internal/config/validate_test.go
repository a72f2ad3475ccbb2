package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an entry with the given severity,
// path, and a message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validPipeline() Pipeline {
	return Pipeline{
		Job: "market_ingest",
		Sources: []Source{
			{Format: FormatCSV, Dir: "data/csv/2020-08-05/NYSE", Options: Options{}},
			{Format: FormatJSON, Dir: "data/json/2020-08-05/NASDAQ", Options: Options{}},
		},
		Storage: Storage{Kind: "parquet", Path: "out"},
	}
}

func TestValidatePipeline_ValidMinimal(t *testing.T) {
	t.Parallel()

	issues := ValidatePipeline(validPipeline())
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %#v", issues)
	}
	if HasErrors(issues) {
		t.Fatalf("HasErrors = true for valid pipeline")
	}
}

func TestValidatePipeline_TagRules(t *testing.T) {
	t.Parallel()

	type tc struct {
		name   string
		mutate func(p *Pipeline)
		path   string
		msg    string
	}
	cases := []tc{
		{"missing_job", func(p *Pipeline) { p.Job = "" }, "job", "must not be empty"},
		{"bad_format", func(p *Pipeline) { p.Sources[0].Format = "xml" }, "sources[0].format", "not one of"},
		{"missing_dir", func(p *Pipeline) { p.Sources[1].Dir = "" }, "sources[1].dir", "must not be empty"},
		{"missing_storage_kind", func(p *Pipeline) { p.Storage.Kind = "" }, "storage.kind", "must not be empty"},
		{"bad_compression", func(p *Pipeline) { p.Storage.Compression = "lz77" }, "storage.compression", "not one of"},
		{"bad_overwrite_mode", func(p *Pipeline) { p.Storage.OverwriteMode = "append" }, "storage.overwrite_mode", "not one of"},
		{"negative_rows_per_file", func(p *Pipeline) { p.Storage.MaxRowsPerFile = -1 }, "storage.max_rows_per_file", ">= 0"},
		{"negative_workers", func(p *Pipeline) { p.Runtime.SourceWorkers = -2 }, "runtime.source_workers", ">= 0"},
		{"bad_log_level", func(p *Pipeline) { p.Log.Level = "trace" }, "log.level", "not one of"},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			p := validPipeline()
			c.mutate(&p)
			issues := ValidatePipeline(p)
			if !hasIssue(t, issues, SeverityError, c.path, c.msg) {
				t.Fatalf("expected error at %s containing %q, got %#v", c.path, c.msg, issues)
			}
			if !HasErrors(issues) {
				t.Fatalf("HasErrors = false")
			}
		})
	}
}

func TestValidateSources_Cases(t *testing.T) {
	t.Parallel()

	t.Run("no_sources", func(t *testing.T) {
		p := validPipeline()
		p.Sources = nil
		if !hasIssue(t, ValidatePipeline(p), SeverityError, "sources", "no sources configured") {
			t.Fatalf("expected no-sources error")
		}
	})

	t.Run("sources_file_only_is_fine", func(t *testing.T) {
		p := validPipeline()
		p.Sources = nil
		p.SourcesFile = "dirs.txt"
		if HasErrors(ValidatePipeline(p)) {
			t.Fatalf("unexpected errors with sources_file set")
		}
	})

	t.Run("duplicate_source", func(t *testing.T) {
		p := validPipeline()
		p.Sources = append(p.Sources, p.Sources[0])
		if !hasIssue(t, ValidatePipeline(p), SeverityWarning, "sources[2]", "duplicate of sources[0]") {
			t.Fatalf("expected duplicate warning")
		}
	})

	t.Run("format_disagrees_with_path", func(t *testing.T) {
		p := validPipeline()
		p.Sources[0].Format = FormatJSON
		if !hasIssue(t, ValidatePipeline(p), SeverityWarning, "sources[0].format", `looks like "csv"`) {
			t.Fatalf("expected format mismatch warning")
		}
	})
}

func TestValidateStorage_Cases(t *testing.T) {
	t.Parallel()

	type tc struct {
		name string
		s    Storage
		sev  IssueSeverity
		path string
		msg  string
	}
	cases := []tc{
		{"parquet_without_path", Storage{Kind: "parquet"}, SeverityError, "storage.path", "requires an output path"},
		{"parquet_auto_create_ignored", Storage{Kind: "parquet", Path: "o", AutoCreateTable: true}, SeverityWarning, "storage.auto_create_table", "ignored"},
		{"postgres_without_dsn", Storage{Kind: "postgres", Table: "t"}, SeverityError, "storage.dsn", "must not be empty"},
		{"sqlite_without_table", Storage{Kind: "sqlite", DSN: ":memory:"}, SeverityError, "storage.table", "must not be empty"},
		{"mssql_compression_ignored", Storage{Kind: "mssql", DSN: "x", Table: "t", Compression: "gzip"}, SeverityWarning, "storage.compression", "ignored"},
		{"unknown_kind", Storage{Kind: "s3"}, SeverityWarning, "storage.kind", "unknown storage kind"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			issues := validateStorage(c.s)
			if !hasIssue(t, issues, c.sev, c.path, c.msg) {
				t.Fatalf("expected %s at %s containing %q, got %#v", c.sev, c.path, c.msg, issues)
			}
		})
	}
}
