// This file adds a lightweight linter for Pipeline values. Struct-tag rules
// run through go-playground/validator; cross-field rules are checked by hand.
// Everything is reported as a flat list of Issues that the CLI prints.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding worth surfacing that does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "sources[1].format").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	// Report paths using the json names users write in pipeline files.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate p.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	issues = append(issues, validateTags(p)...)
	issues = append(issues, validateSources(p)...)
	issues = append(issues, validateStorage(p.Storage)...)

	return issues
}

// validateTags converts struct-tag violations into Issues.
func validateTags(p Pipeline) []Issue {
	err := structValidator.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     tagPath(fe.Namespace()),
			Message:  tagMessage(fe),
		})
	}
	return issues
}

// tagPath strips the root struct name: "Pipeline.storage.kind" -> "storage.kind".
func tagPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("%q is not one of [%s]", fmt.Sprint(fe.Value()), fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}

// validateSources checks that there is something to ingest and that no
// directory is listed twice.
func validateSources(p Pipeline) []Issue {
	var issues []Issue

	if len(p.Sources) == 0 && strings.TrimSpace(p.SourcesFile) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "sources",
			Message:  "no sources configured; set sources or sources_file",
		})
		return issues
	}

	seen := make(map[string]int, len(p.Sources))
	for i, s := range p.Sources {
		key := s.Format + ":" + s.Dir
		if j, ok := seen[key]; ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("sources[%d]", i),
				Message:  fmt.Sprintf("duplicate of sources[%d]; its records will be ingested twice", j),
			})
			continue
		}
		seen[key] = i

		if inferred := InferFormat(s.Dir); inferred != "" && s.Format != "" && inferred != s.Format {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("sources[%d].format", i),
				Message:  fmt.Sprintf("format %q but directory looks like %q", s.Format, inferred),
			})
		}
	}
	return issues
}

// validateStorage checks backend-specific requirements.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	known := map[string]struct{}{
		"parquet":  {},
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
		"sqlite":   {},
	}
	if s.Kind != "" {
		if _, ok := known[s.Kind]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.kind",
				Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
			})
		}
	}

	switch s.Kind {
	case "parquet":
		if strings.TrimSpace(s.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.path",
				Message:  "parquet storage requires an output path",
			})
		}
		if s.AutoCreateTable {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.auto_create_table",
				Message:  "ignored for parquet storage",
			})
		}
	case "postgres", "mysql", "mssql", "sqlite":
		if strings.TrimSpace(s.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.dsn",
				Message:  "storage.dsn must not be empty",
			})
		}
		if strings.TrimSpace(s.Table) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.table",
				Message:  "storage.table must not be empty",
			})
		}
		if s.Compression != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.compression",
				Message:  fmt.Sprintf("ignored for %s storage", s.Kind),
			})
		}
	}

	return issues
}
