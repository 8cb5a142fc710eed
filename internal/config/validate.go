// Package config provides configuration models and helpers for pipeline runs.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests. All checks
// run before any I/O, so a bad configuration can never produce partial output.
package config

import (
	"fmt"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "pipeline.top_k",
// "source.snapshots.glob"). Message is human-readable.
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

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		warnf("job", "empty job name; logs and metrics will use a generic label")
	}

	// Source.
	switch p.Source.Kind {
	case "", "snapshots":
		if strings.TrimSpace(p.Source.Snapshots.Dir) == "" {
			errf("source.snapshots.dir", "snapshot directory is required")
		}
		if strings.TrimSpace(p.Source.Snapshots.Glob) == "" {
			errf("source.snapshots.glob", "snapshot glob pattern is required")
		}
		if l := p.Source.Snapshots.DateLayout; l != "" {
			if _, err := time.Parse(l, time.Now().UTC().Format(l)); err != nil {
				errf("source.snapshots.date_layout", "not a usable Go time layout: %q", l)
			}
		}
	default:
		errf("source.kind", "unsupported source kind %q", p.Source.Kind)
	}

	// Parser.
	if p.Parser.Kind != "" && p.Parser.Kind != "csv" {
		errf("parser.kind", "unsupported parser kind %q", p.Parser.Kind)
	}
	if !p.Parser.Options.Bool("has_header", true) && len(p.Parser.Options.Strings("columns")) == 0 {
		errf("parser.options.columns", "column names are required when has_header is false")
	}

	// Derivation knobs. Zero means default; explicit negatives are invalid.
	if p.Pipeline.TopK < 0 {
		errf("pipeline.top_k", "must be > 0 (got %d)", p.Pipeline.TopK)
	}
	if p.Pipeline.LookupMinReviews < 0 {
		errf("pipeline.lookup_min_reviews", "must be >= 0 (got %d)", p.Pipeline.LookupMinReviews)
	}
	if p.Pipeline.JoinMinReviews < 0 {
		errf("pipeline.join_min_reviews", "must be >= 0 (got %d)", p.Pipeline.JoinMinReviews)
	}
	if d := p.Pipeline.BundleDelimiter; len(d) > 1 {
		warnf("pipeline.bundle_delimiter", "multi-character delimiter %q; only substring containment is checked", d)
	}
	if l := p.Pipeline.InputDateLayout; l != "" {
		if _, err := time.Parse(l, time.Now().UTC().Format(l)); err != nil {
			errf("pipeline.input_date_layout", "not a usable Go time layout: %q", l)
		}
	}
	if l := p.Pipeline.OutputDateLayout; l != "" {
		if _, err := time.Parse(l, time.Now().UTC().Format(l)); err != nil {
			errf("pipeline.output_date_layout", "not a usable Go time layout: %q", l)
		}
	}

	// Storage.
	switch p.Storage.Kind {
	case "", "duckdb", "postgres":
	default:
		warnf("storage.kind", "unknown storage kind %q; must be registered at runtime", p.Storage.Kind)
	}
	if strings.TrimSpace(p.Storage.DB.DSN) == "" {
		errf("storage.db.dsn", "DSN is required")
	}
	if p.Storage.DB.ObservationsTableOrDefault() == p.Storage.DB.StatsTableOrDefault() {
		errf("storage.db", "observations_table and stats_table must differ")
	}

	// Output.
	if strings.TrimSpace(p.Output.Path) == "" {
		errf("output.path", "output path is required")
	}

	// Runtime.
	if p.Runtime.IngestWorkers < 0 {
		errf("runtime.ingest_workers", "must be >= 0 (got %d)", p.Runtime.IngestWorkers)
	}
	if p.Runtime.BatchSize < 0 {
		errf("runtime.batch_size", "must be >= 0 (got %d)", p.Runtime.BatchSize)
	}

	return issues
}

// FirstError returns the first error-severity issue as an error, or nil when
// the pipeline only has warnings (or nothing at all). Convenient for callers
// that do not need the full issue list.
func FirstError(issues []Issue) error {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return iss
		}
	}
	return nil
}
