// Package config defines the canonical, JSON-serializable configuration model
// for the price-history pipeline. It is intentionally small, explicit, and
// dependency-free so that pipelines can be loaded from disk (or other sources)
// and passed through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in pipeline
//     files under configs/pipelines/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, with a light Options helper for typed access.
//
// Example (trimmed):
//
//	{
//	  "job": "storefront_daily",
//	  "source":  { "kind": "snapshots", "snapshots": { "dir": "data", "glob": "listing_*.csv" } },
//	  "parser":  { "kind": "csv", "options": { "has_header": true } },
//	  "pipeline": { "top_k": 25 },
//	  "storage": { "kind": "duckdb", "db": { "dsn": "pricehist.duckdb" } },
//	  "output":  { "path": "stat_records.csv" }
//	}
package config

import "encoding/json"

// Pipeline describes the full run in JSON. It is the top-level object decoded
// from a pipeline file (e.g., configs/pipelines/*.json).
type Pipeline struct {
	// Job names the run for logs and metrics labels.
	Job string `json:"job"`

	// Source describes where the daily snapshot files come from.
	Source Source `json:"source"`

	// Parser configures how raw snapshot bytes become records (CSV only).
	Parser Parser `json:"parser"`

	// Pipeline holds the derivation knobs: top-K cutoff, review thresholds,
	// date layouts, bundle delimiter.
	Pipeline Derivation `json:"pipeline"`

	// Storage selects the backing store used for the raw observation log and
	// the derived stat table.
	Storage Storage `json:"storage"`

	// Output configures the exported stat dataset.
	Output Output `json:"output"`

	// Runtime controls concurrency, batching, and channel buffer sizes.
	Runtime RuntimeConfig `json:"runtime"`
}

// Source identifies the snapshot corpus.
type Source struct {
	// Kind selects the source implementation. Current value: "snapshots".
	Kind string `json:"kind"`

	// Snapshots carries options for the "snapshots" source kind.
	Snapshots SourceSnapshots `json:"snapshots"`
}

// SourceSnapshots holds configuration for a directory of daily snapshot
// files, one file per calendar day, date encoded in the filename.
type SourceSnapshots struct {
	// Dir is the directory containing the snapshot files.
	Dir string `json:"dir"`

	// Glob matches the snapshot files of the wanted storage category within
	// Dir (e.g., "listing_*.csv").
	Glob string `json:"glob"`

	// DateLayout is the Go time layout of the date embedded in filenames.
	// Empty means the discovery default ("2006-01-02").
	DateLayout string `json:"date_layout"`
}

// Parser selects how to parse the raw snapshot bytes into logical rows.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV, typical keys include:
	//   has_header (bool), columns (array, for headerless files),
	//   comma (string), trim_space (bool), header_map (object)
	Options Options `json:"options"`
}

// Derivation holds the pipeline's statistical knobs. Zero values select the
// documented defaults; explicit invalid values (e.g., top_k < 0) are rejected
// by ValidatePipeline before any I/O happens.
type Derivation struct {
	// TopK is the rank cutoff for the popularity selection. Default 25.
	TopK int `json:"top_k"`

	// LookupMinReviews is the minimum accumulated review count a product
	// needs to enter the lookup table. Default 1 (i.e., max_review_count > 0).
	LookupMinReviews int `json:"lookup_min_reviews"`

	// JoinMinReviews is the per-observation review floor re-validated in the
	// join stage. Default 1.
	JoinMinReviews int `json:"join_min_reviews"`

	// InputDateLayout optionally names an extra Go time layout accepted for
	// per-row query_date values, besides the built-in dash and dot forms.
	InputDateLayout string `json:"input_date_layout"`

	// OutputDateLayout optionally reformats query_date in the exported CSV.
	// Empty keeps the canonical dash form.
	OutputDateLayout string `json:"output_date_layout"`

	// BundleDelimiter is the character that marks a composite product key.
	// Default ",".
	BundleDelimiter string `json:"bundle_delimiter"`
}

// Storage selects the store used to persist the observation log and the
// derived stat rows.
type Storage struct {
	// Kind selects the storage implementation: "duckdb" (default) or
	// "postgres".
	Kind string `json:"kind"`

	// DB carries the store options.
	DB DBConfig `json:"db"`
}

// DBConfig configures the store.
type DBConfig struct {
	// DSN is the connection string. For duckdb this is a database file path;
	// for postgres a pgx connection string.
	DSN string `json:"dsn"`

	// ObservationsTable is the raw log table. Default "observations".
	ObservationsTable string `json:"observations_table"`

	// StatsTable is the derived dataset table. Default "stat_records".
	StatsTable string `json:"stats_table"`

	// AutoCreateTable makes the run create both tables if absent.
	AutoCreateTable bool `json:"auto_create_table"`
}

// Output configures the exported dataset and the optional skip audit file.
type Output struct {
	// Path is the output CSV written once per run.
	Path string `json:"path"`

	// SkipAudit optionally names a CSV file receiving one line per skipped
	// row (reason, line, product id, raw value). Empty disables the audit.
	SkipAudit string `json:"skip_audit"`
}

// RuntimeConfig controls concurrency, batching, and channel buffer sizes.
type RuntimeConfig struct {
	IngestWorkers int `json:"ingest_workers"`
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Defaults for the Derivation knobs.
const (
	DefaultTopK             = 25
	DefaultLookupMinReviews = 1
	DefaultJoinMinReviews   = 1
	DefaultBundleDelimiter  = ","
)

// TopKOrDefault resolves the configured cutoff, mapping the zero value to the
// default. Negative values are left as-is so validation can reject them.
func (d Derivation) TopKOrDefault() int {
	if d.TopK == 0 {
		return DefaultTopK
	}
	return d.TopK
}

// LookupMinOrDefault resolves the lookup review threshold.
func (d Derivation) LookupMinOrDefault() int {
	if d.LookupMinReviews == 0 {
		return DefaultLookupMinReviews
	}
	return d.LookupMinReviews
}

// JoinMinOrDefault resolves the join review threshold.
func (d Derivation) JoinMinOrDefault() int {
	if d.JoinMinReviews == 0 {
		return DefaultJoinMinReviews
	}
	return d.JoinMinReviews
}

// DelimOrDefault resolves the bundle delimiter.
func (d Derivation) DelimOrDefault() string {
	if d.BundleDelimiter == "" {
		return DefaultBundleDelimiter
	}
	return d.BundleDelimiter
}

// ObservationsTableOrDefault resolves the raw log table name.
func (c DBConfig) ObservationsTableOrDefault() string {
	if c.ObservationsTable == "" {
		return "observations"
	}
	return c.ObservationsTable
}

// StatsTableOrDefault resolves the stat table name.
func (c DBConfig) StatsTableOrDefault() string {
	if c.StatsTable == "" {
		return "stat_records"
	}
	return c.StatsTable
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
//
// Options is used for parser-specific configuration where the shape varies by
// implementation.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
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

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. This is useful for single-character parser settings such as
// a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// Strings returns a []string for key when the value is an array. Non-string
// elements are ignored. Returns nil when the key is missing or the value is
// not an array.
func (o Options) Strings(key string) []string {
	v, ok := o[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty map
// when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null "options"
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
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
