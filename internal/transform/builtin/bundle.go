// Package builtin contains the concrete lookup-table transforms: bundle and
// boundary filtering, lookup projection, and top-K selection. They operate on
// the aggregated per-product table, not on raw per-day rows.
package builtin

import (
	"strings"

	"pricehist/pkg/records"
)

// BundleFilter drops rows whose key field contains the bundle delimiter.
// A delimiter inside the key marks a composite entry referencing several
// underlying products; those have no single price history.
type BundleFilter struct {
	// Key is the field inspected, e.g. "product_id".
	Key string

	// Delim marks a composite key. Empty means ",".
	Delim string
}

func (f BundleFilter) Apply(in []records.Record) []records.Record {
	delim := f.Delim
	if delim == "" {
		delim = ","
	}
	out := make([]records.Record, 0, len(in))
	for _, r := range in {
		if key, ok := r.String(f.Key); ok && strings.Contains(key, delim) {
			continue
		}
		out = append(out, r)
	}
	return out
}
