// Package csv implements streaming parsing of daily snapshot files.
//
// Snapshot CSVs come from scraping jobs and are messy in predictable ways:
// headers carry diacritics and odd casing, files grow extra columns over
// time, quoting is sloppy. The parser therefore:
//
//   - normalizes headers (diacritics stripped, folded to snake_case) before
//     applying the configured header map;
//   - locates the canonical observation columns by name and ignores extras;
//   - reads in a lenient mode (LazyQuotes, variable width) and treats
//     per-row problems as soft errors reported via callback;
//   - fails fast with a schema error when a required column is missing,
//     before any row is emitted.
package csv

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pricehist/internal/schema"
	"pricehist/pkg/records"
)

// Options configures snapshot parsing. All fields are optional; sensible
// defaults are applied when a field is zero.
type Options struct {
	// HasHeader indicates whether the first row contains column headers.
	// Snapshot files are expected to have one; default true in the stream
	// adapter. When false, Columns supplies the header row instead.
	HasHeader bool

	// Columns names the source columns in file order for headerless files.
	// The names go through the same normalization and HeaderMap as a real
	// header row. Ignored when HasHeader is true.
	Columns []string

	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each field value.
	TrimSpace bool

	// HeaderMap maps normalized source header names to canonical column
	// names (e.g., {"price": "full_price", "stars": "grade"}). It applies
	// after normalization, so keys are written in the folded form.
	HeaderMap map[string]string

	// DateLayout optionally names an extra Go time layout accepted for
	// query_date values, besides the built-in dash and dot forms.
	DateLayout string
}

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// colIndex maps each canonical observation column to its position in the
// header, built once per file.
type colIndex map[string]int

// indexHeader normalizes the raw header row, applies the header map, and
// locates every canonical observation column. A missing required column is a
// *records.SchemaError.
func indexHeader(raw []string, headerMap map[string]string) (colIndex, error) {
	idx := make(colIndex, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		name := normalizeHeader(h)
		if mapped, ok := headerMap[name]; ok && mapped != "" {
			name = mapped
		}
		// First occurrence wins on duplicate headers.
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	for _, f := range schema.Observation() {
		if _, ok := idx[f.Name]; !ok {
			return nil, &records.SchemaError{Column: f.Name}
		}
	}
	return idx, nil
}

// foldTransform strips combining marks: NFD decomposition, drop the marks,
// recompose. Turns e.g. "Počet recenzí" style headers into plain ASCII.
var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeHeader folds a raw header cell to the canonical snake_case form
// used for lookup: diacritics removed, lowercased, runs of non-alphanumerics
// collapsed to single underscores.
func normalizeHeader(h string) string {
	folded, _, err := transform.String(foldTransform, strings.TrimSpace(h))
	if err != nil {
		folded = h
	}
	var b strings.Builder
	b.Grow(len(folded))
	lastUnderscore := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
