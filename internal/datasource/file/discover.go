// Package file implements the local filesystem data source for daily
// snapshot files and the discovery step that turns a directory of such files
// into an ordered corpus with a known boundary date.
package file

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"pricehist/internal/dates"
)

// Snapshot is one discovered daily file. Date is canonical ("2006-01-02"),
// parsed from the filename.
type Snapshot struct {
	Path string
	Date string
}

// dateToken matches the date portion of a snapshot filename. Both the dash
// and dot separated forms occur in real corpora.
var dateToken = regexp.MustCompile(`\d{4}[.-]\d{1,2}[.-]\d{1,2}`)

// Discover lists the snapshot files matching glob under dir, sorted by
// filename (lexicographic order, which the naming scheme guarantees to be
// chronological), with each file's date parsed from its name.
//
// The boundary date of the corpus is the date of the first returned file;
// callers feed it to the boundary filter. An empty match set is an error:
// a run over zero snapshots has no meaningful output.
func Discover(dir, glob, dateLayout string) ([]Snapshot, error) {
	pattern := filepath.Join(dir, glob)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad snapshot glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no snapshot files match %q", pattern)
	}
	sort.Strings(paths)

	out := make([]Snapshot, 0, len(paths))
	for _, p := range paths {
		d, err := dateFromName(filepath.Base(p), dateLayout)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", p, err)
		}
		out = append(out, Snapshot{Path: p, Date: d})
	}
	return out, nil
}

// Boundary returns the corpus boundary date: the date of the earliest
// snapshot. Discover guarantees at least one element.
func Boundary(snaps []Snapshot) string {
	if len(snaps) == 0 {
		return ""
	}
	return snaps[0].Date
}

// dateFromName extracts and canonicalizes the date embedded in a snapshot
// filename. When layout is non-empty the whole basename (minus extension) is
// tried against it first; otherwise, and as a fallback, the first date-shaped
// token in the name is parsed.
func dateFromName(base, layout string) (string, error) {
	if layout != "" {
		stem := base
		if ext := filepath.Ext(stem); ext != "" {
			stem = stem[:len(stem)-len(ext)]
		}
		if d, err := dates.Normalize(stem, layout); err == nil {
			return d, nil
		}
	}
	tok := dateToken.FindString(base)
	if tok == "" {
		return "", &dates.ParseError{Value: base}
	}
	return dates.Normalize(tok, layout)
}
