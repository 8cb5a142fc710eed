// Package dates handles the two textual date forms found in snapshot data:
// the canonical dash form "2006-01-02" used everywhere inside the pipeline,
// and the dot form "2006.1.2" that raw snapshots and filenames carry.
//
// Dates are normalized to the canonical form immediately at ingestion; the
// dot form is input formatting only. Epoch conversion is always UTC midnight
// so that delta computations are stable across host timezones.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// Canonical is the internal date layout. String-lexicographic order on this
// form equals chronological order, which the aggregator relies on.
const Canonical = "2006-01-02"

// Dotted is the layout used by raw snapshot rows (year.month.day, no zero
// padding).
const Dotted = "2006.1.2"

// ParseError reports a malformed date string. Whether it is fatal depends on
// where it occurs: boundary-date parsing aborts the run, per-row dates are
// counted skips.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dates: cannot parse %q as a calendar date", e.Value)
}

// Parse accepts the canonical dash form, the dotted snapshot form, and an
// optional extra layout (pass "" for none), in that order. The result is
// truncated to UTC midnight.
func Parse(s, extraLayout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ParseError{Value: s}
	}
	layouts := []string{Canonical, Dotted}
	if extraLayout != "" {
		layouts = append(layouts, extraLayout)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, &ParseError{Value: s}
}

// Normalize converts any accepted input form to the canonical dash form.
func Normalize(s, extraLayout string) (string, error) {
	t, err := Parse(s, extraLayout)
	if err != nil {
		return "", err
	}
	return t.Format(Canonical), nil
}

// Unix converts an accepted date string to seconds since the Unix epoch at
// UTC midnight.
func Unix(s string) (int64, error) {
	t, err := Parse(s, "")
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// IsCanonical reports whether s is a well-formed canonical date. Used by
// filters that must fail closed on malformed configuration.
func IsCanonical(s string) bool {
	t, err := time.Parse(Canonical, s)
	return err == nil && t.Format(Canonical) == s
}
