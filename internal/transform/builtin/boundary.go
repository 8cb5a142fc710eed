package builtin

import (
	"fmt"

	"pricehist/internal/dates"
	"pricehist/internal/transform"
	"pricehist/pkg/records"
)

// BoundaryFilter removes rows whose first-seen date equals the corpus
// boundary date: a product already listed in the very first snapshot is
// left-censored (its true introduction date is unknown) and would poison any
// time-since-release analysis.
//
// Construct via NewBoundaryFilter. A zero-value BoundaryFilter fails closed:
// it rejects every row rather than silently passing left-censored products.
type BoundaryFilter struct {
	// DateColumn is the field compared, e.g. "first_seen_date".
	DateColumn string

	boundary string
	valid    bool
}

// NewBoundaryFilter validates the boundary date (canonical "2006-01-02"
// form, string equality downstream) and returns the filter. An empty or
// malformed boundary is a *transform.ValidationError.
func NewBoundaryFilter(dateColumn, boundary string) (BoundaryFilter, error) {
	if dateColumn == "" {
		return BoundaryFilter{}, &transform.ValidationError{Msg: "boundary filter: date column is required"}
	}
	if !dates.IsCanonical(boundary) {
		return BoundaryFilter{}, &transform.ValidationError{
			Msg: fmt.Sprintf("boundary filter: boundary date %q is not a canonical calendar date", boundary),
		}
	}
	return BoundaryFilter{DateColumn: dateColumn, boundary: boundary, valid: true}, nil
}

func (f BoundaryFilter) Apply(in []records.Record) []records.Record {
	if !f.valid {
		// Fail closed: an unvalidated boundary must never let rows through.
		return nil
	}
	out := make([]records.Record, 0, len(in))
	for _, r := range in {
		if d, ok := r.String(f.DateColumn); ok && d == f.boundary {
			continue
		}
		out = append(out, r)
	}
	return out
}
