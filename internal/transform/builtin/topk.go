package builtin

import (
	"fmt"
	"sort"

	"pricehist/internal/transform"
	"pricehist/pkg/records"
)

// TopK keeps the N highest-ranked rows by an integer column, descending.
// The sort is stable: rows with equal rank keep their input relative order,
// so repeated runs over identical input select identical rows.
type TopK struct {
	// Column is the ranking column, e.g. "max_review_count".
	Column string

	n int
}

// NewTopK validates the cutoff. N <= 0 is a *transform.ValidationError; a
// selection that keeps nothing (or "everything") is always a configuration
// mistake.
func NewTopK(column string, n int) (TopK, error) {
	if column == "" {
		return TopK{}, &transform.ValidationError{Msg: "top-k: ranking column is required"}
	}
	if n <= 0 {
		return TopK{}, &transform.ValidationError{Msg: fmt.Sprintf("top-k: cutoff must be > 0 (got %d)", n)}
	}
	return TopK{Column: column, n: n}, nil
}

func (t TopK) Apply(in []records.Record) []records.Record {
	if t.n <= 0 {
		// Zero value: not built via NewTopK. Fail closed.
		return nil
	}
	out := make([]records.Record, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Int(t.Column)
		b, _ := out[j].Int(t.Column)
		return a > b
	})
	if len(out) > t.n {
		out = out[:t.n]
	}
	return out
}
