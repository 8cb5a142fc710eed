package builtin

import (
	"pricehist/internal/dates"
	"pricehist/internal/schema"
	"pricehist/pkg/records"
)

// LookupBuilder turns surviving summary rows into compact lookup records:
// the first-seen date becomes time0 (seconds since epoch, UTC midnight) and
// rows below the review threshold are dropped as noise/unreleased products.
//
// Output columns: product_id, time0, last_grade, max_review_count.
type LookupBuilder struct {
	// MinReviews is the minimum accumulated review count to keep a row.
	// Zero means 1 (i.e., max_review_count > 0).
	MinReviews int

	// OnDrop, when set, receives a reason for every dropped row so the run
	// summary can report them. Reasons: "below_min_reviews", "bad_date".
	OnDrop func(reason string, rec records.Record)
}

func (b LookupBuilder) Apply(in []records.Record) []records.Record {
	min := int64(b.MinReviews)
	if min == 0 {
		min = 1
	}

	drop := func(reason string, r records.Record) {
		if b.OnDrop != nil {
			b.OnDrop(reason, r)
		}
	}

	out := make([]records.Record, 0, len(in))
	for _, r := range in {
		reviews, ok := r.Int(schema.ColMaxReviewCount)
		if !ok || reviews < min {
			drop("below_min_reviews", r)
			continue
		}
		first, _ := r.String(schema.ColFirstSeenDate)
		t0, err := dates.Unix(first)
		if err != nil {
			drop("bad_date", r)
			continue
		}
		grade, _ := r.Int(schema.ColLastGrade)
		id, _ := r.String(schema.ColProductID)
		out = append(out, records.Record{
			schema.ColProductID:      id,
			schema.ColTime0:          t0,
			schema.ColLastGrade:      grade,
			schema.ColMaxReviewCount: reviews,
		})
	}
	return out
}
