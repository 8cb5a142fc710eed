// Package derive implements the second full pass over the observation log:
// a streaming hash equi-join of every daily observation against the ranked
// lookup table, computing the derived time and discount fields of the final
// dataset.
//
// The join is the selection mechanism: observations whose product is not in
// the lookup (bundles, left-censored products, sub-top-K products) simply do
// not match and are dropped. Row-level parse failures are reported as typed
// errors so the caller can count and skip them; nothing in this package is
// fatal to the run.
package derive

import (
	"fmt"
	"strconv"

	"pricehist/internal/dates"
	"pricehist/internal/schema"
	"pricehist/pkg/records"
)

// NumericParseError reports an unparsable price field. Row-level: the row is
// skipped and counted, the pipeline continues.
type NumericParseError struct {
	Column string
	Value  string
}

func (e *NumericParseError) Error() string {
	return fmt.Sprintf("derive: column %s: cannot parse %q as a number", e.Column, e.Value)
}

// lookupEntry is the compact per-product join target.
type lookupEntry struct {
	time0      int64
	lastGrade  int64
	maxReviews int64
}

// Engine joins observations against a fixed lookup table. Build once per
// run; Derive is then called for every observation in log order. The Engine
// holds no per-row state and is safe for sequential reuse.
type Engine struct {
	lookup     map[string]lookupEntry
	minReviews int64
}

// NewEngine indexes the ranked lookup records by product id. MinReviews is
// the per-observation review floor re-validated during the join; zero means
// 1. Lookup rows must follow the ranked lookup schema (they do by
// construction; a malformed row here indicates a wiring bug and is
// rejected).
func NewEngine(lookup []records.Record, minReviews int) (*Engine, error) {
	min := int64(minReviews)
	if min == 0 {
		min = 1
	}
	lookupSchema := schema.RankedLookup()
	idx := make(map[string]lookupEntry, len(lookup))
	for _, r := range lookup {
		for _, f := range lookupSchema {
			if _, ok := r[f.Name]; !ok {
				return nil, &records.SchemaError{Column: f.Name}
			}
		}
		id, ok := r.String(schema.ColProductID)
		if !ok || id == "" {
			return nil, &records.SchemaError{Column: schema.ColProductID}
		}
		t0, ok := r.Int(schema.ColTime0)
		if !ok {
			return nil, &records.SchemaError{Column: schema.ColTime0}
		}
		grade, _ := r.Int(schema.ColLastGrade)
		reviews, _ := r.Int(schema.ColMaxReviewCount)
		idx[id] = lookupEntry{time0: t0, lastGrade: grade, maxReviews: reviews}
	}
	return &Engine{lookup: idx, minReviews: min}, nil
}

// Derive joins one observation against the lookup table.
//
// Returns (nil, false, nil) when the product has no lookup entry (the inner
// join drops it) and (nil, false, err) for row-level failures: guard
// violations, unparsable dates, unparsable prices. On success the returned
// record follows the stat schema; discount_percent is present only when the
// retail price is positive, so it is never a division by zero.
func (e *Engine) Derive(obs records.Record) (records.Record, bool, error) {
	id, _ := obs.String(schema.ColProductID)
	ent, ok := e.lookup[id]
	if !ok {
		return nil, false, nil
	}

	// Guards hold by construction of the lookup; re-validate anyway so a
	// future lookup source cannot smuggle in zero rows.
	if ent.time0 <= 0 {
		return nil, false, fmt.Errorf("derive: product %s: non-positive time0 %d", id, ent.time0)
	}
	reviews, _ := obs.Int(schema.ColReviewCount)
	if reviews < e.minReviews {
		return nil, false, fmt.Errorf("derive: product %s: review count %d below floor %d", id, reviews, e.minReviews)
	}

	day, _ := obs.String(schema.ColQueryDate)
	curTime, err := dates.Unix(day)
	if err != nil {
		return nil, false, err
	}

	retail, err := parsePrice(obs, schema.ColFullPrice)
	if err != nil {
		return nil, false, err
	}
	sale, err := parsePrice(obs, schema.ColDiscountPrice)
	if err != nil {
		return nil, false, err
	}

	title, _ := obs.String(schema.ColTitle)
	grade, _ := obs.Int(schema.ColGrade)

	out := records.Record{
		schema.ColQueryDate:   day,
		schema.ColProductID:   id,
		schema.ColTitle:       title,
		schema.ColRetailPrice: retail,
		schema.ColSalePrice:   sale,
		schema.ColTime0:       ent.time0,
		schema.ColGrade:       grade,
		schema.ColReviewCount: reviews,
		schema.ColCurTime:     curTime,
		schema.ColDeltaT:      curTime - ent.time0,
	}
	if retail > 0 {
		out[schema.ColDiscountPercent] = (retail - sale) / retail
	}
	return out, true, nil
}

// Size returns the number of join targets; used for summary logging.
func (e *Engine) Size() int { return len(e.lookup) }

func parsePrice(obs records.Record, col string) (float64, error) {
	s, _ := obs.String(col)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &NumericParseError{Column: col, Value: s}
	}
	return v, nil
}
