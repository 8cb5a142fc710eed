// Package schema declares the fixed record shapes flowing through the
// pipeline: the raw daily observation, the per-product lookup summary, and
// the final stat record. Column names are shared constants so stages and
// storage agree without string duplication.
package schema

import "pricehist/pkg/records"

// Observation columns (raw daily snapshot rows).
const (
	ColQueryDate     = "query_date"
	ColProductID     = "product_id"
	ColTitle         = "title"
	ColGrade         = "grade"
	ColReviewCount   = "review_count"
	ColFullPrice     = "full_price"
	ColDiscountPrice = "discount_price"
)

// Lookup summary columns (one row per distinct product).
const (
	ColFirstSeenDate  = "first_seen_date"
	ColLastGrade      = "last_grade"
	ColMaxReviewCount = "max_review_count"
	ColTime0          = "time0"
)

// Stat record columns (final output).
const (
	ColRetailPrice     = "retail_price"
	ColSalePrice       = "sale_price"
	ColCurTime         = "cur_time"
	ColDeltaT          = "delta_t"
	ColDiscountPercent = "discount_percent"
)

// ColSeq is the internal monotonic sequence column carried by stored rows so
// exports preserve the original per-day ordering. It never appears in the
// exported dataset.
const ColSeq = "seq"

// Observation is the declared schema of a parsed snapshot row. Prices stay
// string-typed until the join stage parses them, per the data contract.
func Observation() records.Schema {
	return records.Schema{
		{Name: ColQueryDate, Type: records.TypeString},
		{Name: ColProductID, Type: records.TypeString},
		{Name: ColTitle, Type: records.TypeString},
		{Name: ColGrade, Type: records.TypeInt},
		{Name: ColReviewCount, Type: records.TypeInt},
		{Name: ColFullPrice, Type: records.TypeString},
		{Name: ColDiscountPrice, Type: records.TypeString},
	}
}

// RankedLookup is the schema of the join table built by the first pass.
func RankedLookup() records.Schema {
	return records.Schema{
		{Name: ColProductID, Type: records.TypeString},
		{Name: ColTime0, Type: records.TypeInt},
		{Name: ColLastGrade, Type: records.TypeInt},
		{Name: ColMaxReviewCount, Type: records.TypeInt},
	}
}

// Stat is the schema of the final dataset, in export column order.
func Stat() records.Schema {
	return records.Schema{
		{Name: ColQueryDate, Type: records.TypeString},
		{Name: ColProductID, Type: records.TypeString},
		{Name: ColTitle, Type: records.TypeString},
		{Name: ColRetailPrice, Type: records.TypeFloat},
		{Name: ColSalePrice, Type: records.TypeFloat},
		{Name: ColTime0, Type: records.TypeInt},
		{Name: ColGrade, Type: records.TypeInt},
		{Name: ColReviewCount, Type: records.TypeInt},
		{Name: ColCurTime, Type: records.TypeInt},
		{Name: ColDeltaT, Type: records.TypeInt},
		{Name: ColDiscountPercent, Type: records.TypeFloat},
	}
}
