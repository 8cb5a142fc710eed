// Package transform defines the record-set transformation contract used to
// shape the aggregated lookup table, plus the shared validation error type
// raised by transform constructors before any I/O happens.
package transform

import "pricehist/pkg/records"

// Transformer rewrites or filters a batch of records.
type Transformer interface {
	Apply([]records.Record) []records.Record
}

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(in []records.Record) []records.Record {
	if len(c) == 0 {
		return in
	}

	out := in
	for _, t := range c {
		if t == nil {
			continue
		}
		out = t.Apply(out)
	}
	return out
}

// ValidationError reports an unusable stage configuration (non-positive
// top-K, empty or malformed boundary date). It is fatal and is raised at
// construction time, never mid-stream.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }
