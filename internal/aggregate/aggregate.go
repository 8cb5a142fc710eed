// Package aggregate implements the streaming group-by pass that folds the
// whole observation history into one summary record per product.
//
// The fold is a mixed-reducer group-by: each output column carries its own
// reducer (first, last, max), applied in a single forward pass with
// O(distinct keys) state. "first" and "last" are decided by an explicit
// ordering column, never by arrival order, which makes per-shard partial
// aggregates mergeable: processing files in parallel and merging shards in
// file order yields exactly the sequential result.
package aggregate

import (
	"fmt"

	"pricehist/pkg/records"
)

// Op selects the reducer applied to one output column.
type Op uint8

const (
	// First keeps the value paired with the smallest ordering key seen.
	// Ties keep the earliest capture.
	First Op = iota
	// Last keeps the value paired with the largest ordering key seen.
	// Ties take the latest capture.
	Last
	// Max keeps the running integer maximum; ties keep the first occurrence.
	Max
)

// Output declares one aggregated column: the value of Source reduced by Op,
// emitted under Column.
type Output struct {
	Column string
	Source string
	Op     Op
}

// Spec configures an Aggregator. Key is the grouping column, Order the
// explicit ordering column compared lexicographically (canonical dates
// compare chronologically this way).
type Spec struct {
	Key     string
	Order   string
	Outputs []Output
}

// groupState is the per-key partial aggregate.
type groupState struct {
	vals   []any    // current value per output
	orders []string // ordering key at which vals[i] was captured (First/Last)
}

// Aggregator folds records one at a time. It is not safe for concurrent use;
// parallel callers run one Aggregator per shard and Merge them.
type Aggregator struct {
	spec   Spec
	states map[string]*groupState
	keys   []string // first-seen key order, for deterministic emission
}

// New validates the spec and returns an empty Aggregator.
func New(spec Spec) (*Aggregator, error) {
	if spec.Key == "" {
		return nil, fmt.Errorf("aggregate: key column is required")
	}
	if spec.Order == "" {
		return nil, fmt.Errorf("aggregate: ordering column is required")
	}
	if len(spec.Outputs) == 0 {
		return nil, fmt.Errorf("aggregate: at least one output is required")
	}
	for _, o := range spec.Outputs {
		if o.Column == "" || o.Source == "" {
			return nil, fmt.Errorf("aggregate: output needs both column and source")
		}
		if o.Op > Max {
			return nil, fmt.Errorf("aggregate: unknown op %d for column %s", o.Op, o.Column)
		}
	}
	return &Aggregator{
		spec:   spec,
		states: make(map[string]*groupState),
	}, nil
}

// Add folds one record into the aggregate. A record without the key or the
// ordering column (or with a non-integer Max source) is a *records.SchemaError
// and aborts the run: silently mis-keyed aggregation would corrupt every
// downstream stage.
func (a *Aggregator) Add(rec records.Record) error {
	order, ok := rec.String(a.spec.Order)
	if !ok {
		return &records.SchemaError{Column: a.spec.Order}
	}
	key, ok := rec.String(a.spec.Key)
	if !ok {
		return &records.SchemaError{Column: a.spec.Key}
	}

	st, seen := a.states[key]
	if !seen {
		st = &groupState{
			vals:   make([]any, len(a.spec.Outputs)),
			orders: make([]string, len(a.spec.Outputs)),
		}
		a.states[key] = st
		a.keys = append(a.keys, key)
	}

	for i, out := range a.spec.Outputs {
		v, present := rec[out.Source]
		if !present {
			return &records.SchemaError{Column: out.Source}
		}
		switch out.Op {
		case First:
			if !seen || order < st.orders[i] {
				st.vals[i], st.orders[i] = v, order
			}
		case Last:
			if !seen || order >= st.orders[i] {
				st.vals[i], st.orders[i] = v, order
			}
		case Max:
			n, ok := rec.Int(out.Source)
			if !ok {
				return &records.SchemaError{Column: out.Source}
			}
			if !seen || n > st.vals[i].(int64) {
				st.vals[i] = n
			}
		}
	}
	return nil
}

// Merge folds another shard into the receiver. The other shard must have been
// built with the same spec and must cover later (or equal) files than the
// receiver, so that Last ties resolve exactly as sequential processing would.
// Keys unknown to the receiver are appended in the other shard's order.
func (a *Aggregator) Merge(other *Aggregator) {
	for _, key := range other.keys {
		ost := other.states[key]
		st, seen := a.states[key]
		if !seen {
			a.states[key] = ost
			a.keys = append(a.keys, key)
			continue
		}
		for i, out := range a.spec.Outputs {
			switch out.Op {
			case First:
				if ost.orders[i] < st.orders[i] {
					st.vals[i], st.orders[i] = ost.vals[i], ost.orders[i]
				}
			case Last:
				if ost.orders[i] >= st.orders[i] {
					st.vals[i], st.orders[i] = ost.vals[i], ost.orders[i]
				}
			case Max:
				if ost.vals[i].(int64) > st.vals[i].(int64) {
					st.vals[i] = ost.vals[i]
				}
			}
		}
	}
}

// Len returns the number of distinct keys folded so far.
func (a *Aggregator) Len() int { return len(a.keys) }

// Records emits one record per distinct key, in first-seen key order. The
// emitted records carry the key column plus every declared output column.
func (a *Aggregator) Records() []records.Record {
	out := make([]records.Record, 0, len(a.keys))
	for _, key := range a.keys {
		st := a.states[key]
		rec := make(records.Record, len(a.spec.Outputs)+1)
		rec[a.spec.Key] = key
		for i, o := range a.spec.Outputs {
			rec[o.Column] = st.vals[i]
		}
		out = append(out, rec)
	}
	return out
}
