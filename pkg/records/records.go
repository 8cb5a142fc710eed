// Package records defines the common row vocabulary shared by every pipeline
// stage: a Record is a loosely typed column→value map, and a Schema declares
// the columns a stage requires together with their semantic types.
//
// Records are produced by the CSV parser, folded by the aggregator, filtered
// by transformers, and finally rendered into storage rows. Keeping the type
// here (and dependency-free) lets all stages compose without import cycles.
package records

import "fmt"

// Record is one logical row. Values are raw strings as parsed, or already
// coerced Go values (int64, float64) depending on the declared field type.
// A missing key and a nil value both mean NULL.
type Record map[string]any

// Clone returns a shallow copy of the record. Stages that rewrite rows use
// Clone so upstream slices stay immutable.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the string value for col, or "" and false when the column
// is absent, nil, or not a string.
func (r Record) String(col string) (string, bool) {
	if v, ok := r[col]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

// Int returns the integer value for col. It accepts int64 and int (the two
// widths produced by coercion and tests respectively).
func (r Record) Int(col string) (int64, bool) {
	switch n := r[col].(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// Float returns the float value for col, accepting float64 as well as the
// integer widths (an int column is a valid float source).
func (r Record) Float(col string) (float64, bool) {
	switch n := r[col].(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// Field type names. These are semantic types, not storage types; the storage
// backends map them onto their own column types.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
)

// Field declares one column of a Schema.
type Field struct {
	Name string
	Type string // TypeString, TypeInt, TypeFloat
}

// Schema is an ordered column declaration for a record stream.
type Schema []Field

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Index returns the position of the named column, or -1 when absent.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Require verifies that every named column exists in the schema. The first
// missing column is reported as a *SchemaError.
func (s Schema) Require(names ...string) error {
	for _, n := range names {
		if s.Index(n) < 0 {
			return &SchemaError{Column: n}
		}
	}
	return nil
}

// SchemaError reports a required column that is missing or misnamed in the
// input. It is fatal: the run aborts before any output is written.
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: required column %q not found", e.Column)
}
