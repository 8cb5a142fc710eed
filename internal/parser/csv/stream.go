package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pricehist/internal/dates"
	"pricehist/internal/schema"
	"pricehist/pkg/records"
)

// Row is one parsed observation together with its line number in the source
// file. Line numbers are 1-based and count the header.
type Row struct {
	Line int
	Rec  records.Record
}

// StreamObservations parses one snapshot file from r and sends observation
// records into 'out'.
//
// Behavior:
//   - The header row (or, for headerless files, opt.Columns) is normalized
//     and checked against the canonical observation schema; a missing
//     required column aborts with a *records.SchemaError before any row is
//     emitted.
//   - query_date is normalized to the canonical dash form; grade and
//     review_count are coerced to int64; prices stay raw strings for the
//     join stage to parse.
//   - Per-row errors are soft: they are reported via onError(line, err) and
//     the stream continues.
//   - Memory stays bounded; no full-file buffering.
//
// Returns nil on EOF or a fatal error (unreadable header, missing column).
// The caller owns 'out' and closes it after all files are done.
func StreamObservations(
	ctx context.Context,
	r io.Reader,
	opt Options,
	out chan<- Row,
	onError func(line int, err error),
) error {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1 // width enforced per canonical column below

	// Header handling: read the first row when the file has one, otherwise
	// the configured column names stand in for it.
	hdr := opt.Columns
	line := 0
	if opt.HasHeader {
		h, err := cr.Read()
		if err != nil {
			return fmt.Errorf("read snapshot header: %w", err)
		}
		hdr = h
		line = 1
	}
	idx, err := indexHeader(hdr, opt.HeaderMap)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		line++

		if err != nil {
			if onError != nil {
				onError(line, fmt.Errorf("parse: %w", err))
			}
			continue
		}

		rec, err := buildRecord(raw, idx, opt)
		if err != nil {
			if onError != nil {
				onError(line, err)
			}
			continue
		}

		select {
		case out <- Row{Line: line, Rec: rec}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// buildRecord projects one raw CSV row onto the canonical observation
// schema, coercing typed columns. Any failure is a row-level error.
func buildRecord(raw []string, idx colIndex, opt Options) (records.Record, error) {
	cell := func(col string) (string, bool) {
		i := idx[col]
		if i >= len(raw) {
			return "", false
		}
		v := raw[i]
		if opt.TrimSpace {
			v = strings.TrimSpace(v)
		}
		return v, true
	}

	rec := make(records.Record, 7)
	for _, f := range schema.Observation() {
		v, ok := cell(f.Name)
		if !ok {
			return nil, fmt.Errorf("row too narrow for column %s", f.Name)
		}
		switch f.Name {
		case schema.ColQueryDate:
			iso, err := dates.Normalize(v, opt.DateLayout)
			if err != nil {
				return nil, err
			}
			rec[f.Name] = iso
		case schema.ColGrade, schema.ColReviewCount:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: not an integer: %q", f.Name, v)
			}
			rec[f.Name] = n
		default:
			rec[f.Name] = v
		}
	}
	if id, _ := rec.String(schema.ColProductID); id == "" {
		return nil, fmt.Errorf("empty %s", schema.ColProductID)
	}
	return rec, nil
}
