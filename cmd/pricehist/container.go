// Package main wires the price-history pipeline end-to-end: snapshot
// discovery, parallel ingest into the observation log, the summary
// aggregation and popularity selection, and the second pass that joins every
// observation against the selected products and exports the derived dataset.
// This file keeps the CLI layer thin: it depends only on storage-agnostic
// interfaces and never imports database drivers directly.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeebo/xxh3"

	"pricehist/internal/aggregate"
	"pricehist/internal/config"
	"pricehist/internal/datasource/file"
	"pricehist/internal/dates"
	"pricehist/internal/derive"
	"pricehist/internal/metrics"
	csvparser "pricehist/internal/parser/csv"
	"pricehist/internal/schema"
	"pricehist/internal/skiplog"
	"pricehist/internal/storage"
	"pricehist/internal/transform"
	"pricehist/internal/transform/builtin"
	"pricehist/pkg/records"
)

// counters holds cross-goroutine statistics for a run.
//
// All fields are updated atomically; the ingest workers share one instance.
type counters struct {
	observations atomic.Int64 // rows successfully parsed from snapshots
	parseErrors  atomic.Int64 // lines the CSV reader could not parse
	obsInserted  atomic.Int64 // rows flushed into the observation log
	statRows     atomic.Int64 // derived rows written to the dataset
}

// runtimeConfig contains the resolved concurrency and buffering configuration
// for a run. Values are derived from the pipeline spec with optional
// environment variable overrides (12-factor style).
type runtimeConfig struct {
	ingestWorkers int
	batchSize     int
	bufferSize    int
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	discoverFn = file.Discover

	openSnapshotFn = func(ctx context.Context, path string) (io.ReadCloser, error) {
		return file.NewLocal(path).Open(ctx)
	}

	streamObservationsFn = csvparser.StreamObservations
)

// run executes the full pipeline for one snapshot corpus.
//
// The run makes two passes over the data. Pass one streams every snapshot
// file into the observation log while folding per-product summaries; the
// summaries then flow through the bundle, boundary, lookup, and top-K stages
// to produce the ranked lookup table. Pass two re-reads the log in capture
// order, joins each observation against the lookup, and writes the derived
// stat records to both the store and the output CSV.
//
// Re-running over the same corpus and config produces a byte-identical
// output file: file order, per-file line order, and first-seen aggregation
// order are all deterministic.
func run(ctx context.Context, spec config.Pipeline) error {
	rt := newRuntimeConfig(spec)
	log.Printf("runtime: ingest_workers=%d batch=%d buffer=%d",
		rt.ingestWorkers, rt.batchSize, rt.bufferSize)

	snaps, err := discoverFn(spec.Source.Snapshots.Dir, spec.Source.Snapshots.Glob, spec.Source.Snapshots.DateLayout)
	if err != nil {
		return fmt.Errorf("discover snapshots: %w", err)
	}
	boundary := file.Boundary(snaps)
	log.Printf("corpus: snapshots=%d first=%s last=%s",
		len(snaps), snaps[0].Date, snaps[len(snaps)-1].Date)

	// Construct the fixed filters up front so a bad boundary or cutoff aborts
	// before any I/O.
	boundaryFilter, err := builtin.NewBoundaryFilter(schema.ColFirstSeenDate, boundary)
	if err != nil {
		return err
	}
	topK, err := builtin.NewTopK(schema.ColMaxReviewCount, spec.Pipeline.TopKOrDefault())
	if err != nil {
		return err
	}

	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind: storageKind(spec),
		DSN:  spec.Storage.DB.DSN,
	})
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	defer repo.Close()

	obsTable := spec.Storage.DB.ObservationsTableOrDefault()
	statsTable := spec.Storage.DB.StatsTableOrDefault()
	if spec.Storage.DB.AutoCreateTable {
		if err := repo.EnsureTable(ctx, obsTable, observationColumns()); err != nil {
			return fmt.Errorf("ensure table %s: %w", obsTable, err)
		}
		if err := repo.EnsureTable(ctx, statsTable, statColumns()); err != nil {
			return fmt.Errorf("ensure table %s: %w", statsTable, err)
		}
	}
	// Both tables are regenerated from the corpus on every run. Clearing
	// them up front keeps reruns against a persistent store byte-identical
	// instead of appending a second copy of everything.
	for _, table := range []string{obsTable, statsTable} {
		if err := repo.Truncate(ctx, table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	skips, err := skiplog.New(spec.Output.SkipAudit)
	if err != nil {
		return err
	}
	defer skips.Close()

	var stats counters

	// Pass 1: ingest snapshots into the log, one summary shard per file.
	stepStart := time.Now()
	shards, err := ingestSnapshots(ctx, spec, rt, snaps, repo, obsTable, skips, &stats)
	metrics.RecordStep(spec.Job, "ingest", err, time.Since(stepStart))
	if err != nil {
		return err
	}
	log.Printf("ingest: observations=%d parse_errors=%d inserted=%d",
		stats.observations.Load(), stats.parseErrors.Load(), stats.obsInserted.Load())

	// Merge shards in file order so ties resolve as sequential processing
	// would, then run the selection chain.
	stepStart = time.Now()
	agg, err := aggregate.New(summarySpec())
	if err != nil {
		return err
	}
	for _, sh := range shards {
		agg.Merge(sh)
	}
	summaries := agg.Records()

	lookupBuilder := builtin.LookupBuilder{
		MinReviews: spec.Pipeline.LookupMinOrDefault(),
		OnDrop: func(reason string, rec records.Record) {
			id, _ := rec.String(schema.ColProductID)
			skips.Add(reason, 0, id, "")
		},
	}
	chain := transform.Chain{
		builtin.BundleFilter{Key: schema.ColProductID, Delim: spec.Pipeline.DelimOrDefault()},
		boundaryFilter,
		lookupBuilder,
		topK,
	}
	lookup := chain.Apply(summaries)
	metrics.RecordStep(spec.Job, "aggregate", nil, time.Since(stepStart))
	log.Printf("lookup: products=%d (distinct=%d top_k=%d)",
		len(lookup), agg.Len(), spec.Pipeline.TopKOrDefault())

	engine, err := derive.NewEngine(lookup, spec.Pipeline.JoinMinOrDefault())
	if err != nil {
		return fmt.Errorf("build join engine: %w", err)
	}

	// Pass 2: re-scan the log in capture order, join, load, export.
	stepStart = time.Now()
	inserted, err := joinAndExport(ctx, spec, rt, repo, obsTable, statsTable, engine, skips, &stats)
	metrics.RecordStep(spec.Job, "join", err, time.Since(stepStart))
	if err != nil {
		return err
	}

	metrics.RecordRow(spec.Job, "observations", stats.observations.Load())
	metrics.RecordRow(spec.Job, "parse_errors", stats.parseErrors.Load())
	metrics.RecordRow(spec.Job, "skipped", skips.Total())
	metrics.RecordRow(spec.Job, "stat_records", stats.statRows.Load())

	log.Printf(
		"summary: snapshots=%d observations=%d parse_errors=%d lookup=%d stat_records=%d stat_inserted=%d skips: %s",
		len(snaps),
		stats.observations.Load(),
		stats.parseErrors.Load(),
		engine.Size(),
		stats.statRows.Load(),
		inserted,
		skips.Summary(),
	)
	return nil
}

// ingestSnapshots streams every snapshot into the observation log and folds
// one summary aggregator per file. Files are processed by up to
// rt.ingestWorkers goroutines; ordering is restored by the per-row sequence
// number (file index and line), so the parallel result is identical to a
// sequential pass.
func ingestSnapshots(
	ctx context.Context,
	spec config.Pipeline,
	rt runtimeConfig,
	snaps []file.Snapshot,
	repo storage.Repository,
	obsTable string,
	skips *skiplog.Log,
	stats *counters,
) ([]*aggregate.Aggregator, error) {
	shards := make([]*aggregate.Aggregator, len(snaps))
	for i := range shards {
		sh, err := aggregate.New(summarySpec())
		if err != nil {
			return nil, err
		}
		shards[i] = sh
	}

	// A fatal loader error cancels upstream workers.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cols := observationColumnNames()
	rowCh := make(chan []any, rt.bufferSize)

	var (
		loaderErr  error
		loaderDone = make(chan struct{})
	)
	go func() {
		defer close(loaderDone)
		n, err := storage.LoadBatches(ctx, cols, rowCh, rt.batchSize,
			func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
				n, err := repo.CopyFrom(ctx, obsTable, columns, rows)
				if err == nil {
					metrics.RecordBatches(spec.Job, 1)
				}
				return n, err
			})
		stats.obsInserted.Add(n)
		if err != nil {
			loaderErr = err
			cancel()
		}
	}()

	opt := parserOptions(spec)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rt.ingestWorkers)
	for i := range snaps {
		fileIdx, snap := i, snaps[i]
		g.Go(func() error {
			return ingestOne(gctx, snap, fileIdx, opt, shards[fileIdx], rowCh, skips, stats)
		})
	}
	err := g.Wait()
	close(rowCh)
	<-loaderDone

	if loaderErr != nil {
		return nil, fmt.Errorf("load observations: %w", loaderErr)
	}
	if err != nil {
		return nil, err
	}
	return shards, nil
}

// ingestOne parses a single snapshot file, folds its rows into the file's
// summary shard, and forwards each row (tagged with its sequence number) to
// the observation loader.
func ingestOne(
	ctx context.Context,
	snap file.Snapshot,
	fileIdx int,
	opt csvparser.Options,
	shard *aggregate.Aggregator,
	rowCh chan<- []any,
	skips *skiplog.Log,
	stats *counters,
) error {
	rc, err := openSnapshotFn(ctx, snap.Path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer rc.Close()

	onError := func(line int, err error) {
		stats.parseErrors.Add(1)
		skips.Add("parse_error", line, "", err.Error())
	}

	out := make(chan csvparser.Row, 64)
	streamErr := make(chan error, 1)
	go func() {
		defer close(out)
		streamErr <- streamObservationsFn(ctx, rc, opt, out, onError)
	}()

	for row := range out {
		stats.observations.Add(1)
		if err := shard.Add(row.Rec); err != nil {
			return fmt.Errorf("snapshot %s line %d: %w", snap.Path, row.Line, err)
		}
		seq := int64(fileIdx)<<32 | int64(row.Line)
		select {
		case rowCh <- observationRow(row.Rec, seq):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := <-streamErr; err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.Path, err)
	}
	return nil
}

// joinAndExport performs the second pass: the observation log is read back
// in sequence order, each row is joined against the lookup, and surviving
// rows are written to the stats table and the output CSV. The CSV is hashed
// while being written so runs can be compared cheaply.
func joinAndExport(
	ctx context.Context,
	spec config.Pipeline,
	rt runtimeConfig,
	repo storage.Repository,
	obsTable, statsTable string,
	engine *derive.Engine,
	skips *skiplog.Log,
	stats *counters,
) (int64, error) {
	if dir := filepath.Dir(spec.Output.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create output dir: %w", err)
		}
	}
	outFile, err := os.Create(spec.Output.Path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer outFile.Close()

	hasher := xxh3.New()
	w := csv.NewWriter(io.MultiWriter(outFile, hasher))
	if err := w.Write(schema.Stat().Names()); err != nil {
		return 0, fmt.Errorf("write output header: %w", err)
	}

	// Stat rows stream into the loader while the scan runs.
	statCols := statColumnNames()
	rowCh := make(chan []any, rt.bufferSize)

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		inserted   int64
		loaderErr  error
		loaderDone = make(chan struct{})
	)
	go func() {
		defer close(loaderDone)
		inserted, loaderErr = storage.LoadBatches(loadCtx, statCols, rowCh, rt.batchSize,
			func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
				return repo.CopyFrom(ctx, statsTable, columns, rows)
			})
		if loaderErr != nil {
			cancel()
		}
	}()

	obsCols := observationColumnNames()
	scanErr := repo.ScanTable(ctx, obsTable, obsCols, []string{schema.ColSeq}, func(row []any) error {
		rec := rowToRecord(obsCols, row)
		seq, _ := rec.Int(schema.ColSeq)
		line := int(seq & 0xffffffff)

		stat, matched, err := engine.Derive(rec)
		if err != nil {
			id, _ := rec.String(schema.ColProductID)
			var numErr *derive.NumericParseError
			var dateErr *dates.ParseError
			switch {
			case errors.As(err, &numErr):
				skips.Add("bad_price", line, id, numErr.Value)
			case errors.As(err, &dateErr):
				skips.Add("bad_date", line, id, dateErr.Value)
			default:
				skips.Add("guard", line, id, err.Error())
			}
			return nil
		}
		if !matched {
			skips.Count("no_match")
			return nil
		}

		stats.statRows.Add(1)
		if err := w.Write(formatStat(stat, spec.Pipeline.OutputDateLayout)); err != nil {
			return fmt.Errorf("write output row: %w", err)
		}
		select {
		case rowCh <- statRow(stat, seq):
			return nil
		case <-loadCtx.Done():
			return loadCtx.Err()
		}
	})
	close(rowCh)
	<-loaderDone

	if loaderErr != nil {
		return inserted, fmt.Errorf("load stat records: %w", loaderErr)
	}
	if scanErr != nil {
		return inserted, fmt.Errorf("scan %s: %w", obsTable, scanErr)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return inserted, fmt.Errorf("flush output: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return inserted, fmt.Errorf("close output: %w", err)
	}
	log.Printf("export: path=%s rows=%d checksum=%016x",
		spec.Output.Path, stats.statRows.Load(), hasher.Sum64())
	return inserted, nil
}

// summarySpec declares the per-product reducers of the first pass: earliest
// sighting date, most recent grade, highest review count. Ordering is the
// canonical query date, whose lexicographic order is chronological.
func summarySpec() aggregate.Spec {
	return aggregate.Spec{
		Key:   schema.ColProductID,
		Order: schema.ColQueryDate,
		Outputs: []aggregate.Output{
			{Column: schema.ColFirstSeenDate, Source: schema.ColQueryDate, Op: aggregate.First},
			{Column: schema.ColLastGrade, Source: schema.ColGrade, Op: aggregate.Last},
			{Column: schema.ColMaxReviewCount, Source: schema.ColReviewCount, Op: aggregate.Max},
		},
	}
}

// parserOptions maps parser configuration onto the CSV parser options.
func parserOptions(spec config.Pipeline) csvparser.Options {
	o := spec.Parser.Options
	return csvparser.Options{
		HasHeader:  o.Bool("has_header", true),
		Columns:    o.Strings("columns"),
		Comma:      o.Rune("comma", ','),
		TrimSpace:  o.Bool("trim_space", true),
		HeaderMap:  o.StringMap("header_map"),
		DateLayout: spec.Pipeline.InputDateLayout,
	}
}

// storageKind resolves the configured storage kind; duckdb is the default.
func storageKind(spec config.Pipeline) string {
	if spec.Storage.Kind == "" {
		return "duckdb"
	}
	return spec.Storage.Kind
}

// columnType maps record field types onto portable storage column types.
func columnType(t string) string {
	switch t {
	case records.TypeInt:
		return storage.TypeBigint
	case records.TypeFloat:
		return storage.TypeDouble
	default:
		return storage.TypeText
	}
}

// observationColumns is the observation log table definition: the raw
// observation fields plus the internal sequence column.
func observationColumns() []storage.Column {
	fields := schema.Observation()
	cols := make([]storage.Column, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, storage.Column{Name: f.Name, Type: columnType(f.Type)})
	}
	return append(cols, storage.Column{Name: schema.ColSeq, Type: storage.TypeBigint})
}

// statColumns is the stats table definition: the export columns plus the
// sequence column so the table preserves export order.
func statColumns() []storage.Column {
	fields := schema.Stat()
	cols := make([]storage.Column, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, storage.Column{Name: f.Name, Type: columnType(f.Type)})
	}
	return append(cols, storage.Column{Name: schema.ColSeq, Type: storage.TypeBigint})
}

func observationColumnNames() []string {
	return append(schema.Observation().Names(), schema.ColSeq)
}

func statColumnNames() []string {
	return append(schema.Stat().Names(), schema.ColSeq)
}

// observationRow flattens a parsed observation into loader order.
func observationRow(rec records.Record, seq int64) []any {
	fields := schema.Observation()
	row := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		row = append(row, rec[f.Name])
	}
	return append(row, seq)
}

// statRow flattens a derived record into loader order. An absent
// discount_percent becomes NULL.
func statRow(rec records.Record, seq int64) []any {
	fields := schema.Stat()
	row := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		if v, ok := rec[f.Name]; ok {
			row = append(row, v)
		} else {
			row = append(row, nil)
		}
	}
	return append(row, seq)
}

// rowToRecord rebuilds a record from a scanned row, aligned to cols.
func rowToRecord(cols []string, row []any) records.Record {
	rec := make(records.Record, len(cols))
	for i, c := range cols {
		if i < len(row) {
			rec[c] = row[i]
		}
	}
	return rec
}

// formatStat renders one derived record as CSV fields in export order. An
// absent discount_percent renders as the empty string; a non-empty
// dateLayout reformats query_date from the canonical dash form.
func formatStat(rec records.Record, dateLayout string) []string {
	fields := schema.Stat()
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := rec[f.Name]
		if !ok {
			out = append(out, "")
			continue
		}
		if f.Name == schema.ColQueryDate && dateLayout != "" {
			if d, ok := rec.String(f.Name); ok {
				if t, err := dates.Parse(d, ""); err == nil {
					out = append(out, t.Format(dateLayout))
					continue
				}
			}
		}
		switch f.Type {
		case records.TypeInt:
			n, _ := rec.Int(f.Name)
			out = append(out, strconv.FormatInt(n, 10))
		case records.TypeFloat:
			x, _ := rec.Float(f.Name)
			out = append(out, strconv.FormatFloat(x, 'g', -1, 64))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// newRuntimeConfig resolves the runtime configuration for a run using the
// pipeline spec and environment-variable fallbacks.
func newRuntimeConfig(spec config.Pipeline) runtimeConfig {
	return runtimeConfig{
		ingestWorkers: pickInt(spec.Runtime.IngestWorkers, getenvInt("PRICEHIST_INGEST_WORKERS", 4)),
		batchSize:     pickInt(spec.Runtime.BatchSize, getenvInt("PRICEHIST_BATCH_SIZE", 10000)),
		bufferSize:    pickInt(spec.Runtime.ChannelBuffer, getenvInt("PRICEHIST_CH_BUFFER", 4096)),
	}
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
