package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"pricehist/internal/config"
	"pricehist/internal/dates"
	"pricehist/internal/storage"
	"pricehist/pkg/records"
)

// memRepo is an in-memory Repository standing in for a real backend.
type memRepo struct {
	mu     sync.Mutex
	cols   map[string][]string
	tables map[string][][]any
}

func newMemRepo() *memRepo {
	return &memRepo{cols: map[string][]string{}, tables: map[string][][]any{}}
}

func (m *memRepo) EnsureTable(ctx context.Context, table string, cols []storage.Column) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = nil
	}
	return nil
}

func (m *memRepo) Truncate(ctx context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = nil
	return nil
}

func (m *memRepo) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cols[table] = columns
	for _, r := range rows {
		cp := make([]any, len(r))
		copy(cp, r)
		m.tables[table] = append(m.tables[table], cp)
	}
	return int64(len(rows)), nil
}

func (m *memRepo) ScanTable(ctx context.Context, table string, columns, orderBy []string, fn func(row []any) error) error {
	m.mu.Lock()
	stored := m.cols[table]
	rows := make([][]any, len(m.tables[table]))
	copy(rows, m.tables[table])
	m.mu.Unlock()

	at := func(row []any, col string) any {
		for i, c := range stored {
			if c == col {
				return row[i]
			}
		}
		return nil
	}
	if len(orderBy) > 0 {
		key := orderBy[0]
		sort.SliceStable(rows, func(i, j int) bool {
			return at(rows[i], key).(int64) < at(rows[j], key).(int64)
		})
	}
	for _, r := range rows {
		out := make([]any, len(columns))
		for i, c := range columns {
			out[i] = at(r, c)
		}
		if err := fn(out); err != nil {
			return err
		}
	}
	return nil
}

func (m *memRepo) rowCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *memRepo) Close() {}

func writeSnapshot(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	body := "query_date,product_id,title,grade,review_count,full_price,discount_price\n" +
		strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// corpus writes three daily snapshots:
//
//	day 1: product 42 only (present at the boundary, so left-censored)
//	day 2: 42 again, plus 41 making its first appearance
//	day 3: 42, 41 with fresher grade and reviews, 55 with zero reviews,
//	       and one malformed line
func corpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeSnapshot(t, dir, "listing_2024-01-01.csv",
		"2024-01-01,42,Gadget,7,50,20,16")
	writeSnapshot(t, dir, "listing_2024-01-02.csv",
		"2024-01-02,42,Gadget,7,60,20,16",
		"2024-01-02,41,Widget,8,120,50,40")
	writeSnapshot(t, dir, "listing_2024-01-03.csv",
		"2024-01-03,42,Gadget,7,70,20,16",
		"2024-01-03,41,Widget,9,130,50,45",
		"2024-01-03,55,Trinket,5,0,10,10",
		"oops,truncated")
	return dir
}

func pipelineFor(t *testing.T, snapDir, outDir string) config.Pipeline {
	t.Helper()
	return config.Pipeline{
		Job: "container-test",
		Source: config.Source{
			Kind:      "snapshots",
			Snapshots: config.SourceSnapshots{Dir: snapDir, Glob: "listing_*.csv"},
		},
		Parser: config.Parser{Kind: "csv", Options: config.Options{}},
		Storage: config.Storage{
			Kind: "mem",
			DB:   config.DBConfig{DSN: "memory", AutoCreateTable: true},
		},
		Output: config.Output{
			Path:      filepath.Join(outDir, "out", "stat_records.csv"),
			SkipAudit: filepath.Join(outDir, "out", "skips.csv"),
		},
		Runtime: config.RuntimeConfig{IngestWorkers: 2, BatchSize: 3, ChannelBuffer: 8},
	}
}

func installRepo(t *testing.T) func() *memRepo {
	t.Helper()
	var (
		mu   sync.Mutex
		last *memRepo
	)
	orig := newRepositoryFn
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		mu.Lock()
		defer mu.Unlock()
		last = newMemRepo()
		return last, nil
	}
	t.Cleanup(func() { newRepositoryFn = orig })
	return func() *memRepo {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestRun_EndToEnd(t *testing.T) {
	snapDir := corpus(t)
	outDir := t.TempDir()
	lastRepo := installRepo(t)

	spec := pipelineFor(t, snapDir, outDir)
	if err := run(context.Background(), spec); err != nil {
		t.Fatal(err)
	}
	repo := lastRepo()

	// 6 parsed observations land in the log; the malformed line does not.
	if got := repo.rowCount("observations"); got != 6 {
		t.Fatalf("observations rows = %d, want 6", got)
	}

	// Only product 41 survives selection: 42 is left-censored, 55 has no
	// reviews. Its two observations become the dataset.
	if got := repo.rowCount("stat_records"); got != 2 {
		t.Fatalf("stat_records rows = %d, want 2", got)
	}

	data, err := os.ReadFile(spec.Output.Path)
	if err != nil {
		t.Fatal(err)
	}
	t0, _ := dates.Unix("2024-01-02")
	want := "query_date,product_id,title,retail_price,sale_price,time0,grade,review_count,cur_time,delta_t,discount_percent\n" +
		fmt.Sprintf("2024-01-02,41,Widget,50,40,%d,8,120,%d,0,0.2\n", t0, t0) +
		fmt.Sprintf("2024-01-03,41,Widget,50,45,%d,9,130,%d,86400,0.1\n", t0, t0+86400)
	if string(data) != want {
		t.Fatalf("output:\n%s\nwant:\n%s", data, want)
	}

	audit, err := os.ReadFile(spec.Output.SkipAudit)
	if err != nil {
		t.Fatal(err)
	}
	for _, frag := range []string{"parse_error,5,", "below_min_reviews,0,55,"} {
		if !strings.Contains(string(audit), frag) {
			t.Fatalf("audit missing %q:\n%s", frag, audit)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	snapDir := corpus(t)

	// Both runs share one repository, as reruns against a persistent store
	// would.
	repo := newMemRepo()
	orig := newRepositoryFn
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return repo, nil
	}
	t.Cleanup(func() { newRepositoryFn = orig })

	read := func(outDir string) []byte {
		t.Helper()
		spec := pipelineFor(t, snapDir, outDir)
		if err := run(context.Background(), spec); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(spec.Output.Path)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	first := read(t.TempDir())
	second := read(t.TempDir())
	if string(first) != string(second) {
		t.Fatalf("reruns differ:\n%s\nvs:\n%s", first, second)
	}
	if got := repo.rowCount("observations"); got != 6 {
		t.Fatalf("observations rows after rerun = %d, want 6", got)
	}
	if got := repo.rowCount("stat_records"); got != 2 {
		t.Fatalf("stat_records rows after rerun = %d, want 2", got)
	}
}

func TestRun_DiscoverFailure(t *testing.T) {
	installRepo(t)
	spec := pipelineFor(t, filepath.Join(t.TempDir(), "missing"), t.TempDir())
	if err := run(context.Background(), spec); err == nil {
		t.Fatal("expected error for empty snapshot dir")
	}
}

func TestFormatStat_AbsentDiscount(t *testing.T) {
	t.Parallel()

	rec := records.Record{
		"query_date":   "2024-01-02",
		"product_id":   "41",
		"title":        "Widget",
		"retail_price": 0.0,
		"sale_price":   0.0,
		"time0":        int64(86400),
		"grade":        int64(8),
		"review_count": int64(120),
		"cur_time":     int64(86400),
		"delta_t":      int64(0),
	}
	got := formatStat(rec, "")
	want := []string{"2024-01-02", "41", "Widget", "0", "0", "86400", "8", "120", "86400", "0", ""}
	if len(got) != len(want) {
		t.Fatalf("formatStat = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("formatStat[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFormatStat_OutputDateLayout(t *testing.T) {
	t.Parallel()

	rec := records.Record{"query_date": "2024-01-02", "product_id": "41"}
	got := formatStat(rec, "02.01.2006")
	if got[0] != "02.01.2024" {
		t.Fatalf("query_date = %q, want 02.01.2024", got[0])
	}
	if got[1] != "41" {
		t.Fatalf("product_id = %q", got[1])
	}
}

func TestStatRow_NullDiscount(t *testing.T) {
	t.Parallel()

	rec := records.Record{"query_date": "2024-01-02", "product_id": "41"}
	row := statRow(rec, 7)
	if got := row[len(row)-1]; got != int64(7) {
		t.Fatalf("seq = %v", got)
	}
	// discount_percent is the last schema column before seq.
	if row[len(row)-2] != nil {
		t.Fatalf("discount_percent = %v, want nil", row[len(row)-2])
	}
}
