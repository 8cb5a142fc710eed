// Package skiplog counts row-level skips by reason and optionally writes
// each skipped row to an audit CSV. Every drop in the pipeline is countable
// and reportable; nothing disappears silently.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Log accumulates skip reasons for one run. Safe for concurrent use: the
// ingest workers and the join stage share a single Log.
type Log struct {
	mu      sync.Mutex
	reasons map[string]int64
	w       *csv.Writer
	f       *os.File
}

// New returns a Log. When auditPath is non-empty, every Add is also appended
// to a CSV audit file with a header of reason, line, product_id, detail;
// parent directories are created as needed.
func New(auditPath string) (*Log, error) {
	l := &Log{reasons: make(map[string]int64)}
	if auditPath == "" {
		return l, nil
	}
	if dir := filepath.Dir(auditPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("skiplog: create dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(auditPath)
	if err != nil {
		return nil, fmt.Errorf("skiplog: open %s: %w", auditPath, err)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"reason", "line", "product_id", "detail"})
	l.f, l.w = f, w
	return l, nil
}

// Add records one skipped row.
func (l *Log) Add(reason string, line int, productID, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons[reason]++
	if l.w != nil {
		_ = l.w.Write([]string{reason, strconv.Itoa(line), productID, detail})
	}
}

// Count records a skip without an auditable row (e.g., join no-match, which
// is selection behavior rather than a data defect).
func (l *Log) Count(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reasons[reason]++
}

// Total returns the number of skips across all reasons.
func (l *Log) Total() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, v := range l.reasons {
		n += v
	}
	return n
}

// Reasons returns a copy of the per-reason counts.
func (l *Log) Reasons() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.reasons))
	for k, v := range l.reasons {
		out[k] = v
	}
	return out
}

// Summary renders "reason=count" pairs sorted by reason, for the run log.
func (l *Log) Summary() string {
	reasons := l.Reasons()
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, reasons[k]))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}

// Close flushes and closes the audit file, if any.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}
