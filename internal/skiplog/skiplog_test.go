package skiplog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLog_CountsWithoutAudit(t *testing.T) {
	t.Parallel()

	l, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Add("parse_error", 3, "", "bad field count")
	l.Add("parse_error", 7, "", "bad field count")
	l.Add("bad_price", 12, "41", "")
	l.Count("no_match")

	if got := l.Total(); got != 4 {
		t.Fatalf("Total = %d, want 4", got)
	}
	want := map[string]int64{"parse_error": 2, "bad_price": 1, "no_match": 1}
	if got := l.Reasons(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Reasons = %v, want %v", got, want)
	}
	if got := l.Summary(); got != "bad_price=1 no_match=1 parse_error=2" {
		t.Fatalf("Summary = %q", got)
	}
}

func TestLog_SummaryEmpty(t *testing.T) {
	t.Parallel()

	l, _ := New("")
	if got := l.Summary(); got != "none" {
		t.Fatalf("Summary = %q, want \"none\"", got)
	}
}

func TestLog_AuditFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit", "skips.csv")
	l, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	l.Add("below_min_reviews", 0, "55", "")
	l.Add("bad_date", 9, "90", "cannot parse")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "reason,line,product_id,detail\n" +
		"below_min_reviews,0,55,\n" +
		"bad_date,9,90,cannot parse\n"
	if string(data) != want {
		t.Fatalf("audit file:\n%s\nwant:\n%s", data, want)
	}
}

func TestLog_ReasonsIsACopy(t *testing.T) {
	t.Parallel()

	l, _ := New("")
	l.Count("guard")
	got := l.Reasons()
	got["guard"] = 99
	if l.Reasons()["guard"] != 1 {
		t.Fatal("Reasons exposed internal map")
	}
}
