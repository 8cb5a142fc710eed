package file

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeSnap(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("query_date\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Deliberately created out of order; discovery must sort by name.
	writeSnap(t, dir, "listing_2024-01-03.csv")
	writeSnap(t, dir, "listing_2024-01-01.csv")
	writeSnap(t, dir, "listing_2024-01-02.csv")
	writeSnap(t, dir, "other_2024-01-01.csv") // not matched by glob

	snaps, err := Discover(dir, "listing_*.csv", "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	gotDates := make([]string, len(snaps))
	for i, s := range snaps {
		gotDates[i] = s.Date
	}
	want := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
	if !reflect.DeepEqual(gotDates, want) {
		t.Fatalf("dates = %v, want %v", gotDates, want)
	}

	if got := Boundary(snaps); got != "2024-01-01" {
		t.Fatalf("Boundary = %q, want 2024-01-01", got)
	}
}

func TestDiscover_DottedFilenames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSnap(t, dir, "listing_2024.1.2.csv")

	snaps, err := Discover(dir, "listing_*.csv", "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Date != "2024-01-02" {
		t.Fatalf("snaps = %v, want one entry dated 2024-01-02", snaps)
	}
}

func TestDiscover_ExplicitLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSnap(t, dir, "20240102.csv")

	snaps, err := Discover(dir, "*.csv", "20060102")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Date != "2024-01-02" {
		t.Fatalf("snaps = %v, want one entry dated 2024-01-02", snaps)
	}
}

func TestDiscover_Empty(t *testing.T) {
	t.Parallel()

	if _, err := Discover(t.TempDir(), "listing_*.csv", ""); err == nil {
		t.Fatal("expected error for empty match set")
	}
}

func TestDiscover_UndatedFilename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeSnap(t, dir, "listing_latest.csv")

	if _, err := Discover(dir, "listing_*.csv", ""); err == nil {
		t.Fatal("expected error for filename without a date")
	}
}
