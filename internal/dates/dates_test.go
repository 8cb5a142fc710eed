package dates

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		extra   string
		want    string // canonical form of the expected day; "" means error
		wantErr bool
	}{
		{name: "canonical", in: "2024-03-07", want: "2024-03-07"},
		{name: "dotted_unpadded", in: "2024.3.7", want: "2024-03-07"},
		{name: "dotted_padded", in: "2024.03.07", want: "2024-03-07"},
		{name: "extra_layout", in: "07/03/2024", extra: "02/01/2006", want: "2024-03-07"},
		{name: "surrounding_space", in: "  2024-03-07 ", want: "2024-03-07"},
		{name: "empty", in: "", wantErr: true},
		{name: "garbage", in: "yesterday", wantErr: true},
		{name: "month_overflow", in: "2024-13-01", wantErr: true},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(c.in, c.extra)
			if c.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", c.in, got)
				}
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Fatalf("Parse(%q) error = %T, want *ParseError", c.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", c.in, err)
			}
			if got.Format(Canonical) != c.want {
				t.Fatalf("Parse(%q) = %s, want %s", c.in, got.Format(Canonical), c.want)
			}
			// Always UTC midnight, regardless of host timezone.
			if got.Hour() != 0 || got.Minute() != 0 || got.Location() != time.UTC {
				t.Fatalf("Parse(%q) not at UTC midnight: %v", c.in, got)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	got, err := Normalize("2024.3.7", "")
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if got != "2024-03-07" {
		t.Fatalf("Normalize = %q, want 2024-03-07", got)
	}
}

func TestUnix_UTCMidnight(t *testing.T) {
	t.Parallel()

	got, err := Unix("1970-01-02")
	if err != nil {
		t.Fatalf("Unix error: %v", err)
	}
	if got != 86400 {
		t.Fatalf("Unix(1970-01-02) = %d, want 86400", got)
	}

	// Both input forms of the same day map to the same epoch value.
	a, _ := Unix("2024-03-07")
	b, _ := Unix("2024.3.7")
	if a != b {
		t.Fatalf("epoch mismatch between forms: %d vs %d", a, b)
	}
}

func TestIsCanonical(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{"2024-03-07", true},
		{"2024.3.7", false},
		{"2024-3-7", false}, // round-trip check rejects unpadded
		{"", false},
		{"2024-13-01", false},
	}
	for _, c := range cases {
		if got := IsCanonical(c.in); got != c.want {
			t.Fatalf("IsCanonical(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestLexicographicOrderIsChronological(t *testing.T) {
	t.Parallel()

	days := []string{"2023-12-31", "2024-01-01", "2024-01-02", "2024-02-01"}
	for i := 1; i < len(days); i++ {
		if !(days[i-1] < days[i]) {
			t.Fatalf("canonical dates out of order: %s >= %s", days[i-1], days[i])
		}
	}
}
