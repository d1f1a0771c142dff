package models

import (
	"errors"
	"testing"
	"time"
)

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDay(s)
	if err != nil {
		t.Fatalf("ParseDay(%q): %v", s, err)
	}
	return d
}

func TestNewDateRange(t *testing.T) {
	start := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)
	end := time.Date(2024, 6, 3, 1, 0, 0, 0, time.UTC)

	r, err := NewDateRange(start, end)
	if err != nil {
		t.Fatalf("NewDateRange: %v", err)
	}
	if !r.Start.Equal(mustDay(t, "2024-06-01")) || !r.End.Equal(mustDay(t, "2024-06-03")) {
		t.Fatalf("range not truncated to days: %s", r)
	}
	if r.Days() != 3 {
		t.Fatalf("Days() = %d, want 3", r.Days())
	}

	if _, err := NewDateRange(end, start); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := NewDateRange(time.Time{}, end); err == nil {
		t.Fatal("expected error for zero start")
	}
}

func TestDateRange_Overlaps(t *testing.T) {
	r := DateRange{Start: mustDay(t, "2024-06-01"), End: mustDay(t, "2024-06-03")}

	tests := []struct {
		from, to string
		want     bool
	}{
		{"2024-05-25", "2024-05-31", false},
		{"2024-05-25", "2024-06-01", true}, // границы включительно
		{"2024-06-02", "2024-06-02", true},
		{"2024-06-03", "2024-06-10", true},
		{"2024-06-04", "2024-06-10", false},
		{"2024-05-01", "2024-07-01", true},
	}
	for _, tt := range tests {
		o := DateRange{Start: mustDay(t, tt.from), End: mustDay(t, tt.to)}
		if got := r.Overlaps(o); got != tt.want {
			t.Errorf("%s overlaps %s = %v, want %v", r, o, got, tt.want)
		}
		if got := o.Overlaps(r); got != tt.want {
			t.Errorf("%s overlaps %s = %v, want %v (symmetry)", o, r, got, tt.want)
		}
	}
}

func TestDateRange_EachAndIndex(t *testing.T) {
	// переход через конец месяца
	r := DateRange{Start: mustDay(t, "2024-02-28"), End: mustDay(t, "2024-03-01")}

	var got []string
	r.Each(func(d time.Time) {
		got = append(got, d.Format(DateLayout))
		if r.Index(d) != len(got)-1 {
			t.Errorf("Index(%s) = %d, want %d", d.Format(DateLayout), r.Index(d), len(got)-1)
		}
	})

	want := []string{"2024-02-28", "2024-02-29", "2024-03-01"}
	if len(got) != len(want) {
		t.Fatalf("Each visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Each visited %v, want %v", got, want)
		}
	}

	if !r.Contains(mustDay(t, "2024-02-29")) || r.Contains(mustDay(t, "2024-03-02")) {
		t.Fatal("Contains mismatch")
	}
}

func TestParseDay_Invalid(t *testing.T) {
	if _, err := ParseDay("2024-13-01"); err == nil {
		t.Fatal("expected error")
	}
}
