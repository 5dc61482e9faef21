package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 2024-01-01 is a Monday.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func clock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func times(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Time.String())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func entry(day Weekday, start, end string, available bool) AvailabilityEntry {
	return AvailabilityEntry{ID: uuid.New(), Day: day, StartTime: start, EndTime: end, IsAvailable: available}
}

func TestAvailableSlots_MondayMorning(t *testing.T) {
	fee := decimal.NewFromInt(500)
	entries := []AvailabilityEntry{entry(Monday, "09:00", "11:00", true)}

	slots, err := AvailableSlots(entries, monday, 30, nil, fee)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"09:00", "09:30", "10:00", "10:30"}
	if got := times(slots); !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for _, s := range slots {
		if !s.Fee.Equal(fee) {
			t.Fatalf("expected fee 500 on %s, got %s", s.Time, s.Fee)
		}
		if s.DurationMins != 30 {
			t.Fatalf("expected 30 minute unit, got %d", s.DurationMins)
		}
	}

	busy := []Interval{{Start: clock(t, "09:30"), Duration: 30}}
	slots, err = AvailableSlots(entries, monday, 30, busy, fee)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = []string{"09:00", "10:00", "10:30"}
	if got := times(slots); !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAvailableSlots_Filtering(t *testing.T) {
	tests := []struct {
		name    string
		entries []AvailabilityEntry
		busy    []Interval
		unit    int
		want    []string
	}{
		{
			name:    "unavailable entry is inert",
			entries: []AvailabilityEntry{entry(Monday, "09:00", "11:00", false)},
			unit:    30,
			want:    []string{},
		},
		{
			name:    "other weekday ignored",
			entries: []AvailabilityEntry{entry(Tuesday, "09:00", "11:00", true)},
			unit:    30,
			want:    []string{},
		},
		{
			name:    "partial final unit dropped",
			entries: []AvailabilityEntry{entry(Monday, "09:00", "10:15", true)},
			unit:    30,
			want:    []string{"09:00", "09:30"},
		},
		{
			name:    "long appointment blocks several slots",
			entries: []AvailabilityEntry{entry(Monday, "09:00", "11:00", true)},
			busy:    []Interval{{Start: 555, Duration: 60}}, // 09:15-10:15
			unit:    30,
			want:    []string{"10:30"},
		},
		{
			name: "windows merged in time order",
			entries: []AvailabilityEntry{
				entry(Monday, "14:00", "15:00", true),
				entry(Monday, "08:00", "09:00", true),
			},
			unit: 30,
			want: []string{"08:00", "08:30", "14:00", "14:30"},
		},
		{
			name: "overlapping windows keep duplicates",
			entries: []AvailabilityEntry{
				entry(Monday, "09:00", "10:00", true),
				entry(Monday, "09:30", "10:30", true),
			},
			unit: 30,
			want: []string{"09:00", "09:30", "09:30", "10:00"},
		},
		{
			name:    "configurable unit",
			entries: []AvailabilityEntry{entry(Monday, "09:00", "10:00", true)},
			unit:    15,
			want:    []string{"09:00", "09:15", "09:30", "09:45"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots, err := AvailableSlots(tt.entries, monday, tt.unit, tt.busy, decimal.Zero)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := times(slots); !equalStrings(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAvailableSlots_BadInput(t *testing.T) {
	if _, err := AvailableSlots(nil, monday, 0, nil, decimal.Zero); err == nil {
		t.Fatal("expected error for zero unit")
	}
	entries := []AvailabilityEntry{entry(Monday, "9am", "11:00", true)}
	if _, err := AvailableSlots(entries, monday, 30, nil, decimal.Zero); err == nil {
		t.Fatal("expected error for malformed window")
	}
}

func TestBookable(t *testing.T) {
	entries := []AvailabilityEntry{entry(Monday, "09:00", "11:00", true)}

	tests := []struct {
		start    string
		duration int
		want     bool
	}{
		{"09:00", 30, true},
		{"09:30", 60, true},
		{"10:30", 30, true},
		{"10:30", 60, false}, // runs past the window
		{"09:10", 30, false}, // not on a slot boundary
		{"08:30", 30, false},
		{"11:00", 30, false},
	}
	for _, tt := range tests {
		got, err := Bookable(entries, Monday, 30, clock(t, tt.start), tt.duration)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("Bookable(%s, %d) = %v, want %v", tt.start, tt.duration, got, tt.want)
		}
	}

	if ok, _ := Bookable(entries, Tuesday, 30, clock(t, "09:00"), 30); ok {
		t.Fatal("expected no booking on a day without windows")
	}
}

func TestHasWindow(t *testing.T) {
	entries := []AvailabilityEntry{
		entry(Monday, "09:00", "11:00", false),
		entry(Friday, "09:00", "11:00", true),
	}
	if HasWindow(entries, Monday) {
		t.Fatal("unavailable entry must not count as a window")
	}
	if !HasWindow(entries, Friday) {
		t.Fatal("expected Friday window")
	}
}
