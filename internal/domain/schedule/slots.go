package schedule

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSlotMinutes is the enumeration unit used when none is configured.
const DefaultSlotMinutes = 30

var ErrInvalidUnit = errors.New("slot unit must be positive")

type Slot struct {
	Time         Clock           `json:"time"`
	DurationMins int             `json:"duration_mins"`
	Fee          decimal.Decimal `json:"fee"`
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Time, Duration: s.DurationMins}
}

// AvailableSlots expands the entries that apply to date into unit-sized
// slots and removes those overlapping any busy interval. Windows are
// enumerated independently, so overlapping windows yield duplicate slots.
// The result is ordered by start time.
func AvailableSlots(entries []AvailabilityEntry, date time.Time, unit int, busy []Interval, fee decimal.Decimal) ([]Slot, error) {
	if unit <= 0 {
		return nil, ErrInvalidUnit
	}
	day := WeekdayOf(date)

	var slots []Slot
	for _, e := range entries {
		if !e.Bookable(day) {
			continue
		}
		start, end, err := e.Window()
		if err != nil {
			return nil, err
		}
		for t := start; t.Add(unit) <= end; t = t.Add(unit) {
			candidate := Interval{Start: t, Duration: unit}
			if candidate.OverlapsAny(busy) {
				continue
			}
			slots = append(slots, Slot{Time: t, DurationMins: unit, Fee: fee})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Time < slots[j].Time
	})
	return slots, nil
}

// Bookable reports whether an appointment of duration minutes starting at
// start lines up with a candidate slot of some window on day and ends
// inside that window.
func Bookable(entries []AvailabilityEntry, day Weekday, unit int, start Clock, duration int) (bool, error) {
	if unit <= 0 {
		return false, ErrInvalidUnit
	}
	for _, e := range entries {
		if !e.Bookable(day) {
			continue
		}
		ws, we, err := e.Window()
		if err != nil {
			return false, err
		}
		if start < ws || start.Add(duration) > we {
			continue
		}
		if int(start-ws)%unit == 0 {
			return true, nil
		}
	}
	return false, nil
}

// HasWindow reports whether any entry generates slots on day.
func HasWindow(entries []AvailabilityEntry, day Weekday) bool {
	for _, e := range entries {
		if e.Bookable(day) {
			return true
		}
	}
	return false
}
