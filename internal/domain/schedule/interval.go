package schedule

// Overlaps reports whether the half-open intervals [startA, startA+durationA)
// and [startB, startB+durationB) share at least one minute.
func Overlaps(startA, durationA, startB, durationB int) bool {
	return startA < startB+durationB && startB < startA+durationA
}

// Interval is a block of minutes within a single day.
type Interval struct {
	Start    Clock
	Duration int
}

func (i Interval) End() Clock {
	return i.Start.Add(i.Duration)
}

func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(int(i.Start), i.Duration, int(o.Start), o.Duration)
}

func (i Interval) OverlapsAny(busy []Interval) bool {
	for _, b := range busy {
		if i.Overlaps(b) {
			return true
		}
	}
	return false
}
