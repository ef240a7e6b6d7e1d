package availability

import "time"

// DefaultSearchSpan is used when a request has no usable end.
const DefaultSearchSpan = 7 * 24 * time.Hour

// ResolveWindow turns an optional requested range into a concrete search
// window in loc: a missing start becomes now, a past start is clamped up to
// now, and a missing or non-positive range becomes start+span.
func ResolveWindow(now time.Time, start, end *time.Time, loc *time.Location, span time.Duration) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	if span <= 0 {
		span = DefaultSearchSpan
	}
	now = now.In(loc)

	from := now
	if start != nil && !start.IsZero() {
		from = start.In(loc)
	}
	if from.Before(now) {
		from = now
	}

	var to time.Time
	if end != nil && !end.IsZero() {
		to = end.In(loc)
	}
	if to.IsZero() || !to.After(from) {
		to = from.Add(span)
	}
	return from, to
}

// Slot is a candidate window presented to a caller.
type Slot struct {
	ID      string    `json:"slot_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Display string    `json:"display"`
}

// SlotID derives the stable identifier for a slot starting at start.
func SlotID(start time.Time) string {
	return "slot_" + start.Format(time.RFC3339)
}

// Display renders a slot start for voice read-back, e.g. "Tue Mar 03, 10:00 AM".
func Display(start time.Time) string {
	return start.Format("Mon Jan 02, 03:04 PM")
}

// Describe converts calculator output into presentable slots in loc.
func Describe(intervals []Interval, loc *time.Location) []Slot {
	if loc == nil {
		loc = time.UTC
	}
	slots := make([]Slot, 0, len(intervals))
	for _, iv := range intervals {
		start := iv.Start.In(loc)
		slots = append(slots, Slot{
			ID:      SlotID(start),
			Start:   start,
			End:     iv.End.In(loc),
			Display: Display(start),
		})
	}
	return slots
}
