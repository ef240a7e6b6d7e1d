// Package availability computes free appointment slots from calendar busy intervals.
package availability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSlotLength = 30 * time.Minute
	DefaultLimit      = 3
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether two intervals share any instant.
// Touching intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	latestStart := a.Start
	if b.Start.After(latestStart) {
		latestStart = b.Start
	}
	earliestEnd := a.End
	if b.End.Before(earliestEnd) {
		earliestEnd = b.End
	}
	return latestStart.Before(earliestEnd)
}

// TimeOfDay is a wall clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "09:00" style 24-hour values.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("availability: invalid time of day %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return TimeOfDay{}, fmt.Errorf("availability: invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return TimeOfDay{}, fmt.Errorf("availability: invalid minute in %q", raw)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns the instant of t on the calendar day of date, in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, loc)
}

// WorkHours bounds the daily search window in local time.
type WorkHours struct {
	Start TimeOfDay
	End   TimeOfDay
}

// DefaultWorkHours is 09:00-17:00.
func DefaultWorkHours() WorkHours {
	return WorkHours{Start: TimeOfDay{Hour: 9}, End: TimeOfDay{Hour: 17}}
}

// ParseWorkHours builds WorkHours from two "HH:MM" values.
func ParseWorkHours(start, end string) (WorkHours, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return WorkHours{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return WorkHours{}, err
	}
	wh := WorkHours{Start: s, End: e}
	if !wh.valid() {
		return WorkHours{}, fmt.Errorf("availability: work hours %s-%s are empty", s, e)
	}
	return wh, nil
}

func (w WorkHours) valid() bool {
	return w.End.minutes() > w.Start.minutes()
}

// Options tunes a single FindSlots call. Zero fields fall back to the defaults.
type Options struct {
	SlotLength time.Duration
	WorkHours  WorkHours
	Limit      int
	Location   *time.Location
}

// DefaultOptions returns 30 minute slots between 09:00 and 17:00 UTC, three at most.
func DefaultOptions() Options {
	return Options{
		SlotLength: DefaultSlotLength,
		WorkHours:  DefaultWorkHours(),
		Limit:      DefaultLimit,
		Location:   time.UTC,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SlotLength <= 0 {
		o.SlotLength = def.SlotLength
	}
	if !o.WorkHours.valid() {
		o.WorkHours = def.WorkHours
	}
	if o.Limit <= 0 {
		o.Limit = def.Limit
	}
	if o.Location == nil {
		o.Location = def.Location
	}
	return o
}

// FindSlots walks each calendar day between start and end and returns up to
// opts.Limit free slots in chronological order. A slot is free when it
// overlaps none of the busy intervals; it never leaves [start, end] nor the
// work hours of its day.
func FindSlots(start, end time.Time, busy []Interval, opts Options) []Interval {
	opts = opts.withDefaults()
	loc := opts.Location
	if !end.After(start) {
		return nil
	}

	sortedBusy := make([]Interval, len(busy))
	copy(sortedBusy, busy)
	sort.Slice(sortedBusy, func(i, j int) bool { return sortedBusy[i].Start.Before(sortedBusy[j].Start) })

	slots := make([]Interval, 0, opts.Limit)
	current := start.In(loc)
	for current.Before(end) {
		dayStart := opts.WorkHours.Start.On(current, loc)
		dayEnd := opts.WorkHours.End.On(current, loc)

		slotStart := current
		if dayStart.After(slotStart) {
			slotStart = dayStart
		}
		for {
			slotEnd := slotStart.Add(opts.SlotLength)
			if slotEnd.After(dayEnd) || slotEnd.After(end) {
				break
			}
			candidate := Interval{Start: slotStart, End: slotEnd}
			if !overlapsAny(candidate, sortedBusy) {
				slots = append(slots, candidate)
				if len(slots) >= opts.Limit {
					return slots
				}
			}
			slotStart = slotEnd
		}

		y, m, d := current.Date()
		current = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return slots
}

// overlapsAny expects busy sorted by start.
func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if !b.Start.Before(slot.End) {
			return false
		}
		if Overlaps(slot, b) {
			return true
		}
	}
	return false
}
