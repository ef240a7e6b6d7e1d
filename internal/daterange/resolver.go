// Package daterange turns a caller's spoken date preference ("tomorrow
// afternoon", "next week", "2026-03-05") into a search window.
package daterange

import (
	"regexp"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

// Resolver maps free text to a window. ok is false when the text names no
// usable range, in which case the caller picks its own default.
type Resolver interface {
	Resolve(text string, loc *time.Location, now time.Time) (start, end time.Time, ok bool)
}

// Simple resolves single days with go-dateparser, preferring future dates,
// and widens or narrows the day with a few scheduling phrases:
//
//	this week, next week, weekend      multi-day windows
//	next monday..sunday                that day of next week
//	morning, afternoon, evening        narrow the day
//
// "next available", "asap", "earliest" and empty text are unresolved.
type Simple struct{}

var _ Resolver = Simple{}

type dayPart struct {
	word       string
	start, end int
}

// Part-of-day windows in local time.
var dayParts = []dayPart{
	{"morning", 8, 12},
	{"afternoon", 12, 17},
	{"evening", 17, 20},
}

var (
	weekdayRe     = regexp.MustCompile(`\b(next\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	spaceRe       = regexp.MustCompile(`\s+`)
	unresolvedFor = []string{"next available", "asap", "as soon as possible", "earliest", "anytime", "any time"}
	fillers       = map[string]bool{"": true, "this": true, "the": true, "in the": true, "in": true}
)

var aliases = strings.NewReplacer(
	"day after tomorrow", "in 2 days",
	"tonight", "today evening",
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// Resolve implements Resolver. Windows are half-open and expressed in loc.
func (Simple) Resolve(text string, loc *time.Location, now time.Time) (time.Time, time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return time.Time{}, time.Time{}, false
	}
	for _, phrase := range unresolvedFor {
		if strings.Contains(t, phrase) {
			return time.Time{}, time.Time{}, false
		}
	}

	today := midnight(now)
	if start, end, ok := weekRange(t, today, now); ok {
		return start, end, true
	}

	t = aliases.Replace(t)
	rest, part := splitDayPart(t)

	var day time.Time
	m := weekdayRe.FindStringSubmatch(rest)
	switch {
	case m != nil && m[1] != "":
		// "next friday" is the friday of next week.
		offset := (int(weekdays[m[2]]) + 6) % 7
		day = startOfWeek(today).AddDate(0, 0, 7+offset)
	case fillers[rest]:
		if part == nil {
			return time.Time{}, time.Time{}, false
		}
		// A bare part of day means today, or tomorrow once it has passed.
		day = today
		if !now.Before(atHour(today, part.end)) {
			day = today.AddDate(0, 0, 1)
		}
	default:
		parsed, ok := parseDay(rest, loc, now)
		if !ok {
			return time.Time{}, time.Time{}, false
		}
		day = parsed
		// A weekday name never means today.
		if m != nil && day.Equal(today) {
			day = day.AddDate(0, 0, 7)
		}
	}

	start, end := day, day.AddDate(0, 0, 1)
	if part != nil {
		from, to := atHour(day, part.start), atHour(day, part.end)
		if start.After(from) {
			from = start
		}
		return from, to, true
	}
	return start, end, true
}

// parseDay returns the local midnight of the date text names.
func parseDay(text string, loc *time.Location, now time.Time) (time.Time, bool) {
	cfg := &dps.Configuration{
		Languages:           []string{"en"},
		CurrentTime:         now,
		DefaultTimezone:     loc,
		PreferredDateSource: dps.Future,
	}
	dt, err := dps.Parse(cfg, text)
	if err != nil || dt.Time.IsZero() {
		return time.Time{}, false
	}
	return midnight(dt.Time.In(loc)), true
}

// splitDayPart removes the first part-of-day word from t.
func splitDayPart(t string) (string, *dayPart) {
	for i := range dayParts {
		p := &dayParts[i]
		if strings.Contains(t, p.word) {
			rest := strings.Replace(t, p.word, " ", 1)
			return strings.TrimSpace(spaceRe.ReplaceAllString(rest, " ")), p
		}
	}
	return t, nil
}

func weekRange(t string, today, now time.Time) (time.Time, time.Time, bool) {
	switch {
	case strings.Contains(t, "weekend"):
		sat := today
		for sat.Weekday() != time.Saturday {
			sat = sat.AddDate(0, 0, 1)
		}
		return sat, sat.AddDate(0, 0, 2), true
	case strings.Contains(t, "next week"):
		monday := startOfWeek(today).AddDate(0, 0, 7)
		return monday, monday.AddDate(0, 0, 7), true
	case strings.Contains(t, "this week"):
		return now, startOfWeek(today).AddDate(0, 0, 7), true
	}
	return time.Time{}, time.Time{}, false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func atHour(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
