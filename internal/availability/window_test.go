package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveWindow(t *testing.T) {
	loc := time.UTC
	now := at(loc, 10, 12, 0)
	past := at(loc, 5, 9, 0)
	future := at(loc, 12, 9, 0)
	futureEnd := at(loc, 12, 17, 0)
	beforeFuture := at(loc, 11, 9, 0)

	tests := []struct {
		name      string
		start     *time.Time
		end       *time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"unresolved defaults to a week from now", nil, nil, now, now.Add(DefaultSearchSpan)},
		{"past start clamped to now", &past, &futureEnd, now, futureEnd},
		{"explicit range kept", &future, &futureEnd, future, futureEnd},
		{"missing end repaired", &future, nil, future, future.Add(DefaultSearchSpan)},
		{"inverted end repaired", &future, &beforeFuture, future, future.Add(DefaultSearchSpan)},
		{"equal end repaired", &future, &future, future, future.Add(DefaultSearchSpan)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := ResolveWindow(now, tt.start, tt.end, loc, 0)
			assert.True(t, tt.wantStart.Equal(start), "start %s != %s", start, tt.wantStart)
			assert.True(t, tt.wantEnd.Equal(end), "end %s != %s", end, tt.wantEnd)
		})
	}
}

func TestResolveWindowConvertsLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	start, end := ResolveWindow(now, nil, nil, ny, 24*time.Hour)

	assert.Equal(t, ny, start.Location())
	assert.Equal(t, 10, start.Hour())
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestDescribe(t *testing.T) {
	loc := time.UTC
	slots := Describe([]Interval{{Start: at(loc, 3, 10, 0), End: at(loc, 3, 10, 30)}}, loc)

	assert.Len(t, slots, 1)
	assert.Equal(t, "slot_2026-03-03T10:00:00Z", slots[0].ID)
	assert.Equal(t, "Tue Mar 03, 10:00 AM", slots[0].Display)
	assert.Equal(t, at(loc, 3, 10, 30), slots[0].End)
}
