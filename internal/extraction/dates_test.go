package extraction

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow is a Wednesday.
var fixedNow = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	x := New(Config{Timezone: "UTC", MaxTitleLen: 60})
	x.now = func() time.Time { return fixedNow }
	return x
}

func TestExtractDates_Tomorrow(t *testing.T) {
	x := newTestExtractor(t)
	ents := x.Extract("Buy milk tomorrow")
	require.Len(t, ents.Dates, 1)

	d := ents.Dates[0]
	assert.Equal(t, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), d.Resolved)
	assert.Equal(t, "tomorrow", d.Text)
	assert.True(t, d.IsRelative)
}

func TestExtractDates_ClockTime(t *testing.T) {
	x := newTestExtractor(t)
	ents := x.Extract("Call Sarah at 3pm")
	require.Len(t, ents.Dates, 1)

	d := ents.Dates[0]
	assert.Equal(t, 15, d.Resolved.Hour())
	assert.Equal(t, 0, d.Resolved.Minute())
	// 15:00 is still ahead of the 10:30 fixed clock, so it stays today.
	assert.Equal(t, fixedNow.Day(), d.Resolved.Day())
}

func TestExtractDates_PastClockTimeRollsToTomorrow(t *testing.T) {
	x := newTestExtractor(t)
	ents := x.Extract("call the bank at 9am")
	require.Len(t, ents.Dates, 1)
	assert.Equal(t, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), ents.Dates[0].Resolved)
}

func TestExtractDates_DayPlusClock(t *testing.T) {
	x := newTestExtractor(t)
	ents := x.Extract("dentist tomorrow at 14:30")
	require.Len(t, ents.Dates, 1)
	assert.Equal(t, time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC), ents.Dates[0].Resolved)
}

func TestExtractDates_WeekdayAlwaysFuture(t *testing.T) {
	x := newTestExtractor(t)
	days := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	for _, day := range days {
		t.Run(day, func(t *testing.T) {
			ents := x.Extract("meeting on " + day)
			require.Len(t, ents.Dates, 1)
			resolved := ents.Dates[0].Resolved
			assert.True(t, resolved.After(fixedNow), "weekday must resolve strictly in the future")
			assert.True(t, strings.EqualFold(day, resolved.Weekday().String()),
				"resolved weekday must match the named day")
		})
	}
}

func TestExtractDates_SameWeekdayRollsAWeek(t *testing.T) {
	x := newTestExtractor(t)
	// fixedNow is a Wednesday.
	ents := x.Extract("review on wednesday")
	require.Len(t, ents.Dates, 1)
	assert.Equal(t, fixedNow.AddDate(0, 0, 7).Day(), ents.Dates[0].Resolved.Day())
}

func TestExtractDates_RelativeOffsets(t *testing.T) {
	x := newTestExtractor(t)
	tests := []struct {
		text string
		want time.Time
	}{
		{"ping me in 2 hours", fixedNow.Add(2 * time.Hour)},
		{"follow up in 3 days", fixedNow.AddDate(0, 0, 3)},
		{"check back in 1 week", fixedNow.AddDate(0, 0, 7)},
		{"remind in 45 minutes", fixedNow.Add(45 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ents := x.Extract(tt.text)
			require.Len(t, ents.Dates, 1)
			assert.Equal(t, tt.want, ents.Dates[0].Resolved)
		})
	}
}

func TestExtractDates_ClockBeatsOffset(t *testing.T) {
	x := newTestExtractor(t)
	ents := x.Extract("call at 5pm in 3 days")
	require.Len(t, ents.Dates, 1)
	assert.Equal(t, 17, ents.Dates[0].Resolved.Hour())
	assert.Equal(t, fixedNow.Day(), ents.Dates[0].Resolved.Day())
}

func TestExtractDates_Tonight(t *testing.T) {
	x := newTestExtractor(t)
	ents := x.Extract("take out the trash tonight")
	require.Len(t, ents.Dates, 1)
	assert.Equal(t, tonightHour, ents.Dates[0].Resolved.Hour())
	assert.Equal(t, fixedNow.Day(), ents.Dates[0].Resolved.Day())
}

func TestExtractDates_NoMatch(t *testing.T) {
	x := newTestExtractor(t)
	ents := x.Extract("just a plain thought")
	require.NotNil(t, ents.Dates)
	assert.Empty(t, ents.Dates)
}
