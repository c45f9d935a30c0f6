package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Temporal expression patterns, in precedence order: explicit clock time,
// named relative day, relative offset.
var (
	clock12Re = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})(?::([0-5]\d))?\s*(am|pm)\b`)
	clock24Re = regexp.MustCompile(`(?i)\b(?:at\s+)?([01]?\d|2[0-3]):([0-5]\d)\b`)
	dayRe     = regexp.MustCompile(`(?i)\b(?:(?:on|next)\s+)?(today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	offsetRe  = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(minute|hour|day|week)s?\b`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

const (
	defaultHour = 9  // day-only expressions resolve to 09:00 local
	tonightHour = 20 // "tonight" resolves to 20:00 local

	clockConfidence  = 90
	dayConfidence    = 85
	offsetConfidence = 80
)

// extractDates resolves temporal expressions in the text against the
// configured timezone. A day expression and a clock expression combine into
// one date; an offset is only used when neither is present.
func (x *Extractor) extractDates(text string) []Date {
	now := x.now().In(x.loc)
	spans := []string{}

	dayMatch := dayRe.FindStringSubmatch(text)
	hour, minute, clockSpan, hasClock := x.findClock(text)

	var base time.Time
	hasDay := false
	if dayMatch != nil {
		base, hasDay = resolveDay(now, strings.ToLower(dayMatch[1]))
		if hasDay {
			spans = append(spans, strings.TrimSpace(dayMatch[0]))
		}
	}

	switch {
	case hasClock && hasDay:
		spans = append(spans, clockSpan)
		resolved := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, x.loc)
		return []Date{x.newDate(resolved, spans, clockConfidence)}

	case hasClock:
		spans = append(spans, clockSpan)
		resolved := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, x.loc)
		if !resolved.After(now) {
			resolved = resolved.AddDate(0, 0, 1)
		}
		return []Date{x.newDate(resolved, spans, clockConfidence)}

	case hasDay:
		h := defaultHour
		if strings.EqualFold(dayMatch[1], "tonight") {
			h = tonightHour
		}
		resolved := time.Date(base.Year(), base.Month(), base.Day(), h, 0, 0, 0, x.loc)
		return []Date{x.newDate(resolved, spans, dayConfidence)}
	}

	if m := offsetRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			resolved := applyOffset(now, n, strings.ToLower(m[2]))
			return []Date{x.newDate(resolved, []string{strings.TrimSpace(m[0])}, offsetConfidence)}
		}
	}

	return []Date{}
}

// findClock locates an explicit clock time, preferring am/pm notation.
func (x *Extractor) findClock(text string) (hour, minute int, span string, ok bool) {
	if m := clock12Re.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if hour >= 1 && hour <= 12 {
			if m[2] != "" {
				minute, _ = strconv.Atoi(m[2])
			}
			meridiem := strings.ToLower(m[3])
			if meridiem == "pm" && hour < 12 {
				hour += 12
			}
			if meridiem == "am" && hour == 12 {
				hour = 0
			}
			return hour, minute, strings.TrimSpace(m[0]), true
		}
	}
	if m := clock24Re.FindStringSubmatch(text); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		return hour, minute, strings.TrimSpace(m[0]), true
	}
	return 0, 0, "", false
}

// resolveDay maps a named day to a calendar date. Weekdays always resolve
// to the next occurrence: a same-day match rolls a full week forward.
func resolveDay(now time.Time, name string) (time.Time, bool) {
	switch name {
	case "today", "tonight":
		return now, true
	case "tomorrow":
		return now.AddDate(0, 0, 1), true
	}
	target, ok := weekdays[name]
	if !ok {
		return time.Time{}, false
	}
	delta := (int(target) - int(now.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return now.AddDate(0, 0, delta), true
}

func applyOffset(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "minute":
		return now.Add(time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(time.Duration(n) * time.Hour)
	case "week":
		return now.AddDate(0, 0, n*7)
	default:
		return now.AddDate(0, 0, n)
	}
}

func (x *Extractor) newDate(resolved time.Time, spans []string, confidence int) Date {
	return Date{
		Resolved:   resolved,
		Text:       strings.Join(spans, " "),
		Timezone:   x.loc.String(),
		IsRelative: true,
		Confidence: confidence,
	}
}

// dateSpans returns every recognized date/time substring, used for title
// generation.
func (x *Extractor) dateSpans(text string) []string {
	spans := []string{}
	for _, m := range dayRe.FindAllString(text, -1) {
		spans = append(spans, strings.TrimSpace(m))
	}
	for _, m := range clock12Re.FindAllString(text, -1) {
		spans = append(spans, strings.TrimSpace(m))
	}
	for _, m := range clock24Re.FindAllString(text, -1) {
		spans = append(spans, strings.TrimSpace(m))
	}
	for _, m := range offsetRe.FindAllString(text, -1) {
		spans = append(spans, strings.TrimSpace(m))
	}
	return spans
}
