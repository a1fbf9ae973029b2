package simplefn

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
	"02/01/2006 15:04",
}

var nowOffset = regexp.MustCompile(`^(\d+)(minutes|minute|mins|min|hours|hour|hrs|hr|days|day)`)

// ParseWhen turns an event time such as "2025-12-25 09:00", "tomorrow at
// 7pm", "in 2 hours" or "now+3d" into an absolute time in now's location.
func ParseWhen(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	loc := now.Location()

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}

	lower := strings.ToLower(s)
	atNine := func(t time.Time) time.Time { return clock(t, 9, 0) }

	switch {
	case strings.Contains(lower, "today"):
		if !strings.Contains(lower, "at") {
			return atNine(now), true
		}
		h, m, ok := parseTimeOfDay(afterLastAt(lower), true, now)
		if !ok {
			return time.Time{}, false
		}
		return clock(now, h, m), true

	case strings.Contains(lower, "tomorrow"):
		day := now.AddDate(0, 0, 1)
		if !strings.Contains(lower, "at") {
			return atNine(day), true
		}
		h, m, ok := parseTimeOfDay(afterLastAt(lower), false, now)
		if !ok {
			return time.Time{}, false
		}
		return clock(day, h, m), true

	case strings.Contains(lower, "next week"):
		day := now.AddDate(0, 0, 7)
		if strings.Contains(lower, "at") {
			if h, m, ok := parseTimeOfDay(afterLastAt(lower), false, now); ok {
				return clock(day, h, m), true
			}
		}
		return atNine(day), true
	}

	if t, ok := parseIn(lower, now); ok {
		return t, true
	}

	if strings.Contains(lower, "now") && strings.Contains(lower, "+") {
		compact := strings.ReplaceAll(lower, " ", "")
		if _, after, found := strings.Cut(compact, "now+"); found {
			if m := nowOffset.FindStringSubmatch(after); m != nil {
				n, _ := strconv.Atoi(m[1])
				return truncateSeconds(now.Add(unitDuration(m[2], n))), true
			}
		}
	}

	return time.Time{}, false
}

// parseIn handles "in N minutes|hours|days". Days land at 9:00.
func parseIn(lower string, now time.Time) (time.Time, bool) {
	fields := strings.Fields(lower)
	for i, f := range fields {
		if f != "in" || i+2 >= len(fields) {
			continue
		}
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return time.Time{}, false
		}
		unit := fields[i+2]
		switch {
		case strings.Contains(unit, "hour"):
			return truncateSeconds(now.Add(time.Duration(n) * time.Hour)), true
		case strings.Contains(unit, "min"):
			return truncateSeconds(now.Add(time.Duration(n) * time.Minute)), true
		case strings.Contains(unit, "day"):
			return clock(now.AddDate(0, 0, n), 9, 0), true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

func unitDuration(unit string, n int) time.Duration {
	switch {
	case strings.HasPrefix(unit, "day"):
		return time.Duration(n) * 24 * time.Hour
	case strings.HasPrefix(unit, "h"):
		return time.Duration(n) * time.Hour
	default:
		return time.Duration(n) * time.Minute
	}
}

// parseTimeOfDay reads "19:00", "7:30 pm", "7pm", "7 pm" or "8". With smart
// set, an ambiguous morning hour that already passed today becomes the
// evening one.
func parseTimeOfDay(s string, smart bool, now time.Time) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "hours"))
	hasMeridiem := strings.Contains(s, "am") || strings.Contains(s, "pm")

	pm := func(h, m int) (int, int, bool) {
		if smart && !hasMeridiem && h < 12 && !clock(now, h, m).After(now) {
			return h + 12, m, true
		}
		return h, m, true
	}

	if t, err := time.Parse("15:04", s); err == nil {
		if t.Hour() > 12 {
			return t.Hour(), t.Minute(), true
		}
		return pm(t.Hour(), t.Minute())
	}

	upper := strings.ToUpper(s)
	for _, layout := range []string{"3:04 PM", "3PM", "3 PM"} {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Hour(), t.Minute(), true
		}
	}

	if h, err := strconv.Atoi(s); err == nil && h >= 0 && h <= 23 {
		if h > 12 {
			return h, 0, true
		}
		return pm(h, 0)
	}
	return 0, 0, false
}

func afterLastAt(s string) string {
	return s[strings.LastIndex(s, "at")+2:]
}

func clock(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}

func truncateSeconds(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}
