package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	hoursAgoPattern   = regexp.MustCompile(`(\d+)\s*小时前`)
	minutesAgoPattern = regexp.MustCompile(`(\d+)\s*分钟前`)
	monthDayPattern   = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`)
)

// ParsePublishTime interprets the relative publish tag shown on search cards.
// Recognized shapes, first match wins: "<N>小时前", "<N>分钟前" and "MM-DD"
// in the year of now. Anything else fails.
func ParsePublishTime(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if m := hoursAgoPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		return now.Add(-time.Duration(n) * time.Hour), true
	}
	if m := minutesAgoPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		return now.Add(-time.Duration(n) * time.Minute), true
	}
	if m := monthDayPattern.FindStringSubmatch(text); m != nil {
		month, errM := strconv.Atoi(m[1])
		day, errD := strconv.Atoi(m[2])
		if errM != nil || errD != nil || month < 1 || month > 12 || day < 1 {
			return time.Time{}, false
		}
		t := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
		if t.Month() != time.Month(month) || t.Day() != day {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// epochMillisThreshold separates second and millisecond epoch values.
const epochMillisThreshold = 100_000_000_000

// ParseEpoch converts an epoch timestamp in seconds into an instant in loc.
// Values large enough to be milliseconds are accepted as such.
func ParseEpoch(v any, loc *time.Location) (time.Time, bool) {
	n, ok := Int64(v)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if n >= epochMillisThreshold {
		return time.UnixMilli(n).In(loc), true
	}
	return time.Unix(n, 0).In(loc), true
}
