// Package format renders package health values for display. Nothing here feeds a rating decision.
package format

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"package-health/internal/model"
)

// NA is shown for any value that is absent or unusable.
const NA = "N/A"

const day = 24 * time.Hour

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 forms published by the registry and the source host.
// Layouts without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDownloads renders a raw download count with thousands separators and no suffix.
func FormatDownloads(n int64) string {
	if n == 0 {
		return NA
	}
	return humanize.Comma(n)
}

// FormatCount renders a count with K/M suffixes starting at 1,000.
// 999999 stays "1000.0K"; the M suffix only starts at exactly 1,000,000.
func FormatCount(n int64) string {
	switch {
	case n == 0:
		return NA
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatIntPtr is FormatCount for optional counts.
func FormatIntPtr(n *int) string {
	if n == nil {
		return NA
	}
	return FormatCount(int64(*n))
}

// FormatRelativeDate renders how long ago ts was, subtracting the raw instants.
func FormatRelativeDate(ts string, now time.Time) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return NA
	}
	days := int(math.Floor(float64(now.Sub(t)) / float64(day)))
	return relativeDays(days)
}

// FormatRelativeCalendarDate renders how long ago ts was in whole calendar days,
// with both instants moved to midnight in now's location first.
func FormatRelativeCalendarDate(ts string, now time.Time) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return NA
	}
	return relativeDays(CalendarDaysBetween(t, now))
}

// CalendarDaysBetween counts calendar days from t to now in now's location.
func CalendarDaysBetween(t, now time.Time) int {
	t = t.In(now.Location())
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / day)
}

func relativeDays(days int) string {
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "1 day ago"
	case days < 30:
		return fmt.Sprintf("%d days ago", days)
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		return fmt.Sprintf("%d years ago", days/365)
	}
}

// FormatIssuesCombined renders open and closed issue counts on one line.
func FormatIssuesCombined(open, closed int64) string {
	if open == 0 && closed == 0 {
		return NA
	}
	return fmt.Sprintf("%s open / %s closed", countOrZero(open), countOrZero(closed))
}

func countOrZero(n int64) string {
	if n == 0 {
		return "0"
	}
	return FormatCount(n)
}

var prInfoPattern = regexp.MustCompile(`created (.+?) before`)

// FormatCombinedPrInfo joins the merge date of the last pull request with how long it was open,
// e.g. "3 days ago (4 hours after creation)".
func FormatCombinedPrInfo(mergedAt, prInfo string, now time.Time) string {
	merged := FormatRelativeCalendarDate(mergedAt, now)
	if merged == NA {
		return NA
	}
	if m := prInfoPattern.FindStringSubmatch(prInfo); m != nil {
		return fmt.Sprintf("%s (%s after creation)", merged, m[1])
	}
	return merged
}

// FormatBundleSize renders a byte count in decimal units the way npmjs.com shows unpacked size.
func FormatBundleSize(bytes int64) string {
	const (
		kb = 1000
		mb = kb * 1000
		gb = mb * 1000
		tb = gb * 1000
	)
	switch {
	case bytes <= 0:
		return "0 B"
	case bytes < kb:
		return fmt.Sprintf("%d B", bytes)
	case bytes < mb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	case bytes < mb*10:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes < gb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes < tb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	default:
		return fmt.Sprintf("%.2f TB", float64(bytes)/tb)
	}
}

// FormatFlag renders an optional boolean as a check or cross mark.
func FormatFlag(b *bool) string {
	if b == nil {
		return NA
	}
	if *b {
		return "✓"
	}
	return "✗"
}

// FormatMergeDuration describes the time between opening and merging a pull request.
// Under an hour it counts minutes, under a day hours, otherwise rounded days.
func FormatMergeDuration(created, merged time.Time) model.MergeTime {
	elapsed := merged.Sub(created)
	days := elapsed.Hours() / 24

	var human string
	switch {
	case days < 1 && elapsed < time.Hour:
		human = plural(int(elapsed.Minutes()), "minute")
	case days < 1:
		human = plural(int(elapsed.Hours()), "hour")
	default:
		human = plural(int(math.Round(days)), "day")
	}

	return model.MergeTime{
		Days:          math.Round(days*100) / 100,
		HumanReadable: human,
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
