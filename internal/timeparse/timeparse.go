// Package timeparse normalizes the date-time text found in service and usage
// spreadsheets into minute-resolution timestamps.
//
// Exports write dates as day/month/year with an optional seconds field. Some
// exporters also write midnight as hour 24; that notation is folded onto hour 00
// of the same date.
package timeparse

import (
	"strings"
	"time"
)

const (
	// LayoutSeconds is day/month/year hour:minute:second.
	LayoutSeconds = "2/1/2006 15:04:05"

	// LayoutMinutes is day/month/year hour:minute.
	LayoutMinutes = "2/1/2006 15:04"
)

// Parse converts a cell into a timestamp truncated to the minute.
// ok is false when the text matches none of the accepted formats.
//
// Accepted formats, in order: LayoutSeconds, LayoutMinutes, and LayoutMinutes
// after the first " 24:" has been rewritten to " 00:". The rewrite keeps the
// date, so "01/09/2024 24:15" becomes 2024-09-01 00:15, not the next day.
func Parse(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(LayoutSeconds, text); err == nil {
		return t.Truncate(time.Minute), true
	}
	if t, err := time.Parse(LayoutMinutes, text); err == nil {
		return t.Truncate(time.Minute), true
	}

	fixed := strings.Replace(text, " 24:", " 00:", 1)
	if fixed == text {
		return time.Time{}, false
	}
	if t, err := time.Parse(LayoutMinutes, fixed); err == nil {
		return t.Truncate(time.Minute), true
	}
	return time.Time{}, false
}

// Format renders t in the seconds layout with zero-padded day and month, so the
// output always parses back through Parse.
func Format(t time.Time) string {
	return t.Format("02/01/2006 15:04:05")
}
