package forecast

import (
	"fmt"
	"strings"
	"time"
)

// Window is a bounded view over a forecast series anchored at the current time.
// Labels[i] describes Values[c][i] for every column c.
type Window struct {
	Labels []string    `json:"labels"`
	Values [][]float64 `json:"values"`
}

// Len returns the number of samples in the window.
func (w Window) Len() int {
	return len(w.Labels)
}

// Column returns the i-th value column, or nil when out of range.
func (w Window) Column(i int) []float64 {
	if i < 0 || i >= len(w.Values) {
		return nil
	}
	return w.Values[i]
}

var weekdayShort = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// StartIndex returns the first index whose timestamp is at or after now.
// A series entirely in the past (or empty) starts at 0.
func StartIndex(times []time.Time, now time.Time) int {
	for i, t := range times {
		if !t.Before(now) {
			return i
		}
	}
	return 0
}

// Bounds returns the slice bounds of a window of at most maxCount samples starting at now.
// count is min(maxCount, len(times)-start) and never negative.
func Bounds(times []time.Time, now time.Time, maxCount int) (start, count int) {
	start = StartIndex(times, now)
	count = len(times) - start
	if maxCount < count {
		count = maxCount
	}
	if count < 0 {
		count = 0
	}
	return start, count
}

// SelectHourly selects up to maxCount hourly samples from now onward and labels each
// with its zero-padded 24-hour HH:MM clock time.
func SelectHourly(times []time.Time, now time.Time, maxCount int, columns ...[]float64) Window {
	start, count := alignedBounds(times, now, maxCount, columns)
	labels := make([]string, count)
	for i := 0; i < count; i++ {
		t := times[start+i]
		labels[i] = fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
	}
	return Window{Labels: labels, Values: sliceColumns(columns, start, count)}
}

// SelectDaily selects up to maxCount daily samples from today onward. Labels are derived
// from the offset to today only (Today, Tomorrow, then weekday short names), so they are
// accurate only when the selected series begins at today's date.
func SelectDaily(times []time.Time, now time.Time, maxCount int, columns ...[]float64) Window {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start, count := alignedBounds(times, today, maxCount, columns)
	labels := make([]string, count)
	for i := 0; i < count; i++ {
		labels[i] = DayLabel(now.Weekday(), i)
	}
	return Window{Labels: labels, Values: sliceColumns(columns, start, count)}
}

// DayLabel returns the display label for the day offset days after today.
func DayLabel(today time.Weekday, offset int) string {
	switch offset {
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	}
	return weekdayShort[(int(today)+offset)%7]
}

// alignedBounds clamps the window so that every column can supply count values from start.
func alignedBounds(times []time.Time, now time.Time, maxCount int, columns [][]float64) (int, int) {
	start, count := Bounds(times, now, maxCount)
	for _, col := range columns {
		if avail := len(col) - start; avail < count {
			count = avail
		}
	}
	if count < 0 {
		count = 0
	}
	return start, count
}

func sliceColumns(columns [][]float64, start, count int) [][]float64 {
	out := make([][]float64, len(columns))
	for c, col := range columns {
		vals := make([]float64, count)
		if count > 0 {
			copy(vals, col[start:start+count])
		}
		out[c] = vals
	}
	return out
}

var timeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimes parses provider timestamps. Zone-less values are interpreted in loc; values that
// carry an offset (RFC3339) keep it.
func ParseTimes(raw []string, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := parseTime(strings.TrimSpace(s), loc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported layout", s)
}
