package forecast

import (
	"reflect"
	"testing"
	"time"
)

func hourlyTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

// TestStartIndex verifies selection of the first sample at or after now, including the
// fallback to index 0 for series entirely in the past.
func TestStartIndex(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := hourlyTimes(base, 5)
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before series", base.Add(-time.Hour), 0},
		{"exact match", base.Add(2 * time.Hour), 2},
		{"between samples", base.Add(2*time.Hour + time.Minute), 3},
		{"all in past", base.Add(10 * time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StartIndex(times, tt.now); got != tt.want {
				t.Errorf("StartIndex() = %d, want %d", got, tt.want)
			}
		})
	}
	if got := StartIndex(nil, base); got != 0 {
		t.Errorf("StartIndex(nil) = %d, want 0", got)
	}
}

// TestBounds_Clamping verifies that window length is min(maxCount, N-start) for a range
// of series lengths, offsets and requested counts, and is never negative or above N.
func TestBounds_Clamping(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for n := 0; n <= 8; n++ {
		times := hourlyTimes(base, n)
		for offset := -1; offset <= n+1; offset++ {
			now := base.Add(time.Duration(offset) * time.Hour)
			for maxCount := -1; maxCount <= 10; maxCount++ {
				start, count := Bounds(times, now, maxCount)
				want := n - StartIndex(times, now)
				if maxCount < want {
					want = maxCount
				}
				if want < 0 {
					want = 0
				}
				if count != want {
					t.Fatalf("n=%d offset=%d max=%d: count = %d, want %d", n, offset, maxCount, count, want)
				}
				if count < 0 || count > n || start+count > n {
					t.Fatalf("n=%d offset=%d max=%d: bounds (%d,%d) out of range", n, offset, maxCount, start, count)
				}
			}
		}
	}
}

// TestSelectHourly_AlignedColumns verifies that parallel columns are sliced with identical
// bounds and labels use zero-padded HH:MM.
func TestSelectHourly_AlignedColumns(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := hourlyTimes(base, 24)
	temps := seq(24)
	winds := make([]float64, 24)
	for i := range winds {
		winds[i] = float64(i) * 10
	}

	w := SelectHourly(times, base.Add(5*time.Hour+30*time.Minute), 12, temps, winds)

	if w.Len() != 12 {
		t.Fatalf("Len() = %d, want 12", w.Len())
	}
	if w.Labels[0] != "06:00" || w.Labels[11] != "17:00" {
		t.Errorf("Labels = %v, want 06:00..17:00", w.Labels)
	}
	if len(w.Column(0)) != 12 || len(w.Column(1)) != 12 {
		t.Fatalf("column lengths = %d,%d, want 12,12", len(w.Column(0)), len(w.Column(1)))
	}
	for i := 0; i < 12; i++ {
		if w.Column(1)[i] != w.Column(0)[i]*10 {
			t.Errorf("column misalignment at %d: temp=%v wind=%v", i, w.Column(0)[i], w.Column(1)[i])
		}
	}
	if w.Column(2) != nil {
		t.Error("Column(2) should be nil for two-column window")
	}
}

// TestSelectHourly_ClampedNotPadded verifies that maxCount beyond the series length clamps.
func TestSelectHourly_ClampedNotPadded(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := hourlyTimes(base, 3)
	w := SelectHourly(times, base, 12, seq(3))
	if w.Len() != 3 || len(w.Column(0)) != 3 {
		t.Errorf("Len() = %d, column = %d, want 3", w.Len(), len(w.Column(0)))
	}
}

// TestSelectHourly_PastSeriesFallsBackToStart verifies that a series entirely in the past
// is shown from the beginning rather than as an empty window.
func TestSelectHourly_PastSeriesFallsBackToStart(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := hourlyTimes(base, 4)
	w := SelectHourly(times, base.Add(48*time.Hour), 12, seq(4))
	if !reflect.DeepEqual(w.Labels, []string{"00:00", "01:00", "02:00", "03:00"}) {
		t.Errorf("Labels = %v", w.Labels)
	}
}

// TestSelectHourly_Empty verifies an empty series yields an empty window.
func TestSelectHourly_Empty(t *testing.T) {
	w := SelectHourly(nil, time.Now(), 12, nil, nil)
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0", w.Len())
	}
	if len(w.Values) != 2 || len(w.Values[0]) != 0 {
		t.Errorf("Values = %v, want two empty columns", w.Values)
	}
}

// TestSelectHourly_ShortColumn verifies a column shorter than the time axis clamps the
// window instead of panicking or misaligning.
func TestSelectHourly_ShortColumn(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := hourlyTimes(base, 10)
	w := SelectHourly(times, base.Add(5*time.Hour), 12, seq(10), seq(3))
	if w.Len() != 0 {
		t.Errorf("Len() = %d, want 0 when a column ends before start", w.Len())
	}
	w = SelectHourly(times, base.Add(2*time.Hour), 12, seq(10), seq(6))
	if w.Len() != 4 || len(w.Column(0)) != 4 || len(w.Column(1)) != 4 {
		t.Errorf("Len() = %d, want 4", w.Len())
	}
}

// TestSelectHourly_LabelFromTimestamp verifies the HH:MM label is taken from the sample clock.
func TestSelectHourly_LabelFromTimestamp(t *testing.T) {
	times, err := ParseTimes([]string{"2024-01-01T05:07:00"}, time.UTC)
	if err != nil {
		t.Fatalf("ParseTimes() error = %v", err)
	}
	w := SelectHourly(times, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 12)
	if len(w.Labels) != 1 || w.Labels[0] != "05:07" {
		t.Errorf("Labels = %v, want [05:07]", w.Labels)
	}
}

// TestSelectDaily_Labels verifies offset-from-today labeling starting on a Wednesday.
func TestSelectDaily_Labels(t *testing.T) {
	now := time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC) // Wednesday
	if now.Weekday() != time.Wednesday {
		t.Fatalf("fixture weekday = %v", now.Weekday())
	}
	days := make([]time.Time, 5)
	for i := range days {
		days[i] = time.Date(2024, 1, 3+i, 0, 0, 0, 0, time.UTC)
	}
	highs := []float64{20, 21, 22, 23, 24}
	lows := []float64{10, 11, 12, 13, 14}

	w := SelectDaily(days, now, 7, highs, lows)

	want := []string{"Today", "Tomorrow", "Fri", "Sat", "Sun"}
	if !reflect.DeepEqual(w.Labels, want) {
		t.Errorf("Labels = %v, want %v", w.Labels, want)
	}
	if !reflect.DeepEqual(w.Column(0), highs) || !reflect.DeepEqual(w.Column(1), lows) {
		t.Errorf("Values = %v", w.Values)
	}
}

// TestSelectDaily_Truncates verifies the weekly window honors maxCount over a 16-day series.
func TestSelectDaily_Truncates(t *testing.T) {
	now := time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC) // Saturday
	days := make([]time.Time, 16)
	for i := range days {
		days[i] = time.Date(2024, 1, 6+i, 0, 0, 0, 0, time.UTC)
	}
	w := SelectDaily(days, now, 7, seq(16))
	want := []string{"Today", "Tomorrow", "Mon", "Tue", "Wed", "Thu", "Fri"}
	if !reflect.DeepEqual(w.Labels, want) {
		t.Errorf("Labels = %v, want %v", w.Labels, want)
	}
}

func TestDayLabel(t *testing.T) {
	tests := []struct {
		today  time.Weekday
		offset int
		want   string
	}{
		{time.Sunday, 0, "Today"},
		{time.Sunday, 1, "Tomorrow"},
		{time.Sunday, 2, "Tue"},
		{time.Friday, 2, "Sun"},
		{time.Saturday, 9, "Mon"},
	}
	for _, tt := range tests {
		if got := DayLabel(tt.today, tt.offset); got != tt.want {
			t.Errorf("DayLabel(%v, %d) = %q, want %q", tt.today, tt.offset, got, tt.want)
		}
	}
}

// TestParseTimes verifies the provider timestamp layouts and zone handling.
func TestParseTimes(t *testing.T) {
	loc := time.FixedZone("IST", 19800)
	got, err := ParseTimes([]string{"2024-01-01T05:00", "2024-01-02", "2024-01-01T05:00:00Z"}, loc)
	if err != nil {
		t.Fatalf("ParseTimes() error = %v", err)
	}
	if got[0].Location() != loc || got[0].Hour() != 5 {
		t.Errorf("zone-less value = %v, want 05:00 in IST", got[0])
	}
	if got[1].Day() != 2 || got[1].Hour() != 0 {
		t.Errorf("date-only value = %v", got[1])
	}
	if _, off := got[2].Zone(); off != 0 {
		t.Errorf("RFC3339 value offset = %d, want 0", off)
	}

	if _, err := ParseTimes([]string{"yesterday"}, nil); err == nil {
		t.Error("ParseTimes() expected error for unsupported layout")
	}
}
