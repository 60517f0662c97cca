package alerts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/forecast"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

// Observation is the snapshot alert rules run against. NaN marks a missing value.
type Observation struct {
	TemperatureC float64
	WindKmh      float64
	WeatherCode  int
	UVIndex      float64
	PM25         float64
	PM10         float64
}

const (
	heatThresholdC   = 40.0
	coldThresholdC   = 5.0
	windThresholdKmh = 60.0
	uvThreshold      = 7.0
	pm25Threshold    = 150.0
	pm10Threshold    = 200.0
)

var weatherCodeReasons = []struct {
	codes  []int
	reason string
}{
	{[]int{95, 96, 99}, "Thunderstorm"},
	{[]int{61, 63, 65}, "Heavy Rain"},
	{[]int{71, 73, 75}, "Snow / Heavy Snow"},
}

// ObservationFrom extracts an observation from conditions at now. Pollutants come from the
// first hourly sample at or after now; UV is the provider's current value. Without air
// quality those fields are NaN.
func ObservationFrom(cond models.Conditions, now time.Time) Observation {
	obs := Observation{
		TemperatureC: cond.Forecast.Current.TemperatureC,
		WindKmh:      cond.Forecast.Current.WindKmh,
		WeatherCode:  cond.Forecast.Current.WeatherCode,
		UVIndex:      math.NaN(),
		PM25:         math.NaN(),
		PM10:         math.NaN(),
	}
	aq := cond.AirQuality
	if aq == nil {
		return obs
	}
	obs.UVIndex = aq.UVIndex
	i := forecast.StartIndex(aq.Times, now)
	if i < len(aq.PM25) {
		obs.PM25 = aq.PM25[i]
	}
	if i < len(aq.PM10) {
		obs.PM10 = aq.PM10[i]
	}
	return obs
}

// Evaluate returns the triggered alert reasons in a fixed order: temperature, wind, UV, air,
// weather code. Comparisons against NaN are false, so missing values never trigger.
func Evaluate(o Observation) []string {
	var reasons []string

	switch {
	case o.TemperatureC >= heatThresholdC:
		reasons = append(reasons, fmt.Sprintf("Extreme Heat (%s°C)", num(o.TemperatureC)))
	case o.TemperatureC <= coldThresholdC:
		reasons = append(reasons, fmt.Sprintf("Severe Cold (%s°C)", num(o.TemperatureC)))
	}

	if o.WindKmh >= windThresholdKmh {
		reasons = append(reasons, fmt.Sprintf("High Wind (%s km/h)", num(o.WindKmh)))
	}

	if o.UVIndex >= uvThreshold {
		reasons = append(reasons, fmt.Sprintf("High UV (index %s)", num(o.UVIndex)))
	}

	switch {
	case o.PM25 >= pm25Threshold:
		reasons = append(reasons, fmt.Sprintf("Poor Air (PM2.5 %s)", num(o.PM25)))
	case o.PM10 >= pm10Threshold:
		reasons = append(reasons, fmt.Sprintf("Poor Air (PM10 %s)", num(o.PM10)))
	}

	for _, wc := range weatherCodeReasons {
		if containsInt(wc.codes, o.WeatherCode) {
			reasons = append(reasons, wc.reason)
			break
		}
	}
	return reasons
}

// ShouldThrottle reports whether an alert with reasons should be suppressed: the last alert
// is younger than window and every new reason was already active.
func ShouldThrottle(last *time.Time, active, reasons []string, now time.Time, window time.Duration) bool {
	if last == nil || now.Sub(*last) >= window {
		return false
	}
	seen := make(map[string]struct{}, len(active))
	for _, a := range active {
		seen[a] = struct{}{}
	}
	for _, r := range reasons {
		if _, ok := seen[r]; !ok {
			return false
		}
	}
	return true
}

// FormatMessage renders the aggregated alert text.
func FormatMessage(reasons []string) string {
	var b strings.Builder
	b.WriteString("🚨 Weather Alert from Aeris AI\n\n")
	for i, r := range reasons {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(r)
	}
	b.WriteString("\nStay safe. Check the dashboard for details.")
	return b.String()
}

// num formats a reading the way Open-Meteo sends it: whole values keep one decimal place.
func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsNaN(v) || math.IsInf(v, 0) || strings.ContainsRune(s, '.') {
		return s
	}
	return s + ".0"
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
