package advisory

import (
	"fmt"
	"strings"
)

// Mode is the user's advisory preference. The zero value is ModeBalanced.
type Mode int

const (
	ModeBalanced Mode = iota
	ModeHealthFirst
	ModeWeatherWatch
)

var modeNames = map[Mode]string{
	ModeBalanced:     "Balanced",
	ModeHealthFirst:  "Health-first",
	ModeWeatherWatch: "Weather Watch",
}

// Modes lists every mode in display order.
func Modes() []Mode {
	return []Mode{ModeBalanced, ModeHealthFirst, ModeWeatherWatch}
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return modeNames[ModeBalanced]
}

// ParseMode maps a profile mode string to a Mode. Empty or unrecognized values are Balanced.
func ParseMode(s string) Mode {
	s = strings.TrimSpace(s)
	for m, name := range modeNames {
		if strings.EqualFold(name, s) {
			return m
		}
	}
	return ModeBalanced
}

// IsValidMode reports whether s names a known mode exactly (case-insensitive).
func IsValidMode(s string) bool {
	s = strings.TrimSpace(s)
	for _, name := range modeNames {
		if strings.EqualFold(name, s) {
			return true
		}
	}
	return false
}

// Severity classifies an advisory for display.
type Severity int

const (
	SeverityGood Severity = iota
	SeverityNormal
	SeverityBad
)

func (s Severity) String() string {
	switch s {
	case SeverityGood:
		return "good"
	case SeverityNormal:
		return "normal"
	case SeverityBad:
		return "bad"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity as its display class.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a display class.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "good":
		*s = SeverityGood
	case "normal":
		*s = SeverityNormal
	case "bad":
		*s = SeverityBad
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Reading is a point-in-time environmental snapshot.
type Reading struct {
	AQI          float64 `json:"aqi"`
	TemperatureC float64 `json:"temperatureC"`
	WindKmh      float64 `json:"windKmh"`
	UVIndex      float64 `json:"uvIndex"`
}

// Advisory is a categorized, human-readable recommendation.
type Advisory struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
}
