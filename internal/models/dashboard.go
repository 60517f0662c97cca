package models

import (
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/advisory"
)

// CurrentBlock is the headline card of the dashboard. AQI and UV are nil when air quality
// could not be fetched.
type CurrentBlock struct {
	TemperatureC float64  `json:"temperatureC"`
	WindKmh      float64  `json:"windKmh"`
	WeatherCode  int      `json:"weatherCode"`
	AQI          *float64 `json:"aqi"`
	AQICategory  string   `json:"aqiCategory,omitempty"`
	UVIndex      *float64 `json:"uvIndex"`
	UVCategory   string   `json:"uvCategory,omitempty"`
}

// HourlyView is the chart data for the next hours. Missing samples encode as null.
type HourlyView struct {
	Labels       []string `json:"labels"`
	TemperatureC Series   `json:"temperatureC"`
	WindKmh      Series   `json:"windKmh"`
}

// WeeklyView is the chart data for the coming days.
type WeeklyView struct {
	Labels []string `json:"labels"`
	MaxC   Series   `json:"maxC"`
	MinC   Series   `json:"minC"`
}

// Dashboard is the assembled view for one user.
type Dashboard struct {
	Location    Location            `json:"location"`
	Mode        string              `json:"mode"`
	Current     CurrentBlock        `json:"current"`
	Hourly      HourlyView          `json:"hourly"`
	Weekly      WeeklyView          `json:"weekly"`
	Advisories  []advisory.Advisory `json:"advisories"`
	Stale       bool                `json:"stale,omitempty"`
	GeneratedAt time.Time           `json:"generatedAt"`
}
