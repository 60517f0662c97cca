package models

import "time"

// Location is a point on the map, optionally named.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
}

// CurrentWeather is the provider's instantaneous observation.
type CurrentWeather struct {
	TemperatureC float64   `json:"temperatureC"`
	WindKmh      float64   `json:"windKmh"`
	WeatherCode  int       `json:"weatherCode"`
	Time         time.Time `json:"time"`
}

// HourlySeries holds parallel hourly columns; all slices share the Times index.
type HourlySeries struct {
	Times        []time.Time `json:"times"`
	TemperatureC Series      `json:"temperatureC"`
	WindKmh      Series      `json:"windKmh"`
}

// DailySeries holds parallel daily columns, one sample per local date.
type DailySeries struct {
	Times []time.Time `json:"times"`
	MaxC  Series      `json:"maxC"`
	MinC  Series      `json:"minC"`
}

// Forecast is a parsed forecast response.
type Forecast struct {
	Current          CurrentWeather `json:"current"`
	Hourly           HourlySeries   `json:"hourly"`
	Daily            DailySeries    `json:"daily"`
	UTCOffsetSeconds int            `json:"utcOffsetSeconds"`
}

// AirQuality is a parsed air-quality response.
type AirQuality struct {
	Times       []time.Time `json:"times"`
	EuropeanAQI Series      `json:"europeanAqi"`
	PM25        Series      `json:"pm25"`
	PM10        Series      `json:"pm10"`
	UVIndex     float64     `json:"uvIndex"`
}

// Conditions is the cached unit per location: a forecast plus air quality when it was available.
type Conditions struct {
	Forecast   Forecast    `json:"forecast"`
	AirQuality *AirQuality `json:"airQuality,omitempty"`
	FetchedAt  time.Time   `json:"fetchedAt"`
	Stale      bool        `json:"stale,omitempty"` // served from stale cache
}

// Zone returns the provider's fixed zone for these conditions.
func (c Conditions) Zone() *time.Location {
	return time.FixedZone("", c.Forecast.UTCOffsetSeconds)
}
