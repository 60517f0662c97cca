package client

import (
	"fmt"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/forecast"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

type forecastPayload struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	CurrentWeather   struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
		Time        string  `json:"time"`
	} `json:"current_weather"`
	Hourly struct {
		Time          []string      `json:"time"`
		Temperature2m models.Series `json:"temperature_2m"`
		WindSpeed10m  models.Series `json:"windspeed_10m"`
	} `json:"hourly"`
	Daily struct {
		Time             []string      `json:"time"`
		Temperature2mMax models.Series `json:"temperature_2m_max"`
		Temperature2mMin models.Series `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (p forecastPayload) toModel() (models.Forecast, error) {
	zone := time.FixedZone("", p.UTCOffsetSeconds)

	hourlyTimes, err := forecast.ParseTimes(p.Hourly.Time, zone)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("parse hourly times: %w", err)
	}
	dailyTimes, err := forecast.ParseTimes(p.Daily.Time, zone)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("parse daily times: %w", err)
	}

	f := models.Forecast{
		UTCOffsetSeconds: p.UTCOffsetSeconds,
		Current: models.CurrentWeather{
			TemperatureC: p.CurrentWeather.Temperature,
			WindKmh:      p.CurrentWeather.WindSpeed,
			WeatherCode:  p.CurrentWeather.WeatherCode,
		},
		Hourly: models.HourlySeries{
			Times:        hourlyTimes,
			TemperatureC: p.Hourly.Temperature2m,
			WindKmh:      p.Hourly.WindSpeed10m,
		},
		Daily: models.DailySeries{
			Times: dailyTimes,
			MaxC:  p.Daily.Temperature2mMax,
			MinC:  p.Daily.Temperature2mMin,
		},
	}
	if p.CurrentWeather.Time != "" {
		ts, err := forecast.ParseTimes([]string{p.CurrentWeather.Time}, zone)
		if err != nil {
			return models.Forecast{}, fmt.Errorf("parse current time: %w", err)
		}
		f.Current.Time = ts[0]
	}
	return f, nil
}

type airQualityPayload struct {
	UTCOffsetSeconds int `json:"utc_offset_seconds"`
	Hourly           struct {
		Time        []string      `json:"time"`
		PM25        models.Series `json:"pm2_5"`
		PM10        models.Series `json:"pm10"`
		EuropeanAQI models.Series `json:"european_aqi"`
	} `json:"hourly"`
	Current struct {
		UVIndex *float64 `json:"uv_index"`
	} `json:"current"`
}

func (p airQualityPayload) toModel() (models.AirQuality, error) {
	times, err := forecast.ParseTimes(p.Hourly.Time, time.FixedZone("", p.UTCOffsetSeconds))
	if err != nil {
		return models.AirQuality{}, fmt.Errorf("parse air quality times: %w", err)
	}
	aq := models.AirQuality{
		Times:       times,
		EuropeanAQI: p.Hourly.EuropeanAQI,
		PM25:        p.Hourly.PM25,
		PM10:        p.Hourly.PM10,
	}
	if p.Current.UVIndex != nil {
		aq.UVIndex = *p.Current.UVIndex
	}
	return aq, nil
}

type geocodingPayload struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}
