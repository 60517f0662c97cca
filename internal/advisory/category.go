package advisory

// UVCategory returns the descriptive band for a UV index.
func UVCategory(uv float64) string {
	switch {
	case uv <= 2:
		return "Low"
	case uv <= 5:
		return "Moderate"
	case uv <= 7:
		return "High"
	case uv <= 10:
		return "Very High"
	default:
		return "Extreme"
	}
}

// AQICategory returns the descriptive band for an AQI value.
func AQICategory(aqi float64) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

// AQIAdvice is the one-line outdoor-activity recommendation for an AQI value.
func AQIAdvice(aqi float64) string {
	switch {
	case aqi <= 50:
		return "Enjoy your day!"
	case aqi <= 100:
		return "Limit prolonged outdoor exertion."
	default:
		return "Avoid outdoor activities, wear a mask."
	}
}
