package advisory

// rule pairs a predicate over a reading with the advisory it produces.
type rule struct {
	match    func(Reading) bool
	severity Severity
	text     string
}

// ladder is an ordered list of rules where the first match wins. The last rule of every
// ladder matches unconditionally, so a ladder always yields exactly one advisory.
type ladder []rule

func (l ladder) evaluate(r Reading) (Advisory, bool) {
	for _, rl := range l {
		if rl.match(r) {
			return Advisory{Text: rl.text, Severity: rl.severity}, true
		}
	}
	return Advisory{}, false
}

// alerts is a list of independent rules; every matching rule emits an advisory.
type alerts []rule

func (a alerts) evaluate(r Reading, out []Advisory) []Advisory {
	for _, rl := range a {
		if rl.match(r) {
			out = append(out, Advisory{Text: rl.text, Severity: rl.severity})
		}
	}
	return out
}

func always(Reading) bool { return true }

var (
	aqiLadder = ladder{
		{func(r Reading) bool { return r.AQI <= 50 }, SeverityGood, "AQI is good — safe to go outside."},
		{func(r Reading) bool { return r.AQI <= 100 }, SeverityNormal, "AQI is moderate — sensitive groups take care."},
		{always, SeverityBad, "AQI is high — limit outdoor activities."},
	}

	uvLadder = ladder{
		{func(r Reading) bool { return r.UVIndex <= 2 }, SeverityGood, "UV is low — minimal sun protection needed."},
		{func(r Reading) bool { return r.UVIndex <= 5 }, SeverityNormal, "UV is moderate — apply sunscreen."},
		{always, SeverityBad, "UV is high — cover up and use SPF."},
	}

	temperatureLadder = ladder{
		{func(r Reading) bool { return r.TemperatureC >= 35 }, SeverityBad, "High heat — stay hydrated!"},
		{func(r Reading) bool { return r.TemperatureC >= 30 }, SeverityNormal, "Warm day — light clothing recommended."},
		{always, SeverityGood, "Comfortable temperature — enjoy your day!"},
	}

	windLadder = ladder{
		{func(r Reading) bool { return r.WindKmh >= 50 }, SeverityBad, "Strong winds — caution outdoors."},
		{func(r Reading) bool { return r.WindKmh >= 25 }, SeverityNormal, "Moderate winds — secure loose items."},
		{always, SeverityGood, "Calm winds — nice weather."},
	}

	healthFirstAlerts = alerts{
		{func(r Reading) bool { return r.AQI > 50 }, SeverityBad, "AQI alert! Sensitive individuals take care."},
		{func(r Reading) bool { return r.UVIndex > 5 }, SeverityBad, "High UV — use sunscreen or stay indoors."},
	}

	weatherWatchAlerts = alerts{
		{func(r Reading) bool { return r.TemperatureC >= 35 }, SeverityBad, "Extreme heat warning!"},
		{func(r Reading) bool { return r.WindKmh >= 50 }, SeverityBad, "Strong wind alert!"},
	}
)

// Evaluate derives the ordered advisory list for a reading under the given mode.
// The mode-specific block comes first, followed by the temperature and wind advisories,
// which are emitted for every mode. Balanced always reports AQI and UV; the other modes
// only report threshold breaches.
func Evaluate(r Reading, m Mode) []Advisory {
	out := make([]Advisory, 0, 4)
	switch m {
	case ModeHealthFirst:
		out = healthFirstAlerts.evaluate(r, out)
	case ModeWeatherWatch:
		out = weatherWatchAlerts.evaluate(r, out)
	case ModeBalanced:
		out = appendLadder(out, aqiLadder, r)
		out = appendLadder(out, uvLadder, r)
	default:
		return Evaluate(r, ModeBalanced)
	}
	out = appendLadder(out, temperatureLadder, r)
	out = appendLadder(out, windLadder, r)
	return out
}

func appendLadder(out []Advisory, l ladder, r Reading) []Advisory {
	if a, ok := l.evaluate(r); ok {
		out = append(out, a)
	}
	return out
}
