package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aeris-dashboard-service/internal/advisory"
	"github.com/kjstillabower/aeris-dashboard-service/internal/forecast"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
	"github.com/kjstillabower/aeris-dashboard-service/internal/user"
)

// Route labels which branch produced a reply.
type Route string

const (
	RouteEmpty     Route = "empty"
	RouteGreeting  Route = "greeting"
	RouteKnowledge Route = "knowledge"
	RouteLive      Route = "live"
	RouteFallback  Route = "fallback"
)

const (
	msgEmpty        = "Please ask a question."
	msgFallback     = "I don't know offhand. Try rephrasing the question or provide more detail."
	msgNoLocation   = "Please provide your location first (either set your profile location or include 'in <city>')."
	msgCityNotFound = "I couldn't find that city. Please type the city name more exactly."
	msgLiveUnknown  = "Live-data request not recognized."
	msgWeatherNA    = "Weather info unavailable."
	msgAirQualityNA = "AQI/UV info unavailable."
)

var greetings = []struct {
	pattern   *regexp.Regexp
	responses []string
}{
	{regexp.MustCompile(`\bhello\b`), []string{"Hey there!", "Hi! How’s it going?", "Hello!"}},
	{regexp.MustCompile(`\bhi\b`), []string{"Hi!", "Hey!", "Hello!"}},
	{regexp.MustCompile(`\bhow are you\b`), []string{"I’m doing great, thanks for asking!", "All systems operational 😎", "Feeling chatty!"}},
	{regexp.MustCompile(`\bthanks\b`), []string{"Anytime!", "You got it!", "No problem!"}},
	{regexp.MustCompile(`\bbye\b`), []string{"Goodbye!", "See you later!", "Take care!"}},
}

var (
	definitionPattern = regexp.MustCompile(`\b(what is|what's|define|definition of|meaning of|explain|how is .* calculated|what does .* mean)\b`)
	inPlacePattern    = regexp.MustCompile(`\bin\s+[a-z]{2,}(\s+[a-z]{2,})*\b`)
	livePhrasePattern = regexp.MustCompile(`\b(aqi|weather|temperature) in\b`)
	cityPattern       = regexp.MustCompile(`\bin\s+([a-z][a-z\s]*)`)
	topicPrefix       = regexp.MustCompile(`^(what is|whats|what are|what does|define|definition of|meaning of|explain|how is|tell me about)\s+((the|a|an)\s+)?`)
	topicSuffix       = regexp.MustCompile(`\s+(mean|means|calculated)$`)

	liveKeywords = []string{"current", "now", "today", "tonight", "this hour", "near me", "nearby"}

	// trailing words dropped from an extracted city name
	cityFillers = map[string]bool{"now": true, "today": true, "tonight": true, "currently": true, "right": true, "please": true}
)

// ConditionsLoader returns current conditions for a location.
type ConditionsLoader interface {
	LoadConditions(ctx context.Context, loc models.Location) (models.Conditions, error)
}

// Geocoder resolves a place name.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (models.Location, error)
}

// UserLookup returns a saved user profile.
type UserLookup interface {
	Get(ctx context.Context, username string) (user.User, error)
}

// Reply is a chat answer and the branch that produced it.
type Reply struct {
	Text  string `json:"response"`
	Route Route  `json:"-"`
}

// Responder answers chat queries from greetings, the knowledge base and live conditions.
type Responder struct {
	kb       *KnowledgeBase
	loader   ConditionsLoader
	geocoder Geocoder
	users    UserLookup
	logger   *zap.Logger
	now      func() time.Time
	pick     func(n int) int
}

// NewResponder builds a Responder. users may be nil when profiles are unavailable.
func NewResponder(kb *KnowledgeBase, loader ConditionsLoader, geocoder Geocoder, users UserLookup, logger *zap.Logger) *Responder {
	if kb == nil {
		kb = NewKnowledgeBase(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		kb:       kb,
		loader:   loader,
		geocoder: geocoder,
		users:    users,
		logger:   logger,
		now:      time.Now,
		pick:     rand.Intn,
	}
}

// Respond routes a query. Definition questions go to the knowledge base first; queries naming
// a place or a time go to live data; everything else to the knowledge base.
func (r *Responder) Respond(ctx context.Context, query, username string) Reply {
	reply := r.route(ctx, query, username)
	observability.ChatQueriesTotal.WithLabelValues(string(reply.Route)).Inc()
	return reply
}

func (r *Responder) route(ctx context.Context, query, username string) Reply {
	if strings.TrimSpace(query) == "" {
		return Reply{Text: msgEmpty, Route: RouteEmpty}
	}
	if IsDefinitionQuery(query) {
		return r.knowledgeFirst(query)
	}
	if IsLiveQuery(query) {
		return Reply{Text: r.live(ctx, query, username), Route: RouteLive}
	}
	return r.knowledgeFirst(query)
}

// IsDefinitionQuery reports whether query asks for a definition or explanation.
func IsDefinitionQuery(query string) bool {
	return definitionPattern.MatchString(strings.ToLower(strings.TrimSpace(query)))
}

// IsLiveQuery reports whether query asks for current data: it names a place with "in <city>"
// or uses a time word such as "now" or "today".
func IsLiveQuery(query string) bool {
	q := strings.ToLower(query)
	if inPlacePattern.MatchString(q) {
		return true
	}
	for _, k := range liveKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return livePhrasePattern.MatchString(q)
}

func (r *Responder) knowledgeFirst(query string) Reply {
	q := normalize(query)
	for _, g := range greetings {
		if g.pattern.MatchString(q) {
			return Reply{Text: g.responses[r.pick(len(g.responses))], Route: RouteGreeting}
		}
	}
	for _, candidate := range []string{topic(q), q} {
		if e, ok := r.kb.Lookup(candidate); ok && e.Definition != "" {
			return Reply{Text: e.Definition, Route: RouteKnowledge}
		}
	}
	return Reply{Text: msgFallback, Route: RouteFallback}
}

// topic strips question framing such as "what is the" or "... mean" from a normalized query.
func topic(q string) string {
	q = topicPrefix.ReplaceAllString(q, "")
	q = topicSuffix.ReplaceAllString(q, "")
	return strings.TrimSpace(q)
}

func (r *Responder) live(ctx context.Context, query, username string) string {
	logger := observability.LoggerFromContext(ctx, r.logger)
	q := strings.ToLower(query)

	var loc models.Location
	haveLoc := false
	if username != "" && r.users != nil {
		if u, err := r.users.Get(ctx, username); err == nil {
			loc, haveLoc = u.Location()
		} else if !errors.Is(err, user.ErrNotFound) {
			logger.Warn("chat user lookup failed", zap.String("username", username), zap.Error(err))
		}
	}

	if city := extractCity(q); city != "" {
		found, err := r.geocoder.Geocode(ctx, city)
		if err != nil {
			logger.Info("chat geocode failed", zap.String("city", city), zap.Error(err))
			return msgCityNotFound
		}
		loc, haveLoc = found, true
	}
	if !haveLoc {
		return msgNoLocation
	}

	wantAir := strings.Contains(q, "aqi")
	wantWeather := strings.Contains(q, "weather") || strings.Contains(q, "temperature")
	if !wantAir && !wantWeather {
		return msgLiveUnknown
	}

	cond, err := r.loader.LoadConditions(ctx, loc)
	if err != nil {
		logger.Warn("chat live lookup failed", zap.Error(err))
		if wantAir {
			return msgAirQualityNA
		}
		return msgWeatherNA
	}
	if wantAir {
		return airQualitySummary(cond, r.now())
	}
	return weatherSummary(cond.Forecast.Current)
}

// extractCity returns the place after "in", minus trailing time words.
func extractCity(q string) string {
	m := cityPattern.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	words := strings.Fields(m[1])
	for len(words) > 0 && cityFillers[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func weatherSummary(cw models.CurrentWeather) string {
	t := cw.TemperatureC
	if math.IsNaN(t) {
		return msgWeatherNA
	}
	var comment string
	switch {
	case t >= 20 && t <= 28:
		comment = "Comfortable."
	case t > 30:
		comment = "Stay hydrated!"
	default:
		comment = "Might need a jacket."
	}
	return fmt.Sprintf("Weather: %s°C, Wind: %s km/h — %s", num(t), num(cw.WindKmh), comment)
}

func airQualitySummary(cond models.Conditions, now time.Time) string {
	aq := cond.AirQuality
	if aq == nil {
		return msgAirQualityNA
	}
	i := forecast.StartIndex(aq.Times, now)
	if i >= len(aq.EuropeanAQI) || math.IsNaN(aq.EuropeanAQI[i]) {
		return msgAirQualityNA
	}
	aqi := math.Round(aq.EuropeanAQI[i])
	uv := aq.UVIndex
	if math.IsNaN(uv) {
		uv = 0
	}
	return fmt.Sprintf("AQI: %s (%s) — %s\nUV index: %s (%s)",
		num(aqi), advisory.AQICategory(aqi), advisory.AQIAdvice(aqi),
		num(uv), advisory.UVCategory(uv))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
