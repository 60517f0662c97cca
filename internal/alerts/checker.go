package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
	"github.com/kjstillabower/aeris-dashboard-service/internal/user"
)

var ErrNotLinked = errors.New("user not linked")

const (
	testMessage = "✅ This is a test alert from Aeris AI!"
	testReason  = "Test Alert"
)

// Notifier delivers a text message to a chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// ConditionsLoader returns current conditions for a location.
type ConditionsLoader interface {
	LoadConditions(ctx context.Context, loc models.Location) (models.Conditions, error)
}

// Users is the subset of the user service the checker needs.
type Users interface {
	Get(ctx context.Context, username string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	RecordAlert(ctx context.Context, username string, at time.Time, reason string, conditions []string) (user.User, error)
}

// Config controls scheduling and throttling.
type Config struct {
	Interval       time.Duration
	ThrottleWindow time.Duration
	// UserTimeout bounds the work for a single user during CheckAll.
	UserTimeout time.Duration
}

// Outcome is the result of checking one user.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeThrottled  Outcome = "throttled"
	OutcomeQuiet      Outcome = "quiet"
	OutcomeIneligible Outcome = "ineligible"
	OutcomeFailed     Outcome = "failed"
)

// Summary counts outcomes of a CheckAll run.
type Summary struct {
	Checked   int `json:"checked"`
	Sent      int `json:"sent"`
	Throttled int `json:"throttled"`
	Failed    int `json:"failed"`
}

// Status is the alert state reported to the dashboard.
type Status struct {
	Linked           bool       `json:"linked"`
	LastAlert        *time.Time `json:"last_alert"`
	LastReason       string     `json:"last_reason"`
	ActiveConditions []string   `json:"active_conditions"`
	NextCheck        string     `json:"next_check"`
}

// Checker evaluates alert rules for users and delivers aggregated messages.
type Checker struct {
	users    Users
	loader   ConditionsLoader
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewChecker constructs a Checker. Zero durations default to four hours, and 30s per user.
func NewChecker(users Users, loader ConditionsLoader, notifier Notifier, cfg Config, logger *zap.Logger) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 240 * time.Minute
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = 240 * time.Minute
	}
	if cfg.UserTimeout <= 0 {
		cfg.UserTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		users:    users,
		loader:   loader,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// CheckAll runs one pass over every linked user with a saved location. Per-user failures are
// logged and counted; only a failure to list users is returned.
func (c *Checker) CheckAll(ctx context.Context) (Summary, error) {
	users, err := c.users.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list users: %w", err)
	}

	var sum Summary
	for _, u := range users {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		userCtx, cancel := context.WithTimeout(ctx, c.cfg.UserTimeout)
		outcome, err := c.CheckUser(userCtx, u)
		cancel()

		if outcome == OutcomeIneligible {
			continue
		}
		sum.Checked++
		observability.AlertsTotal.WithLabelValues(string(outcome)).Inc()
		switch outcome {
		case OutcomeSent:
			sum.Sent++
		case OutcomeThrottled:
			sum.Throttled++
			c.logger.Info("alert throttled", zap.String("username", u.Username))
		case OutcomeFailed:
			sum.Failed++
			c.logger.Warn("alert check failed", zap.String("username", u.Username), zap.Error(err))
		}
	}
	c.logger.Info("alert check completed",
		zap.Int("checked", sum.Checked),
		zap.Int("sent", sum.Sent),
		zap.Int("throttled", sum.Throttled),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// CheckUser evaluates and, unless throttled, delivers an alert for one user.
func (c *Checker) CheckUser(ctx context.Context, u user.User) (Outcome, error) {
	chatID := u.ChatID()
	loc, ok := u.Location()
	if chatID == "" || !ok {
		return OutcomeIneligible, nil
	}

	cond, err := c.loader.LoadConditions(ctx, loc)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load conditions: %w", err)
	}
	now := c.now()
	reasons := Evaluate(ObservationFrom(cond, now))
	if len(reasons) == 0 {
		return OutcomeQuiet, nil
	}
	if ShouldThrottle(u.LastAlertTime, u.ActiveConditions, reasons, now, c.cfg.ThrottleWindow) {
		return OutcomeThrottled, nil
	}

	if err := c.notifier.SendMessage(ctx, chatID, FormatMessage(reasons)); err != nil {
		return OutcomeFailed, fmt.Errorf("send alert: %w", err)
	}
	if _, err := c.users.RecordAlert(ctx, u.Username, now, strings.Join(reasons, ", "), reasons); err != nil {
		return OutcomeFailed, fmt.Errorf("record alert: %w", err)
	}
	c.logger.Info("alert sent", zap.String("username", u.Username), zap.Strings("reasons", reasons))
	return OutcomeSent, nil
}

// SendTest sends a test message to a linked user and records it as the last alert.
func (c *Checker) SendTest(ctx context.Context, username string) error {
	u, err := c.users.Get(ctx, username)
	if errors.Is(err, user.ErrNotFound) {
		return ErrNotLinked
	}
	if err != nil {
		return err
	}
	chatID := u.ChatID()
	if chatID == "" {
		return ErrNotLinked
	}
	if err := c.notifier.SendMessage(ctx, chatID, testMessage); err != nil {
		observability.AlertsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return fmt.Errorf("send test alert: %w", err)
	}
	observability.AlertsTotal.WithLabelValues("test").Inc()
	if _, err := c.users.RecordAlert(ctx, username, c.now(), testReason, []string{"Test"}); err != nil {
		return fmt.Errorf("record test alert: %w", err)
	}
	return nil
}

// Status reports the user's alert state.
func (c *Checker) Status(ctx context.Context, username string) (Status, error) {
	u, err := c.users.Get(ctx, username)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Linked:           u.ChatID() != "",
		LastAlert:        u.LastAlertTime,
		LastReason:       "None",
		ActiveConditions: u.ActiveConditions,
		NextCheck:        NextCheck(u.LastAlertTime, c.cfg.Interval, c.now()),
	}
	if u.LastAlertReason != nil {
		st.LastReason = *u.LastAlertReason
	}
	if st.ActiveConditions == nil {
		st.ActiveConditions = []string{}
	}
	return st, nil
}

// NextCheck describes when the next check is due relative to the last alert: "Unknown" when
// the user was never alerted, "in Xh Ym" while pending and "Soon" once overdue.
func NextCheck(last *time.Time, interval time.Duration, now time.Time) string {
	if last == nil {
		return "Unknown"
	}
	remaining := last.Add(interval).Sub(now)
	if remaining <= 0 {
		return "Soon"
	}
	hours := int(remaining / time.Hour)
	minutes := int((remaining % time.Hour) / time.Minute)
	return fmt.Sprintf("in %dh %dm", hours, minutes)
}
