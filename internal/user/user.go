package user

import (
	"errors"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/advisory"
	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingFields      = errors.New("missing fields")
	ErrInvalidInput       = errors.New("invalid input")
)

// User is a registered dashboard user. PasswordHash is persisted by the store but never
// serialized in API responses.
type User struct {
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Mode             string     `json:"mode"`
	Age              *int       `json:"age"`
	Conditions       string     `json:"conditions"`
	Joined           string     `json:"joined"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	City             string     `json:"city,omitempty"`
	TelegramChatID   *string    `json:"telegram_chat_id"`
	LastAlertTime    *time.Time `json:"last_alert_time"`
	LastAlertReason  *string    `json:"last_alert_reason"`
	ActiveConditions []string   `json:"active_conditions"`
}

// Location returns the saved location, if both coordinates are set.
func (u User) Location() (models.Location, bool) {
	if u.Latitude == nil || u.Longitude == nil {
		return models.Location{}, false
	}
	return models.Location{Latitude: *u.Latitude, Longitude: *u.Longitude, City: u.City}, true
}

// ChatID returns the linked Telegram chat id, or "" when unlinked.
func (u User) ChatID() string {
	if u.TelegramChatID == nil {
		return ""
	}
	return *u.TelegramChatID
}

// AdvisoryMode parses the stored mode; unknown values are Balanced.
func (u User) AdvisoryMode() advisory.Mode {
	return advisory.ParseMode(u.Mode)
}

func (u User) clone() User {
	c := u
	if u.ActiveConditions != nil {
		c.ActiveConditions = append([]string(nil), u.ActiveConditions...)
	}
	return c
}
