package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	ErrUsernameEmpty        = errors.New("username is required")
	ErrUsernameLength       = errors.New("username must be 3-32 characters")
	ErrUsernameInvalidChars = errors.New("username may contain only letters, digits, '.', '_' and '-'")

	ErrCityEmpty        = errors.New("city is required")
	ErrCityTooLong      = errors.New("city too long")
	ErrCityInvalidChars = errors.New("city contains invalid characters")

	ErrLatitudeRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeRange = errors.New("longitude must be between -180 and 180")

	ErrChatIDInvalid = errors.New("telegram chat id must be a number or @channel name")
)

const (
	usernameMinLen = 3
	usernameMaxLen = 32
	cityMaxLen     = 100
)

// ValidateUsername trims the input and checks its length and character set.
func ValidateUsername(input string) (string, error) {
	s := strings.TrimSpace(input)
	n := len([]rune(s))
	if n == 0 {
		return "", ErrUsernameEmpty
	}
	if n < usernameMinLen || n > usernameMaxLen {
		return "", ErrUsernameLength
	}
	for _, c := range s {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '.' && c != '_' && c != '-' {
			return "", ErrUsernameInvalidChars
		}
	}
	return s, nil
}

// ValidateCity trims a place name and restricts it to letters, digits, space, comma, period,
// apostrophe and hyphen.
func ValidateCity(input string) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if len(r) > cityMaxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateCoordinates checks WGS84 ranges. NaN and infinities are rejected.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrLatitudeRange
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ErrLongitudeRange
	}
	return nil
}

// ValidateChatID accepts a Telegram chat id: a (possibly negative) integer, or a public
// channel username of the form @name.
func ValidateChatID(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrChatIDInvalid
	}
	if strings.HasPrefix(s, "@") {
		name := s[1:]
		if len(name) < 5 || len(name) > 32 {
			return "", ErrChatIDInvalid
		}
		for _, c := range name {
			if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
				return "", ErrChatIDInvalid
			}
		}
		return s, nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", ErrChatIDInvalid
	}
	return s, nil
}
