package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kjstillabower/aeris-dashboard-service/internal/advisory"
	"github.com/kjstillabower/aeris-dashboard-service/internal/validation"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Service implements the account and profile workflows on top of a Store.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
	hashCost int
}

// NewService constructs a Service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
}

// Register creates a user with the default Balanced mode.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.checkStruct(req); err != nil {
		return User{}, err
	}
	username, err := validation.ValidateUsername(req.Username)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		Username:         username,
		Email:            req.Email,
		PasswordHash:     string(hashed),
		Mode:             advisory.ModeBalanced.String(),
		Joined:           s.now().Format("2006-01-02"),
		ActiveConditions: []string{},
	}
	if err := s.store.Create(ctx, u); err != nil {
		return User{}, err
	}
	s.logger.Info("user registered", zap.String("username", username))
	return u, nil
}

// Login verifies the password. Unknown users and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, req LoginRequest) (User, error) {
	if err := s.checkStruct(req); err != nil {
		return User{}, err
	}
	u, err := s.store.Get(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns the user or ErrNotFound.
func (s *Service) Get(ctx context.Context, username string) (User, error) {
	return s.store.Get(ctx, username)
}

// List returns every user in registration order.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// Update applies a partial profile update. Keys name JSON fields of User; a JSON null clears
// a nullable field. Identity, credentials and alert bookkeeping fields are ignored, as are
// unknown keys, so a client may post back a whole profile object. It returns the updated user
// and the sorted names of the fields that were applied.
func (s *Service) Update(ctx context.Context, username string, patch map[string]json.RawMessage) (User, []string, error) {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if _, ok := patchers[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	u, err := s.store.Update(ctx, username, func(u *User) error {
		for _, k := range keys {
			if err := patchers[k](s, u, patch[k]); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidInput, k, err)
			}
		}
		if (u.Latitude == nil) != (u.Longitude == nil) {
			return fmt.Errorf("%w: latitude and longitude must be set together", ErrInvalidInput)
		}
		return nil
	})
	if err != nil {
		return User{}, nil, err
	}
	return u, keys, nil
}

// RecordAlert stores the outcome of a delivered alert.
func (s *Service) RecordAlert(ctx context.Context, username string, at time.Time, reason string, conditions []string) (User, error) {
	return s.store.Update(ctx, username, func(u *User) error {
		u.LastAlertTime = &at
		u.LastAlertReason = &reason
		u.ActiveConditions = append([]string{}, conditions...)
		return nil
	})
}

// checkStruct maps validator failures onto ErrMissingFields or ErrInvalidInput.
func (s *Service) checkStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return ErrMissingFields
		}
	}
	fe := verrs[0]
	return fmt.Errorf("%w: %s failed %q", ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
}

type patcher func(s *Service, u *User, raw json.RawMessage) error

var patchers = map[string]patcher{
	"email": func(s *Service, u *User, raw json.RawMessage) error {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		v = strings.TrimSpace(v)
		if err := s.validate.Var(v, "required,email"); err != nil {
			return errors.New("invalid email address")
		}
		u.Email = v
		return nil
	},
	"mode": func(_ *Service, u *User, raw json.RawMessage) error {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if !advisory.IsValidMode(v) {
			return fmt.Errorf("unknown mode %q", v)
		}
		u.Mode = advisory.ParseMode(v).String()
		return nil
	},
	"age": func(s *Service, u *User, raw json.RawMessage) error {
		var v *int
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v != nil {
			if err := s.validate.Var(*v, "gte=0,lte=150"); err != nil {
				return errors.New("age must be between 0 and 150")
			}
		}
		u.Age = v
		return nil
	},
	"conditions": func(_ *Service, u *User, raw json.RawMessage) error {
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		u.Conditions = ""
		if v != nil {
			u.Conditions = strings.TrimSpace(*v)
		}
		return nil
	},
	"latitude": func(_ *Service, u *User, raw json.RawMessage) error {
		var v *float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v != nil {
			if err := validation.ValidateCoordinates(*v, 0); err != nil {
				return err
			}
		}
		u.Latitude = v
		return nil
	},
	"longitude": func(_ *Service, u *User, raw json.RawMessage) error {
		var v *float64
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v != nil {
			if err := validation.ValidateCoordinates(0, *v); err != nil {
				return err
			}
		}
		u.Longitude = v
		return nil
	},
	"city": func(_ *Service, u *User, raw json.RawMessage) error {
		var v *string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v == nil || strings.TrimSpace(*v) == "" {
			u.City = ""
			return nil
		}
		city, err := validation.ValidateCity(*v)
		if err != nil {
			return err
		}
		u.City = city
		return nil
	},
	"telegram_chat_id": func(_ *Service, u *User, raw json.RawMessage) error {
		v, err := decodeChatID(raw)
		if err != nil {
			return err
		}
		if v == "" {
			u.TelegramChatID = nil
			return nil
		}
		id, err := validation.ValidateChatID(v)
		if err != nil {
			return err
		}
		u.TelegramChatID = &id
		return nil
	},
}

// decodeChatID accepts a string, a bare JSON number or null.
func decodeChatID(raw json.RawMessage) (string, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", validation.ErrChatIDInvalid
	}
}
