package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"calendar/crypto"
	"calendar/db"
	"calendar/metrics"
	"calendar/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var (
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("password must not be empty")
	ErrPasswordTooLong    = errors.New("password is too long")
)

// Usernames become document names, so they are limited to a safe alphabet.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

func validUsername(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "." && name != ".." && usernamePattern.MatchString(name)
}

// bcrypt limits the input in bytes, validator's max counts runes.
func passwordFits(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= crypto.MaxPasswordBytes
}

// NewValidator returns a validator that knows the "username" and
// "passwordlen" tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("username", validUsername); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("passwordlen", passwordFits); err != nil {
		panic(err)
	}
	return v
}

// Service registers and authenticates users against the user store.
type Service struct {
	users     *db.UserStore
	locks     db.KeyedMutex
	cost      int
	logger    zerolog.Logger
	validator *validator.Validate

	// compared against when the user does not exist, so a miss costs as
	// much as a wrong password
	dummyOnce sync.Once
	dummyHash string
}

func NewService(users *db.UserStore, cost int, logger zerolog.Logger) *Service {
	return &Service{
		users:     users,
		cost:      cost,
		logger:    logger.With().Str("component", "auth").Logger(),
		validator: NewValidator(),
	}
}

// ValidUsername reports whether name is acceptable as a username.
func (s *Service) ValidUsername(name string) bool {
	return s.validator.Var(name, "username") == nil
}

// Register creates a credential record. It never touches the session.
func (s *Service) Register(ctx context.Context, username, password, confirm string) error {
	err := s.register(ctx, username, password, confirm)
	metrics.AuthAttempts.WithLabelValues("register", outcome(err)).Inc()
	return err
}

func (s *Service) register(ctx context.Context, username, password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if !s.ValidUsername(username) {
		return ErrInvalidUsername
	}
	if err := s.validator.Var(password, "required"); err != nil {
		return ErrInvalidPassword
	}
	if err := s.validator.Var(password, "passwordlen"); err != nil {
		return ErrPasswordTooLong
	}

	unlock := s.locks.Lock(db.UsersKey)
	defer unlock()

	users, err := s.users.Load(ctx)
	if err != nil {
		return err
	}
	if _, ok := users[username]; ok {
		return ErrUsernameTaken
	}

	hash, err := crypto.HashPassword(password, s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	users[username] = models.Credential{Username: username, PasswordHash: hash}
	if err := s.users.Save(ctx, users); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to save new user")
		return err
	}

	s.logger.Info().Str("username", username).Msg("user registered")
	return nil
}

// Login checks the password and returns the username on success.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	err := s.login(ctx, username, password)
	metrics.AuthAttempts.WithLabelValues("login", outcome(err)).Inc()
	if err != nil {
		return "", err
	}
	return username, nil
}

func (s *Service) login(ctx context.Context, username, password string) error {
	users, err := s.users.Load(ctx)
	if err != nil {
		return err
	}

	cred, ok := users[username]
	if !ok {
		crypto.CheckPasswordHash(password, s.dummy())
		s.logger.Debug().Str("username", username).Msg("login for unknown user")
		return ErrInvalidCredentials
	}
	if !crypto.CheckPasswordHash(password, cred.PasswordHash) {
		s.logger.Debug().Str("username", username).Msg("login with wrong password")
		return ErrInvalidCredentials
	}

	s.logger.Info().Str("username", username).Msg("user logged in")
	return nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := crypto.HashPassword("not-a-real-password", s.cost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPasswordMismatch), errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidUsername),
		errors.Is(err, ErrInvalidPassword), errors.Is(err, ErrPasswordTooLong):
		return "rejected"
	default:
		return "error"
	}
}
