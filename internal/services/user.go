package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/userhub/apiserver/internal/auth"
	"github.com/userhub/apiserver/internal/store"
	"github.com/userhub/apiserver/types"
)

// RegisteredEventChannel is the broker channel sign-up events are published to.
const RegisteredEventChannel = "user-registered"

const minPasswordLength = 6

// ErrInvalidCredentials is returned for sign-in with an unknown email or a
// wrong password. Both cases must be indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken is returned when sign-up hits an already registered email.
var ErrEmailTaken = errors.New("email is already in use")

// ValidationError reports malformed or missing sign-up/sign-in input.
// The message is safe to return to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id int, update store.ProfileUpdate) (types.User, error)
}

// EventPublisher sends registration events to a broker channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// SignUpInput carries the fields accepted by SignUp. Age, Gender and Image
// are optional.
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Age      *int
	Gender   *string
	Image    *string
}

// RegisteredEvent is the payload published on successful sign-up.
type RegisteredEvent struct {
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// UserService implements the account use-cases: sign-up, sign-in and
// profile read/update.
type UserService struct {
	repo      UserRepository
	tokens    *auth.TokenManager
	signUpTTL time.Duration
	signInTTL time.Duration
	events    EventPublisher
}

func NewUserService(repo UserRepository, tokens *auth.TokenManager, signUpTTL, signInTTL time.Duration) *UserService {
	return &UserService{
		repo:      repo,
		tokens:    tokens,
		signUpTTL: signUpTTL,
		signInTTL: signInTTL,
	}
}

// WithEventPublisher enables publishing of registration events.
func (s *UserService) WithEventPublisher(events EventPublisher) *UserService {
	s.events = events
	return s
}

// SignUp validates the input, creates the account and returns it together
// with a bearer token. Email uniqueness is enforced by the repository in a
// single conditional insert, so two concurrent sign-ups with the same email
// cannot both succeed.
func (s *UserService) SignUp(ctx context.Context, input SignUpInput) (types.User, string, error) {
	if input.Email == "" || input.Password == "" || input.Name == "" {
		return types.User{}, "", &ValidationError{Message: "email, password and name are required"}
	}
	if len(input.Password) < minPasswordLength {
		return types.User{}, "", &ValidationError{Message: "password must be at least 6 characters"}
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return types.User{}, "", err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        input.Email,
		Name:         input.Name,
		Age:          input.Age,
		Gender:       input.Gender,
		Image:        input.Image,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, "", ErrEmailTaken
		}
		return types.User{}, "", err
	}

	token, err := s.tokens.Issue(user.ID, s.signUpTTL)
	if err != nil {
		return types.User{}, "", err
	}

	s.publishRegistered(ctx, user)

	return user, token, nil
}

// SignIn verifies the credentials and returns a bearer token. Unknown email
// and wrong password both return ErrInvalidCredentials.
func (s *UserService) SignIn(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", &ValidationError{Message: "email and password are required"}
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := auth.CheckPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	return s.tokens.Issue(user.ID, s.signInTTL)
}

// Profile returns the user record for the given ID.
func (s *UserService) Profile(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile applies a partial update of the user's mutable fields.
func (s *UserService) UpdateProfile(ctx context.Context, id int, update store.ProfileUpdate) (types.User, error) {
	return s.repo.UpdateProfile(ctx, id, update)
}

// publishRegistered emits a registration event when a broker is configured.
// The account is already committed, so a publish failure is logged and
// never surfaced to the caller.
func (s *UserService) publishRegistered(ctx context.Context, user types.User) {
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(RegisteredEvent{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		slog.Error("marshal registration event", "error", err)
		return
	}

	if _, err := s.events.Publish(ctx, RegisteredEventChannel, payload, map[string]string{
		"event": "user.registered",
	}); err != nil {
		slog.Error("publish registration event", "error", err, "user_id", user.ID)
	}
}
