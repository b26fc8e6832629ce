// ABOUTME: Account registration and password login issuing JWT sessions
// ABOUTME: Passwords are bcrypt hashed; unknown users still pay for a hash comparison

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/task"
)

// DefaultTokenTTL is how long issued tokens stay valid unless configured otherwise.
const DefaultTokenTTL = 4 * time.Hour

// MaxPasswordLength is bcrypt's input limit.
const MaxPasswordLength = 72

var (
	// ErrEmailTaken is returned by Register when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// dummyHash is compared against when the user does not exist so that login
// takes the same time either way.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// TokenIssuer signs tokens for an identity.
type TokenIssuer interface {
	Generate(id auth.Identity, expiresIn time.Duration) (string, error)
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput is the payload of a login request.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is a freshly issued bearer token and the identity it carries.
type Session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      auth.Identity `json:"user"`
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	TokenTTL   time.Duration
	BcryptCost int
	Logger     *slog.Logger
}

// Service registers users and logs them in.
type Service struct {
	users  store.UserStore
	issuer TokenIssuer
	ttl    time.Duration
	cost   int
	logger *slog.Logger
}

// NewService creates an account service backed by users and signing with issuer.
func NewService(users store.UserStore, issuer TokenIssuer, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		users:  users,
		issuer: issuer,
		ttl:    opts.TokenTTL,
		cost:   opts.BcryptCost,
		logger: opts.Logger.With("component", "account"),
	}
}

// Register creates a user and returns a session for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &task.ValidationError{Field: "name", Message: "must not be empty"}
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{Name: name, Email: email, PasswordHash: string(hash)}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("failed to create user", "error", err)
		return nil, &task.StorageError{Op: "create user", Err: err}
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return s.issue(user)
}

// Login checks the password and returns a new session.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, &task.ValidationError{Field: "password", Message: "must not be empty"}
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(in.Password))
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("failed to get user", "error", err)
		return nil, &task.StorageError{Op: "get user", Err: err}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.logger.Debug("password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *Service) issue(user *store.User) (*Session, error) {
	id := auth.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}
	token, err := s.issuer.Generate(id, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Session{
		Token:     token,
		ExpiresAt: time.Now().Add(s.ttl).UTC(),
		User:      id,
	}, nil
}

// normalizeEmail validates a bare address and trims it.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", &task.ValidationError{Field: "email", Message: "email format is not valid"}
	}
	return addr.Address, nil
}

func validatePassword(p string) error {
	switch {
	case p == "":
		return &task.ValidationError{Field: "password", Message: "must not be empty"}
	case len(p) > MaxPasswordLength:
		return &task.ValidationError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", MaxPasswordLength)}
	}
	return nil
}
