package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when login id and password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering an already-taken login id or email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidLoginID is returned when the login id doesn't meet constraints.
	ErrInvalidLoginID = errors.New("invalid login id")
	// ErrInvalidEmail is returned when the email doesn't parse.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service issues identity tokens. Registered users get a store record at
// registration time; guests get a token only and are persisted lazily by the
// core when they are paired into a chat.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new identity service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with a hashed password and returns a JWT token.
// Email is optional; when present it becomes the user's derived identifier.
func (s *Service) Register(ctx context.Context, loginID, email, password string) (string, error) {
	loginID = strings.TrimSpace(loginID)
	if len(loginID) < 3 || len(loginID) > 32 {
		return "", ErrInvalidLoginID
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return "", ErrInvalidEmail
		}
	}

	existing, err := s.store.FindUsers(ctx, store.UserFilter{LoginID: loginID})
	if err != nil {
		return "", fmt.Errorf("lookup login id: %w", err)
	}
	if len(existing) > 0 {
		return "", ErrUserExists
	}
	if email != "" {
		existing, err = s.store.FindUsers(ctx, store.UserFilter{Email: email})
		if err != nil {
			return "", fmt.Errorf("lookup email: %w", err)
		}
		if len(existing) > 0 {
			return "", ErrUserExists
		}
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, store.UserData{
		LoginID:      loginID,
		Email:        email,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.LoginID, user.Email, false)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, loginID, password string) (string, error) {
	users, err := s.store.FindUsers(ctx, store.UserFilter{LoginID: loginID})
	if err != nil || len(users) == 0 {
		return "", ErrInvalidCredentials
	}
	user := users[0]

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.LoginID, user.Email, false)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// CreateGuest issues a token for an anonymous user. No store record is
// created here; the core persists guests when they are paired into a chat.
func (s *Service) CreateGuest(ctx context.Context) (token, loginID string, err error) {
	loginID, err = generateGuestLoginID()
	if err != nil {
		return "", "", fmt.Errorf("generate guest login id: %w", err)
	}

	token, err = GenerateToken(s.jwtConfig, 0, loginID, "", true)
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	return token, loginID, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// generateGuestLoginID generates a random login id for an anonymous user.
func generateGuestLoginID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "guest_" + hex.EncodeToString(b), nil
}
