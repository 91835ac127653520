// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"salesboard/internal/domain"
)

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = 24 * time.Hour

const minPasswordLen = 8

var (
	// ErrInvalidCredentials indicates that the provided username or password was incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")
	// ErrUserNotFound indicates that the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists indicates that the username is already taken.
	ErrUserExists = errors.New("username already taken")
	// ErrWeakPassword indicates that the password is too short.
	ErrWeakPassword = fmt.Errorf("password must be at least %d characters", minPasswordLen)
	// ErrInvalidUsername indicates an empty or reserved username.
	ErrInvalidUsername = errors.New("invalid username")
)

// AuthService handles authentication and session management.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
}

// WithSessionTTL overrides the session lifetime.
func (s *AuthService) WithSessionTTL(ttl time.Duration) *AuthService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// IdentityID is the collection-scoping id of a local user.
func IdentityID(u *domain.User) string {
	return fmt.Sprintf("user-%d", u.ID)
}

// Register creates a password account and signs it in.
func (s *AuthService) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.HasPrefix(username, anonymousPrefix) {
		return "", ErrInvalidUsername
	}
	if len(password) < minPasswordLen {
		return "", ErrWeakPassword
	}

	if existing, err := s.users.GetByUsername(ctx, username); err == nil && existing != nil {
		return "", ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	user, err := s.users.Create(ctx, username, string(hash), false)
	if err != nil {
		return "", err
	}
	return s.newSession(ctx, user)
}

// Login authenticates a user and creates a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil || user == nil || user.Anonymous || user.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.newSession(ctx, user)
}

const anonymousPrefix = "anon-"

// SignInAnonymously provisions a fresh anonymous user with its own session.
func (s *AuthService) SignInAnonymously(ctx context.Context) (domain.Identity, error) {
	user, err := s.users.Create(ctx, anonymousPrefix+uuid.NewString(), "", true)
	if err != nil {
		return domain.Identity{}, err
	}
	token, err := s.newSession(ctx, user)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: IdentityID(user), Anonymous: true, Token: token}, nil
}

// Logout invalidates a session.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// ValidateSession checks if a session token is valid.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*domain.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil || session == nil {
		return nil, ErrSessionNotFound
	}

	if s.now().After(session.ExpiresAt) {
		_ = s.sessions.Delete(ctx, token)
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// VerifyToken resolves a local session token to its identity.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (domain.Identity, error) {
	user, err := s.ValidateSession(ctx, token)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: IdentityID(user), Anonymous: user.Anonymous, Token: token}, nil
}

// ValidateForwardAuth resolves the user named by a trusted reverse proxy
// header, provisioning it on first sight.
func (s *AuthService) ValidateForwardAuth(ctx context.Context, remoteUser string) (*domain.User, error) {
	if remoteUser == "" {
		return nil, errors.New("no remote user header")
	}
	return s.findOrProvision(ctx, remoteUser)
}

// LoginWithUser creates a session for an already authenticated user (e.g. via SSO).
func (s *AuthService) LoginWithUser(ctx context.Context, username string) (string, error) {
	user, err := s.findOrProvision(ctx, username)
	if err != nil {
		return "", err
	}
	return s.newSession(ctx, user)
}

// PurgeExpired removes sessions past their expiry.
func (s *AuthService) PurgeExpired(ctx context.Context) error {
	return s.sessions.DeleteExpired(ctx)
}

func (s *AuthService) findOrProvision(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err == nil && user != nil {
		return user, nil
	}
	// SSO users have no password.
	user, err = s.users.Create(ctx, username, "", false)
	if err != nil {
		// Lost a race on the unique username.
		user, err = s.users.GetByUsername(ctx, username)
		if err != nil || user == nil {
			return nil, ErrUserNotFound
		}
	}
	return user, nil
}

func (s *AuthService) newSession(ctx context.Context, user *domain.User) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := s.now().Add(s.ttl)
	if err := s.sessions.Create(ctx, user.ID, token, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
