package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salesboard/internal/domain"
)

type mockUserRepo struct {
	getByUsernameFn func(ctx context.Context, username string) (*domain.User, error)
	getByIDFn       func(ctx context.Context, id int64) (*domain.User, error)
	createFn        func(ctx context.Context, username, passwordHash string, anonymous bool) (*domain.User, error)
	countFn         func(ctx context.Context) (int, error)
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.getByUsernameFn != nil {
		return m.getByUsernameFn(ctx, username)
	}
	return nil, errors.New("not found")
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, errors.New("not found")
}

func (m *mockUserRepo) Create(ctx context.Context, username, passwordHash string, anonymous bool) (*domain.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, username, passwordHash, anonymous)
	}
	return &domain.User{ID: 1, Username: username, PasswordHash: passwordHash, Anonymous: anonymous}, nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

type mockSessionRepo struct {
	createFn        func(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	getByTokenFn    func(ctx context.Context, token string) (*domain.Session, error)
	deleteFn        func(ctx context.Context, token string) error
	deleteExpiredFn func(ctx context.Context) error
}

func (m *mockSessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	if m.createFn != nil {
		return m.createFn(ctx, userID, token, expiresAt)
	}
	return nil
}

func (m *mockSessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	if m.getByTokenFn != nil {
		return m.getByTokenFn(ctx, token)
	}
	return nil, errors.New("not found")
}

func (m *mockSessionRepo) Delete(ctx context.Context, token string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) error {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return nil
}


func TestAuthService_Login_Success(t *testing.T) {
	ctx := context.Background()
	password := "testpass123"
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{
				ID:           1,
				Username:     "testuser",
				PasswordHash: string(hash),
			}, nil
		},
	}

	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
			if userID != 1 {
				t.Errorf("expected userID 1, got %d", userID)
			}
			if token == "" {
				t.Error("token should not be empty")
			}
			return nil
		},
	}

	svc := NewAuthService(users, sessions)
	token, err := svc.Login(ctx, "testuser", password)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token == "" {
		t.Error("expected token, got empty string")
	}
}

func TestAuthService_Login_InvalidPassword(t *testing.T) {
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)

	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{
				ID:           1,
				Username:     "testuser",
				PasswordHash: string(hash),
			}, nil
		},
	}

	sessions := &mockSessionRepo{}
	svc := NewAuthService(users, sessions)

	_, err := svc.Login(ctx, "testuser", "wrongpass")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Login_AnonymousRejected(t *testing.T) {
	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{ID: 3, Username: username, Anonymous: true}, nil
		},
	}
	svc := NewAuthService(users, &mockSessionRepo{})

	if _, err := svc.Login(context.Background(), "anon-x", ""); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Register(t *testing.T) {
	var created string
	users := &mockUserRepo{
		createFn: func(ctx context.Context, username, passwordHash string, anonymous bool) (*domain.User, error) {
			if anonymous {
				t.Error("registered user should not be anonymous")
			}
			if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte("longenough")) != nil {
				t.Error("password hash does not match")
			}
			created = username
			return &domain.User{ID: 9, Username: username}, nil
		},
	}
	svc := NewAuthService(users, &mockSessionRepo{})

	token, err := svc.Register(context.Background(), "  seller  ", "longenough")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token == "" {
		t.Error("expected a session token")
	}
	if created != "seller" {
		t.Errorf("expected trimmed username, got %q", created)
	}
}

func TestAuthService_Register_Rejects(t *testing.T) {
	taken := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{ID: 1, Username: username}, nil
		},
	}

	tests := []struct {
		name     string
		users    *mockUserRepo
		username string
		password string
		want     error
	}{
		{"empty username", &mockUserRepo{}, " ", "longenough", ErrInvalidUsername},
		{"reserved prefix", &mockUserRepo{}, "anon-me", "longenough", ErrInvalidUsername},
		{"short password", &mockUserRepo{}, "seller", "short", ErrWeakPassword},
		{"taken", taken, "seller", "longenough", ErrUserExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewAuthService(tt.users, &mockSessionRepo{})
			if _, err := svc.Register(context.Background(), tt.username, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthService_SignInAnonymously(t *testing.T) {
	var sessionUser int64
	users := &mockUserRepo{
		createFn: func(ctx context.Context, username, passwordHash string, anonymous bool) (*domain.User, error) {
			if !anonymous || passwordHash != "" {
				t.Errorf("expected passwordless anonymous user, got anonymous=%v hash=%q", anonymous, passwordHash)
			}
			return &domain.User{ID: 42, Username: username, Anonymous: true}, nil
		},
	}
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
			sessionUser = userID
			return nil
		},
	}
	svc := NewAuthService(users, sessions)

	id, err := svc.SignInAnonymously(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id.ID != "user-42" || !id.Anonymous || id.Token == "" {
		t.Errorf("unexpected identity %+v", id)
	}
	if sessionUser != 42 {
		t.Errorf("expected session for user 42, got %d", sessionUser)
	}
}

func TestAuthService_ValidateSession_Valid(t *testing.T) {
	ctx := context.Background()
	token := "validtoken"

	sessions := &mockSessionRepo{
		getByTokenFn: func(ctx context.Context, tok string) (*domain.Session, error) {
			return &domain.Session{
				Token:     token,
				UserID:    1,
				ExpiresAt: time.Now().Add(1 * time.Hour),
			}, nil
		},
	}

	users := &mockUserRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
			return &domain.User{
				ID:       1,
				Username: "testuser",
			}, nil
		},
	}

	svc := NewAuthService(users, sessions)
	user, err := svc.ValidateSession(ctx, token)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %s", user.Username)
	}
}

func TestAuthService_ValidateSession_Expired(t *testing.T) {
	ctx := context.Background()
	token := "expiredtoken"

	deleted := false
	sessions := &mockSessionRepo{
		getByTokenFn: func(ctx context.Context, tok string) (*domain.Session, error) {
			return &domain.Session{
				Token:     token,
				UserID:    1,
				ExpiresAt: time.Now().Add(-1 * time.Hour),
			}, nil
		},
		deleteFn: func(ctx context.Context, tok string) error {
			deleted = true
			return nil
		},
	}

	users := &mockUserRepo{}
	svc := NewAuthService(users, sessions)

	_, err := svc.ValidateSession(ctx, token)
	if err != ErrSessionExpired {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
	if !deleted {
		t.Error("expected session to be deleted")
	}
}

func TestAuthService_VerifyToken(t *testing.T) {
	sessions := &mockSessionRepo{
		getByTokenFn: func(ctx context.Context, tok string) (*domain.Session, error) {
			return &domain.Session{Token: tok, UserID: 5, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	users := &mockUserRepo{
		getByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
			return &domain.User{ID: id, Username: "anon-1", Anonymous: true}, nil
		},
	}
	svc := NewAuthService(users, sessions)

	id, err := svc.VerifyToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id.ID != "user-5" || !id.Anonymous || id.Token != "tok" {
		t.Errorf("unexpected identity %+v", id)
	}

	if _, err := NewAuthService(users, &mockSessionRepo{}).VerifyToken(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAuthService_WithSessionTTL(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var expires time.Time
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
			expires = expiresAt
			return nil
		},
	}
	svc := NewAuthService(&mockUserRepo{}, sessions).WithSessionTTL(2 * time.Hour)
	svc.now = func() time.Time { return now }

	if _, err := svc.SignInAnonymously(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !expires.Equal(now.Add(2 * time.Hour)) {
		t.Errorf("expected expiry %v, got %v", now.Add(2*time.Hour), expires)
	}
}

func TestAuthService_ValidateForwardAuth_ExistingUser(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{
				ID:       1,
				Username: "ssouser",
			}, nil
		},
	}

	sessions := &mockSessionRepo{}
	svc := NewAuthService(users, sessions)

	user, err := svc.ValidateForwardAuth(ctx, "ssouser")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Username != "ssouser" {
		t.Errorf("expected username 'ssouser', got %s", user.Username)
	}
}

func TestAuthService_ValidateForwardAuth_NewUser(t *testing.T) {
	ctx := context.Background()

	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			return nil, errors.New("not found")
		},
		createFn: func(ctx context.Context, username, passwordHash string, anonymous bool) (*domain.User, error) {
			return &domain.User{
				ID:       2,
				Username: username,
			}, nil
		},
	}

	sessions := &mockSessionRepo{}
	svc := NewAuthService(users, sessions)

	user, err := svc.ValidateForwardAuth(ctx, "newssouser")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.Username != "newssouser" {
		t.Errorf("expected username 'newssouser', got %s", user.Username)
	}
}

func TestAuthService_LoginWithUser_ProvisionRace(t *testing.T) {
	calls := 0
	users := &mockUserRepo{
		getByUsernameFn: func(ctx context.Context, username string) (*domain.User, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return &domain.User{ID: 8, Username: username}, nil
		},
		createFn: func(ctx context.Context, username, passwordHash string, anonymous bool) (*domain.User, error) {
			return nil, errors.New("duplicate key")
		},
	}
	svc := NewAuthService(users, &mockSessionRepo{})

	token, err := svc.LoginWithUser(context.Background(), "raced")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token == "" {
		t.Error("expected a session token")
	}
}
