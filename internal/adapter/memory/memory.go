// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"salesboard/internal/adapter/fanout"
	"salesboard/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu          sync.Mutex
	users       []*domain.User
	sessions    map[string]*domain.Session
	collections map[string][]domain.Record

	userIDCounter   int64
	recordIDCounter int64

	feed *fanout.Feed
	now  func() time.Time
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		sessions:    make(map[string]*domain.Session),
		collections: make(map[string][]domain.Record),
		feed:        fanout.New(),
		now:         time.Now,
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)
var _ domain.RecordStore = (*RecordStore)(nil)

// --- UserRepository ---

// GetByUsername retrieves a user by username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return u, nil
		}
	}
	// Return nil if not found
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, passwordHash string, anonymous bool) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, errors.New("user already exists")
		}
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		PasswordHash: passwordHash,
		Anonymous:    anonymous,
		CreatedAt:    db.now().UTC(),
	}
	db.users = append(db.users, u)
	return u, nil
}

// Count returns the total number of users.
func (db *DB) Count(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.users), nil
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessions[token] = &domain.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: r.db.now().UTC(),
	}
	return nil
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		if r.db.now().After(s.ExpiresAt) {
			delete(r.db.sessions, token)
			return nil, nil
		}
		return s, nil
	}
	return nil, nil
}

// Delete deletes a session.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sessions, token)
	return nil
}

// DeleteExpired deletes all expired sessions.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	for k, v := range r.db.sessions {
		if now.After(v.ExpiresAt) {
			delete(r.db.sessions, k)
		}
	}
	return nil
}

// --- RecordStore ---

// RecordStore keeps dashboard collections in memory and pushes every change
// to live subscribers.
type RecordStore struct {
	db *DB
	// ackDelay, when positive, delivers new records with a pending timestamp
	// first and resolves it after the delay.
	ackDelay time.Duration
}

// NewRecordStore creates a record store over db.
func (db *DB) NewRecordStore() *RecordStore {
	return &RecordStore{db: db}
}

// WithPendingWrites makes new records appear with an unresolved timestamp
// for delay before the server time is assigned.
func (s *RecordStore) WithPendingWrites(delay time.Duration) *RecordStore {
	s.ackDelay = delay
	return s
}

// Create adds a record and returns its id.
func (s *RecordStore) Create(ctx context.Context, path string, fields domain.RecordFields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	db := s.db
	db.mu.Lock()
	db.recordIDCounter++
	id := strconv.FormatInt(db.recordIDCounter, 10)
	rec := domain.Record{
		ID:         id,
		DMCount:    fields.DMCount,
		AdSpend:    fields.AdSpend,
		SalesCount: fields.SalesCount,
		Revenue:    fields.Revenue,
	}
	if s.ackDelay <= 0 {
		ts := db.now().UTC()
		rec.CreatedAt = &ts
	}
	db.collections[path] = append(db.collections[path], rec)
	db.publishLocked(path)
	db.mu.Unlock()

	if s.ackDelay > 0 {
		time.AfterFunc(s.ackDelay, func() { s.resolve(path, id) })
	}
	return id, nil
}

func (s *RecordStore) resolve(path, id string) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := range db.collections[path] {
		if db.collections[path][i].ID == id {
			ts := db.now().UTC()
			db.collections[path][i].CreatedAt = &ts
			db.publishLocked(path)
			return
		}
	}
}

// Delete removes a record. Removing an absent id is a no-op.
func (s *RecordStore) Delete(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	recs := db.collections[path]
	for i, r := range recs {
		if r.ID == id {
			db.collections[path] = append(recs[:i:i], recs[i+1:]...)
			db.publishLocked(path)
			break
		}
	}
	return nil
}

// Subscribe opens a live subscription on path. The current contents are
// delivered first.
func (s *RecordStore) Subscribe(ctx context.Context, path string) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.feed.Subscribe(path, db.snapshotLocked(path)), nil
}

// Disconnect ends every live subscription with err.
func (s *RecordStore) Disconnect(err error) {
	s.db.feed.FailAll(err)
}

// publishLocked pushes the current contents of path. Holding mu keeps
// deliveries in write order.
func (db *DB) publishLocked(path string) {
	db.feed.Publish(path, db.snapshotLocked(path))
}

func (db *DB) snapshotLocked(path string) []domain.Record {
	recs := db.collections[path]
	out := make([]domain.Record, len(recs))
	copy(out, recs)
	return out
}
