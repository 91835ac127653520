package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"salesboard/internal/domain"
	"salesboard/internal/log"
)

// SessionState is the lifecycle state of a SyncSession.
type SessionState int

// Session states. Error is reached from Authenticating or Subscribed and is
// only left by authenticating again. Closed is terminal.
const (
	StateUninitialized SessionState = iota
	StateAuthenticating
	StateReady
	StateSubscribed
	StateError
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig is the store configuration a session needs before it can
// authenticate.
type SessionConfig struct {
	// Namespace prefixes every collection path.
	Namespace string
}

func (c SessionConfig) validate() error {
	switch {
	case c.Namespace == "":
		return errors.New("store namespace is not set")
	case strings.ContainsAny(c.Namespace, "/ \t\n"):
		return errors.New("store namespace must be a single path segment")
	}
	return nil
}

// SnapshotHandler receives every ordered snapshot of the subscribed
// collection.
type SnapshotHandler func(domain.Snapshot)

// FailureHandler receives the error that moved a subscribed session into
// the error state.
type FailureHandler func(error)

// SyncSession owns one identity and at most one live subscription to that
// identity's collection.
type SyncSession struct {
	cfg        SessionConfig
	identities domain.IdentityProvider
	store      domain.RecordStore
	logger     *log.Logger

	// ops serializes Authenticate, Subscribe and Release.
	ops sync.Mutex

	mu       sync.Mutex
	state    SessionState
	identity domain.Identity
	err      error
	sub      domain.Subscription
	pumpDone chan struct{}
	seq      uint64
}

// NewSyncSession creates an uninitialized session.
func NewSyncSession(cfg SessionConfig, identities domain.IdentityProvider, store domain.RecordStore, logger *log.Logger) *SyncSession {
	if logger == nil {
		logger = log.Nop()
	}
	return &SyncSession{
		cfg:        cfg,
		identities: identities,
		store:      store,
		logger:     logger.WithComponent(log.ComponentSession),
	}
}

// State returns the current lifecycle state.
func (s *SyncSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the acquired identity, zero before authentication.
func (s *SyncSession) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Err returns the error that put the session in the error state.
func (s *SyncSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CollectionPath returns the identity-scoped collection path, or "" before
// authentication.
func (s *SyncSession) CollectionPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.ID == "" {
		return ""
	}
	return domain.CollectionPath(s.cfg.Namespace, s.identity.ID)
}

// Authenticate acquires an identity. If the session is already subscribed
// for a different identity, that subscription is released first.
func (s *SyncSession) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return domain.Identity{}, &domain.NotReadyError{State: StateClosed.String()}
	}
	prev := s.identity
	wasSubscribed := s.state == StateSubscribed
	if !wasSubscribed {
		s.state = StateAuthenticating
	}
	s.mu.Unlock()

	if err := s.cfg.validate(); err != nil {
		return domain.Identity{}, s.fail(&domain.ConfigError{Err: err})
	}

	id, err := s.identities.AcquireIdentity(ctx, token)
	if err != nil {
		var authErr *domain.AuthError
		if !errors.As(err, &authErr) {
			err = &domain.AuthError{Err: err}
		}
		s.releaseSubscription()
		return domain.Identity{}, s.fail(err)
	}

	if wasSubscribed && prev.ID == id.ID {
		s.mu.Lock()
		s.identity = id
		s.mu.Unlock()
		return id, nil
	}
	s.releaseSubscription()

	s.mu.Lock()
	s.identity = id
	s.state = StateReady
	s.err = nil
	s.mu.Unlock()

	s.logger.Info("identity acquired", log.FieldIdentity, id.ID, "anonymous", id.Anonymous)
	return id, nil
}

// Subscribe opens the live subscription for the acquired identity. Every
// snapshot is delivered to onSnapshot with records sorted by creation time,
// pending ones first. If the stream later fails, the session moves to the
// error state and onFailure receives a domain.SubscriptionError; there is
// no automatic reconnect.
//
// ctx only bounds opening the subscription. Calling Subscribe while already
// subscribed is a no-op.
func (s *SyncSession) Subscribe(ctx context.Context, onSnapshot SnapshotHandler, onFailure FailureHandler) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()
	state := s.state
	path := ""
	if s.identity.ID != "" {
		path = domain.CollectionPath(s.cfg.Namespace, s.identity.ID)
	}
	s.mu.Unlock()

	switch state {
	case StateSubscribed:
		return nil
	case StateReady:
	default:
		return &domain.NotReadyError{State: state.String()}
	}

	sub, err := s.store.Subscribe(ctx, path)
	if err != nil {
		return s.fail(&domain.SubscriptionError{Err: err})
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.sub = sub
	s.pumpDone = done
	s.state = StateSubscribed
	s.mu.Unlock()

	s.logger.Info("subscribed", log.FieldCollection, path)
	go s.pump(sub, done, onSnapshot, onFailure)
	return nil
}

// Start authenticates then subscribes.
func (s *SyncSession) Start(ctx context.Context, token string, onSnapshot SnapshotHandler, onFailure FailureHandler) (domain.Identity, error) {
	id, err := s.Authenticate(ctx, token)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := s.Subscribe(ctx, onSnapshot, onFailure); err != nil {
		return id, err
	}
	return id, nil
}

// Release cancels the live subscription and closes the session. It waits
// for in-flight snapshot delivery to finish, so it must not be called from
// a SnapshotHandler. Release is idempotent.
func (s *SyncSession) Release() {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.releaseSubscription()

	s.mu.Lock()
	if s.state != StateClosed {
		s.state = StateClosed
		s.logger.Debug("session released", log.FieldIdentity, s.identity.ID)
	}
	s.mu.Unlock()
}

func (s *SyncSession) pump(sub domain.Subscription, done chan struct{}, onSnapshot SnapshotHandler, onFailure FailureHandler) {
	defer close(done)

	for records := range sub.Snapshots() {
		ordered := make([]domain.Record, len(records))
		copy(ordered, records)
		domain.SortRecords(ordered)

		s.mu.Lock()
		if s.sub != sub {
			s.mu.Unlock()
			return
		}
		s.seq++
		snap := domain.Snapshot{Seq: s.seq, Records: ordered}
		s.mu.Unlock()

		if onSnapshot != nil {
			onSnapshot(snap)
		}
	}

	streamErr := sub.Err()
	if streamErr == nil {
		return
	}

	s.mu.Lock()
	if s.sub != sub {
		// Released concurrently.
		s.mu.Unlock()
		return
	}
	s.sub = nil
	s.pumpDone = nil
	failure := &domain.SubscriptionError{Err: streamErr}
	s.state = StateError
	s.err = failure
	s.mu.Unlock()

	_ = sub.Close()
	s.logger.Error("subscription failed", log.FieldError, streamErr)
	if onFailure != nil {
		onFailure(failure)
	}
}

// releaseSubscription closes the current subscription, if any, and waits
// for its pump to exit. Caller holds ops.
func (s *SyncSession) releaseSubscription() {
	s.mu.Lock()
	sub, done := s.sub, s.pumpDone
	s.sub, s.pumpDone = nil, nil
	if s.state == StateSubscribed {
		s.state = StateReady
	}
	s.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		s.logger.Warn("closing subscription", log.FieldError, err)
	}
	if done != nil {
		<-done
	}
}

func (s *SyncSession) fail(err error) error {
	s.mu.Lock()
	s.state = StateError
	s.err = err
	s.mu.Unlock()
	s.logger.Warn("session error", log.FieldError, err)
	return err
}
