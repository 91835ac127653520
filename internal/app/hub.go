package app

import (
	"context"
	"errors"
	"sync"

	"salesboard/internal/domain"
	"salesboard/internal/log"
)

// HubDeps are the collaborators every dashboard opened by a Hub shares.
type HubDeps struct {
	Config     SessionConfig
	Identities domain.IdentityProvider
	Store      domain.RecordStore
	Renderer   domain.ChartRenderer
	Events     domain.EventPublisher
	Logger     *log.Logger
}

// Hub keeps at most one live dashboard per identity, shared by every
// client presenting a token for that identity.
type Hub struct {
	deps   HubDeps
	logger *log.Logger

	// open serializes Open so two clients of one identity cannot both
	// subscribe.
	open sync.Mutex

	mu         sync.Mutex
	byIdentity map[string]*Dashboard
	byToken    map[string]string
	closed     bool
}

// NewHub creates an empty hub.
func NewHub(deps HubDeps) *Hub {
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	return &Hub{
		deps:       deps,
		logger:     deps.Logger.WithComponent(log.ComponentHub),
		byIdentity: make(map[string]*Dashboard),
		byToken:    make(map[string]string),
	}
}

// Open returns the subscribed dashboard for token, creating it if needed.
// An empty token signs in anonymously and always yields a new identity; the
// returned identity carries the token to resume it. A known token is
// verified again on every call and forgotten once it no longer resolves.
func (h *Hub) Open(ctx context.Context, token string) (*Dashboard, domain.Identity, error) {
	h.open.Lock()
	defer h.open.Unlock()

	if d := h.lookup(token); d != nil {
		id, err := h.deps.Identities.AcquireIdentity(ctx, token)
		if err != nil {
			h.ReleaseToken(token)
			return nil, domain.Identity{}, asAuthError(err)
		}
		if id.ID == d.Session().Identity().ID {
			return d, id, nil
		}
		h.ReleaseToken(token)
	}

	session := NewSyncSession(h.deps.Config, h.deps.Identities, h.deps.Store, h.deps.Logger)
	id, err := session.Authenticate(ctx, token)
	if err != nil {
		session.Release()
		return nil, domain.Identity{}, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		session.Release()
		return nil, domain.Identity{}, &domain.NotReadyError{State: StateClosed.String()}
	}
	existing := h.byIdentity[id.ID]
	if existing != nil && existing.Session().State() == StateSubscribed {
		h.byToken[id.Token] = id.ID
		h.mu.Unlock()
		session.Release()
		return existing, id, nil
	}
	h.mu.Unlock()

	if existing != nil {
		// A failed dashboard is replaced by a fresh one.
		h.Release(id.ID)
	}

	d := NewDashboard(session, h.deps.Store, h.deps.Renderer, h.deps.Events, h.deps.Logger)
	if err := d.Subscribe(ctx); err != nil {
		d.Close()
		return nil, domain.Identity{}, err
	}

	h.mu.Lock()
	h.byIdentity[id.ID] = d
	h.byToken[id.Token] = id.ID
	h.mu.Unlock()

	h.logger.Info("dashboard opened", log.FieldIdentity, id.ID, "anonymous", id.Anonymous)
	return d, id, nil
}

// Lookup returns the live dashboard bound to token, if any.
func (h *Hub) Lookup(token string) (*Dashboard, bool) {
	d := h.lookup(token)
	return d, d != nil
}

func (h *Hub) lookup(token string) *Dashboard {
	if token == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	d := h.byIdentity[h.byToken[token]]
	if d == nil || d.Session().State() != StateSubscribed {
		return nil
	}
	return d
}

// Release closes the dashboard of identity and forgets every token bound
// to it.
func (h *Hub) Release(identity string) {
	h.mu.Lock()
	d := h.byIdentity[identity]
	delete(h.byIdentity, identity)
	for tok, id := range h.byToken {
		if id == identity {
			delete(h.byToken, tok)
		}
	}
	h.mu.Unlock()

	if d != nil {
		d.Close()
		h.logger.Info("dashboard released", log.FieldIdentity, identity)
	}
}

// ReleaseToken drops token. The dashboard is closed once no token refers
// to its identity anymore.
func (h *Hub) ReleaseToken(token string) {
	h.mu.Lock()
	identity, ok := h.byToken[token]
	delete(h.byToken, token)
	remaining := false
	for _, id := range h.byToken {
		if id == identity {
			remaining = true
			break
		}
	}
	h.mu.Unlock()

	if ok && !remaining {
		h.Release(identity)
	}
}

// Prune verifies every known token and releases those that no longer
// resolve, closing dashboards left without a token. It returns the number of
// tokens released.
func (h *Hub) Prune(ctx context.Context) int {
	h.mu.Lock()
	tokens := make([]string, 0, len(h.byToken))
	for tok := range h.byToken {
		tokens = append(tokens, tok)
	}
	h.mu.Unlock()

	released := 0
	for _, tok := range tokens {
		if _, err := h.deps.Identities.AcquireIdentity(ctx, tok); err == nil {
			continue
		}
		h.ReleaseToken(tok)
		released++
	}
	if released > 0 {
		h.logger.Info("pruned stale tokens", "released", released)
	}
	return released
}

// Len returns the number of open dashboards.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byIdentity)
}

// Close releases every dashboard. Open fails afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	dashboards := make([]*Dashboard, 0, len(h.byIdentity))
	for _, d := range h.byIdentity {
		dashboards = append(dashboards, d)
	}
	h.byIdentity = make(map[string]*Dashboard)
	h.byToken = make(map[string]string)
	h.mu.Unlock()

	for _, d := range dashboards {
		d.Close()
	}
	h.logger.Info("hub closed", "dashboards", len(dashboards))
}

func asAuthError(err error) error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &domain.AuthError{Err: err}
}
