package app

import (
	"context"
	"strconv"
	"sync"
	"time"

	"salesboard/internal/domain"
)

// fakeSub is a subscription driven by the test.
type fakeSub struct {
	ch     chan []domain.Record
	once   sync.Once
	mu     sync.Mutex
	err    error
	closed bool
}

func newFakeSub() *fakeSub {
	return &fakeSub{ch: make(chan []domain.Record, 8)}
}

func (s *fakeSub) Snapshots() <-chan []domain.Record { return s.ch }

func (s *fakeSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSub) push(records ...domain.Record) { s.ch <- records }

func (s *fakeSub) failWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// fakeStore records calls and hands out fakeSubs.
type fakeStore struct {
	mu        sync.Mutex
	subs      []*fakeSub
	paths     []string
	created   []domain.RecordFields
	deleted   []string
	nextID    int
	createErr error
	deleteErr error
	subErr    error
}

func (s *fakeStore) Create(_ context.Context, path string, fields domain.RecordFields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.nextID++
	s.created = append(s.created, fields)
	return "rec-" + strconv.Itoa(s.nextID), nil
}

func (s *fakeStore) Delete(_ context.Context, path, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) Subscribe(_ context.Context, path string) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	sub := newFakeSub()
	s.subs = append(s.subs, sub)
	s.paths = append(s.paths, path)
	return sub, nil
}

func (s *fakeStore) lastSub() *fakeSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

func (s *fakeStore) subCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// staticIdentities maps tokens to identities; "" yields a fresh anonymous one.
type staticIdentities struct {
	mu     sync.Mutex
	byTok  map[string]string
	anonN  int
	failOn string
}

func (p *staticIdentities) AcquireIdentity(_ context.Context, token string) (domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if token != "" && token == p.failOn {
		return domain.Identity{}, &domain.AuthError{Err: ErrSessionExpired}
	}
	if token == "" {
		p.anonN++
		n := strconv.Itoa(p.anonN)
		return domain.Identity{ID: "anon-" + n, Anonymous: true, Token: "anon-token-" + n}, nil
	}
	if id, ok := p.byTok[token]; ok {
		return domain.Identity{ID: id, Token: token}, nil
	}
	return domain.Identity{}, &domain.AuthError{Err: ErrSessionNotFound}
}

// fakeChart tracks whether it was released.
type fakeChart struct {
	series   domain.ChartSeries
	mu       sync.Mutex
	released int
}

func (c *fakeChart) Release() {
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
}

func (c *fakeChart) releaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

type fakeRenderer struct {
	mu     sync.Mutex
	charts []*fakeChart
}

func (r *fakeRenderer) Render(series domain.ChartSeries) (domain.Chart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &fakeChart{series: series}
	r.charts = append(r.charts, c)
	return c, nil
}

func (r *fakeRenderer) all() []*fakeChart {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeChart(nil), r.charts...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.RecordEvent
	err    error
}

func (p *fakePublisher) PublishRecordEvent(_ context.Context, ev domain.RecordEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func at(minute int) *time.Time {
	t := time.Date(2026, 4, 1, 10, minute, 0, 0, time.UTC)
	return &t
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
