// Package fanout delivers full-collection snapshots to in-process
// subscribers in publish order. A subscriber more than queueLimit snapshots
// behind skips to the latest one, which is complete on its own.
package fanout

import (
	"sync"

	"salesboard/internal/domain"
)

// queueLimit bounds the snapshots buffered per subscriber.
const queueLimit = 256

// Feed routes snapshots to the subscribers of each collection path.
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[*Sub]struct{}
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{subs: make(map[string]map[*Sub]struct{})}
}

// Subscribe registers a subscriber for path and queues initial as its first
// snapshot.
func (f *Feed) Subscribe(path string, initial []domain.Record) *Sub {
	s := &Sub{
		feed:   f,
		path:   path,
		out:    make(chan []domain.Record),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	f.mu.Lock()
	if f.subs[path] == nil {
		f.subs[path] = make(map[*Sub]struct{})
	}
	f.subs[path][s] = struct{}{}
	f.mu.Unlock()

	s.offer(initial)
	go s.run()
	return s
}

// Publish hands snapshot to every subscriber of path.
func (f *Feed) Publish(path string, snapshot []domain.Record) {
	for _, s := range f.subscribers(path) {
		s.offer(snapshot)
	}
}

// Fail ends every subscription of path with err.
func (f *Feed) Fail(path string, err error) {
	for _, s := range f.subscribers(path) {
		s.fail(err)
	}
}

// FailAll ends every subscription with err.
func (f *Feed) FailAll(err error) {
	f.mu.Lock()
	var all []*Sub
	for _, set := range f.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	f.mu.Unlock()
	for _, s := range all {
		s.fail(err)
	}
}

// Paths returns the collections that currently have subscribers.
func (f *Feed) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.subs))
	for p := range f.subs {
		paths = append(paths, p)
	}
	return paths
}

// Len returns the number of subscribers of path.
func (f *Feed) Len(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[path])
}

func (f *Feed) subscribers(path string) []*Sub {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := make([]*Sub, 0, len(f.subs[path]))
	for s := range f.subs[path] {
		subs = append(subs, s)
	}
	return subs
}

func (f *Feed) remove(s *Sub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set, ok := f.subs[s.path]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(f.subs, s.path)
		}
	}
}

// Sub is one subscription. It implements domain.Subscription.
type Sub struct {
	feed   *Feed
	path   string
	out    chan []domain.Record
	notify chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	queue [][]domain.Record
	err   error
	ended bool
}

var _ domain.Subscription = (*Sub)(nil)

// Snapshots implements domain.Subscription.
func (s *Sub) Snapshots() <-chan []domain.Record { return s.out }

// Err implements domain.Subscription.
func (s *Sub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements domain.Subscription. It is idempotent.
func (s *Sub) Close() error {
	s.end(nil)
	return nil
}

func (s *Sub) fail(err error) { s.end(err) }

func (s *Sub) end(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.err = err
	s.mu.Unlock()

	s.feed.remove(s)
	close(s.done)
}

func (s *Sub) offer(snapshot []domain.Record) {
	cp := make([]domain.Record, len(snapshot))
	copy(cp, snapshot)

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= queueLimit {
		s.queue = s.queue[:0]
	}
	s.queue = append(s.queue, cp)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Sub) run() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			snap := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- snap:
			case <-s.done:
				return
			}
		}
	}
}
