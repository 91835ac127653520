package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lib/pq"

	"salesboard/internal/adapter/fanout"
	"salesboard/internal/domain"
	"salesboard/internal/log"
)

// ErrStoreClosed ends subscriptions still open when the store shuts down.
var ErrStoreClosed = errors.New("record store closed")

const recordColumns = "id, dm_count, ad_spend, sales_count, revenue, created_at"

// RecordStore persists dashboard records and streams changes through
// LISTEN/NOTIFY. A notification for a collection re-reads it in full.
type RecordStore struct {
	db     *DB
	feed   *fanout.Feed
	logger *log.Logger

	// refresh orders snapshot reads against new subscriptions.
	refresh sync.Mutex

	mu       sync.Mutex
	listener *pq.Listener
	done     chan struct{}
}

var _ domain.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a record store over db.
func NewRecordStore(db *DB, logger *log.Logger) *RecordStore {
	if logger == nil {
		logger = log.Nop()
	}
	return &RecordStore{
		db:     db,
		feed:   fanout.New(),
		logger: logger.WithComponent(log.ComponentStorage),
	}
}

// Create inserts a record with a server-assigned timestamp.
func (s *RecordStore) Create(ctx context.Context, path string, fields domain.RecordFields) (string, error) {
	var id int64
	err := s.db.sql.QueryRowContext(ctx,
		"INSERT INTO dashboard_records (collection, dm_count, ad_spend, sales_count, revenue) VALUES ($1, $2, $3, $4, $5) RETURNING id;",
		path, fields.DMCount, fields.AdSpend, fields.SalesCount, fields.Revenue,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// Delete removes a record. Unknown ids are ignored.
func (s *RecordStore) Delete(ctx context.Context, path, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	_, err = s.db.sql.ExecContext(ctx, "DELETE FROM dashboard_records WHERE collection=$1 AND id=$2;", path, n)
	return err
}

// Subscribe delivers the current contents of path, then a fresh snapshot
// after every change. A lost database connection ends every subscription.
func (s *RecordStore) Subscribe(ctx context.Context, path string) (domain.Subscription, error) {
	if err := s.listen(); err != nil {
		return nil, err
	}

	s.refresh.Lock()
	defer s.refresh.Unlock()

	records, err := s.list(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.feed.Subscribe(path, records), nil
}

// Close stops listening and ends every open subscription.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	l, done := s.listener, s.done
	s.listener, s.done = nil, nil
	s.mu.Unlock()

	s.feed.FailAll(ErrStoreClosed)
	if l == nil {
		return nil
	}
	err := l.Close()
	<-done
	return err
}

func (s *RecordStore) list(ctx context.Context, path string) ([]domain.Record, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM dashboard_records WHERE collection=$1 ORDER BY created_at, id;", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Record, 0)
	for rows.Next() {
		var (
			r         domain.Record
			id        int64
			createdAt time.Time
		)
		if err := rows.Scan(&id, &r.DMCount, &r.AdSpend, &r.SalesCount, &r.Revenue, &createdAt); err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		ts := createdAt.UTC()
		r.CreatedAt = &ts
		out = append(out, r)
	}
	return out, rows.Err()
}

// listen starts the notification listener on first use.
func (s *RecordStore) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	l := pq.NewListener(s.db.connStr, 10*time.Second, time.Minute, s.onListenerEvent)
	if err := l.Listen(notifyChannel); err != nil {
		_ = l.Close()
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	s.listener = l
	s.done = make(chan struct{})
	go s.dispatch(l, s.done)
	return nil
}

func (s *RecordStore) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		if err == nil {
			err = errors.New("database connection lost")
		}
		s.logger.Error("notification listener disconnected", log.FieldError, err)
		s.feed.FailAll(err)
	case pq.ListenerEventReconnected:
		s.logger.Info("notification listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn("notification listener reconnect failed", log.FieldError, err)
	}
}

func (s *RecordStore) dispatch(l *pq.Listener, done chan struct{}) {
	defer close(done)
	for n := range l.Notify {
		// nil signals a reconnect; subscriptions were already ended.
		if n == nil {
			continue
		}
		s.reload(n.Extra)
	}
}

func (s *RecordStore) reload(path string) {
	if s.feed.Len(path) == 0 {
		return
	}
	s.refresh.Lock()
	defer s.refresh.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	records, err := s.list(ctx, path)
	if err != nil {
		s.logger.Error("reloading collection", log.FieldCollection, path, log.FieldError, err)
		s.feed.Fail(path, err)
		return
	}
	s.feed.Publish(path, records)
}
