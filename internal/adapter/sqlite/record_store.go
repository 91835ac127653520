package sqlite

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"salesboard/internal/adapter/fanout"
	"salesboard/internal/domain"
)

// ErrStoreClosed ends subscriptions still open when the store shuts down.
var ErrStoreClosed = errors.New("record store closed")

// RecordStore persists records in SQLite. Changes made through it are
// pushed to subscribers in this process.
type RecordStore struct {
	db   *DB
	feed *fanout.Feed
	// mu orders writes with the snapshots they publish.
	mu sync.Mutex
}

var _ domain.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a record store over db.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db, feed: fanout.New()}
}

// Create inserts a record stamped with the current time.
func (s *RecordStore) Create(ctx context.Context, path string, fields domain.RecordFields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.sql.ExecContext(ctx,
		"INSERT INTO dashboard_records (collection, dm_count, ad_spend, sales_count, revenue, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		path, fields.DMCount, fields.AdSpend.String(), fields.SalesCount, fields.Revenue.String(), s.db.now().UnixNano(),
	)
	if err != nil {
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	s.publish(ctx, path)
	return strconv.FormatInt(id, 10), nil
}

// Delete removes a record. Unknown ids are ignored.
func (s *RecordStore) Delete(ctx context.Context, path, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.sql.ExecContext(ctx, "DELETE FROM dashboard_records WHERE collection = ? AND id = ?", path, n)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		s.publish(ctx, path)
	}
	return nil
}

// Subscribe delivers the current contents of path, then a fresh snapshot
// after every change.
func (s *RecordStore) Subscribe(ctx context.Context, path string) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.list(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.feed.Subscribe(path, records), nil
}

// Close ends every open subscription.
func (s *RecordStore) Close() error {
	s.feed.FailAll(ErrStoreClosed)
	return nil
}

// publish re-reads path for its subscribers. A failed read ends them.
func (s *RecordStore) publish(ctx context.Context, path string) {
	if s.feed.Len(path) == 0 {
		return
	}
	records, err := s.list(context.WithoutCancel(ctx), path)
	if err != nil {
		s.feed.Fail(path, err)
		return
	}
	s.feed.Publish(path, records)
}

func (s *RecordStore) list(ctx context.Context, path string) ([]domain.Record, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		"SELECT id, dm_count, ad_spend, sales_count, revenue, created_at FROM dashboard_records WHERE collection = ? ORDER BY created_at, id", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := make([]domain.Record, 0)
	for rows.Next() {
		var (
			r       domain.Record
			id      int64
			created int64
		)
		if err := rows.Scan(&id, &r.DMCount, &r.AdSpend, &r.SalesCount, &r.Revenue, &created); err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		ts := fromNanos(created)
		r.CreatedAt = &ts
		out = append(out, r)
	}
	return out, rows.Err()
}
