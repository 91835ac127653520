package firebase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"salesboard/internal/domain"
	"salesboard/internal/log"
)

// DefaultRoot is the top-level collection holding every namespace.
const DefaultRoot = "artifacts"

// Document field names.
const (
	fieldDMCount    = "dmCount"
	fieldAdSpend    = "adSpend"
	fieldSalesCount = "salesCount"
	fieldRevenue    = "revenue"
	fieldCreatedAt  = "createdAt"
)

// RecordStore keeps records in Firestore under {root}/{collection path}.
type RecordStore struct {
	client *firestore.Client
	root   string
	logger *log.Logger
}

var _ domain.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a record store rooted at root, or DefaultRoot if
// root is empty.
func (c *Client) NewRecordStore(root string, logger *log.Logger) *RecordStore {
	if root == "" {
		root = DefaultRoot
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &RecordStore{client: c.firestore, root: root, logger: logger.WithComponent(log.ComponentStorage)}
}

func (s *RecordStore) collection(path string) *firestore.CollectionRef {
	return s.client.Collection(s.root + "/" + path)
}

// Create adds a document with a server timestamp.
func (s *RecordStore) Create(ctx context.Context, path string, fields domain.RecordFields) (string, error) {
	ref, _, err := s.collection(path).Add(ctx, encodeFields(fields))
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// Delete removes a document. Firestore treats absent documents as deleted.
func (s *RecordStore) Delete(ctx context.Context, path, id string) error {
	_, err := s.collection(path).Doc(id).Delete(ctx)
	return err
}

// Subscribe listens to the collection. The stream outlives ctx and ends on
// Close or on the first listener error.
func (s *RecordStore) Subscribe(ctx context.Context, path string) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	it := s.collection(path).Snapshots(streamCtx)

	sub := &subscription{
		out:    make(chan []domain.Record),
		it:     it,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(s.logger.With(log.FieldCollection, path))
	return sub, nil
}

type subscription struct {
	out    chan []domain.Record
	it     *firestore.QuerySnapshotIterator
	cancel context.CancelFunc
	done   chan struct{}

	once   sync.Once
	mu     sync.Mutex
	err    error
	closed bool
}

func (s *subscription) Snapshots() <-chan []domain.Record { return s.out }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.cancel()
		s.it.Stop()
	})
	return nil
}

func (s *subscription) run(logger *log.Logger) {
	defer close(s.out)
	for {
		qs, err := s.it.Next()
		if err != nil {
			s.finish(err, logger)
			return
		}
		docs, err := qs.Documents.GetAll()
		if err != nil {
			s.finish(err, logger)
			return
		}
		records := make([]domain.Record, 0, len(docs))
		for _, doc := range docs {
			records = append(records, decodeRecord(doc.Ref.ID, doc.Data()))
		}
		select {
		case s.out <- records:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) finish(err error, logger *log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || errors.Is(err, iterator.Done) {
		return
	}
	s.err = err
	logger.Error("snapshot listener failed", log.FieldError, err)
}

func encodeFields(f domain.RecordFields) map[string]any {
	return map[string]any{
		fieldDMCount:    f.DMCount,
		fieldAdSpend:    f.AdSpend.InexactFloat64(),
		fieldSalesCount: f.SalesCount,
		fieldRevenue:    f.Revenue.InexactFloat64(),
		fieldCreatedAt:  firestore.ServerTimestamp,
	}
}

// decodeRecord tolerates missing, mistyped or out-of-range fields, reading
// them as zero.
func decodeRecord(id string, data map[string]any) domain.Record {
	r := domain.Record{
		ID:         id,
		DMCount:    domain.ParseCount(rawNumber(data[fieldDMCount])),
		AdSpend:    domain.ParseAmount(rawNumber(data[fieldAdSpend])),
		SalesCount: domain.ParseCount(rawNumber(data[fieldSalesCount])),
		Revenue:    domain.ParseAmount(rawNumber(data[fieldRevenue])),
	}
	if ts, ok := data[fieldCreatedAt].(time.Time); ok {
		ts = ts.UTC()
		r.CreatedAt = &ts
	}
	return r
}

// rawNumber renders a stored field as text for the domain parsers.
func rawNumber(v any) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case string:
		return n
	default:
		return ""
	}
}
