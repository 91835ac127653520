package domain

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one submitted metric entry. Records are immutable once created;
// the only mutation is deletion.
type Record struct {
	ID         string          `json:"id"`
	DMCount    int64           `json:"dmCount"`
	AdSpend    decimal.Decimal `json:"adSpend"`
	SalesCount int64           `json:"salesCount"`
	Revenue    decimal.Decimal `json:"revenue"`
	// CreatedAt is assigned by the store. It is nil while the write has not
	// been acknowledged yet.
	CreatedAt *time.Time `json:"createdAt"`
}

// Pending reports whether the server timestamp is still unresolved.
func (r Record) Pending() bool {
	return r.CreatedAt == nil
}

// RecordFields are the validated numeric fields of a record ready for
// persistence.
type RecordFields struct {
	DMCount    int64           `json:"dmCount"`
	AdSpend    decimal.Decimal `json:"adSpend"`
	SalesCount int64           `json:"salesCount"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// Snapshot is a complete, ordered, point-in-time materialization of all
// records in a collection.
type Snapshot struct {
	Seq     uint64
	Records []Record
}

// RecordStore is the port for the remote document store.
type RecordStore interface {
	// Create persists fields under path with a server-assigned timestamp and
	// returns the new record id.
	Create(ctx context.Context, path string, fields RecordFields) (string, error)
	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, path string, id string) error
	// Subscribe opens a live subscription delivering the full collection on
	// every change, starting with the current contents.
	Subscribe(ctx context.Context, path string) (Subscription, error)
}

// Subscription is a cancellable stream of full-collection snapshots.
type Subscription interface {
	// Snapshots is closed when the subscription ends, either through Close
	// or because the stream failed.
	Snapshots() <-chan []Record
	// Err returns the failure that ended the stream, or nil if it was closed.
	Err() error
	Close() error
}

// CollectionPath returns the identity-scoped collection holding dashboard
// records.
func CollectionPath(namespace, identity string) string {
	return namespace + "/users/" + identity + "/dashboard_data"
}

// SortRecords orders records ascending by creation time in place. Records
// with a pending timestamp sort as time zero; ties keep their store order.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return createdAtOrZero(records[i]).Before(createdAtOrZero(records[j]))
	})
}

func createdAtOrZero(r Record) time.Time {
	if r.CreatedAt == nil {
		return time.Time{}
	}
	return *r.CreatedAt
}
