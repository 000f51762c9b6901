package audit

import (
	"context"
	"time"
)

// Store is the durable, append-only audit log. Implementations never update
// or delete records.
type Store interface {
	// Insert writes one new record
	Insert(ctx context.Context, record *Record) error

	// Query returns records matching filter, newest first, at most
	// filter.Limit of them
	Query(ctx context.Context, filter Filter) ([]*Record, error)

	// Get returns a single record or ErrNotFound
	Get(ctx context.Context, id string) (*Record, error)

	// Stats summarizes records matching filter; Limit is ignored
	Stats(ctx context.Context, filter Filter) (*Stats, error)

	// Scan streams every record created in [from, to), oldest first
	Scan(ctx context.Context, from, to time.Time, fn func(*Record) error) error
}
