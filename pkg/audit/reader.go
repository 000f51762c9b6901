package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

const (
	// DefaultQueryLimit applies when the caller asks for no limit
	DefaultQueryLimit = 100
	// MaxQueryLimit caps every query regardless of the requested limit
	MaxQueryLimit = 1000
)

// EffectiveLimit returns min(requested, MaxQueryLimit), or
// DefaultQueryLimit when requested is not positive
func EffectiveLimit(requested int) int {
	if requested <= 0 {
		return DefaultQueryLimit
	}
	if requested > MaxQueryLimit {
		return MaxQueryLimit
	}
	return requested
}

// Reader serves the audit log to callers whose role can read it
type Reader struct {
	store    Store
	profiles auth.ProfileStore
	metrics  *observability.Metrics
}

// NewReader creates a reader. metrics may be nil.
func NewReader(store Store, profiles auth.ProfileStore, metrics *observability.Metrics) (*Reader, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	return &Reader{store: store, profiles: profiles, metrics: metrics}, nil
}

// Query returns matching records newest first. The limit is clamped with
// EffectiveLimit; there is no offset.
func (r *Reader) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	if err := r.authorize(ctx); err != nil {
		r.count(err)
		return nil, err
	}

	filter.Limit = EffectiveLimit(filter.Limit)
	records, err := r.store.Query(ctx, filter)
	r.count(err)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns one record by id
func (r *Reader) Get(ctx context.Context, id string) (*Record, error) {
	if err := r.authorize(ctx); err != nil {
		return nil, err
	}
	return r.store.Get(ctx, id)
}

// Stats summarizes matching records
func (r *Reader) Stats(ctx context.Context, filter Filter) (*Stats, error) {
	if err := r.authorize(ctx); err != nil {
		return nil, err
	}
	return r.store.Stats(ctx, filter)
}

// authorize requires a session whose profile role can read the audit log.
// A missing profile is treated as no role.
func (r *Reader) authorize(ctx context.Context) error {
	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	profile, err := r.profiles.GetProfile(ctx, session.UserID)
	if errors.Is(err, auth.ErrProfileNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("failed to resolve caller role: %w", err)
	}
	if !profile.Role.CanReadAuditLog() {
		return ErrForbidden
	}
	return nil
}

func (r *Reader) count(err error) {
	if r.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotAuthenticated):
		outcome = "unauthenticated"
	case errors.Is(err, ErrForbidden):
		outcome = "forbidden"
	default:
		outcome = "error"
	}
	r.metrics.AuditQueriesTotal.WithLabelValues(outcome).Inc()
}
