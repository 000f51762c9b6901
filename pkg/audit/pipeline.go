package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/contextkeys"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

// Syncer receives every committed record for best-effort replication.
// Sync must not block on network I/O and has no way to report failure.
type Syncer interface {
	Sync(record Record, role auth.Role)
}

// Pipeline validates, attributes and persists audit events, then hands the
// committed record to the Syncer
type Pipeline struct {
	store    Store
	profiles auth.ProfileStore
	syncer   Syncer
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
	newID    func() string
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithSyncer sets the replication target. Without one, nothing is mirrored.
func WithSyncer(syncer Syncer) PipelineOption {
	return func(p *Pipeline) { p.syncer = syncer }
}

// WithLogger sets the pipeline logger
func WithLogger(logger *observability.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics enables Prometheus counters
func WithMetrics(metrics *observability.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = metrics }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline writing to store and resolving caller
// emails through profiles
func NewPipeline(store Store, profiles auth.ProfileStore, opts ...PipelineOption) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}

	p := &Pipeline{
		store:    store,
		profiles: profiles,
		logger:   observability.NopLogger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Log records event for the session in ctx, using request metadata stored
// in ctx by MetadataMiddleware when present
func (p *Pipeline) Log(ctx context.Context, event *Event) (*Record, error) {
	return p.LogWithMetadata(ctx, event, nil)
}

// LogWithMetadata records event with explicit request metadata. Errors are
// returned, never panicked: ErrInvalidEvent (as *ValidationError),
// ErrNotAuthenticated, or a wrapped store failure. Nothing is written on
// error. Mirror failures are never reported here.
func (p *Pipeline) LogWithMetadata(ctx context.Context, event *Event, meta *RequestMetadata) (*Record, error) {
	entry := p.now()

	sanitized, err := Sanitize(event)
	if err != nil {
		p.count(event, "invalid")
		return nil, err
	}

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		p.count(event, "unauthenticated")
		return nil, ErrNotAuthenticated
	}

	email, role := p.resolveCaller(ctx, session)
	metadata := resolveMetadata(ctx, meta)

	record := &Record{
		ID:               p.newID(),
		UserID:           session.UserID,
		UserEmail:        email,
		Action:           sanitized.Action,
		EntityType:       sanitized.EntityType,
		EntityID:         sanitized.EntityID,
		EntityName:       sanitized.EntityName,
		OldValues:        rawJSON(sanitized.OldValues),
		NewValues:        rawJSON(sanitized.NewValues),
		Details:          detailsJSON(sanitized.Details, sanitized.DetailsTruncated),
		DetailsTruncated: sanitized.DetailsTruncated,
		Status:           sanitized.Status,
		ErrorMessage:     sanitized.ErrorMessage,
		IPAddress:        metadata.IPAddress,
		UserAgent:        metadata.UserAgent,
	}

	writeAt := p.now()
	if sanitized.DurationMs != nil {
		record.DurationMs = *sanitized.DurationMs
	} else {
		record.DurationMs = writeAt.Sub(entry).Milliseconds()
	}
	record.CreatedAt = writeAt.UTC().Truncate(time.Microsecond)

	if err := p.store.Insert(ctx, record); err != nil {
		p.count(event, "store_error")
		p.logger.WithContext(ctx).WithError(err).
			WithField("action", string(record.Action)).
			WithField("entity_type", string(record.EntityType)).
			Error("failed to persist audit record")
		return nil, fmt.Errorf("failed to persist audit record: %w", err)
	}
	if p.metrics != nil {
		p.metrics.AuditWriteDuration.Observe(time.Since(writeAt).Seconds())
	}
	p.count(event, "persisted")

	if p.syncer != nil {
		p.syncer.Sync(*record, role)
	}

	return record, nil
}

// LogBestEffort records event and only logs a failure. Business operations
// use it so that their own outcome never depends on audit logging.
func (p *Pipeline) LogBestEffort(ctx context.Context, event *Event) {
	if _, err := p.Log(ctx, event); err != nil {
		log := p.logger.WithContext(ctx).WithError(err)
		if event != nil {
			log = log.WithField("action", string(event.Action)).WithField("entity_type", string(event.EntityType))
		}
		log.Warn("audit event not recorded")
	}
}

// resolveCaller prefers the profile email over the session email. The
// role is only used for the mirror row.
func (p *Pipeline) resolveCaller(ctx context.Context, session *auth.Session) (string, auth.Role) {
	profile, err := p.profiles.GetProfile(ctx, session.UserID)
	if err != nil {
		if !errors.Is(err, auth.ErrProfileNotFound) {
			p.logger.WithContext(ctx).WithError(err).Warn("profile lookup failed, using session email")
		}
		return session.Email, ""
	}
	if profile.Email == "" {
		return session.Email, profile.Role
	}
	return profile.Email, profile.Role
}

func resolveMetadata(ctx context.Context, meta *RequestMetadata) RequestMetadata {
	var resolved RequestMetadata
	if meta != nil {
		resolved = *meta
	} else if fromCtx, ok := ctx.Value(contextkeys.RequestMetadataKey).(RequestMetadata); ok {
		resolved = fromCtx
	}
	if resolved.IPAddress == "" {
		resolved.IPAddress = UnknownMetadata
	}
	if resolved.UserAgent == "" {
		resolved.UserAgent = UnknownMetadata
	}
	return resolved
}

func (p *Pipeline) count(event *Event, outcome string) {
	if p.metrics == nil {
		return
	}
	// rejected events may carry arbitrary values; keep label cardinality bounded
	action, entityType := "", ""
	if event != nil && outcome != "invalid" {
		action, entityType = string(event.Action), string(event.EntityType)
	}
	p.metrics.AuditEventsTotal.WithLabelValues(action, entityType, outcome).Inc()
}
