// Package contextkeys provides centralized context key definitions
//
// All context keys used across the service are defined here so that the
// producer and consumer of a value agree on a single key.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/studiodesk/pkg/contextkeys"
//	ctx = contextkeys.WithSession(ctx, session)
//	session, _ := ctx.Value(contextkeys.SessionKey).(*auth.Session)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *auth.Session
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: audit.Pipeline, audit.Reader
	// Type: *auth.Session
	SessionKey Key = "session"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Auth middleware after session verification
	// Used by: Logger
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// RequestMetadataKey contains audit.RequestMetadata
	// Set by: audit.MetadataMiddleware (pkg/audit/middleware.go)
	// Used by: audit.Pipeline when the caller supplies no metadata
	// Type: audit.RequestMetadata
	RequestMetadataKey Key = "request_metadata"
)

// WithSession adds the authenticated session to the context
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// WithRequestMetadata adds request metadata to the context
func WithRequestMetadata(ctx context.Context, metadata interface{}) context.Context {
	return context.WithValue(ctx, RequestMetadataKey, metadata)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
