package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/httputil"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

// AuthMiddleware verifies bearer tokens and stores the resulting session in
// the request context
type AuthMiddleware struct {
	verifier auth.SessionVerifier
	optional bool // If true, allow requests without auth
	logger   *observability.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier auth.SessionVerifier, optional bool, logger *observability.Logger) *AuthMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuthMiddleware{
		verifier: verifier,
		optional: optional,
		logger:   logger,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		session, err := m.verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Debug("bearer token rejected")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := auth.WithSession(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
