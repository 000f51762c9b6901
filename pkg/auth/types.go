package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/studiodesk/pkg/contextkeys"
)

// Role is a studio member's application role
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleEmployee       Role = "employee"
	RoleClient         Role = "client"
)

// ParseRole normalizes s into a known Role
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleProjectManager, RoleEmployee, RoleClient:
		return r, true
	default:
		return "", false
	}
}

// CanReadAuditLog reports whether the role may query the audit log
func (r Role) CanReadAuditLog() bool {
	return r == RoleAdmin || r == RoleProjectManager
}

// Session is the authenticated caller. It is produced by a SessionVerifier
// and never constructed from request input.
type Session struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Profile is a row of the profiles table
type Profile struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role"`
}

var (
	// ErrInvalidToken is returned for any token that fails verification
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrProfileNotFound is returned when no profile exists for a user id
	ErrProfileNotFound = errors.New("profile not found")
)

// WithSession stores the session in ctx
func WithSession(ctx context.Context, session *Session) context.Context {
	ctx = contextkeys.WithSession(ctx, session)
	if session != nil {
		ctx = contextkeys.WithUserID(ctx, session.UserID)
	}
	return ctx
}

// SessionFromContext returns the authenticated session, if any
func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(contextkeys.SessionKey).(*Session)
	if !ok || session == nil || session.UserID == "" {
		return nil, false
	}
	return session, true
}
