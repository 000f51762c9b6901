package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_CanReadAuditLog(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleProjectManager, true},
		{RoleEmployee, false},
		{RoleClient, false},
		{Role(""), false},
		{Role("superuser"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.CanReadAuditLog())
		})
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Project_Manager ")
	assert.True(t, ok)
	assert.Equal(t, RoleProjectManager, role)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func TestSessionFromContext(t *testing.T) {
	_, ok := SessionFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithSession(context.Background(), &Session{UserID: "u1", Email: "u1@x.com"})
	session, ok := SessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", session.UserID)

	// a session without a user id is not an authenticated session
	ctx = WithSession(context.Background(), &Session{Email: "anon@x.com"})
	_, ok = SessionFromContext(ctx)
	assert.False(t, ok)
}
