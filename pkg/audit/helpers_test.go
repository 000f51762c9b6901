package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/database"
)

// memoryProfiles is a map-backed auth.ProfileStore
type memoryProfiles map[string]auth.Profile

func (m memoryProfiles) GetProfile(ctx context.Context, userID string) (*auth.Profile, error) {
	profile, ok := m[userID]
	if !ok {
		return nil, auth.ErrProfileNotFound
	}
	return &profile, nil
}

var testProfiles = memoryProfiles{
	"admin-1":  {UserID: "admin-1", Email: "admin@studio.test", Role: auth.RoleAdmin},
	"pm-1":     {UserID: "pm-1", Email: "pm@studio.test", Role: auth.RoleProjectManager},
	"emp-1":    {UserID: "emp-1", Email: "emp@studio.test", Role: auth.RoleEmployee},
	"client-1": {UserID: "client-1", Email: "client@studio.test", Role: auth.RoleClient},
}

func sessionCtx(userID, email string) context.Context {
	return auth.WithSession(context.Background(), &auth.Session{UserID: userID, Email: email})
}

// newSQLiteStore returns a store on a private in-memory database
func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, dialect, err := database.Open(context.Background(), database.Config{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db, dialect)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

// steppingClock advances by step on every call
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	}
}

// recordingSyncer captures synced records
type recordingSyncer struct {
	mu      sync.Mutex
	records []Record
	roles   []auth.Role
}

func (s *recordingSyncer) Sync(record Record, role auth.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	s.roles = append(s.roles, role)
}

func (s *recordingSyncer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
