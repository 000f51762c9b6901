package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/studiodesk/pkg/database"
)

// ProfileStore looks up caller profiles by user id
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// SQLProfileStore reads the profiles table
type SQLProfileStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLProfileStore creates a profile store on db
func NewSQLProfileStore(db *sql.DB, dialect database.Dialect) (*SQLProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLProfileStore{db: db, dialect: dialect}, nil
}

// EnsureSchema creates the profiles table if it does not exist
func (s *SQLProfileStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			role VARCHAR(50) NOT NULL DEFAULT 'client'
		)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create profiles table: %w", err)
	}
	return nil
}

// GetProfile implements ProfileStore. Unknown role values map to RoleClient,
// the least privileged role.
func (s *SQLProfileStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	query := fmt.Sprintf("SELECT id, email, full_name, role FROM profiles WHERE id = %s", s.dialect.Placeholder(1))

	var (
		profile Profile
		role    string
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&profile.UserID, &profile.Email, &profile.FullName, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	parsed, ok := ParseRole(role)
	if !ok {
		parsed = RoleClient
	}
	profile.Role = parsed
	return &profile, nil
}

// UpsertProfile writes a profile. Used by seeding and tests; the hosted
// backend owns profiles in production.
func (s *SQLProfileStore) UpsertProfile(ctx context.Context, profile Profile) error {
	p := s.dialect.Placeholder
	query := fmt.Sprintf(`
		INSERT INTO profiles (id, email, full_name, role) VALUES (%s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, full_name = excluded.full_name, role = excluded.role`,
		p(1), p(2), p(3), p(4))
	if _, err := s.db.ExecContext(ctx, query, profile.UserID, profile.Email, profile.FullName, string(profile.Role)); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
