package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/studiodesk/pkg/database"
)

func TestSQLProfileStore_GetProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewSQLProfileStore(db, database.Postgres)
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, email, full_name, role FROM profiles WHERE id = \$1`).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "role"}).
				AddRow("u1", "u1@studio.test", "Una One", "project_manager"))

		profile, err := store.GetProfile(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, &Profile{UserID: "u1", Email: "u1@studio.test", FullName: "Una One", Role: RoleProjectManager}, profile)
	})

	t.Run("unknown role is least privileged", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, full_name, role FROM profiles").
			WithArgs("u2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "role"}).
				AddRow("u2", "u2@studio.test", "", "owner"))

		profile, err := store.GetProfile(context.Background(), "u2")
		require.NoError(t, err)
		assert.Equal(t, RoleClient, profile.Role)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, full_name, role FROM profiles").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "role"}))

		_, err := store.GetProfile(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, full_name, role FROM profiles").
			WithArgs("u3").
			WillReturnError(errors.New("connection reset"))

		_, err := store.GetProfile(context.Background(), "u3")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrProfileNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLProfileStore_NilDB(t *testing.T) {
	_, err := NewSQLProfileStore(nil, database.Postgres)
	assert.EqualError(t, err, "database connection is required")
}
