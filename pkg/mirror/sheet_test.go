package mirror

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/serviceaccount"
	"github.com/platinummonkey/studiodesk/pkg/sheets"
)

func sampleRecord() audit.Record {
	return audit.Record{
		ID:         "r1",
		UserID:     "u1",
		UserEmail:  "u1@studio.test",
		Action:     audit.ActionDelete,
		EntityType: audit.EntityTask,
		EntityID:   "t1",
		Status:     audit.StatusSuccess,
		CreatedAt:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSheetMirror_Mirror(t *testing.T) {
	key, pemKey := generatePEM(t)
	google := newFakeGoogle(t, key)
	m := NewSheetMirror(google.config(pemKey), nil)

	require.NoError(t, m.Mirror(context.Background(), sampleRecord(), auth.RoleAdmin))

	assert.Equal(t, []string{"token", "append"}, google.callLog())
	require.Len(t, google.rows, 1)
	assert.Len(t, google.rows[0], RowWidth)
	assert.Equal(t, "delete", google.rows[0][3])
	assert.Equal(t, "success", google.rows[0][7])
	assert.Equal(t, "Bearer ya29.test", google.authHeaders[0])
	assert.Contains(t, google.paths[0], "/v4/spreadsheets/sheet-123/values/AuditLog")
	assert.Contains(t, google.paths[0], ":append?valueInputOption=RAW&insertDataOption=INSERT_ROWS")
}

func TestSheetMirror_StageErrors(t *testing.T) {
	key, pemKey := generatePEM(t)

	t.Run("sign", func(t *testing.T) {
		google := newFakeGoogle(t, key)
		m := NewSheetMirror(google.config("not a key"), nil)

		err := m.Mirror(context.Background(), sampleRecord(), auth.RoleAdmin)
		var merr *Error
		require.True(t, errors.As(err, &merr))
		assert.Equal(t, StageSign, merr.Stage)
		assert.ErrorIs(t, err, serviceaccount.ErrInvalidKey)
		assert.Empty(t, google.callLog())
	})

	t.Run("token", func(t *testing.T) {
		google := newFakeGoogle(t, key)
		google.tokenCode = http.StatusBadRequest
		m := NewSheetMirror(google.config(pemKey), nil)

		err := m.Mirror(context.Background(), sampleRecord(), auth.RoleAdmin)
		var authErr *serviceaccount.ExternalAuthError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
		assert.Equal(t, []string{"token"}, google.callLog())
	})

	t.Run("append", func(t *testing.T) {
		google := newFakeGoogle(t, key)
		google.appendCode = http.StatusForbidden
		m := NewSheetMirror(google.config(pemKey), nil)

		err := m.Mirror(context.Background(), sampleRecord(), auth.RoleAdmin)
		var sinkErr *sheets.ExternalSinkError
		require.True(t, errors.As(err, &sinkErr))
		assert.Equal(t, http.StatusForbidden, sinkErr.StatusCode)
		assert.Equal(t, []string{"token", "append"}, google.callLog())
	})
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, "success", outcomeFor(nil))
	assert.Equal(t, "sign_error", outcomeFor(&Error{Stage: StageSign, Err: errors.New("x")}))
	assert.Equal(t, "token_error", outcomeFor(&Error{Stage: StageToken, Err: errors.New("x")}))
	assert.Equal(t, "sink_error", outcomeFor(&Error{Stage: StageAppend, Err: errors.New("x")}))
	assert.Equal(t, "sink_error", outcomeFor(errors.New("other")))
}
