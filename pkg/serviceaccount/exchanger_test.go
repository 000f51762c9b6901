package serviceaccount

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchanger_Exchange(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, JWTBearerGrantType, r.PostForm.Get("grant_type"))
		assert.Equal(t, "signed.assertion.value", r.PostForm.Get("assertion"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ya29.token","token_type":"Bearer","expires_in":3599}`))
	}))
	defer server.Close()

	exchanger := NewExchanger(server.URL, nil)
	token, err := exchanger.Exchange(context.Background(), "signed.assertion.value")
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(3599*time.Second), token.Expiry, 5*time.Second)

	// no caching: a second call hits the endpoint again
	_, err = exchanger.Exchange(context.Background(), "signed.assertion.value")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExchanger_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"non-2xx", http.StatusBadRequest, `{"error":"invalid_grant"}`, http.StatusBadRequest},
		{"server error", http.StatusInternalServerError, "oops", http.StatusInternalServerError},
		{"malformed body", http.StatusOK, "<html>", http.StatusOK},
		{"missing access token", http.StatusOK, `{"token_type":"Bearer"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewExchanger(server.URL, nil).Exchange(context.Background(), "a.b.c")
			require.Error(t, err)

			var authErr *ExternalAuthError
			require.True(t, errors.As(err, &authErr))
			assert.Equal(t, tt.wantStatus, authErr.StatusCode)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retries")
		})
	}
}

func TestExchanger_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewExchanger(url, nil).Exchange(context.Background(), "a.b.c")
	var authErr *ExternalAuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 0, authErr.StatusCode)
}

func TestExchanger_TokenSource(t *testing.T) {
	_, pemKey := generateKey(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("assertion"))
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer"}`))
	}))
	defer server.Close()

	ts := NewExchanger(server.URL, nil).TokenSource(context.Background(), NewSigner("mirror@studio.iam.test", pemKey))
	token, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)

	bad := NewExchanger(server.URL, nil).TokenSource(context.Background(), NewSigner("mirror@studio.iam.test", "garbage"))
	_, err = bad.Token()
	assert.ErrorIs(t, err, ErrInvalidKey)
}
