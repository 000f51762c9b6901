package mirror

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/studiodesk/pkg/serviceaccount"
)

func generatePEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// fakeGoogle serves the token and sheets append endpoints
type fakeGoogle struct {
	t           *testing.T
	key         *rsa.PrivateKey
	appendCode  int
	tokenCode   int
	mu          sync.Mutex
	calls       []string
	rows        [][]interface{}
	paths       []string
	authHeaders []string
	server      *httptest.Server
}

func newFakeGoogle(t *testing.T, key *rsa.PrivateKey) *fakeGoogle {
	f := &fakeGoogle{t: t, key: key, appendCode: http.StatusOK, tokenCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/v4/spreadsheets/", f.append)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGoogle) config(pemKey string) SheetConfig {
	return SheetConfig{
		SheetID:             "sheet-123",
		ServiceAccountEmail: "mirror@studio.iam.test",
		PrivateKeyPEM:       pemKey,
		TokenURL:            f.server.URL + "/token",
		SheetsBaseURL:       f.server.URL,
	}
}

func (f *fakeGoogle) token(w http.ResponseWriter, r *http.Request) {
	f.record("token")
	body, _ := io.ReadAll(r.Body)
	form, err := url.ParseQuery(string(body))
	assert.NoError(f.t, err)
	assert.Equal(f.t, serviceaccount.JWTBearerGrantType, form.Get("grant_type"))

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(form.Get("assertion"), claims, func(*jwt.Token) (interface{}, error) {
		return &f.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithAudience(f.server.URL+"/token"))
	assert.NoError(f.t, err)
	assert.Equal(f.t, "mirror@studio.iam.test", claims["iss"])

	if f.tokenCode != http.StatusOK {
		w.WriteHeader(f.tokenCode)
		w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"access_token":"ya29.test","token_type":"Bearer","expires_in":3600}`))
}

func (f *fakeGoogle) append(w http.ResponseWriter, r *http.Request) {
	f.record("append")
	var payload struct {
		Values [][]interface{} `json:"values"`
	}
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&payload))

	f.mu.Lock()
	f.rows = append(f.rows, payload.Values...)
	f.paths = append(f.paths, r.URL.EscapedPath()+"?"+r.URL.RawQuery)
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.mu.Unlock()

	w.WriteHeader(f.appendCode)
	w.Write([]byte(`{}`))
}

func (f *fakeGoogle) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeGoogle) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
