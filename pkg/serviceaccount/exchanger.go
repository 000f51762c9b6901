package serviceaccount

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// JWTBearerGrantType is the RFC 7523 grant type
const JWTBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// maxErrorBody bounds how much of a failed response is kept for logging
const maxErrorBody = 4096

// Exchanger trades a signed assertion for an access token. Every call is a
// single POST; tokens are neither retried nor cached.
type Exchanger struct {
	tokenURL string
	client   *http.Client
}

// NewExchanger creates an exchanger for tokenURL. A nil client gets a 10s
// timeout.
func NewExchanger(tokenURL string, client *http.Client) *Exchanger {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Exchanger{tokenURL: tokenURL, client: client}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Exchange POSTs the assertion and decodes the token response
func (e *Exchanger) Exchange(ctx context.Context, assertion string) (*oauth2.Token, error) {
	form := url.Values{
		"grant_type": {JWTBearerGrantType},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ExternalAuthError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ExternalAuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ExternalAuthError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &ExternalAuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("malformed token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &ExternalAuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("token response has no access_token")}
	}

	token := &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}

// TokenSource returns an oauth2.TokenSource that signs and exchanges a
// fresh assertion on every Token call
func (e *Exchanger) TokenSource(ctx context.Context, signer *Signer) oauth2.TokenSource {
	return &assertionTokenSource{ctx: ctx, signer: signer, exchanger: e}
}

type assertionTokenSource struct {
	ctx       context.Context
	signer    *Signer
	exchanger *Exchanger
}

func (s *assertionTokenSource) Token() (*oauth2.Token, error) {
	assertion, err := s.signer.Sign()
	if err != nil {
		return nil, err
	}
	return s.exchanger.Exchange(s.ctx, assertion)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
