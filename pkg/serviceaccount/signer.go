// Package serviceaccount implements the two-legged OAuth2 service-account
// flow: a self-signed RS256 assertion exchanged for a short-lived bearer
// token at the token endpoint.
package serviceaccount

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SpreadsheetsScope is the scope requested for every assertion
	SpreadsheetsScope = "https://www.googleapis.com/auth/spreadsheets"
	// DefaultTokenURL is the token endpoint and the assertion audience
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	// AssertionLifetime is fixed; the token endpoint rejects longer ones
	AssertionLifetime = time.Hour
)

// ErrInvalidKey is wrapped by every failure to parse the private key
var ErrInvalidKey = errors.New("invalid service account private key")

// Signer produces signed assertions for one service account. The key is
// parsed on every call so that a bad key surfaces as a per-attempt error.
type Signer struct {
	Email         string
	PrivateKeyPEM string
	Scope         string
	Audience      string

	// Now defaults to time.Now
	Now func() time.Time
}

// NewSigner returns a Signer for the spreadsheets scope and the default
// token endpoint
func NewSigner(email, privateKeyPEM string) *Signer {
	return &Signer{
		Email:         email,
		PrivateKeyPEM: privateKeyPEM,
		Scope:         SpreadsheetsScope,
		Audience:      DefaultTokenURL,
	}
}

// Sign returns a compact RS256 JWT
func (s *Signer) Sign() (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return SignAssertion(s.Email, s.PrivateKeyPEM, s.Scope, s.Audience, now())
}

// SignAssertion builds header {alg: RS256, typ: JWT} and claims
// {iss, scope, aud, iat, exp = iat + 1h}, signed with the PEM key. Literal
// "\n" sequences in the PEM, as found in single-line environment values,
// are turned into newlines first.
func SignAssertion(email, privateKeyPEM, scope, audience string, issuedAt time.Time) (string, error) {
	if email == "" {
		return "", fmt.Errorf("service account email is required")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(UnescapePEM(privateKeyPEM)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	iat := issuedAt.Unix()
	claims := jwt.MapClaims{
		"iss":   email,
		"scope": scope,
		"aud":   audience,
		"iat":   iat,
		"exp":   iat + int64(AssertionLifetime/time.Second),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}
	return signed, nil
}

// UnescapePEM replaces literal backslash-n pairs with newlines
func UnescapePEM(pem string) string {
	return strings.ReplaceAll(pem, `\n`, "\n")
}
