// Package sheets appends rows to a spreadsheet through the Sheets v4
// values:append REST endpoint.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Sheets API root
const DefaultBaseURL = "https://sheets.googleapis.com"

// ExternalSinkError reports a failed append
type ExternalSinkError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExternalSinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sheet append failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("sheet append failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *ExternalSinkError) Unwrap() error {
	return e.Err
}

// Appender posts single rows. It performs exactly one request per call.
type Appender struct {
	baseURL string
	client  *http.Client
}

// NewAppender creates an appender. A nil client gets a 10s timeout.
func NewAppender(baseURL string, client *http.Client) *Appender {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Appender{baseURL: baseURL, client: client}
}

type valueRange struct {
	MajorDimension string          `json:"majorDimension"`
	Values         [][]interface{} `json:"values"`
}

// AppendRow appends row after the last row of the table found in rng
func (a *Appender) AppendRow(ctx context.Context, accessToken, sheetID, rng string, row []interface{}) error {
	if sheetID == "" {
		return fmt.Errorf("sheet id is required")
	}

	payload, err := json.Marshal(valueRange{MajorDimension: "ROWS", Values: [][]interface{}{row}})
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		a.baseURL, url.PathEscape(sheetID), url.PathEscape(rng))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create append request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return &ExternalSinkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		sinkErr := &ExternalSinkError{StatusCode: resp.StatusCode, Body: string(body)}
		if err != nil {
			sinkErr.Err = fmt.Errorf("failed to read error response: %w", err)
		}
		return sinkErr
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
