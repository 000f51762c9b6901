package serviceaccount

import "fmt"

// ExternalAuthError reports a failed token exchange: a non-2xx response or a
// body that is not a usable token response
type ExternalAuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExternalAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token exchange failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *ExternalAuthError) Unwrap() error {
	return e.Err
}
