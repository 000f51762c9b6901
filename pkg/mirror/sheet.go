// Package mirror replicates committed audit records to a spreadsheet.
// Replication is best effort: failures are logged and counted, never
// returned to the code that wrote the record.
package mirror

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/observability"
	"github.com/platinummonkey/studiodesk/pkg/serviceaccount"
	"github.com/platinummonkey/studiodesk/pkg/sheets"
)

// Stages of a mirror attempt
const (
	StageSign   = "sign"
	StageToken  = "token"
	StageAppend = "append"
)

// Error reports which stage of a mirror attempt failed
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mirror %s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Sink replicates one record
type Sink interface {
	Mirror(ctx context.Context, record audit.Record, role auth.Role) error
}

// SheetMirror appends records to a spreadsheet using a service account.
// Each attempt signs a new assertion and exchanges it for a token; tokens
// are not cached.
type SheetMirror struct {
	cfg       SheetConfig
	signer    *serviceaccount.Signer
	exchanger *serviceaccount.Exchanger
	appender  *sheets.Appender
}

// NewSheetMirror creates a mirror for cfg. A nil client gets a 10s timeout
// and a traced transport.
func NewSheetMirror(cfg SheetConfig, client *http.Client) *SheetMirror {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: observability.InstrumentedTransport(http.DefaultTransport),
		}
	}

	signer := serviceaccount.NewSigner(cfg.ServiceAccountEmail, cfg.PrivateKeyPEM)
	signer.Audience = cfg.TokenURL

	return &SheetMirror{
		cfg:       cfg,
		signer:    signer,
		exchanger: serviceaccount.NewExchanger(cfg.TokenURL, client),
		appender:  sheets.NewAppender(cfg.SheetsBaseURL, client),
	}
}

// Mirror implements Sink
func (m *SheetMirror) Mirror(ctx context.Context, record audit.Record, role auth.Role) error {
	assertion, err := m.signer.Sign()
	if err != nil {
		return &Error{Stage: StageSign, Err: err}
	}

	token, err := m.exchanger.Exchange(ctx, assertion)
	if err != nil {
		return &Error{Stage: StageToken, Err: err}
	}

	if err := m.appender.AppendRow(ctx, token.AccessToken, m.cfg.SheetID, m.cfg.Range, BuildRow(record, role)); err != nil {
		return &Error{Stage: StageAppend, Err: err}
	}
	return nil
}
