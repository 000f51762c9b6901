package mirror

import (
	"strings"

	"github.com/platinummonkey/studiodesk/pkg/serviceaccount"
	"github.com/platinummonkey/studiodesk/pkg/sheets"
)

// DefaultRange is the tab and column span rows are appended to
const DefaultRange = "AuditLog!A:I"

// SheetConfig locates the spreadsheet and the service account that writes
// to it
type SheetConfig struct {
	SheetID             string `yaml:"sheet_id"`
	Range               string `yaml:"range"`
	ServiceAccountEmail string `yaml:"service_account_email"`
	PrivateKeyPEM       string `yaml:"private_key"`
	TokenURL            string `yaml:"token_url"`
	SheetsBaseURL       string `yaml:"sheets_base_url"`
}

// Enabled reports whether the sheet id, service account email and private
// key are all set. Mirroring is skipped otherwise.
func (c SheetConfig) Enabled() bool {
	return strings.TrimSpace(c.SheetID) != "" &&
		strings.TrimSpace(c.ServiceAccountEmail) != "" &&
		strings.TrimSpace(c.PrivateKeyPEM) != ""
}

func (c SheetConfig) withDefaults() SheetConfig {
	if c.Range == "" {
		c.Range = DefaultRange
	}
	if c.TokenURL == "" {
		c.TokenURL = serviceaccount.DefaultTokenURL
	}
	if c.SheetsBaseURL == "" {
		c.SheetsBaseURL = sheets.DefaultBaseURL
	}
	return c
}
