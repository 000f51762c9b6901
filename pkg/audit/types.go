package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Action is what the caller did
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionView     Action = "view"
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionLogin    Action = "login"
	ActionLogout   Action = "logout"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
)

// EntityType is the kind of object acted upon
type EntityType string

const (
	EntityTask       EntityType = "task"
	EntityProject    EntityType = "project"
	EntityFile       EntityType = "file"
	EntityUser       EntityType = "user"
	EntityProposal   EntityType = "proposal"
	EntityTeamMember EntityType = "team_member"
)

// Status is the outcome of the audited action
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)

// Field bounds, in characters (runes)
const (
	MaxEntityNameLength   = 500
	MaxErrorMessageLength = 1000
	MaxDetailsLength      = 10000
)

// UnknownMetadata is stored when request metadata is not available
const UnknownMetadata = "unknown"

// Event is an audit event as constructed by a caller
type Event struct {
	Action       Action                 `json:"action" validate:"required,oneof=create update delete view upload download login logout approve reject"`
	EntityType   EntityType             `json:"entityType" validate:"required,oneof=task project file user proposal team_member"`
	EntityID     string                 `json:"entityId,omitempty"`
	EntityName   string                 `json:"entityName,omitempty"`
	OldValues    map[string]interface{} `json:"oldValues,omitempty"`
	NewValues    map[string]interface{} `json:"newValues,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Status       Status                 `json:"status,omitempty" validate:"omitempty,oneof=success error pending"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	DurationMs   *int64                 `json:"durationMs,omitempty" validate:"omitempty,gte=0"`
}

// SanitizedEvent is an Event after validation and bounding. JSON payloads
// are already serialized.
type SanitizedEvent struct {
	Action     Action
	EntityType EntityType
	EntityID   string
	EntityName string
	OldValues  string
	NewValues  string
	Details    string
	// DetailsTruncated is set when Details was cut at MaxDetailsLength and
	// no longer parses as JSON; Details then holds the raw truncated text.
	DetailsTruncated bool
	Status           Status
	ErrorMessage     string
	DurationMs       *int64
}

// RequestMetadata describes the inbound request that caused the event
type RequestMetadata struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Record is a persisted, immutable audit row
type Record struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	UserEmail        string          `json:"userEmail"`
	Action           Action          `json:"action"`
	EntityType       EntityType      `json:"entityType"`
	EntityID         string          `json:"entityId,omitempty"`
	EntityName       string          `json:"entityName,omitempty"`
	OldValues        json.RawMessage `json:"oldValues,omitempty"`
	NewValues        json.RawMessage `json:"newValues,omitempty"`
	Details          json.RawMessage `json:"details,omitempty"`
	DetailsTruncated bool            `json:"detailsTruncated,omitempty"`
	Status           Status          `json:"status"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	DurationMs       int64           `json:"durationMs"`
	IPAddress        string          `json:"ipAddress"`
	UserAgent        string          `json:"userAgent"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// DetailsText returns details as plain text: the serialized JSON, or the
// raw truncated text when DetailsTruncated is set
func (r *Record) DetailsText() string {
	if len(r.Details) == 0 {
		return ""
	}
	if r.DetailsTruncated {
		var raw string
		if err := json.Unmarshal(r.Details, &raw); err == nil {
			return raw
		}
	}
	return string(r.Details)
}

// Filter selects records. All set fields are combined with AND.
type Filter struct {
	UserID     string
	Action     Action
	EntityType EntityType
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Stats summarizes records matching a filter
type Stats struct {
	TotalRecords int64                `json:"totalRecords"`
	UniqueUsers  int64                `json:"uniqueUsers"`
	ByAction     map[Action]int64     `json:"byAction"`
	ByEntityType map[EntityType]int64 `json:"byEntityType"`
	ByStatus     map[Status]int64     `json:"byStatus"`
	From         *time.Time           `json:"from,omitempty"`
	To           *time.Time           `json:"to,omitempty"`
}

var (
	// ErrInvalidEvent is wrapped by every validation failure
	ErrInvalidEvent = errors.New("invalid audit event")
	// ErrNotAuthenticated is returned when no session is present
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden is returned when the caller's role may not read the log
	ErrForbidden = errors.New("insufficient role to read audit log")
	// ErrNotFound is returned when a record id does not exist
	ErrNotFound = errors.New("audit record not found")
)

// ValidationError lists the offending fields and why each was rejected
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return fmt.Sprintf("%s: %s", ErrInvalidEvent, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEvent
}
