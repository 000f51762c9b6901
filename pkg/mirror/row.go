package mirror

import (
	"time"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/auth"
)

// RowWidth is the number of columns in a mirrored row
const RowWidth = 9

// BuildRow lays a record out as: timestamp, user, role, action, entity
// type, entity name, details, status, error message
func BuildRow(record audit.Record, role auth.Role) []interface{} {
	user := record.UserEmail
	if user == "" {
		user = record.UserID
	}
	roleName := string(role)
	if roleName == "" {
		roleName = audit.UnknownMetadata
	}

	return []interface{}{
		record.CreatedAt.UTC().Format(time.RFC3339),
		user,
		roleName,
		string(record.Action),
		string(record.EntityType),
		record.EntityName,
		record.DetailsText(),
		string(record.Status),
		record.ErrorMessage,
	}
}
