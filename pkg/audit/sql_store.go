package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/studiodesk/pkg/database"
)

// SQLStore persists records in the audit_logs table of a postgres or
// sqlite database
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore creates a store on db
func NewSQLStore(db *sql.DB, dialect database.Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

// EnsureSchema creates the audit_logs table and its indexes if missing
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	timestampType := "TIMESTAMP"
	if s.dialect == database.Postgres {
		timestampType = "TIMESTAMPTZ"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(36) PRIMARY KEY,
			user_id TEXT NOT NULL,
			user_email TEXT NOT NULL,
			action VARCHAR(20) NOT NULL,
			entity_type VARCHAR(20) NOT NULL,
			entity_id TEXT NOT NULL DEFAULT '',
			entity_name TEXT NOT NULL DEFAULT '',
			old_values TEXT NOT NULL DEFAULT '',
			new_values TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			details_truncated BOOLEAN NOT NULL DEFAULT FALSE,
			status VARCHAR(10) NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			ip_address TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			created_at %s NOT NULL
		)`, timestampType),
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_entity_type ON audit_logs(entity_type)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure audit_logs schema: %w", err)
		}
	}
	return nil
}

const recordColumns = `id, user_id, user_email, action, entity_type, entity_id, entity_name,
	old_values, new_values, details, details_truncated, status, error_message,
	duration_ms, ip_address, user_agent, created_at`

// Insert implements Store
func (s *SQLStore) Insert(ctx context.Context, record *Record) error {
	placeholders := make([]string, 17)
	for i := range placeholders {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO audit_logs (%s) VALUES (%s)", recordColumns, strings.Join(placeholders, ", "))

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.UserEmail,
		string(record.Action),
		string(record.EntityType),
		record.EntityID,
		record.EntityName,
		string(record.OldValues),
		string(record.NewValues),
		storedDetails(record),
		record.DetailsTruncated,
		string(record.Status),
		record.ErrorMessage,
		record.DurationMs,
		record.IPAddress,
		record.UserAgent,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Query implements Store
func (s *SQLStore) Query(ctx context.Context, filter Filter) ([]*Record, error) {
	where, args := s.buildWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM audit_logs%s ORDER BY created_at DESC, id DESC", recordColumns, where)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT " + s.dialect.Placeholder(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return records, nil
}

// Get implements Store
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE id = %s", recordColumns, s.dialect.Placeholder(1))
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return record, err
}

// Scan implements Store
func (s *SQLStore) Scan(ctx context.Context, from, to time.Time, fn func(*Record) error) error {
	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE created_at >= %s AND created_at < %s ORDER BY created_at ASC, id ASC",
		recordColumns, s.dialect.Placeholder(1), s.dialect.Placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return fmt.Errorf("failed to scan audit records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats implements Store
func (s *SQLStore) Stats(ctx context.Context, filter Filter) (*Stats, error) {
	where, args := s.buildWhere(filter)
	stats := &Stats{
		ByAction:     make(map[Action]int64),
		ByEntityType: make(map[EntityType]int64),
		ByStatus:     make(map[Status]int64),
		From:         filter.From,
		To:           filter.To,
	}

	query := fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT user_id) FROM audit_logs%s", where)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.TotalRecords, &stats.UniqueUsers); err != nil {
		return nil, fmt.Errorf("failed to count audit records: %w", err)
	}

	groups := []struct {
		column string
		add    func(key string, count int64)
	}{
		{"action", func(k string, n int64) { stats.ByAction[Action(k)] = n }},
		{"entity_type", func(k string, n int64) { stats.ByEntityType[EntityType(k)] = n }},
		{"status", func(k string, n int64) { stats.ByStatus[Status(k)] = n }},
	}
	for _, group := range groups {
		query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs%s GROUP BY %s", group.column, where, group.column)
		if err := s.countBy(ctx, query, args, group.add); err != nil {
			return nil, fmt.Errorf("failed to count audit records by %s: %w", group.column, err)
		}
	}

	return stats, nil
}

func (s *SQLStore) countBy(ctx context.Context, query string, args []interface{}, add func(string, int64)) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		add(key, count)
	}
	return rows.Err()
}

// buildWhere renders the filter as a WHERE clause (with leading space) and
// its arguments
func (s *SQLStore) buildWhere(filter Filter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(column, op string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s %s %s", column, op, s.dialect.Placeholder(len(args))))
	}

	if filter.UserID != "" {
		add("user_id", "=", filter.UserID)
	}
	if filter.Action != "" {
		add("action", "=", string(filter.Action))
	}
	if filter.EntityType != "" {
		add("entity_type", "=", string(filter.EntityType))
	}
	if filter.From != nil {
		add("created_at", ">=", filter.From.UTC())
	}
	if filter.To != nil {
		add("created_at", "<=", filter.To.UTC())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record                        Record
		action, entityType, status    string
		oldValues, newValues, details string
	)
	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.UserEmail,
		&action,
		&entityType,
		&record.EntityID,
		&record.EntityName,
		&oldValues,
		&newValues,
		&details,
		&record.DetailsTruncated,
		&status,
		&record.ErrorMessage,
		&record.DurationMs,
		&record.IPAddress,
		&record.UserAgent,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit record: %w", err)
	}

	record.Action = Action(action)
	record.EntityType = EntityType(entityType)
	record.Status = Status(status)
	record.OldValues = rawJSON(oldValues)
	record.NewValues = rawJSON(newValues)
	record.Details = detailsJSON(details, record.DetailsTruncated)
	record.CreatedAt = record.CreatedAt.UTC()
	return &record, nil
}

// storedDetails is the column value for details: JSON text, or the raw
// truncated text when DetailsTruncated is set
func storedDetails(record *Record) string {
	return record.DetailsText()
}

func rawJSON(text string) json.RawMessage {
	if text == "" {
		return nil
	}
	return json.RawMessage(text)
}

// detailsJSON turns the details column back into valid JSON; truncated raw
// text becomes a JSON string
func detailsJSON(text string, truncated bool) json.RawMessage {
	if text == "" {
		return nil
	}
	if truncated {
		encoded, _ := json.Marshal(text)
		return encoded
	}
	return json.RawMessage(text)
}
