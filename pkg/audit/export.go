package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportFormat is a serialization for exported records
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)

// ParseExportFormat defaults to JSON for an empty value
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportFormatJSON:
		return ExportFormatJSON, nil
	case ExportFormatNDJSON:
		return ExportFormatNDJSON, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s (must be json, ndjson or csv)", s)
	}
}

// ContentType returns the MIME type and file extension for the format
func (f ExportFormat) ContentType() (string, string) {
	switch f {
	case ExportFormatCSV:
		return "text/csv", "csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson", "ndjson"
	default:
		return "application/json", "json"
	}
}

// Export writes records to w in the given format
func Export(w io.Writer, format ExportFormat, records []*Record) error {
	switch format {
	case ExportFormatCSV:
		return exportCSV(w, records)
	case ExportFormatNDJSON:
		return exportNDJSON(w, records)
	default:
		return exportJSON(w, records)
	}
}

func exportJSON(w io.Writer, records []*Record) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}

func exportNDJSON(w io.Writer, records []*Record) error {
	encoder := json.NewEncoder(w)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{
	"ID",
	"CreatedAt",
	"UserID",
	"UserEmail",
	"Action",
	"EntityType",
	"EntityID",
	"EntityName",
	"Status",
	"ErrorMessage",
	"DurationMs",
	"IPAddress",
	"UserAgent",
	"Details",
	"DetailsTruncated",
	"OldValues",
	"NewValues",
}

func exportCSV(w io.Writer, records []*Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, record := range records {
		row := []string{
			record.ID,
			record.CreatedAt.Format(time.RFC3339Nano),
			record.UserID,
			record.UserEmail,
			string(record.Action),
			string(record.EntityType),
			record.EntityID,
			record.EntityName,
			string(record.Status),
			record.ErrorMessage,
			strconv.FormatInt(record.DurationMs, 10),
			record.IPAddress,
			record.UserAgent,
			record.DetailsText(),
			strconv.FormatBool(record.DetailsTruncated),
			string(record.OldValues),
			string(record.NewValues),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}
