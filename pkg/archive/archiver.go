// Package archive copies a day of audit records to object storage as
// newline-delimited JSON. It only reads from the audit store.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

// Uploader stores one object
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// Result describes one archive run
type Result struct {
	Key     string
	Records int
	Bytes   int
}

// Archiver exports audit records by UTC day
type Archiver struct {
	store    audit.Store
	uploader Uploader
	prefix   string
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
}

// NewArchiver creates an archiver writing under prefix. metrics may be nil.
func NewArchiver(store audit.Store, uploader Uploader, prefix string, logger logrus.FieldLogger, metrics *observability.Metrics) *Archiver {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Archiver{
		store:    store,
		uploader: uploader,
		prefix:   prefix,
		logger:   logger,
		metrics:  metrics,
	}
}

// ObjectKey returns prefix/YYYY/MM/DD.ndjson for the UTC day containing day
func ObjectKey(prefix string, day time.Time) string {
	day = day.UTC()
	return path.Join(prefix, day.Format("2006"), day.Format("01"), day.Format("02")+".ndjson")
}

// Run archives every record created on the UTC day containing day. A day
// with no records uploads nothing.
func (a *Archiver) Run(ctx context.Context, day time.Time) (*Result, error) {
	from := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	log := a.logger.WithField("day", from.Format("2006-01-02"))

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	count := 0
	err := a.store.Scan(ctx, from, to, func(record *audit.Record) error {
		count++
		return encoder.Encode(record)
	})
	if err != nil {
		a.countRun("error")
		return nil, fmt.Errorf("failed to read audit records for %s: %w", from.Format("2006-01-02"), err)
	}

	result := &Result{Records: count}
	if count == 0 {
		a.countRun("empty")
		log.Info("no audit records to archive")
		return result, nil
	}

	result.Key = ObjectKey(a.prefix, from)
	result.Bytes = buf.Len()
	if err := a.uploader.Upload(ctx, result.Key, buf.Bytes(), "application/x-ndjson"); err != nil {
		a.countRun("error")
		return nil, err
	}

	a.countRun("success")
	if a.metrics != nil {
		a.metrics.ArchiveRecordsTotal.Add(float64(count))
	}
	log.WithFields(logrus.Fields{
		"key":     result.Key,
		"records": result.Records,
		"bytes":   result.Bytes,
	}).Info("audit records archived")
	return result, nil
}

// RunPreviousDay archives the UTC day before now
func (a *Archiver) RunPreviousDay(ctx context.Context, now time.Time) (*Result, error) {
	return a.Run(ctx, now.UTC().AddDate(0, 0, -1))
}

func (a *Archiver) countRun(outcome string) {
	if a.metrics != nil {
		a.metrics.ArchiveRunsTotal.WithLabelValues(outcome).Inc()
	}
}
