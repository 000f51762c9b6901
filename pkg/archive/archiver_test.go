package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/database"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

type memoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (u *memoryUploader) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if u.err != nil {
		return u.err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = make(map[string][]byte)
	}
	u.objects[key] = append([]byte(nil), data...)
	return nil
}

func newStore(t *testing.T) *audit.SQLStore {
	t.Helper()
	db, dialect, err := database.Open(context.Background(), database.Config{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := audit.NewSQLStore(db, dialect)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func insertAt(t *testing.T, store audit.Store, id string, at time.Time) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &audit.Record{
		ID:         id,
		UserID:     "u1",
		UserEmail:  "u1@studio.test",
		Action:     audit.ActionCreate,
		EntityType: audit.EntityProject,
		Status:     audit.StatusSuccess,
		IPAddress:  audit.UnknownMetadata,
		UserAgent:  audit.UnknownMetadata,
		CreatedAt:  at,
	}))
}

func TestObjectKey(t *testing.T) {
	day := time.Date(2026, 2, 7, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "audit-logs/2026/02/07.ndjson", ObjectKey("audit-logs", day))
	assert.Equal(t, "2026/02/07.ndjson", ObjectKey("", day))

	eastern := time.FixedZone("UTC-5", -5*3600)
	assert.Equal(t, "a/2026/02/08.ndjson", ObjectKey("a", time.Date(2026, 2, 7, 20, 0, 0, 0, eastern)))
}

func TestArchiver_Run(t *testing.T) {
	store := newStore(t)
	day := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	insertAt(t, store, "before", day.Add(-time.Second))
	insertAt(t, store, "first", day)
	insertAt(t, store, "second", day.Add(12*time.Hour))
	insertAt(t, store, "last", day.Add(24*time.Hour-time.Microsecond))
	insertAt(t, store, "after", day.Add(24*time.Hour))

	uploader := &memoryUploader{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger, hook := logrustest.NewNullLogger()
	archiver := NewArchiver(store, uploader, "audit-logs", logger, metrics)

	result, err := archiver.Run(context.Background(), day.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "audit-logs/2026/02/07.ndjson", result.Key)
	assert.Equal(t, 3, result.Records)

	data := uploader.objects[result.Key]
	assert.Equal(t, len(data), result.Bytes)

	var ids []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var record audit.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		ids = append(ids, record.ID)
	}
	assert.Equal(t, []string{"first", "second", "last"}, ids)

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.ArchiveRecordsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArchiveRunsTotal.WithLabelValues("success")))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "audit records archived", hook.LastEntry().Message)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)

	// archiving never removes records from the store
	remaining, err := store.Query(context.Background(), audit.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, remaining, 5)
}

func TestArchiver_EmptyDay(t *testing.T) {
	store := newStore(t)
	uploader := &memoryUploader{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	archiver := NewArchiver(store, uploader, "audit-logs", nil, metrics)

	result, err := archiver.RunPreviousDay(context.Background(), time.Date(2026, 2, 8, 0, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Records)
	assert.Empty(t, result.Key)
	assert.Empty(t, uploader.objects)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArchiveRunsTotal.WithLabelValues("empty")))
}

func TestArchiver_UploadFailure(t *testing.T) {
	store := newStore(t)
	day := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	insertAt(t, store, "r1", day.Add(time.Hour))

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	archiver := NewArchiver(store, &memoryUploader{err: errors.New("access denied")}, "p", nil, metrics)

	_, err := archiver.Run(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArchiveRunsTotal.WithLabelValues("error")))
}

type fakePutObject struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakePutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Uploader_Upload(t *testing.T) {
	client := &fakePutObject{}
	uploader := NewS3UploaderWithClient(client, "studio-audit")

	require.NoError(t, uploader.Upload(context.Background(), "audit-logs/2026/02/07.ndjson", []byte("{}\n"), "application/x-ndjson"))
	require.NotNil(t, client.input)
	assert.Equal(t, "studio-audit", *client.input.Bucket)
	assert.Equal(t, "audit-logs/2026/02/07.ndjson", *client.input.Key)
	assert.Equal(t, "application/x-ndjson", *client.input.ContentType)
	assert.Len(t, client.input.Metadata["checksum-sha256"], 64)

	client.err = fmt.Errorf("slow down")
	err := uploader.Upload(context.Background(), "k", nil, "text/plain")
	assert.ErrorContains(t, err, "slow down")
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNewS3Uploader_StaticCredentials(t *testing.T) {
	uploader, err := NewS3Uploader(context.Background(), S3Config{
		Bucket:          "studio-audit",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.NotNil(t, uploader)
}
