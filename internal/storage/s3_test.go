package storage

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/taxi-etl-go/internal/config"
)

// mockS3 mimics an S3 blob store for testing
type mockS3 struct {
	sync.Mutex
	s3iface.S3API

	objects      map[string][]byte
	contentTypes map[string]string
	failKey      string
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (m *mockS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if *in.Key == m.failKey {
		return nil, errors.New("access denied")
	}
	data, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.Lock()
	defer m.Unlock()
	uri := "s3://" + *in.Bucket + "/" + *in.Key
	m.objects[uri] = data
	m.contentTypes[uri] = aws.StringValue(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func writeFiles(t *testing.T, names ...string) []string {
	dir := t.TempDir()
	var files []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("content of "+name), 0o644))
		files = append(files, path)
	}
	return files
}

func newTestPublisher(client s3iface.S3API) *Publisher {
	cfg := config.Default()
	cfg.S3Bucket = "taxi-artifacts"
	cfg.S3Prefix = "nyc"
	logger, _ := test.NewNullLogger()
	p := NewPublisherWithClient(cfg, client, logger)
	p.now = func() time.Time { return time.Date(2025, 2, 1, 23, 30, 0, 0, time.UTC) }
	return p
}

func TestPublishUploadsUnderRunDate(t *testing.T) {
	mock := newMockS3()
	p := newTestPublisher(mock)
	files := writeFiles(t, "daily_trip_volume.png", "trip_summary.csv", "a.png", "b.png", "c.png", "d.png")

	uris, err := p.Publish(aws.BackgroundContext(), files)
	require.NoError(t, err)
	require.Len(t, uris, len(files))

	assert.Equal(t, "s3://taxi-artifacts/nyc/2025-02-01/daily_trip_volume.png", uris[0])
	assert.Equal(t, "s3://taxi-artifacts/nyc/2025-02-01/trip_summary.csv", uris[1])
	assert.Len(t, mock.objects, len(files))
	assert.Equal(t, []byte("content of trip_summary.csv"), mock.objects[uris[1]])
	assert.Equal(t, "image/png", mock.contentTypes[uris[0]])
}

func TestPublishFailure(t *testing.T) {
	mock := newMockS3()
	mock.failKey = "nyc/2025-02-01/b.png"
	p := newTestPublisher(mock)

	_, err := p.Publish(aws.BackgroundContext(), writeFiles(t, "a.png", "b.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestPublishMissingFile(t *testing.T) {
	p := newTestPublisher(newMockS3())
	_, err := p.Publish(aws.BackgroundContext(), []string{filepath.Join(t.TempDir(), "missing.png")})
	assert.Error(t, err)
}
