package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datapulse/internal/domain"
	"datapulse/internal/storage"
)

type fakeStore struct {
	bucket, key, contentType string
	body                     string
	listPrefix               string
	putErr                   error
}

func (f *fakeStore) PutObject(_ context.Context, body io.Reader, opts storage.PutOptions) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, _ := io.ReadAll(body)
	f.bucket, f.key, f.contentType, f.body = opts.Bucket, opts.Key, opts.ContentType, string(data)
	return "s3://" + opts.Bucket + "/" + opts.Key, nil
}

func (f *fakeStore) ListObjects(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.listPrefix = prefix
	return []storage.ObjectInfo{{Key: prefix + "a.csv", Size: 10}}, nil
}

func (f *fakeStore) GetObjectURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://example.com/" + bucket + "/" + key + "?sig=1", nil
}

var samplePoints = []domain.DataPoint{
	{ID: 1, Label: "temp", Value: 21.5, Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	{ID: 2, Label: "with, comma", Value: -3, Date: time.Date(2024, 1, 2, 12, 30, 0, 0, time.UTC)},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, samplePoints))

	want := "id,label,value,date\n" +
		"1,temp,21.5,2024-01-01T00:00:00Z\n" +
		"2,\"with, comma\",-3,2024-01-02T12:30:00Z\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,label,value,date\n", buf.String())
}

func TestArchiver_Archive(t *testing.T) {
	store := &fakeStore{}
	a := NewArchiver(store, "snapshots", "/exports/", 0)
	a.now = func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }

	snap, err := a.Archive(context.Background(), samplePoints)
	require.NoError(t, err)

	assert.Equal(t, "snapshots", store.bucket)
	assert.Equal(t, "text/csv", store.contentType)
	assert.True(t, strings.HasPrefix(snap.Key, "exports/20240304T050607Z-"), snap.Key)
	assert.True(t, strings.HasSuffix(snap.Key, ".csv"))
	assert.Equal(t, "s3://snapshots/"+snap.Key, snap.Location)
	assert.Contains(t, snap.URL, snap.Key)
	assert.Equal(t, 2, snap.Rows)
	assert.True(t, strings.HasPrefix(store.body, "id,label,value,date\n"))
}

func TestArchiver_ArchiveError(t *testing.T) {
	a := NewArchiver(&fakeStore{putErr: errors.New("bucket missing")}, "snapshots", "exports", 0)
	_, err := a.Archive(context.Background(), samplePoints)
	require.Error(t, err)
}

func TestArchiver_List(t *testing.T) {
	store := &fakeStore{}
	objects, err := NewArchiver(store, "snapshots", "exports", 0).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "exports/", store.listPrefix)
	require.Len(t, objects, 1)
}
