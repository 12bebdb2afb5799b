// Package export renders data points as CSV and archives snapshots.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"datapulse/internal/domain"
	"datapulse/internal/storage"
)

var header = []string{"id", "label", "value", "date"}

// WriteCSV writes points with a header row. Dates are RFC3339 UTC.
func WriteCSV(w io.Writer, points []domain.DataPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range points {
		record := []string{
			strconv.FormatInt(p.ID, 10),
			p.Label,
			strconv.FormatFloat(p.Value, 'f', -1, 64),
			p.Date.UTC().Format(time.RFC3339Nano),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Snapshot describes an archived export.
type Snapshot struct {
	Key      string
	Location string
	URL      string
	Rows     int
}

// Archiver uploads CSV snapshots to object storage.
type Archiver struct {
	store     storage.Service
	bucket    string
	keyPrefix string
	urlTTL    time.Duration
	now       func() time.Time
}

func NewArchiver(store storage.Service, bucket, keyPrefix string, urlTTL time.Duration) *Archiver {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &Archiver{
		store:     store,
		bucket:    bucket,
		keyPrefix: strings.Trim(keyPrefix, "/"),
		urlTTL:    urlTTL,
		now:       time.Now,
	}
}

// Archive renders points and uploads them under a unique, time-ordered key.
func (a *Archiver) Archive(ctx context.Context, points []domain.DataPoint) (*Snapshot, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, points); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s-%s.csv", a.now().UTC().Format("20060102T150405Z"), uuid.NewString())
	key := path.Join(a.keyPrefix, name)

	loc, err := a.store.PutObject(ctx, &buf, storage.PutOptions{
		Bucket:      a.bucket,
		Key:         key,
		ContentType: "text/csv",
	})
	if err != nil {
		return nil, err
	}

	url, err := a.store.GetObjectURL(ctx, a.bucket, key, a.urlTTL)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Key: key, Location: loc, URL: url, Rows: len(points)}, nil
}

// List returns archived snapshots under the configured prefix.
func (a *Archiver) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	prefix := a.keyPrefix
	if prefix != "" {
		prefix += "/"
	}
	return a.store.ListObjects(ctx, a.bucket, prefix)
}
