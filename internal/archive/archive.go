// Package archive keeps a compressed copy of every delivered letter in
// object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/r2client"
)

const contentType = "application/zstd"

// Archive stores letters under {prefix}/{applicationID}/{notificationID}.txt.zst.
type Archive struct {
	store   r2client.ObjectStore
	prefix  string
	metrics *metrics.Metrics
}

// New creates an archive over store. An empty prefix stores keys at the root.
func New(store r2client.ObjectStore, prefix string, m *metrics.Metrics) *Archive {
	return &Archive{
		store:   store,
		prefix:  strings.Trim(prefix, "/"),
		metrics: m,
	}
}

// Key returns the object key for one notification.
func (a *Archive) Key(applicationID, notificationID string) string {
	return path.Join(a.prefix, applicationID, notificationID+".txt.zst")
}

// Put compresses body and uploads it to key.
func (a *Archive) Put(ctx context.Context, key string, body []byte) error {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		a.metrics.RecordArchiveUpload("error")
		return fmt.Errorf("archive: create encoder: %w", err)
	}
	if _, err := enc.Write(body); err != nil {
		enc.Close()
		a.metrics.RecordArchiveUpload("error")
		return fmt.Errorf("archive: compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		a.metrics.RecordArchiveUpload("error")
		return fmt.Errorf("archive: compress: %w", err)
	}

	if _, err := a.store.Upload(ctx, key, &buf, contentType); err != nil {
		a.metrics.RecordArchiveUpload("error")
		return fmt.Errorf("archive: %w", err)
	}
	a.metrics.RecordArchiveUpload("success")
	return nil
}

// Get downloads key and returns the decompressed letter.
// A missing object yields r2client.ErrNotFound.
func (a *Archive) Get(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := a.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer rc.Close()

	dec, err := zstd.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("archive: create decoder: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("archive: decompress: %w", err)
	}
	return data, nil
}
