// Package gcs archives captured submission pages to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Archiver writes page snapshots to a configured GCS bucket. Objects are
// keyed by directory id and structure fingerprint, so an unchanged page
// overwrites its own snapshot instead of accumulating duplicates.
type Archiver struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed archiver.
func New(client *storage.Client, cfg Config) (*Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Archive uploads the sanitized page HTML and returns its gs:// URI.
func (a *Archiver) Archive(ctx context.Context, directoryID, fingerprint string, html []byte) (string, error) {
	if directoryID == "" {
		return "", fmt.Errorf("directory id is required")
	}
	if fingerprint == "" {
		return "", fmt.Errorf("fingerprint is required")
	}
	path := fmt.Sprintf("%s/%s.html", directoryID, fingerprint)
	if a.prefix != "" {
		path = a.prefix + "/" + path
	}
	writer := a.client.Bucket(a.bucket).Object(path).NewWriter(ctx)
	writer.ContentType = "text/html; charset=utf-8"
	if _, err := io.Copy(writer, bytes.NewReader(html)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
}
