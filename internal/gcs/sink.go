// Package gcs publishes pipeline tables as CSV objects in Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// Sink writes CSV objects to a single bucket. It assumes Application Default
// Credentials are configured.
type Sink struct {
	client *storage.Client
	bucket string
	log    zerolog.Logger
}

// NewSink creates a Sink for the given bucket.
func NewSink(ctx context.Context, bucket string, log zerolog.Logger) (*Sink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs.NewSink: creating storage client: %w", err)
	}
	return &Sink{client: client, bucket: bucket, log: log}, nil
}

// Close releases the storage client.
func (s *Sink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// UploadCSV encodes header+records as CSV and uploads them under objectName.
func (s *Sink) UploadCSV(ctx context.Context, objectName string, header []string, records [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("UploadCSV: writing header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("UploadCSV: writing records: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(objectName)
	ow := obj.NewWriter(ctx)
	ow.ContentType = "text/csv"

	if _, err := ow.Write(buf.Bytes()); err != nil {
		_ = ow.Close()
		return fmt.Errorf("UploadCSV: writing object %s: %w", objectName, err)
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("UploadCSV: finalizing %s: %w", objectName, err)
	}

	s.log.Info().Str("bucket", s.bucket).Str("object", objectName).Int("rows", len(records)).Msg("CSV uploaded")
	return nil
}
