package audit

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"github.com/castlemilk/pfinance/spending/internal/model"
)

const gcsUploadTimeout = 30 * time.Second

// GCSRecorder writes each report as a JSON object under
// reconciliation/{owner}/{started_at}.json in a bucket.
type GCSRecorder struct {
	bucket    string
	newWriter func(ctx context.Context, object string) io.WriteCloser
}

// NewGCSRecorder creates a recorder that writes to bucket with client.
func NewGCSRecorder(client *storage.Client, bucket string) *GCSRecorder {
	bkt := client.Bucket(bucket)
	return &GCSRecorder{
		bucket: bucket,
		newWriter: func(ctx context.Context, object string) io.WriteCloser {
			w := bkt.Object(object).NewWriter(ctx)
			w.ContentType = "application/json"
			return w
		},
	}
}

// ObjectName returns where a report is stored within the bucket.
func ObjectName(report *model.ReconciliationReport) string {
	return fmt.Sprintf("reconciliation/%s/%s.json",
		url.PathEscape(report.OwnerID),
		report.StartedAt.UTC().Format("20060102T150405.000000000Z"))
}

func (r *GCSRecorder) Record(ctx context.Context, report *model.ReconciliationReport) error {
	body, err := encodeReport(report)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, gcsUploadTimeout)
	defer cancel()

	object := ObjectName(report)
	w := r.newWriter(ctx, object)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", r.bucket, object, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", r.bucket, object, err)
	}
	return nil
}
