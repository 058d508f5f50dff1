package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSMirror copies artifacts to a Google Cloud Storage bucket
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSMirror creates a mirror. An empty credentialsFile uses application default credentials.
func NewGCSMirror(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSMirror, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}

	return &GCSMirror{client: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectName returns the object key used for a relative artifact name
func (m *GCSMirror) ObjectName(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Upload streams r to the bucket under the mirror prefix
func (m *GCSMirror) Upload(ctx context.Context, name string, r io.Reader, contentType string) error {
	object := m.ObjectName(name)
	w := m.client.Bucket(m.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copying to gs://%s/%s: %w", m.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer for gs://%s/%s: %w", m.bucket, object, err)
	}
	return nil
}

// Close releases the storage client
func (m *GCSMirror) Close() error {
	return m.client.Close()
}
