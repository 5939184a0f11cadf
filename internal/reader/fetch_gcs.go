package reader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Compile-time check.
var _ Fetcher = (*GCSFetcher)(nil)

// GCSFetcher downloads gs:// objects from Google Cloud Storage.
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher creates a GCSFetcher. With an empty credFile the client uses
// ambient application default credentials.
func NewGCSFetcher(ctx context.Context, credFile string) (*GCSFetcher, error) {
	var opts []option.ClientOption
	if credFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, credFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSFetcher{client: client}, nil
}

// Fetch downloads the object behind a gs://bucket/object URI.
func (f *GCSFetcher) Fetch(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := parseGCSPath(uri)
	if err != nil {
		return nil, err
	}
	rc, err := f.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gs://%s/%s: %w", bucket, key, err)
	}
	return rc, nil
}

// parseGCSPath extracts bucket and key from a "gs://bucket/path/to/file" URI.
func parseGCSPath(path string) (bucket, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("parse GCS path %q: %w", path, err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("expected gs:// scheme, got %q in %q", u.Scheme, path)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty key in GCS path %q", path)
	}
	return bucket, key, nil
}
