package reader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Compile-time check.
var _ Fetcher = (*S3Fetcher)(nil)

// S3Fetcher downloads s3:// objects with the AWS SDK v2. An endpoint override
// switches on path-style addressing for S3-compatible stores.
type S3Fetcher struct {
	client *s3.Client
}

// NewS3Fetcher creates an S3Fetcher with static credentials. endpoint may be
// empty for AWS proper.
func NewS3Fetcher(keyID, secret, endpoint, region string) *S3Fetcher {
	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(keyID, secret, ""),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", endpoint))
		opts.UsePathStyle = true
	}
	return &S3Fetcher{client: s3.New(opts)}
}

// Fetch downloads the object behind an s3://bucket/key URI.
func (f *S3Fetcher) Fetch(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3Path(uri)
	if err != nil {
		return nil, err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// ParseS3Path extracts bucket and key from an "s3://bucket/path/to/file" URI.
func ParseS3Path(s3Path string) (bucket, key string, err error) {
	u, err := url.Parse(s3Path)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 path %q: %w", s3Path, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, s3Path)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("empty key in S3 path %q", s3Path)
	}
	return bucket, key, nil
}
