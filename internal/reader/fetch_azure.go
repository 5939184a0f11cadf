package reader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Compile-time check.
var _ Fetcher = (*AzureFetcher)(nil)

// AzureFetcher downloads blobs from Azure Blob Storage with shared-key
// credentials.
type AzureFetcher struct {
	client *azblob.Client
}

// NewAzureFetcher creates an AzureFetcher for the given storage account.
func NewAzureFetcher(accountName, accountKey string) (*AzureFetcher, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}
	return &AzureFetcher{client: client}, nil
}

// Fetch downloads the blob behind an azblob://container/blob (or
// az://container/blob) URI.
func (f *AzureFetcher) Fetch(ctx context.Context, uri string) (io.ReadCloser, error) {
	container, key, err := parseAzurePath(uri)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", container, key, err)
	}
	return resp.Body, nil
}

// parseAzurePath extracts container and blob name from an azblob:// or az://
// URI.
func parseAzurePath(path string) (container, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("parse Azure path %q: %w", path, err)
	}
	switch u.Scheme {
	case "azblob", "az":
	default:
		return "", "", fmt.Errorf("expected azblob:// or az:// scheme, got %q in %q", u.Scheme, path)
	}
	container = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if container == "" {
		return "", "", fmt.Errorf("empty container in Azure path %q", path)
	}
	if key == "" {
		return "", "", fmt.Errorf("empty blob name in Azure path %q", path)
	}
	return container, key, nil
}
