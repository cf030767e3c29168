package scan

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureArchive implements Archive with an Azure Blob Storage container
type AzureArchive struct {
	client    *azblob.Client
	container string
}

// NewAzureArchive connects with a shared key. Set serviceURL to reach an
// emulator; it defaults to the account's public endpoint.
func NewAzureArchive(accountName, accountKey, container, serviceURL string) (*AzureArchive, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("creating azure credential: %w", err)
	}

	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("creating azure client: %w", err)
	}

	return &AzureArchive{client: client, container: container}, nil
}

// Save uploads data as a blob named name
func (a *AzureArchive) Save(ctx context.Context, name string, data []byte) (string, error) {
	if _, err := a.client.UploadBuffer(ctx, a.container, name, data, nil); err != nil {
		return "", fmt.Errorf("uploading blob %s: %w", name, err)
	}
	return name, nil
}

// Get downloads a blob
func (a *AzureArchive) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, path, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading blob %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", path, err)
	}
	return data, nil
}

// Delete removes a blob
func (a *AzureArchive) Delete(ctx context.Context, path string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, path, nil); err != nil {
		return fmt.Errorf("deleting blob %s: %w", path, err)
	}
	return nil
}
