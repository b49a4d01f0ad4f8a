package archive

import (
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/CaravanStudios/opr-core-go/cmn"
)

// AzureBackend archives to a single Azure Blob Storage container.
type AzureBackend struct {
	client    *azblob.Client
	container string
}

func NewAzureBackend(client *azblob.Client, container string) *AzureBackend {
	return &AzureBackend{client: client, container: container}
}

// NewAzureBackendFromConnectionString builds a Backend from a storage
// account connection string, applying retry overrides through the
// shared azcore client options rather than a package-specific type.
func NewAzureBackendFromConnectionString(connectionString, container string, retry azcore.ClientOptions) (*AzureBackend, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, &azblob.ClientOptions{ClientOptions: retry})
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "azblob client")
	}
	return NewAzureBackend(client, container), nil
}

func (b *AzureBackend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.container, key, data, nil)
	if err != nil {
		return cmn.Wrap(cmn.CodeDatabase, err, "azblob put")
	}
	return nil
}

func (b *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, key, nil)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "azblob get")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "azblob get")
	}
	return data, nil
}
