package archive

import (
	"context"
	"io"

	"cloud.google.com/go/storage"

	"github.com/CaravanStudios/opr-core-go/cmn"
)

// GCSBackend archives to a single Google Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

func NewGCSBackend(client *storage.Client, bucket string) *GCSBackend {
	return &GCSBackend{client: client, bucket: bucket}
}

func (b *GCSBackend) Put(ctx context.Context, key string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return cmn.Wrap(cmn.CodeDatabase, err, "gcs put")
	}
	if err := w.Close(); err != nil {
		return cmn.Wrap(cmn.CodeDatabase, err, "gcs put")
	}
	return nil
}

func (b *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "gcs get")
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "gcs get")
	}
	return data, nil
}
