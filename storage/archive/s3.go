package archive

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/CaravanStudios/opr-core-go/cmn"
)

// S3Backend archives to a single S3 (or S3-compatible) bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
}

func NewS3Backend(client *s3.Client, bucket string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket}
}

// NewS3BackendFromEnv resolves credentials and region the standard way
// (environment, shared config file, EC2/ECS role) and builds a Backend
// from the result, sparing an operator from wiring up the SDK client by
// hand for the common case.
func NewS3BackendFromEnv(ctx context.Context, bucket string) (*S3Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "load aws config")
	}
	return NewS3Backend(s3.NewFromConfig(cfg), bucket), nil
}

func (b *S3Backend) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return cmn.Wrap(cmn.CodeDatabase, err, "s3 put")
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "s3 get")
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "s3 get")
	}
	return data, nil
}
