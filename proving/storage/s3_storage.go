package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const DefaultRegion = "us-east-1"

type S3Storage struct {
	client *s3.Client
	bucket string
}

func NewS3Storage(ctx context.Context, bucket, region string) (Storage, error) {
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &S3Storage{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

func (s S3Storage) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	attributes, err := s.client.GetObjectAttributes(ctx, &s3.GetObjectAttributesInput{
		Bucket:           &s.bucket,
		Key:              &key,
		ObjectAttributes: []types.ObjectAttributes{types.ObjectAttributesObjectSize},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get object attributes: %w", notFound(err, key))
	}

	object, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get object: %w", notFound(err, key))
	}
	return NewLoggingReader(object.Body, "Downloading", key, aws.ToInt64(attributes.ObjectSize)), nil
}

func notFound(err error, key string) error {
	var noSuchKey *types.NoSuchKey
	var missing *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &missing) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, key, err)
	}
	return err
}

func (s S3Storage) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	uploader := manager.NewUploader(s.client)

	reader, writer := io.Pipe()
	w := &writeWaiter{WriteCloser: writer}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
			Body:   reader,
		})
		if err != nil {
			w.err = err
			_ = reader.CloseWithError(err)
		}
	}()

	return w, nil
}

// writeWaiter blocks Close until the upload has finished and reports its
// error.
type writeWaiter struct {
	io.WriteCloser
	wg  sync.WaitGroup
	err error
}

func (w *writeWaiter) Close() error {
	err := w.WriteCloser.Close()
	if err != nil {
		return err
	}
	w.wg.Wait()
	return w.err
}
