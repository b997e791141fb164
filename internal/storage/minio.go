package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore maps containers onto buckets of an S3-compatible endpoint.
type MinioStore struct {
	minio *minio.Client
}

func NewMinioStore(acct Account) (*MinioStore, error) {
	host, secure, err := acct.endpointHost()
	if err != nil {
		return nil, err
	}

	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(acct.Name, acct.Key, ""),
		Secure: secure,
		Region: acct.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStore{minio: mc}, nil
}

func (s *MinioStore) EnsureContainer(ctx context.Context, container string) error {
	exists, err := s.minio.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.minio.MakeBucket(ctx, container, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := s.minio.BucketExists(ctx, container)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", container, err)
	}

	return nil
}

func (s *MinioStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	obj, err := s.minio.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", container, name, classifyMinioError(err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", container, name, classifyMinioError(err))
	}
	return data, nil
}

func (s *MinioStore) Put(ctx context.Context, container, name string, data []byte, contentType string) error {
	_, err := s.minio.PutObject(
		ctx,
		container,
		name,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", container, name, classifyMinioError(err))
	}
	return nil
}

func classifyMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return fmt.Errorf("%w: %v", ErrBlobNotFound, err)
	case "NoSuchBucket":
		return fmt.Errorf("%w: %v", ErrContainerNotFound, err)
	default:
		return err
	}
}
