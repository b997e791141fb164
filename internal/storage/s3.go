package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store talks to AWS S3. Without AccountName/AccountKey the default AWS
// credential chain is used.
type S3Store struct {
	client *s3.Client
	region string
}

func NewS3Store(ctx context.Context, acct Account) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(acct.Region),
	}
	if acct.Name != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(acct.Name, acct.Key, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if acct.BlobEndpoint != "" {
			o.BaseEndpoint = aws.String(acct.BlobBaseURL())
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, region: acct.Region}, nil
}

func (s *S3Store) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(container)})
	if err == nil {
		return nil
	}
	if !isS3Code(err, "NotFound", "NoSuchBucket") {
		return fmt.Errorf("check bucket existence: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(container)}
	if s.region != "" && s.region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		if isS3Code(err, "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", container, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("get object %s/%s: %w: %v", container, name, ErrBlobNotFound, err)
		}
		return nil, fmt.Errorf("get object %s/%s: %w", container, name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", container, name, err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, container, name string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(container),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", container, name, err)
	}
	return nil
}

func isS3Code(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
