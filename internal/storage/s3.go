// Package storage defines functions used to interact with the object store
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Objects above this size go through the multipart uploader
const minMultipartSize = 12 << 20

// ObjectStore is the blob interface the pipeline consumes. S3Client is
// the real implementation; tests swap in fakes.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (size int64, err error)
}

type S3Client struct {
	C      *s3.Client
	Bucket *string
}

// NewS3 connects to the configured S3 compatible endpoint (MinIO in
// dev) and makes sure the bucket exists, creating it when missing.
func NewS3() (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			viper.GetString("storage.access_key_id"),
			viper.GetString("storage.secret_access_key"),
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	bucket := aws.String(viper.GetString("storage.bucket"))

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.Region = viper.GetString("storage.region")
		o.BaseEndpoint = aws.String(viper.GetString("storage.endpoint"))
		// MinIO doesn't do virtual-hosted bucket addressing
		o.UsePathStyle = true
	})

	_, err = client.HeadBucket(context.TODO(), &s3.HeadBucketInput{
		Bucket: bucket,
	})
	if err != nil {
		var apiErr smithy.APIError

		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			_, err = client.CreateBucket(context.TODO(), &s3.CreateBucketInput{
				Bucket: bucket,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create bucket '%s', %w", *bucket, err)
			}

			zap.L().Info("Created bucket", zap.String("bucket", *bucket))
		} else {
			return nil, fmt.Errorf("failed to check if bucket exists, %w", err)
		}
	}

	return &S3Client{
		C:      client,
		Bucket: bucket,
	}, nil
}

func (s *S3Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        s.Bucket,
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}

	var err error
	if size > minMultipartSize {
		u := manager.NewUploader(s.C, func(u *manager.Uploader) {
			u.Concurrency = 5
			u.PartSize = 6 << 20
		})

		_, err = u.Upload(ctx, input)
	} else {
		_, err = s.C.PutObject(ctx, input)
	}
	if err != nil {
		return fmt.Errorf("failed to upload object '%s', %w", key, err)
	}

	return nil
}

func (s *S3Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s', %w", key, err)
	}

	return out.Body, nil
}

// GetRange streams the byte window [start, end] (inclusive, like the
// HTTP Range header) of an object.
func (s *S3Client) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	out, err := s.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object range '%s', %w", key, err)
	}

	return out.Body, nil
}

func (s *S3Client) Stat(ctx context.Context, key string) (int64, error) {
	out, err := s.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to stat object '%s', %w", key, err)
	}

	return aws.ToInt64(out.ContentLength), nil
}
