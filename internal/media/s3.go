// internal/media/s3.go
// Package media provides S3-compatible storage for entry artifacts: fund-item
// photos, card QR images and PDFs. It handles presigned URL generation for
// client access and server-side copies into snapshot-owned prefixes.
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client wraps the AWS S3 client for artifact operations.
type S3Client struct {
	client *s3.Client // AWS S3 client
	bucket string     // Bucket holding entry artifacts
}

// NewS3Client creates an S3 client. It supports both AWS S3 and S3-compatible
// services like MinIO.
func NewS3Client(endpoint, region, bucket, accessKey, secretKey string) (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for MinIO and other S3-compatible services
	})

	return &S3Client{
		client: client,
		bucket: bucket,
	}, nil
}

// GenerateUploadURL generates a presigned PUT URL so clients upload fund
// photos directly to S3 without streaming through the service.
func (s *S3Client) GenerateUploadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)

	presignResult, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return presignResult.URL, nil
}

// GenerateDownloadURL generates a presigned GET URL for a stored artifact,
// e.g. a card's QR image or PDF.
func (s *S3Client) GenerateDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)

	presignResult, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}

	return presignResult.URL, nil
}

// SnapshotKey builds the snapshot-owned key for a copied photo.
// Layout: snapshots/<snapshotID>/<original basename>.
func SnapshotKey(snapshotID, sourceKey string) string {
	base := sourceKey
	if i := strings.LastIndex(sourceKey, "/"); i >= 0 {
		base = sourceKey[i+1:]
	}
	return fmt.Sprintf("snapshots/%s/%s", snapshotID, base)
}

// CopyToSnapshot copies a source object into a snapshot-owned prefix so later
// edits or deletions of the live photo cannot touch the frozen pack.
// Returns the destination key.
func (s *S3Client) CopyToSnapshot(ctx context.Context, snapshotID, sourceKey string) (string, error) {
	destKey := SnapshotKey(snapshotID, sourceKey)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + sourceKey),
		Key:        aws.String(destKey),
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy object into snapshot: %w", err)
	}

	return destKey, nil
}

// ObjectExists checks an artifact's presence and returns its size. Used to
// verify a fund photo finished uploading before it joins a snapshot manifest.
func (s *S3Client) ObjectExists(ctx context.Context, key string) (bool, int64, error) {
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to get object metadata: %w", err)
	}
	return true, *result.ContentLength, nil
}
