package client

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"kyc-service/internal/config"
	"kyc-service/internal/util"
)

// S3Storage uploads identity-document images to S3 and returns their public
// URL. It implements the object storage contract the document submission
// service depends on.
type S3Storage struct {
	client *s3.Client
	bucket string
	region string
	prefix string
}

func NewS3Storage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*S3Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("S3 storage configured",
		util.String("bucket", cfg.S3.Bucket),
		util.String("region", cfg.S3.Region),
	)

	return &S3Storage{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3.Bucket,
		region: cfg.S3.Region,
		prefix: cfg.S3.KeyPrefix,
	}, nil
}

// Store uploads the file at localPath under key and returns the object URL.
func (s *S3Storage) Store(ctx context.Context, localPath, key string, contentType string) (string, error) {
	body, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open upload source: %w", err)
	}
	defer body.Close()

	fullKey := path.Join(s.prefix, key)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(fullKey),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, fullKey), nil
}

// Delete removes a previously stored object.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	fullKey := path.Join(s.prefix, key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", fullKey, err)
	}
	return nil
}
