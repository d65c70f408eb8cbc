package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
)

// ObjectPutter is the subset of the S3 client used for mirroring.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage mirrors product images into a bucket.
type S3Storage struct {
	client  ObjectPutter
	bucket  string
	region  string
	baseURL string
	folder  string
}

func NewS3Storage(region, bucket, accessKeyID, secretAccessKey, baseURL, folder string) *S3Storage {
	var cfg aws.Config
	var err error

	// If credentials are provided, use them. Otherwise, use default credential chain
	if accessKeyID != "" && secretAccessKey != "" {
		cfg = aws.Config{
			Region: region,
			Credentials: credentials.NewStaticCredentialsProvider(
				accessKeyID,
				secretAccessKey,
				"",
			),
		}
	} else {
		// Use default credential chain (environment variables, ~/.aws/credentials, IAM role, etc.)
		cfg, err = config.LoadDefaultConfig(context.TODO(),
			config.WithRegion(region),
		)
		if err != nil {
			logger.Warn("Failed to load default AWS config, using region only", map[string]interface{}{
				"error": err.Error(),
			})
			cfg = aws.Config{
				Region: region,
			}
		}
	}

	return NewS3StorageWithClient(s3.NewFromConfig(cfg), region, bucket, baseURL, folder)
}

// NewS3StorageWithClient is used by tests and callers that build their own client.
func NewS3StorageWithClient(client ObjectPutter, region, bucket, baseURL, folder string) *S3Storage {
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		region:  region,
		baseURL: strings.TrimRight(baseURL, "/"),
		folder:  strings.Trim(folder, "/"),
	}
}

// PutImage uploads data under folder/key and returns its public URL. Keys are
// derived from the source URL, so re-uploading the same image overwrites it.
func (s *S3Storage) PutImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := key
	if s.folder != "" {
		objectKey = path.Join(s.folder, key)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(objectKey),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}

	logger.Debug("Image mirrored to S3", map[string]interface{}{
		"bucket": s.bucket,
		"key":    objectKey,
		"bytes":  len(data),
	})
	return s.objectURL(objectKey), nil
}

func (s *S3Storage) objectURL(key string) string {
	if s.baseURL != "" {
		// Use CloudFront or custom domain
		return fmt.Sprintf("%s/%s", s.baseURL, key)
	}
	// Use S3 direct URL
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
