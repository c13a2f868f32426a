package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
)

// S3Storage archives generated reports.
type S3Storage struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// StoredObject describes an uploaded object.
type StoredObject struct {
	Key         string `json:"key"`
	FileURL     string `json:"file_url"`
	DownloadURL string `json:"download_url"`
}

func NewS3Storage(region, bucket, accessKeyID, secretAccessKey, baseURL string) *S3Storage {
	var cfg aws.Config
	var err error

	// Static credentials when provided, otherwise the default chain
	// (environment, shared config, instance role).
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

	return &S3Storage{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		baseURL: baseURL,
	}
}

// ObjectKey builds a unique key under folder keeping filename's extension.
func ObjectKey(folder, filename string) string {
	return fmt.Sprintf("%s/%s/%s%s", folder, time.Now().UTC().Format("2006/01/02"), uuid.New().String(), filepath.Ext(filename))
}

// Upload stores body under a fresh key in folder and returns a presigned
// download link valid for expiry.
func (s *S3Storage) Upload(ctx context.Context, folder, filename, contentType string, body []byte, expiry time.Duration) (*StoredObject, error) {
	key := ObjectKey(folder, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(body),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf(`attachment; filename="%s"`, filename)),
	})
	if err != nil {
		logger.Error("Failed to upload object to S3", err, map[string]interface{}{
			"bucket": s.bucket,
			"key":    key,
		})
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	presignClient := s3.NewPresignClient(s.client)
	presigned, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	logger.Info("Object archived to S3", map[string]interface{}{
		"bucket": s.bucket,
		"key":    key,
		"size":   len(body),
	})

	return &StoredObject{
		Key:         key,
		FileURL:     s.fileURL(key),
		DownloadURL: presigned.URL,
	}, nil
}

func (s *S3Storage) fileURL(key string) string {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.client.Options().Region, key)
}
