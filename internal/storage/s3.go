// Package storage archives inbound meal photos in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config locates the bucket. Endpoint is empty for AWS itself and set for
// R2, MinIO and the like.
type S3Config struct {
	Bucket        string `json:"bucket"`
	Endpoint      string `json:"endpoint"`
	Region        string `json:"region"`
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	PublicBaseURL string `json:"public_base_url"`
}

// Enabled reports whether a bucket is configured
func (c S3Config) Enabled() bool { return c.Bucket != "" }

type S3PhotoStore struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3PhotoStore(ctx context.Context, cfg S3Config) (*S3PhotoStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is not set")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(
				func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
					if service == s3.ServiceID {
						return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region}, nil
					}
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				},
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading s3 config: %w", err)
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "s3://" + cfg.Bucket
	}

	return &S3PhotoStore{
		client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.Endpoint != ""
		}),
		bucket:  cfg.Bucket,
		baseURL: baseURL,
	}, nil
}

// Put uploads one photo under photos/<user>/<uuid> and returns its URL
func (s *S3PhotoStore) Put(ctx context.Context, userID int64, image []byte) (string, error) {
	contentType := http.DetectContentType(image)
	key := fmt.Sprintf("photos/%d/%s%s", userID, uuid.NewString(), extension(contentType))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(image),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading photo: %w", err)
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ""
}
