// Package storage publishes generated assets (QR images, receipts) to an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config points at an AWS, Cloudflare R2 or MinIO bucket that is readable at PublicBaseURL.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicBaseURL   string
	StorageClass    string
	KeyPrefix       string
}

// Enabled reports whether enough is configured to publish objects.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.Bucket) != "" &&
		strings.TrimSpace(c.PublicBaseURL) != ""
}

func (c Config) normalized() (Config, error) {
	out := Config{
		Endpoint:        normalizeEndpoint(c.Endpoint),
		Region:          strings.TrimSpace(c.Region),
		AccessKeyID:     strings.TrimSpace(c.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(c.SecretAccessKey),
		Bucket:          strings.TrimSpace(c.Bucket),
		PublicBaseURL:   strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/"),
		StorageClass:    strings.ToUpper(strings.TrimSpace(c.StorageClass)),
		KeyPrefix:       strings.Trim(strings.TrimSpace(c.KeyPrefix), "/"),
	}
	var errs []error
	if out.Endpoint == "" {
		errs = append(errs, errors.New("object store endpoint is required"))
	}
	if out.Bucket == "" {
		errs = append(errs, errors.New("object store bucket is required"))
	}
	if out.PublicBaseURL == "" {
		errs = append(errs, errors.New("object store public base url is required"))
	}
	if out.Region == "" {
		out.Region = "auto"
	}
	return out, errors.Join(errs...)
}

type putAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ObjectStore struct {
	cfg    Config
	client putAPI
}

func NewObjectStore(ctx context.Context, cfg Config) (*ObjectStore, error) {
	cfg, err := cfg.normalized()
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		// R2 and MinIO expect path-style addressing.
		o.UsePathStyle = true
	})
	return &ObjectStore{cfg: cfg, client: client}, nil
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return ""
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	return strings.TrimRight(endpoint, "/")
}

// objectKey places key under the configured prefix.
func (s *ObjectStore) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.cfg.KeyPrefix == "" {
		return key
	}
	return path.Join(s.cfg.KeyPrefix, key)
}

func (s *ObjectStore) PublicURL(key string) string {
	return s.cfg.PublicBaseURL + "/" + s.objectKey(key)
}

// PutObject uploads body and returns its public URL. Objects are written with an immutable
// cache policy.
func (s *ObjectStore) PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	objectKey := s.objectKey(key)
	if objectKey == "" {
		return "", errors.New("object key is required")
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	}
	if s.cfg.StorageClass != "" {
		in.StorageClass = types.StorageClass(s.cfg.StorageClass)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return s.PublicURL(key), nil
}
