package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// S3Config configures S3Store. Endpoint selects an S3-compatible server (MinIO, localstack)
// and switches to path-style addressing. PublicBaseURL overrides the URL prefix handed out
// for stored objects, e.g. a CDN.
type S3Config struct {
	Region        string
	Bucket        string
	Endpoint      string
	PublicBaseURL string
}

// S3Store stores media in an S3 bucket.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsConf, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		baseURL:  objectBaseURL(cfg),
	}, nil
}

// objectBaseURL is the prefix of every object URL, ending with a slash.
func objectBaseURL(cfg S3Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/") + "/"
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket + "/"
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", cfg.Bucket, cfg.Region)
	}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return s.baseURL + escapeKey(key), nil
}

// Delete removes the object behind url. S3 deletes are idempotent, so existence is checked
// first to report domain.ErrBlobNotFound.
func (s *S3Store) Delete(ctx context.Context, objectURL string) error {
	key, err := keyFromURL(s.baseURL, objectURL)
	if err != nil {
		return err
	}
	exists, err := s.head(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrBlobNotFound
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, objectURL string) (bool, error) {
	key, err := keyFromURL(s.baseURL, objectURL)
	if err != nil {
		return false, err
	}
	return s.head(ctx, key)
}

func (s *S3Store) head(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head %s: %w", key, err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// keyFromURL recovers the object key from a URL produced by Put.
func keyFromURL(baseURL, objectURL string) (string, error) {
	if !strings.HasPrefix(objectURL, baseURL) {
		return "", fmt.Errorf("blob url %q is not served by this store", objectURL)
	}
	escaped := strings.TrimPrefix(objectURL, baseURL)
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("blob url %q: %w", objectURL, err)
	}
	if key == "" {
		return "", fmt.Errorf("blob url %q has no object key", objectURL)
	}
	return key, nil
}
