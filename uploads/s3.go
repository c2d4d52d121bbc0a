package uploads

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/user/postboard-go/config"
)

// s3API is the part of the S3 client the storage uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage keeps uploads in an S3-compatible bucket. Stored files are
// addressed by their object URL.
type S3Storage struct {
	client  s3API
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Storage creates an S3 storage. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Storage(ctx context.Context, cfg *config.UploadConfig) (*S3Storage, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.S3Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3Storage(s3.NewFromConfig(awsCfg, s3opts...), cfg), nil
}

func newS3Storage(client s3API, cfg *config.UploadConfig) *S3Storage {
	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	if cfg.S3Endpoint != "" {
		baseURL = strings.TrimSuffix(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
	}
	prefix := strings.Trim(cfg.S3Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Storage{client: client, bucket: cfg.S3Bucket, prefix: prefix, baseURL: baseURL}
}

func (s *S3Storage) Save(ctx context.Context, folder, name, contentType string, r io.Reader) (string, error) {
	key := s.prefix + folder + "/" + name
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *S3Storage) Remove(ctx context.Context, path string) error {
	key, ok := strings.CutPrefix(path, s.baseURL+"/")
	if !ok || key == "" {
		return fmt.Errorf("path %q is not in bucket %s", path, s.bucket)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// NewStorage selects S3 when a bucket is configured and the local
// filesystem otherwise.
func NewStorage(ctx context.Context, cfg *config.UploadConfig) (Storage, error) {
	if cfg.S3Bucket != "" {
		return NewS3Storage(ctx, cfg)
	}
	return NewLocalStorage(cfg.Dir, "/uploads")
}
