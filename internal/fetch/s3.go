package fetch

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3 compatible object store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3 downloads s3://bucket/key locators with MinIO.
type S3 struct {
	client *minio.Client
}

// NewS3 creates an S3 fetcher.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MinIO client: %w", err)
	}
	return &S3{client: client}, nil
}

func (s *S3) Fetch(ctx context.Context, locator string) (*Local, error) {
	bucket, key, err := splitS3Locator(locator)
	if err != nil {
		return nil, &Error{Locator: locator, Err: err}
	}

	tmp, err := os.CreateTemp("", "docextract-*"+sanitizeExt(path.Ext(key)))
	if err != nil {
		return nil, &Error{Locator: locator, Err: fmt.Errorf("creating temporary file: %w", err)}
	}
	tmp.Close()
	local := &Local{Path: tmp.Name(), temp: true}

	if err := s.client.FGetObject(ctx, bucket, key, local.Path, minio.GetObjectOptions{}); err != nil {
		local.Release()
		return nil, &Error{Locator: locator, Err: fmt.Errorf("downloading object: %w", err)}
	}
	return local, nil
}

func splitS3Locator(locator string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(locator, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 locator")
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 locator must be s3://bucket/key")
	}
	return bucket, key, nil
}
