package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"alphapulse/internal/config"
)

// ObjectStore is the publication boundary: whole-object overwrite is the
// only operation the pipeline uses. A failed put leaves the previous
// artifact live; there is no partial-write mode.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, opts PutOptions) error
}

type PutOptions struct {
	ContentType  string
	CacheControl string
}

// R2Store talks to an S3-compatible endpoint (Cloudflare R2 in production)
// with v4 signatures.
type R2Store struct {
	client *minio.Client
	bucket string
}

func NewR2(cfg config.R2Config) (*R2Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	secure := cfg.UseSSL

	// The configured endpoint may carry a scheme; minio wants a bare host.
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		secure = u.Scheme != "http"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init: %w", err)
	}

	return &R2Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *R2Store) Put(ctx context.Context, key string, body []byte, opts PutOptions) error {
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType:  opts.ContentType,
			CacheControl: opts.CacheControl,
		})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
