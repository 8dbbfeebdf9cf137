package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS writes images to a Cloud Storage bucket.
type GCS struct {
	client        *storage.Client
	bucket        string
	prefix        string
	publicBaseURL string
}

func NewGCS(ctx context.Context, bucket, prefix, publicBaseURL string, opts ...option.ClientOption) (*GCS, error) {
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{
		client:        client,
		bucket:        bucket,
		prefix:        strings.Trim(prefix, "/"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Upload(ctx context.Context, name string, png []byte) (string, error) {
	key := objectKey(g.prefix, name)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "image/png"
	w.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(w, bytes.NewReader(png)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return publicURL(g.publicBaseURL, g.bucket, key), nil
}

func objectKey(prefix, name string) string {
	key := strings.Trim(name, "/") + ".png"
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func publicURL(baseURL, bucket, key string) string {
	if baseURL != "" {
		return baseURL + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
