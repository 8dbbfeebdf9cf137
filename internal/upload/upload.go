// Package upload publishes composed images and returns their public URLs.
package upload

import (
	"context"
	"log/slog"

	"github.com/deusflow/dispatch/internal/retry"
)

// Uploader stores a PNG under name and returns a public URL for it. name is
// unique per slot within a run, e.g. "<runID>/<slotID>".
type Uploader interface {
	Upload(ctx context.Context, name string, png []byte) (string, error)
}

// Retrying retries a failed upload according to cfg.
type Retrying struct {
	Uploader Uploader
	Config   retry.RetryConfig
}

func (r Retrying) Upload(ctx context.Context, name string, png []byte) (string, error) {
	var url string
	err := retry.WithRetry(ctx, r.Config, func() error {
		u, err := r.Uploader.Upload(ctx, name, png)
		if err != nil {
			slog.Debug("upload attempt failed", "name", name, "error", err)
			return err
		}
		url = u
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}
