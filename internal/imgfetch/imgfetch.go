// Package imgfetch downloads and decodes remote images.
package imgfetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/deusflow/dispatch/internal/cache"
	_ "golang.org/x/image/webp"
)

const maxImageBytes = 20 << 20

type Loader struct {
	client *http.Client
	assets *cache.Cache[image.Image]
	ttl    time.Duration
}

// New returns a Loader. Assets are memoized for ttl; a zero ttl disables the
// asset cache.
func New(client *http.Client, ttl time.Duration) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	l := &Loader{client: client, ttl: ttl}
	if ttl > 0 {
		l.assets = cache.New[image.Image](time.Hour)
	}
	return l
}

// Load downloads and decodes the image at rawURL.
func (l *Loader) Load(ctx context.Context, rawURL string) (image.Image, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("image url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating image request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return Decode(data)
}

// LoadAsset is Load memoized by URL, for brand assets reused across runs.
func (l *Loader) LoadAsset(ctx context.Context, rawURL string) (image.Image, error) {
	if l.assets == nil {
		return l.Load(ctx, rawURL)
	}
	key := cache.Key("asset", rawURL)
	if img, ok := l.assets.Get(key); ok {
		return img, nil
	}
	img, err := l.Load(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	l.assets.Set(key, img, l.ttl)
	return img, nil
}

func (l *Loader) Close() {
	if l.assets != nil {
		l.assets.Close()
	}
}

// Decode decodes JPEG, PNG, GIF or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
