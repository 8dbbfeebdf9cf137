// Package webhook delivers run output to the downstream automation hooks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/dispatch/internal/retry"
)

// ErrUnauthorized is returned when the task hook rejects the API key.
var ErrUnauthorized = errors.New("webhook request failed (401 Unauthorized): the x-make-apikey token was rejected")

const apiKeyHeader = "x-make-apikey"

// Task is the per-slot payload.
type Task struct {
	Headline string `json:"headline"`
	ImageURL string `json:"imageUrl"`
	Summary  string `json:"summary"`
	NewsLink string `json:"newsLink"`
	Status   string `json:"status"`
}

// BundleItem is one finished piece of content in the final bundle.
type BundleItem struct {
	ImageURL   string `json:"imageUrl"`
	Caption    string `json:"caption"`
	SourceLink string `json:"sourceLink"`
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("webhook request failed with status %d: %s", e.status, e.body)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			slog.Debug("failed to close webhook response body", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &httpError{status: resp.StatusCode, body: string(bytes.TrimSpace(text))}
	}
	return nil
}

// TaskHook posts one Task per finished slot.
type TaskHook struct {
	url    string
	token  string
	client *http.Client
	retry  retry.RetryConfig
}

func NewTaskHook(url, token string, client *http.Client, cfg retry.RetryConfig) *TaskHook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TaskHook{url: url, token: token, client: client, retry: cfg}
}

// SendTask delivers t, retrying transient failures. A 401 is not retried.
func (h *TaskHook) SendTask(ctx context.Context, t Task) error {
	headers := map[string]string{}
	if h.token != "" {
		headers[apiKeyHeader] = h.token
	}

	return retry.WithRetry(ctx, h.retry, func() error {
		err := postJSON(ctx, h.client, h.url, headers, t)
		var he *httpError
		if errors.As(err, &he) && he.status == http.StatusUnauthorized {
			return retry.Permanent(ErrUnauthorized)
		}
		return err
	})
}

// BundleHook posts the final bundle of a run.
type BundleHook struct {
	url    string
	client *http.Client
}

func NewBundleHook(url string, client *http.Client) *BundleHook {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BundleHook{url: url, client: client}
}

// SendBundle posts {link1..linkN, generatedContents}. It is a no-op when no
// URL is configured or there is nothing to send.
func (h *BundleHook) SendBundle(ctx context.Context, items []BundleItem) error {
	if h.url == "" || len(items) == 0 {
		return nil
	}
	if err := postJSON(ctx, h.client, h.url, nil, bundlePayload(items)); err != nil {
		return fmt.Errorf("final bundle: %w", err)
	}
	return nil
}

func bundlePayload(items []BundleItem) map[string]any {
	payload := make(map[string]any, len(items)+1)
	for i, it := range items {
		payload[fmt.Sprintf("link%d", i+1)] = it.ImageURL
	}
	payload["generatedContents"] = items
	return payload
}
