package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status is one log entry mirrored to the monitoring hook.
type Status struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Category  string         `json:"category,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// StatusReporter posts every Status on its own goroutine. Callers never wait
// on delivery and failures are only logged.
type StatusReporter struct {
	url     string
	client  *http.Client
	timeout time.Duration

	wg sync.WaitGroup
}

func NewStatusReporter(url string, client *http.Client) *StatusReporter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if url == "" {
		slog.Warn("status reporting is disabled, STATUS_WEBHOOK_URL is not set")
	}
	return &StatusReporter{url: url, client: client, timeout: 10 * time.Second}
}

func (r *StatusReporter) Report(s Status) {
	if r.url == "" {
		return
	}
	if s.Timestamp == "" {
		s.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// detached from the run context so a finished run still flushes
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := postJSON(ctx, r.client, r.url, nil, s); err != nil {
			slog.Debug("failed to send status update", "error", err)
		}
	}()
}

// Flush waits up to timeout for in-flight reports. Used at shutdown.
func (r *StatusReporter) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
