package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrBudgetExceeded is returned by Use once a service has spent its budget.
var ErrBudgetExceeded = errors.New("rate limit exceeded")

// Service names an external paid API that is budgeted per run.
type Service string

const (
	Model Service = "model"
	Image Service = "image"
)

// Budget caps how many calls each service may receive until the next Reset.
// A limit of 0 means unlimited.
type Budget struct {
	mu     sync.Mutex
	limits map[Service]int
	used   map[Service]int
	denied int
}

func NewBudget(limits map[Service]int) *Budget {
	l := make(map[Service]int, len(limits))
	for k, v := range limits {
		l[k] = v
	}
	return &Budget{limits: l, used: make(map[Service]int)}
}

// Use records one call against svc, or returns ErrBudgetExceeded without
// recording anything.
func (b *Budget) Use(svc Service) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := b.limits[svc]
	if limit > 0 && b.used[svc] >= limit {
		b.denied++
		slog.Warn("AI budget reached", "service", svc, "used", b.used[svc], "limit", limit)
		return fmt.Errorf("%s: %w (%d/%d)", svc, ErrBudgetExceeded, b.used[svc], limit)
	}

	b.used[svc]++
	slog.Debug("AI usage", "service", svc, "used", b.used[svc], "limit", limit)
	return nil
}

// Reset zeroes the counters. Called at the start of every run.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.used = make(map[Service]int)
	b.denied = 0
}

func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"model_used":  b.used[Model],
		"model_limit": b.limits[Model],
		"image_used":  b.used[Image],
		"image_limit": b.limits[Image],
		"denied":      b.denied,
	}
}
