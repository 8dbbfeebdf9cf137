// Package storage keeps the history of finished runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// SlotSummary is the final state of one slot in a run.
type SlotSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Headline string `json:"headline,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	NewsLink string `json:"news_link,omitempty"`
}

// RunSummary is what gets persisted once a run has finished.
type RunSummary struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Articles   int           `json:"articles"`
	Done       int           `json:"done"`
	Failed     int           `json:"failed"`
	FatalError string        `json:"fatal_error,omitempty"`
	Slots      []SlotSummary `json:"slots"`
}

// Store persists run summaries. List returns the newest runs first.
type Store interface {
	Save(ctx context.Context, run RunSummary) error
	List(ctx context.Context, limit int) ([]RunSummary, error)
	Get(ctx context.Context, id string) (RunSummary, error)
	Close() error
}

// Open returns the store for backend: "file" uses path as a JSON file,
// "sqlite" uses path as a database file and "postgres" connects to dsn.
// Each store keeps at most limit runs (0 keeps everything).
func Open(ctx context.Context, backend, path, dsn string, limit int) (Store, error) {
	switch backend {
	case "", "file":
		fs := NewFileStore(path, limit)
		if err := fs.Load(); err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite":
		return OpenSQLite(ctx, path, limit)
	case "postgres":
		return OpenPostgres(ctx, dsn, limit)
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}
