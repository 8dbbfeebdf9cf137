package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore keeps run history in a single JSON file.
type FileStore struct {
	filePath string
	limit    int
	runs     []RunSummary
	mu       sync.RWMutex
}

// NewFileStore creates a new file store. Call Load to read existing history.
func NewFileStore(filePath string, limit int) *FileStore {
	return &FileStore{filePath: filePath, limit: limit}
}

// Load reads existing history from the file. A missing or empty file is an
// empty history.
func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var runs []RunSummary
	if err := json.Unmarshal(data, &runs); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}
	fs.runs = runs
	fs.sortAndTrim()
	return nil
}

// Save inserts run, or replaces the run with the same id, and rewrites the file.
func (fs *FileStore) Save(_ context.Context, run RunSummary) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	replaced := false
	for i := range fs.runs {
		if fs.runs[i].ID == run.ID {
			fs.runs[i] = run
			replaced = true
			break
		}
	}
	if !replaced {
		fs.runs = append(fs.runs, run)
	}
	fs.sortAndTrim()

	data, err := json.MarshalIndent(fs.runs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// write-then-rename so a crash never leaves a truncated file
	if dir := filepath.Dir(fs.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating history directory: %w", err)
		}
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

func (fs *FileStore) List(_ context.Context, limit int) ([]RunSummary, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n := len(fs.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RunSummary, n)
	copy(out, fs.runs[:n])
	return out, nil
}

func (fs *FileStore) Get(_ context.Context, id string) (RunSummary, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for _, r := range fs.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return RunSummary{}, ErrNotFound
}

func (fs *FileStore) Close() error { return nil }

// sortAndTrim orders runs newest first and drops what exceeds the limit.
// Caller holds the lock.
func (fs *FileStore) sortAndTrim() {
	sort.SliceStable(fs.runs, func(i, j int) bool {
		return fs.runs[i].StartedAt.After(fs.runs[j].StartedAt)
	})
	if fs.limit > 0 && len(fs.runs) > fs.limit {
		fs.runs = fs.runs[:fs.limit]
	}
}
