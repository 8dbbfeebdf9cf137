package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/dispatch/internal/config"
	"github.com/deusflow/dispatch/internal/storage"
)

// Log levels of run entries.
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelError   = "ERROR"
)

type LogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Category  string         `json:"category,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Run is the state of one pipeline execution. It is owned by the controller
// executing it; other goroutines only read it through Snapshot.
type Run struct {
	mu sync.RWMutex

	id         string
	startedAt  time.Time
	finishedAt time.Time
	articles   int
	fatal      string
	slots      []*Slot
	logs       []LogEntry
	results    []TaskResult
}

// NewRun creates a run with one Pending slot per layout entry.
func NewRun(layout *config.Layout) *Run {
	r := &Run{id: uuid.NewString()}
	for _, def := range layout.Slots {
		name := def.Name
		if name == "" {
			name = def.ID
		}
		r.slots = append(r.slots, newSlot(def.ID, name, def.Type))
	}
	return r
}

func (r *Run) ID() string { return r.id }

// Snapshot is a point-in-time copy of a run, safe to serialize.
type Snapshot struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
	Running    bool         `json:"running"`
	Articles   int          `json:"articles"`
	FatalError string       `json:"fatalError,omitempty"`
	Slots      []Slot       `json:"slots"`
	Logs       []LogEntry   `json:"logs"`
	Results    []TaskResult `json:"results"`
}

func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		ID:         r.id,
		StartedAt:  r.startedAt,
		Running:    !r.startedAt.IsZero() && r.finishedAt.IsZero(),
		Articles:   r.articles,
		FatalError: r.fatal,
		Slots:      make([]Slot, len(r.slots)),
		Logs:       append([]LogEntry(nil), r.logs...),
		Results:    append([]TaskResult(nil), r.results...),
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	for i, sl := range r.slots {
		s.Slots[i] = sl.clone()
	}
	return s
}

// Summary condenses the run for the history store.
func (r *Run) Summary() storage.RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := storage.RunSummary{
		ID:         r.id,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
		Articles:   r.articles,
		FatalError: r.fatal,
		Slots:      make([]storage.SlotSummary, 0, len(r.slots)),
	}
	for _, sl := range r.slots {
		ss := storage.SlotSummary{
			ID:       sl.ID,
			Name:     sl.Name,
			Category: sl.Category,
			Status:   string(sl.Status),
			Error:    sl.Error,
		}
		if sl.Result != nil {
			ss.Headline = sl.Result.Headline
			ss.ImageURL = sl.Result.ImageURL
			ss.NewsLink = sl.Result.SourceURL
		}
		switch sl.Status {
		case StatusDone:
			sum.Done++
		case StatusError:
			sum.Failed++
		}
		sum.Slots = append(sum.Slots, ss)
	}
	return sum
}

func (r *Run) addLog(e LogEntry) {
	r.mu.Lock()
	r.logs = append(r.logs, e)
	r.mu.Unlock()
}

func (r *Run) move(s *Slot, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.moveTo(to)
}

func (r *Run) moveAll(to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if err := s.moveTo(to); err != nil {
			return err
		}
	}
	return nil
}

func (r *Run) fail(s *Slot, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Status.Terminal() {
		return
	}
	_ = s.moveTo(StatusError)
	s.Error = msg
}

func (r *Run) complete(s *Slot, res TaskResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := s.moveTo(StatusDone); err != nil {
		return err
	}
	s.Result = &res
	r.results = append(r.results, res)
	return nil
}

// failOpen moves every non-terminal slot to Error with msg.
func (r *Run) failOpen(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.Status.Terminal() {
			continue
		}
		_ = s.moveTo(StatusError)
		s.Error = msg
	}
}

func (r *Run) setStarted(t time.Time) {
	r.mu.Lock()
	r.startedAt = t
	r.mu.Unlock()
}

func (r *Run) setFinished(t time.Time) {
	r.mu.Lock()
	r.finishedAt = t
	r.mu.Unlock()
}

func (r *Run) setArticles(n int) {
	r.mu.Lock()
	r.articles = n
	r.mu.Unlock()
}

func (r *Run) setFatal(msg string) {
	r.mu.Lock()
	r.fatal = msg
	r.mu.Unlock()
}

func (r *Run) resultsCopy() []TaskResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TaskResult(nil), r.results...)
}
