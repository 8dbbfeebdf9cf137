package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	RunsStarted      int64
	RunsCompleted    int64
	RunsFailed       int64
	ArticlesGathered int64
	SlotsDone        int64
	SlotsFailed      int64
	ImagesGenerated  int64
	WebhooksSent     int64
	WebhooksFailed   int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) IncrementRunsStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsStarted++
}

func (m *Metrics) IncrementRunsCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsCompleted++
}

func (m *Metrics) IncrementRunsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsFailed++
}

func (m *Metrics) AddArticlesGathered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesGathered += int64(n)
}

func (m *Metrics) IncrementSlotsDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SlotsDone++
}

func (m *Metrics) IncrementSlotsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SlotsFailed++
}

func (m *Metrics) IncrementImagesGenerated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ImagesGenerated++
}

func (m *Metrics) IncrementWebhooksSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhooksSent++
}

func (m *Metrics) IncrementWebhooksFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WebhooksFailed++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"runs_started":               m.RunsStarted,
		"runs_completed":             m.RunsCompleted,
		"runs_failed":                m.RunsFailed,
		"articles_gathered":          m.ArticlesGathered,
		"slots_done":                 m.SlotsDone,
		"slots_failed":               m.SlotsFailed,
		"images_generated":           m.ImagesGenerated,
		"webhooks_sent":              m.WebhooksSent,
		"webhooks_failed":            m.WebhooksFailed,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
