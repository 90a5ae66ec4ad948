package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	TotalNewsFetched   int64
	DuplicatesFiltered int64
	KeywordFiltered    int64
	PrefilterRejected  int64
	SummariesGenerated int64
	SummariesFailed    int64
	PostfilterRejected int64
	NotificationsSent  int64

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

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddNewsFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalNewsFetched += int64(n)
}

func (m *Metrics) AddDuplicatesFiltered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered += int64(n)
}

func (m *Metrics) AddKeywordFiltered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.KeywordFiltered += int64(n)
}

func (m *Metrics) AddPrefilterRejected(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PrefilterRejected += int64(n)
}

func (m *Metrics) AddSummariesGenerated(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummariesGenerated += int64(n)
}

func (m *Metrics) IncrementSummariesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummariesFailed++
}

func (m *Metrics) AddPostfilterRejected(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostfilterRejected += int64(n)
}

func (m *Metrics) IncrementNotificationsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotificationsSent++
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

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_news_fetched":         m.TotalNewsFetched,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"keyword_filtered":           m.KeywordFiltered,
		"prefilter_rejected":         m.PrefilterRejected,
		"summaries_generated":        m.SummariesGenerated,
		"summaries_failed":           m.SummariesFailed,
		"postfilter_rejected":        m.PostfilterRejected,
		"notifications_sent":         m.NotificationsSent,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
