package transform

import (
	"sync"
	"time"
)

// MetricsSnapshot is a point-in-time copy of a transformer's metrics.
// Durations are in milliseconds.
type MetricsSnapshot struct {
	Processed             int64     `json:"processed"`
	Errors                int64     `json:"errors"`
	LastProcessingTime    float64   `json:"lastProcessingTime"`
	AverageProcessingTime float64   `json:"averageProcessingTime"`
	TotalProcessingTime   float64   `json:"totalProcessingTime"`
	StartTime             time.Time `json:"startTime"`
	Uptime                float64   `json:"uptime"`

	// SuccessRate is processed/(processed+errors), or 0 before any call.
	SuccessRate float64 `json:"successRate"`
}

// stats is the process-lifetime metrics state of one transformer.
type stats struct {
	mu        sync.Mutex
	processed int64
	errors    int64
	lastMs    float64
	totalMs   float64
	averageMs float64
	startTime time.Time
}

func newStats(start time.Time) *stats {
	return &stats{startTime: start}
}

func (s *stats) recordSuccess(elapsed time.Duration) {
	ms := float64(elapsed) / float64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed++
	s.lastMs = ms
	s.totalMs += ms
	s.averageMs = s.totalMs / float64(s.processed)
}

func (s *stats) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors++
}

func (s *stats) snapshot(now time.Time) MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := MetricsSnapshot{
		Processed:             s.processed,
		Errors:                s.errors,
		LastProcessingTime:    s.lastMs,
		AverageProcessingTime: s.averageMs,
		TotalProcessingTime:   s.totalMs,
		StartTime:             s.startTime,
		Uptime:                float64(now.Sub(s.startTime)) / float64(time.Millisecond),
	}
	if total := s.processed + s.errors; total > 0 {
		snap.SuccessRate = float64(s.processed) / float64(total)
	}
	return snap
}
