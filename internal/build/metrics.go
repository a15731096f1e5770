package build

import (
	"sync"
	"time"
)

// Metrics tracks build performance across the life of a Generator.
type Metrics struct {
	TotalBuilds      int64
	SuccessfulBuilds int64
	FailedBuilds     int64
	CacheHits        int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	LastSize         int
	LastGzipSize     int
	mutex            sync.RWMutex
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordBuild records one build. stats is nil for failed builds.
func (m *Metrics) RecordBuild(duration time.Duration, stats *Stats, cacheHit bool, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalBuilds++
	m.TotalDuration += duration

	if cacheHit {
		m.CacheHits++
	}

	if err != nil {
		m.FailedBuilds++
	} else {
		m.SuccessfulBuilds++
	}
	if stats != nil {
		m.LastSize = stats.Size
		m.LastGzipSize = stats.GzipSize
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalBuilds)
}

// GetSnapshot returns a copy of the current metrics.
func (m *Metrics) GetSnapshot() Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Metrics{
		TotalBuilds:      m.TotalBuilds,
		SuccessfulBuilds: m.SuccessfulBuilds,
		FailedBuilds:     m.FailedBuilds,
		CacheHits:        m.CacheHits,
		AverageDuration:  m.AverageDuration,
		TotalDuration:    m.TotalDuration,
		LastSize:         m.LastSize,
		LastGzipSize:     m.LastGzipSize,
	}
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalBuilds = 0
	m.SuccessfulBuilds = 0
	m.FailedBuilds = 0
	m.CacheHits = 0
	m.AverageDuration = 0
	m.TotalDuration = 0
	m.LastSize = 0
	m.LastGzipSize = 0
}

// GetCacheHitRate returns the percentage of builds whose minified output
// came from the minifier cache.
func (m *Metrics) GetCacheHitRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalBuilds == 0 {
		return 0.0
	}

	return float64(m.CacheHits) / float64(m.TotalBuilds) * 100.0
}

// GetSuccessRate returns the success rate as a percentage.
func (m *Metrics) GetSuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalBuilds == 0 {
		return 0.0
	}

	return float64(m.SuccessfulBuilds) / float64(m.TotalBuilds) * 100.0
}
