package build

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/markupc/internal/errors"
)

func TestNewMetrics(t *testing.T) {
	metrics := NewMetrics()

	require.NotNil(t, metrics)
	assert.Equal(t, int64(0), metrics.TotalBuilds)
	assert.Equal(t, 0.0, metrics.GetCacheHitRate())
	assert.Equal(t, 0.0, metrics.GetSuccessRate())
}

func TestMetricsRecordBuild(t *testing.T) {
	metrics := NewMetrics()

	t.Run("successful build", func(t *testing.T) {
		metrics.RecordBuild(100*time.Millisecond, &Stats{Size: 4096, GzipSize: 1024}, false, nil)

		snap := metrics.GetSnapshot()
		assert.Equal(t, int64(1), snap.TotalBuilds)
		assert.Equal(t, int64(1), snap.SuccessfulBuilds)
		assert.Equal(t, int64(0), snap.FailedBuilds)
		assert.Equal(t, 100*time.Millisecond, snap.AverageDuration)
		assert.Equal(t, 4096, snap.LastSize)
		assert.Equal(t, 1024, snap.LastGzipSize)
	})

	t.Run("failed build keeps last sizes", func(t *testing.T) {
		metrics.RecordBuild(50*time.Millisecond, nil, false, errors.NewEncodingError("tags.B", "cannot encode"))

		snap := metrics.GetSnapshot()
		assert.Equal(t, int64(2), snap.TotalBuilds)
		assert.Equal(t, int64(1), snap.FailedBuilds)
		assert.Equal(t, 75*time.Millisecond, snap.AverageDuration)
		assert.Equal(t, 150*time.Millisecond, snap.TotalDuration)
		assert.Equal(t, 4096, snap.LastSize)
	})
}

func TestMetricsRates(t *testing.T) {
	metrics := NewMetrics()
	fail := errors.NewEncodingError("", "fail")

	// 4 builds: 3 successful, 3 served from the minifier cache
	metrics.RecordBuild(100*time.Millisecond, &Stats{}, true, nil)
	metrics.RecordBuild(150*time.Millisecond, &Stats{}, true, nil)
	metrics.RecordBuild(200*time.Millisecond, &Stats{}, false, nil)
	metrics.RecordBuild(50*time.Millisecond, nil, true, fail)

	assert.Equal(t, 75.0, metrics.GetCacheHitRate())
	assert.Equal(t, 75.0, metrics.GetSuccessRate())
	assert.Equal(t, 125*time.Millisecond, metrics.GetSnapshot().AverageDuration)
}

func TestMetricsReset(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordBuild(time.Millisecond, &Stats{Size: 10}, true, nil)

	metrics.Reset()

	snap := metrics.GetSnapshot()
	assert.Equal(t, int64(0), snap.TotalBuilds)
	assert.Equal(t, int64(0), snap.CacheHits)
	assert.Equal(t, time.Duration(0), snap.TotalDuration)
	assert.Equal(t, 0, snap.LastSize)
}

func TestMetricsConcurrentAccess(t *testing.T) {
	metrics := NewMetrics()
	const numGoroutines = 10
	const buildsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < buildsPerGoroutine; j++ {
				metrics.RecordBuild(time.Duration(j)*time.Millisecond, &Stats{Size: j}, j%2 == 0, nil)
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < buildsPerGoroutine; j++ {
				_ = metrics.GetSnapshot()
				_ = metrics.GetCacheHitRate()
				_ = metrics.GetSuccessRate()
			}
		}()
	}

	wg.Wait()

	snap := metrics.GetSnapshot()
	assert.Equal(t, int64(numGoroutines*buildsPerGoroutine), snap.TotalBuilds)
	assert.Equal(t, int64(numGoroutines*buildsPerGoroutine/2), snap.CacheHits)
	assert.Equal(t, 100.0, metrics.GetSuccessRate())
}
