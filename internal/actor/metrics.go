package actor

import (
	"runtime"
	"time"
)

// runtimeMetrics captures memory/goroutine deltas around a strategy call,
// grounded on the teacher's metrics.RuntimeMetrics (CaptureStart/Finalize).
type runtimeMetrics struct {
	start          time.Time
	memStartMB     float64
	goroutineStart int
}

func captureStart() *runtimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &runtimeMetrics{
		start:          time.Now(),
		memStartMB:     float64(m.Alloc) / 1024 / 1024,
		goroutineStart: runtime.NumGoroutine(),
	}
}

func (r *runtimeMetrics) finalize() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memEndMB := float64(m.Alloc) / 1024 / 1024
	peak := memEndMB
	if r.memStartMB > peak {
		peak = r.memStartMB
	}

	return map[string]interface{}{
		"duration_ms":     time.Since(r.start).Milliseconds(),
		"memory_start_mb": r.memStartMB,
		"memory_end_mb":   memEndMB,
		"memory_peak_mb":  peak,
		"goroutine_start": r.goroutineStart,
		"goroutine_end":   runtime.NumGoroutine(),
	}
}
