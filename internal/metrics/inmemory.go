package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Activations             map[string]uint64
	ActivationDurationCount uint64
	ActivationDurationNs    int64
	ActivationConflicts     uint64
	LockUnavailable         uint64
	AuditPublished          map[string]uint64
	AuditProcessed          map[string]uint64
	AuditQueueDepth         int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu             sync.Mutex
	activations    map[string]uint64
	auditPublished map[string]uint64
	auditProcessed map[string]uint64
	auditDepth     int64

	durationCount   uint64
	durationTotalNs int64
	conflicts       uint64
	lockUnavailable uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		activations:    make(map[string]uint64),
		auditPublished: make(map[string]uint64),
		auditProcessed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	activations := copyCounts(m.activations)
	published := copyCounts(m.auditPublished)
	processed := copyCounts(m.auditProcessed)
	depth := m.auditDepth
	m.mu.Unlock()

	return Snapshot{
		Activations:             activations,
		ActivationDurationCount: atomic.LoadUint64(&m.durationCount),
		ActivationDurationNs:    atomic.LoadInt64(&m.durationTotalNs),
		ActivationConflicts:     atomic.LoadUint64(&m.conflicts),
		LockUnavailable:         atomic.LoadUint64(&m.lockUnavailable),
		AuditPublished:          published,
		AuditProcessed:          processed,
		AuditQueueDepth:         depth,
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// IncActivation increments the counter for outcome.
func (m *InMemoryRecorder) IncActivation(outcome string) {
	m.mu.Lock()
	m.activations[outcome]++
	m.mu.Unlock()
}

// ObserveActivationDuration records activation duration.
func (m *InMemoryRecorder) ObserveActivationDuration(duration time.Duration) {
	atomic.AddUint64(&m.durationCount, 1)
	atomic.AddInt64(&m.durationTotalNs, duration.Nanoseconds())
}

// IncActivationConflict increments the conflict counter.
func (m *InMemoryRecorder) IncActivationConflict() {
	atomic.AddUint64(&m.conflicts, 1)
}

// IncLockUnavailable increments the lock-unavailable counter.
func (m *InMemoryRecorder) IncLockUnavailable() {
	atomic.AddUint64(&m.lockUnavailable, 1)
}

// IncAuditEventPublished increments the publish counter for status.
func (m *InMemoryRecorder) IncAuditEventPublished(status string) {
	m.mu.Lock()
	m.auditPublished[status]++
	m.mu.Unlock()
}

// IncAuditEventProcessed increments the processing counter for status.
func (m *InMemoryRecorder) IncAuditEventProcessed(status string) {
	m.mu.Lock()
	m.auditProcessed[status]++
	m.mu.Unlock()
}

// SetAuditQueueDepth records the pending audit events.
func (m *InMemoryRecorder) SetAuditQueueDepth(depth int64) {
	m.mu.Lock()
	m.auditDepth = depth
	m.mu.Unlock()
}
