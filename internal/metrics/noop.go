package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncActivation is a no-op.
func (n *NoopRecorder) IncActivation(outcome string) {}

// ObserveActivationDuration is a no-op.
func (n *NoopRecorder) ObserveActivationDuration(duration time.Duration) {}

// IncActivationConflict is a no-op.
func (n *NoopRecorder) IncActivationConflict() {}

// IncLockUnavailable is a no-op.
func (n *NoopRecorder) IncLockUnavailable() {}

// IncAuditEventPublished is a no-op.
func (n *NoopRecorder) IncAuditEventPublished(status string) {}

// IncAuditEventProcessed is a no-op.
func (n *NoopRecorder) IncAuditEventProcessed(status string) {}

// SetAuditQueueDepth is a no-op.
func (n *NoopRecorder) SetAuditQueueDepth(depth int64) {}
