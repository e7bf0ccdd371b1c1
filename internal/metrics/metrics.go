// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Activation outcome labels.
const (
	OutcomeActivated         = "activated"
	OutcomeAlreadyActive     = "already_active"
	OutcomeNotFound          = "not_found"
	OutcomeLimitReached      = "limit_reached"
	OutcomeInvalidRequest    = "invalid_request"
	OutcomeStoreUnavailable  = "store_unavailable"
	OutcomePersistenceFailed = "persistence_failed"
)

// Audit pipeline status labels.
const (
	AuditStatusSuccess      = "success"
	AuditStatusDropped      = "dropped"
	AuditStatusFailed       = "failed"
	AuditStatusDeadLettered = "dead_lettered"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// IncActivation counts a finished activation attempt by outcome label.
	IncActivation(outcome string)
	ObserveActivationDuration(duration time.Duration)

	// IncActivationConflict counts conditional writes that lost a race.
	IncActivationConflict()

	// IncLockUnavailable counts activations that proceeded without the
	// per-license lock.
	IncLockUnavailable()

	// Audit event pipeline.
	IncAuditEventPublished(status string)
	IncAuditEventProcessed(status string)
	SetAuditQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
