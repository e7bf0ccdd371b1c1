package model

import "time"

// ActivationEvent is an audit record of one decided activation.
type ActivationEvent struct {
	ID      string `json:"id"`       // ULID
	EventID string `json:"event_id"` // stream entry ID, the idempotency key

	LicenseID string            `json:"license_id"`
	DeviceID  string            `json:"device_id"`
	Outcome   ActivationOutcome `json:"outcome"`

	// UsedCount is the license counter after the decision.
	UsedCount int `json:"used_count"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
