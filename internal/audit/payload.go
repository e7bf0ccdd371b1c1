package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/licensegate/licensegate/internal/model"
)

const maxFieldLength = 256

// Payload is the compact stream encoding of an activation event.
type Payload struct {
	LicenseID  string `json:"lid"`
	DeviceID   string `json:"d"`
	Outcome    string `json:"o"`
	UsedCount  int    `json:"n"`
	OccurredAt int64  `json:"t"` // Unix milliseconds
}

// NewPayload encodes an event for the stream.
func NewPayload(event model.ActivationEvent) Payload {
	return Payload{
		LicenseID:  event.LicenseID,
		DeviceID:   event.DeviceID,
		Outcome:    string(event.Outcome),
		UsedCount:  event.UsedCount,
		OccurredAt: event.OccurredAt.UnixMilli(),
	}
}

// Validate checks payload fields before they are persisted.
func (p Payload) Validate() error {
	if p.LicenseID == "" {
		return errors.New("license_id is required")
	}
	if p.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if len(p.LicenseID) > maxFieldLength || len(p.DeviceID) > maxFieldLength {
		return errors.New("field too long")
	}
	switch model.ActivationOutcome(p.Outcome) {
	case model.OutcomeActivated, model.OutcomeAlreadyActive:
	default:
		return fmt.Errorf("unknown outcome %q", p.Outcome)
	}
	if p.UsedCount < 0 {
		return errors.New("used_count must not be negative")
	}
	if p.OccurredAt <= 0 {
		return errors.New("occurred_at must be set")
	}
	return nil
}

// decodeMessage turns a stream entry into an event. On failure it returns the
// dead-letter reason and detail.
func decodeMessage(msg redis.XMessage) (*model.ActivationEvent, string, string) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, "invalid_format", "payload field missing or not a string"
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, "unmarshal_error", err.Error()
	}
	if err := p.Validate(); err != nil {
		return nil, "validation_error", err.Error()
	}

	return &model.ActivationEvent{
		ID:         ulid.Make().String(),
		EventID:    msg.ID,
		LicenseID:  p.LicenseID,
		DeviceID:   p.DeviceID,
		Outcome:    model.ActivationOutcome(p.Outcome),
		UsedCount:  p.UsedCount,
		OccurredAt: time.UnixMilli(p.OccurredAt).UTC(),
	}, "", ""
}
