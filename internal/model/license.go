// Package model defines domain entities for the application.
package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
)

// Request field limits.
const (
	MaxLicenseKeyLength = 256
	MaxDeviceIDLength   = 256
)

// Validation errors.
var (
	ErrInvalidRequest     = errors.New("invalid activation request")
	ErrInvariantViolation = errors.New("license invariant violated")
)

// ActivationOutcome is the successful result of an activation attempt.
type ActivationOutcome string

const (
	OutcomeActivated     ActivationOutcome = "activated"
	OutcomeAlreadyActive ActivationOutcome = "already_active"
)

// License is a persisted entitlement gating how many distinct devices may use a product.
type License struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	MaxDevices int       `json:"max_devices"`
	UsedCount  int       `json:"used_count"`
	Devices    []string  `json:"devices"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasDevice reports whether deviceID is already bound to the license.
func (l *License) HasDevice(deviceID string) bool {
	return slices.Contains(l.Devices, deviceID)
}

// IsFull reports whether the stored counter has reached capacity.
// The counter, not len(Devices), is authoritative for capacity checks.
func (l *License) IsFull() bool {
	return l.UsedCount >= l.MaxDevices
}

// RemainingSlots returns how many more devices may be activated.
func (l *License) RemainingSlots() int {
	if l.IsFull() {
		return 0
	}
	return l.MaxDevices - l.UsedCount
}

// WithDevice returns a copy of the license with deviceID appended and the
// counter incremented. The receiver is not modified.
func (l *License) WithDevice(deviceID string) *License {
	next := *l
	next.Devices = append(slices.Clone(l.Devices), deviceID)
	next.UsedCount = l.UsedCount + 1
	return &next
}

// Clone returns a deep copy of the license.
func (l *License) Clone() *License {
	c := *l
	c.Devices = slices.Clone(l.Devices)
	return &c
}

// CheckInvariant verifies used_count == len(devices) <= max_devices and that
// no device appears twice.
func (l *License) CheckInvariant() error {
	if l.UsedCount != len(l.Devices) {
		return fmt.Errorf("%w: used_count %d != %d devices", ErrInvariantViolation, l.UsedCount, len(l.Devices))
	}
	if l.UsedCount > l.MaxDevices {
		return fmt.Errorf("%w: used_count %d exceeds max_devices %d", ErrInvariantViolation, l.UsedCount, l.MaxDevices)
	}

	seen := make(map[string]struct{}, len(l.Devices))
	for _, d := range l.Devices {
		if _, dup := seen[d]; dup {
			return fmt.Errorf("%w: duplicate device %q", ErrInvariantViolation, d)
		}
		seen[d] = struct{}{}
	}

	return nil
}

// ActivationRequest asks for deviceID to be bound to the license identified by LicenseKey.
type ActivationRequest struct {
	LicenseKey string
	DeviceID   string
}

// Validate checks that both fields are present and printable.
// Values are otherwise opaque and are not normalized.
func (r ActivationRequest) Validate() error {
	if err := validateField("license_key", r.LicenseKey, MaxLicenseKeyLength); err != nil {
		return err
	}
	return validateField("device_id", r.DeviceID, MaxDeviceIDLength)
}

func validateField(name, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, name)
	}
	if len(value) > maxLen {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidRequest, name, maxLen)
	}
	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: %s contains control characters", ErrInvalidRequest, name)
	}
	return nil
}
