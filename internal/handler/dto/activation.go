// Package dto defines the JSON bodies of the activation API.
package dto

import "github.com/licensegate/licensegate/internal/model"

// ActivateRequest is the body of POST /activate.
type ActivateRequest struct {
	LicenseKey string `json:"license_key"`
	DeviceID   string `json:"device_id"`
}

// ToModel converts the body to a domain request.
func (r ActivateRequest) ToModel() model.ActivationRequest {
	return model.ActivationRequest{
		LicenseKey: r.LicenseKey,
		DeviceID:   r.DeviceID,
	}
}

// ActivateResponse is returned for both success outcomes.
type ActivateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is returned for every failure outcome.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error messages. Clients match on these strings.
const (
	MessageAlreadyActive     = "Already active"
	ErrMsgInvalidRequest     = "Invalid request"
	ErrMsgInvalidLicenseKey  = "Invalid license key"
	ErrMsgDeviceLimitReached = "Device limit reached"
	ErrMsgServiceUnavailable = "License service unavailable"
	ErrMsgActivationFailed   = "Activation failed"
)

// NewActivateResponse builds the success body for an outcome.
func NewActivateResponse(outcome model.ActivationOutcome) ActivateResponse {
	resp := ActivateResponse{Success: true}
	if outcome == model.OutcomeAlreadyActive {
		resp.Message = MessageAlreadyActive
	}
	return resp
}
