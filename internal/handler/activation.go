package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/licensegate/licensegate/internal/handler/dto"
	"github.com/licensegate/licensegate/internal/middleware"
	"github.com/licensegate/licensegate/internal/model"
	"github.com/licensegate/licensegate/internal/service"
)

// Activator is implemented by service.ActivationService.
type Activator interface {
	Activate(ctx context.Context, req model.ActivationRequest) (*service.ActivationResult, error)
}

// ActivationHandler handles device activation requests.
type ActivationHandler struct {
	svc    Activator
	logger *slog.Logger
}

// NewActivationHandler creates a new ActivationHandler.
func NewActivationHandler(svc Activator, logger *slog.Logger) *ActivationHandler {
	return &ActivationHandler{
		svc:    svc,
		logger: logger,
	}
}

// Activate handles POST /api/v1/activate and POST /activate.
func (h *ActivationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req dto.ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: dto.ErrMsgInvalidRequest})
		return
	}

	result, err := h.svc.Activate(r.Context(), req.ToModel())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("activation_succeeded",
		"outcome", string(result.Outcome),
		"license_id", result.License.ID,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	writeJSON(w, http.StatusOK, dto.NewActivateResponse(result.Outcome))
}

// handleServiceError maps service errors to HTTP responses.
func (h *ActivationHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusForError(err)

	attrs := []any{
		"outcome", service.OutcomeLabel(nil, err),
		"status", status,
		"request_id", middleware.GetRequestID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("activation_failed", append(attrs, "error", err.Error())...)
	} else {
		h.logger.Info("activation_rejected", attrs...)
	}

	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, dto.ErrMsgInvalidRequest
	case errors.Is(err, service.ErrLicenseNotFound):
		return http.StatusNotFound, dto.ErrMsgInvalidLicenseKey
	case errors.Is(err, service.ErrDeviceLimitReached):
		return http.StatusForbidden, dto.ErrMsgDeviceLimitReached
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, dto.ErrMsgServiceUnavailable
	default:
		return http.StatusInternalServerError, dto.ErrMsgActivationFailed
	}
}
