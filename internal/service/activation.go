// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/licensegate/licensegate/internal/metrics"
	"github.com/licensegate/licensegate/internal/model"
	"github.com/licensegate/licensegate/internal/repository"
)

// Service errors. Each failure site maps to exactly one of these.
var (
	ErrInvalidRequest     = model.ErrInvalidRequest
	ErrLicenseNotFound    = errors.New("license not found")
	ErrDeviceLimitReached = errors.New("device limit reached")
	ErrStoreUnavailable   = errors.New("license store unavailable")
	ErrPersistenceFailed  = errors.New("failed to persist activation")
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultMaxRetries   = 3
)

// LicenseStore is the persistence collaborator. Implementations return
// repository.ErrLicenseNotFound for absent keys and
// repository.ErrPreconditionFailed when AddDevice's precondition no longer holds.
type LicenseStore interface {
	GetLicenseByKey(ctx context.Context, key string) (*model.License, error)
	AddDevice(ctx context.Context, key, deviceID string, expectedUsedCount int) (*model.License, error)
}

// Locker serializes activations for one license across processes.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(context.Context) error, err error)
}

// EventSink receives successful activation outcomes. Record must not block.
type EventSink interface {
	Record(ctx context.Context, event model.ActivationEvent)
}

// ActivationOptions tunes the activation procedure.
type ActivationOptions struct {
	// StoreTimeout bounds each store round trip.
	StoreTimeout time.Duration
	// MaxRetries is how many times a lost conditional write is re-decided
	// when the re-read shows no other writer made progress. Losses to a
	// concurrent activation are always re-decided. Zero disables retries;
	// negative values use the default.
	MaxRetries int
	// StrictLookupErrors reports lookup failures as ErrStoreUnavailable.
	// When false they are reported as ErrLicenseNotFound.
	StrictLookupErrors bool
}

// ActivationResult is returned for the two success outcomes.
type ActivationResult struct {
	Outcome model.ActivationOutcome
	License *model.License
}

// ActivationService decides and applies device activations.
type ActivationService struct {
	store   LicenseStore
	locker  Locker
	events  EventSink
	metrics metrics.Recorder
	logger  *slog.Logger
	opts    ActivationOptions
}

// NewActivationService creates a new ActivationService. locker may be nil.
func NewActivationService(store LicenseStore, locker Locker, recorder metrics.Recorder, logger *slog.Logger, opts ActivationOptions) *ActivationService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &ActivationService{
		store:   store,
		locker:  locker,
		metrics: recorder,
		logger:  logger,
		opts:    opts,
	}
}

// SetEventSink attaches a sink for activation events. nil disables emission.
func (s *ActivationService) SetEventSink(sink EventSink) {
	s.events = sink
}

// Activate binds req.DeviceID to the license identified by req.LicenseKey.
//
// At most one write is issued per successful attempt, and only when the device
// is new and the license has capacity. The write is conditional on the counter
// read, so concurrent activations can never push a license past MaxDevices.
func (s *ActivationService) Activate(ctx context.Context, req model.ActivationRequest) (*ActivationResult, error) {
	start := time.Now()
	result, err := s.activate(ctx, req)
	s.metrics.ObserveActivationDuration(time.Since(start))
	s.metrics.IncActivation(OutcomeLabel(result, err))
	if err == nil {
		s.emit(ctx, req.DeviceID, result)
	}
	return result, err
}

func (s *ActivationService) emit(ctx context.Context, deviceID string, result *ActivationResult) {
	if s.events == nil || result == nil || result.License == nil {
		return
	}
	s.events.Record(ctx, model.ActivationEvent{
		LicenseID:  result.License.ID,
		DeviceID:   deviceID,
		Outcome:    result.Outcome,
		UsedCount:  result.License.UsedCount,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *ActivationService) activate(ctx context.Context, req model.ActivationRequest) (*ActivationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, req.LicenseKey)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, ctxErr)
			}
			// The conditional write still guarantees correctness.
			s.metrics.IncLockUnavailable()
			s.logger.WarnContext(ctx, "license lock unavailable",
				slog.String("error", err.Error()),
			)
		} else {
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					s.logger.WarnContext(ctx, "license unlock failed", slog.String("error", err.Error()))
				}
			}()
		}
	}

	// lost is the counter read before the last lost write, -1 before any.
	// A re-read above it means another writer made progress, which is not
	// charged to MaxRetries; used_count only grows, so this stays bounded
	// by MaxDevices.
	lost, stalled := -1, 0
	for {
		license, err := s.lookup(ctx, req.LicenseKey)
		if err != nil {
			return nil, err
		}

		if lost >= 0 && license.UsedCount <= lost {
			stalled++
			if stalled > s.opts.MaxRetries {
				return nil, fmt.Errorf("%w: license write rejected %d times without progress", ErrPersistenceFailed, stalled)
			}
		}

		if license.HasDevice(req.DeviceID) {
			return &ActivationResult{Outcome: model.OutcomeAlreadyActive, License: license}, nil
		}

		if license.IsFull() {
			return nil, ErrDeviceLimitReached
		}

		updated, err := s.addDevice(ctx, license, req.DeviceID)
		if err == nil {
			s.logger.InfoContext(ctx, "device_activated",
				slog.String("license_id", updated.ID),
				slog.Int("used_count", updated.UsedCount),
				slog.Int("max_devices", updated.MaxDevices),
			)
			return &ActivationResult{Outcome: model.OutcomeActivated, License: updated}, nil
		}

		if !errors.Is(err, repository.ErrPreconditionFailed) {
			return nil, err
		}

		s.metrics.IncActivationConflict()
		lost = license.UsedCount
		s.logger.DebugContext(ctx, "activation conflict, re-reading license",
			slog.Int("used_count", license.UsedCount),
			slog.Int("stalled", stalled),
		)
	}
}

// lookup reads the license with a bounded timeout.
func (s *ActivationService) lookup(ctx context.Context, key string) (*model.License, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	license, err := s.store.GetLicenseByKey(ctx, key)
	if err == nil {
		return license, nil
	}

	if errors.Is(err, repository.ErrLicenseNotFound) {
		return nil, ErrLicenseNotFound
	}

	s.logger.ErrorContext(ctx, "license lookup failed", slog.String("error", err.Error()))
	if !s.opts.StrictLookupErrors {
		return nil, ErrLicenseNotFound
	}
	return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// addDevice issues the conditional write with a bounded timeout.
func (s *ActivationService) addDevice(ctx context.Context, license *model.License, deviceID string) (*model.License, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	updated, err := s.store.AddDevice(ctx, license.Key, deviceID, license.UsedCount)
	if err == nil {
		return updated, nil
	}

	if errors.Is(err, repository.ErrPreconditionFailed) {
		return nil, err
	}

	s.logger.ErrorContext(ctx, "activation write failed",
		slog.String("license_id", license.ID),
		slog.String("error", err.Error()),
	)
	return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
}

// OutcomeLabel maps an Activate result to its metrics label.
func OutcomeLabel(result *ActivationResult, err error) string {
	switch {
	case err == nil && result != nil && result.Outcome == model.OutcomeAlreadyActive:
		return metrics.OutcomeAlreadyActive
	case err == nil:
		return metrics.OutcomeActivated
	case errors.Is(err, ErrInvalidRequest):
		return metrics.OutcomeInvalidRequest
	case errors.Is(err, ErrLicenseNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrDeviceLimitReached):
		return metrics.OutcomeLimitReached
	case errors.Is(err, ErrStoreUnavailable):
		return metrics.OutcomeStoreUnavailable
	default:
		return metrics.OutcomePersistenceFailed
	}
}
