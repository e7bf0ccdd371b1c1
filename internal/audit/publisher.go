// Package audit records decided activations on a Redis stream and persists
// them to PostgreSQL from a background worker.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/licensegate/licensegate/internal/metrics"
	"github.com/licensegate/licensegate/internal/model"
)

const (
	// StreamKey is the Redis stream for activation events.
	StreamKey = "stream:activation_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:activation_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Publisher enqueues activation events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder

	inflight sync.WaitGroup
}

// NewPublisher creates a new audit event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "audit.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously and returns its stream ID.
func (p *Publisher) Publish(ctx context.Context, event model.ActivationEvent) (string, error) {
	data, err := json.Marshal(NewPayload(event))
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// Record publishes without blocking the activation. Failures are logged and
// counted as dropped.
func (p *Publisher) Record(_ context.Context, event model.ActivationEvent) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish activation event",
				"license_id", event.LicenseID,
				"error", err,
			)
			p.metrics.IncAuditEventPublished(metrics.AuditStatusDropped)
			return
		}

		p.logger.Debug("activation event published",
			"license_id", event.LicenseID,
			"stream_id", streamID,
		)
		p.metrics.IncAuditEventPublished(metrics.AuditStatusSuccess)
	}()
}

// Shutdown waits for in-flight publishes. It implements server.ShutdownFunc.
func (p *Publisher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
