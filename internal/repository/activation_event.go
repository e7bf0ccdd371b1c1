package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/licensegate/licensegate/internal/model"
)

// InsertActivationEvents stores audit events. Events whose event_id is
// already stored are skipped, so redelivered stream entries are harmless.
func (r *Repository) InsertActivationEvents(ctx context.Context, events []*model.ActivationEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO activation_events (
			id, event_id, license_id, device_id, outcome, used_count, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.LicenseID,
			event.DeviceID,
			string(event.Outcome),
			event.UsedCount,
			event.OccurredAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert activation event %d: %w", i, err)
		}
	}

	return nil
}

// ListActivationEvents returns the newest events for a license.
func (r *Repository) ListActivationEvents(ctx context.Context, licenseID string, limit int) ([]*model.ActivationEvent, error) {
	query := `
		SELECT id, event_id, license_id, device_id, outcome, used_count, occurred_at, created_at
		FROM activation_events
		WHERE license_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, licenseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activation events: %w", err)
	}
	defer rows.Close()

	var events []*model.ActivationEvent
	for rows.Next() {
		var (
			event   model.ActivationEvent
			outcome string
		)
		if err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.LicenseID,
			&event.DeviceID,
			&outcome,
			&event.UsedCount,
			&event.OccurredAt,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activation event: %w", err)
		}
		event.Outcome = model.ActivationOutcome(outcome)
		events = append(events, &event)
	}

	return events, rows.Err()
}
