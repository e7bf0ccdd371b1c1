package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/licensegate/licensegate/internal/model"
)

// Common errors for license store operations.
var (
	ErrLicenseNotFound    = errors.New("license not found")
	ErrLicenseExists      = errors.New("license key already exists")
	ErrPreconditionFailed = errors.New("license changed since it was read")
)

const licenseColumns = `id, key, max_devices, used_count, devices, created_at, updated_at`

// CreateLicense inserts a new license.
// Licenses are issued out of band; this exists for seeding and tests.
func (r *Repository) CreateLicense(ctx context.Context, license *model.License) error {
	query := `
		INSERT INTO licenses (id, key, max_devices, used_count, devices, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	devices := license.Devices
	if devices == nil {
		devices = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		license.ID,
		license.Key,
		license.MaxDevices,
		license.UsedCount,
		pq.Array(devices),
		license.CreatedAt,
		license.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLicenseExists
		}
		return fmt.Errorf("failed to create license: %w", err)
	}

	return nil
}

// GetLicenseByKey retrieves a license by its key.
func (r *Repository) GetLicenseByKey(ctx context.Context, key string) (*model.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = $1`

	license, err := scanLicense(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("failed to get license by key: %w", err)
	}

	return license, nil
}

// AddDevice binds deviceID to the license in a single conditional UPDATE.
// The write only lands if used_count still equals expectedUsedCount, the
// license has capacity, and the device is not already bound. Otherwise
// ErrPreconditionFailed is returned and nothing is written.
func (r *Repository) AddDevice(ctx context.Context, key, deviceID string, expectedUsedCount int) (*model.License, error) {
	query := `
		UPDATE licenses
		SET devices = array_append(devices, $2),
		    used_count = used_count + 1,
		    updated_at = NOW()
		WHERE key = $1
		  AND used_count = $3
		  AND used_count < max_devices
		  AND NOT ($2 = ANY(devices))
		RETURNING ` + licenseColumns

	license, err := scanLicense(r.pool.QueryRow(ctx, query, key, deviceID, expectedUsedCount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPreconditionFailed
		}
		return nil, fmt.Errorf("failed to add device: %w", err)
	}

	return license, nil
}

// scanLicense scans a single row into a License model.
func scanLicense(row pgx.Row) (*model.License, error) {
	var license model.License
	var devices []string
	err := row.Scan(
		&license.ID,
		&license.Key,
		&license.MaxDevices,
		&license.UsedCount,
		&devices,
		&license.CreatedAt,
		&license.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []string{}
	}
	license.Devices = devices
	return &license, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
