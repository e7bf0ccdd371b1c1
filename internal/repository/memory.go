package repository

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/licensegate/licensegate/internal/model"
)

// MemoryStore is an in-process license store with the same conditional
// update semantics as Repository. Used for local development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	licenses map[string]*model.License
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]*model.License),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateLicense inserts a copy of license. A missing ID is filled with a ULID.
func (m *MemoryStore) CreateLicense(ctx context.Context, license *model.License) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.licenses[license.Key]; ok {
		return ErrLicenseExists
	}

	stored := license.Clone()
	if stored.ID == "" {
		stored.ID = ulid.Make().String()
	}
	if stored.Devices == nil {
		stored.Devices = []string{}
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	m.licenses[stored.Key] = stored

	return nil
}

// GetLicenseByKey returns a copy of the stored license.
func (m *MemoryStore) GetLicenseByKey(ctx context.Context, key string) (*model.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	license, ok := m.licenses[key]
	if !ok {
		return nil, ErrLicenseNotFound
	}
	return license.Clone(), nil
}

// AddDevice mirrors Repository.AddDevice.
func (m *MemoryStore) AddDevice(ctx context.Context, key, deviceID string, expectedUsedCount int) (*model.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.licenses[key]
	if !ok || current.UsedCount != expectedUsedCount || current.IsFull() || current.HasDevice(deviceID) {
		return nil, ErrPreconditionFailed
	}

	next := current.WithDevice(deviceID)
	next.UpdatedAt = m.now()
	m.licenses[key] = next

	return next.Clone(), nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Snapshot returns copies of all stored licenses.
func (m *MemoryStore) Snapshot() []*model.License {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.License, 0, len(m.licenses))
	for _, l := range m.licenses {
		out = append(out, l.Clone())
	}
	return out
}
