//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/licensegate/licensegate/internal/model"
	"github.com/licensegate/licensegate/internal/testutil"
)

func TestIntegrationActivationEvents_InsertIdempotent(t *testing.T) {
	ctx, repo := newLicenseTestEnv(t)

	license := testutil.NewTestLicense(t, testutil.UniqueLicenseKey("audit"), 2)
	if err := repo.CreateLicense(ctx, license); err != nil {
		t.Fatalf("CreateLicense failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	events := []*model.ActivationEvent{
		{ID: ulid.Make().String(), EventID: "1-0", LicenseID: license.ID, DeviceID: "D1", Outcome: model.OutcomeActivated, UsedCount: 1, OccurredAt: now},
		{ID: ulid.Make().String(), EventID: "2-0", LicenseID: license.ID, DeviceID: "D1", Outcome: model.OutcomeAlreadyActive, UsedCount: 1, OccurredAt: now.Add(time.Second)},
	}

	if err := repo.InsertActivationEvents(ctx, events); err != nil {
		t.Fatalf("InsertActivationEvents failed: %v", err)
	}

	// Redelivery with fresh row IDs but the same stream IDs.
	redelivered := []*model.ActivationEvent{
		{ID: ulid.Make().String(), EventID: "1-0", LicenseID: license.ID, DeviceID: "D1", Outcome: model.OutcomeActivated, UsedCount: 1, OccurredAt: now},
	}
	if err := repo.InsertActivationEvents(ctx, redelivered); err != nil {
		t.Fatalf("InsertActivationEvents (redelivery) failed: %v", err)
	}

	got, err := repo.ListActivationEvents(ctx, license.ID, 10)
	if err != nil {
		t.Fatalf("ListActivationEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Outcome != model.OutcomeAlreadyActive || got[1].Outcome != model.OutcomeActivated {
		t.Errorf("unexpected order: %s, %s", got[0].Outcome, got[1].Outcome)
	}
}

func TestIntegrationActivationEvents_UnknownLicense(t *testing.T) {
	ctx, repo := newLicenseTestEnv(t)

	err := repo.InsertActivationEvents(ctx, []*model.ActivationEvent{
		{ID: ulid.Make().String(), EventID: "1-0", LicenseID: "missing", DeviceID: "D1", Outcome: model.OutcomeActivated, UsedCount: 1, OccurredAt: time.Now()},
	})
	if err == nil {
		t.Error("expected foreign key violation for unknown license")
	}
}
