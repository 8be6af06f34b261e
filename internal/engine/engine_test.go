package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("fleet-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitFleet(ctx, "fleet-1", "Test Fleet", "tester"); err != nil {
		t.Fatalf("init fleet: %v", err)
	}
	if err := eng.Repo.UpsertFleetConfig(ctx, "fleet-1", cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func registerVehicle(t *testing.T, env testEnv) domain.Asset {
	t.Helper()
	a, err := env.Engine.RegisterAsset(env.Ctx, engine.AssetCreateOptions{
		FleetID:  "fleet-1",
		Name:     "Truck 7",
		Category: "vehicle",
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("register asset: %v", err)
	}
	return a
}

// vehicleDailyResults answers every required item of the default vehicle
// daily checklist.
func vehicleDailyResults() map[string]domain.ItemStatus {
	out := map[string]domain.ItemStatus{}
	for _, id := range []string{"veh.tires", "veh.lights", "veh.brakes", "veh.fluids", "veh.horn", "veh.mirrors", "veh.seatbelt", "veh.damage"} {
		out[id] = domain.ItemPassed
	}
	return out
}

func TestOperationalStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	a := registerVehicle(t, env)

	a, err := env.Engine.SetAssetStatus(env.Ctx, a.ID, "maintenance", "tester", false)
	if err != nil || a.Status != domain.OperationalMaintenance {
		t.Fatalf("to maintenance: %v", err)
	}
	a, err = env.Engine.SetAssetStatus(env.Ctx, a.ID, "active", "tester", false)
	if err != nil || a.Status != domain.OperationalActive {
		t.Fatalf("back to active: %v", err)
	}
	a, err = env.Engine.SetAssetStatus(env.Ctx, a.ID, "decommissioned", "tester", false)
	if err != nil || a.Status != domain.OperationalDecommissioned {
		t.Fatalf("to decommissioned: %v", err)
	}
	// decommissioned is terminal
	_, err = env.Engine.SetAssetStatus(env.Ctx, a.ID, "active", "tester", false)
	var transition *engine.InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestSubmitInspectionFlow(t *testing.T) {
	env := newTestEnv(t)
	a := registerVehicle(t, env)

	insp, err := env.Engine.SubmitInspection(env.Ctx, engine.InspectionSubmitOptions{
		AssetID: a.ID,
		Kind:    "daily",
		Results: vehicleDailyResults(),
		Notes:   "all clear",
		ActorID: "op-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if insp.Date != "2024-01-01" || insp.Status != "completed" {
		t.Fatalf("unexpected inspection %+v", insp)
	}
	stored, err := env.Engine.Repo.GetInspection(env.Ctx, insp.ID)
	if err != nil {
		t.Fatalf("load inspection: %v", err)
	}
	if len(stored.Items) != 9 {
		t.Fatalf("expected full item snapshot, got %d items", len(stored.Items))
	}

	// same asset, same day, same kind is a conflict
	_, err = env.Engine.SubmitInspection(env.Ctx, engine.InspectionSubmitOptions{
		AssetID: a.ID,
		Kind:    "daily",
		Results: vehicleDailyResults(),
		ActorID: "op-2",
	})
	var dup *engine.DuplicateInspectionError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateInspectionError, got %v", err)
	}

	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT count(*) FROM events WHERE type='inspection.finalized'`)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	var count int
	rows.Next()
	rows.Scan(&count)
	if count != 1 {
		t.Fatalf("expected one finalized event, got %d", count)
	}
}

func TestSubmitInspectionMissingRequired(t *testing.T) {
	env := newTestEnv(t)
	a := registerVehicle(t, env)

	results := vehicleDailyResults()
	delete(results, "veh.brakes")
	_, err := env.Engine.SubmitInspection(env.Ctx, engine.InspectionSubmitOptions{
		AssetID: a.ID,
		Kind:    "daily",
		Results: results,
		ActorID: "op-1",
	})
	var missing *engine.MissingRequiredItemsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRequiredItemsError, got %v", err)
	}

	// nothing was persisted, so a corrected submission for the same slot works
	results["veh.brakes"] = domain.ItemFailed
	if _, err := env.Engine.SubmitInspection(env.Ctx, engine.InspectionSubmitOptions{
		AssetID: a.ID,
		Kind:    "daily",
		Results: results,
		ActorID: "op-1",
	}); err != nil {
		t.Fatalf("corrected submit: %v", err)
	}
}

func TestAddDocumentRejectsInvalidRange(t *testing.T) {
	env := newTestEnv(t)
	a := registerVehicle(t, env)

	_, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{
		AssetID:    a.ID,
		Type:       "insurance",
		IssueDate:  "2024-06-01",
		ExpiryDate: "2024-01-01",
		ActorID:    "tester",
	})
	var rangeErr *engine.InvalidDateRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidDateRangeError, got %v", err)
	}
}

func TestComplianceAlertOnTransition(t *testing.T) {
	env := newTestEnv(t)
	a := registerVehicle(t, env)
	if _, err := env.Engine.AddDocument(env.Ctx, engine.DocumentCreateOptions{
		AssetID:    a.ID,
		Type:       "insurance",
		ExpiryDate: "2024-01-04",
		ActorID:    "tester",
	}); err != nil {
		t.Fatalf("add document: %v", err)
	}

	metric, err := env.Engine.ComplianceFor(env.Ctx, a.ID, "tester")
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	if metric.ExpiryStatus != domain.ExpiryUrgent {
		t.Fatalf("expiry status: got %s", metric.ExpiryStatus)
	}
	// second read with an unchanged status must not re-alert
	if _, err := env.Engine.ComplianceFor(env.Ctx, a.ID, "tester"); err != nil {
		t.Fatalf("second compliance: %v", err)
	}
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT count(*) FROM events WHERE type='compliance.alert' AND entity_id=?`, a.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	var count int
	rows.Next()
	rows.Scan(&count)
	if count != 1 {
		t.Fatalf("expected one alert, got %d", count)
	}

	stored, err := env.Engine.Repo.GetAsset(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastExpiryStatus == nil || *stored.LastExpiryStatus != domain.ExpiryUrgent {
		t.Fatalf("last expiry status not recorded: %v", stored.LastExpiryStatus)
	}
}

func TestMaintenanceAndDefectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	a := registerVehicle(t, env)

	task, err := env.Engine.ScheduleMaintenance(env.Ctx, engine.MaintenanceCreateOptions{
		AssetID:     a.ID,
		Description: "Replace brake pads",
		Severity:    "high",
		DueDate:     "2024-01-15",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	task, err = env.Engine.CompleteMaintenance(env.Ctx, task.ID, "tester")
	if err != nil || task.Status != "completed" {
		t.Fatalf("complete: %v", err)
	}
	if _, err = env.Engine.CompleteMaintenance(env.Ctx, task.ID, "tester"); err == nil {
		t.Fatalf("expected second completion to fail")
	}

	def, err := env.Engine.OpenDefect(env.Ctx, engine.DefectCreateOptions{
		AssetID:     a.ID,
		Description: "Cracked mirror",
		Severity:    "medium",
		ActorID:     "op-1",
	})
	if err != nil {
		t.Fatalf("open defect: %v", err)
	}
	def, err = env.Engine.CloseDefect(env.Ctx, def.ID, "tester")
	if err != nil || def.Status != "closed" {
		t.Fatalf("close defect: %v", err)
	}
	if _, err = env.Engine.CloseDefect(env.Ctx, def.ID, "tester"); err == nil {
		t.Fatalf("expected second close to fail")
	}
}

func TestEventAppendOnStateChanges(t *testing.T) {
	env := newTestEnv(t)
	a := registerVehicle(t, env)
	_, _ = env.Engine.SetAssetStatus(env.Ctx, a.ID, "maintenance", "tester", false)
	_, _ = env.Engine.SetAssetStatus(env.Ctx, a.ID, "active", "tester", false)
	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT type FROM events WHERE entity_id=?`, a.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count < 3 {
		t.Fatalf("expected registration plus transitions, got %d events", count)
	}
}
