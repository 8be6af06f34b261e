package engine_test

import (
	"errors"
	"testing"
	"time"

	"fleetline/internal/domain"
	"fleetline/internal/engine"
)

var scoringNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func cleanAsset() domain.Asset {
	return domain.Asset{ID: "asset-1", FleetID: "fleet-1", Name: "Truck 7", Category: domain.CategoryVehicle, Status: domain.OperationalActive}
}

func TestComputeMetricCleanAsset(t *testing.T) {
	metric, err := engine.ComputeMetric(engine.ScoreInputs{Asset: cleanAsset()}, engine.DefaultScoringConfig(), scoringNow)
	if err != nil {
		t.Fatal(err)
	}
	if metric.OverallScore != 100 {
		t.Fatalf("overall: got %v", metric.OverallScore)
	}
	if metric.ExpiryStatus != domain.ExpiryInactive {
		t.Fatalf("expiry status: got %s", metric.ExpiryStatus)
	}
	if metric.NextDueDate != nil || metric.NextDueItem != nil {
		t.Fatalf("expected no due item, got %v %v", metric.NextDueDate, metric.NextDueItem)
	}
}

func TestDocumentScoreUsesWorstStatus(t *testing.T) {
	in := engine.ScoreInputs{
		Asset: cleanAsset(),
		Documents: []domain.Document{
			{ID: "doc-ok", AssetID: "asset-1", Type: "registration", ExpiryDate: strPtr("2025-06-01")},
			{ID: "doc-soon", AssetID: "asset-1", Type: "insurance", ExpiryDate: strPtr("2024-01-04")},
		},
	}
	metric, err := engine.ComputeMetric(in, engine.DefaultScoringConfig(), scoringNow)
	if err != nil {
		t.Fatal(err)
	}
	// urgent document dominates: 0.25*40 + 3*0.25*100
	if metric.DocumentScore != 40 {
		t.Fatalf("document score: got %v", metric.DocumentScore)
	}
	if metric.OverallScore != 85 {
		t.Fatalf("overall: got %v", metric.OverallScore)
	}
	if metric.ExpiryStatus != domain.ExpiryUrgent {
		t.Fatalf("expiry status: got %s", metric.ExpiryStatus)
	}
	if metric.NextDueItem == nil || metric.NextDueItem.ID != "doc-soon" {
		t.Fatalf("next due item: got %+v", metric.NextDueItem)
	}
}

func TestInspectionScoreLatestOnly(t *testing.T) {
	passed := []domain.ChecklistItem{
		{ID: "a", Required: true, Status: domain.ItemPassed},
		{ID: "b", Required: true, Status: domain.ItemPassed},
		{ID: "c", Required: true, Status: domain.ItemPassed},
		{ID: "d", Required: true, Status: domain.ItemPassed},
	}
	mixed := []domain.ChecklistItem{
		{ID: "a", Required: true, Status: domain.ItemPassed},
		{ID: "b", Required: true, Status: domain.ItemPassed},
		{ID: "c", Required: true, Status: domain.ItemPassed},
		{ID: "d", Required: true, Status: domain.ItemFailed},
	}
	in := engine.ScoreInputs{
		Asset: cleanAsset(),
		Inspections: []domain.Inspection{
			{ID: "old", AssetID: "asset-1", Date: "2023-12-01", Items: passed, CreatedAt: "2023-12-01T08:00:00Z"},
			{ID: "new", AssetID: "asset-1", Date: "2023-12-31", Items: mixed, CreatedAt: "2023-12-31T08:00:00Z"},
		},
	}
	metric, err := engine.ComputeMetric(in, engine.DefaultScoringConfig(), scoringNow)
	if err != nil {
		t.Fatal(err)
	}
	// 3 of 4 required passed, one confirmed failure: 75 - 15
	if metric.InspectionScore != 60 {
		t.Fatalf("inspection score: got %v", metric.InspectionScore)
	}
}

func TestPenaltyScoresClampAtZero(t *testing.T) {
	in := engine.ScoreInputs{
		Asset: cleanAsset(),
		Defects: []domain.Defect{
			{ID: "d1", AssetID: "asset-1", Severity: "critical", Status: "open"},
			{ID: "d2", AssetID: "asset-1", Severity: "critical", Status: "open"},
			{ID: "d3", AssetID: "asset-1", Severity: "high", Status: "open"},
			{ID: "d4", AssetID: "asset-1", Severity: "low", Status: "closed"},
		},
		Maintenance: []domain.MaintenanceTask{
			{ID: "m1", AssetID: "asset-1", Severity: "medium", Status: "open"},
			{ID: "m2", AssetID: "asset-1", Severity: "high", Status: "completed"},
		},
	}
	metric, err := engine.ComputeMetric(in, engine.DefaultScoringConfig(), scoringNow)
	if err != nil {
		t.Fatal(err)
	}
	// 100 - 50 - 50 - 30 clamps; closed defects never count
	if metric.DefectScore != 0 {
		t.Fatalf("defect score: got %v", metric.DefectScore)
	}
	// only the open medium task counts
	if metric.MaintenanceScore != 85 {
		t.Fatalf("maintenance score: got %v", metric.MaintenanceScore)
	}
	if metric.OverallScore < 0 || metric.OverallScore > 100 {
		t.Fatalf("overall out of bounds: %v", metric.OverallScore)
	}
}

func TestInvalidDocumentDateRange(t *testing.T) {
	in := engine.ScoreInputs{
		Asset: cleanAsset(),
		Documents: []domain.Document{
			{ID: "doc-bad", AssetID: "asset-1", Type: "permit", IssueDate: strPtr("2024-05-01"), ExpiryDate: strPtr("2024-01-01")},
		},
	}
	_, err := engine.ComputeMetric(in, engine.DefaultScoringConfig(), scoringNow)
	var rangeErr *engine.InvalidDateRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected InvalidDateRangeError, got %v", err)
	}
	if rangeErr.DocumentID != "doc-bad" {
		t.Fatalf("unexpected document id %s", rangeErr.DocumentID)
	}
}

func TestNearestDueTieBreakPrefersDocument(t *testing.T) {
	asset := cleanAsset()
	asset.NextInspectionDate = strPtr("2024-02-01")
	in := engine.ScoreInputs{
		Asset: asset,
		Documents: []domain.Document{
			{ID: "doc-1", AssetID: "asset-1", Type: "insurance", ExpiryDate: strPtr("2024-02-01")},
		},
		Maintenance: []domain.MaintenanceTask{
			{ID: "m1", AssetID: "asset-1", Severity: "low", Status: "open", DueDate: strPtr("2024-02-01")},
		},
	}
	metric, err := engine.ComputeMetric(in, engine.DefaultScoringConfig(), scoringNow)
	if err != nil {
		t.Fatal(err)
	}
	if metric.NextDueItem == nil || metric.NextDueItem.Kind != domain.DueDocument {
		t.Fatalf("tie should resolve to document, got %+v", metric.NextDueItem)
	}
	if metric.NextDueDate == nil || *metric.NextDueDate != "2024-02-01" {
		t.Fatalf("next due date: got %v", metric.NextDueDate)
	}
}

func TestWeightsValidate(t *testing.T) {
	bad := engine.Weights{Document: 0.5, Inspection: 0.5, Maintenance: 0.5, Defect: -0.5}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected negative weight rejection")
	}
	unbalanced := engine.Weights{Document: 0.5, Inspection: 0.5, Maintenance: 0.5, Defect: 0.5}
	if err := unbalanced.Validate(); err == nil {
		t.Fatalf("expected sum rejection")
	}
	if err := engine.DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights: %v", err)
	}
}
