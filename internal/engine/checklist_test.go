package engine_test

import (
	"errors"
	"testing"
	"time"

	"fleetline/internal/domain"
	"fleetline/internal/engine"
)

func dailyTemplate() []domain.ChecklistItem {
	return []domain.ChecklistItem{
		{ID: "brakes", Description: "Brakes respond", Required: true},
		{ID: "lights", Description: "Lights work", Required: true},
		{ID: "cabin", Description: "Cabin clean", Required: false},
	}
}

func TestValidateChecklistMissingRequired(t *testing.T) {
	items := dailyTemplate()
	items[0].Status = domain.ItemPassed
	items[1].Status = domain.ItemNotChecked
	items[2].Status = domain.ItemNotChecked

	err := engine.ValidateChecklist(items)
	var missing *engine.MissingRequiredItemsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRequiredItemsError, got %v", err)
	}
	if len(missing.IDs) != 1 || missing.IDs[0] != "lights" {
		t.Fatalf("unexpected missing ids %v", missing.IDs)
	}
}

func TestValidateChecklistFailedRequiredAccepted(t *testing.T) {
	// a failed required item is an answer, not a gap
	items := dailyTemplate()
	items[0].Status = domain.ItemFailed
	items[1].Status = domain.ItemPassed

	if err := engine.ValidateChecklist(items); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}

func TestSessionRejectedSubmitKeepsAnswers(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s := engine.NewInspectionSession("asset-1", domain.InspectionDaily, dailyTemplate())
	if err := s.UpdateItem("brakes", domain.ItemPassed); err != nil {
		t.Fatal(err)
	}

	_, err := s.Submit("op-1", now)
	var missing *engine.MissingRequiredItemsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRequiredItemsError, got %v", err)
	}
	for _, item := range s.Items() {
		if item.ID == "brakes" && item.Status != domain.ItemPassed {
			t.Fatalf("rejected submit lost entered status")
		}
	}

	// fix the gap and retry on the same session
	if err := s.UpdateItem("lights", domain.ItemFailed); err != nil {
		t.Fatal(err)
	}
	insp, err := s.Submit("op-1", now)
	if err != nil {
		t.Fatalf("retry after fix: %v", err)
	}
	if insp.Date != "2024-01-01" || insp.Status != "completed" {
		t.Fatalf("unexpected inspection %+v", insp)
	}
}

func TestSessionFinalizedIsImmutable(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	s := engine.NewInspectionSession("asset-1", domain.InspectionDaily, dailyTemplate())
	for _, id := range []string{"brakes", "lights"} {
		if err := s.UpdateItem(id, domain.ItemPassed); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Submit("op-1", now); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateItem("brakes", domain.ItemFailed); err == nil {
		t.Fatalf("expected edit after finalize to be rejected")
	}
	if _, err := s.Submit("op-1", now); err == nil {
		t.Fatalf("expected second submit to be rejected")
	}
}

func TestSessionUnknownItemID(t *testing.T) {
	s := engine.NewInspectionSession("asset-1", domain.InspectionDaily, dailyTemplate())
	err := s.UpdateItem("nope", domain.ItemPassed)
	var unknown *engine.UnknownItemIDError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownItemIDError, got %v", err)
	}
}
