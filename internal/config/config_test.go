package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default("fleet-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Fleet.ID != "fleet-1" {
		t.Fatalf("fleet id: got %s", cfg.Fleet.ID)
	}
	if len(cfg.TemplateFor("vehicle", "daily")) == 0 {
		t.Fatal("expected vehicle daily template")
	}
	if cfg.TemplateFor("boat", "daily") != nil {
		t.Fatal("unknown category should have no template")
	}
}

func TestWeightsMustSumToOne(t *testing.T) {
	cfg := Default("fleet-1")
	cfg.Scoring.Weights.Document = 0.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sum to 1") {
		t.Fatalf("expected weight sum error, got %v", err)
	}
}

func TestNegativeWeightRejected(t *testing.T) {
	cfg := Default("fleet-1")
	cfg.Scoring.Weights.Defect = -0.25
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative weight error")
	}
}

func TestDuplicateChecklistItemRejected(t *testing.T) {
	cfg := Default("fleet-1")
	vehicle := cfg.Checklists["vehicle"]
	vehicle.Daily = append(vehicle.Daily, TemplateItem{ID: "veh.tires", Description: "dup", Required: true})
	cfg.Checklists["vehicle"] = vehicle
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate item id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	if _, err := FromYAML([]byte("fleet: {id: \"\"}")); err == nil {
		t.Fatal("expected missing fleet id error")
	}
}
