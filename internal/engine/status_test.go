package engine_test

import (
	"testing"
	"time"

	"fleetline/internal/domain"
	"fleetline/internal/engine"
)

func intPtr(v int) *int { return &v }

func TestResolveExpiryStatus(t *testing.T) {
	cases := []struct {
		name string
		days *int
		want domain.ExpiryStatus
	}{
		{"no date", nil, domain.ExpiryInactive},
		{"past", intPtr(-5), domain.ExpiryExpired},
		{"today", intPtr(0), domain.ExpiryExpired},
		{"tomorrow", intPtr(1), domain.ExpiryUrgent},
		{"urgent boundary", intPtr(7), domain.ExpiryUrgent},
		{"warning start", intPtr(8), domain.ExpiryWarning},
		{"warning boundary", intPtr(30), domain.ExpiryWarning},
		{"valid", intPtr(31), domain.ExpiryValid},
		{"far future", intPtr(365), domain.ExpiryValid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := engine.ResolveExpiryStatus(tc.days); got != tc.want {
				t.Fatalf("days=%v: got %s want %s", tc.days, got, tc.want)
			}
		})
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if d := engine.DaysUntil(now, now); d != 0 {
		t.Fatalf("same instant: got %d", d)
	}
	if d := engine.DaysUntil(now.AddDate(0, 0, 7), now); d != 7 {
		t.Fatalf("one week: got %d", d)
	}
	if d := engine.DaysUntil(now.AddDate(0, 0, -1), now); d != -1 {
		t.Fatalf("yesterday: got %d", d)
	}
	// partial days round up so a deadline later today still counts as one day
	if d := engine.DaysUntil(now.Add(6*time.Hour), now); d != 1 {
		t.Fatalf("partial day: got %d", d)
	}
}

func TestResolveOperationalCategory(t *testing.T) {
	cases := []struct {
		status domain.OperationalStatus
		want   domain.DisplayCategory
	}{
		{domain.OperationalActive, domain.DisplayInService},
		{domain.OperationalMaintenance, domain.DisplayOutOfService},
		{domain.OperationalDecommissioned, domain.DisplayRetired},
	}
	for _, tc := range cases {
		if got := engine.ResolveOperationalCategory(tc.status); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.status, got, tc.want)
		}
	}
}
