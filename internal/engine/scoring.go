package engine

import (
	"fmt"
	"math"
	"time"

	"fleetline/internal/domain"
)

// Weights distributes the overall score across the four sub-scores. They
// must be non-negative and sum to 1.
type Weights struct {
	Document    float64
	Inspection  float64
	Maintenance float64
	Defect      float64
}

func DefaultWeights() Weights {
	return Weights{Document: 0.25, Inspection: 0.25, Maintenance: 0.25, Defect: 0.25}
}

const weightEpsilon = 1e-9

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"document":    w.Document,
		"inspection":  w.Inspection,
		"maintenance": w.Maintenance,
		"defect":      w.Defect,
	} {
		if v < 0 {
			return fmt.Errorf("scoring weight %s is negative (%v)", name, v)
		}
	}
	sum := w.Document + w.Inspection + w.Maintenance + w.Defect
	if math.Abs(sum-1) > weightEpsilon {
		return fmt.Errorf("scoring weights must sum to 1, got %v", sum)
	}
	return nil
}

// ScoringConfig bundles the weighting plus the severity-to-penalty mappings
// used for the maintenance and defect sub-scores.
type ScoringConfig struct {
	Weights              Weights
	MaintenancePenalties map[string]float64
	DefectPenalties      map[string]float64
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights:              DefaultWeights(),
		MaintenancePenalties: defaultPenalties(),
		DefectPenalties:      defaultPenalties(),
	}
}

func defaultPenalties() map[string]float64 {
	return map[string]float64{
		"low":      5,
		"medium":   15,
		"high":     30,
		"critical": 50,
	}
}

// ScoreInputs is the snapshot of one asset's records a metric is computed
// from. If any record changes mid-computation the caller recomputes; there
// is no partial update of a metric.
type ScoreInputs struct {
	Asset       domain.Asset
	Documents   []domain.Document
	Inspections []domain.Inspection
	Maintenance []domain.MaintenanceTask
	Defects     []domain.Defect
}

// Reduction applied per failed required item on the latest inspection, on
// top of the item not counting as passed. A confirmed failure must weigh
// more than an unanswered optional item.
const failedItemPenalty = 15.0

// ComputeMetric aggregates one asset's sub-scores into a compliance metric.
// The same now value is threaded through every date comparison in the pass
// so sibling statuses cannot disagree about the reference time.
func ComputeMetric(in ScoreInputs, cfg ScoringConfig, now time.Time) (domain.ComplianceMetric, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return domain.ComplianceMetric{}, err
	}
	docScore, err := documentScore(in.Documents, now)
	if err != nil {
		return domain.ComplianceMetric{}, err
	}
	inspScore := inspectionScore(in.Inspections)
	maintScore := penaltyScore(openMaintenanceSeverities(in.Maintenance), cfg.MaintenancePenalties)
	defScore := penaltyScore(openDefectSeverities(in.Defects), cfg.DefectPenalties)

	overall := clampScore(cfg.Weights.Document*docScore +
		cfg.Weights.Inspection*inspScore +
		cfg.Weights.Maintenance*maintScore +
		cfg.Weights.Defect*defScore)

	dueDate, dueRef := nearestDue(in, now)
	var days *int
	if dueDate != nil {
		d := DaysUntil(*dueDate, now)
		days = &d
	}

	metric := domain.ComplianceMetric{
		AssetID:          in.Asset.ID,
		OverallScore:     overall,
		InspectionScore:  inspScore,
		MaintenanceScore: maintScore,
		DocumentScore:    docScore,
		DefectScore:      defScore,
		ExpiryStatus:     ResolveExpiryStatus(days),
		NextDueItem:      dueRef,
		ComputedAt:       now.UTC().Format(time.RFC3339),
	}
	if dueDate != nil {
		s := dueDate.Format(dateLayout)
		metric.NextDueDate = &s
	}
	return metric, nil
}

// documentScore maps the worst expiry status across the asset's documents
// to a score. An asset with no dated documents is not penalized.
func documentScore(docs []domain.Document, now time.Time) (float64, error) {
	worst := domain.ExpiryInactive
	for _, doc := range docs {
		issue := parseDate(doc.IssueDate)
		expiry := parseDate(doc.ExpiryDate)
		if issue != nil && expiry != nil && issue.After(*expiry) {
			return 0, &InvalidDateRangeError{DocumentID: doc.ID, IssueDate: *doc.IssueDate, ExpiryDate: *doc.ExpiryDate}
		}
		status := statusForDate(doc.ExpiryDate, now)
		if expirySeverity(status) > expirySeverity(worst) {
			worst = status
		}
	}
	switch worst {
	case domain.ExpiryExpired:
		return 10, nil
	case domain.ExpiryUrgent:
		return 40, nil
	case domain.ExpiryWarning:
		return 70, nil
	default: // valid or inactive
		return 100, nil
	}
}

// inspectionScore rates the most recent finalized inspection by the share
// of required items that passed, with an extra reduction per confirmed
// failure. No history yet means nothing to penalize.
func inspectionScore(inspections []domain.Inspection) float64 {
	latest := latestInspection(inspections)
	if latest == nil {
		return 100
	}
	var requiredTotal, passed, failed int
	for _, item := range latest.Items {
		if !item.Required {
			continue
		}
		requiredTotal++
		switch item.Status {
		case domain.ItemPassed:
			passed++
		case domain.ItemFailed:
			failed++
		}
	}
	if requiredTotal == 0 {
		return 100
	}
	score := 100*float64(passed)/float64(requiredTotal) - failedItemPenalty*float64(failed)
	return clampScore(score)
}

func latestInspection(inspections []domain.Inspection) *domain.Inspection {
	var latest *domain.Inspection
	for i := range inspections {
		insp := &inspections[i]
		if latest == nil || insp.Date > latest.Date ||
			(insp.Date == latest.Date && insp.CreatedAt > latest.CreatedAt) {
			latest = insp
		}
	}
	return latest
}

func openMaintenanceSeverities(tasks []domain.MaintenanceTask) []string {
	var out []string
	for _, t := range tasks {
		if t.Status == "open" {
			out = append(out, t.Severity)
		}
	}
	return out
}

func openDefectSeverities(defects []domain.Defect) []string {
	var out []string
	for _, d := range defects {
		if d.Status == "open" {
			out = append(out, d.Severity)
		}
	}
	return out
}

func penaltyScore(severities []string, penalties map[string]float64) float64 {
	score := 100.0
	for _, s := range severities {
		score -= penalties[s]
	}
	return clampScore(score)
}

// nearestDue picks the earliest due date across the asset's documents, its
// next scheduled inspection, and open maintenance. Ties resolve in that
// fixed order so the chosen reference is deterministic.
func nearestDue(in ScoreInputs, now time.Time) (*time.Time, *domain.DueItemRef) {
	var best *time.Time
	var ref *domain.DueItemRef
	consider := func(date *time.Time, kind domain.DueItemKind, id string) {
		if date == nil {
			return
		}
		if best == nil || date.Before(*best) {
			best = date
			ref = &domain.DueItemRef{Kind: kind, ID: id}
		}
	}
	for _, doc := range in.Documents {
		consider(parseDate(doc.ExpiryDate), domain.DueDocument, doc.ID)
	}
	consider(parseDate(in.Asset.NextInspectionDate), domain.DueInspection, in.Asset.ID)
	for _, t := range in.Maintenance {
		if t.Status == "open" {
			consider(parseDate(t.DueDate), domain.DueMaintenance, t.ID)
		}
	}
	return best, ref
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
