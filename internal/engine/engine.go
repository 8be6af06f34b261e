package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetline/internal/config"
	"fleetline/internal/domain"
	"fleetline/internal/engine/auth"
	"fleetline/internal/events"
	"fleetline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// InitFleet initializes a new fleet with migrations already run.
func (e Engine) InitFleet(ctx context.Context, fleetID, name, actorID string) (domain.Fleet, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Fleet{}, err
	}
	defer tx.Rollback()

	f := domain.Fleet{
		ID:        fleetID,
		Name:      name,
		Status:    "active",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if f.Name == "" {
		f.Name = fleetID
	}
	if err := e.Repo.InsertFleet(ctx, tx, f); err != nil {
		return domain.Fleet{}, fmt.Errorf("insert fleet: %w", err)
	}
	if err := e.Repo.UpsertFleetConfigTx(ctx, tx, f.ID, config.Default(f.ID)); err != nil {
		return domain.Fleet{}, fmt.Errorf("insert fleet config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "fleet.init", f.ID, "fleet", f.ID, actorID, events.EventPayload{"name": f.Name}); err != nil {
		return domain.Fleet{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Fleet{}, err
	}
	return f, nil
}

// AssetCreateOptions are parameters for registering an asset.
type AssetCreateOptions struct {
	ID                 string
	FleetID            string
	Name               string
	Category           string
	NextInspectionDate string
	ActorID            string
}

func validCategory(c string) bool {
	switch domain.AssetCategory(c) {
	case domain.CategoryVehicle, domain.CategoryEquipment, domain.CategoryPowerTool, domain.CategoryLiftingAccessory:
		return true
	}
	return false
}

func (e Engine) RegisterAsset(ctx context.Context, opts AssetCreateOptions) (domain.Asset, error) {
	if e.Config == nil {
		return domain.Asset{}, errors.New("config not loaded")
	}
	if opts.Name == "" {
		return domain.Asset{}, errors.New("name is required")
	}
	if opts.FleetID == "" {
		return domain.Asset{}, errors.New("fleet is required")
	}
	if !validCategory(opts.Category) {
		return domain.Asset{}, fmt.Errorf("unknown asset category %s", opts.Category)
	}
	if _, err := e.Repo.GetFleet(ctx, opts.FleetID); err != nil {
		return domain.Asset{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	a := domain.Asset{
		ID:                 id,
		FleetID:            opts.FleetID,
		Name:               opts.Name,
		Category:           domain.AssetCategory(opts.Category),
		Status:             domain.OperationalActive,
		NextInspectionDate: optionalString(opts.NextInspectionDate),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAsset(ctx, tx, a); err != nil {
		return domain.Asset{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.registered", a.FleetID, "asset", a.ID, opts.ActorID, events.EventPayload{
		"name": a.Name, "category": string(a.Category),
	}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

// SetAssetStatus moves an asset through the operational state machine.
// Force bypasses the transition guard but never resurrects a deleted asset.
func (e Engine) SetAssetStatus(ctx context.Context, assetID, status, actorID string, force bool) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	target := domain.OperationalStatus(status)
	switch target {
	case domain.OperationalActive, domain.OperationalMaintenance, domain.OperationalDecommissioned:
	default:
		return a, fmt.Errorf("unknown operational status %s", status)
	}
	if !force {
		if err := ensureOperationalTransition(a.Status, target); err != nil {
			return a, err
		}
	}
	from := a.Status
	a.Status = target
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "asset.status.changed", a.FleetID, "asset", a.ID, actorID, events.EventPayload{
		"from": string(from), "to": string(a.Status),
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// ScheduleInspection sets the asset's next planned inspection date.
func (e Engine) ScheduleInspection(ctx context.Context, assetID, date, actorID string) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return a, err
	}
	if date != "" && parseDate(&date) == nil {
		return a, fmt.Errorf("invalid date %s, expected YYYY-MM-DD", date)
	}
	a.NextInspectionDate = optionalString(date)
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "inspection.scheduled", a.FleetID, "asset", a.ID, actorID, events.EventPayload{"date": date}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) DeleteAsset(ctx context.Context, assetID, actorID string) error {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAsset(ctx, tx, assetID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "asset.deleted", a.FleetID, "asset", a.ID, actorID, events.EventPayload{"name": a.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// DocumentCreateOptions are parameters for attaching a document.
type DocumentCreateOptions struct {
	ID         string
	AssetID    string
	Type       string
	Status     string
	IssueDate  string
	ExpiryDate string
	ActorID    string
}

func (e Engine) AddDocument(ctx context.Context, opts DocumentCreateOptions) (domain.Document, error) {
	if opts.AssetID == "" {
		return domain.Document{}, errors.New("asset is required")
	}
	if opts.Type == "" {
		return domain.Document{}, errors.New("type is required")
	}
	a, err := e.Repo.GetAsset(ctx, opts.AssetID)
	if err != nil {
		return domain.Document{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	if opts.Status == "" {
		opts.Status = "pending"
	}
	issue := parseDate(optionalString(opts.IssueDate))
	expiry := parseDate(optionalString(opts.ExpiryDate))
	if issue != nil && expiry != nil && issue.After(*expiry) {
		return domain.Document{}, &InvalidDateRangeError{DocumentID: id, IssueDate: opts.IssueDate, ExpiryDate: opts.ExpiryDate}
	}
	d := domain.Document{
		ID:         id,
		AssetID:    opts.AssetID,
		Type:       opts.Type,
		Status:     opts.Status,
		IssueDate:  optionalString(opts.IssueDate),
		ExpiryDate: optionalString(opts.ExpiryDate),
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDocument(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "document.added", a.FleetID, "document", d.ID, opts.ActorID, events.EventPayload{
		"asset_id": d.AssetID, "type": d.Type,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func (e Engine) SetDocumentStatus(ctx context.Context, docID, status, actorID string) (domain.Document, error) {
	switch status {
	case "verified", "pending", "rejected":
	default:
		return domain.Document{}, fmt.Errorf("unknown document status %s", status)
	}
	d, err := e.Repo.GetDocument(ctx, docID)
	if err != nil {
		return d, err
	}
	a, err := e.Repo.GetAsset(ctx, d.AssetID)
	if err != nil {
		return d, err
	}
	from := d.Status
	d.Status = status

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateDocumentStatus(ctx, tx, docID, status); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "document.status.changed", a.FleetID, "document", d.ID, actorID, events.EventPayload{
		"from": from, "to": status,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func validSeverity(s string) bool {
	switch s {
	case "low", "medium", "high", "critical":
		return true
	}
	return false
}

// MaintenanceCreateOptions are parameters for scheduling maintenance.
type MaintenanceCreateOptions struct {
	ID          string
	AssetID     string
	Description string
	Severity    string
	DueDate     string
	ActorID     string
}

func (e Engine) ScheduleMaintenance(ctx context.Context, opts MaintenanceCreateOptions) (domain.MaintenanceTask, error) {
	if opts.Description == "" {
		return domain.MaintenanceTask{}, errors.New("description is required")
	}
	if !validSeverity(opts.Severity) {
		return domain.MaintenanceTask{}, fmt.Errorf("unknown severity %s", opts.Severity)
	}
	a, err := e.Repo.GetAsset(ctx, opts.AssetID)
	if err != nil {
		return domain.MaintenanceTask{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	t := domain.MaintenanceTask{
		ID:          id,
		AssetID:     opts.AssetID,
		Description: opts.Description,
		Severity:    opts.Severity,
		DueDate:     optionalString(opts.DueDate),
		Status:      "open",
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMaintenance(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "maintenance.scheduled", a.FleetID, "maintenance", t.ID, opts.ActorID, events.EventPayload{
		"asset_id": t.AssetID, "severity": t.Severity,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) CompleteMaintenance(ctx context.Context, id, actorID string) (domain.MaintenanceTask, error) {
	t, err := e.Repo.GetMaintenance(ctx, id)
	if err != nil {
		return t, err
	}
	a, err := e.Repo.GetAsset(ctx, t.AssetID)
	if err != nil {
		return t, err
	}
	completedAt := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.CompleteMaintenance(ctx, tx, id, completedAt); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return t, fmt.Errorf("maintenance %s is not open", id)
		}
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "maintenance.completed", a.FleetID, "maintenance", t.ID, actorID, events.EventPayload{
		"asset_id": t.AssetID,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	t.Status = "completed"
	t.CompletedAt = &completedAt
	return t, nil
}

// DefectCreateOptions are parameters for opening a defect.
type DefectCreateOptions struct {
	ID           string
	AssetID      string
	Description  string
	Severity     string
	InspectionID string
	ActorID      string
}

func (e Engine) OpenDefect(ctx context.Context, opts DefectCreateOptions) (domain.Defect, error) {
	if opts.Description == "" {
		return domain.Defect{}, errors.New("description is required")
	}
	if !validSeverity(opts.Severity) {
		return domain.Defect{}, fmt.Errorf("unknown severity %s", opts.Severity)
	}
	a, err := e.Repo.GetAsset(ctx, opts.AssetID)
	if err != nil {
		return domain.Defect{}, err
	}
	if opts.InspectionID != "" {
		if _, err := e.Repo.GetInspection(ctx, opts.InspectionID); err != nil {
			return domain.Defect{}, err
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	d := domain.Defect{
		ID:           id,
		AssetID:      opts.AssetID,
		Description:  opts.Description,
		Severity:     opts.Severity,
		Status:       "open",
		InspectionID: optionalString(opts.InspectionID),
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDefect(ctx, tx, d); err != nil {
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "defect.opened", a.FleetID, "defect", d.ID, opts.ActorID, events.EventPayload{
		"asset_id": d.AssetID, "severity": d.Severity,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

func (e Engine) CloseDefect(ctx context.Context, id, actorID string) (domain.Defect, error) {
	d, err := e.Repo.GetDefect(ctx, id)
	if err != nil {
		return d, err
	}
	a, err := e.Repo.GetAsset(ctx, d.AssetID)
	if err != nil {
		return d, err
	}
	closedAt := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	if err := e.Repo.CloseDefect(ctx, tx, id, closedAt); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return d, fmt.Errorf("defect %s is not open", id)
		}
		return d, err
	}
	if err := e.Events.Append(ctx, tx, "defect.closed", a.FleetID, "defect", d.ID, actorID, events.EventPayload{
		"asset_id": d.AssetID,
	}); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	d.Status = "closed"
	d.ClosedAt = &closedAt
	return d, nil
}

// InspectionSubmitOptions carry one completed checklist for an asset.
type InspectionSubmitOptions struct {
	AssetID string
	Kind    string
	Results map[string]domain.ItemStatus
	Notes   string
	ActorID string
}

// SubmitInspection builds a session from the asset's checklist template,
// applies the caller's answers, validates, and persists the finalized record.
// A second submission for the same asset, date and kind is rejected.
func (e Engine) SubmitInspection(ctx context.Context, opts InspectionSubmitOptions) (domain.Inspection, error) {
	if e.Config == nil {
		return domain.Inspection{}, errors.New("config not loaded")
	}
	kind := domain.InspectionKind(opts.Kind)
	if kind != domain.InspectionDaily && kind != domain.InspectionMonthly {
		return domain.Inspection{}, fmt.Errorf("unknown inspection kind %s", opts.Kind)
	}
	a, err := e.Repo.GetAsset(ctx, opts.AssetID)
	if err != nil {
		return domain.Inspection{}, err
	}
	template := checklistTemplate(e.Config, string(a.Category), string(kind))
	if len(template) == 0 {
		return domain.Inspection{}, fmt.Errorf("no %s checklist configured for category %s", kind, a.Category)
	}
	session := NewInspectionSession(a.ID, kind, template)
	for id, status := range opts.Results {
		if err := session.UpdateItem(id, status); err != nil {
			return domain.Inspection{}, err
		}
	}
	session.SetNotes(opts.Notes)
	insp, err := session.Submit(opts.ActorID, e.now())
	if err != nil {
		return domain.Inspection{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return insp, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInspection(ctx, tx, insp); err != nil {
		if repo.IsUniqueViolation(err) {
			return insp, &DuplicateInspectionError{AssetID: insp.AssetID, Date: insp.Date, Kind: string(insp.Kind)}
		}
		return insp, err
	}
	if err := e.Events.Append(ctx, tx, "inspection.finalized", a.FleetID, "inspection", insp.ID, opts.ActorID, events.EventPayload{
		"asset_id": insp.AssetID, "kind": string(insp.Kind), "date": insp.Date,
	}); err != nil {
		return insp, err
	}
	if err := tx.Commit(); err != nil {
		return insp, err
	}
	return insp, nil
}

// checklistTemplate converts the configured template into checklist items.
func checklistTemplate(cfg *config.Config, category, kind string) []domain.ChecklistItem {
	tmpl := cfg.TemplateFor(category, kind)
	items := make([]domain.ChecklistItem, 0, len(tmpl))
	for _, it := range tmpl {
		items = append(items, domain.ChecklistItem{
			ID:          it.ID,
			Description: it.Description,
			Required:    it.Required,
			Status:      domain.ItemNotChecked,
		})
	}
	return items
}

// ComplianceFor recomputes an asset's compliance metric from its current
// records. The metric is returned, never stored; only the last expiry status
// is remembered so alerts fire on the transition, not on every read.
func (e Engine) ComplianceFor(ctx context.Context, assetID, actorID string) (domain.ComplianceMetric, error) {
	if e.Config == nil {
		return domain.ComplianceMetric{}, errors.New("config not loaded")
	}
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return domain.ComplianceMetric{}, err
	}
	docs, err := e.Repo.ListDocuments(ctx, assetID)
	if err != nil {
		return domain.ComplianceMetric{}, err
	}
	inspections, err := e.Repo.ListInspections(ctx, repo.InspectionFilters{AssetID: assetID})
	if err != nil {
		return domain.ComplianceMetric{}, err
	}
	maintenance, err := e.Repo.ListMaintenance(ctx, assetID, "")
	if err != nil {
		return domain.ComplianceMetric{}, err
	}
	defects, err := e.Repo.ListDefects(ctx, assetID, "")
	if err != nil {
		return domain.ComplianceMetric{}, err
	}

	metric, err := ComputeMetric(ScoreInputs{
		Asset:       a,
		Documents:   docs,
		Inspections: inspections,
		Maintenance: maintenance,
		Defects:     defects,
	}, scoringConfigFromConfig(e.Config), e.now())
	if err != nil {
		return domain.ComplianceMetric{}, err
	}

	if a.LastExpiryStatus == nil || *a.LastExpiryStatus != metric.ExpiryStatus {
		if err := e.recordExpiryTransition(ctx, a, metric, actorID); err != nil {
			return domain.ComplianceMetric{}, err
		}
	}
	return metric, nil
}

// recordExpiryTransition persists the newly observed expiry status and, when
// the status entered urgent or expired, appends a compliance.alert event.
func (e Engine) recordExpiryTransition(ctx context.Context, a domain.Asset, metric domain.ComplianceMetric, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	status := metric.ExpiryStatus
	a.LastExpiryStatus = &status
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return err
	}
	if status == domain.ExpiryUrgent || status == domain.ExpiryExpired {
		payload := events.EventPayload{
			"asset_id": a.ID,
			"status":   string(status),
			"reason":   alertReason(metric),
		}
		if metric.NextDueDate != nil {
			payload["next_due_date"] = *metric.NextDueDate
		}
		if err := e.Events.Append(ctx, tx, "compliance.alert", a.FleetID, "asset", a.ID, actorID, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func alertReason(metric domain.ComplianceMetric) string {
	if metric.NextDueItem == nil {
		return "compliance deadline"
	}
	switch metric.NextDueItem.Kind {
	case domain.DueDocument:
		return "document expiring"
	case domain.DueInspection:
		return "inspection due"
	default:
		return "maintenance due"
	}
}

// scoringConfigFromConfig maps the yaml scoring section onto the pure
// scoring layer, falling back to defaults for anything unset.
func scoringConfigFromConfig(cfg *config.Config) ScoringConfig {
	out := DefaultScoringConfig()
	w := cfg.Scoring.Weights
	if w.Document+w.Inspection+w.Maintenance+w.Defect > 0 {
		out.Weights = Weights{
			Document:    w.Document,
			Inspection:  w.Inspection,
			Maintenance: w.Maintenance,
			Defect:      w.Defect,
		}
	}
	if len(cfg.Scoring.MaintenancePenalties) > 0 {
		out.MaintenancePenalties = cfg.Scoring.MaintenancePenalties
	}
	if len(cfg.Scoring.DefectPenalties) > 0 {
		out.DefectPenalties = cfg.Scoring.DefectPenalties
	}
	return out
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
