package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fleetline/internal/config"
	"fleetline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// IsUniqueViolation reports whether err came from a unique index conflict.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r Repo) InsertFleet(ctx context.Context, tx *sql.Tx, f domain.Fleet) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO fleets(id,name,status,created_at) VALUES (?,?,?,?)`,
		f.ID, f.Name, f.Status, f.CreatedAt)
	return err
}

func (r Repo) GetFleet(ctx context.Context, id string) (domain.Fleet, error) {
	var f domain.Fleet
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,status,created_at FROM fleets WHERE id=?`, id).
		Scan(&f.ID, &f.Name, &f.Status, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) SingleFleet(ctx context.Context) (domain.Fleet, error) {
	fleets, err := r.ListFleets(ctx)
	if err != nil {
		return domain.Fleet{}, err
	}
	if len(fleets) == 0 {
		return domain.Fleet{}, ErrNotFound
	}
	if len(fleets) > 1 {
		return domain.Fleet{}, fmt.Errorf("multiple fleets exist; specify --fleet")
	}
	return fleets[0], nil
}

func (r Repo) ListFleets(ctx context.Context) ([]domain.Fleet, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at FROM fleets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Fleet
	for rows.Next() {
		var f domain.Fleet
		if err := rows.Scan(&f.ID, &f.Name, &f.Status, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) UpsertFleetConfig(ctx context.Context, fleetID string, cfg *config.Config) error {
	return upsertFleetConfig(ctx, r.DB, nil, fleetID, cfg)
}

func (r Repo) UpsertFleetConfigTx(ctx context.Context, tx *sql.Tx, fleetID string, cfg *config.Config) error {
	return upsertFleetConfig(ctx, nil, tx, fleetID, cfg)
}

func upsertFleetConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, fleetID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Fleet.ID = fleetID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO fleet_configs(fleet_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(fleet_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, fleetID, string(payload), now, now)
	return err
}

func (r Repo) GetFleetConfig(ctx context.Context, fleetID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM fleet_configs WHERE fleet_id=?`, fleetID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Fleet.ID == "" {
		cfg.Fleet.ID = fleetID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets(id,fleet_id,name,category,status,next_inspection_date,last_expiry_status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.FleetID, a.Name, string(a.Category), string(a.Status), nullableStringPtr(a.NextInspectionDate),
		nullableExpiryPtr(a.LastExpiryStatus), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	res, err := tx.ExecContext(ctx, `UPDATE assets SET name=?, category=?, status=?, next_inspection_date=?, last_expiry_status=?, updated_at=? WHERE id=?`,
		a.Name, string(a.Category), string(a.Status), nullableStringPtr(a.NextInspectionDate),
		nullableExpiryPtr(a.LastExpiryStatus), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAsset(scan func(dest ...any) error) (domain.Asset, error) {
	var a domain.Asset
	var nextInspection, lastStatus sql.NullString
	err := scan(&a.ID, &a.FleetID, &a.Name, &a.Category, &a.Status, &nextInspection, &lastStatus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if nextInspection.Valid {
		a.NextInspectionDate = &nextInspection.String
	}
	if lastStatus.Valid {
		s := domain.ExpiryStatus(lastStatus.String)
		a.LastExpiryStatus = &s
	}
	return a, nil
}

const assetColumns = `id,fleet_id,name,category,status,next_inspection_date,last_expiry_status,created_at,updated_at`

func (r Repo) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id)
	a, err := scanAsset(row.Scan)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetAssetTx(ctx context.Context, tx *sql.Tx, id string) (domain.Asset, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id)
	a, err := scanAsset(row.Scan)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

type AssetFilters struct {
	FleetID         string
	Category        string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAssets(ctx context.Context, f AssetFilters) ([]domain.Asset, error) {
	var clauses []string
	var args []any
	if f.FleetID != "" {
		clauses = append(clauses, "fleet_id=?")
		args = append(args, f.FleetID)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + assetColumns + ` FROM assets ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAsset(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(id,asset_id,type,status,issue_date,expiry_date,created_at) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.AssetID, d.Type, d.Status, nullableStringPtr(d.IssueDate), nullableStringPtr(d.ExpiryDate), d.CreatedAt)
	return err
}

func (r Repo) UpdateDocumentStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE documents SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocument(scan func(dest ...any) error) (domain.Document, error) {
	var d domain.Document
	var issue, expiry sql.NullString
	err := scan(&d.ID, &d.AssetID, &d.Type, &d.Status, &issue, &expiry, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if issue.Valid {
		d.IssueDate = &issue.String
	}
	if expiry.Valid {
		d.ExpiryDate = &expiry.String
	}
	return d, nil
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,asset_id,type,status,issue_date,expiry_date,created_at FROM documents WHERE id=?`, id)
	d, err := scanDocument(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) ListDocuments(ctx context.Context, assetID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,asset_id,type,status,issue_date,expiry_date,created_at FROM documents WHERE asset_id=? ORDER BY created_at DESC, id DESC`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) InsertInspection(ctx context.Context, tx *sql.Tx, insp domain.Inspection) error {
	items, err := json.Marshal(insp.Items)
	if err != nil {
		return fmt.Errorf("marshal checklist items: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO inspections(id,asset_id,kind,date,submitted_by,notes,status,items_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		insp.ID, insp.AssetID, string(insp.Kind), insp.Date, insp.SubmittedBy, nullable(insp.Notes), insp.Status, string(items), insp.CreatedAt)
	return err
}

func scanInspection(scan func(dest ...any) error) (domain.Inspection, error) {
	var insp domain.Inspection
	var notes sql.NullString
	var items string
	err := scan(&insp.ID, &insp.AssetID, &insp.Kind, &insp.Date, &insp.SubmittedBy, &notes, &insp.Status, &items, &insp.CreatedAt)
	if err != nil {
		return insp, err
	}
	if notes.Valid {
		insp.Notes = notes.String
	}
	if err := json.Unmarshal([]byte(items), &insp.Items); err != nil {
		return insp, fmt.Errorf("unmarshal checklist items for %s: %w", insp.ID, err)
	}
	return insp, nil
}

const inspectionColumns = `id,asset_id,kind,date,submitted_by,notes,status,items_json,created_at`

func (r Repo) GetInspection(ctx context.Context, id string) (domain.Inspection, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id=?`, id)
	insp, err := scanInspection(row.Scan)
	if err == sql.ErrNoRows {
		return insp, ErrNotFound
	}
	return insp, err
}

type InspectionFilters struct {
	AssetID    string
	Kind       string
	Limit      int
	CursorDate string
	CursorID   string
}

func (r Repo) ListInspections(ctx context.Context, f InspectionFilters) ([]domain.Inspection, error) {
	var clauses []string
	var args []any
	if f.AssetID != "" {
		clauses = append(clauses, "asset_id=?")
		args = append(args, f.AssetID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.CursorDate != "" && f.CursorID != "" {
		clauses = append(clauses, "(date < ? OR (date = ? AND id < ?))")
		args = append(args, f.CursorDate, f.CursorDate, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + inspectionColumns + ` FROM inspections ` + where + ` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Inspection
	for rows.Next() {
		insp, err := scanInspection(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, insp)
	}
	return res, rows.Err()
}

func (r Repo) InsertMaintenance(ctx context.Context, tx *sql.Tx, t domain.MaintenanceTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO maintenance_tasks(id,asset_id,description,severity,due_date,status,created_at,completed_at)
VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.AssetID, t.Description, t.Severity, nullableStringPtr(t.DueDate), t.Status, t.CreatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) CompleteMaintenance(ctx context.Context, tx *sql.Tx, id, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE maintenance_tasks SET status='completed', completed_at=? WHERE id=? AND status='open'`, completedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMaintenance(scan func(dest ...any) error) (domain.MaintenanceTask, error) {
	var t domain.MaintenanceTask
	var due, completed sql.NullString
	err := scan(&t.ID, &t.AssetID, &t.Description, &t.Severity, &due, &t.Status, &t.CreatedAt, &completed)
	if err != nil {
		return t, err
	}
	if due.Valid {
		t.DueDate = &due.String
	}
	if completed.Valid {
		t.CompletedAt = &completed.String
	}
	return t, nil
}

func (r Repo) GetMaintenance(ctx context.Context, id string) (domain.MaintenanceTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,asset_id,description,severity,due_date,status,created_at,completed_at FROM maintenance_tasks WHERE id=?`, id)
	t, err := scanMaintenance(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListMaintenance(ctx context.Context, assetID, status string) ([]domain.MaintenanceTask, error) {
	clauses := []string{"asset_id=?"}
	args := []any{assetID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT id,asset_id,description,severity,due_date,status,created_at,completed_at FROM maintenance_tasks WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MaintenanceTask
	for rows.Next() {
		t, err := scanMaintenance(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertDefect(ctx context.Context, tx *sql.Tx, d domain.Defect) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO defects(id,asset_id,description,severity,status,inspection_id,created_at,closed_at)
VALUES (?,?,?,?,?,?,?,?)`,
		d.ID, d.AssetID, d.Description, d.Severity, d.Status, nullableStringPtr(d.InspectionID), d.CreatedAt, nullableStringPtr(d.ClosedAt))
	return err
}

func (r Repo) CloseDefect(ctx context.Context, tx *sql.Tx, id, closedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE defects SET status='closed', closed_at=? WHERE id=? AND status='open'`, closedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDefect(scan func(dest ...any) error) (domain.Defect, error) {
	var d domain.Defect
	var inspectionID, closedAt sql.NullString
	err := scan(&d.ID, &d.AssetID, &d.Description, &d.Severity, &d.Status, &inspectionID, &d.CreatedAt, &closedAt)
	if err != nil {
		return d, err
	}
	if inspectionID.Valid {
		d.InspectionID = &inspectionID.String
	}
	if closedAt.Valid {
		d.ClosedAt = &closedAt.String
	}
	return d, nil
}

func (r Repo) GetDefect(ctx context.Context, id string) (domain.Defect, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,asset_id,description,severity,status,inspection_id,created_at,closed_at FROM defects WHERE id=?`, id)
	d, err := scanDefect(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) ListDefects(ctx context.Context, assetID, status string) ([]domain.Defect, error) {
	clauses := []string{"asset_id=?"}
	args := []any{assetID}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT id,asset_id,description,severity,status,inspection_id,created_at,closed_at FROM defects WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Defect
	for rows.Next() {
		d, err := scanDefect(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, fleetID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, fleetID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, fleetID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if fleetID != "" {
		clauses = append(clauses, "fleet_id=?")
		args = append(args, fleetID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,fleet_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, fleetID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if fleetID != "" {
		clauses = append(clauses, "fleet_id=?")
		args = append(args, fleetID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,fleet_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var fleetID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &fleetID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if fleetID.Valid {
			e.FleetID = fleetID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a fleet.
func (r Repo) LatestEventID(ctx context.Context, fleetID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE fleet_id=?`, fleetID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// CountAssetsByStatus returns the number of assets per operational status
// within a fleet.
func (r Repo) CountAssetsByStatus(ctx context.Context, fleetID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM assets WHERE fleet_id=? GROUP BY status`, fleetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableExpiryPtr(v *domain.ExpiryStatus) any {
	if v == nil {
		return nil
	}
	return string(*v)
}
