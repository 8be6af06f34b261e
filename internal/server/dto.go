package server

import (
	"fleetline/internal/domain"
	"fleetline/internal/engine"
)

type CreateFleetRequest struct {
	ID   string `json:"id" example:"north-depot"`
	Name string `json:"name,omitempty" example:"North Depot"`
}

type FleetResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func fleetResponse(f domain.Fleet) FleetResponse {
	return FleetResponse{ID: f.ID, Name: f.Name, Status: f.Status, CreatedAt: f.CreatedAt}
}

type CreateAssetRequest struct {
	ID                 string `json:"id,omitempty"`
	Name               string `json:"name" example:"Truck 7"`
	Category           string `json:"category" enum:"vehicle,equipment,power_tool,lifting_accessory"`
	NextInspectionDate string `json:"next_inspection_date,omitempty" format:"date"`
}

type AssetStatusRequest struct {
	Status string `json:"status" enum:"active,maintenance,decommissioned"`
}

type ScheduleInspectionRequest struct {
	Date string `json:"date" format:"date"`
}

type AssetResponse struct {
	ID                 string  `json:"id"`
	FleetID            string  `json:"fleet_id"`
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	Status             string  `json:"status"`
	DisplayCategory    string  `json:"display_category" enum:"in_service,out_of_service,retired"`
	NextInspectionDate *string `json:"next_inspection_date,omitempty"`
	LastExpiryStatus   *string `json:"last_expiry_status,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

func assetResponse(a domain.Asset) AssetResponse {
	var lastExpiry *string
	if a.LastExpiryStatus != nil {
		s := string(*a.LastExpiryStatus)
		lastExpiry = &s
	}
	return AssetResponse{
		ID:                 a.ID,
		FleetID:            a.FleetID,
		Name:               a.Name,
		Category:           string(a.Category),
		Status:             string(a.Status),
		DisplayCategory:    string(engine.ResolveOperationalCategory(a.Status)),
		NextInspectionDate: a.NextInspectionDate,
		LastExpiryStatus:   lastExpiry,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

type CreateDocumentRequest struct {
	ID         string `json:"id,omitempty"`
	Type       string `json:"type" example:"insurance"`
	Status     string `json:"status,omitempty" enum:",verified,pending,rejected"`
	IssueDate  string `json:"issue_date,omitempty" format:"date"`
	ExpiryDate string `json:"expiry_date,omitempty" format:"date"`
}

type DocumentStatusRequest struct {
	Status string `json:"status" enum:"verified,pending,rejected"`
}

type DocumentResponse struct {
	ID         string  `json:"id"`
	AssetID    string  `json:"asset_id"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	IssueDate  *string `json:"issue_date,omitempty"`
	ExpiryDate *string `json:"expiry_date,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func documentResponse(d domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:         d.ID,
		AssetID:    d.AssetID,
		Type:       d.Type,
		Status:     d.Status,
		IssueDate:  d.IssueDate,
		ExpiryDate: d.ExpiryDate,
		CreatedAt:  d.CreatedAt,
	}
}

type SubmitInspectionRequest struct {
	Kind    string            `json:"kind" enum:"daily,monthly"`
	Results map[string]string `json:"results" example:"{\"veh.brakes\":\"passed\"}"`
	Notes   string            `json:"notes,omitempty"`
}

type ChecklistItemResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Status      string `json:"status"`
}

type InspectionResponse struct {
	ID          string                  `json:"id"`
	AssetID     string                  `json:"asset_id"`
	Kind        string                  `json:"kind"`
	Date        string                  `json:"date"`
	SubmittedBy string                  `json:"submitted_by"`
	Notes       string                  `json:"notes,omitempty"`
	Status      string                  `json:"status"`
	Items       []ChecklistItemResponse `json:"items"`
	CreatedAt   string                  `json:"created_at"`
}

func inspectionResponse(insp domain.Inspection) InspectionResponse {
	items := make([]ChecklistItemResponse, 0, len(insp.Items))
	for _, it := range insp.Items {
		items = append(items, ChecklistItemResponse{
			ID:          it.ID,
			Description: it.Description,
			Required:    it.Required,
			Status:      string(it.Status),
		})
	}
	return InspectionResponse{
		ID:          insp.ID,
		AssetID:     insp.AssetID,
		Kind:        string(insp.Kind),
		Date:        insp.Date,
		SubmittedBy: insp.SubmittedBy,
		Notes:       insp.Notes,
		Status:      insp.Status,
		Items:       items,
		CreatedAt:   insp.CreatedAt,
	}
}

type CreateMaintenanceRequest struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
	Severity    string `json:"severity" enum:"low,medium,high,critical"`
	DueDate     string `json:"due_date,omitempty" format:"date"`
}

type MaintenanceResponse struct {
	ID          string  `json:"id"`
	AssetID     string  `json:"asset_id"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	DueDate     *string `json:"due_date,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

func maintenanceResponse(t domain.MaintenanceTask) MaintenanceResponse {
	return MaintenanceResponse{
		ID:          t.ID,
		AssetID:     t.AssetID,
		Description: t.Description,
		Severity:    t.Severity,
		DueDate:     t.DueDate,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

type CreateDefectRequest struct {
	ID           string `json:"id,omitempty"`
	Description  string `json:"description"`
	Severity     string `json:"severity" enum:"low,medium,high,critical"`
	InspectionID string `json:"inspection_id,omitempty"`
}

type DefectResponse struct {
	ID           string  `json:"id"`
	AssetID      string  `json:"asset_id"`
	Description  string  `json:"description"`
	Severity     string  `json:"severity"`
	Status       string  `json:"status"`
	InspectionID *string `json:"inspection_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
	ClosedAt     *string `json:"closed_at,omitempty"`
}

func defectResponse(d domain.Defect) DefectResponse {
	return DefectResponse{
		ID:           d.ID,
		AssetID:      d.AssetID,
		Description:  d.Description,
		Severity:     d.Severity,
		Status:       d.Status,
		InspectionID: d.InspectionID,
		CreatedAt:    d.CreatedAt,
		ClosedAt:     d.ClosedAt,
	}
}

type DueItemResponse struct {
	Kind string `json:"kind" enum:"document,inspection,maintenance"`
	ID   string `json:"id,omitempty"`
}

type ComplianceResponse struct {
	AssetID          string           `json:"asset_id"`
	OverallScore     float64          `json:"overall_score"`
	InspectionScore  float64          `json:"inspection_score"`
	MaintenanceScore float64          `json:"maintenance_score"`
	DocumentScore    float64          `json:"document_score"`
	DefectScore      float64          `json:"defect_score"`
	ExpiryStatus     string           `json:"expiry_status"`
	NextDueDate      *string          `json:"next_due_date,omitempty"`
	NextDueItem      *DueItemResponse `json:"next_due_item,omitempty"`
	ComputedAt       string           `json:"computed_at"`
}

func complianceResponse(m domain.ComplianceMetric) ComplianceResponse {
	resp := ComplianceResponse{
		AssetID:          m.AssetID,
		OverallScore:     m.OverallScore,
		InspectionScore:  m.InspectionScore,
		MaintenanceScore: m.MaintenanceScore,
		DocumentScore:    m.DocumentScore,
		DefectScore:      m.DefectScore,
		ExpiryStatus:     string(m.ExpiryStatus),
		NextDueDate:      m.NextDueDate,
		ComputedAt:       m.ComputedAt,
	}
	if m.NextDueItem != nil {
		resp.NextDueItem = &DueItemResponse{Kind: string(m.NextDueItem.Kind), ID: m.NextDueItem.ID}
	}
	return resp
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	FleetID    string `json:"fleet_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		FleetID:    e.FleetID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

type paginatedAssets struct {
	Items      []AssetResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type paginatedInspections struct {
	Items      []InspectionResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func mapFleets(items []domain.Fleet) []FleetResponse {
	res := make([]FleetResponse, 0, len(items))
	for _, f := range items {
		res = append(res, fleetResponse(f))
	}
	return res
}

func mapDocuments(items []domain.Document) []DocumentResponse {
	res := make([]DocumentResponse, 0, len(items))
	for _, d := range items {
		res = append(res, documentResponse(d))
	}
	return res
}

func mapMaintenance(items []domain.MaintenanceTask) []MaintenanceResponse {
	res := make([]MaintenanceResponse, 0, len(items))
	for _, t := range items {
		res = append(res, maintenanceResponse(t))
	}
	return res
}

func mapDefects(items []domain.Defect) []DefectResponse {
	res := make([]DefectResponse, 0, len(items))
	for _, d := range items {
		res = append(res, defectResponse(d))
	}
	return res
}

func mapAPIKeys(items []domain.APIKey) []APIKeyResponse {
	res := make([]APIKeyResponse, 0, len(items))
	for _, k := range items {
		res = append(res, apiKeyResponse(k))
	}
	return res
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
