package domain

// ExpiryStatus is the derived severity of a date-bound obligation.
// It is always recomputed from a date and a reference time, never stored
// as ground truth.
type ExpiryStatus string

const (
	ExpiryValid    ExpiryStatus = "valid"
	ExpiryWarning  ExpiryStatus = "warning"
	ExpiryUrgent   ExpiryStatus = "urgent"
	ExpiryExpired  ExpiryStatus = "expired"
	ExpiryInactive ExpiryStatus = "inactive"
)

// OperationalStatus is an asset's service state, independent of expiry.
type OperationalStatus string

const (
	OperationalActive         OperationalStatus = "active"
	OperationalMaintenance    OperationalStatus = "maintenance"
	OperationalDecommissioned OperationalStatus = "decommissioned"
)

// DisplayCategory groups operational statuses for presentation.
type DisplayCategory string

const (
	DisplayInService    DisplayCategory = "in_service"
	DisplayOutOfService DisplayCategory = "out_of_service"
	DisplayRetired      DisplayCategory = "retired"
)

// AssetCategory selects the checklist templates that apply to an asset.
type AssetCategory string

const (
	CategoryVehicle          AssetCategory = "vehicle"
	CategoryEquipment        AssetCategory = "equipment"
	CategoryPowerTool        AssetCategory = "power_tool"
	CategoryLiftingAccessory AssetCategory = "lifting_accessory"
)

// ItemStatus is the answer state of one checklist item.
type ItemStatus string

const (
	ItemNotChecked ItemStatus = "not_checked"
	ItemPassed     ItemStatus = "passed"
	ItemFailed     ItemStatus = "failed"
)

// InspectionKind distinguishes daily pre-use checks from monthly/technical
// inspections.
type InspectionKind string

const (
	InspectionDaily   InspectionKind = "daily"
	InspectionMonthly InspectionKind = "monthly"
)

type Fleet struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Asset struct {
	ID                 string            `json:"id"`
	FleetID            string            `json:"fleet_id"`
	Name               string            `json:"name"`
	Category           AssetCategory     `json:"category" enum:"vehicle,equipment,power_tool,lifting_accessory"`
	Status             OperationalStatus `json:"status" enum:"active,maintenance,decommissioned"`
	NextInspectionDate *string           `json:"next_inspection_date,omitempty" format:"date"`
	LastExpiryStatus   *ExpiryStatus     `json:"last_expiry_status,omitempty"`
	CreatedAt          string            `json:"created_at" format:"date-time"`
	UpdatedAt          string            `json:"updated_at" format:"date-time"`
}

type Document struct {
	ID         string  `json:"id"`
	AssetID    string  `json:"asset_id"`
	Type       string  `json:"type"`
	Status     string  `json:"status" enum:"verified,pending,rejected"`
	IssueDate  *string `json:"issue_date,omitempty" format:"date"`
	ExpiryDate *string `json:"expiry_date,omitempty" format:"date"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// ChecklistItem is one yes/no/unanswered inspection question. Item statuses
// mutate only inside an in-progress inspection session; the sequence stored
// on a finalized inspection is an immutable snapshot.
type ChecklistItem struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Required    bool       `json:"required"`
	Status      ItemStatus `json:"status" enum:"not_checked,passed,failed"`
}

// Inspection is a finalized, validated checklist submission. There is no
// persisted in-progress state: records exist only with status completed.
type Inspection struct {
	ID          string          `json:"id"`
	AssetID     string          `json:"asset_id"`
	Kind        InspectionKind  `json:"kind" enum:"daily,monthly"`
	Date        string          `json:"date" format:"date"`
	SubmittedBy string          `json:"submitted_by"`
	Notes       string          `json:"notes,omitempty"`
	Status      string          `json:"status" enum:"completed"`
	Items       []ChecklistItem `json:"items"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
}

type MaintenanceTask struct {
	ID          string  `json:"id"`
	AssetID     string  `json:"asset_id"`
	Description string  `json:"description"`
	Severity    string  `json:"severity" enum:"low,medium,high,critical"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	Status      string  `json:"status" enum:"open,completed"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type Defect struct {
	ID           string  `json:"id"`
	AssetID      string  `json:"asset_id"`
	Description  string  `json:"description"`
	Severity     string  `json:"severity" enum:"low,medium,high,critical"`
	Status       string  `json:"status" enum:"open,closed"`
	InspectionID *string `json:"inspection_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	ClosedAt     *string `json:"closed_at,omitempty" format:"date-time"`
}

// DueItemKind identifies which record produced an asset's nearest due date.
type DueItemKind string

const (
	DueDocument    DueItemKind = "document"
	DueInspection  DueItemKind = "inspection"
	DueMaintenance DueItemKind = "maintenance"
)

// DueItemRef points at the underlying record behind NextDueDate. It is a
// reference, not an owner.
type DueItemRef struct {
	Kind DueItemKind `json:"kind" enum:"document,inspection,maintenance"`
	ID   string      `json:"id,omitempty"`
}

// ComplianceMetric is the per-asset aggregate score. It is a read-only
// projection recomputed on demand; no table holds it.
type ComplianceMetric struct {
	AssetID          string       `json:"asset_id"`
	OverallScore     float64      `json:"overall_score"`
	InspectionScore  float64      `json:"inspection_score"`
	MaintenanceScore float64      `json:"maintenance_score"`
	DocumentScore    float64      `json:"document_score"`
	DefectScore      float64      `json:"defect_score"`
	ExpiryStatus     ExpiryStatus `json:"expiry_status" enum:"valid,warning,urgent,expired,inactive"`
	NextDueDate      *string      `json:"next_due_date,omitempty" format:"date"`
	NextDueItem      *DueItemRef  `json:"next_due_item,omitempty"`
	ComputedAt       string       `json:"computed_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	FleetID    string `json:"fleet_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
