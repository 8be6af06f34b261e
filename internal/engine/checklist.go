package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"fleetline/internal/domain"
)

// ValidateChecklist accepts a checklist when every required item has been
// answered. A failed required item is a complete answer: failing a check is
// a legitimate inspection result, not an incomplete one. Optional items
// never block submission.
func ValidateChecklist(items []domain.ChecklistItem) error {
	var missing []string
	for _, item := range items {
		if item.Required && item.Status == domain.ItemNotChecked {
			missing = append(missing, item.ID)
		}
	}
	if len(missing) > 0 {
		return &MissingRequiredItemsError{IDs: missing}
	}
	return nil
}

const (
	sessionEditing   = "editing"
	sessionFinalized = "finalized"
)

// InspectionSession holds one not-yet-submitted inspection. Item statuses
// are mutable until Submit succeeds; a rejected submit keeps every entered
// status so the caller can fix only what was missing and retry. Sessions
// are transient: nothing is persisted until a submission is accepted.
type InspectionSession struct {
	assetID string
	kind    domain.InspectionKind
	items   []domain.ChecklistItem
	notes   string
	state   string
}

// NewInspectionSession starts an editing session over a snapshot of the
// template items. The template itself is never mutated.
func NewInspectionSession(assetID string, kind domain.InspectionKind, template []domain.ChecklistItem) *InspectionSession {
	items := make([]domain.ChecklistItem, len(template))
	copy(items, template)
	for i := range items {
		if items[i].Status == "" {
			items[i].Status = domain.ItemNotChecked
		}
	}
	return &InspectionSession{
		assetID: assetID,
		kind:    kind,
		items:   items,
		state:   sessionEditing,
	}
}

// UpdateItem replaces exactly one item's status by id. Valid only while the
// session is still editing.
func (s *InspectionSession) UpdateItem(id string, status domain.ItemStatus) error {
	if s.state != sessionEditing {
		return errors.New("inspection already finalized")
	}
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			return nil
		}
	}
	return &UnknownItemIDError{ID: id}
}

func (s *InspectionSession) SetNotes(notes string) {
	if s.state == sessionEditing {
		s.notes = notes
	}
}

// Items returns a copy of the current item statuses.
func (s *InspectionSession) Items() []domain.ChecklistItem {
	out := make([]domain.ChecklistItem, len(s.items))
	copy(out, s.items)
	return out
}

// Submit validates the current snapshot. On acceptance the session becomes
// terminal and the finalized inspection is returned with the item sequence
// frozen. On rejection the session stays editable and no statuses are lost.
func (s *InspectionSession) Submit(submittedBy string, now time.Time) (domain.Inspection, error) {
	if s.state != sessionEditing {
		return domain.Inspection{}, errors.New("inspection already finalized")
	}
	if err := ValidateChecklist(s.items); err != nil {
		return domain.Inspection{}, err
	}
	s.state = sessionFinalized
	items := make([]domain.ChecklistItem, len(s.items))
	copy(items, s.items)
	return domain.Inspection{
		ID:          uuid.New().String(),
		AssetID:     s.assetID,
		Kind:        s.kind,
		Date:        now.UTC().Format(dateLayout),
		SubmittedBy: submittedBy,
		Notes:       s.notes,
		Status:      "completed",
		Items:       items,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}, nil
}
