package engine

import (
	"fmt"
	"sort"
	"strings"
)

// MissingRequiredItemsError rejects a checklist submission that left
// required items unanswered. Recoverable: the caller re-prompts and no
// entered statuses are lost.
type MissingRequiredItemsError struct {
	IDs []string
}

func (e *MissingRequiredItemsError) Error() string {
	ids := append([]string(nil), e.IDs...)
	sort.Strings(ids)
	return fmt.Sprintf("required checklist items not checked: %s", strings.Join(ids, ", "))
}

// UnknownItemIDError indicates an update against an item id that is not in
// the session. A stale id is a caller bug, not something to retry.
type UnknownItemIDError struct {
	ID string
}

func (e *UnknownItemIDError) Error() string {
	return fmt.Sprintf("unknown checklist item id %s", e.ID)
}

// DuplicateInspectionError rejects a second submission for the same asset,
// date and kind. The accepted record stays authoritative.
type DuplicateInspectionError struct {
	AssetID string
	Date    string
	Kind    string
}

func (e *DuplicateInspectionError) Error() string {
	return fmt.Sprintf("inspection already recorded for asset %s on %s (%s)", e.AssetID, e.Date, e.Kind)
}

// InvalidDateRangeError reports a document whose issue date falls after its
// expiry date. Data entry should have rejected this; the engine refuses to
// derive a status from it.
type InvalidDateRangeError struct {
	DocumentID string
	IssueDate  string
	ExpiryDate string
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("document %s: issue date %s is after expiry date %s", e.DocumentID, e.IssueDate, e.ExpiryDate)
}
