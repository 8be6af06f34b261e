package fleetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Fleetline HTTP API client.
type Client struct {
	BaseURL     string
	FleetID     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, fleetID string) *Client {
	return &Client{
		BaseURL: baseURL,
		FleetID: fleetID,
		Timeout: 10 * time.Second,
	}
}

// Asset represents the API asset model (partial).
type Asset struct {
	ID                 string  `json:"id"`
	FleetID            string  `json:"fleet_id"`
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	Status             string  `json:"status"`
	DisplayCategory    string  `json:"display_category"`
	NextInspectionDate *string `json:"next_inspection_date,omitempty"`
}

// Document represents an asset document.
type Document struct {
	ID         string  `json:"id"`
	AssetID    string  `json:"asset_id"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
	IssueDate  *string `json:"issue_date,omitempty"`
	ExpiryDate *string `json:"expiry_date,omitempty"`
}

// ChecklistItem is a single answered checklist entry.
type ChecklistItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Status      string `json:"status"`
}

// Inspection represents a submitted inspection.
type Inspection struct {
	ID          string          `json:"id"`
	AssetID     string          `json:"asset_id"`
	Kind        string          `json:"kind"`
	Date        string          `json:"date"`
	SubmittedBy string          `json:"submitted_by"`
	Notes       string          `json:"notes,omitempty"`
	Status      string          `json:"status"`
	Items       []ChecklistItem `json:"items"`
}

// DueItem identifies the nearest upcoming obligation.
type DueItem struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// ComplianceMetric is the computed per-asset compliance snapshot.
type ComplianceMetric struct {
	AssetID          string   `json:"asset_id"`
	OverallScore     float64  `json:"overall_score"`
	InspectionScore  float64  `json:"inspection_score"`
	MaintenanceScore float64  `json:"maintenance_score"`
	DocumentScore    float64  `json:"document_score"`
	DefectScore      float64  `json:"defect_score"`
	ExpiryStatus     string   `json:"expiry_status"`
	NextDueDate      *string  `json:"next_due_date,omitempty"`
	NextDueItem      *DueItem `json:"next_due_item,omitempty"`
	ComputedAt       string   `json:"computed_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	FleetID    string `json:"fleet_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedAssets wraps asset list responses with cursors.
type PaginatedAssets struct {
	Items      []Asset `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedInspections wraps inspection list responses with cursors.
type PaginatedInspections struct {
	Items      []Inspection `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// PaginatedEvents wraps event list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateAsset registers an asset.
func (c *Client) CreateAsset(ctx context.Context, name, category string) (Asset, error) {
	body := map[string]any{
		"name":     name,
		"category": category,
	}
	var resp Asset
	err := c.do(ctx, http.MethodPost, c.fleetPath("assets"), body, &resp)
	return resp, err
}

// GetAsset fetches an asset by id.
func (c *Client) GetAsset(ctx context.Context, assetID string) (Asset, error) {
	var resp Asset
	endpoint := c.fleetPath(fmt.Sprintf("assets/%s", url.PathEscape(assetID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Assets returns a page of assets.
func (c *Client) Assets(ctx context.Context, limit int, cursor string) (PaginatedAssets, error) {
	var resp PaginatedAssets
	err := c.do(ctx, http.MethodGet, withPaging(c.fleetPath("assets"), limit, cursor), nil, &resp)
	return resp, err
}

// SetAssetStatus changes an asset's operational status.
func (c *Client) SetAssetStatus(ctx context.Context, assetID, status string) (Asset, error) {
	var resp Asset
	endpoint := c.fleetPath(fmt.Sprintf("assets/%s/status", url.PathEscape(assetID)))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// AddDocument attaches a document to an asset.
func (c *Client) AddDocument(ctx context.Context, assetID, docType, issueDate, expiryDate string) (Document, error) {
	body := map[string]any{
		"type":        docType,
		"issue_date":  issueDate,
		"expiry_date": expiryDate,
	}
	var resp Document
	endpoint := c.fleetPath(fmt.Sprintf("assets/%s/documents", url.PathEscape(assetID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Documents lists an asset's documents.
func (c *Client) Documents(ctx context.Context, assetID string) ([]Document, error) {
	var resp []Document
	endpoint := c.fleetPath(fmt.Sprintf("assets/%s/documents", url.PathEscape(assetID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SubmitInspection submits checklist answers for an asset. Results maps item
// ids to "passed", "failed" or "not_applicable".
func (c *Client) SubmitInspection(ctx context.Context, assetID, kind string, results map[string]string, notes string) (Inspection, error) {
	body := map[string]any{
		"kind":    kind,
		"results": results,
		"notes":   notes,
	}
	var resp Inspection
	endpoint := c.fleetPath(fmt.Sprintf("assets/%s/inspections", url.PathEscape(assetID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Inspections returns a page of an asset's inspections.
func (c *Client) Inspections(ctx context.Context, assetID string, limit int, cursor string) (PaginatedInspections, error) {
	var resp PaginatedInspections
	endpoint := c.fleetPath(fmt.Sprintf("assets/%s/inspections", url.PathEscape(assetID)))
	err := c.do(ctx, http.MethodGet, withPaging(endpoint, limit, cursor), nil, &resp)
	return resp, err
}

// Compliance computes an asset's compliance metric.
func (c *Client) Compliance(ctx context.Context, assetID string) (ComplianceMetric, error) {
	var resp ComplianceMetric
	endpoint := c.fleetPath(fmt.Sprintf("assets/%s/compliance", url.PathEscape(assetID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withPaging(c.fleetPath("events"), limit, cursor), nil, &resp)
	return resp, err
}

func withPaging(endpoint string, limit int, cursor string) string {
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) fleetPath(p string) string {
	fleet := url.PathEscape(c.FleetID)
	return fmt.Sprintf("v1/fleets/%s/%s", fleet, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
