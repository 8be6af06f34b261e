package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fleetline/internal/app"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/engine/auth"
	"fleetline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"duplicate_inspection"`
	Message string         `json:"message" example:"inspection already submitted for this asset, date and kind"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"date\":\"2024-01-01\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Fleetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Fleetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerFleets(group, cfg.Engine)
	registerStatus(group, cfg.Engine)
	registerAssets(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerInspections(group, cfg.Engine)
	registerMaintenance(group, cfg.Engine)
	registerDefects(group, cfg.Engine)
	registerCompliance(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerRBAC(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var dup *engine.DuplicateInspectionError
	if errors.As(err, &dup) {
		return newAPIError(http.StatusConflict, "duplicate_inspection", err.Error(), map[string]any{
			"asset_id": dup.AssetID, "date": dup.Date, "kind": dup.Kind,
		})
	}
	var missing *engine.MissingRequiredItemsError
	if errors.As(err, &missing) {
		return newAPIError(http.StatusUnprocessableEntity, "missing_required_items", err.Error(), map[string]any{
			"ids": missing.IDs,
		})
	}
	var unknownItem *engine.UnknownItemIDError
	if errors.As(err, &unknownItem) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"id": unknownItem.ID})
	}
	var transition *engine.InvalidTransitionError
	if errors.As(err, &transition) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"from": string(transition.From), "to": string(transition.To),
		})
	}
	var dateRange *engine.InvalidDateRangeError
	if errors.As(err, &dateRange) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_date_range", err.Error(), map[string]any{
			"document_id": dateRange.DocumentID,
		})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case strings.Contains(lowered, "is not open"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func hasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

func requirePermission(ctx context.Context, e engine.Engine, fleetID, perm string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	if hasPermission(principal.Permissions, perm) {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Auth.ActorHasPermission(ctx, tx, fleetID, principal.ActorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return auth.ForbiddenError{Permission: perm}
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Fleetline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerFleets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-fleet",
		Method:        http.MethodPost,
		Path:          "/fleets",
		Summary:       "Create fleet",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateFleetRequest `json:"body"`
	}) (*struct {
		Body FleetResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.InitFleet(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			if repo.IsUniqueViolation(err) {
				return nil, newAPIError(http.StatusConflict, "conflict", "fleet already exists", nil)
			}
			return nil, handleError(err)
		}
		// The creator becomes the first fleet manager.
		if err := seedFleetAccess(ctx, e, f.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FleetResponse `json:"body"`
		}{Body: fleetResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-fleets",
		Method:      http.MethodGet,
		Path:        "/fleets",
		Summary:     "List fleets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []FleetResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListFleets(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []FleetResponse `json:"body"`
		}{Body: mapFleets(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-fleet",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}",
		Summary:     "Get fleet",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
	}) (*struct {
		Body FleetResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		f, err := e.Repo.GetFleet(ctx, input.FleetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FleetResponse `json:"body"`
		}{Body: fleetResponse(f)}, nil
	})
}

// seedFleetAccess installs the configured roles in a new fleet and grants
// the creator manager.
func seedFleetAccess(ctx context.Context, e engine.Engine, fleetID, actorID string) error {
	if e.Config == nil || len(e.Config.RBAC.Roles) == 0 {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := app.SeedRBAC(ctx, e.Repo, tx, e.Config); err != nil {
		return err
	}
	now := e.Now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, fleetID, actorID, "manager"); err != nil {
		return err
	}
	return tx.Commit()
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "fleet-status",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/status",
		Summary:     "Fleet status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		f, err := e.Repo.GetFleet(ctx, input.FleetID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountAssetsByStatus(ctx, f.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"fleet_id":     f.ID,
			"status":       f.Status,
			"asset_counts": counts,
		}}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-asset",
		Method:        http.MethodPost,
		Path:          "/fleets/{fleet_id}/assets",
		Summary:       "Register asset",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string             `path:"fleet_id"`
		Body    CreateAssetRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.FleetID, "asset.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RegisterAsset(ctx, engine.AssetCreateOptions{
			ID:                 input.Body.ID,
			FleetID:            input.FleetID,
			Name:               input.Body.Name,
			Category:           input.Body.Category,
			NextInspectionDate: input.Body.NextInspectionDate,
			ActorID:            actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/assets",
		Summary:     "List assets",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		FleetID  string `path:"fleet_id"`
		Category string `query:"category" enum:",vehicle,equipment,power_tool,lifting_accessory"`
		Status   string `query:"status" enum:",active,maintenance,decommissioned"`
		Limit    int    `query:"limit" default:"50"`
		Cursor   string `query:"cursor"`
	}) (*struct {
		Body paginatedAssets `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorCreatedAt, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListAssets(ctx, repo.AssetFilters{
			FleetID:         input.FleetID,
			Category:        input.Category,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreatedAt,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAssets{Items: []AssetResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, a := range items {
			resp.Items = append(resp.Items, assetResponse(a))
		}
		return &struct {
			Body paginatedAssets `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}",
		Summary:     "Get asset",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		a, err := assetInFleet(ctx, e, input.FleetID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-asset-status",
		Method:      http.MethodPatch,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}/status",
		Summary:     "Change operational status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string             `path:"fleet_id"`
		AssetID string             `path:"asset_id"`
		Force   bool               `query:"force"`
		Body    AssetStatusRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		a, err := e.SetAssetStatus(ctx, input.AssetID, input.Body.Status, actorID, input.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-inspection",
		Method:      http.MethodPatch,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}/schedule",
		Summary:     "Set next inspection date",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string                    `path:"fleet_id"`
		AssetID string                    `path:"asset_id"`
		Body    ScheduleInspectionRequest `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		date := input.Body.Date
		// An explicit null clears the schedule.
		if raw, ok := rawBodyMap(ctx)["date"]; ok && isNullRaw(raw) {
			date = ""
		}
		a, err := e.ScheduleInspection(ctx, input.AssetID, date, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: assetResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-asset",
		Method:      http.MethodDelete,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}",
		Summary:     "Delete asset",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		AssetID string `path:"asset_id"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "fleet.admin"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteAsset(ctx, input.AssetID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-document",
		Method:        http.MethodPost,
		Path:          "/fleets/{fleet_id}/assets/{asset_id}/documents",
		Summary:       "Attach document",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string                `path:"fleet_id"`
		AssetID string                `path:"asset_id"`
		Body    CreateDocumentRequest `json:"body"`
	}) (*struct {
		Body DocumentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.FleetID, "document.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		d, err := e.AddDocument(ctx, engine.DocumentCreateOptions{
			ID:         input.Body.ID,
			AssetID:    input.AssetID,
			Type:       input.Body.Type,
			Status:     input.Body.Status,
			IssueDate:  input.Body.IssueDate,
			ExpiryDate: input.Body.ExpiryDate,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentResponse `json:"body"`
		}{Body: documentResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-documents",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}/documents",
		Summary:     "List documents",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body []DocumentResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDocuments(ctx, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DocumentResponse `json:"body"`
		}{Body: mapDocuments(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-document-status",
		Method:      http.MethodPatch,
		Path:        "/fleets/{fleet_id}/documents/{document_id}/status",
		Summary:     "Change document status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FleetID    string                `path:"fleet_id"`
		DocumentID string                `path:"document_id"`
		Body       DocumentStatusRequest `json:"body"`
	}) (*struct {
		Body DocumentResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "document.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.SetDocumentStatus(ctx, input.DocumentID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DocumentResponse `json:"body"`
		}{Body: documentResponse(d)}, nil
	})
}

func registerInspections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-inspection",
		Method:        http.MethodPost,
		Path:          "/fleets/{fleet_id}/assets/{asset_id}/inspections",
		Summary:       "Submit inspection",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string                  `path:"fleet_id"`
		AssetID string                  `path:"asset_id"`
		Body    SubmitInspectionRequest `json:"body"`
	}) (*struct {
		Body InspectionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.FleetID, "inspection.submit"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		results := make(map[string]domain.ItemStatus, len(input.Body.Results))
		for id, status := range input.Body.Results {
			results[id] = domain.ItemStatus(status)
		}
		insp, err := e.SubmitInspection(ctx, engine.InspectionSubmitOptions{
			AssetID: input.AssetID,
			Kind:    input.Body.Kind,
			Results: results,
			Notes:   input.Body.Notes,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InspectionResponse `json:"body"`
		}{Body: inspectionResponse(insp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-inspections",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}/inspections",
		Summary:     "List inspections",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		AssetID string `path:"asset_id"`
		Kind    string `query:"kind" enum:",daily,monthly"`
		Limit   int    `query:"limit" default:"50"`
		Cursor  string `query:"cursor"`
	}) (*struct {
		Body paginatedInspections `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorDate, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListInspections(ctx, repo.InspectionFilters{
			AssetID:    input.AssetID,
			Kind:       input.Kind,
			Limit:      limit + 1,
			CursorDate: cursorDate,
			CursorID:   cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedInspections{Items: []InspectionResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].Date, items[limit].ID)
			items = items[:limit]
		}
		for _, insp := range items {
			resp.Items = append(resp.Items, inspectionResponse(insp))
		}
		return &struct {
			Body paginatedInspections `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inspection",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/inspections/{inspection_id}",
		Summary:     "Get inspection",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID      string `path:"fleet_id"`
		InspectionID string `path:"inspection_id"`
	}) (*struct {
		Body InspectionResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		insp, err := e.Repo.GetInspection(ctx, input.InspectionID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, insp.AssetID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InspectionResponse `json:"body"`
		}{Body: inspectionResponse(insp)}, nil
	})
}

func registerMaintenance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "schedule-maintenance",
		Method:        http.MethodPost,
		Path:          "/fleets/{fleet_id}/assets/{asset_id}/maintenance",
		Summary:       "Schedule maintenance",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string                   `path:"fleet_id"`
		AssetID string                   `path:"asset_id"`
		Body    CreateMaintenanceRequest `json:"body"`
	}) (*struct {
		Body MaintenanceResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.FleetID, "maintenance.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		t, err := e.ScheduleMaintenance(ctx, engine.MaintenanceCreateOptions{
			ID:          input.Body.ID,
			AssetID:     input.AssetID,
			Description: input.Body.Description,
			Severity:    input.Body.Severity,
			DueDate:     input.Body.DueDate,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MaintenanceResponse `json:"body"`
		}{Body: maintenanceResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-maintenance",
		Method:      http.MethodPost,
		Path:        "/fleets/{fleet_id}/maintenance/{task_id}/complete",
		Summary:     "Complete maintenance",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		TaskID  string `path:"task_id"`
	}) (*struct {
		Body MaintenanceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "maintenance.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CompleteMaintenance(ctx, input.TaskID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MaintenanceResponse `json:"body"`
		}{Body: maintenanceResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-maintenance",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}/maintenance",
		Summary:     "List maintenance",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		AssetID string `path:"asset_id"`
		Status  string `query:"status" enum:",open,completed"`
	}) (*struct {
		Body []MaintenanceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMaintenance(ctx, input.AssetID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MaintenanceResponse `json:"body"`
		}{Body: mapMaintenance(items)}, nil
	})
}

func registerDefects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "open-defect",
		Method:        http.MethodPost,
		Path:          "/fleets/{fleet_id}/assets/{asset_id}/defects",
		Summary:       "Open defect",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string              `path:"fleet_id"`
		AssetID string              `path:"asset_id"`
		Body    CreateDefectRequest `json:"body"`
	}) (*struct {
		Body DefectResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.FleetID, "defect.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		d, err := e.OpenDefect(ctx, engine.DefectCreateOptions{
			ID:           input.Body.ID,
			AssetID:      input.AssetID,
			Description:  input.Body.Description,
			Severity:     input.Body.Severity,
			InspectionID: input.Body.InspectionID,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DefectResponse `json:"body"`
		}{Body: defectResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-defect",
		Method:      http.MethodPost,
		Path:        "/fleets/{fleet_id}/defects/{defect_id}/close",
		Summary:     "Close defect",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		FleetID  string `path:"fleet_id"`
		DefectID string `path:"defect_id"`
	}) (*struct {
		Body DefectResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "defect.write"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CloseDefect(ctx, input.DefectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DefectResponse `json:"body"`
		}{Body: defectResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-defects",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}/defects",
		Summary:     "List defects",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		AssetID string `path:"asset_id"`
		Status  string `query:"status" enum:",open,closed"`
	}) (*struct {
		Body []DefectResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "asset.read"); err != nil {
			return nil, handleError(err)
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDefects(ctx, input.AssetID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DefectResponse `json:"body"`
		}{Body: mapDefects(items)}, nil
	})
}

func registerCompliance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "asset-compliance",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/assets/{asset_id}/compliance",
		Summary:     "Compute asset compliance",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body ComplianceResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "compliance.read"); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := assetInFleet(ctx, e, input.FleetID, input.AssetID); err != nil {
			return nil, handleError(err)
		}
		metric, err := e.ComplianceFor(ctx, input.AssetID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ComplianceResponse `json:"body"`
		}{Body: complianceResponse(metric)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		FleetID    string `path:"fleet_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:",fleet,asset,document,inspection,maintenance,defect,rbac"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.FleetID, "event.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.FleetID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/fleets/{fleet_id}/me/permissions",
		Summary:     "Current actor permissions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		FleetID string `path:"fleet_id"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		who, err := e.WhoAmI(ctx, input.FleetID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     who.ActorID,
			Roles:       nonNilSlice(who.Roles),
			Permissions: nonNilSlice(who.Permissions),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/fleets/{fleet_id}/rbac/roles/grant",
		Summary:     "Grant role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string            `path:"fleet_id"`
		Body    RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, input.FleetID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/fleets/{fleet_id}/rbac/roles/revoke",
		Summary:     "Revoke role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		FleetID string            `path:"fleet_id"`
		Body    RoleChangeRequest `json:"body"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.FleetID, actorID, input.Body.ActorID, input.Body.RoleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles := principal.Roles
		perms := principal.Permissions
		if len(perms) == 0 && e.Config != nil {
			if who, err := e.WhoAmI(ctx, e.Config.Fleet.ID, principal.ActorID); err == nil {
				if len(roles) == 0 {
					roles = who.Roles
				}
				perms = who.Permissions
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
		}}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		target := input.Body.ActorID
		if target == "" {
			target = actorID
		}
		key, plaintext, err := e.CreateAPIKey(ctx, target, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		resp := apiKeyResponse(key)
		resp.Key = plaintext
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/apikeys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAPIKeys(ctx, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: mapAPIKeys(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{key_id}",
		Summary:     "Delete API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Roles)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

// assetInFleet loads an asset and hides it when it belongs to another fleet.
func assetInFleet(ctx context.Context, e engine.Engine, fleetID, assetID string) (domain.Asset, error) {
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	if fleetID != "" && a.FleetID != fleetID {
		return domain.Asset{}, repo.ErrNotFound
	}
	return a, nil
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	if inner, ok := outer["body"]; ok {
		var innerMap map[string]json.RawMessage
		if err := json.Unmarshal(inner, &innerMap); err == nil {
			return innerMap
		}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
