package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"fleetline/internal/app"
	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/engine"
	"fleetline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("fleet-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := e.InitFleet(ctx, cfg.Fleet.ID, "Test Fleet", "tester"); err != nil {
		t.Fatalf("init fleet: %v", err)
	}
	if err := e.Repo.UpsertFleetConfig(ctx, cfg.Fleet.ID, cfg); err != nil {
		t.Fatalf("seed fleet config: %v", err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := app.SeedRBAC(ctx, e.Repo, tx, cfg); err != nil {
		t.Fatalf("seed rbac: %v", err)
	}
	now := e.Now().UTC().Format(time.RFC3339)
	for actor, role := range map[string]string{"tester": "manager", "reader": "viewer"} {
		if err := e.Repo.EnsureActor(ctx, tx, actor, now); err != nil {
			t.Fatalf("ensure actor: %v", err)
		}
		if err := e.Repo.AssignRole(ctx, tx, cfg.Fleet.ID, actor, role); err != nil {
			t.Fatalf("assign role: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit rbac: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func vehicleResults() map[string]string {
	out := map[string]string{}
	for _, id := range []string{"veh.tires", "veh.lights", "veh.brakes", "veh.fluids", "veh.horn", "veh.mirrors", "veh.seatbelt", "veh.damage"} {
		out[id] = "passed"
	}
	return out
}

func createAsset(t *testing.T, srv *testServer, name string) AssetResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/fleets/fleet-1/assets", map[string]any{
		"name":     name,
		"category": "vehicle",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create asset status %d: %s", res.StatusCode, string(data))
	}
	var a AssetResponse
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal asset: %v", err)
	}
	return a
}

func TestSubmitInspectionEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	a := createAsset(t, srv, "Truck 7")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/inspections", map[string]any{
		"kind":    "daily",
		"results": vehicleResults(),
		"notes":   "all clear",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var insp InspectionResponse
	if err := json.Unmarshal(data, &insp); err != nil {
		t.Fatalf("unmarshal inspection: %v", err)
	}
	if insp.Date != "2024-01-01" || insp.Status != "completed" {
		t.Fatalf("unexpected inspection %+v", insp)
	}
	if len(insp.Items) != 9 {
		t.Fatalf("expected full item snapshot, got %d items", len(insp.Items))
	}

	dupRes, dupBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/inspections", map[string]any{
		"kind":    "daily",
		"results": vehicleResults(),
	}, nil)
	if dupRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected duplicate conflict, got %d %s", dupRes.StatusCode, string(dupBody))
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/inspections", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(listBody))
	}
	var page paginatedInspections
	if err := json.Unmarshal(listBody, &page); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one inspection, got %d", len(page.Items))
	}
}

func TestMissingRequiredItemsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	a := createAsset(t, srv, "Truck 8")

	results := vehicleResults()
	delete(results, "veh.brakes")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/inspections", map[string]any{
		"kind":    "daily",
		"results": results,
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
}

func TestComplianceEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	a := createAsset(t, srv, "Truck 9")

	docRes, docBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/documents", map[string]any{
		"type":        "insurance",
		"expiry_date": "2024-01-04",
	}, nil)
	if docRes.StatusCode != http.StatusCreated {
		t.Fatalf("add document status %d: %s", docRes.StatusCode, string(docBody))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/compliance", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("compliance status %d: %s", res.StatusCode, string(data))
	}
	var metric ComplianceResponse
	if err := json.Unmarshal(data, &metric); err != nil {
		t.Fatalf("unmarshal metric: %v", err)
	}
	if metric.ExpiryStatus != "urgent" {
		t.Fatalf("expiry status: got %s", metric.ExpiryStatus)
	}
	if metric.DocumentScore != 40 {
		t.Fatalf("document score: got %v", metric.DocumentScore)
	}
	if metric.NextDueDate == nil || *metric.NextDueDate != "2024-01-04" {
		t.Fatalf("next due date: got %v", metric.NextDueDate)
	}
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/fleets", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestViewerCannotRegisterAssets(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/fleets/fleet-1/assets", map[string]any{
		"name":     "Forbidden rig",
		"category": "equipment",
	}, map[string]string{"X-Actor-Id": "reader"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
}

func TestInvalidTransitionConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	a := createAsset(t, srv, "Truck 10")

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/status", map[string]any{
		"status": "decommissioned",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decommission status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/fleets/fleet-1/assets/"+a.ID+"/status", map[string]any{
		"status": "active",
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
}
