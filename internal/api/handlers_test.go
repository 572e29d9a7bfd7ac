package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fleetopt/internal/config"
	"fleetopt/internal/graph"
	"fleetopt/internal/model"
	"fleetopt/internal/opt"
	"fleetopt/internal/store"
)

func testServer() *Server {
	return &Server{Store: store.NewMemory(), Broker: NewBroker(), Config: config.Default()}
}

func doJSON(t *testing.T, h http.HandlerFunc, method, path string, body any, role string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rr.Body.String())
	}
	return out
}

func testPorts() []model.Port {
	return []model.Port{{ID: "sfo"}, {ID: "hnl"}, {ID: "nrt"}}
}

func testLanes() []model.Lane {
	return []model.Lane{
		{From: "sfo", To: "hnl", DistanceKm: 3800},
		{From: "hnl", To: "nrt", DistanceKm: 6200},
		{From: "sfo", To: "nrt", DistanceKm: 8300},
	}
}

func TestRouteSearchReturnsShortestPath(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.RouteSearchHandler, http.MethodPost, "/v1/route/search", RouteSearchRequest{
		Ports: testPorts(), Lanes: testLanes(),
		Origin: "sfo", Destination: "nrt", Criterion: "distance",
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeBody[struct {
		RunID string     `json:"runId"`
		Path  graph.Path `json:"path"`
	}](t, rr)
	if out.RunID == "" {
		t.Fatal("missing runId")
	}
	if !out.Path.Found || out.Path.DistanceKm != 8300 {
		t.Fatalf("path: %+v", out.Path)
	}
}

func TestRouteSearchRejectsUnknownCriterion(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.RouteSearchHandler, http.MethodPost, "/v1/route/search", RouteSearchRequest{
		Ports: testPorts(), Lanes: testLanes(),
		Origin: "sfo", Destination: "nrt", Criterion: "vibes",
	}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	p := decodeBody[Problem](t, rr)
	if p.Status != http.StatusBadRequest || p.Title == "" {
		t.Fatalf("problem body: %+v", p)
	}
}

func TestRouteSearchFallsBackToSnapshot(t *testing.T) {
	s := testServer()
	put := doJSON(t, s.SnapshotHandler, http.MethodPut, "/v1/snapshot", model.Snapshot{
		Ports: testPorts(), Lanes: testLanes(),
	}, "")
	if put.Code != http.StatusOK {
		t.Fatalf("put snapshot: %d %s", put.Code, put.Body.String())
	}
	rr := doJSON(t, s.RouteSearchHandler, http.MethodPost, "/v1/route/search", RouteSearchRequest{
		Origin: "sfo", Destination: "hnl",
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeBody[struct {
		Path graph.Path `json:"path"`
	}](t, rr)
	if !out.Path.Found || out.Path.DistanceKm != 3800 {
		t.Fatalf("path: %+v", out.Path)
	}
}

func TestRouteSearchWithoutDataIsBadRequest(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.RouteSearchHandler, http.MethodPost, "/v1/route/search", RouteSearchRequest{
		Origin: "sfo", Destination: "hnl",
	}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAssignmentsOptimizeTwoShipsThreeRoutes(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.AssignmentsHandler, http.MethodPost, "/v1/assignments/optimize", AssignmentRequest{
		Assets: []model.AssetSpec{
			{ID: "shipA", Kind: model.KindShip, Capacity: model.Capacity{WeightKg: 100}, SpeedKph: 30},
			{ID: "shipB", Kind: model.KindShip, Capacity: model.Capacity{WeightKg: 500}, SpeedKph: 25},
		},
		Targets: []model.Target{
			{ID: "route1", Kind: model.TargetRoute, Revenue: 1000, DistanceKm: 200},
			{ID: "route2", Kind: model.TargetRoute, Revenue: 1500, DistanceKm: 300},
			{ID: "route3", Kind: model.TargetRoute, Revenue: 2000, DistanceKm: 400, Required: model.Capacity{WeightKg: 400}},
		},
		Objective: "revenue",
		Seed:      42,
	}, "planner")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeBody[struct {
		RunID  string     `json:"runId"`
		Result opt.Result `json:"result"`
	}](t, rr)
	if out.Result.Fitness != 3500 {
		t.Fatalf("fitness: got %v want 3500", out.Result.Fitness)
	}
	got := map[string]string{}
	for _, a := range out.Result.Assignments {
		got[a.AssetID] = a.TargetID
	}
	if got["shipA"] != "route2" || got["shipB"] != "route3" {
		t.Fatalf("assignments: %v", got)
	}

	// the run trace is queryable afterwards
	runs := doJSON(t, s.RunsHandler, http.MethodGet, "/v1/runs?component=assignment", nil, "")
	if runs.Code != http.StatusOK {
		t.Fatalf("list runs: %d", runs.Code)
	}
	list := decodeBody[struct {
		Items []model.RunRecord `json:"items"`
	}](t, runs)
	if len(list.Items) != 1 || list.Items[0].ID != out.RunID {
		t.Fatalf("run trace: %+v", list.Items)
	}
}

func TestAssignmentsOptimizeRequiresPlannerRole(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.AssignmentsHandler, http.MethodPost, "/v1/assignments/optimize", AssignmentRequest{}, "viewer")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAssignmentsOptimizeRejectsBadAlgorithm(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.AssignmentsHandler, http.MethodPost, "/v1/assignments/optimize", AssignmentRequest{
		Assets:    []model.AssetSpec{{ID: "s1", Kind: model.KindShip}},
		Targets:   []model.Target{{ID: "r1"}},
		Algorithm: "gradient-descent",
	}, "planner")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCapacityAllocateWarehouseScenario(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.CapacityHandler, http.MethodPost, "/v1/capacity/allocate", CapacityRequest{
		Assets: []model.AssetSpec{{ID: "wh1", Kind: model.KindWarehouse, Capacity: model.Capacity{VolumeM3: 1000}}},
		Jobs: []model.CargoJob{
			{ID: "j1", VolumeM3: 400, Value: 100},
			{ID: "j2", VolumeM3: 400, Value: 100},
			{ID: "j3", VolumeM3: 400, Value: 100},
		},
	}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeBody[struct {
		Result struct {
			Allocations []model.CapacityAllocation `json:"allocations"`
			Rejected    []string                   `json:"rejected"`
		} `json:"result"`
	}](t, rr)
	if len(out.Result.Allocations) != 2 || len(out.Result.Rejected) != 1 {
		t.Fatalf("allocation: %+v", out.Result)
	}
}

func TestMaintenanceScheduleEmptyIsBadRequest(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.MaintenanceHandler, http.MethodPost, "/v1/maintenance/schedule", MaintenanceRequest{}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestParetoOptimizeEndpoint(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.ParetoHandler, http.MethodPost, "/v1/pareto/optimize", ParetoRequest{
		Assets: []model.AssetSpec{
			{ID: "s1", Kind: model.KindShip, Capacity: model.Capacity{WeightKg: 500}, SpeedKph: 20, CostPerKm: 2},
			{ID: "s2", Kind: model.KindShip, Capacity: model.Capacity{WeightKg: 500}, SpeedKph: 20, CostPerKm: 4},
		},
		Targets: []model.Target{
			{ID: "r1", Revenue: 1000, DistanceKm: 500, Risk: 0.1},
			{ID: "r2", Revenue: 3000, DistanceKm: 2000, Risk: 0.6},
			{ID: "r3", Revenue: 500, DistanceKm: 100, Risk: 0},
		},
		Objectives: []string{"revenue", "cost"},
		Seed:       7,
	}, "admin")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeBody[struct {
		RunID  string `json:"runId"`
		Result struct {
			Front       []json.RawMessage `json:"front"`
			Recommended int               `json:"recommended"`
		} `json:"result"`
	}](t, rr)
	if len(out.Result.Front) == 0 {
		t.Fatalf("empty front: %s", rr.Body.String())
	}
	if out.Result.Recommended < 0 || out.Result.Recommended >= len(out.Result.Front) {
		t.Fatalf("recommended out of range: %d", out.Result.Recommended)
	}
}

func TestParetoOptimizeRejectsSingleObjective(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.ParetoHandler, http.MethodPost, "/v1/pareto/optimize", ParetoRequest{
		Assets:     []model.AssetSpec{{ID: "s1", Kind: model.KindShip}},
		Targets:    []model.Target{{ID: "r1"}},
		Objectives: []string{"revenue"},
	}, "admin")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminOptimizerConfigRoundTrip(t *testing.T) {
	s := testServer()
	put := doJSON(t, s.AdminOptimizerConfigHandler, http.MethodPut, "/v1/admin/optimizer/config", map[string]any{
		"config": map[string]any{"populationSize": 30, "generations": 50},
	}, "admin")
	if put.Code != http.StatusOK {
		t.Fatalf("put config: %d %s", put.Code, put.Body.String())
	}
	get := doJSON(t, s.OptimizerConfigHandler, http.MethodGet, "/v1/optimizer/config", nil, "")
	if get.Code != http.StatusOK {
		t.Fatalf("get config: %d", get.Code)
	}
	out := decodeBody[struct {
		Defaults config.OptimizerConfig `json:"defaults"`
	}](t, get)
	if out.Defaults.PopulationSize != 30 || out.Defaults.Generations != 50 {
		t.Fatalf("overlay not applied: %+v", out.Defaults)
	}
	// untouched knobs keep their defaults
	if out.Defaults.ExhaustiveLimit != config.Default().Optimizer.ExhaustiveLimit {
		t.Fatalf("defaults clobbered: %+v", out.Defaults)
	}
}

func TestAdminOptimizerConfigRequiresAdmin(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.AdminOptimizerConfigHandler, http.MethodGet, "/v1/admin/optimizer/config", nil, "planner")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestSnapshotRejectsUnknownAssetKind(t *testing.T) {
	s := testServer()
	rr := doJSON(t, s.SnapshotHandler, http.MethodPut, "/v1/snapshot", model.Snapshot{
		Assets: []model.AssetSpec{{ID: "x1", Kind: "zeppelin"}},
	}, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetRunUnknownIDIsNotFound(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	rr := httptest.NewRecorder()
	s.RunByIDHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	s := testServer()

	rr := doJSON(t, s.HealthHandler, http.MethodGet, "/healthz", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, s.ReadyHandler, http.MethodGet, "/readyz", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status %d: %s", rr.Code, rr.Body.String())
	}
	out := decodeBody[map[string]string](t, rr)
	if out["status"] != "ready" {
		t.Fatalf("readyz body: %v", out)
	}
}
