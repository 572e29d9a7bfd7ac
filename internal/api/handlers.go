package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetopt/internal/capacity"
	"fleetopt/internal/config"
	"fleetopt/internal/graph"
	"fleetopt/internal/maintenance"
	"fleetopt/internal/metrics"
	"fleetopt/internal/model"
	"fleetopt/internal/opt"
	"fleetopt/internal/pareto"
	"fleetopt/internal/store"
)

// SnapshotHandler handles PUT/GET /v1/snapshot
func (s *Server) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodPut, http.MethodPost:
		var snap model.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		// reject snapshots the optimizers could never consume
		if _, err := model.DecodeAssets(snap.Assets); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid snapshot", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.PutSnapshot(ctx, tenant, snap); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save snapshot failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case http.MethodGet:
		snap, err := s.Store.GetSnapshot(ctx, tenant)
		if err != nil {
			s.writeError(w, r, "Get snapshot failed", err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RouteSearchHandler handles POST /v1/route/search
func (s *Server) RouteSearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req RouteSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)
	g, err := s.buildGraph(ctx, tenant, req.Ports, req.Lanes)
	if err != nil {
		s.writeError(w, r, "Route search failed", err)
		return
	}
	prof, err := weightProfile(req.Asset, req.FuelPrice, req.EmissionFactor)
	if err != nil {
		s.writeError(w, r, "Route search failed", err)
		return
	}
	crit := graph.Criterion(req.Criterion)
	if req.Criterion == "" {
		crit = graph.ByDistance
	}
	started := time.Now()
	path, err := g.Search(graph.Query{
		Origin:      req.Origin,
		Destination: req.Destination,
		Via:         req.Via,
		Criterion:   crit,
		Profile:     prof,
		Weights:     req.Weights,
	})
	if err != nil {
		s.writeError(w, r, "Route search failed", err)
		return
	}
	runID := s.finishRun(ctx, model.RunRecord{
		TenantID:   tenant,
		Component:  "route_search",
		Objective:  string(crit),
		Score:      path.Weight,
		Confidence: path.Confidence,
		StartedAt:  started,
		Detail:     map[string]any{"found": path.Found, "waypoints": len(path.Waypoints)},
	}, model.TermExhaustive)
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "path": path})
}

// RouteTourHandler handles POST /v1/route/tour
func (s *Server) RouteTourHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req RouteTourRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)
	g, err := s.buildGraph(ctx, tenant, req.Ports, req.Lanes)
	if err != nil {
		s.writeError(w, r, "Tour planning failed", err)
		return
	}
	prof, err := weightProfile(req.Asset, req.FuelPrice, req.EmissionFactor)
	if err != nil {
		s.writeError(w, r, "Tour planning failed", err)
		return
	}
	crit := graph.Criterion(req.Criterion)
	if req.Criterion == "" {
		crit = graph.ByDistance
	}
	started := time.Now()
	tour, err := g.PlanTour(req.Start, req.Stops, crit, prof)
	if err != nil {
		s.writeError(w, r, "Tour planning failed", err)
		return
	}
	runID := s.finishRun(ctx, model.RunRecord{
		TenantID:   tenant,
		Component:  "route_tour",
		Objective:  string(crit),
		Score:      tour.Weight,
		Confidence: tour.Confidence,
		StartedAt:  started,
		Detail:     map[string]any{"found": tour.Found, "stops": len(req.Stops), "unreachable": len(tour.Unreachable)},
	}, model.TermConverged)
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "tour": tour})
}

// AssignmentsHandler handles POST /v1/assignments/optimize
func (s *Server) AssignmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req AssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateAssignmentRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)
	assets, targets, err := s.fleet(ctx, tenant, req.Assets, req.Targets)
	if err != nil {
		s.writeError(w, r, "Assignment optimization failed", err)
		return
	}

	runID := uuid.New().String()
	s.Broker.Publish(runID, ProgressEvent{Type: "run.started", Data: map[string]any{
		"component": "assignment", "assets": len(assets), "targets": len(targets),
	}})
	started := time.Now()
	res, err := opt.Solve(ctx, opt.Problem{
		Assets:             assets,
		Targets:            targets,
		Objective:          opt.Objective(req.Objective),
		Weights:            objectiveWeights(req.Weights),
		AllowSharedTargets: req.AllowSharedTargets,
		Algorithm:          req.Algorithm,
		Seed:               req.Seed,
		TimeBudget:         time.Duration(req.TimeBudgetMs) * time.Millisecond,
		Tuning:             s.tenantTuning(ctx, tenant),
	})
	if err != nil {
		s.Broker.Publish(runID, ProgressEvent{Type: "run.failed", Data: map[string]any{"error": err.Error()}})
		s.writeError(w, r, "Assignment optimization failed", err)
		return
	}
	opt.RecordMetrics(tenant, "assignment", res.Algorithm, res.Metrics)
	metrics.OptimizerIterations.WithLabelValues("assignment", res.Algorithm).Observe(float64(res.Metrics.Generations))
	objective := req.Objective
	if objective == "" {
		objective = string(opt.MaxRevenue)
	}
	s.finishRunAs(ctx, runID, model.RunRecord{
		TenantID:   tenant,
		Component:  "assignment",
		Algorithm:  res.Algorithm,
		Objective:  objective,
		Score:      res.Fitness,
		Confidence: res.Confidence,
		StartedAt:  started,
		Detail: map[string]any{
			"assigned":    len(res.Assignments),
			"unassigned":  len(res.Unassigned),
			"generations": res.Metrics.Generations,
			"evaluations": res.Metrics.Evaluations,
		},
	}, res.Termination)
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "result": res})
}

// CapacityHandler handles POST /v1/capacity/allocate
func (s *Server) CapacityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req CapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)
	assets, err := s.fleetAssets(ctx, tenant, req.Assets)
	if err != nil {
		s.writeError(w, r, "Capacity allocation failed", err)
		return
	}
	jobs := req.Jobs
	if len(jobs) == 0 {
		if snap, err := s.Store.GetSnapshot(ctx, tenant); err == nil {
			jobs = snap.Jobs
		}
	}
	started := time.Now()
	res, err := capacity.Allocate(assets, jobs)
	if err != nil {
		s.writeError(w, r, "Capacity allocation failed", err)
		return
	}
	runID := s.finishRun(ctx, model.RunRecord{
		TenantID:  tenant,
		Component: "capacity",
		Score:     res.TotalValue,
		StartedAt: started,
		Detail:    map[string]any{"allocated": res.JobsAllocated, "rejected": len(res.Rejected)},
	}, model.TermConverged)
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "result": res})
}

// MaintenanceHandler handles POST /v1/maintenance/schedule
func (s *Server) MaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateMaintenanceRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid schedule request", err.Error(), r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)
	reqs := req.Requirements
	limits := req.ResourceLimits
	if len(reqs) == 0 {
		if snap, err := s.Store.GetSnapshot(ctx, tenant); err == nil {
			reqs = snap.Requirements
			if limits == nil {
				limits = snap.ResourceLimits
			}
		}
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	slot := time.Duration(req.SlotMinutes) * time.Minute
	if req.SlotMinutes == 0 {
		slot = time.Duration(s.Config.Scheduler.SlotMinutes) * time.Minute
	}
	started := time.Now()
	res, err := maintenance.Schedule(now, reqs, limits, slot)
	if err != nil {
		s.writeError(w, r, "Maintenance scheduling failed", err)
		return
	}
	runID := s.finishRun(ctx, model.RunRecord{
		TenantID:  tenant,
		Component: "maintenance",
		Score:     float64(len(res.Tasks)),
		StartedAt: started,
		Detail:    map[string]any{"scheduled": len(res.Tasks), "unscheduled": len(res.Unscheduled)},
	}, model.TermConverged)
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "result": res})
}

// ParetoHandler handles POST /v1/pareto/optimize
func (s *Server) ParetoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
		return
	}
	var req ParetoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateParetoRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid pareto request", err.Error(), r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)
	assets, targets, err := s.fleet(ctx, tenant, req.Assets, req.Targets)
	if err != nil {
		s.writeError(w, r, "Pareto optimization failed", err)
		return
	}
	objectives := make([]opt.Objective, len(req.Objectives))
	for i, o := range req.Objectives {
		objectives[i] = opt.Objective(o)
	}
	runID := uuid.New().String()
	s.Broker.Publish(runID, ProgressEvent{Type: "run.started", Data: map[string]any{
		"component": "pareto", "objectives": req.Objectives,
	}})
	started := time.Now()
	res, err := pareto.Optimize(ctx, pareto.Problem{
		Assets:     assets,
		Targets:    targets,
		Objectives: objectives,
		Preference: objectiveWeights(req.Preference),
		Seed:       req.Seed,
		TimeBudget: time.Duration(req.TimeBudgetMs) * time.Millisecond,
		Tuning:     s.tenantTuning(ctx, tenant),
	})
	if err != nil {
		s.Broker.Publish(runID, ProgressEvent{Type: "run.failed", Data: map[string]any{"error": err.Error()}})
		s.writeError(w, r, "Pareto optimization failed", err)
		return
	}
	metrics.OptimizerIterations.WithLabelValues("pareto", "nsga2").Observe(float64(res.Generations))
	s.finishRunAs(ctx, runID, model.RunRecord{
		TenantID:  tenant,
		Component: "pareto",
		Algorithm: "nsga2",
		Objective: strings.Join(req.Objectives, ","),
		Score:     float64(len(res.Front)),
		StartedAt: started,
		Detail: map[string]any{
			"frontSize":   len(res.Front),
			"recommended": res.Recommended,
			"generations": res.Generations,
		},
	}, res.Termination)
	writeJSON(w, http.StatusOK, map[string]any{"runId": runID, "result": res})
}

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, tenant := s.withTenant(r)
	component := r.URL.Query().Get("component")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRuns(ctx, tenant, component, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id} and GET /v1/runs/{id}/progress
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if id, ok := strings.CutSuffix(rest, "/progress"); ok {
		s.progressWS(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, tenant := s.withTenant(r)
	rec, err := s.Store.GetRun(ctx, tenant, rest)
	if err != nil {
		s.writeError(w, r, "Get run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// OptimizerConfigHandler returns effective optimizer configuration
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, tenant := s.withTenant(r)
	tun := s.tenantTuning(ctx, tenant)
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": tun,
		"metrics":  opt.GetMetrics(tenant, "assignment"),
	})
}

// AdminOptimizerConfigHandler gets/sets the tenant optimizer config overlay
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	ctx, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodGet:
		cfg, _ := s.Store.GetOptimizerConfig(ctx, tenant)
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(ctx, tenant, body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, _, err := s.Store.ListRuns(ctx, "t_readyz", "", "", 1); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// buildGraph uses inline ports/lanes when given, the stored snapshot
// otherwise.
func (s *Server) buildGraph(ctx context.Context, tenant string, ports []model.Port, lanes []model.Lane) (*graph.Graph, error) {
	if len(ports) == 0 {
		snap, err := s.Store.GetSnapshot(ctx, tenant)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: no ports given and no snapshot stored", model.ErrInvalidInput)
			}
			return nil, err
		}
		ports, lanes = snap.Ports, snap.Lanes
	}
	return graph.New(ports, lanes)
}

// fleet resolves assets/targets from the request or the stored snapshot.
func (s *Server) fleet(ctx context.Context, tenant string, specs []model.AssetSpec, targets []model.Target) ([]model.Asset, []model.Target, error) {
	assets, err := s.fleetAssets(ctx, tenant, specs)
	if err != nil {
		return nil, nil, err
	}
	if len(targets) == 0 {
		if snap, err := s.Store.GetSnapshot(ctx, tenant); err == nil {
			targets = snap.Targets
		}
	}
	return assets, targets, nil
}

func (s *Server) fleetAssets(ctx context.Context, tenant string, specs []model.AssetSpec) ([]model.Asset, error) {
	if len(specs) == 0 {
		snap, err := s.Store.GetSnapshot(ctx, tenant)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: no assets given and no snapshot stored", model.ErrInvalidInput)
			}
			return nil, err
		}
		specs = snap.Assets
	}
	return model.DecodeAssets(specs)
}

func weightProfile(spec *model.AssetSpec, fuelPrice, emissionFactor float64) (graph.WeightProfile, error) {
	if spec == nil {
		return graph.WeightProfile{FuelPrice: fuelPrice, EmissionFactor: emissionFactor}, nil
	}
	a, err := spec.Asset()
	if err != nil {
		return graph.WeightProfile{}, err
	}
	return graph.ProfileFor(a.Profile, fuelPrice, emissionFactor), nil
}

// tenantTuning overlays the tenant's stored optimizer config on the
// service defaults.
func (s *Server) tenantTuning(ctx context.Context, tenant string) config.OptimizerConfig {
	tun := s.Config.Optimizer
	if tun.PopulationSize == 0 {
		tun = config.Default().Optimizer
	}
	cfg, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil || len(cfg) == 0 {
		return tun
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return tun
	}
	// keys match field names case-insensitively, so the stored overlay can
	// use the same camelCase keys the YAML config does
	_ = json.Unmarshal(raw, &tun)
	return tun
}

// finishRun persists a run record, bumps the prometheus counters, and
// publishes the terminal progress event.
func (s *Server) finishRun(ctx context.Context, rec model.RunRecord, termination string) string {
	return s.finishRunAs(ctx, uuid.New().String(), rec, termination)
}

func (s *Server) finishRunAs(ctx context.Context, runID string, rec model.RunRecord, termination string) string {
	rec.ID = runID
	rec.DurationMs = int(time.Since(rec.StartedAt) / time.Millisecond)
	if _, err := s.Store.SaveRun(ctx, rec); err != nil {
		// a lost trace must not fail the request
		log.Printf("save run %s: %v", runID, err)
	}
	metrics.OptimizerRuns.WithLabelValues(rec.Component, rec.Algorithm, termination).Inc()
	metrics.OptimizerDuration.WithLabelValues(rec.Component, rec.Algorithm).
		Observe(float64(rec.DurationMs) / 1000)
	s.Broker.Publish(runID, ProgressEvent{Type: "run.finished", Data: map[string]any{
		"component":   rec.Component,
		"score":       rec.Score,
		"confidence":  rec.Confidence,
		"termination": termination,
		"durationMs":  rec.DurationMs,
	}})
	return runID
}
