package api

import (
	"fmt"
	"time"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
	"fleetopt/internal/opt"
)

// Request bodies for the optimization endpoints. Fleet data may be inlined
// or omitted to fall back to the tenant's stored snapshot.

type RouteSearchRequest struct {
	Ports          []model.Port             `json:"ports,omitempty"`
	Lanes          []model.Lane             `json:"lanes,omitempty"`
	Origin         string                   `json:"origin"`
	Destination    string                   `json:"destination"`
	Via            []string                 `json:"via,omitempty"`
	Criterion      string                   `json:"criterion,omitempty"`
	Asset          *model.AssetSpec         `json:"asset,omitempty"`
	FuelPrice      float64                  `json:"fuelPrice,omitempty"`
	EmissionFactor float64                  `json:"emissionFactor,omitempty"`
	Weights        *config.BalancedWeights  `json:"weights,omitempty"`
}

type RouteTourRequest struct {
	Ports          []model.Port     `json:"ports,omitempty"`
	Lanes          []model.Lane     `json:"lanes,omitempty"`
	Start          string           `json:"start"`
	Stops          []string         `json:"stops"`
	Criterion      string           `json:"criterion,omitempty"`
	Asset          *model.AssetSpec `json:"asset,omitempty"`
	FuelPrice      float64          `json:"fuelPrice,omitempty"`
	EmissionFactor float64          `json:"emissionFactor,omitempty"`
}

type AssignmentRequest struct {
	Assets             []model.AssetSpec  `json:"assets,omitempty"`
	Targets            []model.Target     `json:"targets,omitempty"`
	Objective          string             `json:"objective,omitempty"`
	Weights            map[string]float64 `json:"weights,omitempty"`
	AllowSharedTargets bool               `json:"allowSharedTargets,omitempty"`
	Algorithm          string             `json:"algorithm,omitempty"`
	Seed               int64              `json:"seed,omitempty"`
	TimeBudgetMs       int                `json:"timeBudgetMs,omitempty"`
}

type CapacityRequest struct {
	Assets []model.AssetSpec `json:"assets,omitempty"`
	Jobs   []model.CargoJob  `json:"jobs,omitempty"`
}

type MaintenanceRequest struct {
	Now            time.Time                      `json:"now,omitempty"`
	Requirements   []model.MaintenanceRequirement `json:"requirements,omitempty"`
	ResourceLimits map[string]int                 `json:"resourceLimits,omitempty"`
	SlotMinutes    int                            `json:"slotMinutes,omitempty"`
}

type ParetoRequest struct {
	Assets       []model.AssetSpec  `json:"assets,omitempty"`
	Targets      []model.Target     `json:"targets,omitempty"`
	Objectives   []string           `json:"objectives"`
	Preference   map[string]float64 `json:"preference,omitempty"`
	Seed         int64              `json:"seed,omitempty"`
	TimeBudgetMs int                `json:"timeBudgetMs,omitempty"`
}

func validateAssignmentRequest(req *AssignmentRequest) error {
	switch req.Algorithm {
	case opt.AlgoAuto, opt.AlgoExhaustive, opt.AlgoGenetic, opt.AlgoHybrid, opt.AlgoAnts:
	default:
		return fmt.Errorf("invalid algorithm: %s", req.Algorithm)
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	return validateObjectiveWeights(req.Weights)
}

func validateObjectiveWeights(weights map[string]float64) error {
	allowed := map[string]struct{}{
		string(opt.MaxRevenue): {}, string(opt.MinCost): {},
		string(opt.MaxUtilization): {}, string(opt.MinRisk): {},
	}
	for k, v := range weights {
		if v < 0 {
			return fmt.Errorf("weight %s must be >= 0", k)
		}
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("unknown weight key: %s (allowed: revenue,cost,utilization,risk)", k)
		}
	}
	return nil
}

func validateParetoRequest(req *ParetoRequest) error {
	if len(req.Objectives) < 2 {
		return fmt.Errorf("need at least two objectives")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	return validateObjectiveWeights(req.Preference)
}

func validateMaintenanceRequest(req *MaintenanceRequest) error {
	if req.SlotMinutes < 0 {
		return fmt.Errorf("slotMinutes must be >= 0")
	}
	for i, r := range req.Requirements {
		if r.ID == "" {
			return fmt.Errorf("requirements[%d] missing id", i)
		}
	}
	return nil
}

func objectiveWeights(weights map[string]float64) map[opt.Objective]float64 {
	if len(weights) == 0 {
		return nil
	}
	out := make(map[opt.Objective]float64, len(weights))
	for k, v := range weights {
		out[opt.Objective(k)] = v
	}
	return out
}
