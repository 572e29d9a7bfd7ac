package model

import (
	"errors"
	"time"
)

// ErrInvalidInput marks structurally bad optimizer inputs (empty asset or
// target sets, unknown node ids). It aborts a run before any computation.
var ErrInvalidInput = errors.New("invalid input")

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Port is a network location (sea port, airport, or warehouse site).
// Congestion and WeatherDelay are speed multipliers >= 1, PoliticalRisk is
// in [0,1]. All three are read once into a snapshot and never re-fetched
// during a run.
type Port struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Location      GeoPoint `json:"location"`
	Congestion    float64  `json:"congestion,omitempty"`
	WeatherDelay  float64  `json:"weatherDelay,omitempty"`
	PoliticalRisk float64  `json:"politicalRisk,omitempty"`
	HandlingFee   float64  `json:"handlingFee,omitempty"`
}

// Lane is a directed connection between two ports. Effective edge weights
// are derived per query from the lane distance, the asset profile, and the
// search criterion.
type Lane struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	DistanceKm float64 `json:"distanceKm"`
}

type Capacity struct {
	WeightKg float64 `json:"weightKg,omitempty"`
	VolumeM3 float64 `json:"volumeM3,omitempty"`
	Units    int     `json:"units,omitempty"`
}

type AssetKind string

const (
	KindShip      AssetKind = "ship"
	KindAircraft  AssetKind = "aircraft"
	KindWarehouse AssetKind = "warehouse"
)

// Profile is the uniform capability surface over the ship/aircraft/warehouse
// variants. Optimizer components consume only this interface.
type Profile interface {
	Kind() AssetKind
	Capacity() Capacity
	SpeedKph() float64
	CostPerKm() float64
	FuelPerKm() float64
	Reliability() float64
}

type ShipProfile struct {
	Cap          Capacity `json:"capacity"`
	KnotsKph     float64  `json:"speedKph"`
	OpCostPerKm  float64  `json:"costPerKm"`
	FuelLPerKm   float64  `json:"fuelPerKm"`
	ConditionPct float64  `json:"reliability"`
}

func (p ShipProfile) Kind() AssetKind      { return KindShip }
func (p ShipProfile) Capacity() Capacity   { return p.Cap }
func (p ShipProfile) SpeedKph() float64    { return p.KnotsKph }
func (p ShipProfile) CostPerKm() float64   { return p.OpCostPerKm }
func (p ShipProfile) FuelPerKm() float64   { return p.FuelLPerKm }
func (p ShipProfile) Reliability() float64 { return p.ConditionPct }

type AircraftProfile struct {
	Cap          Capacity `json:"capacity"`
	CruiseKph    float64  `json:"speedKph"`
	OpCostPerKm  float64  `json:"costPerKm"`
	FuelLPerKm   float64  `json:"fuelPerKm"`
	ConditionPct float64  `json:"reliability"`
}

func (p AircraftProfile) Kind() AssetKind      { return KindAircraft }
func (p AircraftProfile) Capacity() Capacity   { return p.Cap }
func (p AircraftProfile) SpeedKph() float64    { return p.CruiseKph }
func (p AircraftProfile) CostPerKm() float64   { return p.OpCostPerKm }
func (p AircraftProfile) FuelPerKm() float64   { return p.FuelLPerKm }
func (p AircraftProfile) Reliability() float64 { return p.ConditionPct }

// WarehouseProfile is a fixed asset: zero speed, per-day holding cost in
// place of a distance cost.
type WarehouseProfile struct {
	Cap          Capacity `json:"capacity"`
	HoldingCost  float64  `json:"holdingCost"`
	ConditionPct float64  `json:"reliability"`
}

func (p WarehouseProfile) Kind() AssetKind      { return KindWarehouse }
func (p WarehouseProfile) Capacity() Capacity   { return p.Cap }
func (p WarehouseProfile) SpeedKph() float64    { return 0 }
func (p WarehouseProfile) CostPerKm() float64   { return p.HoldingCost }
func (p WarehouseProfile) FuelPerKm() float64   { return 0 }
func (p WarehouseProfile) Reliability() float64 { return p.ConditionPct }

type Asset struct {
	ID      string  `json:"id"`
	Name    string  `json:"name,omitempty"`
	HomeID  string  `json:"homeId,omitempty"` // port the asset is stationed at
	Profile Profile `json:"-"`
}

type TargetKind string

const (
	TargetRoute TargetKind = "route"
	TargetCargo TargetKind = "cargo"
)

// Target is a candidate route or cargo job an asset can be matched to.
type Target struct {
	ID            string      `json:"id"`
	Kind          TargetKind  `json:"kind,omitempty"`
	Origin        string      `json:"origin,omitempty"`
	Destination   string      `json:"destination,omitempty"`
	DistanceKm    float64     `json:"distanceKm,omitempty"`
	Required      Capacity    `json:"required"`
	Revenue       float64     `json:"revenue"`
	Risk          float64     `json:"risk,omitempty"` // [0,1]
	Deadline      time.Time   `json:"deadline,omitempty"`
	EligibleKinds []AssetKind `json:"eligibleKinds,omitempty"` // empty = any
}

// Eligible reports whether an asset of kind k may serve this target.
func (t Target) Eligible(k AssetKind) bool {
	if len(t.EligibleKinds) == 0 {
		return true
	}
	for _, e := range t.EligibleKinds {
		if e == k {
			return true
		}
	}
	return false
}

// CargoJob is a discrete item for the capacity allocator.
type CargoJob struct {
	ID            string      `json:"id"`
	WeightKg      float64     `json:"weightKg"`
	VolumeM3      float64     `json:"volumeM3"`
	Value         float64     `json:"value"`
	Deadline      time.Time   `json:"deadline,omitempty"`
	EligibleKinds []AssetKind `json:"eligibleKinds,omitempty"`
}

type MaintenanceRequirement struct {
	ID        string        `json:"id"`
	AssetID   string        `json:"assetId"`
	Type      string        `json:"type"`
	Due       time.Time     `json:"due"`
	Duration  time.Duration `json:"duration"`
	Resources []string      `json:"resources,omitempty"`
	Priority  int           `json:"priority"`
}

type ScheduledMaintenanceTask struct {
	RequirementID string    `json:"requirementId"`
	AssetID       string    `json:"assetId"`
	Type          string    `json:"type"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Resources     []string  `json:"resources,omitempty"`
}

// Assignment pairs an asset with a target plus its estimated economics.
type Assignment struct {
	AssetID       string  `json:"assetId"`
	TargetID      string  `json:"targetId"`
	Revenue       float64 `json:"revenue"`
	Cost          float64 `json:"cost"`
	DurationHours float64 `json:"durationHours"`
}

type CapacityAllocation struct {
	AssetID     string  `json:"assetId"`
	JobID       string  `json:"jobId"`
	WeightKg    float64 `json:"weightKg"`
	VolumeM3    float64 `json:"volumeM3"`
	Utilization float64 `json:"utilization"`
}

// Snapshot is the immutable input of one optimization run. Built once from
// the store or the request payload before computation starts; never mutated
// afterwards.
type Snapshot struct {
	TenantID       string                   `json:"tenantId,omitempty"`
	TakenAt        time.Time                `json:"takenAt,omitempty"`
	Ports          []Port                   `json:"ports,omitempty"`
	Lanes          []Lane                   `json:"lanes,omitempty"`
	Assets         []AssetSpec              `json:"assets,omitempty"`
	Targets        []Target                 `json:"targets,omitempty"`
	Jobs           []CargoJob               `json:"jobs,omitempty"`
	Requirements   []MaintenanceRequirement `json:"requirements,omitempty"`
	ResourceLimits map[string]int           `json:"resourceLimits,omitempty"`
}

// Termination reasons carried on optimizer results. Early termination is
// flagged, never silently treated as optimal.
const (
	TermConverged     = "converged"
	TermGenerationCap = "generation_cap"
	TermTimeout       = "timeout"
	TermCancelled     = "cancelled"
	TermExhaustive    = "exhaustive"
)

// RunRecord is the stored trace of one optimization run.
type RunRecord struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenantId"`
	Component  string         `json:"component"`
	Algorithm  string         `json:"algorithm,omitempty"`
	Objective  string         `json:"objective,omitempty"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	DurationMs int            `json:"durationMs"`
	StartedAt  time.Time      `json:"startedAt"`
	Detail     map[string]any `json:"detail,omitempty"`
}
