// Package graph implements the port network and the route search engine:
// criterion-parameterized shortest paths and a multi-stop tour mode. All
// functions are pure over an immutable Graph built from a snapshot.
package graph

import (
	"fmt"
	"math"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
)

type Criterion string

const (
	ByDistance  Criterion = "distance"
	ByTime      Criterion = "time"
	ByCost      Criterion = "cost"
	ByEmissions Criterion = "emissions"
	ByBalanced  Criterion = "balanced"
)

// ValidCriterion reports whether c names a supported search criterion.
func ValidCriterion(c Criterion) bool {
	switch c {
	case ByDistance, ByTime, ByCost, ByEmissions, ByBalanced:
		return true
	}
	return false
}

// WeightProfile carries the asset- and market-dependent inputs of edge
// weight computation. Fuel price and emission factor come from the economic
// engine as part of the snapshot.
type WeightProfile struct {
	SpeedKph       float64 `json:"speedKph"`
	CostPerKm      float64 `json:"costPerKm"`
	FuelPerKm      float64 `json:"fuelPerKm"`
	FuelPrice      float64 `json:"fuelPrice"`
	EmissionFactor float64 `json:"emissionFactor"` // kg CO2 per liter burned
}

// ProfileFor derives a weight profile from an asset profile.
func ProfileFor(p model.Profile, fuelPrice, emissionFactor float64) WeightProfile {
	return WeightProfile{
		SpeedKph:       p.SpeedKph(),
		CostPerKm:      p.CostPerKm(),
		FuelPerKm:      p.FuelPerKm(),
		FuelPrice:      fuelPrice,
		EmissionFactor: emissionFactor,
	}
}

func (w WeightProfile) withDefaults() WeightProfile {
	if w.SpeedKph <= 0 {
		w.SpeedKph = 30
	}
	if w.FuelPrice <= 0 {
		w.FuelPrice = 1
	}
	if w.EmissionFactor <= 0 {
		w.EmissionFactor = 2.6
	}
	return w
}

type edge struct {
	to     int
	distKm float64
}

// Graph is an immutable port network. Edges store base distance only;
// effective weights are computed per query from criterion and profile.
type Graph struct {
	ports []model.Port
	index map[string]int
	adj   [][]edge
}

func New(ports []model.Port, lanes []model.Lane) (*Graph, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("%w: no ports", model.ErrInvalidInput)
	}
	g := &Graph{ports: ports, index: make(map[string]int, len(ports)), adj: make([][]edge, len(ports))}
	for i, p := range ports {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: port[%d] has empty id", model.ErrInvalidInput, i)
		}
		if _, dup := g.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate port id %q", model.ErrInvalidInput, p.ID)
		}
		g.index[p.ID] = i
	}
	for _, l := range lanes {
		from, ok := g.index[l.From]
		if !ok {
			return nil, fmt.Errorf("%w: lane from unknown port %q", model.ErrInvalidInput, l.From)
		}
		to, ok := g.index[l.To]
		if !ok {
			return nil, fmt.Errorf("%w: lane to unknown port %q", model.ErrInvalidInput, l.To)
		}
		d := l.DistanceKm
		if d <= 0 {
			d = haversineKm(g.ports[from].Location, g.ports[to].Location)
		}
		g.adj[from] = append(g.adj[from], edge{to: to, distKm: d})
	}
	return g, nil
}

// Len returns the number of ports.
func (g *Graph) Len() int { return len(g.ports) }

// legMetrics are the per-edge totals every criterion is derived from.
type legMetrics struct {
	distKm    float64
	hours     float64
	cost      float64
	emissions float64
}

// leg resolves the shortest lane between from and to. Every per-edge metric
// grows with distance, so relaxation settles on the same lane under any
// criterion even when parallel lanes exist.
func (g *Graph) leg(from, to int, w WeightProfile) legMetrics {
	d := math.Inf(1)
	for _, e := range g.adj[from] {
		if e.to == to && e.distKm < d {
			d = e.distKm
		}
	}
	return g.legDist(from, to, d, w)
}

func (g *Graph) legDist(_, to int, distKm float64, w WeightProfile) legMetrics {
	dst := g.ports[to]
	slow := mulOrOne(dst.Congestion) * mulOrOne(dst.WeatherDelay)
	hours := distKm / w.SpeedKph * slow
	fuel := distKm * w.FuelPerKm
	cost := (distKm*w.CostPerKm + fuel*w.FuelPrice + dst.HandlingFee) * (1 + dst.PoliticalRisk)
	return legMetrics{
		distKm:    distKm,
		hours:     hours,
		cost:      cost,
		emissions: fuel * w.EmissionFactor,
	}
}

func (m legMetrics) weight(c Criterion) float64 {
	switch c {
	case ByTime:
		return m.hours
	case ByCost:
		return m.cost
	case ByEmissions:
		return m.emissions
	default:
		return m.distKm
	}
}

func mulOrOne(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

func haversineKm(a, b model.GeoPoint) float64 {
	const R = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

var defaultBalanced = config.Default().Balanced
