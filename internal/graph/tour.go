package graph

import (
	"fmt"
	"math"

	"fleetopt/internal/model"
)

// Tour is the result of the multi-stop tour mode: a constrained visiting
// order over many ports instead of a fixed origin/destination pair.
type Tour struct {
	Found         bool     `json:"found"`
	Order         []string `json:"order,omitempty"`     // stop visiting order, start first
	Waypoints     []string `json:"waypoints,omitempty"` // fully expanded path
	DistanceKm    float64  `json:"distanceKm"`
	DurationHours float64  `json:"durationHours"`
	Cost          float64  `json:"cost"`
	Emissions     float64  `json:"emissions"`
	Weight        float64  `json:"weight"`
	Unreachable   []string `json:"unreachable,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// PlanTour builds a tour over the given stops starting at start:
// nearest-neighbor construction on shortest-path weights, then 2-opt
// improvement. Stops that cannot be reached in the constructed order are
// reported in Unreachable, not fatal. The balanced criterion is not a tour
// criterion; callers pick one metric for the leg matrix.
func (g *Graph) PlanTour(start string, stops []string, crit Criterion, prof WeightProfile) (Tour, error) {
	prof = prof.withDefaults()
	if crit == ByBalanced || !ValidCriterion(crit) {
		return Tour{}, fmt.Errorf("%w: tour criterion must be one of distance,time,cost,emissions", model.ErrInvalidInput)
	}
	if _, ok := g.index[start]; !ok {
		return Tour{}, fmt.Errorf("%w: unknown start port %q", model.ErrInvalidInput, start)
	}
	if len(stops) == 0 {
		return Tour{}, fmt.Errorf("%w: no stops", model.ErrInvalidInput)
	}
	nodes := append([]string{start}, stops...)
	for _, s := range stops {
		if _, ok := g.index[s]; !ok {
			return Tour{}, fmt.Errorf("%w: unknown stop %q", model.ErrInvalidInput, s)
		}
	}

	// pairwise shortest paths between tour nodes
	n := len(nodes)
	legs := make([][]Path, n)
	for i := range legs {
		legs[i] = make([]Path, n)
		for j := range legs[i] {
			if i == j {
				continue
			}
			p, err := g.Search(Query{Origin: nodes[i], Destination: nodes[j], Criterion: crit, Profile: prof})
			if err != nil {
				return Tour{}, err
			}
			legs[i][j] = p
		}
	}

	order, unreachable := nearestNeighborOrder(nodes, legs)
	if len(order) > 2 {
		order = improveOrder2Opt(order, legs, 25)
	}

	out := Tour{Found: len(order) > 1, Confidence: 0.7, Unreachable: unreachable}
	if len(unreachable) == 0 {
		out.Confidence = 0.8
	}
	for _, i := range order {
		out.Order = append(out.Order, nodes[i])
	}
	for k := 1; k < len(order); k++ {
		p := legs[order[k-1]][order[k]]
		out.DistanceKm += p.DistanceKm
		out.DurationHours += p.DurationHours
		out.Cost += p.Cost
		out.Emissions += p.Emissions
		out.Weight += p.Weight
		if k == 1 {
			out.Waypoints = append(out.Waypoints, p.Waypoints...)
		} else {
			out.Waypoints = append(out.Waypoints, p.Waypoints[1:]...)
		}
	}
	return out, nil
}

// nearestNeighborOrder greedily extends the tour with the cheapest reachable
// unvisited stop. Equal weights break toward the lower node index so the
// construction is deterministic.
func nearestNeighborOrder(nodes []string, legs [][]Path) (order []int, unreachable []string) {
	n := len(nodes)
	visited := make([]bool, n)
	visited[0] = true
	order = []int{0}
	cur := 0
	for len(order) < n {
		best := -1
		bestW := math.Inf(1)
		for j := 1; j < n; j++ {
			if visited[j] || !legs[cur][j].Found {
				continue
			}
			if w := legs[cur][j].Weight; w < bestW {
				bestW = w
				best = j
			}
		}
		if best == -1 {
			break
		}
		visited[best] = true
		order = append(order, best)
		cur = best
	}
	for j := 1; j < n; j++ {
		if !visited[j] {
			unreachable = append(unreachable, nodes[j])
		}
	}
	return order, unreachable
}

// improveOrder2Opt reverses tour segments while total leg weight keeps
// dropping. The start stays fixed at position 0.
func improveOrder2Opt(order []int, legs [][]Path, iterations int) []int {
	best := append([]int(nil), order...)
	bestW, ok := orderWeight(best, legs)
	if !ok {
		return best
	}
	n := len(best)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				w, feasible := orderWeight(cand, legs)
				if feasible && w+1e-9 < bestW {
					best = cand
					bestW = w
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

func orderWeight(order []int, legs [][]Path) (float64, bool) {
	total := 0.0
	for i := 1; i < len(order); i++ {
		p := legs[order[i-1]][order[i]]
		if !p.Found {
			return 0, false
		}
		total += p.Weight
	}
	return total, true
}
