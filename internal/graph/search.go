package graph

import (
	"container/heap"
	"fmt"
	"math"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
)

// Query describes one shortest-path search. Via, when non-empty, restricts
// the search to the origin, the destination, and the listed candidate
// intermediates.
type Query struct {
	Origin      string
	Destination string
	Via         []string
	Criterion   Criterion
	Profile     WeightProfile
	// Weights applies to the balanced criterion only; nil means the
	// configured defaults (equal weights).
	Weights *config.BalancedWeights
}

// Path is the immutable result of a search. Found=false signals
// NoPathFound; it is a typed empty result, not an error.
type Path struct {
	Found         bool     `json:"found"`
	Waypoints     []string `json:"waypoints,omitempty"`
	DistanceKm    float64  `json:"distanceKm"`
	DurationHours float64  `json:"durationHours"`
	Cost          float64  `json:"cost"`
	Emissions     float64  `json:"emissions"`
	Weight        float64  `json:"weight"`
	Confidence    float64  `json:"confidence"`
}

const weightEps = 1e-9

// Search runs a single-source shortest path under the query criterion.
// The balanced criterion runs once per sub-criterion and picks the path
// with the best weighted composite score.
func (g *Graph) Search(q Query) (Path, error) {
	q.Profile = q.Profile.withDefaults()
	if !ValidCriterion(q.Criterion) {
		return Path{}, fmt.Errorf("%w: unknown criterion %q", model.ErrInvalidInput, q.Criterion)
	}
	src, ok := g.index[q.Origin]
	if !ok {
		return Path{}, fmt.Errorf("%w: unknown origin %q", model.ErrInvalidInput, q.Origin)
	}
	dst, ok := g.index[q.Destination]
	if !ok {
		return Path{}, fmt.Errorf("%w: unknown destination %q", model.ErrInvalidInput, q.Destination)
	}
	allowed, err := g.allowedSet(src, dst, q.Via)
	if err != nil {
		return Path{}, err
	}
	if src == dst {
		return Path{Found: true, Waypoints: []string{q.Origin}, Confidence: 1}, nil
	}
	if q.Criterion == ByBalanced {
		return g.searchBalanced(src, dst, allowed, q), nil
	}
	p := g.dijkstra(src, dst, allowed, q.Criterion, q.Profile)
	if p.Found {
		p.Confidence = 1
	}
	return p, nil
}

func (g *Graph) allowedSet(src, dst int, via []string) ([]bool, error) {
	if len(via) == 0 {
		return nil, nil
	}
	allowed := make([]bool, len(g.ports))
	allowed[src] = true
	allowed[dst] = true
	for _, id := range via {
		i, ok := g.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown via port %q", model.ErrInvalidInput, id)
		}
		allowed[i] = true
	}
	return allowed, nil
}

func (g *Graph) searchBalanced(src, dst int, allowed []bool, q Query) Path {
	weights := defaultBalanced
	if q.Weights != nil {
		weights = *q.Weights
	}
	weights = weights.Normalized()

	subs := []Criterion{ByDistance, ByTime, ByCost, ByEmissions}
	var cands []Path
	for _, c := range subs {
		p := g.dijkstra(src, dst, allowed, c, q.Profile)
		if !p.Found {
			continue
		}
		dup := false
		for _, prev := range cands {
			if samePath(prev.Waypoints, p.Waypoints) {
				dup = true
				break
			}
		}
		if !dup {
			cands = append(cands, p)
		}
	}
	if len(cands) == 0 {
		return Path{}
	}
	// Composite score: per sub-criterion ratio of the best candidate's
	// metric to this candidate's, weighted. 1.0 means the path is best in
	// every dimension at once.
	best := func(f func(Path) float64) float64 {
		m := math.Inf(1)
		for _, c := range cands {
			if v := f(c); v < m {
				m = v
			}
		}
		return m
	}
	bd := best(func(p Path) float64 { return p.DistanceKm })
	bt := best(func(p Path) float64 { return p.DurationHours })
	bc := best(func(p Path) float64 { return p.Cost })
	be := best(func(p Path) float64 { return p.Emissions })
	ratio := func(bestV, v float64) float64 {
		if v <= 0 {
			return 1
		}
		return bestV / v
	}
	chosen := 0
	chosenScore := -1.0
	for i, c := range cands {
		score := weights.Distance*ratio(bd, c.DistanceKm) +
			weights.Time*ratio(bt, c.DurationHours) +
			weights.Cost*ratio(bc, c.Cost) +
			weights.Emissions*ratio(be, c.Emissions)
		if score > chosenScore+weightEps ||
			(math.Abs(score-chosenScore) <= weightEps && len(c.Waypoints) < len(cands[chosen].Waypoints)) {
			chosen = i
			chosenScore = score
		}
	}
	out := cands[chosen]
	out.Confidence = chosenScore
	out.Weight = chosenScore
	return out
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type pqItem struct {
	node   int
	weight float64
	hops   int
}

type pq []pqItem

func (q pq) Len() int { return len(q) }
func (q pq) Less(i, j int) bool {
	if q[i].weight != q[j].weight {
		return q[i].weight < q[j].weight
	}
	return q[i].hops < q[j].hops
}
func (q pq) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pq) Push(x any)        { *q = append(*q, x.(pqItem)) }
func (q *pq) Pop() any          { old := *q; n := len(old); it := old[n-1]; *q = old[:n-1]; return it }

// dijkstra relaxes on (weight, hops): among equal-weight paths the one with
// fewer waypoints wins.
func (g *Graph) dijkstra(src, dst int, allowed []bool, crit Criterion, w WeightProfile) Path {
	n := len(g.ports)
	dist := make([]float64, n)
	hops := make([]int, n)
	prev := make([]int, n)
	done := make([]bool, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}
	dist[src] = 0
	q := &pq{{node: src}}
	for q.Len() > 0 {
		it := heap.Pop(q).(pqItem)
		u := it.node
		if done[u] {
			continue
		}
		done[u] = true
		if u == dst {
			break
		}
		for _, e := range g.adj[u] {
			v := e.to
			if done[v] || (allowed != nil && !allowed[v]) {
				continue
			}
			lw := g.legDist(u, v, e.distKm, w).weight(crit)
			nd := dist[u] + lw
			nh := hops[u] + 1
			if nd < dist[v]-weightEps || (math.Abs(nd-dist[v]) <= weightEps && nh < hops[v]) {
				dist[v] = nd
				hops[v] = nh
				prev[v] = u
				heap.Push(q, pqItem{node: v, weight: nd, hops: nh})
			}
		}
	}
	if math.IsInf(dist[dst], 1) {
		return Path{}
	}
	// walk back, then accumulate full metrics forward
	order := []int{dst}
	for at := dst; at != src; {
		at = prev[at]
		order = append(order, at)
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	out := Path{Found: true, Weight: dist[dst], Waypoints: make([]string, len(order))}
	for i, idx := range order {
		out.Waypoints[i] = g.ports[idx].ID
		if i == 0 {
			continue
		}
		m := g.leg(order[i-1], idx, w)
		out.DistanceKm += m.distKm
		out.DurationHours += m.hours
		out.Cost += m.cost
		out.Emissions += m.emissions
	}
	return out
}
