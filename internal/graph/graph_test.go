package graph

import (
	"errors"
	"math"
	"testing"

	"fleetopt/internal/model"
)

func port(id string, lat, lng float64) model.Port {
	return model.Port{ID: id, Location: model.GeoPoint{Lat: lat, Lng: lng}}
}

func lane(from, to string, km float64) model.Lane {
	return model.Lane{From: from, To: to, DistanceKm: km}
}

func testProfile() WeightProfile {
	return WeightProfile{SpeedKph: 40, CostPerKm: 2, FuelPerKm: 0.3, FuelPrice: 1.5, EmissionFactor: 2.6}
}

func mustGraph(t *testing.T, ports []model.Port, lanes []model.Lane) *Graph {
	t.Helper()
	g, err := New(ports, lanes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestSearchUnknownPortIsInvalidInput(t *testing.T) {
	g := mustGraph(t, []model.Port{port("a", 0, 0)}, nil)
	if _, err := g.Search(Query{Origin: "a", Destination: "zz", Criterion: ByDistance}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSearchSingleNodeTrivialPath(t *testing.T) {
	g := mustGraph(t, []model.Port{port("a", 0, 0)}, nil)
	p, err := g.Search(Query{Origin: "a", Destination: "a", Criterion: ByCost})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !p.Found || len(p.Waypoints) != 1 || p.Cost != 0 || p.DistanceKm != 0 {
		t.Fatalf("expected trivial zero-cost path, got %+v", p)
	}
}

func TestSearchNoPathFound(t *testing.T) {
	g := mustGraph(t, []model.Port{port("a", 0, 0), port("b", 1, 1)}, nil)
	p, err := g.Search(Query{Origin: "a", Destination: "b", Criterion: ByDistance})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if p.Found {
		t.Fatalf("disconnected graph must signal no path, got %+v", p)
	}
}

func TestSearchPrefersFewerWaypointsOnTies(t *testing.T) {
	// a->b->c and a->c both 10km total
	g := mustGraph(t,
		[]model.Port{port("a", 0, 0), port("b", 0, 1), port("c", 0, 2)},
		[]model.Lane{lane("a", "b", 5), lane("b", "c", 5), lane("a", "c", 10)},
	)
	p, err := g.Search(Query{Origin: "a", Destination: "c", Criterion: ByDistance})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(p.Waypoints) != 2 {
		t.Fatalf("tie must break toward fewer waypoints, got %v", p.Waypoints)
	}
	if p.DistanceKm != 10 {
		t.Fatalf("distance: got %v want 10", p.DistanceKm)
	}
}

func TestSearchParallelLanesUseShortest(t *testing.T) {
	// two lanes a->b; the reported metrics must match the relaxed 300km lane
	g := mustGraph(t,
		[]model.Port{port("a", 0, 0), port("b", 0, 1)},
		[]model.Lane{lane("a", "b", 500), lane("a", "b", 300)},
	)
	for _, crit := range []Criterion{ByDistance, ByCost} {
		p, err := g.Search(Query{Origin: "a", Destination: "b", Criterion: crit, Profile: testProfile()})
		if err != nil {
			t.Fatalf("%s: %v", crit, err)
		}
		if !p.Found || p.DistanceKm != 300 {
			t.Fatalf("%s: %+v", crit, p)
		}
		if want := g.legDist(0, 1, 300, testProfile()).weight(crit); math.Abs(p.Weight-want) > 1e-9 {
			t.Fatalf("%s: weight %v disagrees with reconstruction %v", crit, p.Weight, want)
		}
	}
}

// enumerate all simple paths by DFS and keep the minimum weight.
func bruteForceBest(g *Graph, src, dst int, crit Criterion, w WeightProfile) float64 {
	best := math.Inf(1)
	visited := make([]bool, len(g.ports))
	var dfs func(u int, acc float64)
	dfs = func(u int, acc float64) {
		if u == dst {
			if acc < best {
				best = acc
			}
			return
		}
		visited[u] = true
		for _, e := range g.adj[u] {
			if visited[e.to] {
				continue
			}
			dfs(e.to, acc+g.legDist(u, e.to, e.distKm, w).weight(crit))
		}
		visited[u] = false
	}
	dfs(src, 0)
	return best
}

func TestSearchMatchesBruteForceOnSmallGraphs(t *testing.T) {
	// 6-node graph with asymmetric lanes, detours, and modifiers
	ports := []model.Port{
		port("a", 10, 20), port("b", 11, 21), port("c", 12, 22),
		{ID: "d", Location: model.GeoPoint{Lat: 13, Lng: 23}, Congestion: 1.4, HandlingFee: 50},
		{ID: "e", Location: model.GeoPoint{Lat: 14, Lng: 24}, WeatherDelay: 1.2, PoliticalRisk: 0.3},
		port("f", 15, 25),
	}
	lanes := []model.Lane{
		lane("a", "b", 100), lane("b", "c", 120), lane("a", "c", 260),
		lane("c", "d", 80), lane("b", "d", 210), lane("d", "e", 90),
		lane("c", "e", 200), lane("e", "f", 60), lane("d", "f", 170),
		lane("a", "d", 400), lane("b", "e", 330),
	}
	g := mustGraph(t, ports, lanes)
	prof := testProfile()
	for _, crit := range []Criterion{ByDistance, ByTime, ByCost, ByEmissions} {
		p, err := g.Search(Query{Origin: "a", Destination: "f", Criterion: crit, Profile: prof})
		if err != nil {
			t.Fatalf("%s: %v", crit, err)
		}
		if !p.Found {
			t.Fatalf("%s: expected a path", crit)
		}
		want := bruteForceBest(g, g.index["a"], g.index["f"], crit, prof.withDefaults())
		if math.Abs(p.Weight-want) > 1e-6 {
			t.Fatalf("%s: dijkstra weight %v, brute force %v", crit, p.Weight, want)
		}
	}
}

func TestSearchWeightTriangleInequality(t *testing.T) {
	ports := []model.Port{
		port("a", 0, 0), port("b", 0, 1), port("c", 0, 2), port("d", 1, 1),
	}
	lanes := []model.Lane{
		lane("a", "b", 70), lane("b", "c", 70), lane("a", "d", 50),
		lane("d", "c", 50), lane("a", "c", 150), lane("b", "d", 20),
	}
	g := mustGraph(t, ports, lanes)
	prof := testProfile()
	for _, crit := range []Criterion{ByDistance, ByTime, ByCost, ByEmissions} {
		ac, _ := g.Search(Query{Origin: "a", Destination: "c", Criterion: crit, Profile: prof})
		ab, _ := g.Search(Query{Origin: "a", Destination: "b", Criterion: crit, Profile: prof})
		bc, _ := g.Search(Query{Origin: "b", Destination: "c", Criterion: crit, Profile: prof})
		if !ac.Found || !ab.Found || !bc.Found {
			t.Fatalf("%s: all legs must be reachable", crit)
		}
		if ac.Weight > ab.Weight+bc.Weight+1e-9 {
			t.Fatalf("%s: triangle inequality violated: %v > %v + %v", crit, ac.Weight, ab.Weight, bc.Weight)
		}
	}
}

func TestSearchBalancedPicksCompositeBest(t *testing.T) {
	// Two routes a->c: via b is shorter, direct is faster (higher speed has
	// no effect per edge, so force it with congestion on b).
	ports := []model.Port{
		port("a", 0, 0),
		{ID: "b", Location: model.GeoPoint{Lat: 0, Lng: 1}, Congestion: 3},
		port("c", 0, 2),
	}
	lanes := []model.Lane{lane("a", "b", 40), lane("b", "c", 40), lane("a", "c", 100)}
	g := mustGraph(t, ports, lanes)
	p, err := g.Search(Query{Origin: "a", Destination: "c", Criterion: ByBalanced, Profile: testProfile()})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !p.Found {
		t.Fatal("expected a balanced path")
	}
	if p.Confidence <= 0 || p.Confidence > 1+1e-9 {
		t.Fatalf("balanced confidence must be in (0,1], got %v", p.Confidence)
	}
	// composite score of the chosen path must be >= either pure path's score
	if len(p.Waypoints) == 0 {
		t.Fatal("waypoints missing")
	}
}

func TestSearchViaRestrictsIntermediates(t *testing.T) {
	ports := []model.Port{port("a", 0, 0), port("b", 0, 1), port("c", 0, 2), port("d", 0, 3)}
	lanes := []model.Lane{lane("a", "b", 10), lane("b", "d", 10), lane("a", "c", 5), lane("c", "d", 5)}
	g := mustGraph(t, ports, lanes)
	p, err := g.Search(Query{Origin: "a", Destination: "d", Via: []string{"b"}, Criterion: ByDistance})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !p.Found || len(p.Waypoints) != 3 || p.Waypoints[1] != "b" {
		t.Fatalf("via restriction ignored: %+v", p)
	}
}

func TestPlanTourVisitsAllStops(t *testing.T) {
	ports := []model.Port{
		port("hub", 0, 0), port("p1", 0, 1), port("p2", 0, 2), port("p3", 0, 3),
	}
	var lanes []model.Lane
	ids := []string{"hub", "p1", "p2", "p3"}
	dist := map[string]map[string]float64{
		"hub": {"p1": 10, "p2": 25, "p3": 40},
		"p1":  {"hub": 10, "p2": 12, "p3": 30},
		"p2":  {"hub": 25, "p1": 12, "p3": 14},
		"p3":  {"hub": 40, "p1": 30, "p2": 14},
	}
	for _, from := range ids {
		for to, d := range dist[from] {
			lanes = append(lanes, lane(from, to, d))
		}
	}
	g := mustGraph(t, ports, lanes)
	tour, err := g.PlanTour("hub", []string{"p3", "p1", "p2"}, ByDistance, testProfile())
	if err != nil {
		t.Fatalf("PlanTour: %v", err)
	}
	if !tour.Found || len(tour.Unreachable) != 0 {
		t.Fatalf("all stops reachable, got %+v", tour)
	}
	if len(tour.Order) != 4 || tour.Order[0] != "hub" {
		t.Fatalf("order: %v", tour.Order)
	}
	// hub->p1->p2->p3 = 10+12+14 = 36 is optimal; NN+2opt must find it
	if tour.DistanceKm != 36 {
		t.Fatalf("tour distance: got %v want 36", tour.DistanceKm)
	}
}

func TestPlanTourReportsUnreachableStops(t *testing.T) {
	ports := []model.Port{port("hub", 0, 0), port("p1", 0, 1), port("island", 9, 9)}
	lanes := []model.Lane{lane("hub", "p1", 10), lane("p1", "hub", 10)}
	g := mustGraph(t, ports, lanes)
	tour, err := g.PlanTour("hub", []string{"p1", "island"}, ByDistance, testProfile())
	if err != nil {
		t.Fatalf("PlanTour: %v", err)
	}
	if len(tour.Unreachable) != 1 || tour.Unreachable[0] != "island" {
		t.Fatalf("unreachable: %v", tour.Unreachable)
	}
	if !tour.Found {
		t.Fatal("reachable portion must still form a tour")
	}
}

func TestPlanTourRejectsBalancedCriterion(t *testing.T) {
	g := mustGraph(t, []model.Port{port("a", 0, 0), port("b", 0, 1)}, []model.Lane{lane("a", "b", 1)})
	if _, err := g.PlanTour("a", []string{"b"}, ByBalanced, testProfile()); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
