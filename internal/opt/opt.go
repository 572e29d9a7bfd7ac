// Package opt assigns N assets to M candidate routes or cargo jobs under
// eligibility and capacity constraints, optimizing a single objective.
// Strategy is picked by problem size: exhaustive enumeration for small
// problems, an evolutionary search for medium ones, and an evolutionary +
// simulated-annealing hybrid above that. An ant-colony constructive variant
// is available as an alternative strategy.
package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
)

type Objective string

const (
	MaxRevenue     Objective = "revenue"
	MinCost        Objective = "cost"
	MaxUtilization Objective = "utilization"
	MinRisk        Objective = "risk"
	Balanced       Objective = "balanced"
)

// ValidObjective reports whether o names a supported objective.
func ValidObjective(o Objective) bool {
	switch o {
	case MaxRevenue, MinCost, MaxUtilization, MinRisk, Balanced:
		return true
	}
	return false
}

const (
	AlgoAuto       = ""
	AlgoExhaustive = "exhaustive"
	AlgoGenetic    = "genetic"
	AlgoHybrid     = "hybrid"
	AlgoAnts       = "ants"
)

// Problem is the immutable input of one assignment run.
type Problem struct {
	Assets    []model.Asset
	Targets   []model.Target
	Objective Objective
	// Weights applies to the balanced objective; zero value means equal
	// weights over revenue, cost, utilization, risk.
	Weights map[Objective]float64
	// AllowSharedTargets permits two assets on the same target. Off by
	// default: a candidate route or cargo job is consumed by its asset.
	AllowSharedTargets bool
	// Algorithm forces a strategy; empty selects by problem size.
	Algorithm string
	// Seed feeds every randomized component; 0 derives from wall clock.
	Seed int64
	// TimeBudget bounds wall clock independently of the generation cap;
	// 0 means no time bound.
	TimeBudget time.Duration
	// Tuning overrides the configured defaults; zero value uses them.
	Tuning config.OptimizerConfig
}

// Solution is a complete mapping of asset index to target index; -1 means
// unassigned. It is the unit of mutation, crossover and evaluation.
type Solution struct {
	Genome  []int
	Fitness float64
}

// Metrics traces one metaheuristic run.
type Metrics struct {
	Generations   int     `json:"generations"`
	Evaluations   int     `json:"evaluations"`
	Improvements  int     `json:"improvements"`
	AcceptedWorse int     `json:"acceptedWorse"`
	BestFitness   float64 `json:"bestFitness"`
	FinalVariance float64 `json:"finalVariance"`
}

// Result is the immutable outcome of a run. Infeasible assets appear in
// Unassigned; the run itself never fails for infeasibility.
type Result struct {
	Assignments []model.Assignment `json:"assignments"`
	Unassigned  []string           `json:"unassigned,omitempty"`
	Objective   float64            `json:"objective"`
	Fitness     float64            `json:"fitness"`
	Confidence  float64            `json:"confidence"`
	Algorithm   string             `json:"algorithm"`
	Termination string             `json:"termination"`
	Metrics     Metrics            `json:"metrics"`
}

// Solve picks a strategy by problem size N*M and returns the best
// assignment found. It returns an error only for structurally invalid
// input; per-asset infeasibility is reported in Result.Unassigned.
func Solve(ctx context.Context, p Problem) (Result, error) {
	if len(p.Assets) == 0 {
		return Result{}, fmt.Errorf("%w: empty asset list", model.ErrInvalidInput)
	}
	if len(p.Targets) == 0 {
		return Result{}, fmt.Errorf("%w: empty target list", model.ErrInvalidInput)
	}
	if p.Objective == "" {
		p.Objective = MaxRevenue
	}
	if !ValidObjective(p.Objective) {
		return Result{}, fmt.Errorf("%w: unknown objective %q", model.ErrInvalidInput, p.Objective)
	}
	tun := p.Tuning
	if tun.PopulationSize == 0 {
		tun = config.Default().Optimizer
	}
	ev := newEvaluator(p)

	algo := p.Algorithm
	if algo == AlgoAuto {
		switch size := len(p.Assets) * len(p.Targets); {
		case size <= tun.ExhaustiveLimit:
			algo = AlgoExhaustive
		case size <= tun.HybridThreshold:
			algo = AlgoGenetic
		default:
			algo = AlgoHybrid
		}
	}

	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	deadline := time.Time{}
	if p.TimeBudget > 0 {
		deadline = time.Now().Add(p.TimeBudget)
	}

	var (
		sol  Solution
		m    Metrics
		term string
		conf float64
	)
	switch algo {
	case AlgoExhaustive:
		sol, m, term = solveExhaustive(ctx, ev, deadline)
		conf = tun.ConfidenceExact
	case AlgoGenetic:
		sol, m, term = solveGenetic(ctx, ev, rng, tun, deadline)
		conf = tun.ConfidenceEvolve
	case AlgoHybrid:
		sol, m, term = solveHybrid(ctx, ev, rng, tun, deadline)
		conf = tun.ConfidenceHybrid
	case AlgoAnts:
		sol, m, term = solveAnts(ctx, ev, rng, tun, deadline)
		conf = tun.ConfidenceEvolve
	default:
		return Result{}, fmt.Errorf("%w: unknown algorithm %q", model.ErrInvalidInput, algo)
	}
	if term == model.TermTimeout || term == model.TermCancelled {
		conf *= 0.8
	}
	return ev.result(sol, algo, term, conf, m), nil
}

// evaluator holds the per-pair economics precomputed once per run so the
// search loops stay allocation-free and cache friendly.
type evaluator struct {
	p        Problem
	feasible [][]bool // [asset][target]
	score    [][]float64
	revenue  [][]float64
	cost     [][]float64
	duration [][]float64
	util     [][]float64
	risk     [][]float64
	penalty  float64 // per unassigned asset
	weights  map[Objective]float64
}

func newEvaluator(p Problem) *evaluator {
	n, m := len(p.Assets), len(p.Targets)
	ev := &evaluator{p: p, weights: balancedWeights(p.Weights)}
	ev.feasible = make([][]bool, n)
	ev.score = make([][]float64, n)
	ev.revenue = make([][]float64, n)
	ev.cost = make([][]float64, n)
	ev.duration = make([][]float64, n)
	ev.util = make([][]float64, n)
	ev.risk = make([][]float64, n)
	maxAbs := 0.0
	for i, a := range p.Assets {
		ev.feasible[i] = make([]bool, m)
		ev.score[i] = make([]float64, m)
		ev.revenue[i] = make([]float64, m)
		ev.cost[i] = make([]float64, m)
		ev.duration[i] = make([]float64, m)
		ev.util[i] = make([]float64, m)
		ev.risk[i] = make([]float64, m)
		for j, t := range p.Targets {
			if !canServe(a, t) {
				continue
			}
			ev.feasible[i][j] = true
			ev.revenue[i][j] = t.Revenue
			ev.cost[i][j] = pairCost(a, t)
			ev.duration[i][j] = pairDuration(a, t)
			ev.util[i][j] = pairUtilization(a, t)
			ev.risk[i][j] = t.Risk * (2 - clamp01(a.Profile.Reliability()))
			ev.score[i][j] = ev.pairScore(i, j)
			if v := math.Abs(ev.score[i][j]); v > maxAbs {
				maxAbs = v
			}
		}
	}
	ev.penalty = maxAbs*1.5 + 1
	return ev
}

// pairScore is the decomposed fitness contribution of assigning asset i to
// target j, oriented so higher is always better.
func (ev *evaluator) pairScore(i, j int) float64 {
	switch ev.p.Objective {
	case MaxRevenue:
		return ev.revenue[i][j]
	case MinCost:
		return -ev.cost[i][j]
	case MaxUtilization:
		return ev.util[i][j] / float64(len(ev.p.Assets))
	case MinRisk:
		return -ev.risk[i][j]
	default: // balanced composite
		w := ev.weights
		return w[MaxRevenue]*ev.revenue[i][j] -
			w[MinCost]*ev.cost[i][j] +
			w[MaxUtilization]*ev.util[i][j] -
			w[MinRisk]*ev.risk[i][j]
	}
}

func (ev *evaluator) fitness(genome []int) float64 {
	total := 0.0
	for i, j := range genome {
		if j < 0 {
			total -= ev.penalty
			continue
		}
		total += ev.score[i][j]
	}
	return total
}

// hasFeasible reports whether asset i can serve any target at all.
func (ev *evaluator) hasFeasible(i int) bool {
	for j := range ev.feasible[i] {
		if ev.feasible[i][j] {
			return true
		}
	}
	return false
}

// result decodes a genome into the immutable assignment list.
func (ev *evaluator) result(sol Solution, algo, term string, conf float64, m Metrics) Result {
	out := Result{Algorithm: algo, Termination: term, Confidence: conf, Metrics: m, Fitness: sol.Fitness}
	out.Assignments = make([]model.Assignment, 0, len(sol.Genome))
	for i, j := range sol.Genome {
		if j < 0 {
			out.Unassigned = append(out.Unassigned, ev.p.Assets[i].ID)
			continue
		}
		out.Assignments = append(out.Assignments, model.Assignment{
			AssetID:       ev.p.Assets[i].ID,
			TargetID:      ev.p.Targets[j].ID,
			Revenue:       ev.revenue[i][j],
			Cost:          ev.cost[i][j],
			DurationHours: ev.duration[i][j],
		})
		switch ev.p.Objective {
		case MaxRevenue:
			out.Objective += ev.revenue[i][j]
		case MinCost:
			out.Objective += ev.cost[i][j]
		case MaxUtilization:
			out.Objective += ev.util[i][j] / float64(len(sol.Genome))
		case MinRisk:
			out.Objective += ev.risk[i][j]
		default:
			out.Objective += ev.score[i][j]
		}
	}
	return out
}

// greedySeed assigns each asset its best free feasible target in turn.
func (ev *evaluator) greedySeed() []int {
	n, m := len(ev.p.Assets), len(ev.p.Targets)
	genome := make([]int, n)
	taken := make([]bool, m)
	for i := range genome {
		genome[i] = -1
		best := -1
		for j := 0; j < m; j++ {
			if !ev.feasible[i][j] || (!ev.p.AllowSharedTargets && taken[j]) {
				continue
			}
			if best == -1 || ev.score[i][j] > ev.score[i][best] {
				best = j
			}
		}
		if best >= 0 {
			genome[i] = best
			taken[best] = true
		}
	}
	return genome
}

// randomGenome draws a random feasible assignment respecting exclusivity.
func (ev *evaluator) randomGenome(rng *rand.Rand) []int {
	n, m := len(ev.p.Assets), len(ev.p.Targets)
	genome := make([]int, n)
	taken := make([]bool, m)
	order := rng.Perm(n)
	for i := range genome {
		genome[i] = -1
	}
	for _, i := range order {
		var opts []int
		for j := 0; j < m; j++ {
			if ev.feasible[i][j] && (ev.p.AllowSharedTargets || !taken[j]) {
				opts = append(opts, j)
			}
		}
		if len(opts) == 0 {
			continue
		}
		j := opts[rng.Intn(len(opts))]
		genome[i] = j
		taken[j] = true
	}
	return genome
}

// repair resolves duplicate targets after crossover/mutation, keeping the
// first holder and reassigning the rest to a free feasible target or -1.
func (ev *evaluator) repair(genome []int, rng *rand.Rand) {
	if ev.p.AllowSharedTargets {
		return
	}
	m := len(ev.p.Targets)
	taken := make([]bool, m)
	for i, j := range genome {
		if j < 0 {
			continue
		}
		if !ev.feasible[i][j] || taken[j] {
			genome[i] = -1
			continue
		}
		taken[j] = true
	}
	for i, j := range genome {
		if j >= 0 {
			continue
		}
		var opts []int
		for k := 0; k < m; k++ {
			if ev.feasible[i][k] && !taken[k] {
				opts = append(opts, k)
			}
		}
		if len(opts) == 0 {
			continue
		}
		pick := opts[rng.Intn(len(opts))]
		genome[i] = pick
		taken[pick] = true
	}
}

func canServe(a model.Asset, t model.Target) bool {
	if a.Profile == nil || !t.Eligible(a.Profile.Kind()) {
		return false
	}
	cap := a.Profile.Capacity()
	if t.Required.WeightKg > 0 && t.Required.WeightKg > cap.WeightKg {
		return false
	}
	if t.Required.VolumeM3 > 0 && t.Required.VolumeM3 > cap.VolumeM3 {
		return false
	}
	if t.Required.Units > 0 && t.Required.Units > cap.Units {
		return false
	}
	return true
}

func pairCost(a model.Asset, t model.Target) float64 {
	p := a.Profile
	if p.Kind() == model.KindWarehouse {
		return p.CostPerKm()
	}
	return t.DistanceKm * p.CostPerKm()
}

func pairDuration(a model.Asset, t model.Target) float64 {
	speed := a.Profile.SpeedKph()
	if speed <= 0 {
		return 0
	}
	return t.DistanceKm / speed
}

// pairUtilization averages the weight and volume fill ratios the target
// would impose on the asset.
func pairUtilization(a model.Asset, t model.Target) float64 {
	cap := a.Profile.Capacity()
	dims, sum := 0, 0.0
	if cap.WeightKg > 0 {
		dims++
		sum += clamp01(t.Required.WeightKg / cap.WeightKg)
	}
	if cap.VolumeM3 > 0 {
		dims++
		sum += clamp01(t.Required.VolumeM3 / cap.VolumeM3)
	}
	if dims == 0 {
		return 0
	}
	return sum / float64(dims)
}

func balancedWeights(w map[Objective]float64) map[Objective]float64 {
	out := map[Objective]float64{MaxRevenue: 0.25, MinCost: 0.25, MaxUtilization: 0.25, MinRisk: 0.25}
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		return out
	}
	for k := range out {
		out[k] = w[k] / sum
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func expired(ctx context.Context, deadline time.Time) (string, bool) {
	select {
	case <-ctx.Done():
		return model.TermCancelled, true
	default:
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		return model.TermTimeout, true
	}
	return "", false
}
