// Package pareto searches the assignment space for the Pareto front over
// several objectives at once with NSGA-II: fast non-dominated sorting,
// crowding-distance diversity pressure, and elitist survivor selection. It
// shares the genome encoding and pair economics of the opt package.
package pareto

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
	"fleetopt/internal/opt"
)

// Problem describes a multi-objective assignment run. Objectives must name
// at least two distinct single objectives (revenue, cost, utilization,
// risk); the balanced pseudo-objective is rejected because collapsing to a
// scalar defeats the front.
type Problem struct {
	Assets     []model.Asset
	Targets    []model.Target
	Objectives []opt.Objective
	// Preference weighs the recommendation picked off the front; zero
	// value means equal weights.
	Preference map[opt.Objective]float64
	// Seed feeds every randomized component; 0 derives from wall clock.
	Seed       int64
	TimeBudget time.Duration
	Tuning     config.OptimizerConfig
}

// Solution is one point of the front. Objectives holds the raw values in
// Problem.Objectives order; minimized objectives keep their natural sign.
type Solution struct {
	Genome      []int              `json:"genome"`
	Assignments []model.Assignment `json:"assignments"`
	Unassigned  []string           `json:"unassigned,omitempty"`
	Objectives  []float64          `json:"objectives"`
	Rank        int                `json:"rank"`
	Crowding    float64            `json:"crowding"`

	score []float64 // orientation-adjusted, higher is better
}

// SensitivityPoint reports which front member the recommendation moves to
// when one preference weight is scaled by Factor.
type SensitivityPoint struct {
	Objective   opt.Objective `json:"objective"`
	Factor      float64       `json:"factor"`
	Recommended int           `json:"recommended"`
}

type Result struct {
	Front       []Solution         `json:"front"`
	Recommended int                `json:"recommended"`
	Sensitivity []SensitivityPoint `json:"sensitivity,omitempty"`
	Termination string             `json:"termination"`
	Generations int                `json:"generations"`
	Evaluations int                `json:"evaluations"`
	Seed        int64              `json:"seed"`
}

// maximize reports the orientation of an objective.
func maximize(o opt.Objective) bool {
	return o == opt.MaxRevenue || o == opt.MaxUtilization
}

// Optimize runs NSGA-II and returns the first non-dominated front of the
// final population, deduplicated by genome, plus a preference-weighted
// recommendation and its sensitivity to the weights.
func Optimize(ctx context.Context, p Problem) (Result, error) {
	if len(p.Objectives) < 2 {
		return Result{}, fmt.Errorf("%w: need at least two objectives", model.ErrInvalidInput)
	}
	seen := map[opt.Objective]bool{}
	for _, o := range p.Objectives {
		switch o {
		case opt.MaxRevenue, opt.MinCost, opt.MaxUtilization, opt.MinRisk:
		default:
			return Result{}, fmt.Errorf("%w: objective %q cannot be traded off", model.ErrInvalidInput, o)
		}
		if seen[o] {
			return Result{}, fmt.Errorf("%w: duplicate objective %q", model.ErrInvalidInput, o)
		}
		seen[o] = true
	}
	ev, err := opt.NewEval(p.Assets, p.Targets)
	if err != nil {
		return Result{}, err
	}
	tun := p.Tuning
	if tun.PopulationSize == 0 {
		tun = config.Default().Optimizer
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

	evals := 0
	newSolution := func(genome []int) Solution {
		evals++
		s := Solution{Genome: genome}
		rev, cost, util, risk := ev.Totals(genome)
		raw := map[opt.Objective]float64{
			opt.MaxRevenue:     rev,
			opt.MinCost:        cost,
			opt.MaxUtilization: util,
			opt.MinRisk:        risk,
		}
		for _, o := range p.Objectives {
			v := raw[o]
			s.Objectives = append(s.Objectives, v)
			if maximize(o) {
				s.score = append(s.score, v)
			} else {
				s.score = append(s.score, -v)
			}
		}
		return s
	}

	pop := make([]Solution, 0, tun.PopulationSize)
	pop = append(pop, newSolution(ev.GreedySeed()))
	for len(pop) < tun.PopulationSize {
		pop = append(pop, newSolution(ev.RandomGenome(rng)))
	}

	term := model.TermGenerationCap
	gen := 0
	for ; gen < tun.Generations; gen++ {
		if t, ok := expired(ctx, deadline); ok {
			term = t
			break
		}
		rankAndCrowd(pop)
		offspring := make([]Solution, 0, tun.PopulationSize)
		for len(offspring) < tun.PopulationSize {
			a := tournament(pop, rng)
			b := tournament(pop, rng)
			child := ev.Crossover(a.Genome, b.Genome, rng, tun.CrossoverRate)
			ev.Mutate(child, rng, tun.MutationRate)
			ev.Repair(child, rng)
			offspring = append(offspring, newSolution(child))
		}
		pop = survivors(append(pop, offspring...), tun.PopulationSize)
	}
	rankAndCrowd(pop)

	var front []Solution
	dedupe := map[string]bool{}
	for _, s := range pop {
		if s.Rank != 0 {
			continue
		}
		key := genomeKey(s.Genome)
		if dedupe[key] {
			continue
		}
		dedupe[key] = true
		s.Assignments, s.Unassigned = ev.Decode(s.Genome)
		front = append(front, s)
	}
	// stable presentation: sort by the first objective, best first
	sort.SliceStable(front, func(i, j int) bool { return front[i].score[0] > front[j].score[0] })

	res := Result{
		Front:       front,
		Termination: term,
		Generations: gen,
		Evaluations: evals,
		Seed:        seed,
	}
	weights := preferenceWeights(p.Objectives, p.Preference)
	res.Recommended = recommend(front, weights)
	for k, o := range p.Objectives {
		for _, factor := range []float64{0.5, 1.5} {
			w := append([]float64(nil), weights...)
			w[k] *= factor
			res.Sensitivity = append(res.Sensitivity, SensitivityPoint{
				Objective:   o,
				Factor:      factor,
				Recommended: recommend(front, w),
			})
		}
	}
	return res, nil
}

// Dominates reports strict Pareto dominance of a over b on the
// orientation-adjusted scores.
func (a Solution) Dominates(b Solution) bool {
	better := false
	for k := range a.score {
		if a.score[k] < b.score[k] {
			return false
		}
		if a.score[k] > b.score[k] {
			better = true
		}
	}
	return better
}

// rankAndCrowd assigns every solution its non-domination rank and crowding
// distance in place.
func rankAndCrowd(pop []Solution) {
	n := len(pop)
	dominated := make([][]int, n) // indices i dominates
	counts := make([]int, n)      // how many dominate i
	var current []int
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if pop[i].Dominates(pop[j]) {
				dominated[i] = append(dominated[i], j)
			} else if pop[j].Dominates(pop[i]) {
				counts[i]++
			}
		}
		if counts[i] == 0 {
			pop[i].Rank = 0
			current = append(current, i)
		}
	}
	for rank := 0; len(current) > 0; rank++ {
		crowd(pop, current)
		var next []int
		for _, i := range current {
			for _, j := range dominated[i] {
				counts[j]--
				if counts[j] == 0 {
					pop[j].Rank = rank + 1
					next = append(next, j)
				}
			}
		}
		current = next
	}
}

// crowd computes crowding distance within one front; boundary members get
// +Inf so they always survive selection.
func crowd(pop []Solution, front []int) {
	for _, i := range front {
		pop[i].Crowding = 0
	}
	if len(front) <= 2 {
		for _, i := range front {
			pop[i].Crowding = math.Inf(1)
		}
		return
	}
	objs := len(pop[front[0]].score)
	idx := append([]int(nil), front...)
	for k := 0; k < objs; k++ {
		sort.Slice(idx, func(a, b int) bool { return pop[idx[a]].score[k] < pop[idx[b]].score[k] })
		lo, hi := pop[idx[0]].score[k], pop[idx[len(idx)-1]].score[k]
		pop[idx[0]].Crowding = math.Inf(1)
		pop[idx[len(idx)-1]].Crowding = math.Inf(1)
		if hi == lo {
			continue
		}
		for m := 1; m < len(idx)-1; m++ {
			gap := pop[idx[m+1]].score[k] - pop[idx[m-1]].score[k]
			pop[idx[m]].Crowding += gap / (hi - lo)
		}
	}
}

// tournament picks the better of two random solutions by (rank, crowding).
func tournament(pop []Solution, rng *rand.Rand) Solution {
	a := pop[rng.Intn(len(pop))]
	b := pop[rng.Intn(len(pop))]
	if a.Rank != b.Rank {
		if a.Rank < b.Rank {
			return a
		}
		return b
	}
	if a.Crowding >= b.Crowding {
		return a
	}
	return b
}

// survivors keeps the best n of a combined parent+offspring population,
// whole fronts first, the split front by descending crowding.
func survivors(pop []Solution, n int) []Solution {
	rankAndCrowd(pop)
	sort.SliceStable(pop, func(i, j int) bool {
		if pop[i].Rank != pop[j].Rank {
			return pop[i].Rank < pop[j].Rank
		}
		return pop[i].Crowding > pop[j].Crowding
	})
	return append([]Solution(nil), pop[:n]...)
}

// recommend scores each front member with min-max normalized objectives
// and the given weights; ties resolve to the lower index.
func recommend(front []Solution, weights []float64) int {
	if len(front) == 0 {
		return -1
	}
	objs := len(front[0].score)
	lo := make([]float64, objs)
	hi := make([]float64, objs)
	for k := 0; k < objs; k++ {
		lo[k], hi[k] = math.Inf(1), math.Inf(-1)
		for _, s := range front {
			lo[k] = math.Min(lo[k], s.score[k])
			hi[k] = math.Max(hi[k], s.score[k])
		}
	}
	best, bestScore := 0, math.Inf(-1)
	for i, s := range front {
		total := 0.0
		for k := 0; k < objs; k++ {
			norm := 1.0
			if hi[k] > lo[k] {
				norm = (s.score[k] - lo[k]) / (hi[k] - lo[k])
			}
			total += weights[k] * norm
		}
		if total > bestScore {
			best, bestScore = i, total
		}
	}
	return best
}

func preferenceWeights(objectives []opt.Objective, pref map[opt.Objective]float64) []float64 {
	w := make([]float64, len(objectives))
	sum := 0.0
	for k, o := range objectives {
		w[k] = pref[o]
		if w[k] < 0 {
			w[k] = 0
		}
		sum += w[k]
	}
	if sum == 0 {
		for k := range w {
			w[k] = 1 / float64(len(w))
		}
		return w
	}
	for k := range w {
		w[k] /= sum
	}
	return w
}

func genomeKey(genome []int) string {
	b := make([]byte, 0, len(genome)*3)
	for _, g := range genome {
		b = append(b, byte(g>>8), byte(g), ',')
	}
	return string(b)
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
