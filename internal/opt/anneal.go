package opt

import (
	"context"
	"math"
	"math/rand"
	"time"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
)

// anneal refines a seed solution by simulated annealing: the neighbor move
// is a single reassignment, a worse neighbor is accepted with probability
// exp(-delta/T), and the temperature cools geometrically.
func anneal(ctx context.Context, ev *evaluator, seed Solution, rng *rand.Rand, tun config.OptimizerConfig, deadline time.Time) (Solution, Metrics, string) {
	curr := cloneSolution(seed)
	best := cloneSolution(seed)
	temp := tun.InitialTemp
	if temp <= 0 {
		temp = 1
	}
	cool := tun.Cooling
	if cool <= 0 || cool >= 1 {
		cool = 0.97
	}
	var m Metrics
	term := model.TermGenerationCap
	for it := 0; it < tun.AnnealIters; it++ {
		if it%64 == 0 {
			if t, stop := expired(ctx, deadline); stop {
				term = t
				break
			}
		}
		m.Generations++
		cand := cloneSolution(curr)
		neighborMove(ev, cand.Genome, rng)
		ev.repair(cand.Genome, rng)
		cand.Fitness = ev.fitness(cand.Genome)
		m.Evaluations++
		delta := curr.Fitness - cand.Fitness // positive when worse
		if delta <= 0 {
			curr = cand
			if curr.Fitness > best.Fitness {
				best = cloneSolution(curr)
				m.Improvements++
				m.BestFitness = best.Fitness
			}
		} else if rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			m.AcceptedWorse++
		}
		temp *= cool
	}
	if m.BestFitness == 0 {
		m.BestFitness = best.Fitness
	}
	return best, m, term
}

// neighborMove reassigns one random asset to a random feasible target,
// unassigning it when nothing else fits.
func neighborMove(ev *evaluator, genome []int, rng *rand.Rand) {
	if len(genome) == 0 {
		return
	}
	i := rng.Intn(len(genome))
	mTargets := len(ev.p.Targets)
	var opts []int
	for j := 0; j < mTargets; j++ {
		if ev.feasible[i][j] && j != genome[i] {
			opts = append(opts, j)
		}
	}
	if len(opts) == 0 {
		genome[i] = -1
		return
	}
	genome[i] = opts[rng.Intn(len(opts))]
}
