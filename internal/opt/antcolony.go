package opt

import (
	"context"
	"math"
	"math/rand"
	"time"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
)

// solveAnts is the ant-colony constructive variant: each ant builds a full
// assignment asset by asset, choosing targets by pheromone-weighted roulette
// over the feasible free set. Pheromone evaporates each iteration and the
// iteration-best ant reinforces its trail.
func solveAnts(ctx context.Context, ev *evaluator, rng *rand.Rand, tun config.OptimizerConfig, deadline time.Time) (Solution, Metrics, string) {
	n, mT := len(ev.p.Assets), len(ev.p.Targets)
	pher := make([][]float64, n)
	for i := range pher {
		pher[i] = make([]float64, mT)
		for j := range pher[i] {
			pher[i][j] = 1
		}
	}
	// heuristic desirability: per-pair score shifted positive
	minScore := math.Inf(1)
	for i := 0; i < n; i++ {
		for j := 0; j < mT; j++ {
			if ev.feasible[i][j] && ev.score[i][j] < minScore {
				minScore = ev.score[i][j]
			}
		}
	}
	if math.IsInf(minScore, 1) {
		minScore = 0
	}
	heur := func(i, j int) float64 { return ev.score[i][j] - minScore + 1 }

	ants := tun.Ants
	if ants <= 0 {
		ants = 20
	}
	rho := tun.Evaporation
	if rho <= 0 || rho >= 1 {
		rho = 0.1
	}

	var m Metrics
	best := Solution{Genome: ev.greedySeed()}
	best.Fitness = ev.fitness(best.Genome)
	m.Evaluations++
	m.BestFitness = best.Fitness

	term := model.TermGenerationCap
	for iter := 0; iter < tun.Generations; iter++ {
		if t, stop := expired(ctx, deadline); stop {
			term = t
			break
		}
		m.Generations++
		iterBest := Solution{Fitness: math.Inf(-1)}
		for a := 0; a < ants; a++ {
			genome := constructAnt(ev, pher, heur, rng)
			fit := ev.fitness(genome)
			m.Evaluations++
			if fit > iterBest.Fitness {
				iterBest = Solution{Genome: genome, Fitness: fit}
			}
		}
		// evaporate, then reinforce the iteration-best trail
		for i := range pher {
			for j := range pher[i] {
				pher[i][j] *= 1 - rho
				if pher[i][j] < 0.01 {
					pher[i][j] = 0.01
				}
			}
		}
		if len(iterBest.Genome) > 0 {
			deposit := 1.0
			if iterBest.Fitness > best.Fitness {
				deposit = 2
			}
			for i, j := range iterBest.Genome {
				if j >= 0 {
					pher[i][j] += deposit
				}
			}
		}
		if iterBest.Fitness > best.Fitness {
			best = cloneSolution(iterBest)
			m.Improvements++
			m.BestFitness = best.Fitness
		}
	}
	return best, m, term
}

// constructAnt builds one constraint-satisfying genome probabilistically.
func constructAnt(ev *evaluator, pher [][]float64, heur func(i, j int) float64, rng *rand.Rand) []int {
	n, mT := len(ev.p.Assets), len(ev.p.Targets)
	genome := make([]int, n)
	taken := make([]bool, mT)
	order := rng.Perm(n)
	for i := range genome {
		genome[i] = -1
	}
	for _, i := range order {
		total := 0.0
		for j := 0; j < mT; j++ {
			if ev.feasible[i][j] && (ev.p.AllowSharedTargets || !taken[j]) {
				total += pher[i][j] * heur(i, j)
			}
		}
		if total <= 0 {
			continue
		}
		r := rng.Float64() * total
		acc := 0.0
		for j := 0; j < mT; j++ {
			if !ev.feasible[i][j] || (!ev.p.AllowSharedTargets && taken[j]) {
				continue
			}
			acc += pher[i][j] * heur(i, j)
			if r <= acc {
				genome[i] = j
				taken[j] = true
				break
			}
		}
	}
	return genome
}
