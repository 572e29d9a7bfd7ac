package opt

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
)

// solveGenetic runs a population-based evolutionary search: rank-based
// parent selection, single-point crossover, per-gene mutation, elitist
// replacement. Stops on fitness-variance convergence, the generation cap,
// the wall-clock budget, or cancellation — whichever comes first.
func solveGenetic(ctx context.Context, ev *evaluator, rng *rand.Rand, tun config.OptimizerConfig, deadline time.Time) (Solution, Metrics, string) {
	popSize := tun.PopulationSize
	pop := make([]Solution, popSize)
	pop[0] = Solution{Genome: ev.greedySeed()}
	for i := 1; i < popSize; i++ {
		pop[i] = Solution{Genome: ev.randomGenome(rng)}
	}
	var m Metrics
	for i := range pop {
		pop[i].Fitness = ev.fitness(pop[i].Genome)
		m.Evaluations++
	}
	sortByFitness(pop)
	best := cloneSolution(pop[0])
	m.BestFitness = best.Fitness

	term := model.TermGenerationCap
	for gen := 0; gen < tun.Generations; gen++ {
		if t, stop := expired(ctx, deadline); stop {
			term = t
			break
		}
		m.Generations++

		next := make([]Solution, 0, popSize)
		elite := tun.EliteCount
		if elite > popSize {
			elite = popSize
		}
		for i := 0; i < elite; i++ {
			next = append(next, cloneSolution(pop[i]))
		}
		for len(next) < popSize {
			a := pickByRank(pop, rng)
			b := pickByRank(pop, rng)
			child := crossover(ev, a.Genome, b.Genome, rng, tun.CrossoverRate)
			mutate(ev, child, rng, tun.MutationRate)
			ev.repair(child, rng)
			next = append(next, Solution{Genome: child, Fitness: ev.fitness(child)})
			m.Evaluations++
		}
		pop = next
		sortByFitness(pop)
		if pop[0].Fitness > best.Fitness {
			best = cloneSolution(pop[0])
			m.Improvements++
			m.BestFitness = best.Fitness
		}
		if v := fitnessVariance(pop); v < tun.ConvergenceEps {
			m.FinalVariance = v
			term = model.TermConverged
			break
		}
	}
	if m.FinalVariance == 0 && len(pop) > 0 {
		m.FinalVariance = fitnessVariance(pop)
	}
	return best, m, term
}

// solveHybrid seeds a simulated-annealing refinement with the evolutionary
// result and returns the better of the two.
func solveHybrid(ctx context.Context, ev *evaluator, rng *rand.Rand, tun config.OptimizerConfig, deadline time.Time) (Solution, Metrics, string) {
	gaSol, m, term := solveGenetic(ctx, ev, rng, tun, deadline)
	if term == model.TermCancelled || term == model.TermTimeout {
		return gaSol, m, term
	}
	saSol, saM, saTerm := anneal(ctx, ev, gaSol, rng, tun, deadline)
	m.Generations += saM.Generations
	m.Evaluations += saM.Evaluations
	m.Improvements += saM.Improvements
	m.AcceptedWorse += saM.AcceptedWorse
	if saSol.Fitness > gaSol.Fitness {
		m.BestFitness = saSol.Fitness
		return saSol, m, saTerm
	}
	return gaSol, m, saTerm
}

// pickByRank selects a parent with probability proportional to rank
// (population must be sorted best first).
func pickByRank(pop []Solution, rng *rand.Rand) Solution {
	n := len(pop)
	total := n * (n + 1) / 2
	r := rng.Intn(total)
	acc := 0
	for i := 0; i < n; i++ {
		acc += n - i
		if r < acc {
			return pop[i]
		}
	}
	return pop[n-1]
}

func crossover(ev *evaluator, a, b []int, rng *rand.Rand, rate float64) []int {
	child := make([]int, len(a))
	if rng.Float64() >= rate || len(a) < 2 {
		copy(child, a)
		return child
	}
	cut := 1 + rng.Intn(len(a)-1)
	copy(child, a[:cut])
	copy(child[cut:], b[cut:])
	return child
}

// mutate reassigns each gene with the configured probability to a random
// feasible target (or unassigns it when the asset has no feasible target).
func mutate(ev *evaluator, genome []int, rng *rand.Rand, rate float64) {
	m := len(ev.p.Targets)
	for i := range genome {
		if rng.Float64() >= rate {
			continue
		}
		var opts []int
		for j := 0; j < m; j++ {
			if ev.feasible[i][j] {
				opts = append(opts, j)
			}
		}
		if len(opts) == 0 {
			genome[i] = -1
			continue
		}
		genome[i] = opts[rng.Intn(len(opts))]
	}
}

func sortByFitness(pop []Solution) {
	sort.SliceStable(pop, func(i, j int) bool { return pop[i].Fitness > pop[j].Fitness })
}

func cloneSolution(s Solution) Solution {
	return Solution{Genome: append([]int(nil), s.Genome...), Fitness: s.Fitness}
}

func fitnessVariance(pop []Solution) float64 {
	if len(pop) == 0 {
		return 0
	}
	mean := 0.0
	for _, s := range pop {
		mean += s.Fitness
	}
	mean /= float64(len(pop))
	v := 0.0
	for _, s := range pop {
		d := s.Fitness - mean
		v += d * d
	}
	return v / float64(len(pop))
}
