package opt

import (
	"context"
	"math"
	"time"

	"fleetopt/internal/model"
)

// solveExhaustive enumerates assignments depth-first with a branch-and-bound
// cutoff, guaranteeing the optimum for the small problems it is selected
// for. Leaving an asset unassigned is a real branch: under exclusivity a
// cheap asset may have to stand down so a richer one takes the target.
func solveExhaustive(ctx context.Context, ev *evaluator, deadline time.Time) (Solution, Metrics, string) {
	n, m := len(ev.p.Assets), len(ev.p.Targets)
	genome := make([]int, n)
	best := make([]int, n)
	for i := range genome {
		genome[i] = -1
		best[i] = -1
	}
	bestFit := math.Inf(-1)
	taken := make([]bool, m)
	var metrics Metrics

	// optimistic per-asset contribution for pruning
	upper := make([]float64, n+1)
	for i := n - 1; i >= 0; i-- {
		bestPair := -ev.penalty
		for j := 0; j < m; j++ {
			if ev.feasible[i][j] && ev.score[i][j] > bestPair {
				bestPair = ev.score[i][j]
			}
		}
		upper[i] = upper[i+1] + bestPair
	}

	term := model.TermExhaustive
	nodes := 0
	var dfs func(i int, acc float64) bool
	dfs = func(i int, acc float64) bool {
		nodes++
		if nodes%4096 == 0 {
			if t, stop := expired(ctx, deadline); stop {
				term = t
				return false
			}
		}
		if i == n {
			metrics.Evaluations++
			if acc > bestFit {
				bestFit = acc
				copy(best, genome)
				metrics.Improvements++
			}
			return true
		}
		if acc+upper[i] <= bestFit {
			return true
		}
		for j := 0; j < m; j++ {
			if !ev.feasible[i][j] || (!ev.p.AllowSharedTargets && taken[j]) {
				continue
			}
			genome[i] = j
			taken[j] = true
			ok := dfs(i+1, acc+ev.score[i][j])
			taken[j] = false
			genome[i] = -1
			if !ok {
				return false
			}
		}
		return dfs(i+1, acc-ev.penalty)
	}
	dfs(0, 0)

	metrics.BestFitness = bestFit
	return Solution{Genome: best, Fitness: bestFit}, metrics, term
}
