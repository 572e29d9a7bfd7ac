package opt

import (
	"fmt"
	"math/rand"

	"fleetopt/internal/model"
)

// Eval exposes the per-pair economics and genome operators to the
// multi-objective optimizer, which shares this package's solution encoding.
type Eval struct {
	ev *evaluator
}

// NewEval validates the asset/target sets and precomputes pair economics.
func NewEval(assets []model.Asset, targets []model.Target) (*Eval, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: empty asset list", model.ErrInvalidInput)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: empty target list", model.ErrInvalidInput)
	}
	p := Problem{Assets: assets, Targets: targets, Objective: Balanced}
	return &Eval{ev: newEvaluator(p)}, nil
}

func (e *Eval) Assets() int  { return len(e.ev.p.Assets) }
func (e *Eval) Targets() int { return len(e.ev.p.Targets) }

func (e *Eval) Feasible(i, j int) bool { return e.ev.feasible[i][j] }

// Totals sums the raw objective values of a genome: total revenue, total
// cost, mean utilization over all assets, and total risk.
func (e *Eval) Totals(genome []int) (revenue, cost, utilization, risk float64) {
	for i, j := range genome {
		if j < 0 {
			continue
		}
		revenue += e.ev.revenue[i][j]
		cost += e.ev.cost[i][j]
		utilization += e.ev.util[i][j]
		risk += e.ev.risk[i][j]
	}
	utilization /= float64(len(genome))
	return
}

func (e *Eval) GreedySeed() []int                  { return e.ev.greedySeed() }
func (e *Eval) RandomGenome(rng *rand.Rand) []int  { return e.ev.randomGenome(rng) }
func (e *Eval) Repair(genome []int, rng *rand.Rand) { e.ev.repair(genome, rng) }

func (e *Eval) Crossover(a, b []int, rng *rand.Rand, rate float64) []int {
	return crossover(e.ev, a, b, rng, rate)
}

func (e *Eval) Mutate(genome []int, rng *rand.Rand, rate float64) {
	mutate(e.ev, genome, rng, rate)
}

// Decode turns a genome into assignments plus the unassigned asset ids.
func (e *Eval) Decode(genome []int) ([]model.Assignment, []string) {
	var out []model.Assignment
	var unassigned []string
	for i, j := range genome {
		if j < 0 {
			unassigned = append(unassigned, e.ev.p.Assets[i].ID)
			continue
		}
		out = append(out, model.Assignment{
			AssetID:       e.ev.p.Assets[i].ID,
			TargetID:      e.ev.p.Targets[j].ID,
			Revenue:       e.ev.revenue[i][j],
			Cost:          e.ev.cost[i][j],
			DurationHours: e.ev.duration[i][j],
		})
	}
	return out, unassigned
}
