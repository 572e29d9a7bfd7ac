// Package config holds the optimizer tunables. Every constant the search
// strategies depend on (size breakpoints, balanced weights, GA/SA/ACO
// parameters) is a default here, overridable by YAML file and per request.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Balanced  BalancedWeights `yaml:"balanced"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type OptimizerConfig struct {
	// Problem-size (N*M) breakpoints for strategy selection.
	ExhaustiveLimit int `yaml:"exhaustiveLimit"`
	HybridThreshold int `yaml:"hybridThreshold"`

	PopulationSize int     `yaml:"populationSize"`
	Generations    int     `yaml:"generations"`
	CrossoverRate  float64 `yaml:"crossoverRate"`
	MutationRate   float64 `yaml:"mutationRate"`
	EliteCount     int     `yaml:"eliteCount"`
	// Fitness-variance threshold for early convergence stop.
	ConvergenceEps float64 `yaml:"convergenceEps"`

	InitialTemp float64 `yaml:"initialTemp"`
	Cooling     float64 `yaml:"cooling"`
	AnnealIters int     `yaml:"annealIters"`

	Ants        int     `yaml:"ants"`
	Evaporation float64 `yaml:"evaporation"`

	// Confidence reported per strategy when the run terminates normally.
	ConfidenceExact  float64 `yaml:"confidenceExact"`
	ConfidenceEvolve float64 `yaml:"confidenceEvolve"`
	ConfidenceHybrid float64 `yaml:"confidenceHybrid"`
}

// BalancedWeights are the sub-criterion weights of the balanced path search.
// Equal by default; nothing assumes they are tuned.
type BalancedWeights struct {
	Distance  float64 `yaml:"distance"`
	Time      float64 `yaml:"time"`
	Cost      float64 `yaml:"cost"`
	Emissions float64 `yaml:"emissions"`
}

type SchedulerConfig struct {
	SlotMinutes int `yaml:"slotMinutes"`
}

func Default() Config {
	return Config{
		Optimizer: OptimizerConfig{
			ExhaustiveLimit:  100,
			HybridThreshold:  1000,
			PopulationSize:   60,
			Generations:      200,
			CrossoverRate:    0.85,
			MutationRate:     0.08,
			EliteCount:       2,
			ConvergenceEps:   1e-6,
			InitialTemp:      100,
			Cooling:          0.97,
			AnnealIters:      2000,
			Ants:             20,
			Evaporation:      0.1,
			ConfidenceExact:  0.95,
			ConfidenceEvolve: 0.85,
			ConfidenceHybrid: 0.75,
		},
		Balanced:  BalancedWeights{Distance: 0.25, Time: 0.25, Cost: 0.25, Emissions: 0.25},
		Scheduler: SchedulerConfig{SlotMinutes: 30},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	o := c.Optimizer
	if o.ExhaustiveLimit <= 0 || o.HybridThreshold < o.ExhaustiveLimit {
		return fmt.Errorf("optimizer breakpoints must satisfy 0 < exhaustiveLimit <= hybridThreshold")
	}
	if o.Cooling <= 0 || o.Cooling >= 1 {
		return fmt.Errorf("cooling must be in (0,1)")
	}
	if o.PopulationSize < 2 {
		return fmt.Errorf("populationSize must be >= 2")
	}
	if c.Scheduler.SlotMinutes <= 0 {
		return fmt.Errorf("slotMinutes must be > 0")
	}
	return nil
}

// Normalized returns the balanced weights scaled to sum to 1, falling back
// to equal weights when all are zero.
func (w BalancedWeights) Normalized() BalancedWeights {
	sum := w.Distance + w.Time + w.Cost + w.Emissions
	if sum <= 0 {
		return BalancedWeights{Distance: 0.25, Time: 0.25, Cost: 0.25, Emissions: 0.25}
	}
	return BalancedWeights{
		Distance:  w.Distance / sum,
		Time:      w.Time / sum,
		Cost:      w.Cost / sum,
		Emissions: w.Emissions / sum,
	}
}
