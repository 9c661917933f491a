// Package config provides configuration loading and validation for
// simulation runs. It supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Reproduction method names.
const (
	ReproduceNormal = "normal"
	ReproduceMoran  = "moran"
	ReproduceSocial = "social"
)

// Operators for the "my score matters" decision rule.
const (
	OperatorAnd = "and"
	OperatorOr  = "or"
)

// Initial strategy seeding modes.
const (
	SeedUniform   = "uniform"
	SeedClustered = "clustered"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Limits is an inclusive integer range.
type Limits struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether v lies within the range.
func (l Limits) Contains(v int) bool {
	return v >= l.Min && v <= l.Max
}

// Config holds every parameter of a simulation run.
type Config struct {
	// Name labels the run in storage and logs.
	Name string `json:"name" yaml:"name"`

	// Seed for the shared random sequence. 0 draws a fresh seed.
	Seed int64 `json:"seed" yaml:"seed"`

	NumAgents       int `json:"num_agents" yaml:"num_agents"`
	NumInteractions int `json:"num_interactions" yaml:"num_interactions"`
	NumGenerations  int `json:"num_generations" yaml:"num_generations"`

	Benefit float64 `json:"benefit" yaml:"benefit"`
	Cost    float64 `json:"cost" yaml:"cost"`

	StrategyLimits Limits `json:"strategy_limits" yaml:"strategy_limits"`
	ScoreLimits    Limits `json:"score_limits" yaml:"score_limits"`

	// RebelChild lets an offspring ignore its parent's strategy with a
	// small fixed probability.
	RebelChild bool `json:"rebel_child" yaml:"rebel_child"`

	// NonPublicScores switches to private reputations spread by observers.
	NonPublicScores bool `json:"non_public_scores" yaml:"non_public_scores"`
	NumObservers    int  `json:"num_observers" yaml:"num_observers"`

	// MyScoreMatters adds the donor's own score to the decision.
	MyScoreMatters         bool   `json:"my_score_matters" yaml:"my_score_matters"`
	MyScoreMattersOperator string `json:"my_score_matters_operator,omitempty" yaml:"my_score_matters_operator,omitempty"`

	// PhysicalConstraints restricts interaction and imitation to graph edges.
	PhysicalConstraints bool           `json:"physical_constraints" yaml:"physical_constraints"`
	Physical            PhysicalConfig `json:"physical" yaml:"physical"`

	// Reproduce is one of normal, moran, social.
	Reproduce string `json:"reproduce" yaml:"reproduce"`

	// NumSocial is the number of imitation pairs per generation in
	// unconstrained social learning. 0 uses NumInteractions.
	NumSocial int `json:"num_social" yaml:"num_social"`

	// InitialStrategies is uniform or clustered (grid runs only).
	InitialStrategies string `json:"initial_strategies" yaml:"initial_strategies"`

	// LogEvery is the snapshot period in generations.
	LogEvery int `json:"log_every" yaml:"log_every"`

	Storage StorageConfig `json:"storage" yaml:"storage"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// PhysicalConfig selects the topology for spatial runs. A positive
// AvgDegree builds a random graph; otherwise Grid must be set.
type PhysicalConfig struct {
	AvgDegree float64 `json:"avg_degree,omitempty" yaml:"avg_degree,omitempty"`
	Grid      bool    `json:"grid,omitempty" yaml:"grid,omitempty"`
	SideSize  int     `json:"side_size,omitempty" yaml:"side_size,omitempty"`
	Torus     bool    `json:"torus,omitempty" yaml:"torus,omitempty"`
}

// StorageConfig configures the run archive.
type StorageConfig struct {
	// Path of the sqlite database. Empty disables persistence.
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig configures log verbosity.
type LoggingConfig struct {
	// Level is "info" (default) or "debug".
	Level string `json:"level" yaml:"level"`
}

// Default returns the parameters of the original paper.
func Default() *Config {
	return &Config{
		Name:              "paper",
		NumAgents:         100,
		NumInteractions:   125,
		NumGenerations:    200,
		Benefit:           1,
		Cost:              0.1,
		StrategyLimits:    Limits{Min: -5, Max: 6},
		ScoreLimits:       Limits{Min: -5, Max: 5},
		NumObservers:      10,
		Reproduce:         ReproduceNormal,
		InitialStrategies: SeedUniform,
		LogEvery:          10,
		Logging:           LoggingConfig{Level: "info"},
	}
}

// Load builds a configuration from defaults, an optional YAML file, and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate checks ranges and the mutually exclusive mode combinations.
func (c *Config) Validate() error {
	if c.NumAgents < 2 {
		return invalid("num_agents must be at least 2, got %d", c.NumAgents)
	}
	if c.NumGenerations < 0 {
		return invalid("num_generations must be non-negative, got %d", c.NumGenerations)
	}
	if c.NumInteractions < 0 {
		return invalid("num_interactions must be non-negative, got %d", c.NumInteractions)
	}
	if c.Benefit <= c.Cost {
		return invalid("benefit (%v) must exceed cost (%v)", c.Benefit, c.Cost)
	}
	if c.StrategyLimits.Min > c.StrategyLimits.Max {
		return invalid("strategy_limits min %d exceeds max %d", c.StrategyLimits.Min, c.StrategyLimits.Max)
	}
	if c.ScoreLimits.Min > c.ScoreLimits.Max {
		return invalid("score_limits min %d exceeds max %d", c.ScoreLimits.Min, c.ScoreLimits.Max)
	}
	if c.LogEvery < 1 {
		return invalid("log_every must be at least 1, got %d", c.LogEvery)
	}

	switch c.Reproduce {
	case ReproduceNormal, ReproduceMoran, ReproduceSocial:
	default:
		return invalid("reproduce must be normal, moran or social, got %q", c.Reproduce)
	}

	if c.NonPublicScores && c.MyScoreMatters {
		return invalid("non_public_scores and my_score_matters cannot both be set")
	}
	if c.NonPublicScores && c.PhysicalConstraints {
		return invalid("non_public_scores and physical_constraints cannot both be set")
	}
	if c.PhysicalConstraints && c.Reproduce != ReproduceSocial {
		return invalid("physical_constraints requires social reproduction, got %q", c.Reproduce)
	}
	if c.MyScoreMatters && c.MyScoreMattersOperator != OperatorAnd && c.MyScoreMattersOperator != OperatorOr {
		return invalid("my_score_matters requires my_score_matters_operator and|or, got %q", c.MyScoreMattersOperator)
	}
	if c.RebelChild && c.Reproduce == ReproduceSocial {
		return invalid("rebel_child cannot be combined with social reproduction")
	}

	if c.NonPublicScores {
		if c.NumObservers < 0 || c.NumObservers > c.NumAgents-2 {
			return invalid("num_observers must be within [0, %d], got %d", c.NumAgents-2, c.NumObservers)
		}
	}
	if c.NumSocial < 0 {
		return invalid("num_social must be non-negative, got %d", c.NumSocial)
	}

	if c.PhysicalConstraints {
		p := c.Physical
		switch {
		case p.AvgDegree > 0:
			if p.AvgDegree > float64(c.NumAgents-1) {
				return invalid("physical.avg_degree %v exceeds num_agents-1", p.AvgDegree)
			}
		case p.Grid:
			if p.SideSize*p.SideSize != c.NumAgents {
				return invalid("physical.side_size squared (%d) must equal num_agents (%d)", p.SideSize*p.SideSize, c.NumAgents)
			}
		default:
			return invalid("physical_constraints requires physical.avg_degree or physical.grid")
		}
	}

	switch c.InitialStrategies {
	case "", SeedUniform:
	case SeedClustered:
		if !c.PhysicalConstraints || c.Physical.AvgDegree > 0 || !c.Physical.Grid {
			return invalid("clustered initial_strategies requires a grid topology")
		}
	default:
		return invalid("initial_strategies must be uniform or clustered, got %q", c.InitialStrategies)
	}

	validLevels := map[string]bool{"": true, "info": true, "debug": true}
	if !validLevels[c.Logging.Level] {
		return invalid("invalid log level: %s (valid: info, debug)", c.Logging.Level)
	}
	return nil
}

// UsesGrid reports whether the spatial topology is a lattice.
func (c *Config) UsesGrid() bool {
	return c.PhysicalConstraints && c.Physical.AvgDegree <= 0 && c.Physical.Grid
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RECIPROCITY_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RECIPROCITY_SEED: %w", err)
		}
		cfg.Seed = n
	}
	if v := os.Getenv("RECIPROCITY_GENERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RECIPROCITY_GENERATIONS: %w", err)
		}
		cfg.NumGenerations = n
	}
	if v := os.Getenv("RECIPROCITY_REPRODUCE"); v != "" {
		cfg.Reproduce = v
	}
	if v := os.Getenv("RECIPROCITY_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("RECIPROCITY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
