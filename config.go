package toponym

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the settings of a resolution pipeline run.
type Config struct {
	DegreesPerCell float64 `yaml:"degrees_per_cell" env:"TOPONYM_DPC" env-default:"1.0"`

	GeoNamesURL        string `yaml:"geonames_url"         env:"TOPONYM_GEONAMES_URL"         env-default:"https://download.geonames.org/export/dump/cities1000.zip"`
	GeoNamesPath       string `yaml:"geonames_path"        env:"TOPONYM_GEONAMES_PATH"        env-default:"toponym-data/cities1000.zip"`
	GazetteerYAMLPath  string `yaml:"gazetteer_yaml_path"  env:"TOPONYM_GAZETTEER_YAML_PATH"`
	GazetteerCachePath string `yaml:"gazetteer_cache_path" env:"TOPONYM_GAZETTEER_CACHE_PATH" env-default:"toponym-cache/gazetteer.gob.gz"`
	SQLitePath         string `yaml:"sqlite_path"          env:"TOPONYM_SQLITE_PATH"`
	CorpusCachePath    string `yaml:"corpus_cache_path"    env:"TOPONYM_CORPUS_CACHE_PATH"`
	GraphPath          string `yaml:"graph_path"           env:"TOPONYM_GRAPH_PATH"           env-default:"graph.txt"`
	SeedPath           string `yaml:"seed_path"            env:"TOPONYM_SEED_PATH"            env-default:"seeds.txt"`
	DistributionPath   string `yaml:"distribution_path"    env:"TOPONYM_DISTRIBUTION_PATH"`

	MinPopulation int `yaml:"min_population" env:"TOPONYM_MIN_POPULATION"`
	FuzzyDistance int `yaml:"fuzzy_distance" env:"TOPONYM_FUZZY_DISTANCE"`

	EdgeWeights    EdgeWeights    `yaml:"edge_weights"`
	ContextWeights ContextWeights `yaml:"context_weights"`
	Log            LogConfig      `yaml:"log"`
}

// LoadConfig reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags). An empty path, or a
// path that does not exist, loads from ENV and defaults only.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: file %s: %w", path, err)
		} else {
			path = ""
		}
	}
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if _, err := NewGrid(c.DegreesPerCell); err != nil {
		errs = append(errs, err)
	}
	if c.MinPopulation < 0 {
		errs = append(errs, fmt.Errorf("min_population must not be negative: %d", c.MinPopulation))
	}
	if c.FuzzyDistance < 0 || c.FuzzyDistance > maxFuzzyDistance {
		errs = append(errs, fmt.Errorf("fuzzy_distance must be in [0, %d]: %d", maxFuzzyDistance, c.FuzzyDistance))
	}
	if err := c.EdgeWeights.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.ContextWeights.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Grid returns the grid for DegreesPerCell.
func (c *Config) Grid() (Grid, error) {
	return NewGrid(c.DegreesPerCell)
}

// GazetteerOptions returns the loader options implied by the config.
func (c *Config) GazetteerOptions() []GazetteerOption {
	return []GazetteerOption{
		WithMinPopulation(c.MinPopulation),
		WithFuzzyDistance(c.FuzzyDistance),
	}
}

// NewGraphBuilder returns a graph builder over the configured grid and edge
// weights.
func (c *Config) NewGraphBuilder() (*GraphBuilder, error) {
	grid, err := c.Grid()
	if err != nil {
		return nil, err
	}
	if err := c.EdgeWeights.validate(); err != nil {
		return nil, err
	}
	return NewGraphBuilder(grid, WithEdgeWeights(c.EdgeWeights)), nil
}

// NewResolver returns a label propagation resolver that trains from
// DistributionPath over the configured grid and context weights.
func (c *Config) NewResolver() (*LabelPropResolver, error) {
	grid, err := c.Grid()
	if err != nil {
		return nil, err
	}
	if err := c.ContextWeights.validate(); err != nil {
		return nil, err
	}
	return NewLabelPropResolver(c.DistributionPath, WithGrid(grid), WithContextWeights(c.ContextWeights)), nil
}
