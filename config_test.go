package toponym

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.DegreesPerCell)
	assert.Equal(t, "toponym-data/cities1000.zip", cfg.GeoNamesPath)
	assert.Equal(t, "toponym-cache/gazetteer.gob.gz", cfg.GazetteerCachePath)
	assert.Equal(t, "graph.txt", cfg.GraphPath)
	assert.Equal(t, "seeds.txt", cfg.SeedPath)
	assert.Empty(t, cfg.SQLitePath)
	assert.Equal(t, DefaultEdgeWeights(), cfg.EdgeWeights)
	assert.Equal(t, DefaultContextWeights(), cfg.ContextWeights)
	assert.Equal(t, "info", cfg.Log.Level)

	grid, err := cfg.Grid()
	require.NoError(t, err)
	assert.Equal(t, 180, grid.Rows())
	assert.Equal(t, 360, grid.Cols())
}

func TestLoadConfigMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("TOPONYM_DPC", "5")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.DegreesPerCell)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, `
degrees_per_cell: 10
graph_path: out/graph.txt
sqlite_path: gazetteer.db
min_population: 500
fuzzy_distance: 2
edge_weights:
  seed: 0.5
  token_chain: 2
context_weights:
  document: 0.25
log:
  level: debug
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.DegreesPerCell)
	assert.Equal(t, "out/graph.txt", cfg.GraphPath)
	assert.Equal(t, "seeds.txt", cfg.SeedPath, "unset keys keep their defaults")
	assert.Equal(t, "gazetteer.db", cfg.SQLitePath)
	assert.Equal(t, 500, cfg.MinPopulation)
	assert.Equal(t, 2, cfg.FuzzyDistance)
	assert.Equal(t, 0.5, cfg.EdgeWeights.Seed)
	assert.Equal(t, 2.0, cfg.EdgeWeights.TokenChain)
	assert.Equal(t, 1.0, cfg.EdgeWeights.CellCell)
	assert.Equal(t, 0.25, cfg.ContextWeights.Document)
	assert.Equal(t, 1.0, cfg.ContextWeights.Self)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Len(t, cfg.GazetteerOptions(), 2)
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "degrees_per_cell: 10\ngraph_path: yaml.txt\n")
	t.Setenv("TOPONYM_DPC", "2")
	t.Setenv("TOPONYM_EDGE_SEED", "3")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.DegreesPerCell)
	assert.Equal(t, "yaml.txt", cfg.GraphPath)
	assert.Equal(t, 3.0, cfg.EdgeWeights.Seed)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative dpc", "degrees_per_cell: -1\n"},
		{"oversized dpc", "degrees_per_cell: 400\n"},
		{"negative population", "min_population: -1\n"},
		{"fuzzy distance too large", "fuzzy_distance: 9\n"},
		{"negative edge weight", "edge_weights:\n  cell_cell: -1\n"},
		{"negative context weight", "context_weights:\n  self: -2\n"},
		{"NaN edge weight", "edge_weights:\n  seed: .nan\n"},
		{"infinite context weight", "context_weights:\n  document: .inf\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	t.Run("invalid dpc from env", func(t *testing.T) {
		t.Setenv("TOPONYM_DPC", "-3")
		_, err := LoadConfig("")
		assert.ErrorIs(t, err, ErrInvalidDPC)
	})
}

func TestLoadConfigBadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "degrees_per_cell: [oops\n"))
	assert.Error(t, err)
}

func TestConfigNewGraphBuilder(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "degrees_per_cell: 10\nedge_weights:\n  seed: 0.5\n"))
	require.NoError(t, err)

	b, err := cfg.NewGraphBuilder()
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.grid.DPC())
	assert.Equal(t, 0.5, b.weights.Seed)
	assert.Equal(t, 1.0, b.weights.TokenChain)

	var graph, seeds bytes.Buffer
	stats, err := b.Write(buildCorpus(t, sampleDocs()...), &graph, &seeds)
	require.NoError(t, err)
	assert.Equal(t, 18*(36-1)*2+36*(18-1)*2, stats.CellEdges)
	assert.Contains(t, seeds.String(), "\t0.5\n")

	cfg.EdgeWeights.TokenDoc = -1
	_, err = cfg.NewGraphBuilder()
	assert.Error(t, err)

	cfg.EdgeWeights.TokenDoc = 1
	cfg.DegreesPerCell = 0
	_, err = cfg.NewGraphBuilder()
	assert.ErrorIs(t, err, ErrInvalidDPC)
}

func TestConfigNewResolver(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
degrees_per_cell: 10
distribution_path: labels.txt
context_weights:
  same_sentence: 0.5
`))
	require.NoError(t, err)

	r, err := cfg.NewResolver()
	require.NoError(t, err)
	assert.Equal(t, "labels.txt", r.path)
	assert.Equal(t, 10.0, r.grid.DPC())
	assert.Equal(t, ContextWeights{Self: 1, SameSentence: 0.5, Document: 1}, r.weights)
	assert.False(t, r.Trained())

	cfg.ContextWeights.Self = math.Inf(1)
	_, err = cfg.NewResolver()
	assert.Error(t, err)
}
