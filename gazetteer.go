package toponym

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Gazetteer maps place names to candidate locations.
//
// Implementations: MemoryGazetteer, SQLiteGazetteer and MultiGazetteer.
type Gazetteer interface {
	// Lookup returns the candidates for a name, in gazetteer order. Unknown
	// names yield an empty slice and a nil error. Names are matched
	// case-insensitively.
	Lookup(name string) ([]Location, error)
	// Add registers loc under name.
	Add(name string, loc Location) error
}

// maxFuzzyDistance caps the edit distance of fuzzy lookups; every fuzzy
// lookup scans the whole name index.
const maxFuzzyDistance = 3

// GazetteerOption configures gazetteer construction and loading.
type GazetteerOption func(*gazetteerConfig)

type gazetteerConfig struct {
	fuzzyDistance int
	minPopulation int
}

// WithFuzzyDistance enables a Levenshtein fallback for names that have no
// exact entry. Distances above 3 are capped.
func WithFuzzyDistance(n int) GazetteerOption {
	return func(c *gazetteerConfig) {
		c.fuzzyDistance = min(max(n, 0), maxFuzzyDistance)
	}
}

// WithMinPopulation makes loaders skip entries below the given population.
func WithMinPopulation(n int) GazetteerOption {
	return func(c *gazetteerConfig) {
		c.minPopulation = n
	}
}

func newGazetteerConfig(opts []GazetteerOption) gazetteerConfig {
	var cfg gazetteerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// normalizeName is the lookup key for a place name.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MemoryGazetteer is an in-memory name index over a location table.
type MemoryGazetteer struct {
	locations []Location
	byID      map[int]int      // location id -> index into locations
	nameIndex map[string][]int // lowercase name -> indexes into locations
	cfg       gazetteerConfig
}

// NewMemoryGazetteer creates an empty in-memory gazetteer.
func NewMemoryGazetteer(opts ...GazetteerOption) *MemoryGazetteer {
	return &MemoryGazetteer{
		byID:      make(map[int]int),
		nameIndex: make(map[string][]int),
		cfg:       newGazetteerConfig(opts),
	}
}

// Add registers loc under name. A location id that is already known keeps
// its first definition; only the new name is indexed.
func (g *MemoryGazetteer) Add(name string, loc Location) error {
	key := normalizeName(name)
	if key == "" {
		return fmt.Errorf("add location %d: empty name", loc.ID)
	}
	idx, ok := g.byID[loc.ID]
	if !ok {
		idx = len(g.locations)
		g.locations = append(g.locations, loc)
		g.byID[loc.ID] = idx
	}
	if !slices.Contains(g.nameIndex[key], idx) {
		g.nameIndex[key] = append(g.nameIndex[key], idx)
	}
	return nil
}

// Lookup returns the candidates for name. With a fuzzy distance configured,
// a name with no exact entry collects the candidates of every indexed name
// within that edit distance, visiting names in sorted order.
func (g *MemoryGazetteer) Lookup(name string) ([]Location, error) {
	key := normalizeName(name)
	if key == "" {
		return []Location{}, nil
	}
	if indices, ok := g.nameIndex[key]; ok {
		return g.collect(indices), nil
	}
	if g.cfg.fuzzyDistance == 0 || len([]rune(key)) <= 2 {
		return []Location{}, nil
	}

	var indices []int
	seen := make(map[int]bool)
	for _, k := range g.Names() {
		if levenshtein.ComputeDistance(key, k) > g.cfg.fuzzyDistance {
			continue
		}
		for _, idx := range g.nameIndex[k] {
			if !seen[idx] {
				seen[idx] = true
				indices = append(indices, idx)
			}
		}
	}
	return g.collect(indices), nil
}

func (g *MemoryGazetteer) collect(indices []int) []Location {
	out := make([]Location, len(indices))
	for i, idx := range indices {
		out[i] = g.locations[idx]
	}
	return out
}

// Names returns every indexed name in sorted order.
func (g *MemoryGazetteer) Names() []string {
	names := make([]string, 0, len(g.nameIndex))
	for k := range g.nameIndex {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of distinct locations.
func (g *MemoryGazetteer) Len() int { return len(g.locations) }

// Location returns the location with the given id.
func (g *MemoryGazetteer) Location(id int) (Location, bool) {
	idx, ok := g.byID[id]
	if !ok {
		return Location{}, false
	}
	return g.locations[idx], true
}

// Merge adds every name and location of src to g. Locations already in g
// keep their definition.
func (g *MemoryGazetteer) Merge(src *MemoryGazetteer) error {
	for _, name := range src.Names() {
		for _, idx := range src.nameIndex[name] {
			if err := g.Add(name, src.locations[idx]); err != nil {
				return err
			}
		}
	}
	return nil
}

// MultiGazetteer queries backing gazetteers in priority order and returns the
// first non-empty candidate list. Results are never merged across backends.
type MultiGazetteer struct {
	gazetteers []Gazetteer
}

// NewMultiGazetteer creates a gazetteer over the given backends, highest
// priority first. The first backend receives every Add.
func NewMultiGazetteer(gazetteers ...Gazetteer) *MultiGazetteer {
	return &MultiGazetteer{gazetteers: gazetteers}
}

// Add registers loc with the first (primary) backend.
func (m *MultiGazetteer) Add(name string, loc Location) error {
	if len(m.gazetteers) == 0 {
		return fmt.Errorf("add %q: %w", name, ErrNoGazetteer)
	}
	return m.gazetteers[0].Add(name, loc)
}

// Lookup returns the first non-empty result. A backend error aborts the
// lookup.
func (m *MultiGazetteer) Lookup(name string) ([]Location, error) {
	for i, g := range m.gazetteers {
		candidates, err := g.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("gazetteer %d lookup %q: %w", i, name, err)
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return []Location{}, nil
}
