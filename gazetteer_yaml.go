package toponym

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlPlace is one entry of a curated gazetteer file.
type yamlPlace struct {
	ID         int       `yaml:"id"`
	Name       string    `yaml:"name"`
	Type       string    `yaml:"type"`
	Lat        float64   `yaml:"lat"`
	Lon        float64   `yaml:"lon"`
	Population int       `yaml:"population"`
	BBox       []float64 `yaml:"bbox"`  // min_lat, min_lon, max_lat, max_lon
	Names      []string  `yaml:"names"` // extra lookup names
}

// LoadYAMLGazetteer loads a hand-curated gazetteer.
//
// Expected format:
//
//	places:
//	  - id: 1
//	    name: Springfield
//	    type: city
//	    lat: 39.80
//	    lon: -89.64
//	    population: 114394
//	    names: [springfield il]
//	  - id: 2
//	    name: Texas
//	    type: state
//	    bbox: [25.8, -106.6, 36.5, -93.5]
//
// An entry with a bbox gets a RectRegion, otherwise a PointRegion.
func LoadYAMLGazetteer(path string, opts ...GazetteerOption) (*MemoryGazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Places []yamlPlace `yaml:"places"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	g := NewMemoryGazetteer(opts...)
	for i, p := range doc.Places {
		loc, err := p.location()
		if err != nil {
			return nil, fmt.Errorf("%s: place %d: %w", path, i, err)
		}
		if loc.Population < g.cfg.minPopulation {
			continue
		}
		if err := g.Add(p.Name, loc); err != nil {
			return nil, err
		}
		for _, n := range p.Names {
			if err := g.Add(n, loc); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (p yamlPlace) location() (Location, error) {
	if p.Name == "" {
		return Location{}, fmt.Errorf("missing name")
	}
	loc := Location{
		ID:         p.ID,
		Name:       p.Name,
		Type:       LocationType(p.Type),
		Population: p.Population,
	}
	switch len(p.BBox) {
	case 0:
		loc.Region = NewPointRegion(p.Lat, p.Lon)
	case 4:
		loc.Region = NewRectRegion(p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3])
	default:
		return Location{}, fmt.Errorf("bbox for %q has %d values, want 4", p.Name, len(p.BBox))
	}
	return loc, nil
}
