package toponym

// PopulationResolver selects the most populous candidate of every ambiguous
// mention, preferring the lowest candidate index on ties. It needs no
// training and serves as a baseline for LabelPropResolver.
type PopulationResolver struct{}

// Train is a no-op.
func (PopulationResolver) Train(*Corpus) error { return nil }

// Disambiguate selects a candidate for every mention with candidates.
func (PopulationResolver) Disambiguate(c *Corpus) (ResolveStats, error) {
	var stats ResolveStats
	for _, m := range c.Mentions() {
		cands := m.candidates()
		if len(cands) == 0 {
			continue
		}
		stats.Mentions++
		best := 0
		for i, loc := range cands[1:] {
			if loc.Population > cands[best].Population {
				best = i + 1
			}
		}
		if err := m.Select(best); err != nil {
			return stats, err
		}
		stats.Resolved++
	}
	return stats, nil
}
