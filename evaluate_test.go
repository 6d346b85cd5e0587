package toponym

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	withGold := func(tp RawToponym, gold int) RawToponym {
		tp.GoldIdx = gold
		return tp
	}
	c := buildCorpus(t, RawDocument{ID: "d", Sentences: []RawSentence{
		sent("Paris Paris Paris Lyon Atlantis",
			withGold(topo(0, "Paris", parisFR, parisTX), 0),
			withGold(topo(1, "Paris", parisFR, parisTX), 1),
			withGold(topo(2, "Paris", parisFR, parisTX), 0),
			topo(3, "Lyon", lyon),
			topo(4, "Atlantis"),
		),
	}})
	ms := c.Mentions()

	e := Evaluate(c)
	assert.Equal(t, Evaluation{Mentions: 4, WithGold: 3}, e)
	assert.Zero(t, e.Precision())
	assert.Zero(t, e.Recall())
	assert.Zero(t, e.F1())

	require.NoError(t, ms[0].Select(0)) // correct
	require.NoError(t, ms[1].Select(0)) // wrong
	require.NoError(t, ms[3].Select(0)) // no gold

	e = Evaluate(c)
	assert.Equal(t, 4, e.Mentions)
	assert.Equal(t, 3, e.WithGold)
	assert.Equal(t, 2, e.Resolved)
	assert.Equal(t, 1, e.Correct)
	assert.InDelta(t, 0.5, e.Precision(), 1e-12)
	assert.InDelta(t, 1.0/3, e.Recall(), 1e-12)
	assert.InDelta(t, 0.4, e.F1(), 1e-12)
	assert.Contains(t, e.String(), "correct=1")
}

func TestPopulationResolver(t *testing.T) {
	big := pointLoc(1, "Springfield", 39.8, -89.64)
	big.Population = 114394
	small := pointLoc(2, "Springfield", 42.1, -72.59)
	small.Population = 15000
	tieA := pointLoc(3, "Twin", 10, 10)
	tieA.Population = 500
	tieB := pointLoc(4, "Twin", 20, 20)
	tieB.Population = 500

	c := buildCorpus(t, RawDocument{ID: "d", Sentences: []RawSentence{
		sent("Springfield Twin Atlantis", topo(0, "Springfield", small, big), topo(1, "Twin", tieA, tieB), topo(2, "Atlantis")),
	}})

	var r Resolver = PopulationResolver{}
	require.NoError(t, r.Train(c))
	stats, err := r.Disambiguate(c)
	require.NoError(t, err)
	assert.Equal(t, ResolveStats{Mentions: 2, Resolved: 2}, stats)

	ms := c.Mentions()
	idx, _ := ms[0].Selected()
	assert.Equal(t, 1, idx, "most populous candidate")
	idx, _ = ms[1].Selected()
	assert.Equal(t, 0, idx, "lowest index on ties")
	_, ok := ms[2].Selected()
	assert.False(t, ok, "mention without candidates stays unresolved")
}
