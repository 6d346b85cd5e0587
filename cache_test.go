package toponym

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpusCacheRoundTrip(t *testing.T) {
	for _, name := range []string{"corpus.gob", "corpus.gob.gz"} {
		t.Run(name, func(t *testing.T) {
			c := buildCorpus(t, sampleDocs()...)
			require.NoError(t, c.Mentions()[2].Select(1))

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, SaveCorpus(path, c))

			loaded, err := LoadCorpusCache(path)
			require.NoError(t, err)

			assert.Equal(t, c.TokenForms(), loaded.TokenForms())
			assert.Equal(t, c.ToponymForms(), loaded.ToponymForms())
			assert.Equal(t, c.docIDs, loaded.docIDs)
			assert.Equal(t, c.tokenIDs, loaded.tokenIDs)
			assert.Equal(t, c.spans, loaded.spans)
			assert.Equal(t, c.selected, loaded.selected)
			require.Equal(t, c.NumMentions(), loaded.NumMentions())

			for i, m := range loaded.Mentions() {
				orig := c.Mentions()[i]
				assert.Equal(t, orig.Form(), m.Form())
				require.Equal(t, orig.Ambiguity(), m.Ambiguity())
				for j, n := 0, m.Ambiguity(); j < n; j++ {
					want, _ := orig.Candidate(j)
					got, _ := m.Candidate(j)
					assert.True(t, sameLocation(want, got), "candidate %d of mention %d", j, i)
				}
			}

			idx, ok := loaded.Mentions()[2].Selected()
			assert.True(t, ok)
			assert.Equal(t, 1, idx)

			n, err := loaded.ToponymCount(0)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestCorpusCacheEmptyCorpus(t *testing.T) {
	c := buildCorpus(t)
	path := filepath.Join(t.TempDir(), "empty.gob")
	require.NoError(t, SaveCorpus(path, c))

	loaded, err := LoadCorpusCache(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.NumDocuments())
	assert.Equal(t, 0, loaded.NumMentions())
}

func TestCorpusCacheRejectsInconsistentData(t *testing.T) {
	c := buildCorpus(t, sampleDocs()...)
	c.selected[0] = 7 // past the candidate list

	path := filepath.Join(t.TempDir(), "bad.gob")
	require.NoError(t, SaveCorpus(path, c))

	_, err := LoadCorpusCache(path)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestCorpusCacheRejectsBrokenOffsets(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(c *Corpus)
	}{
		{"span past its sentence", func(c *Corpus) { c.spans[0].end = 10 }},
		{"empty span", func(c *Corpus) { c.spans[1].end = c.spans[1].start }},
		{"decreasing token offsets", func(c *Corpus) {
			c.sentTokens[1], c.sentTokens[2] = c.sentTokens[2], c.sentTokens[1]
		}},
		{"decreasing span offsets", func(c *Corpus) { c.sentSpans[1], c.sentSpans[2] = 3, 1 }},
		{"document offsets not starting at zero", func(c *Corpus) { c.docSents[0] = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := buildCorpus(t, sampleDocs()...)
			tt.corrupt(c)

			path := filepath.Join(t.TempDir(), "bad.gob")
			require.NoError(t, SaveCorpus(path, c))

			_, err := LoadCorpusCache(path)
			assert.ErrorIs(t, err, ErrOutOfRange)
		})
	}
}

func TestCorpusCacheMissingFile(t *testing.T) {
	_, err := LoadCorpusCache(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestCorpusCacheGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.gob.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0644))
	_, err := LoadCorpusCache(path)
	assert.Error(t, err)
}
