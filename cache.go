package toponym

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// locationGob is the gob representation of a Location; Region is an
// interface and is flattened to its bounds.
type locationGob struct {
	ID         int
	Name       string
	Type       string
	Population int
	Point      bool
	MinLat     float64
	MinLng     float64
	MaxLat     float64
	MaxLng     float64
}

func toLocationGob(l Location) locationGob {
	g := locationGob{
		ID:         l.ID,
		Name:       l.Name,
		Type:       string(l.Type),
		Population: l.Population,
	}
	if l.Region == nil {
		g.Point = true
		return g
	}
	_, g.Point = l.Region.(PointRegion)
	b := l.Region.Bounds()
	g.MinLat, g.MinLng = b.Lo().Lat.Degrees(), b.Lo().Lng.Degrees()
	g.MaxLat, g.MaxLng = b.Hi().Lat.Degrees(), b.Hi().Lng.Degrees()
	return g
}

func (g locationGob) location() Location {
	l := Location{
		ID:         g.ID,
		Name:       g.Name,
		Type:       LocationType(g.Type),
		Population: g.Population,
	}
	if g.Point {
		l.Region = NewPointRegion(g.MinLat, g.MinLng)
	} else {
		l.Region = NewRectRegion(g.MinLat, g.MinLng, g.MaxLat, g.MaxLng)
	}
	return l
}

func toLocationGobs(locs []Location) []locationGob {
	out := make([]locationGob, len(locs))
	for i, l := range locs {
		out[i] = toLocationGob(l)
	}
	return out
}

func fromLocationGobs(gobs []locationGob) []Location {
	out := make([]Location, len(gobs))
	for i, g := range gobs {
		out[i] = g.location()
	}
	return out
}

type gazetteerGob struct {
	Locations []locationGob
	NameIndex map[string][]int
}

// SaveGazetteer writes g to path as gob, gzip-compressed when path ends in
// ".gz".
func SaveGazetteer(path string, g *MemoryGazetteer) error {
	return writeCache(path, gazetteerGob{
		Locations: toLocationGobs(g.locations),
		NameIndex: g.nameIndex,
	})
}

// LoadGazetteerCache reads a gazetteer written by SaveGazetteer. Files ending
// in ".gz" or ".bz2" are decompressed, and path+".bz2" is tried when path
// itself does not exist.
func LoadGazetteerCache(path string, opts ...GazetteerOption) (*MemoryGazetteer, error) {
	var gg gazetteerGob
	if err := readCache(path, &gg); err != nil {
		return nil, err
	}

	g := NewMemoryGazetteer(opts...)
	g.locations = fromLocationGobs(gg.Locations)
	for i, l := range g.locations {
		if _, dup := g.byID[l.ID]; dup {
			return nil, fmt.Errorf("gazetteer cache %s: duplicate location id %d", path, l.ID)
		}
		g.byID[l.ID] = i
	}
	for name, indices := range gg.NameIndex {
		for _, idx := range indices {
			if idx < 0 || idx >= len(g.locations) {
				return nil, fmt.Errorf("gazetteer cache %s: name %q -> location %d: %w", path, name, idx, ErrOutOfRange)
			}
		}
		g.nameIndex[name] = indices
	}
	logger().Info("loaded gazetteer cache", "path", path, "locations", g.Len())
	return g, nil
}

type spanGob struct {
	Start, End, Toponym, Gold int32
}

type corpusGob struct {
	Tokens        []string
	TokenCounts   []int
	Toponyms      []string
	ToponymCounts []int
	Candidates    [][]locationGob
	DocIDs        []string
	DocSents      []int32
	SentTokens    []int32
	SentSpans     []int32
	TokenIDs      []int32
	Spans         []spanGob
	Selected      []int32
}

// SaveCorpus writes a compacted corpus, selections included, to path.
func SaveCorpus(path string, c *Corpus) error {
	cg := corpusGob{
		Tokens:        c.tokens.lookup,
		TokenCounts:   c.tokens.counts,
		Toponyms:      c.toponyms.lookup,
		ToponymCounts: c.toponyms.counts,
		Candidates:    make([][]locationGob, len(c.candidates)),
		DocIDs:        c.docIDs,
		DocSents:      c.docSents,
		SentTokens:    c.sentTokens,
		SentSpans:     c.sentSpans,
		TokenIDs:      c.tokenIDs,
		Spans:         make([]spanGob, len(c.spans)),
		Selected:      c.selected,
	}
	for i, cands := range c.candidates {
		cg.Candidates[i] = toLocationGobs(cands)
	}
	for i, sp := range c.spans {
		cg.Spans[i] = spanGob{Start: sp.start, End: sp.end, Toponym: sp.toponym, Gold: sp.gold}
	}
	return writeCache(path, cg)
}

// LoadCorpusCache reads a corpus written by SaveCorpus. The result is an
// already-built Corpus.
func LoadCorpusCache(path string) (*Corpus, error) {
	var cg corpusGob
	if err := readCache(path, &cg); err != nil {
		return nil, err
	}

	tokens, err := restoreLexicon(cg.Tokens, cg.TokenCounts)
	if err != nil {
		return nil, fmt.Errorf("corpus cache %s: tokens: %w", path, err)
	}
	toponyms, err := restoreLexicon(cg.Toponyms, cg.ToponymCounts)
	if err != nil {
		return nil, fmt.Errorf("corpus cache %s: toponyms: %w", path, err)
	}

	c := &Corpus{
		tokens:     tokens,
		toponyms:   toponyms,
		candidates: make([][]Location, len(cg.Candidates)),
		docIDs:     cg.DocIDs,
		docSents:   cg.DocSents,
		sentTokens: cg.SentTokens,
		sentSpans:  cg.SentSpans,
		tokenIDs:   cg.TokenIDs,
		spans:      make([]span, len(cg.Spans)),
		selected:   cg.Selected,
	}
	for i, cands := range cg.Candidates {
		c.candidates[i] = fromLocationGobs(cands)
	}
	for i, sp := range cg.Spans {
		c.spans[i] = span{start: sp.Start, end: sp.End, toponym: sp.Toponym, gold: sp.Gold}
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("corpus cache %s: %w", path, err)
	}
	c.compact()
	return c, nil
}

// validate checks the offset tables of a corpus restored from disk, so that
// no view can slice outside them.
func (c *Corpus) validate() error {
	if len(c.docSents) != len(c.docIDs)+1 {
		return fmt.Errorf("%d documents but %d sentence offsets", len(c.docIDs), len(c.docSents))
	}
	if len(c.sentTokens) == 0 || len(c.sentSpans) != len(c.sentTokens) {
		return fmt.Errorf("inconsistent sentence offsets")
	}
	numSents := len(c.sentTokens) - 1
	if err := checkOffsets("document", c.docSents, numSents); err != nil {
		return err
	}
	if err := checkOffsets("token", c.sentTokens, len(c.tokenIDs)); err != nil {
		return err
	}
	if err := checkOffsets("span", c.sentSpans, len(c.spans)); err != nil {
		return err
	}
	if len(c.selected) != len(c.spans) {
		return fmt.Errorf("%d spans but %d selections", len(c.spans), len(c.selected))
	}
	if len(c.candidates) != c.toponyms.Len() {
		return fmt.Errorf("%d toponym types but %d candidate lists", c.toponyms.Len(), len(c.candidates))
	}
	for _, id := range c.tokenIDs {
		if int(id) < 0 || int(id) >= c.tokens.Len() {
			return fmt.Errorf("token id %d: %w", id, ErrOutOfRange)
		}
	}
	for j := 0; j < numSents; j++ {
		sentLen := c.sentTokens[j+1] - c.sentTokens[j]
		for i := c.sentSpans[j]; i < c.sentSpans[j+1]; i++ {
			sp := c.spans[i]
			if sp.start < 0 || sp.end <= sp.start || sp.end > sentLen {
				return fmt.Errorf("span %d [%d,%d) in sentence of %d tokens: %w", i, sp.start, sp.end, sentLen, ErrOutOfRange)
			}
			if int(sp.toponym) < 0 || int(sp.toponym) >= len(c.candidates) {
				return fmt.Errorf("span %d toponym id %d: %w", i, sp.toponym, ErrOutOfRange)
			}
			n := int32(len(c.candidates[sp.toponym]))
			if sp.gold < NoIndex || sp.gold >= n || c.selected[i] < NoIndex || c.selected[i] >= n {
				return fmt.Errorf("span %d: %w", i, ErrInvalidIndex)
			}
		}
	}
	return nil
}

// checkOffsets verifies that offsets start at 0, never decrease and end at
// total.
func checkOffsets(what string, offsets []int32, total int) error {
	if offsets[0] != 0 || int(offsets[len(offsets)-1]) != total {
		return fmt.Errorf("%s offsets do not cover %d entries: %w", what, total, ErrOutOfRange)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%s offset %d decreases: %w", what, i, ErrOutOfRange)
		}
	}
	return nil
}

func writeCache(path string, v any) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var zw *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zw = gzip.NewWriter(bw)
		w = zw
	}
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readCache(path string, v any) error {
	r, cleanup, err := openCompressedFile(path)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// openCompressedFile opens path, or path+".bz2" when path is missing, and
// wraps it in a decompressor chosen by extension.
func openCompressedFile(path string) (io.Reader, func() error, error) {
	fh, err := os.Open(path)
	if err != nil {
		var bzErr error
		fh, bzErr = os.Open(path + ".bz2")
		if bzErr != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}
		path += ".bz2"
	}

	br := bufio.NewReader(fh)
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ".bz2"):
		return bzip2.NewReader(br), fh.Close, nil
	case strings.HasSuffix(lower, ".gz"):
		zr, err := gzip.NewReader(br)
		if err != nil {
			fh.Close()
			return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return zr, func() error {
			zr.Close()
			return fh.Close()
		}, nil
	}
	return br, fh.Close, nil
}
