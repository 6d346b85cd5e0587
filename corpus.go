package toponym

import (
	"errors"
	"fmt"
	"io"
	"slices"
)

// CorpusBuilder collects document sources and compacts them, exactly once,
// into an immutable Corpus.
type CorpusBuilder struct {
	sources   []DocumentSource
	gazetteer Gazetteer
	built     bool
}

// CorpusOption configures a CorpusBuilder.
type CorpusOption func(*CorpusBuilder)

// WithGazetteer fills in the candidates of raw toponyms that arrive without
// any (a nil Candidates slice) by looking their form up in g.
func WithGazetteer(g Gazetteer) CorpusOption {
	return func(b *CorpusBuilder) {
		b.gazetteer = g
	}
}

// NewCorpusBuilder creates an empty builder.
func NewCorpusBuilder(opts ...CorpusOption) *CorpusBuilder {
	b := &CorpusBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddSource queues a source for compaction. It fails with ErrCorpusBuilt once
// Build has run.
func (b *CorpusBuilder) AddSource(src DocumentSource) error {
	if b.built {
		return ErrCorpusBuilt
	}
	b.sources = append(b.sources, src)
	return nil
}

// Build drains every source in order, closes them and returns the compacted
// corpus. A builder can only be built once.
func (b *CorpusBuilder) Build() (c *Corpus, err error) {
	if b.built {
		return nil, ErrCorpusBuilt
	}
	b.built = true

	sources := b.sources
	b.sources = nil
	defer func() {
		for _, src := range sources {
			if cerr := src.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("closing source: %w", cerr))
			}
		}
		if err != nil {
			c = nil
		}
	}()

	c = newCorpus()
	for i, src := range sources {
		for {
			raw, err := src.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("reading source %d: %w", i, err)
			}
			if err := b.addDocument(c, raw); err != nil {
				return nil, err
			}
		}
	}
	c.compact()

	logger().Info("compacted corpus",
		"documents", c.NumDocuments(),
		"sentences", c.NumSentences(),
		"tokens", len(c.tokenIDs),
		"token_types", c.tokens.Len(),
		"mentions", len(c.spans),
		"toponym_types", c.toponyms.Len())
	return c, nil
}

func (b *CorpusBuilder) addDocument(c *Corpus, raw *RawDocument) error {
	c.docIDs = append(c.docIDs, raw.ID)
	for si, sent := range raw.Sentences {
		for _, tok := range sent.Tokens {
			c.tokenIDs = append(c.tokenIDs, int32(c.tokens.GetOrAdd(tok)))
		}
		for _, tp := range sent.Toponyms {
			if err := b.addToponym(c, tp, len(sent.Tokens)); err != nil {
				return fmt.Errorf("document %q sentence %d toponym %q: %w", raw.ID, si, tp.Form, err)
			}
		}
		c.sentTokens = append(c.sentTokens, int32(len(c.tokenIDs)))
		c.sentSpans = append(c.sentSpans, int32(len(c.spans)))
	}
	c.docSents = append(c.docSents, int32(len(c.sentTokens)-1))
	return nil
}

func (b *CorpusBuilder) addToponym(c *Corpus, tp RawToponym, numTokens int) error {
	if tp.Start < 0 || tp.End <= tp.Start || tp.End > numTokens {
		return fmt.Errorf("span [%d,%d) in sentence of %d tokens: %w", tp.Start, tp.End, numTokens, ErrOutOfRange)
	}

	id := c.toponyms.GetOrAdd(tp.Form)
	if id == len(c.candidates) {
		// First occurrence of the form fixes its candidate list.
		candidates := tp.Candidates
		if candidates == nil && b.gazetteer != nil {
			found, err := b.gazetteer.Lookup(tp.Form)
			if err != nil {
				return fmt.Errorf("gazetteer lookup: %w", err)
			}
			candidates = found
		}
		c.candidates = append(c.candidates, slices.Clip(slices.Clone(candidates)))
	}

	n := len(c.candidates[id])
	if tp.GoldIdx != NoIndex && (tp.GoldIdx < 0 || tp.GoldIdx >= n) {
		return fmt.Errorf("gold index %d of %d candidates: %w", tp.GoldIdx, n, ErrInvalidIndex)
	}
	if tp.SelectedIdx != NoIndex && (tp.SelectedIdx < 0 || tp.SelectedIdx >= n) {
		return fmt.Errorf("selected index %d of %d candidates: %w", tp.SelectedIdx, n, ErrInvalidIndex)
	}

	c.spans = append(c.spans, span{
		start:   int32(tp.Start),
		end:     int32(tp.End),
		toponym: int32(id),
		gold:    int32(tp.GoldIdx),
	})
	c.selected = append(c.selected, int32(tp.SelectedIdx))
	return nil
}

// span is the compact form of one toponym mention.
type span struct {
	start, end int32
	toponym    int32 // toponym lexicon id
	gold       int32 // NoIndex when unknown
}

// Corpus is a compacted, array-backed corpus. Everything except the selected
// candidate of each mention is read-only once built.
//
// Documents, sentences and mentions are addressed through lightweight views
// (Document, Sentence, Mention) that hold a pointer back to the corpus and
// an index into its arrays.
type Corpus struct {
	tokens     *Lexicon
	toponyms   *Lexicon
	candidates [][]Location // toponym id -> candidates

	docIDs     []string
	docSents   []int32 // document i owns sentences [docSents[i], docSents[i+1])
	sentTokens []int32 // sentence j owns tokenIDs [sentTokens[j], sentTokens[j+1])
	sentSpans  []int32 // sentence j owns spans [sentSpans[j], sentSpans[j+1])
	tokenIDs   []int32
	spans      []span
	selected   []int32 // parallel to spans, NoIndex when unresolved
}

func newCorpus() *Corpus {
	return &Corpus{
		tokens:     NewLexicon(1024),
		toponyms:   NewLexicon(64),
		docSents:   []int32{0},
		sentTokens: []int32{0},
		sentSpans:  []int32{0},
	}
}

func (c *Corpus) compact() {
	c.tokens.compact()
	c.toponyms.compact()
	c.candidates = slices.Clip(c.candidates)
	c.docIDs = slices.Clip(c.docIDs)
	c.docSents = slices.Clip(c.docSents)
	c.sentTokens = slices.Clip(c.sentTokens)
	c.sentSpans = slices.Clip(c.sentSpans)
	c.tokenIDs = slices.Clip(c.tokenIDs)
	c.spans = slices.Clip(c.spans)
	c.selected = slices.Clip(c.selected)
}

// NumDocuments returns the number of documents.
func (c *Corpus) NumDocuments() int { return len(c.docIDs) }

// NumSentences returns the number of sentences across all documents.
func (c *Corpus) NumSentences() int { return len(c.sentTokens) - 1 }

// NumMentions returns the number of toponym mentions.
func (c *Corpus) NumMentions() int { return len(c.spans) }

// Document returns the i'th document. It panics if i is out of range.
func (c *Corpus) Document(i int) Document {
	_ = c.docIDs[i]
	return Document{c: c, idx: i}
}

// Documents returns every document in order.
func (c *Corpus) Documents() []Document {
	docs := make([]Document, len(c.docIDs))
	for i := range docs {
		docs[i] = Document{c: c, idx: i}
	}
	return docs
}

// Mentions returns every mention in document order.
func (c *Corpus) Mentions() []Mention {
	return c.mentionRange(0, len(c.spans))
}

func (c *Corpus) mentionRange(lo, hi int) []Mention {
	out := make([]Mention, hi-lo)
	for i := range out {
		out[i] = Mention{c: c, idx: lo + i}
	}
	return out
}

// TokenForms returns the token lexicon in id order.
func (c *Corpus) TokenForms() []string { return c.tokens.Strings() }

// TokenForm returns the surface form of a token id.
func (c *Corpus) TokenForm(id int) (string, error) { return c.tokens.AtIndex(id) }

// NumToponymTypes returns the number of distinct toponym forms.
func (c *Corpus) NumToponymTypes() int { return c.toponyms.Len() }

// ToponymForms returns the toponym lexicon in id order.
func (c *Corpus) ToponymForms() []string { return c.toponyms.Strings() }

// ToponymForm returns the surface form of a toponym id.
func (c *Corpus) ToponymForm(id int) (string, error) { return c.toponyms.AtIndex(id) }

// ToponymID returns the lexicon id of a toponym form.
func (c *Corpus) ToponymID(form string) (int, bool) { return c.toponyms.Lookup(form) }

// ToponymCount returns how many mentions share the toponym id.
func (c *Corpus) ToponymCount(id int) (int, error) { return c.toponyms.CountAt(id) }

// Candidates returns a copy of the candidate list of a toponym id.
func (c *Corpus) Candidates(toponymID int) ([]Location, error) {
	if toponymID < 0 || toponymID >= len(c.candidates) {
		return nil, fmt.Errorf("toponym id %d: %w", toponymID, ErrOutOfRange)
	}
	return slices.Clone(c.candidates[toponymID]), nil
}

// Document is a view of one corpus document.
type Document struct {
	c   *Corpus
	idx int
}

// ID returns the document identifier.
func (d Document) ID() string { return d.c.docIDs[d.idx] }

// Index returns the position of the document in the corpus.
func (d Document) Index() int { return d.idx }

// NumSentences returns the number of sentences in the document.
func (d Document) NumSentences() int {
	return int(d.c.docSents[d.idx+1] - d.c.docSents[d.idx])
}

// Sentence returns the i'th sentence of the document. It panics if i is out
// of range.
func (d Document) Sentence(i int) Sentence {
	if i < 0 || i >= d.NumSentences() {
		panic(fmt.Sprintf("toponym: sentence %d of document %q with %d sentences", i, d.ID(), d.NumSentences()))
	}
	return Sentence{c: d.c, doc: d.idx, idx: int(d.c.docSents[d.idx]) + i}
}

// Sentences returns the sentences of the document in order.
func (d Document) Sentences() []Sentence {
	lo, hi := int(d.c.docSents[d.idx]), int(d.c.docSents[d.idx+1])
	out := make([]Sentence, hi-lo)
	for i := range out {
		out[i] = Sentence{c: d.c, doc: d.idx, idx: lo + i}
	}
	return out
}

// Mentions returns the mentions of the document in order.
func (d Document) Mentions() []Mention {
	lo := d.c.docSents[d.idx]
	hi := d.c.docSents[d.idx+1]
	return d.c.mentionRange(int(d.c.sentSpans[lo]), int(d.c.sentSpans[hi]))
}

// Sentence is a view of one corpus sentence.
type Sentence struct {
	c   *Corpus
	doc int // owning document index
	idx int // global sentence index
}

// Document returns the owning document.
func (s Sentence) Document() Document { return Document{c: s.c, idx: s.doc} }

// Index returns the position of the sentence within its document.
func (s Sentence) Index() int { return s.idx - int(s.c.docSents[s.doc]) }

// Len returns the number of tokens.
func (s Sentence) Len() int {
	return int(s.c.sentTokens[s.idx+1] - s.c.sentTokens[s.idx])
}

// TokenIDs returns the token lexicon ids of the sentence.
func (s Sentence) TokenIDs() []int {
	ids := s.c.tokenIDs[s.c.sentTokens[s.idx]:s.c.sentTokens[s.idx+1]]
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

// Tokens returns the surface forms of the sentence's tokens.
func (s Sentence) Tokens() []string {
	ids := s.c.tokenIDs[s.c.sentTokens[s.idx]:s.c.sentTokens[s.idx+1]]
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.c.tokens.mustAt(int(id))
	}
	return out
}

// Mentions returns the toponym mentions of the sentence in order.
func (s Sentence) Mentions() []Mention {
	return s.c.mentionRange(int(s.c.sentSpans[s.idx]), int(s.c.sentSpans[s.idx+1]))
}

// Mention is a view of one toponym occurrence: the pair of its corpus and
// its position in the corpus's span table.
type Mention struct {
	c   *Corpus
	idx int
}

// Index returns the position of the mention in the corpus.
func (m Mention) Index() int { return m.idx }

// Span returns the half-open token range of the mention within its sentence.
func (m Mention) Span() (start, end int) {
	sp := m.c.spans[m.idx]
	return int(sp.start), int(sp.end)
}

// ToponymID returns the toponym lexicon id of the mention's form.
func (m Mention) ToponymID() int { return int(m.c.spans[m.idx].toponym) }

// Form returns the surface form.
func (m Mention) Form() string { return m.c.toponyms.mustAt(m.ToponymID()) }

func (m Mention) candidates() []Location { return m.c.candidates[m.ToponymID()] }

// Candidates returns a copy of the candidate locations.
func (m Mention) Candidates() []Location { return slices.Clone(m.candidates()) }

// Candidate returns the i'th candidate.
func (m Mention) Candidate(i int) (Location, error) {
	cands := m.candidates()
	if i < 0 || i >= len(cands) {
		return Location{}, fmt.Errorf("candidate %d of %q (%d candidates): %w", i, m.Form(), len(cands), ErrInvalidIndex)
	}
	return cands[i], nil
}

// Ambiguity returns the number of candidates.
func (m Mention) Ambiguity() int { return len(m.candidates()) }

// Gold returns the index of the correct candidate, if known.
func (m Mention) Gold() (int, bool) {
	g := int(m.c.spans[m.idx].gold)
	return g, g != NoIndex
}

// GoldLocation returns the correct candidate, if known.
func (m Mention) GoldLocation() (Location, bool) {
	g, ok := m.Gold()
	if !ok {
		return Location{}, false
	}
	return m.candidates()[g], true
}

// Selected returns the index of the selected candidate, if any.
func (m Mention) Selected() (int, bool) {
	s := int(m.c.selected[m.idx])
	return s, s != NoIndex
}

// SelectedLocation returns the selected candidate, if any.
func (m Mention) SelectedLocation() (Location, bool) {
	s, ok := m.Selected()
	if !ok {
		return Location{}, false
	}
	return m.candidates()[s], true
}

// Select commits candidate i as the mention's resolution. Passing NoIndex
// marks the mention unresolved.
func (m Mention) Select(i int) error {
	if i != NoIndex && (i < 0 || i >= m.Ambiguity()) {
		return fmt.Errorf("select candidate %d of %q (%d candidates): %w", i, m.Form(), m.Ambiguity(), ErrInvalidIndex)
	}
	m.c.selected[m.idx] = int32(i)
	return nil
}
