package toponym

import "io"

// NoIndex marks an absent gold or selected candidate index.
const NoIndex = -1

// RawToponym is a place-name span as delivered by an upstream text processor.
//
// Build values with NewRawToponym. In a struct literal GoldIdx and
// SelectedIdx default to 0, which claims candidate 0 as both gold and
// selected; set them to NoIndex explicitly when they are unknown. A literal
// with no candidates and zero indexes is rejected with ErrInvalidIndex.
type RawToponym struct {
	Start, End int    // token offsets, half-open
	Form       string // surface form
	// Candidates is the gazetteer output for Form. A nil slice asks the
	// CorpusBuilder to look the form up in its gazetteer.
	Candidates  []Location
	GoldIdx     int // NoIndex when unknown
	SelectedIdx int // NoIndex when unresolved
}

// NewRawToponym creates a span with no gold or selected candidate.
func NewRawToponym(start, end int, form string, candidates []Location) RawToponym {
	return RawToponym{
		Start:       start,
		End:         end,
		Form:        form,
		Candidates:  candidates,
		GoldIdx:     NoIndex,
		SelectedIdx: NoIndex,
	}
}

// RawSentence is a tokenized sentence with its toponym spans.
type RawSentence struct {
	Tokens   []string
	Toponyms []RawToponym
}

// RawDocument is one document of a raw corpus.
type RawDocument struct {
	ID        string
	Sentences []RawSentence
}

// DocumentSource is a one-pass stream of raw documents. Next returns io.EOF
// once the stream is exhausted.
type DocumentSource interface {
	Next() (*RawDocument, error)
	Close() error
}

// SliceSource serves documents from memory.
type SliceSource struct {
	docs []RawDocument
	pos  int
}

// NewSliceSource creates a source over docs.
func NewSliceSource(docs ...RawDocument) *SliceSource {
	return &SliceSource{docs: docs}
}

func (s *SliceSource) Next() (*RawDocument, error) {
	if s.pos >= len(s.docs) {
		return nil, io.EOF
	}
	d := &s.docs[s.pos]
	s.pos++
	return d, nil
}

func (s *SliceSource) Close() error {
	s.docs = nil
	return nil
}
