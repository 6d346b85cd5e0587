package toponym

import (
	"fmt"
	"slices"
)

// Lexicon interns strings to dense, 0-based integer ids and counts how many
// times each string was added.
//
// Ids are assigned in insertion order and never change. A Lexicon is filled
// once while a corpus is compacted and is read-only afterwards; it is not safe
// for concurrent mutation.
type Lexicon struct {
	lookup []string       // id -> string
	index  map[string]int // string -> id
	counts []int          // id -> occurrences
}

// NewLexicon creates an empty lexicon with the given capacity hint.
func NewLexicon(capacity int) *Lexicon {
	return &Lexicon{
		lookup: make([]string, 0, capacity),
		index:  make(map[string]int, capacity),
		counts: make([]int, 0, capacity),
	}
}

// GetOrAdd returns the id for s, assigning the next id (with count 1) when s
// has not been seen before and incrementing its count otherwise.
func (l *Lexicon) GetOrAdd(s string) int {
	if id, ok := l.index[s]; ok {
		l.counts[id]++
		return id
	}
	id := len(l.lookup)
	l.lookup = append(l.lookup, s)
	l.counts = append(l.counts, 1)
	l.index[s] = id
	return id
}

// Lookup returns the id for s without modifying the lexicon.
func (l *Lexicon) Lookup(s string) (int, bool) {
	id, ok := l.index[s]
	return id, ok
}

// AtIndex returns the string assigned to id.
func (l *Lexicon) AtIndex(id int) (string, error) {
	if id < 0 || id >= len(l.lookup) {
		return "", fmt.Errorf("lexicon id %d (size %d): %w", id, len(l.lookup), ErrOutOfRange)
	}
	return l.lookup[id], nil
}

// CountAt returns how many times the string with the given id was added.
func (l *Lexicon) CountAt(id int) (int, error) {
	if id < 0 || id >= len(l.counts) {
		return 0, fmt.Errorf("lexicon id %d (size %d): %w", id, len(l.counts), ErrOutOfRange)
	}
	return l.counts[id], nil
}

// Len returns the number of distinct strings.
func (l *Lexicon) Len() int {
	return len(l.lookup)
}

// Strings returns the interned strings in id order.
func (l *Lexicon) Strings() []string {
	return slices.Clone(l.lookup)
}

// mustAt is AtIndex for ids the package assigned itself.
func (l *Lexicon) mustAt(id int) string {
	return l.lookup[id]
}

// compact drops spare capacity once the lexicon is frozen.
func (l *Lexicon) compact() {
	l.lookup = slices.Clip(l.lookup)
	l.counts = slices.Clip(l.counts)
}

// restoreLexicon rebuilds a lexicon from cached strings and counts.
func restoreLexicon(strs []string, counts []int) (*Lexicon, error) {
	if len(strs) != len(counts) {
		return nil, fmt.Errorf("lexicon has %d strings but %d counts", len(strs), len(counts))
	}
	l := NewLexicon(len(strs))
	for i, s := range strs {
		if _, dup := l.index[s]; dup {
			return nil, fmt.Errorf("duplicate lexicon entry %q", s)
		}
		l.lookup = append(l.lookup, s)
		l.counts = append(l.counts, counts[i])
		l.index[s] = i
	}
	return l, nil
}
