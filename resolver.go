package toponym

import (
	"fmt"
	"io"
	"os"
)

// Resolver chooses one candidate for each ambiguous mention of a corpus.
//
// Implementations: LabelPropResolver and PopulationResolver.
type Resolver interface {
	// Train prepares the resolver for the toponym types of c.
	Train(c *Corpus) error
	// Disambiguate commits a selected candidate for every mention it can
	// resolve. It is repeatable: the same inputs give the same selections.
	Disambiguate(c *Corpus) (ResolveStats, error)
}

// ResolveStats summarises a Disambiguate pass.
type ResolveStats struct {
	Mentions   int // mentions with at least one candidate
	Resolved   int
	Unresolved int
}

// ContextWeights weights the toponym types that make up a mention's context.
type ContextWeights struct {
	Self         float64 `yaml:"self"          env:"TOPONYM_CONTEXT_SELF"          env-default:"1.0"`
	SameSentence float64 `yaml:"same_sentence" env:"TOPONYM_CONTEXT_SAME_SENTENCE" env-default:"1.0"`
	Document     float64 `yaml:"document"      env:"TOPONYM_CONTEXT_DOCUMENT"      env-default:"1.0"`
}

// DefaultContextWeights weights every context toponym 1.0.
func DefaultContextWeights() ContextWeights {
	return ContextWeights{Self: 1.0, SameSentence: 1.0, Document: 1.0}
}

func (w ContextWeights) validate() error {
	if !validWeight(w.Self) || !validWeight(w.SameSentence) || !validWeight(w.Document) {
		return fmt.Errorf("context weights must be finite and not negative: %+v", w)
	}
	return nil
}

// LabelPropResolver resolves mentions from the region distributions computed
// by a label propagation solver over the graph written by GraphBuilder.
//
// For each ambiguous mention, the distributions of the mention's own toponym
// type, of the other ambiguous types in its sentence and of the remaining
// ambiguous types in its document are summed with their context weights.
// The heaviest region that overlaps one of the mention's candidates wins,
// and that candidate is selected. Ties go to the region seen first.
type LabelPropResolver struct {
	path    string
	grid    Grid
	weights ContextWeights

	// Trained state: distributions keyed by toponym form, so that a resolver
	// trained on one corpus can disambiguate another.
	byForm map[string][]RegionWeight
}

// ResolverOption configures a LabelPropResolver.
type ResolverOption func(*LabelPropResolver)

// WithGrid sets the grid that region ids refer to. It must match the grid the
// propagation graph was built with.
func WithGrid(g Grid) ResolverOption {
	return func(r *LabelPropResolver) {
		r.grid = g
	}
}

// WithContextWeights overrides the default context weights.
func WithContextWeights(w ContextWeights) ResolverOption {
	return func(r *LabelPropResolver) {
		r.weights = w
	}
}

// NewLabelPropResolver creates a resolver that trains from the solver output
// at distributionPath. The path may be empty when the resolver is trained
// with TrainFrom.
func NewLabelPropResolver(distributionPath string, opts ...ResolverOption) *LabelPropResolver {
	r := &LabelPropResolver{
		path:    distributionPath,
		grid:    MustGrid(DefaultDPC),
		weights: DefaultContextWeights(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trained reports whether distributions have been loaded.
func (r *LabelPropResolver) Trained() bool { return r.byForm != nil }

// Train loads the distribution file for the toponym types of c.
func (r *LabelPropResolver) Train(c *Corpus) error {
	if r.path == "" {
		return fmt.Errorf("train: no distribution file: %w", ErrNotTrained)
	}
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	defer f.Close()
	return r.TrainFrom(f, c)
}

// TrainFrom loads distributions from solver output read from rd.
func (r *LabelPropResolver) TrainFrom(rd io.Reader, c *Corpus) error {
	if err := r.weights.validate(); err != nil {
		return err
	}
	d, err := ParseDistributions(rd, c)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	byForm := make(map[string][]RegionWeight, d.Len())
	for id, dist := range d.byToponym {
		byForm[c.toponyms.mustAt(id)] = dist
	}
	r.byForm = byForm
	logger().Info("loaded region distributions", "toponym_types", len(byForm), "corpus_types", c.NumToponymTypes())
	return nil
}

// Disambiguate resolves every ambiguous mention of c, training on c first
// when the resolver is untrained. Mentions with no compatible region are
// logged and marked unresolved.
func (r *LabelPropResolver) Disambiguate(c *Corpus) (ResolveStats, error) {
	var stats ResolveStats
	if !r.Trained() {
		if err := r.Train(c); err != nil {
			return stats, err
		}
	}

	dists := make([][]RegionWeight, c.NumToponymTypes())
	for id, form := range c.toponyms.lookup {
		dists[id] = r.byForm[form]
	}
	s := &resolveState{
		r:       r,
		dists:   dists,
		inCtx:   make([]bool, c.NumToponymTypes()),
		regions: make(map[int]int),
	}

	for _, doc := range c.Documents() {
		if err := s.resolveDocument(doc, &stats); err != nil {
			return stats, err
		}
	}
	logger().Info("disambiguated corpus",
		"mentions", stats.Mentions,
		"resolved", stats.Resolved,
		"unresolved", stats.Unresolved)
	return stats, nil
}

// resolveState holds the scratch buffers reused across mentions.
type resolveState struct {
	r     *LabelPropResolver
	dists [][]RegionWeight // toponym id -> distribution

	ctx   []contextEntry
	inCtx []bool // toponym id -> already in ctx

	order   []int       // region ids in accumulation order
	mass    []float64   // parallel to order
	regions map[int]int // region id -> index into order
}

type contextEntry struct {
	toponym int
	weight  float64
}

// resolveDocument collects the distinct ambiguous toponym types of each
// sentence and of the whole document once, then resolves every mention
// against them. Mentions of one type in one sentence share a context, so
// the choice is computed once per sentence and type.
func (s *resolveState) resolveDocument(doc Document, stats *ResolveStats) error {
	sentences := doc.Sentences()
	sentTypes := make([][]int, len(sentences))
	var docTypes []int
	seenDoc := make(map[int]bool)
	for i, sent := range sentences {
		seen := make(map[int]bool)
		for _, m := range sent.Mentions() {
			if m.Ambiguity() == 0 {
				continue
			}
			tid := m.ToponymID()
			if !seen[tid] {
				seen[tid] = true
				sentTypes[i] = append(sentTypes[i], tid)
			}
			if !seenDoc[tid] {
				seenDoc[tid] = true
				docTypes = append(docTypes, tid)
			}
		}
	}

	for i, sent := range sentences {
		chosen := make(map[int]int) // toponym id -> candidate index
		for _, m := range sent.Mentions() {
			if m.Ambiguity() == 0 {
				continue
			}
			stats.Mentions++

			tid := m.ToponymID()
			idx, done := chosen[tid]
			if !done {
				idx = s.choose(tid, m.candidates(), sentTypes[i], docTypes)
				chosen[tid] = idx
			}
			if err := m.Select(idx); err != nil {
				return err
			}
			if idx == NoIndex {
				stats.Unresolved++
				logger().Warn("no compatible region for toponym",
					"form", m.Form(), "document", doc.ID(), "sentence", sent.Index())
				continue
			}
			stats.Resolved++
		}
	}
	return nil
}

// choose returns the candidate index selected for a mention of toponym tid,
// or NoIndex.
func (s *resolveState) choose(tid int, candidates []Location, sentTypes, docTypes []int) int {
	w := s.r.weights
	s.ctx = s.ctx[:0]
	s.addContext(tid, w.Self)
	for _, id := range sentTypes {
		s.addContext(id, w.SameSentence)
	}
	for _, id := range docTypes {
		s.addContext(id, w.Document)
	}

	s.order = s.order[:0]
	s.mass = s.mass[:0]
	clear(s.regions)
	for _, e := range s.ctx {
		s.inCtx[e.toponym] = false
		for _, rw := range s.dists[e.toponym] {
			j, ok := s.regions[rw.Region]
			if !ok {
				j = len(s.order)
				s.regions[rw.Region] = j
				s.order = append(s.order, rw.Region)
				s.mass = append(s.mass, 0)
			}
			s.mass[j] += e.weight * rw.Weight
		}
	}

	best, bestIdx := 0.0, NoIndex
	for j, region := range s.order {
		if s.mass[j] <= best {
			continue
		}
		if idx := s.r.candidateIndex(candidates, region); idx != NoIndex {
			best, bestIdx = s.mass[j], idx
		}
	}
	return bestIdx
}

func (s *resolveState) addContext(tid int, weight float64) {
	if s.inCtx[tid] {
		return
	}
	s.inCtx[tid] = true
	s.ctx = append(s.ctx, contextEntry{toponym: tid, weight: weight})
}

// candidateIndex returns the first candidate overlapping the region's cell.
func (r *LabelPropResolver) candidateIndex(candidates []Location, region int) int {
	for i, loc := range candidates {
		if r.grid.Contains(region, loc) {
			return i
		}
	}
	return NoIndex
}
