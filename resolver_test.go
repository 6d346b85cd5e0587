package toponym

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var _ Resolver = (*LabelPropResolver)(nil)
var _ Resolver = PopulationResolver{}

var (
	resolverGrid  = MustGrid(10)
	springfieldIL = pointLoc(10, "Springfield", 39.8, -89.64)
	springfieldMA = pointLoc(11, "Springfield", 42.1, -72.59)
	boston        = pointLoc(12, "Boston", 42.36, -71.06)
)

func cellOf(loc Location) int {
	lat, lng := loc.Coordinates()
	return resolverGrid.CellID(lat, lng)
}

// distLine renders a solver output line for form in c.
func distLine(t *testing.T, c *Corpus, form string, pairs ...any) string {
	t.Helper()
	id, ok := c.ToponymID(form)
	if !ok {
		t.Fatalf("no toponym %q in corpus", form)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d\t", id)
	for i := 0; i < len(pairs); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%dL %v", pairs[i], pairs[i+1])
	}
	return b.String()
}

func trainedResolver(t *testing.T, c *Corpus, distLines []string, opts ...ResolverOption) *LabelPropResolver {
	t.Helper()
	r := NewLabelPropResolver("", append([]ResolverOption{WithGrid(resolverGrid)}, opts...)...)
	if err := r.TrainFrom(strings.NewReader(strings.Join(distLines, "\n")), c); err != nil {
		t.Fatalf("TrainFrom: %v", err)
	}
	return r
}

func selected(t *testing.T, m Mention) int {
	t.Helper()
	idx, ok := m.Selected()
	if !ok {
		return NoIndex
	}
	return idx
}

func springfieldCorpus(t *testing.T) *Corpus {
	return buildCorpus(t, RawDocument{ID: "d", Sentences: []RawSentence{
		sent("Springfield", topo(0, "Springfield", springfieldIL, springfieldMA)),
	}})
}

func TestResolverClearWinner(t *testing.T) {
	if cellOf(springfieldIL) == cellOf(springfieldMA) {
		t.Fatal("fixture candidates share a cell")
	}
	c := springfieldCorpus(t)
	r := trainedResolver(t, c, []string{
		distLine(t, c, "Springfield", cellOf(springfieldIL), 0.1, cellOf(springfieldMA), 0.9),
	})

	stats, err := r.Disambiguate(c)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if got := selected(t, c.Mentions()[0]); got != 1 {
		t.Errorf("selected %d, want 1 (Massachusetts)", got)
	}
	if stats != (ResolveStats{Mentions: 1, Resolved: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestResolverTieKeepsFirstRegion(t *testing.T) {
	tests := []struct {
		name  string
		first Location
		other Location
		want  int
	}{
		{"illinois first", springfieldIL, springfieldMA, 0},
		{"massachusetts first", springfieldMA, springfieldIL, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := springfieldCorpus(t)
			r := trainedResolver(t, c, []string{
				distLine(t, c, "Springfield", cellOf(tt.first), 0.5, cellOf(tt.other), 0.5),
			})
			if _, err := r.Disambiguate(c); err != nil {
				t.Fatalf("Disambiguate: %v", err)
			}
			if got := selected(t, c.Mentions()[0]); got != tt.want {
				t.Errorf("selected %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolverContext(t *testing.T) {
	sameSentence := RawDocument{ID: "same", Sentences: []RawSentence{
		sent("Springfield near Boston",
			topo(0, "Springfield", springfieldIL, springfieldMA),
			topo(2, "Boston", boston)),
	}}
	otherSentence := RawDocument{ID: "other", Sentences: []RawSentence{
		sent("Springfield", topo(0, "Springfield", springfieldIL, springfieldMA)),
		sent("Boston", topo(0, "Boston", boston)),
	}}

	tests := []struct {
		name    string
		doc     RawDocument
		weights ContextWeights
		want    int
	}{
		{"same sentence default weights", sameSentence, DefaultContextWeights(), 1},
		{"same sentence ignored", sameSentence, ContextWeights{Self: 1, Document: 1}, 0},
		{"other sentence default weights", otherSentence, DefaultContextWeights(), 1},
		{"other sentence ignored", otherSentence, ContextWeights{Self: 1, SameSentence: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := buildCorpus(t, tt.doc)
			r := trainedResolver(t, c, []string{
				distLine(t, c, "Springfield", cellOf(springfieldIL), 0.6, cellOf(springfieldMA), 0.4),
				distLine(t, c, "Boston", cellOf(boston), 0.5),
			}, WithContextWeights(tt.weights))
			stats, err := r.Disambiguate(c)
			if err != nil {
				t.Fatalf("Disambiguate: %v", err)
			}
			if got := selected(t, c.Mentions()[0]); got != tt.want {
				t.Errorf("Springfield selected %d, want %d", got, tt.want)
			}
			if got := selected(t, c.Mentions()[1]); got != 0 {
				t.Errorf("Boston selected %d, want 0", got)
			}
			if stats.Resolved != 2 {
				t.Errorf("stats = %+v", stats)
			}
		})
	}
}

func TestResolverNoCompatibleRegion(t *testing.T) {
	tp := topo(0, "Springfield", springfieldIL, springfieldMA)
	tp.SelectedIdx = 0
	c := buildCorpus(t, RawDocument{ID: "d", Sentences: []RawSentence{sent("Springfield", tp)}})
	r := trainedResolver(t, c, []string{
		distLine(t, c, "Springfield", cellOf(boston)+1, 0.9, cellOf(parisFR), 0.8),
	})

	stats, err := r.Disambiguate(c)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if got := selected(t, c.Mentions()[0]); got != NoIndex {
		t.Errorf("selected %d, want unresolved", got)
	}
	if stats != (ResolveStats{Mentions: 1, Unresolved: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestResolverSingleCandidate(t *testing.T) {
	tests := []struct {
		name  string
		lines func(c *Corpus) []string
		want  int
	}{
		{"compatible mass", func(c *Corpus) []string {
			return []string{distLine(t, c, "Boston", cellOf(springfieldIL), 0.9, cellOf(boston), 0.1)}
		}, 0},
		{"zero mass", func(c *Corpus) []string {
			return []string{distLine(t, c, "Boston", cellOf(boston), 0.0)}
		}, NoIndex},
		{"no distribution", func(c *Corpus) []string { return nil }, NoIndex},
		{"incompatible only", func(c *Corpus) []string {
			return []string{distLine(t, c, "Boston", cellOf(springfieldIL), 1.0)}
		}, NoIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := buildCorpus(t, RawDocument{ID: "d", Sentences: []RawSentence{
				sent("Boston", topo(0, "Boston", boston)),
			}})
			r := trainedResolver(t, c, tt.lines(c))
			if _, err := r.Disambiguate(c); err != nil {
				t.Fatalf("Disambiguate: %v", err)
			}
			if got := selected(t, c.Mentions()[0]); got != tt.want {
				t.Errorf("selected %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolverSkipsMentionsWithoutCandidates(t *testing.T) {
	c := buildCorpus(t, RawDocument{ID: "d", Sentences: []RawSentence{
		sent("Atlantis", topo(0, "Atlantis")),
	}})
	r := trainedResolver(t, c, nil)
	stats, err := r.Disambiguate(c)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if stats != (ResolveStats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestResolverTrainsOnFirstUse(t *testing.T) {
	c := springfieldCorpus(t)
	path := filepath.Join(t.TempDir(), "labels.txt")
	line := distLine(t, c, "Springfield", cellOf(springfieldMA), 0.7)
	if err := os.WriteFile(path, []byte(line+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewLabelPropResolver(path, WithGrid(resolverGrid))
	if r.Trained() {
		t.Fatal("new resolver reports trained")
	}
	if _, err := r.Disambiguate(c); err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if !r.Trained() {
		t.Error("resolver did not train on first use")
	}
	if got := selected(t, c.Mentions()[0]); got != 1 {
		t.Errorf("selected %d, want 1", got)
	}
}

func TestResolverTrainErrors(t *testing.T) {
	c := springfieldCorpus(t)

	if _, err := NewLabelPropResolver("").Disambiguate(c); !errors.Is(err, ErrNotTrained) {
		t.Errorf("untrained without a file: %v, want ErrNotTrained", err)
	}
	if err := NewLabelPropResolver(filepath.Join(t.TempDir(), "missing")).Train(c); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v, want ErrNotExist", err)
	}

	r := NewLabelPropResolver("")
	if err := r.TrainFrom(strings.NewReader("0\t1L"), c); !errors.Is(err, ErrMalformedLine) {
		t.Errorf("malformed file: %v, want ErrMalformedLine", err)
	}
	if r.Trained() {
		t.Error("failed training left the resolver trained")
	}

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		w := DefaultContextWeights()
		w.Document = bad
		r = NewLabelPropResolver("", WithContextWeights(w))
		if err := r.TrainFrom(strings.NewReader(""), c); err == nil {
			t.Errorf("expected an error for document weight %v", bad)
		}
	}
}

func TestResolverAcrossCorpora(t *testing.T) {
	train := springfieldCorpus(t)
	r := trainedResolver(t, train, []string{
		distLine(t, train, "Springfield", cellOf(springfieldMA), 0.7),
	})

	// Springfield has a different lexicon id here.
	other := buildCorpus(t, RawDocument{ID: "x", Sentences: []RawSentence{
		sent("Atlantis and Springfield", topo(0, "Atlantis"), topo(2, "Springfield", springfieldIL, springfieldMA)),
	}})
	if _, err := r.Disambiguate(other); err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if got := selected(t, other.Mentions()[1]); got != 1 {
		t.Errorf("selected %d, want 1", got)
	}
}

// syntheticCorpus builds documents whose mentions draw from a pool of
// toponym types with several candidates each, plus random distributions.
func syntheticCorpus(t testing.TB, docs, sentences, mentions, types int, seed int64) (*Corpus, []string) {
	rng := rand.New(rand.NewSource(seed))
	cands := make([][]Location, types)
	for i := range cands {
		for j := 0; j < 3; j++ {
			id := i*3 + j
			cands[i] = append(cands[i], pointLoc(id, fmt.Sprintf("place%d", id), rng.Float64()*170-85, rng.Float64()*350-175))
		}
	}

	raw := make([]RawDocument, docs)
	for d := range raw {
		raw[d].ID = fmt.Sprintf("doc%d", d)
		for s := 0; s < sentences; s++ {
			var rs RawSentence
			for m := 0; m < mentions; m++ {
				ty := rng.Intn(types)
				form := fmt.Sprintf("T%d", ty)
				rs.Tokens = append(rs.Tokens, form)
				rs.Toponyms = append(rs.Toponyms, NewRawToponym(m, m+1, form, cands[ty]))
			}
			raw[d].Sentences = append(raw[d].Sentences, rs)
		}
	}
	c := buildCorpus(t, raw...)

	var out []string
	for id, form := range c.ToponymForms() {
		var b strings.Builder
		fmt.Fprintf(&b, "%d\t", id)
		ty := 0
		fmt.Sscanf(form, "T%d", &ty)
		for j, loc := range cands[ty] {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%dL %.4f", cellOf(loc), rng.Float64())
		}
		out = append(out, b.String())
	}
	return c, out
}

func TestResolverSelectsHeaviestCompatibleRegion(t *testing.T) {
	c, dist := syntheticCorpus(t, 5, 10, 6, 40, 1)
	r := NewLabelPropResolver("", WithGrid(resolverGrid))
	if err := r.TrainFrom(strings.NewReader(strings.Join(dist, "\n")), c); err != nil {
		t.Fatalf("TrainFrom: %v", err)
	}
	stats, err := r.Disambiguate(c)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if stats.Resolved+stats.Unresolved != stats.Mentions {
		t.Errorf("stats do not add up: %+v", stats)
	}

	// With unit context weights every distinct ambiguous type of a document
	// contributes its distribution once to each of its mentions.
	const tolerance = 1e-9
	for _, doc := range c.Documents() {
		mass := make(map[int]float64)
		seen := make(map[string]bool)
		for _, m := range doc.Mentions() {
			if seen[m.Form()] {
				continue
			}
			seen[m.Form()] = true
			for _, rw := range r.byForm[m.Form()] {
				mass[rw.Region] += rw.Weight
			}
		}

		for _, m := range doc.Mentions() {
			firstOverlap := func(region int) int {
				for i, loc := range m.Candidates() {
					if resolverGrid.Contains(region, loc) {
						return i
					}
				}
				return NoIndex
			}
			best := 0.0
			for region, w := range mass {
				if w > best && firstOverlap(region) != NoIndex {
					best = w
				}
			}

			got := selected(t, m)
			if best == 0 {
				if got != NoIndex {
					t.Errorf("%s in %s: selected %d with no compatible mass", m.Form(), doc.ID(), got)
				}
				continue
			}
			matched := false
			for region, w := range mass {
				if math.Abs(w-best) <= tolerance && firstOverlap(region) == got {
					matched = true
					break
				}
			}
			if !matched {
				t.Errorf("%s in %s: selected %d is not the first candidate of a heaviest compatible region (mass %v)",
					m.Form(), doc.ID(), got, best)
			}
		}
	}
}

func TestResolverIsRepeatable(t *testing.T) {
	c, dist := syntheticCorpus(t, 3, 5, 4, 20, 2)
	r := NewLabelPropResolver("", WithGrid(resolverGrid))
	if err := r.TrainFrom(strings.NewReader(strings.Join(dist, "\n")), c); err != nil {
		t.Fatalf("TrainFrom: %v", err)
	}

	first, err := r.Disambiguate(c)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	before := append([]int32(nil), c.selected...)
	second, err := r.Disambiguate(c)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if first != second {
		t.Errorf("stats changed: %+v then %+v", first, second)
	}
	for i := range before {
		if before[i] != c.selected[i] {
			t.Fatalf("mention %d changed from %d to %d", i, before[i], c.selected[i])
		}
	}
}

func TestResolverScalesWithManyMentions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scaling test in short mode")
	}
	// One document with 4000 ambiguous mentions over 300 types.
	c, dist := syntheticCorpus(t, 1, 200, 20, 300, 3)
	r := NewLabelPropResolver("", WithGrid(resolverGrid))
	if err := r.TrainFrom(strings.NewReader(strings.Join(dist, "\n")), c); err != nil {
		t.Fatalf("TrainFrom: %v", err)
	}
	stats, err := r.Disambiguate(c)
	if err != nil {
		t.Fatalf("Disambiguate: %v", err)
	}
	if stats.Mentions != 4000 {
		t.Errorf("Mentions = %d, want 4000", stats.Mentions)
	}
	if stats.Resolved == 0 {
		t.Error("nothing was resolved")
	}
}

func BenchmarkLabelPropDisambiguate(b *testing.B) {
	c, dist := syntheticCorpus(b, 10, 50, 10, 200, 4)
	r := NewLabelPropResolver("", WithGrid(resolverGrid))
	if err := r.TrainFrom(strings.NewReader(strings.Join(dist, "\n")), c); err != nil {
		b.Fatalf("TrainFrom: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Disambiguate(c); err != nil {
			b.Fatal(err)
		}
	}
}
