package toponym

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Node-name prefixes of the label propagation graph.
const (
	cellPrefix        = "cell_"
	cellLabelPrefix   = "cell_label_"
	locationPrefix    = "loc_"
	toponymTypePrefix = "tpnm_type_"
	documentPrefix    = "doc_"
	docTypeInfix      = "_type_"
	docTokenInfix     = "_tok_"
	graphFieldSep     = "\t"
	nodeNameSpecials  = "\t\n\r"
)

var nodeNameReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func sanitizeNode(s string) string {
	if !strings.ContainsAny(s, nodeNameSpecials) {
		return s
	}
	return nodeNameReplacer.Replace(s)
}

// CellNode returns the graph node name of a grid cell.
func CellNode(cell int) string { return cellPrefix + strconv.Itoa(cell) }

// CellLabelNode returns the seed label bound to a grid cell.
func CellLabelNode(cell int) string { return cellLabelPrefix + strconv.Itoa(cell) }

// LocationNode returns the graph node name of a gazetteer location.
func LocationNode(id int) string { return locationPrefix + strconv.Itoa(id) }

// ToponymTypeNode returns the graph node name of a toponym form.
func ToponymTypeNode(form string) string { return toponymTypePrefix + sanitizeNode(form) }

// DocumentNode returns the graph node name of a document.
func DocumentNode(docID string) string { return documentPrefix + sanitizeNode(docID) }

// DocTypeNode returns the document-scoped node of a toponym form.
func DocTypeNode(docID, form string) string {
	return DocumentNode(docID) + docTypeInfix + sanitizeNode(form)
}

// DocTokenNode returns the node of the n'th ambiguous mention of a document.
func DocTokenNode(docID string, n int) string {
	return DocumentNode(docID) + docTokenInfix + strconv.Itoa(n)
}

// EdgeWeights holds the weight of each kind of graph edge.
type EdgeWeights struct {
	Seed         float64 `yaml:"seed"          env:"TOPONYM_EDGE_SEED"          env-default:"1.0"`
	CellCell     float64 `yaml:"cell_cell"     env:"TOPONYM_EDGE_CELL_CELL"     env-default:"1.0"`
	LocationCell float64 `yaml:"location_cell" env:"TOPONYM_EDGE_LOCATION_CELL" env-default:"1.0"`
	TypeLocation float64 `yaml:"type_location" env:"TOPONYM_EDGE_TYPE_LOCATION" env-default:"1.0"`
	DocTypeType  float64 `yaml:"doctype_type"  env:"TOPONYM_EDGE_DOCTYPE_TYPE"  env-default:"1.0"`
	TokenDocType float64 `yaml:"token_doctype" env:"TOPONYM_EDGE_TOKEN_DOCTYPE" env-default:"1.0"`
	TokenDoc     float64 `yaml:"token_doc"     env:"TOPONYM_EDGE_TOKEN_DOC"     env-default:"1.0"`
	TokenChain   float64 `yaml:"token_chain"   env:"TOPONYM_EDGE_TOKEN_CHAIN"   env-default:"1.0"`
}

// DefaultEdgeWeights weights every edge 1.0.
func DefaultEdgeWeights() EdgeWeights {
	return EdgeWeights{
		Seed:         1.0,
		CellCell:     1.0,
		LocationCell: 1.0,
		TypeLocation: 1.0,
		DocTypeType:  1.0,
		TokenDocType: 1.0,
		TokenDoc:     1.0,
		TokenChain:   1.0,
	}
}

func (w EdgeWeights) validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"seed", w.Seed}, {"cell_cell", w.CellCell}, {"location_cell", w.LocationCell},
		{"type_location", w.TypeLocation}, {"doctype_type", w.DocTypeType},
		{"token_doctype", w.TokenDocType}, {"token_doc", w.TokenDoc}, {"token_chain", w.TokenChain},
	} {
		if !validWeight(f.v) {
			return fmt.Errorf("edge weight %s must be finite and not negative: %v", f.name, f.v)
		}
	}
	return nil
}

func validWeight(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// GraphStats counts the lines written by GraphBuilder.Write.
type GraphStats struct {
	Seeds         int
	CellEdges     int
	LocationEdges int
	TypeEdges     int
	DocTypeEdges  int
	TokenEdges    int
}

// Edges returns the total number of graph edges.
func (s GraphStats) Edges() int {
	return s.CellEdges + s.LocationEdges + s.TypeEdges + s.DocTypeEdges + s.TokenEdges
}

// GraphBuilder turns a corpus into the input files of a label propagation
// solver.
type GraphBuilder struct {
	grid    Grid
	weights EdgeWeights
}

// GraphOption configures a GraphBuilder.
type GraphOption func(*GraphBuilder)

// WithEdgeWeights overrides the default edge weights.
func WithEdgeWeights(w EdgeWeights) GraphOption {
	return func(b *GraphBuilder) {
		b.weights = w
	}
}

// NewGraphBuilder creates a builder over the given grid.
func NewGraphBuilder(grid Grid, opts ...GraphOption) *GraphBuilder {
	b := &GraphBuilder{grid: grid, weights: DefaultEdgeWeights()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// graphPlan is everything a single corpus walk collects for Write.
type graphPlan struct {
	locations   []Location // distinct candidate locations, first occurrence order
	locCells    [][]int    // parallel to locations
	types       []int      // distinct ambiguous toponym ids
	docTypes    []docTypeEdge
	tokenTypes  [][2]string // token node -> doc-type node
	tokenDocs   [][2]string // token node -> document node
	tokenChains [][2]string // previous token node -> token node
}

type docTypeEdge struct {
	docID string
	form  string
}

func (b *GraphBuilder) plan(c *Corpus) graphPlan {
	var p graphPlan
	seenLoc := make(map[int]bool)
	seenType := make([]bool, c.NumToponymTypes())

	for _, doc := range c.Documents() {
		docID := doc.ID()
		docNode := DocumentNode(docID)
		seenDocType := make(map[int]bool)
		prev := ""
		n := 0
		for _, m := range doc.Mentions() {
			if m.Ambiguity() == 0 {
				continue
			}
			tid := m.ToponymID()
			if !seenType[tid] {
				seenType[tid] = true
				p.types = append(p.types, tid)
			}
			if !seenDocType[tid] {
				seenDocType[tid] = true
				p.docTypes = append(p.docTypes, docTypeEdge{docID: docID, form: m.Form()})
			}

			tok := DocTokenNode(docID, n)
			n++
			p.tokenTypes = append(p.tokenTypes, [2]string{tok, DocTypeNode(docID, m.Form())})
			p.tokenDocs = append(p.tokenDocs, [2]string{tok, docNode})
			if prev != "" {
				p.tokenChains = append(p.tokenChains, [2]string{prev, tok})
			}
			prev = tok

			for _, loc := range m.candidates() {
				if seenLoc[loc.ID] {
					continue
				}
				seenLoc[loc.ID] = true
				p.locations = append(p.locations, loc)
				p.locCells = append(p.locCells, b.grid.CellIDs(loc.Region))
			}
		}
	}
	return p
}

// Write emits the seed file to seeds and the graph to graph. Graph edges are
// written in phases: cell-cell, location-cell, toponym type to location,
// document type to toponym type, then the per-mention token edges.
func (b *GraphBuilder) Write(c *Corpus, graph, seeds io.Writer) (GraphStats, error) {
	var stats GraphStats
	if err := b.weights.validate(); err != nil {
		return stats, err
	}
	p := b.plan(c)

	sw := newEdgeWriter(seeds)
	seenCell := make(map[int]bool)
	for _, cells := range p.locCells {
		for _, cell := range cells {
			if cell == NoCell || seenCell[cell] {
				continue
			}
			seenCell[cell] = true
			sw.edge(CellNode(cell), CellLabelNode(cell), b.weights.Seed)
		}
	}
	stats.Seeds = sw.n
	if err := sw.flush(); err != nil {
		return stats, fmt.Errorf("writing seeds: %w", err)
	}

	gw := newEdgeWriter(graph)
	err := b.grid.EachAdjacency(func(from, to int) error {
		gw.edge(CellNode(from), CellNode(to), b.weights.CellCell)
		return gw.err
	})
	if err != nil {
		return stats, fmt.Errorf("writing cell edges: %w", err)
	}
	stats.CellEdges = gw.n

	mark := gw.n
	for i, loc := range p.locations {
		for _, cell := range p.locCells[i] {
			if cell != NoCell {
				gw.edge(LocationNode(loc.ID), CellNode(cell), b.weights.LocationCell)
			}
		}
	}
	stats.LocationEdges, mark = gw.n-mark, gw.n

	for _, tid := range p.types {
		node := ToponymTypeNode(c.toponyms.mustAt(tid))
		for _, loc := range c.candidates[tid] {
			gw.edge(node, LocationNode(loc.ID), b.weights.TypeLocation)
		}
	}
	stats.TypeEdges, mark = gw.n-mark, gw.n

	for _, e := range p.docTypes {
		gw.edge(DocTypeNode(e.docID, e.form), ToponymTypeNode(e.form), b.weights.DocTypeType)
	}
	stats.DocTypeEdges, mark = gw.n-mark, gw.n

	for _, e := range p.tokenTypes {
		gw.edge(e[0], e[1], b.weights.TokenDocType)
	}
	for _, e := range p.tokenDocs {
		gw.edge(e[0], e[1], b.weights.TokenDoc)
	}
	for _, e := range p.tokenChains {
		gw.edge(e[0], e[1], b.weights.TokenChain)
	}
	stats.TokenEdges = gw.n - mark

	if err := gw.flush(); err != nil {
		return stats, fmt.Errorf("writing graph: %w", err)
	}

	logger().Info("wrote propagation graph",
		"seeds", stats.Seeds,
		"cell_edges", stats.CellEdges,
		"location_edges", stats.LocationEdges,
		"type_edges", stats.TypeEdges,
		"doctype_edges", stats.DocTypeEdges,
		"token_edges", stats.TokenEdges)
	return stats, nil
}

// WriteFiles is Write to the named files, which are created or truncated.
func (b *GraphBuilder) WriteFiles(c *Corpus, graphPath, seedPath string) (stats GraphStats, err error) {
	graph, err := os.Create(graphPath)
	if err != nil {
		return stats, err
	}
	defer func() { err = errors.Join(err, graph.Close()) }()

	seeds, err := os.Create(seedPath)
	if err != nil {
		return stats, err
	}
	defer func() { err = errors.Join(err, seeds.Close()) }()

	return b.Write(c, graph, seeds)
}

// edgeWriter writes "node1<TAB>node2<TAB>weight" lines and remembers the
// first write error.
type edgeWriter struct {
	w   *bufio.Writer
	n   int
	err error
}

func newEdgeWriter(w io.Writer) *edgeWriter {
	return &edgeWriter{w: bufio.NewWriterSize(w, 64*1024)}
}

func (e *edgeWriter) edge(from, to string, weight float64) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(from + graphFieldSep + to + graphFieldSep + formatWeight(weight) + "\n")
	if e.err == nil {
		e.n++
	}
}

func (e *edgeWriter) flush() error {
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

// formatWeight formats a weight as a decimal that always has a fractional
// part, so 1 is written as "1.0".
func formatWeight(w float64) string {
	s := strconv.FormatFloat(w, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
