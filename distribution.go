package toponym

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RegionWeight is one entry of a region distribution.
type RegionWeight struct {
	Region int // grid cell id
	Weight float64
}

// Distributions maps toponym lexicon ids to the region distribution the
// label propagation solver assigned to them. Regions keep the order in which
// they appear in the solver output.
type Distributions struct {
	byToponym map[int][]RegionWeight
}

// Len returns the number of toponym types with a distribution.
func (d *Distributions) Len() int { return len(d.byToponym) }

// Get returns the distribution of a toponym id. A missing distribution is
// empty.
func (d *Distributions) Get(toponymID int) []RegionWeight {
	return d.byToponym[toponymID]
}

// ParseDistributions reads solver output for the toponym types of c.
//
// Each line is a node id followed by tab-separated groups of space-separated
// tokens. A token ending in "L" is a region label "<cell>L" and the token
// after it is its weight. The node id is either a toponym lexicon id of c or
// a toponym type node name (see ToponymTypeNode); lines for any other node
// are skipped. A later line for the same toponym replaces an earlier one.
//
// A line without a tab-separated node id, or with an unparseable label or
// weight, fails with ErrMalformedLine.
func ParseDistributions(r io.Reader, c *Corpus) (*Distributions, error) {
	byNode := make(map[string]int, c.NumToponymTypes())
	for id, form := range c.toponyms.lookup {
		byNode[ToponymTypeNode(form)] = id
	}

	d := &Distributions{byToponym: make(map[int][]RegionWeight)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		node, rest, ok := strings.Cut(line, "\t")
		if !ok || node == "" {
			return nil, fmt.Errorf("line %d: %w: no node id", lineNo, ErrMalformedLine)
		}

		id, known := resolveNode(node, c, byNode)
		if !known {
			continue
		}
		dist, err := parseLabels(rest)
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", lineNo, node, err)
		}
		d.byToponym[id] = dist
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading distributions: %w", err)
	}
	return d, nil
}

func resolveNode(node string, c *Corpus, byNode map[string]int) (int, bool) {
	if id, err := strconv.Atoi(node); err == nil {
		return id, id >= 0 && id < c.NumToponymTypes()
	}
	id, ok := byNode[node]
	return id, ok
}

func parseLabels(groups string) ([]RegionWeight, error) {
	var dist []RegionWeight
	index := make(map[int]int)
	for _, group := range strings.Split(groups, "\t") {
		tokens := strings.Fields(group)
		for i := 0; i < len(tokens); i++ {
			label, ok := strings.CutSuffix(tokens[i], "L")
			if !ok {
				continue
			}
			region, err := strconv.Atoi(label)
			if err != nil {
				return nil, fmt.Errorf("%w: bad region label %q", ErrMalformedLine, tokens[i])
			}
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("%w: region label %q has no weight", ErrMalformedLine, tokens[i])
			}
			i++
			weight, err := strconv.ParseFloat(tokens[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad weight %q for region %d", ErrMalformedLine, tokens[i], region)
			}
			if j, seen := index[region]; seen {
				dist[j].Weight = weight
				continue
			}
			index[region] = len(dist)
			dist = append(dist, RegionWeight{Region: region, Weight: weight})
		}
	}
	return dist, nil
}
