package toponym

import "fmt"

// Evaluation compares selected candidates with gold candidates.
type Evaluation struct {
	Mentions int // mentions with at least one candidate
	WithGold int // of those, mentions with a gold candidate
	Resolved int // mentions with a gold candidate that were resolved
	Correct  int // resolved mentions whose selection equals the gold candidate
}

// Precision is Correct/Resolved, or 0 when nothing was resolved.
func (e Evaluation) Precision() float64 {
	if e.Resolved == 0 {
		return 0
	}
	return float64(e.Correct) / float64(e.Resolved)
}

// Recall is Correct/WithGold, or 0 when no mention has a gold candidate.
func (e Evaluation) Recall() float64 {
	if e.WithGold == 0 {
		return 0
	}
	return float64(e.Correct) / float64(e.WithGold)
}

// F1 is the harmonic mean of precision and recall.
func (e Evaluation) F1() float64 {
	p, r := e.Precision(), e.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (e Evaluation) String() string {
	return fmt.Sprintf("mentions=%d gold=%d resolved=%d correct=%d P=%.4f R=%.4f F1=%.4f",
		e.Mentions, e.WithGold, e.Resolved, e.Correct, e.Precision(), e.Recall(), e.F1())
}

// Evaluate scores the current selections of c against its gold candidates.
// A selection counts as correct when it picks the gold candidate itself or
// another candidate with the same location id.
func Evaluate(c *Corpus) Evaluation {
	var e Evaluation
	for _, m := range c.Mentions() {
		if m.Ambiguity() == 0 {
			continue
		}
		e.Mentions++
		gold, ok := m.GoldLocation()
		if !ok {
			continue
		}
		e.WithGold++
		sel, ok := m.SelectedLocation()
		if !ok {
			continue
		}
		e.Resolved++
		if sel.ID == gold.ID {
			e.Correct++
		}
	}
	return e
}
