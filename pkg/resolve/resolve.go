// Package resolve matches scene-graph node labels to catalog elements,
// either exactly on the element's IFC cross-reference or by fuzzy string
// similarity against all cross-references.
package resolve

import "github.com/chazu/buildx/pkg/catalog"

// DefaultThreshold is the minimum similarity a fuzzy match must reach.
const DefaultThreshold = 0.5

// DefaultExcluded lists element names the merge path never resolves to.
// Appliances are positioned and rendered on their own.
var DefaultExcluded = []string{"Appliance"}

// Resolver resolves node labels to elements. The zero value is not useful;
// use New or set Threshold explicitly.
type Resolver struct {
	// Threshold is the minimum Similarity score accepted by Fuzzy.
	Threshold float64
	// Excluded holds element names ForMerge treats as unresolved.
	Excluded []string
}

// New returns a Resolver with DefaultThreshold and DefaultExcluded.
func New() *Resolver {
	return &Resolver{
		Threshold: DefaultThreshold,
		Excluded:  append([]string(nil), DefaultExcluded...),
	}
}

// Exact returns the first element whose IFC4Variable equals label. An
// empty label matches nothing.
func (r *Resolver) Exact(label string, elements []catalog.Element) (catalog.Element, bool) {
	if label == "" {
		return catalog.Element{}, false
	}
	for _, e := range elements {
		if e.IFC4Variable == label {
			return e, true
		}
	}
	return catalog.Element{}, false
}

// Fuzzy returns the Exact match when there is one, scored 1. Otherwise it
// returns the element whose IFC4Variable is most similar to label, provided
// the score reaches the threshold. Ties keep the earlier element.
func (r *Resolver) Fuzzy(label string, elements []catalog.Element) (catalog.Element, float64, bool) {
	if e, ok := r.Exact(label, elements); ok {
		return e, 1, true
	}
	best, bestScore := -1, -1.0
	for i, e := range elements {
		if e.IFC4Variable == "" {
			continue
		}
		if s := Similarity(label, e.IFC4Variable); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore < r.Threshold {
		return catalog.Element{}, 0, false
	}
	return elements[best], bestScore, true
}

// ForMerge is the resolution used when building merged module geometry:
// a fuzzy match that is discarded when it lands on an excluded element.
func (r *Resolver) ForMerge(label string, elements []catalog.Element) (catalog.Element, bool) {
	e, _, ok := r.Fuzzy(label, elements)
	if !ok || r.excluded(e.Name) {
		return catalog.Element{}, false
	}
	return e, true
}

func (r *Resolver) excluded(name string) bool {
	for _, x := range r.Excluded {
		if x == name {
			return true
		}
	}
	return false
}
