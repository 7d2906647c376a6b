package geometry

import (
	"sort"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/kernel"
	"github.com/chazu/buildx/pkg/resolve"
	"github.com/chazu/buildx/pkg/scene"
)

// Geometries maps element names to the merged geometry of one module.
// Maps handed out by this package are shared and must not be modified.
type Geometries map[string]*kernel.Mesh

// Elements returns the element names in sorted order.
func (g Geometries) Elements() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeModule groups the mesh primitives of g by resolved element and
// merges each group into a single mesh. Labels that do not resolve, or
// resolve to an excluded element, contribute nothing. Elements whose
// meshes cannot be merged are left out of the result.
func MergeModule(g *scene.Graph, r *resolve.Resolver, elements []catalog.Element) Geometries {
	out, _ := mergeModule(g, r, elements)
	return out
}

// mergeModule is MergeModule that also reports the elements dropped
// because their meshes did not merge.
func mergeModule(g *scene.Graph, r *resolve.Resolver, elements []catalog.Element) (Geometries, []string) {
	out := make(Geometries)
	if g == nil {
		return out, nil
	}

	var order []string
	collected := make(map[string][]*kernel.Mesh)
	g.Each(func(label string, n *scene.Node) {
		e, ok := r.ForMerge(label, elements)
		if !ok {
			return
		}
		n.Traverse(func(c *scene.Node) {
			if !c.IsMesh() {
				return
			}
			if _, seen := collected[e.Name]; !seen {
				order = append(order, e.Name)
			}
			collected[e.Name] = append(collected[e.Name], c.Mesh)
		})
	})

	var dropped []string
	for _, name := range order {
		merged := kernel.Merge(collected[name]...)
		if merged == nil {
			dropped = append(dropped, name)
			continue
		}
		merged.PartName = name
		out[name] = merged
	}
	return out, dropped
}
