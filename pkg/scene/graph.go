package scene

import "fmt"

// Graph maps top-level node labels to their subtrees, preserving the order
// in which labels were added.
type Graph struct {
	nodes  map[string]*Node
	labels []string
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Add registers n under label and returns the label actually used. A label
// that is already taken is stored as label_1, label_2, ... instead.
func (g *Graph) Add(label string, n *Node) string {
	key := label
	for i := 1; ; i++ {
		if _, taken := g.nodes[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s_%d", label, i)
	}
	g.nodes[key] = n
	g.labels = append(g.labels, key)
	return key
}

// Get returns the subtree registered under label, or nil.
func (g *Graph) Get(label string) *Node {
	return g.nodes[label]
}

// Labels returns the labels in insertion order.
func (g *Graph) Labels() []string {
	out := make([]string, len(g.labels))
	copy(out, g.labels)
	return out
}

// Each calls fn for every (label, subtree) pair in insertion order.
func (g *Graph) Each(fn func(label string, n *Node)) {
	for _, l := range g.labels {
		fn(l, g.nodes[l])
	}
}

// Len returns the number of top-level labels.
func (g *Graph) Len() int {
	return len(g.labels)
}

// MeshCount returns the total number of mesh primitives in the graph.
func (g *Graph) MeshCount() int {
	total := 0
	g.Each(func(_ string, n *Node) {
		n.Traverse(func(c *Node) {
			if c.IsMesh() {
				total++
			}
		})
	})
	return total
}
