package scene

import "github.com/chazu/buildx/pkg/kernel"

// Node is one element of a scene tree. A node with a non-nil Mesh is a
// renderable mesh primitive; any node may have children.
type Node struct {
	Name     string       `json:"name,omitempty"`
	Mesh     *kernel.Mesh `json:"mesh,omitempty"`
	Children []*Node      `json:"children,omitempty"`
}

// IsMesh reports whether the node is a renderable mesh primitive.
func (n *Node) IsMesh() bool {
	return n != nil && n.Mesh != nil
}

// Traverse visits n and its descendants depth-first, parent before
// children, children in order.
func (n *Node) Traverse(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Traverse(fn)
	}
}

// Meshes returns the mesh primitives of the subtree in traversal order.
func (n *Node) Meshes() []*kernel.Mesh {
	var out []*kernel.Mesh
	n.Traverse(func(c *Node) {
		if c.IsMesh() {
			out = append(out, c.Mesh)
		}
	})
	return out
}

// NewGroup returns a node with the given children and no mesh.
func NewGroup(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// NewMesh returns a mesh leaf. The mesh PartName is set to name when empty.
func NewMesh(name string, m *kernel.Mesh) *Node {
	if m != nil && m.PartName == "" {
		m.PartName = name
	}
	return &Node{Name: name, Mesh: m}
}
