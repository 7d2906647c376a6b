package scene

import (
	"fmt"
	"io"

	"github.com/chazu/buildx/pkg/kernel"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// ReadGLB decodes a binary (or self-contained JSON) glTF document from r
// and builds its scene graph.
func ReadGLB(r io.Reader) (*Graph, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("scene: decode gltf: %w", err)
	}
	return FromDocument(doc)
}

// Open reads a glTF file from disk, resolving external buffers relative
// to the file.
func Open(path string) (*Graph, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open %s: %w", path, err)
	}
	return FromDocument(doc)
}

// FromDocument builds a Graph from the root nodes of the document's default
// scene (the first scene when none is marked default). Every triangle
// primitive becomes a mesh leaf; point and line primitives are skipped.
func FromDocument(doc *gltf.Document) (*Graph, error) {
	g := New()
	if len(doc.Scenes) == 0 {
		return g, nil
	}
	sceneIdx := 0
	if doc.Scene != nil {
		sceneIdx = *doc.Scene
	}
	if sceneIdx < 0 || sceneIdx >= len(doc.Scenes) {
		return nil, fmt.Errorf("scene: default scene %d out of range", sceneIdx)
	}

	b := &docBuilder{doc: doc, meshes: make(map[int][]*kernel.Mesh)}
	for _, idx := range doc.Scenes[sceneIdx].Nodes {
		n, err := b.node(idx, 0)
		if err != nil {
			return nil, err
		}
		g.Add(n.Name, n)
	}
	return g, nil
}

// maxDepth bounds node recursion so that a cyclic document fails instead of
// overflowing the stack.
const maxDepth = 256

type docBuilder struct {
	doc    *gltf.Document
	meshes map[int][]*kernel.Mesh // decoded primitives per glTF mesh index
}

func (b *docBuilder) node(idx, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("scene: node hierarchy deeper than %d", maxDepth)
	}
	if idx < 0 || idx >= len(b.doc.Nodes) {
		return nil, fmt.Errorf("scene: node index %d out of range", idx)
	}
	src := b.doc.Nodes[idx]

	n := &Node{Name: src.Name}
	if n.Name == "" {
		n.Name = fmt.Sprintf("node_%d", idx)
	}

	if src.Mesh != nil {
		prims, err := b.mesh(*src.Mesh)
		if err != nil {
			return nil, fmt.Errorf("scene: node %q: %w", n.Name, err)
		}
		for i, m := range prims {
			n.Children = append(n.Children, NewMesh(fmt.Sprintf("%s_%d", n.Name, i), m))
		}
	}

	for _, c := range src.Children {
		child, err := b.node(c, depth+1)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// mesh decodes the triangle primitives of a glTF mesh. Instanced meshes
// share their decoded buffers.
func (b *docBuilder) mesh(idx int) ([]*kernel.Mesh, error) {
	if prims, ok := b.meshes[idx]; ok {
		return prims, nil
	}
	if idx < 0 || idx >= len(b.doc.Meshes) {
		return nil, fmt.Errorf("mesh index %d out of range", idx)
	}
	src := b.doc.Meshes[idx]

	var prims []*kernel.Mesh
	for i, p := range src.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			continue
		}
		m, err := b.primitive(p)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", src.Name, i, err)
		}
		m.PartName = src.Name
		prims = append(prims, m)
	}
	b.meshes[idx] = prims
	return prims, nil
}

func (b *docBuilder) primitive(p *gltf.Primitive) (*kernel.Mesh, error) {
	posIdx, ok := p.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("missing POSITION attribute")
	}
	acc, err := b.accessor(posIdx)
	if err != nil {
		return nil, err
	}
	positions, err := modeler.ReadPosition(b.doc, acc, nil)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	m := &kernel.Mesh{Vertices: make([]float32, 0, len(positions)*3)}
	for _, v := range positions {
		m.Vertices = append(m.Vertices, v[0], v[1], v[2])
	}

	if idx, ok := p.Attributes[gltf.NORMAL]; ok {
		acc, err := b.accessor(idx)
		if err != nil {
			return nil, err
		}
		normals, err := modeler.ReadNormal(b.doc, acc, nil)
		if err != nil {
			return nil, fmt.Errorf("read normals: %w", err)
		}
		m.Normals = make([]float32, 0, len(normals)*3)
		for _, v := range normals {
			m.Normals = append(m.Normals, v[0], v[1], v[2])
		}
	}

	if idx, ok := p.Attributes[gltf.TEXCOORD_0]; ok {
		acc, err := b.accessor(idx)
		if err != nil {
			return nil, err
		}
		uvs, err := modeler.ReadTextureCoord(b.doc, acc, nil)
		if err != nil {
			return nil, fmt.Errorf("read uvs: %w", err)
		}
		m.UVs = make([]float32, 0, len(uvs)*2)
		for _, v := range uvs {
			m.UVs = append(m.UVs, v[0], v[1])
		}
	}

	if p.Indices != nil {
		acc, err := b.accessor(*p.Indices)
		if err != nil {
			return nil, err
		}
		m.Indices, err = modeler.ReadIndices(b.doc, acc, nil)
		if err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
	}
	return m, nil
}

func (b *docBuilder) accessor(idx int) (*gltf.Accessor, error) {
	if idx < 0 || idx >= len(b.doc.Accessors) {
		return nil, fmt.Errorf("accessor index %d out of range", idx)
	}
	return b.doc.Accessors[idx], nil
}
