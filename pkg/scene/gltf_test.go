package scene_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/buildx/pkg/scene"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// writeTestGLB writes a document with two root nodes: "IfcWindow" holding
// a two-primitive mesh and "IfcWall" with a child node holding one triangle.
func writeTestGLB(t *testing.T) string {
	t.Helper()
	doc := gltf.NewDocument()

	tri := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	pos := modeler.WritePosition(doc, tri)
	idx := modeler.WriteIndices(doc, []uint16{0, 1, 2})

	doc.Meshes = []*gltf.Mesh{
		{
			Name: "window",
			Primitives: []*gltf.Primitive{
				{Indices: gltf.Index(idx), Attributes: map[string]int{gltf.POSITION: pos}},
				{Indices: gltf.Index(idx), Attributes: map[string]int{gltf.POSITION: pos}},
				{Mode: gltf.PrimitiveLines, Attributes: map[string]int{gltf.POSITION: pos}},
			},
		},
		{
			Name: "wall",
			Primitives: []*gltf.Primitive{
				{Attributes: map[string]int{gltf.POSITION: pos}},
			},
		},
	}
	doc.Nodes = []*gltf.Node{
		{Name: "IfcWindow", Mesh: gltf.Index(0)},
		{Name: "IfcWall", Children: []int{2}},
		{Name: "", Mesh: gltf.Index(1)},
	}
	doc.Scenes[0].Nodes = []int{0, 1}

	path := filepath.Join(t.TempDir(), "module.glb")
	if err := gltf.SaveBinary(doc, path); err != nil {
		t.Fatalf("save glb: %v", err)
	}
	return path
}

func checkGraph(t *testing.T, g *scene.Graph) {
	t.Helper()
	labels := g.Labels()
	if len(labels) != 2 || labels[0] != "IfcWindow" || labels[1] != "IfcWall" {
		t.Fatalf("Labels() = %v, want [IfcWindow IfcWall]", labels)
	}

	win := g.Get("IfcWindow").Meshes()
	if len(win) != 2 {
		t.Fatalf("IfcWindow meshes = %d, want 2 (line primitive skipped)", len(win))
	}
	if win[0].VertexCount() != 3 || win[0].TriangleCount() != 1 {
		t.Errorf("window mesh has %d vertices / %d triangles, want 3 / 1",
			win[0].VertexCount(), win[0].TriangleCount())
	}
	if win[0].PartName != "window" {
		t.Errorf("PartName = %q, want %q", win[0].PartName, "window")
	}

	wall := g.Get("IfcWall")
	meshes := wall.Meshes()
	if len(meshes) != 1 {
		t.Fatalf("IfcWall meshes = %d, want 1", len(meshes))
	}
	if meshes[0].Indexed() {
		t.Error("wall primitive has no index buffer, mesh should be non-indexed")
	}
	if wall.Children[0].Name != "node_2" {
		t.Errorf("unnamed child name = %q, want node_2", wall.Children[0].Name)
	}
}

func TestOpen(t *testing.T) {
	g, err := scene.Open(writeTestGLB(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	checkGraph(t, g)
}

func TestReadGLB(t *testing.T) {
	f, err := os.Open(writeTestGLB(t))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	g, err := scene.ReadGLB(f)
	if err != nil {
		t.Fatalf("ReadGLB: %v", err)
	}
	checkGraph(t, g)
}

func TestFromDocumentNoScenes(t *testing.T) {
	g, err := scene.FromDocument(&gltf.Document{})
	if err != nil {
		t.Fatalf("FromDocument: %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
}

func TestFromDocumentBadNodeIndex(t *testing.T) {
	doc := &gltf.Document{Scenes: []*gltf.Scene{{Nodes: []int{3}}}}
	if _, err := scene.FromDocument(doc); err == nil {
		t.Error("expected error for out-of-range node index")
	}
}
