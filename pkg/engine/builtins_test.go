package engine

import (
	"reflect"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(box :min a)`,
			expect: `(box "__kw_min" a)`,
		},
		{
			name:   "multiple keywords",
			input:  `(box :min a :max b)`,
			expect: `(box "__kw_min" a "__kw_max" b)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def wall-front 1)`,
			expect: `(def wall_front 1)`,
		},
		{
			name:   "kebab-case inside string preserved",
			input:  `(mesh "wall-front" b)`,
			expect: `(mesh "wall-front" b)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:head-height`,
			expect: `"__kw_head-height"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Scene builtins
// ---------------------------------------------------------------------------

func TestSingleNode(t *testing.T) {
	eng := NewEngine()

	source := `
(node "IfcWallStandardCase"
  (mesh "wall-front" (box :min (vec3 0 0 0) :max (vec3 4.8 2.7 0.2))))
`
	g, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if got := g.Labels(); !reflect.DeepEqual(got, []string{"IfcWallStandardCase"}) {
		t.Fatalf("labels = %v", got)
	}

	n := g.Get("IfcWallStandardCase")
	if len(n.Children) != 1 || !n.Children[0].IsMesh() {
		t.Fatalf("expected a single mesh child, got %+v", n.Children)
	}
	m := n.Children[0].Mesh
	if m.PartName != "wall-front" {
		t.Errorf("PartName = %q, want wall-front", m.PartName)
	}
	if m.VertexCount() != 24 {
		t.Errorf("vertices = %d, want 24", m.VertexCount())
	}
	lo, hi := m.Bounds()
	if lo != [3]float32{0, 0, 0} || hi != [3]float32{4.8, 2.7, 0.2} {
		t.Errorf("bounds = %v %v", lo, hi)
	}
}

func TestVariablesGroupsAndTranslate(t *testing.T) {
	eng := NewEngine()

	source := `
; a window is two panes in a frame
(def pane (box :min (vec3 0 0 0) :max (vec3 0.5 1 0.05)))
(def window-frame (group "frame"
  (mesh "left" pane)
  (mesh "right" (translate (vec3 0.5 0 0) pane))))
(node "IfcWindow" window-frame)
(node "IfcWindow" (mesh "spare" pane))
`
	g, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if got := g.Labels(); !reflect.DeepEqual(got, []string{"IfcWindow", "IfcWindow_1"}) {
		t.Fatalf("labels = %v", got)
	}
	if g.MeshCount() != 3 {
		t.Errorf("mesh count = %d, want 3", g.MeshCount())
	}

	frame := g.Get("IfcWindow").Children[0]
	right := frame.Children[1].Mesh
	lo, hi := right.Bounds()
	if lo[0] != 0.5 || hi[0] != 1 {
		t.Errorf("translated x range = [%g, %g], want [0.5, 1]", lo[0], hi[0])
	}
	left := frame.Children[0].Mesh
	if lo, _ := left.Bounds(); lo[0] != 0 {
		t.Errorf("translate modified its input: left starts at x=%g", lo[0])
	}
}

func TestMeshMergesParts(t *testing.T) {
	eng := NewEngine()
	source := `
(node "IfcSlab"
  (mesh "floor"
    (list (box :min (vec3 0 0 0) :max (vec3 1 0.1 1))
          (box :min (vec3 1 0 0) :max (vec3 2 0.1 1)))))
`
	g, evalErrs, err := eng.Evaluate(source)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("err=%v evalErrs=%v", err, evalErrs)
	}
	m := g.Get("IfcSlab").Children[0].Mesh
	if m.VertexCount() != 48 || m.TriangleCount() != 24 {
		t.Errorf("vertices=%d triangles=%d, want 48/24", m.VertexCount(), m.TriangleCount())
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"vec3 type", `(vec3 1 "a" 2)`, "expected number"},
		{"box missing max", `(box :min (vec3 0 0 0))`, "requires :max"},
		{"box inverted", `(box :min (vec3 1 1 1) :max (vec3 0 2 2))`, "min must be below max"},
		{"mesh without geometry", `(mesh "m")`, "at least one geometry"},
		{"mesh bad part", `(mesh "m" (vec3 0 0 0))`, "expected geometry"},
		{"group bad child", `(group "g" 42)`, "expected scene node"},
		{"node empty label", `(node "" )`, "label must not be empty"},
		{"node without label", `(node)`, "requires a name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, evalErrs, err := NewEngine().Evaluate(tt.source)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if g != nil {
				t.Error("expected nil graph")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected eval errors")
			}
			if !strings.Contains(evalErrs[0].Message, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", evalErrs[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestArithmeticInsideScene(t *testing.T) {
	eng := NewEngine()
	source := `
(def h 2.7)
(node "IfcWall" (mesh "w" (box :min (vec3 0 0 0) :max (vec3 (* 2 2.4) h 0.2))))
`
	g, evalErrs, err := eng.Evaluate(source)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("err=%v evalErrs=%v", err, evalErrs)
	}
	_, hi := g.Get("IfcWall").Children[0].Mesh.Bounds()
	if hi[0] != 4.8 || hi[1] != 2.7 {
		t.Errorf("max = %v", hi)
	}
}
