package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/buildx/pkg/kernel"
	"github.com/chazu/buildx/pkg/scene"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites scene source before it reaches zygomys:
//
//   - :keyword becomes the string literal "__kw_keyword", so keywords never
//     collide with user variables of the same name.
//   - kebab-case identifiers become snake_case (wall-front -> wall_front),
//     since zygomys reads a bare hyphen as subtraction.
//   - ; comments become // comments.
//
// String literals are left untouched.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// zygomys uses // for line comments, not ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// A hyphen between identifier characters is part of a name, not minus.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point or offset.
type sexpVec3 struct {
	vec [3]float32
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec[0], v.vec[1], v.vec[2])
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpGeometry wraps an unnamed geometry buffer returned by `box` and
// `translate`, consumed by `mesh`.
type sexpGeometry struct {
	mesh *kernel.Mesh
}

func (g *sexpGeometry) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(geometry %d vertices)", g.mesh.VertexCount())
}
func (g *sexpGeometry) Type() *zygo.RegisteredType { return nil }

// sexpNode wraps a scene node built by `mesh`, `group` or `node`.
type sexpNode struct {
	node  *scene.Node
	label string // stored graph label, set by `node`
}

func (n *sexpNode) SexpString(ps *zygo.PrintState) string {
	if n.label != "" {
		return fmt.Sprintf("(node %q)", n.label)
	}
	return fmt.Sprintf("(scene-node %q)", n.node.Name)
}
func (n *sexpNode) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Trailing keyword with no value.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) ([3]float32, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return [3]float32{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func toGeometry(s zygo.Sexp) (*kernel.Mesh, error) {
	if g, ok := s.(*sexpGeometry); ok {
		return g.mesh, nil
	}
	return nil, fmt.Errorf("expected geometry, got %T (%s)", s, s.SexpString(nil))
}

func toNode(s zygo.Sexp) (*scene.Node, error) {
	if n, ok := s.(*sexpNode); ok {
		return n.node, nil
	}
	return nil, fmt.Errorf("expected scene node, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// flatten expands list and array arguments in place, so builders accept
// both (group "g" a b) and (group "g" (list a b)).
func flatten(args []zygo.Sexp) ([]zygo.Sexp, error) {
	var out []zygo.Sexp
	for _, a := range args {
		switch a.(type) {
		case *zygo.SexpPair, *zygo.SexpArray:
			items, err := sexpListToSlice(a)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		default:
			out = append(out, a)
		}
	}
	return out, nil
}

// nameAndNodes reads a leading name followed by scene node children.
func nameAndNodes(fn string, args []zygo.Sexp) (string, []*scene.Node, error) {
	if len(args) < 1 {
		return "", nil, fmt.Errorf("%s requires a name argument", fn)
	}
	name, err := toString(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("%s: name: %w", fn, err)
	}
	rest, err := flatten(args[1:])
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", fn, err)
	}
	children := make([]*scene.Node, 0, len(rest))
	for i, a := range rest {
		n, err := toNode(a)
		if err != nil {
			return "", nil, fmt.Errorf("%s: child %d: %w", fn, i+1, err)
		}
		children = append(children, n)
	}
	return name, children, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the scene DSL builtins into a zygomys
// environment. `node` adds top-level labels to g as evaluation runs. The
// returned function reports the first error raised by a builtin, which
// zygomys otherwise buries in its own error text.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, g *scene.Graph) (failure func() error) {
	var first error
	add := func(name string, fn func(*zygo.Zlisp, string, []zygo.Sexp) (zygo.Sexp, error)) {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			res, err := fn(env, name, args)
			if err != nil && first == nil {
				first = err
			}
			return res, err
		})
	}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	add("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var v [3]float32
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			v[i] = float32(f)
		}
		return &sexpVec3{vec: v}, nil
	})

	// -----------------------------------------------------------------------
	// (box :min (vec3 0 0 0) :max (vec3 1 2.7 0.2))
	// -----------------------------------------------------------------------
	add("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var corners [2][3]float32
		for i, key := range []string{"min", "max"} {
			v, ok := pa.kw[key]
			if !ok {
				return zygo.SexpNull, fmt.Errorf("box requires :%s", key)
			}
			vec, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("box: %s: %w", key, err)
			}
			corners[i] = vec
		}
		for axis := 0; axis < 3; axis++ {
			if corners[0][axis] >= corners[1][axis] {
				return zygo.SexpNull, fmt.Errorf("box: min must be below max on every axis")
			}
		}
		return &sexpGeometry{mesh: kernel.BoxMesh(corners[0], corners[1])}, nil
	})

	// -----------------------------------------------------------------------
	// (translate (vec3 0 0 2.4) geometry)
	// -----------------------------------------------------------------------
	add("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("translate requires an offset and a geometry")
		}
		off, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: offset: %w", err)
		}
		src, err := toGeometry(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		moved := kernel.Merge(src)
		for i := range moved.Vertices {
			moved.Vertices[i] += off[i%3]
		}
		return &sexpGeometry{mesh: moved}, nil
	})

	// -----------------------------------------------------------------------
	// (mesh "wall-front" (box ...) (box ...))
	// -----------------------------------------------------------------------
	add("mesh", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 2 {
			return zygo.SexpNull, fmt.Errorf("mesh requires a name and at least one geometry")
		}
		meshName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh: name: %w", err)
		}
		rest, err := flatten(args[1:])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh: %w", err)
		}
		parts := make([]*kernel.Mesh, 0, len(rest))
		for i, a := range rest {
			m, err := toGeometry(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("mesh: part %d: %w", i+1, err)
			}
			parts = append(parts, m)
		}
		merged := kernel.Merge(parts...)
		if merged == nil {
			return zygo.SexpNull, fmt.Errorf("mesh %q: geometries have incompatible layouts", meshName)
		}
		return &sexpNode{node: scene.NewMesh(meshName, merged)}, nil
	})

	// -----------------------------------------------------------------------
	// (group "frame" child...)
	// -----------------------------------------------------------------------
	add("group", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		groupName, children, err := nameAndNodes("group", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpNode{node: scene.NewGroup(groupName, children...)}, nil
	})

	// -----------------------------------------------------------------------
	// (node "IfcWallStandardCase" child...)
	// -----------------------------------------------------------------------
	add("node", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		label, children, err := nameAndNodes("node", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		if strings.TrimSpace(label) == "" {
			return zygo.SexpNull, fmt.Errorf("node: label must not be empty")
		}
		n := scene.NewGroup(label, children...)
		stored := g.Add(label, n)
		return &sexpNode{node: n, label: stored}, nil
	})

	return func() error { return first }
}
