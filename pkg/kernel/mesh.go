package kernel

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, uvs has 2 floats per vertex and
// indices has 3 uint32s per triangle. Normals, UVs and Indices are optional.
type Mesh struct {
	Vertices []float32 `json:"vertices"`          // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals,omitempty"` // [nx0,ny0,nz0, ...]
	UVs      []float32 `json:"uvs,omitempty"`     // [u0,v0, u1,v1, ...]
	Indices  []uint32  `json:"indices,omitempty"` // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"`          // scene node the mesh came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles. Non-indexed meshes
// store one triangle per three vertices.
func (m *Mesh) TriangleCount() int {
	if m.Indexed() {
		return len(m.Indices) / 3
	}
	return m.VertexCount() / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Indexed reports whether the mesh draws through an index buffer.
func (m *Mesh) Indexed() bool {
	return len(m.Indices) > 0
}

// Bounds returns the axis-aligned bounding box of the vertices.
// An empty mesh has zero bounds.
func (m *Mesh) Bounds() (min, max [3]float32) {
	if m.IsEmpty() {
		return min, max
	}
	copy(min[:], m.Vertices[:3])
	copy(max[:], m.Vertices[:3])
	for i := 3; i+2 < len(m.Vertices); i += 3 {
		for j := 0; j < 3; j++ {
			v := m.Vertices[i+j]
			if v < min[j] {
				min[j] = v
			}
			if v > max[j] {
				max[j] = v
			}
		}
	}
	return min, max
}

// layout describes which optional attributes a mesh carries.
type layout struct {
	normals bool
	uvs     bool
	indexed bool
}

func layoutOf(m *Mesh) layout {
	return layout{
		normals: len(m.Normals) > 0,
		uvs:     len(m.UVs) > 0,
		indexed: m.Indexed(),
	}
}

// Merge concatenates meshes into one buffer holding their union. Index
// values of later meshes are offset by the vertices that precede them.
//
// Merge returns nil when there is nothing usable to merge: an empty input,
// a nil or empty mesh, meshes carrying different attribute sets, or a mix
// of indexed and non-indexed meshes.
func Merge(meshes ...*Mesh) *Mesh {
	if len(meshes) == 0 {
		return nil
	}

	var want layout
	var nVerts, nIdx int
	for i, m := range meshes {
		if m == nil || m.IsEmpty() || len(m.Vertices)%3 != 0 {
			return nil
		}
		l := layoutOf(m)
		if i == 0 {
			want = l
		} else if l != want {
			return nil
		}
		if l.normals && len(m.Normals) != len(m.Vertices) {
			return nil
		}
		if l.uvs && len(m.UVs) != m.VertexCount()*2 {
			return nil
		}
		nVerts += len(m.Vertices)
		nIdx += len(m.Indices)
	}

	out := &Mesh{Vertices: make([]float32, 0, nVerts)}
	if want.normals {
		out.Normals = make([]float32, 0, nVerts)
	}
	if want.uvs {
		out.UVs = make([]float32, 0, nVerts/3*2)
	}
	if want.indexed {
		out.Indices = make([]uint32, 0, nIdx)
	}

	for _, m := range meshes {
		offset := uint32(out.VertexCount())
		out.Vertices = append(out.Vertices, m.Vertices...)
		out.Normals = append(out.Normals, m.Normals...)
		out.UVs = append(out.UVs, m.UVs...)
		for _, idx := range m.Indices {
			out.Indices = append(out.Indices, idx+offset)
		}
	}
	return out
}

// boxFaces lists, per face, the outward normal and four corner selectors.
// A selector bit set means "take max" on that axis (bit 0 = x, 1 = y, 2 = z).
var boxFaces = [6]struct {
	normal  [3]float32
	corners [4]int
}{
	{[3]float32{1, 0, 0}, [4]int{1, 3, 7, 5}},
	{[3]float32{-1, 0, 0}, [4]int{0, 4, 6, 2}},
	{[3]float32{0, 1, 0}, [4]int{2, 6, 7, 3}},
	{[3]float32{0, -1, 0}, [4]int{0, 1, 5, 4}},
	{[3]float32{0, 0, 1}, [4]int{4, 5, 7, 6}},
	{[3]float32{0, 0, -1}, [4]int{0, 2, 3, 1}},
}

// BoxMesh returns an indexed axis-aligned box spanning min to max with
// per-face normals and UVs (24 vertices, 12 triangles).
func BoxMesh(min, max [3]float32) *Mesh {
	m := &Mesh{
		Vertices: make([]float32, 0, 24*3),
		Normals:  make([]float32, 0, 24*3),
		UVs:      make([]float32, 0, 24*2),
		Indices:  make([]uint32, 0, 36),
	}
	uv := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for _, f := range boxFaces {
		base := uint32(m.VertexCount())
		for i, c := range f.corners {
			var p [3]float32
			for axis := 0; axis < 3; axis++ {
				if c&(1<<axis) != 0 {
					p[axis] = max[axis]
				} else {
					p[axis] = min[axis]
				}
			}
			m.Vertices = append(m.Vertices, p[0], p[1], p[2])
			m.Normals = append(m.Normals, f.normal[0], f.normal[1], f.normal[2])
			m.UVs = append(m.UVs, uv[i][0], uv[i][1])
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}
