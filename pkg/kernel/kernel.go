// Package kernel defines the geometry buffer type shared by the scene,
// merge and site packages, and the abstract solid-modeling kernel used to
// build site geometry. The kernel abstraction allows swapping backends
// without changing the rest of the system.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Extrude sweeps a closed 2D outline (XY plane) along +Z/-Z, centred
	// on Z=0, to the given total height.
	Extrude(outline [][2]float64, height float64) (Solid, error)

	// Translate moves a solid by (x, y, z).
	Translate(s Solid, x, y, z float64) Solid

	// ToMesh tessellates a solid into a triangle mesh.
	ToMesh(s Solid) (*Mesh, error)
}
