package site

import (
	"math"

	"github.com/chazu/buildx/pkg/kernel"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/project"
)

// EarthCircumference is the equatorial circumference in meters used by
// MetersPerPixel.
const EarthCircumference = 40075017

// BoundaryHeight lifts the boundary line above the ground plane so it is
// not hidden by the plot slab.
const BoundaryHeight = 0.1

// Centre returns the mean of the outer ring's vertices, leaving out the
// closing vertex.
func Centre(p orb.Polygon) orb.Point {
	if len(p) == 0 || len(p[0]) < 2 {
		return orb.Point{}
	}
	coords := p[0][:len(p[0])-1]
	var c orb.Point
	n := float64(len(coords))
	for _, pt := range coords {
		c[0] += pt[0] / n
		c[1] += pt[1] / n
	}
	return c
}

// LocalCoordinates maps every outer ring vertex, the closing one included,
// to scene space around the polygon centre: map x to scene x, map y to
// scene z, at BoundaryHeight.
func LocalCoordinates(p orb.Polygon) [][3]float64 {
	if len(p) == 0 {
		return nil
	}
	c := Centre(p)
	out := make([][3]float64, len(p[0]))
	for i, pt := range p[0] {
		out[i] = [3]float64{pt[0] - c[0], BoundaryHeight, pt[1] - c[1]}
	}
	return out
}

// BoundaryLine returns a position-only line strip through the local
// coordinates. An empty polygon yields an empty mesh.
func BoundaryLine(p orb.Polygon) *kernel.Mesh {
	coords := LocalCoordinates(p)
	m := &kernel.Mesh{PartName: "boundary", Vertices: make([]float32, 0, len(coords)*3)}
	for _, c := range coords {
		m.Vertices = append(m.Vertices, float32(c[0]), float32(c[1]), float32(c[2]))
	}
	return m
}

// PlotSlab extrudes the polygon, in local coordinates, into a slab of the
// given thickness whose top face lies on the ground plane. The mesh is
// Y-up like LocalCoordinates.
func PlotSlab(k kernel.Kernel, p orb.Polygon, thickness float64) (*kernel.Mesh, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	c := Centre(p)
	outline := make([][2]float64, len(p[0]))
	for i, pt := range p[0] {
		outline[i] = [2]float64{pt[0] - c[0], pt[1] - c[1]}
	}

	solid, err := k.Extrude(outline, thickness)
	if err != nil {
		return nil, err
	}
	m, err := k.ToMesh(k.Translate(solid, 0, 0, -thickness/2))
	if err != nil {
		return nil, err
	}
	zToY(m)
	m.PartName = "plot"
	return m, nil
}

// zToY swaps the Y and Z axes in place. The swap mirrors the mesh, so
// triangle winding is reversed to keep faces pointing outwards.
func zToY(m *kernel.Mesh) {
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		m.Vertices[i+1], m.Vertices[i+2] = m.Vertices[i+2], m.Vertices[i+1]
	}
	for i := 0; i+2 < len(m.Normals); i += 3 {
		m.Normals[i+1], m.Normals[i+2] = m.Normals[i+2], m.Normals[i+1]
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		m.Indices[i+1], m.Indices[i+2] = m.Indices[i+2], m.Indices[i+1]
	}
}

// ToLonLat converts a Web Mercator polygon to longitude/latitude.
func ToLonLat(p orb.Polygon) orb.Polygon {
	return project.Polygon(p.Clone(), project.Mercator.ToWGS84)
}

// FromLonLat converts a longitude/latitude polygon to Web Mercator.
func FromLonLat(p orb.Polygon) orb.Polygon {
	return project.Polygon(p.Clone(), project.WGS84.ToMercator)
}

// Area returns the geodesic area of a Web Mercator polygon in square
// meters.
func Area(p orb.Polygon) float64 {
	return geo.Area(ToLonLat(p))
}

// MetersPerPixel returns the ground resolution of a web map tile pixel at
// the given latitude (degrees) and zoom level.
func MetersPerPixel(latitude, zoom float64) float64 {
	rad := latitude * math.Pi / 180
	return EarthCircumference * math.Cos(rad) / math.Pow(2, zoom+8)
}
