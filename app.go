package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/engine"
	"github.com/chazu/buildx/pkg/geometry"
	"github.com/chazu/buildx/pkg/houses"
	"github.com/chazu/buildx/pkg/kernel"
	"github.com/chazu/buildx/pkg/kernel/sdfx"
	"github.com/chazu/buildx/pkg/site"
	"github.com/chazu/buildx/pkg/system"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Runtime event names emitted to the frontend.
const (
	EventModuleGeometry = "geometry:module"
	EventSiteChanged    = "site:changed"
)

// colorPalette assigns colours to preview parts, which have no material.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App is the Wails backend. It exposes methods to the frontend via bindings.
type App struct {
	ctx     context.Context
	sys     *system.System
	engine  *engine.Engine
	kernel  kernel.Kernel
	logger  *slog.Logger
	emit    func(ctx context.Context, name string, data ...any)
	cancels []func()
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Vertices   []float32 `json:"vertices"`
	Normals    []float32 `json:"normals"`
	UVs        []float32 `json:"uvs,omitempty"`
	Indices    []uint32  `json:"indices"`
	PartName   string    `json:"partName"`
	Material   string    `json:"material,omitempty"`
	Color      string    `json:"color"`
	TextureURL string    `json:"textureUrl,omitempty"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// PreviewResult is returned by PreviewScene.
type PreviewResult struct {
	Meshes []MeshData      `json:"meshes"`
	Errors []EvalErrorData `json:"errors"`
}

// SiteData is the site boundary as sent to the frontend.
type SiteData struct {
	GeoJSON string     `json:"geojson"`
	Mode    string     `json:"mode"`
	Centre  [2]float64 `json:"centre"`
	Outline []float64  `json:"outline"` // local [x, y, z] triples
	AreaM2  float64    `json:"areaM2"`
}

// HouseData is a placed house with the display name of its type.
type HouseData struct {
	houses.House
	TypeName string `json:"typeName"`
}

// NewApp creates an App over an opened system.
func NewApp(sys *system.System) *App {
	return &App{
		sys:    sys,
		engine: engine.NewEngine(),
		kernel: sdfx.New(),
		logger: sys.Logger,
		emit:   runtime.EventsEmit,
	}
}

// startup is called by Wails on app startup. The context is saved for the
// runtime event calls made by store subscriptions.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.cancels = append(a.cancels,
		a.sys.Geometry.Cache().Subscribe(func(ev geometry.Event) {
			a.emit(a.ctx, EventModuleGeometry, ev)
		}),
		a.sys.Site.Subscribe(func(site.Event) {
			data, err := a.SiteBoundary()
			if err != nil {
				a.logger.Warn("site event dropped", "error", err)
				return
			}
			a.emit(a.ctx, EventSiteChanged, data)
		}),
	)
}

// shutdown is called by Wails when the window closes.
func (a *App) shutdown(context.Context) {
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil
	if err := a.sys.Close(); err != nil {
		a.logger.Error("close", "error", err)
	}
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// Catalog returns the loaded catalog.
func (a *App) Catalog() (*catalog.Catalog, error) {
	return a.sys.Catalog.Get()
}

// ReloadCatalog retries loading the catalog after a failed start. It is a
// no-op returning the current catalog once one is loaded.
func (a *App) ReloadCatalog() (*catalog.Catalog, error) {
	cat, err := a.sys.Catalog.Load(a.context())
	if err != nil {
		a.logger.Warn("catalog reload failed", "error", err)
		return nil, err
	}
	return cat, nil
}

// ModuleGeometries returns one coloured mesh per element of the module,
// sorted by element name.
func (a *App) ModuleGeometries(dna string) ([]MeshData, error) {
	g, err := a.sys.Geometry.ModuleGeometries(a.context(), dna)
	if err != nil {
		return nil, err
	}
	cat, err := a.sys.Catalog.Get()
	if err != nil {
		return nil, err
	}
	out := make([]MeshData, 0, len(g))
	for _, name := range g.Elements() {
		out = append(out, elementMesh(cat, name, g[name]))
	}
	return out, nil
}

// ElementGeometry returns the merged mesh of one element of the module.
func (a *App) ElementGeometry(dna, element string) (MeshData, error) {
	m, err := a.sys.Geometry.ElementGeometry(a.context(), dna, element)
	if err != nil {
		return MeshData{}, err
	}
	cat, err := a.sys.Catalog.Get()
	if err != nil {
		return MeshData{}, err
	}
	return elementMesh(cat, element, m), nil
}

func elementMesh(cat *catalog.Catalog, element string, m *kernel.Mesh) MeshData {
	rm := cat.ElementMaterial(element)
	return MeshData{
		Vertices:   m.Vertices,
		Normals:    m.Normals,
		UVs:        m.UVs,
		Indices:    m.Indices,
		PartName:   element,
		Material:   rm.Name,
		Color:      hexColor(rm.Color),
		TextureURL: rm.TextureURL,
	}
}

func hexColor(c [3]float32) string {
	b := func(v float32) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, float64(v))) * 255))
	}
	return fmt.Sprintf("#%02x%02x%02x", b(c[0]), b(c[1]), b(c[2]))
}

// SiteBoundary returns the site boundary, or an empty GeoJSON string
// while none is drawn.
func (a *App) SiteBoundary() (SiteData, error) {
	data := SiteData{Mode: string(a.sys.Site.Mode()), Outline: []float64{}}
	p, ok := a.sys.Site.Polygon()
	if !ok {
		return data, nil
	}
	b, err := site.EncodePolygon(p)
	if err != nil {
		return SiteData{}, err
	}
	c := site.Centre(p)
	data.GeoJSON = string(b)
	data.Centre = [2]float64{c[0], c[1]}
	for _, v := range site.LocalCoordinates(p) {
		data.Outline = append(data.Outline, v[0], v[1], v[2])
	}
	data.AreaM2 = site.Area(p)
	return data, nil
}

// PlotSlabThickness is the thickness of the ground slab drawn under the
// site boundary, in meters.
const PlotSlabThickness = 0.2

// SiteMeshes returns the boundary line and the plot slab, or no meshes
// while no boundary is drawn.
func (a *App) SiteMeshes() ([]MeshData, error) {
	p, ok := a.sys.Site.Polygon()
	if !ok {
		return []MeshData{}, nil
	}
	line := site.BoundaryLine(p)
	slab, err := site.PlotSlab(a.kernel, p, PlotSlabThickness)
	if err != nil {
		return nil, fmt.Errorf("plot slab: %w", err)
	}
	return []MeshData{
		{Vertices: line.Vertices, PartName: line.PartName, Color: "#ffffff"},
		{Vertices: slab.Vertices, Normals: slab.Normals, Indices: slab.Indices, PartName: slab.PartName, Color: "#7fa36b"},
	}, nil
}

// SetSiteBoundary replaces the site boundary with a GeoJSON polygon.
func (a *App) SetSiteBoundary(geojson string) error {
	p, err := site.DecodePolygon([]byte(geojson))
	if err != nil {
		return err
	}
	return a.sys.Site.SetPolygon(a.context(), p)
}

// SetMapMode switches between SEARCH and DRAW.
func (a *App) SetMapMode(mode string) error {
	m, err := site.ParseMode(mode)
	if err != nil {
		return err
	}
	return a.sys.Site.SetMode(m)
}

// Houses lists the placed houses in placement order.
func (a *App) Houses() []HouseData {
	list := a.sys.Houses.List()
	cat, _ := a.sys.Catalog.Get()
	out := make([]HouseData, 0, len(list))
	for _, h := range list {
		d := HouseData{House: h}
		if cat != nil {
			if ht, ok := cat.HouseType(h.HouseTypeID); ok {
				d.TypeName = ht.Name
			}
		}
		out = append(out, d)
	}
	return out
}

// AddHouse places a house of the given type on the ground plane.
func (a *App) AddHouse(houseTypeID string, x, z float64) (houses.House, error) {
	return a.sys.Houses.Add(a.context(), houseTypeID, [3]float64{x, 0, z})
}

// MoveHouse repositions a placed house.
func (a *App) MoveHouse(id string, x, z, rotation float64) (houses.House, error) {
	return a.sys.Houses.Move(a.context(), id, [3]float64{x, 0, z}, rotation)
}

// RemoveHouse deletes a placed house.
func (a *App) RemoveHouse(id string) error {
	return a.sys.Houses.Remove(a.context(), id)
}

// PreviewScene evaluates scene source typed in the editor and returns the
// meshes each catalog element would receive, without caching anything.
// Labels the merge leaves out are returned under their own name in a
// palette colour so authors can see what will be dropped.
func (a *App) PreviewScene(source string) PreviewResult {
	result := PreviewResult{
		Meshes: []MeshData{},
		Errors: []EvalErrorData{},
	}

	g, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		a.logger.Debug("preview evaluation failed", "error", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	cat, err := a.sys.Catalog.Get()
	if err != nil {
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	r := a.sys.Config.Resolver()
	merged := geometry.MergeModule(g, r, cat.Elements)
	for _, name := range merged.Elements() {
		result.Meshes = append(result.Meshes, elementMesh(cat, name, merged[name]))
	}

	var unresolved []string
	for _, label := range g.Labels() {
		if _, ok := r.ForMerge(label, cat.Elements); !ok {
			unresolved = append(unresolved, label)
		}
	}
	sort.Strings(unresolved)
	for i, label := range unresolved {
		m := kernel.Merge(g.Get(label).Meshes()...)
		if m == nil {
			continue
		}
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			UVs:      m.UVs,
			Indices:  m.Indices,
			PartName: label,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return result
}
