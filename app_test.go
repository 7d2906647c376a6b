package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chazu/buildx/pkg/config"
	"github.com/chazu/buildx/pkg/geometry"
	"github.com/chazu/buildx/pkg/houses"
	"github.com/chazu/buildx/pkg/site"
	"github.com/chazu/buildx/pkg/system"
	"github.com/chazu/buildx/pkg/store/sqlite"
)

const (
	midDNA = "A1-01-GRID1-MID-ST0-L0-SIDE0-SIDE0-END0-TOP0"
	endDNA = "A1-01-GRID1-END-ST0-L0-SIDE0-SIDE0-END0-TOP0"
)

// newTestApp opens the example catalog and modules against an in-memory
// database.
func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DatabasePath = sqlite.MemoryPath
	cfg.CatalogFiles = []string{"examples/catalog.json"}
	cfg.AssetRoot = "examples"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	sys, err := system.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open system: %v", err)
	}
	t.Cleanup(func() { sys.Close() })
	return NewApp(sys)
}

type recorder struct {
	mu     sync.Mutex
	events map[string][]any
}

func (r *recorder) emit(_ context.Context, name string, data ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string][]any)
	}
	r.events[name] = append(r.events[name], data...)
}

func (r *recorder) get(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[name]
}

// TestE2EModuleGeometries exercises the full pipeline: catalog -> scene
// source -> engine -> resolver -> merge -> cache, the same path that the
// Wails ModuleGeometries binding takes, without the Wails runtime.
func TestE2EModuleGeometries(t *testing.T) {
	app := newTestApp(t)

	meshes, err := app.ModuleGeometries(midDNA)
	if err != nil {
		t.Fatalf("ModuleGeometries: %v", err)
	}

	want := []struct{ part, material, color string }{
		{"Floor", "Oak flooring", "#c49a6c"},
		{"Roof", "Standing seam", "#3c3f44"},
		{"Wall", "Plywood", "#d9b38c"},
	}
	if len(meshes) != len(want) {
		t.Fatalf("expected %d meshes, got %d", len(want), len(meshes))
	}
	for i, w := range want {
		m := meshes[i]
		if m.PartName != w.part || m.Material != w.material || m.Color != w.color {
			t.Errorf("mesh %d = {%s %s %s}, want %+v", i, m.PartName, m.Material, m.Color, w)
		}
		if len(m.Vertices) == 0 || len(m.Normals) == 0 || len(m.Indices) == 0 {
			t.Errorf("part %q: empty buffers", m.PartName)
		}
	}
	// Two wall boxes merged into one buffer.
	if got := len(meshes[2].Vertices) / 3; got != 48 {
		t.Errorf("Wall vertices = %d, want 48", got)
	}
	wall := meshes[2]
	if len(wall.UVs) != len(wall.Vertices)/3*2 {
		t.Errorf("Wall UVs = %d floats, want %d", len(wall.UVs), len(wall.Vertices)/3*2)
	}
	if wall.TextureURL != "textures/plywood.jpg" {
		t.Errorf("Wall texture = %q", wall.TextureURL)
	}
	if meshes[0].TextureURL != "" {
		t.Errorf("Floor texture = %q, want none", meshes[0].TextureURL)
	}
}

func TestE2EEndModuleExcludesAppliance(t *testing.T) {
	app := newTestApp(t)

	meshes, err := app.ModuleGeometries(endDNA)
	if err != nil {
		t.Fatalf("ModuleGeometries: %v", err)
	}
	var parts []string
	for _, m := range meshes {
		parts = append(parts, m.PartName)
	}
	want := []string{"Floor", "Roof", "Wall", "Window"}
	if len(parts) != len(want) {
		t.Fatalf("parts = %v, want %v", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("parts = %v, want %v", parts, want)
		}
	}
	// The second wall node is stored as IfcWallStandardCase_1 and still
	// resolves to Wall.
	if got := len(meshes[2].Vertices) / 3; got != 72 {
		t.Errorf("Wall vertices = %d, want 72", got)
	}

	_, err = app.ElementGeometry(endDNA, "Appliance")
	if !errors.Is(err, geometry.ErrElementNotFound) {
		t.Errorf("Appliance: err = %v, want ErrElementNotFound", err)
	}
	_, err = app.ElementGeometry(endDNA, "Door")
	if !errors.Is(err, geometry.ErrElementNotFound) {
		t.Errorf("Door: err = %v, want ErrElementNotFound", err)
	}

	w, err := app.ElementGeometry(endDNA, "Window")
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.Color != "#bcd8e6" || len(w.Vertices)/3 != 24 {
		t.Errorf("Window = %s with %d vertices", w.Color, len(w.Vertices)/3)
	}

	if got := app.sys.Assets.Cached(); got != 1 {
		t.Errorf("assets loaded = %d, want 1", got)
	}
}

func TestE2EUnknownModule(t *testing.T) {
	app := newTestApp(t)
	if _, err := app.ModuleGeometries("NOT-A-MODULE"); !errors.Is(err, geometry.ErrUnknownModule) {
		t.Errorf("err = %v, want ErrUnknownModule", err)
	}
}

func TestE2EGeometryEvents(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	app.emit = rec.emit
	app.startup(context.Background())

	if _, err := app.ModuleGeometries(midDNA); err != nil {
		t.Fatal(err)
	}
	if _, err := app.ElementGeometry(midDNA, "Wall"); err != nil {
		t.Fatal(err)
	}

	evs := rec.get(EventModuleGeometry)
	if len(evs) != 1 {
		t.Fatalf("expected 1 geometry event, got %d", len(evs))
	}
	ev := evs[0].(geometry.Event)
	if ev.DNA != midDNA || len(ev.Elements) != 3 {
		t.Errorf("event = %+v", ev)
	}

	app.shutdown(context.Background())
	if app.cancels != nil {
		t.Error("subscriptions should be released on shutdown")
	}
}

func TestE2ESiteBoundary(t *testing.T) {
	app := newTestApp(t)
	rec := &recorder{}
	app.emit = rec.emit
	app.startup(context.Background())

	empty, err := app.SiteBoundary()
	if err != nil {
		t.Fatal(err)
	}
	if empty.GeoJSON != "" || empty.Mode != "SEARCH" || empty.Outline == nil {
		t.Errorf("unset boundary = %+v", empty)
	}
	meshes, err := app.SiteMeshes()
	if err != nil || len(meshes) != 0 {
		t.Errorf("SiteMeshes without boundary = %d meshes, err %v", len(meshes), err)
	}

	// An open ring is closed on the way in.
	err = app.SetSiteBoundary(`{"type":"Polygon","coordinates":[[[100,200],[120,200],[120,230],[100,230]]]}`)
	if err != nil {
		t.Fatalf("SetSiteBoundary: %v", err)
	}
	got, err := app.SiteBoundary()
	if err != nil {
		t.Fatal(err)
	}
	if got.Centre != [2]float64{110, 215} {
		t.Errorf("centre = %v", got.Centre)
	}
	if len(got.Outline) != 5*3 {
		t.Fatalf("outline floats = %d, want 15", len(got.Outline))
	}
	if got.Outline[0] != -10 || got.Outline[1] != site.BoundaryHeight || got.Outline[2] != -15 {
		t.Errorf("first local vertex = %v", got.Outline[:3])
	}
	if got.AreaM2 <= 0 {
		t.Errorf("area = %g", got.AreaM2)
	}
	if n := len(rec.get(EventSiteChanged)); n != 1 {
		t.Errorf("site events = %d, want 1", n)
	}

	meshes, err = app.SiteMeshes()
	if err != nil {
		t.Fatalf("SiteMeshes: %v", err)
	}
	if len(meshes) != 2 || meshes[0].PartName != "boundary" || meshes[1].PartName != "plot" {
		t.Fatalf("site meshes = %d", len(meshes))
	}
	if len(meshes[1].Indices) == 0 {
		t.Error("plot slab has no triangles")
	}

	if err := app.SetSiteBoundary(`{"type":"Point","coordinates":[1,2]}`); !errors.Is(err, site.ErrInvalidPolygon) {
		t.Errorf("point: err = %v, want ErrInvalidPolygon", err)
	}
	if err := app.SetMapMode("DRAW"); err != nil {
		t.Fatal(err)
	}
	if err := app.SetMapMode("PAN"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if got, _ := app.SiteBoundary(); got.Mode != "DRAW" {
		t.Errorf("mode = %s", got.Mode)
	}
}

func TestE2EHouses(t *testing.T) {
	app := newTestApp(t)

	h, err := app.AddHouse("ht-studio", 4, -2)
	if err != nil {
		t.Fatalf("AddHouse: %v", err)
	}
	if h.Position != [3]float64{4, 0, -2} || len(h.DNA) != 3 || h.DNA[1] != midDNA {
		t.Errorf("house = %+v", h)
	}

	list := app.Houses()
	if len(list) != 1 || list[0].TypeName != "Studio" || list[0].ID != h.ID {
		t.Fatalf("houses = %+v", list)
	}

	mods, err := houses.Geometries(context.Background(), app.sys.Geometry, h)
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 3 || len(mods[0].Geometries) != 4 || len(mods[1].Geometries) != 3 {
		t.Errorf("module geometries = %d", len(mods))
	}

	moved, err := app.MoveHouse(h.ID, 1, 1, 1.57)
	if err != nil {
		t.Fatal(err)
	}
	if moved.Rotation != 1.57 || moved.Position != [3]float64{1, 0, 1} {
		t.Errorf("moved = %+v", moved)
	}

	if err := app.RemoveHouse(h.ID); err != nil {
		t.Fatal(err)
	}
	if err := app.RemoveHouse(h.ID); !errors.Is(err, houses.ErrNotFound) {
		t.Errorf("second remove: err = %v, want ErrNotFound", err)
	}

	// House types without modules are dropped from the catalog.
	if _, err := app.AddHouse("ht-draft", 0, 0); !errors.Is(err, houses.ErrUnknownHouseType) {
		t.Errorf("ht-draft: err = %v, want ErrUnknownHouseType", err)
	}
}

func TestHexColor(t *testing.T) {
	tests := []struct {
		in   [3]float32
		want string
	}{
		{[3]float32{0, 0, 0}, "#000000"},
		{[3]float32{1, 1, 1}, "#ffffff"},
		{[3]float32{0xd9 / 255.0, 0xb3 / 255.0, 0x8c / 255.0}, "#d9b38c"},
		{[3]float32{2, -1, 0.5}, "#ff0080"},
	}
	for _, tt := range tests {
		if got := hexColor(tt.in); got != tt.want {
			t.Errorf("hexColor(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
