package site

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chazu/buildx/pkg/kernel/sdfx"
	"github.com/paulmach/orb"
)

// square is a closed 10 x 10 ring with corners at (100, 200) and (110, 210).
func square() orb.Polygon {
	return orb.Polygon{{{100, 200}, {110, 200}, {110, 210}, {100, 210}, {100, 200}}}
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestCentreExcludesClosingVertex(t *testing.T) {
	c := Centre(square())
	if !near(c[0], 105, 1e-9) || !near(c[1], 205, 1e-9) {
		t.Errorf("Centre = %v, want [105 205]", c)
	}

	// An uneven ring shows the closing vertex is not counted twice.
	tri := orb.Polygon{{{0, 0}, {3, 0}, {0, 3}, {0, 0}}}
	if c := Centre(tri); !near(c[0], 1, 1e-9) || !near(c[1], 1, 1e-9) {
		t.Errorf("Centre = %v, want [1 1]", c)
	}

	if c := Centre(nil); c != (orb.Point{}) {
		t.Errorf("Centre(nil) = %v", c)
	}
}

func TestLocalCoordinates(t *testing.T) {
	got := LocalCoordinates(square())
	want := [][3]float64{
		{-5, 0.1, -5}, {5, 0.1, -5}, {5, 0.1, 5}, {-5, 0.1, 5}, {-5, 0.1, -5},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		for j := 0; j < 3; j++ {
			if !near(got[i][j], want[i][j], 1e-9) {
				t.Errorf("coord %d = %v, want %v", i, got[i], want[i])
				break
			}
		}
	}
}

func TestBoundaryLine(t *testing.T) {
	m := BoundaryLine(square())
	if m.VertexCount() != 5 {
		t.Errorf("vertices = %d, want 5", m.VertexCount())
	}
	if m.Normals != nil || m.Indices != nil {
		t.Error("boundary line should be position-only")
	}
	if m.Vertices[1] != float32(BoundaryHeight) {
		t.Errorf("y = %g, want %g", m.Vertices[1], BoundaryHeight)
	}
	if !BoundaryLine(nil).IsEmpty() {
		t.Error("nil polygon should give an empty line")
	}
}

func TestPlotSlab(t *testing.T) {
	m, err := PlotSlab(sdfx.NewWithCells(24), square(), 0.5)
	if err != nil {
		t.Fatalf("PlotSlab: %v", err)
	}
	if m.TriangleCount() == 0 {
		t.Fatal("empty slab")
	}
	lo, hi := m.Bounds()
	// Marching cubes rounds to the cell grid.
	const tol = 0.6
	if !near(float64(lo[0]), -5, tol) || !near(float64(hi[0]), 5, tol) {
		t.Errorf("x range = [%g, %g], want about [-5, 5]", lo[0], hi[0])
	}
	if !near(float64(lo[2]), -5, tol) || !near(float64(hi[2]), 5, tol) {
		t.Errorf("z range = [%g, %g], want about [-5, 5]", lo[2], hi[2])
	}
	if hi[1] > 0.1 || lo[1] < -0.5-tol {
		t.Errorf("y range = [%g, %g], want top at 0 and depth 0.5", lo[1], hi[1])
	}
	if m.PartName != "plot" {
		t.Errorf("PartName = %q", m.PartName)
	}
}

func TestPlotSlabRejectsInvalid(t *testing.T) {
	_, err := PlotSlab(sdfx.New(), orb.Polygon{{{0, 0}, {1, 1}, {0, 0}}}, 1)
	if !errors.Is(err, ErrInvalidPolygon) {
		t.Errorf("err = %v, want ErrInvalidPolygon", err)
	}
}

func TestLonLatRoundTrip(t *testing.T) {
	ll := orb.Polygon{{{-0.055219, 51.54093}, {-0.054, 51.54093}, {-0.054, 51.5415}, {-0.055219, 51.54093}}}
	merc := FromLonLat(ll)
	if merc[0][0] == ll[0][0] {
		t.Fatal("FromLonLat did not project")
	}
	back := ToLonLat(merc)
	for i := range ll[0] {
		if !near(back[0][i][0], ll[0][i][0], 1e-9) || !near(back[0][i][1], ll[0][i][1], 1e-9) {
			t.Errorf("vertex %d = %v, want %v", i, back[0][i], ll[0][i])
		}
	}
	// Inputs are not modified.
	if ll[0][1] != (orb.Point{-0.054, 51.54093}) {
		t.Error("FromLonLat modified its input")
	}
}

func TestArea(t *testing.T) {
	// A 100 m square at the equator.
	p := orb.Polygon{{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}}}
	if a := math.Abs(Area(p)); !near(a, 10000, 200) {
		t.Errorf("Area = %g, want about 10000", a)
	}
}

func TestMetersPerPixel(t *testing.T) {
	tests := []struct {
		lat, zoom, want float64
	}{
		{0, 0, 40075017.0 / 256},
		{0, 1, 40075017.0 / 512},
		{60, 0, 40075017.0 * 0.5 / 256},
	}
	for _, tt := range tests {
		if got := MetersPerPixel(tt.lat, tt.zoom); !near(got, tt.want, 1e-6) {
			t.Errorf("MetersPerPixel(%g, %g) = %g, want %g", tt.lat, tt.zoom, got, tt.want)
		}
	}
}

type memPersister struct {
	data    map[string][]byte
	saveErr error
}

func (m *memPersister) LoadBoundary(_ context.Context, key string) ([]byte, error) {
	b, ok := m.data[key]
	if !ok {
		return nil, ErrNoBoundary
	}
	return b, nil
}

func (m *memPersister) SaveBoundary(_ context.Context, key string, payload []byte) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = payload
	return nil
}

func TestStorePersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{data: map[string][]byte{}}

	s := NewStore(p, nil)
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open empty: %v", err)
	}
	if _, ok := s.Polygon(); ok {
		t.Fatal("new store has a polygon")
	}
	if err := s.SetPolygon(ctx, square()); err != nil {
		t.Fatalf("SetPolygon: %v", err)
	}
	if _, ok := p.data[BoundaryKey]; !ok {
		t.Fatal("polygon not persisted")
	}

	reopened := NewStore(p, nil)
	if err := reopened.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, ok := reopened.Polygon()
	if !ok || !got.Equal(square()) {
		t.Errorf("reloaded polygon = %v", got)
	}
}

func TestStoreSetPolygonClosesRing(t *testing.T) {
	s := NewStore(nil, nil)
	open := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}}}
	if err := s.SetPolygon(context.Background(), open); err != nil {
		t.Fatalf("SetPolygon: %v", err)
	}
	got, _ := s.Polygon()
	if len(got[0]) != 4 || !got[0].Closed() {
		t.Errorf("ring = %v, want closed with 4 positions", got[0])
	}
	if len(open[0]) != 3 {
		t.Error("SetPolygon modified its argument")
	}
}

func TestStoreRejects(t *testing.T) {
	ctx := context.Background()
	s := NewStore(&memPersister{data: map[string][]byte{}}, nil)
	for _, p := range []orb.Polygon{
		nil,
		{{}},
		{{{0, 0}, {1, 1}}},
		{{{0, 0}, {1, 1}, {1, 1}, {0, 0}}},
	} {
		if err := s.SetPolygon(ctx, p); !errors.Is(err, ErrInvalidPolygon) {
			t.Errorf("SetPolygon(%v) err = %v, want ErrInvalidPolygon", p, err)
		}
	}

	boom := errors.New("disk full")
	failing := NewStore(&memPersister{data: map[string][]byte{}, saveErr: boom}, nil)
	if err := failing.SetPolygon(ctx, square()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want disk full", err)
	}
	if _, ok := failing.Polygon(); ok {
		t.Error("polygon kept after failed save")
	}
}

func TestStoreIgnoresCorruptPayload(t *testing.T) {
	p := &memPersister{data: map[string][]byte{BoundaryKey: []byte(`{"type":"Point","coordinates":[0,0]}`)}}
	s := NewStore(p, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.Polygon(); ok {
		t.Error("corrupt payload loaded")
	}
}

func TestStoreModeAndSubscribe(t *testing.T) {
	s := NewStore(nil, nil)
	if s.Mode() != ModeSearch {
		t.Errorf("initial mode = %s", s.Mode())
	}

	var events []Event
	cancel := s.Subscribe(func(ev Event) { events = append(events, ev) })

	if err := s.SetMode(ModeDraw); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMode(ModeDraw); err != nil { // unchanged: no event
		t.Fatal(err)
	}
	if err := s.SetPolygon(context.Background(), square()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMode("ZOOM"); err == nil {
		t.Error("expected error for unknown mode")
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Mode != ModeDraw || events[0].Polygon != nil {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Mode != ModeDraw || !events[1].Polygon.Equal(square()) {
		t.Errorf("second event = %+v", events[1])
	}

	cancel()
	_ = s.SetMode(ModeSearch)
	if len(events) != 2 {
		t.Error("event delivered after cancel")
	}
}

func TestEncodeDecodePolygon(t *testing.T) {
	b, err := EncodePolygon(square())
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodePolygon(b)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Equal(square()) {
		t.Errorf("decoded = %v", p)
	}
	if _, err := DecodePolygon([]byte(`not json`)); !errors.Is(err, ErrInvalidPolygon) {
		t.Errorf("err = %v, want ErrInvalidPolygon", err)
	}
}
