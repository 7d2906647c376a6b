package geometry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/scene"
)

type fakeLoader struct {
	calls atomic.Int32
	graph *scene.Graph
	err   error
	urls  []string
}

func (f *fakeLoader) Load(_ context.Context, url string) (*scene.Graph, error) {
	f.calls.Add(1)
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.graph, nil
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Elements: append([]catalog.Element(nil), testElements...),
		Modules: []catalog.Module{
			{ID: "m1", DNA: dna, GLTFURL: "file:///modules/a1.glb"},
		},
	}
}

func newTestService(t *testing.T, loader SceneLoader) *Service {
	t.Helper()
	cat, err := catalog.NewStaticCache(testCatalog())
	if err != nil {
		t.Fatalf("NewStaticCache: %v", err)
	}
	return NewService(cat, loader, newTestCache(t))
}

func TestServiceModuleGeometries(t *testing.T) {
	loader := &fakeLoader{graph: scenarioGraph()}
	svc := newTestService(t, loader)
	ctx := context.Background()

	got, err := svc.ModuleGeometries(ctx, dna)
	if err != nil {
		t.Fatalf("ModuleGeometries: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("elements = %v, want Wall and Window", got.Elements())
	}
	if _, err := svc.ElementGeometry(ctx, dna, "Window"); err != nil {
		t.Errorf("ElementGeometry: %v", err)
	}
	if n := loader.calls.Load(); n != 1 {
		t.Errorf("loader calls = %d, want 1", n)
	}
	if loader.urls[0] != "file:///modules/a1.glb" {
		t.Errorf("loaded %q", loader.urls[0])
	}
}

func TestServiceElementNotFound(t *testing.T) {
	svc := newTestService(t, &fakeLoader{graph: scenarioGraph()})
	_, err := svc.ElementGeometry(context.Background(), dna, "Roof")
	if !errors.Is(err, ErrElementNotFound) {
		t.Errorf("err = %v, want ErrElementNotFound", err)
	}
}

func TestServiceUnknownModule(t *testing.T) {
	loader := &fakeLoader{graph: scenarioGraph()}
	svc := newTestService(t, loader)
	_, err := svc.ModuleGeometries(context.Background(), "NOPE")
	if !errors.Is(err, ErrUnknownModule) {
		t.Errorf("err = %v, want ErrUnknownModule", err)
	}
	if loader.calls.Load() != 0 {
		t.Error("loader called for unknown module")
	}
}

func TestServiceLoaderError(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(t, &fakeLoader{err: boom})
	_, err := svc.ModuleGeometries(context.Background(), dna)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if _, ok := svc.Cache().Lookup(dna); ok {
		t.Error("failed load cached a module")
	}
}

func TestServiceRefusesBeforeCatalogReady(t *testing.T) {
	src := catalog.SourceFunc(func(context.Context) (*catalog.Catalog, error) {
		return nil, errors.New("offline")
	})
	cat := catalog.NewCache(src)
	loader := &fakeLoader{graph: scenarioGraph()}
	svc := NewService(cat, loader, newTestCache(t))
	ctx := context.Background()

	if _, err := svc.ModuleGeometries(ctx, dna); !errors.Is(err, catalog.ErrUnavailable) {
		t.Errorf("pending: err = %v, want ErrUnavailable", err)
	}
	if _, err := cat.Load(ctx); err == nil {
		t.Fatal("expected load failure")
	}
	if _, err := svc.ElementGeometry(ctx, dna, "Wall"); !errors.Is(err, catalog.ErrUnavailable) {
		t.Errorf("unavailable: err = %v, want ErrUnavailable", err)
	}
	if loader.calls.Load() != 0 || svc.Cache().Stats().Merges != 0 {
		t.Error("work done while catalog unavailable")
	}
}
