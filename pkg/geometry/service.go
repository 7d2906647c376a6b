package geometry

import (
	"context"
	"errors"
	"fmt"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/kernel"
	"github.com/chazu/buildx/pkg/scene"
)

// ErrUnknownModule is returned for a DNA the catalog does not list.
var ErrUnknownModule = errors.New("unknown module")

// SceneLoader loads the scene graph behind a module asset URL.
type SceneLoader interface {
	Load(ctx context.Context, url string) (*scene.Graph, error)
}

// Service answers geometry requests by DNA, pulling elements from the
// catalog cache and scene graphs from the loader on cache misses. It
// refuses to merge anything until the catalog is Ready.
type Service struct {
	catalog *catalog.Cache
	loader  SceneLoader
	cache   *Cache
}

// NewService wires a Service.
func NewService(cat *catalog.Cache, loader SceneLoader, cache *Cache) *Service {
	return &Service{catalog: cat, loader: loader, cache: cache}
}

// Cache returns the underlying geometry cache.
func (s *Service) Cache() *Cache {
	return s.cache
}

// ModuleGeometries returns all element geometries of the module.
func (s *Service) ModuleGeometries(ctx context.Context, dna string) (Geometries, error) {
	cat, g, err := s.inputs(ctx, dna)
	if err != nil {
		return nil, err
	}
	return s.cache.ModuleGeometries(dna, g, cat.Elements), nil
}

// ElementGeometry returns the merged geometry of one element of the
// module, or an error wrapping ErrElementNotFound.
func (s *Service) ElementGeometry(ctx context.Context, dna, element string) (*kernel.Mesh, error) {
	cat, g, err := s.inputs(ctx, dna)
	if err != nil {
		return nil, err
	}
	return s.cache.ElementGeometry(dna, element, g, cat.Elements)
}

// inputs returns the catalog and, unless dna is already cached, the
// module's scene graph.
func (s *Service) inputs(ctx context.Context, dna string) (*catalog.Catalog, *scene.Graph, error) {
	cat, err := s.catalog.Get()
	if err != nil {
		return nil, nil, err
	}
	if _, ok := s.cache.Lookup(dna); ok {
		return cat, nil, nil
	}
	mod, ok := cat.Module(dna)
	if !ok {
		return nil, nil, fmt.Errorf("geometry: %w: %q", ErrUnknownModule, dna)
	}
	g, err := s.loader.Load(ctx, mod.GLTFURL)
	if err != nil {
		return nil, nil, fmt.Errorf("geometry: load module %q: %w", dna, err)
	}
	return cat, g, nil
}
