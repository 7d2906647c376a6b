// Package houses tracks the house instances placed on the site. Each house
// is an instance of a catalog house type, expanded into its module DNAs
// when placed.
package houses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/geometry"
	"github.com/google/uuid"
)

// StorageKey names the houses collection in persisted state.
const StorageKey = "buildx-houses-0.1.0"

var (
	// ErrNotFound is returned for an unknown house ID.
	ErrNotFound = errors.New("house not found")

	// ErrUnknownHouseType is returned when placing a house type the catalog
	// does not list.
	ErrUnknownHouseType = errors.New("unknown house type")
)

// House is one placed house.
type House struct {
	ID          string     `json:"id"`
	HouseTypeID string     `json:"houseTypeId"`
	Name        string     `json:"friendlyName"`
	DNA         []string   `json:"dna"`
	Position    [3]float64 `json:"position"`
	Rotation    float64    `json:"rotation"`
}

func (h House) clone() House {
	h.DNA = append([]string(nil), h.DNA...)
	return h
}

// Catalog provides the loaded catalog; *catalog.Cache satisfies it.
type Catalog interface {
	Get() (*catalog.Catalog, error)
}

// Persister stores houses.
type Persister interface {
	ListHouses(ctx context.Context) ([]House, error)
	SaveHouse(ctx context.Context, h House) error
	DeleteHouse(ctx context.Context, id string) error
}

// Store holds the placed houses in placement order. Every mutation is
// written through to the Persister before it becomes visible. It is safe
// for concurrent use.
type Store struct {
	catalog   Catalog
	persister Persister
	logger    *slog.Logger

	mu     sync.RWMutex
	houses map[string]House
	order  []string
}

// NewStore returns an empty Store. p may be nil for an unpersisted store.
func NewStore(cat Catalog, p Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog:   cat,
		persister: p,
		logger:    logger,
		houses:    make(map[string]House),
	}
}

// Open loads persisted houses, replacing the in-memory set.
func (s *Store) Open(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	list, err := s.persister.ListHouses(ctx)
	if err != nil {
		return fmt.Errorf("houses: load: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.houses = make(map[string]House, len(list))
	s.order = s.order[:0]
	for _, h := range list {
		if _, dup := s.houses[h.ID]; dup {
			continue
		}
		s.houses[h.ID] = h
		s.order = append(s.order, h.ID)
	}
	s.logger.Debug("houses loaded", "count", len(s.order))
	return nil
}

// Add places a new house of the given type at position. The house takes
// the type's module DNAs at the time of placement.
func (s *Store) Add(ctx context.Context, houseTypeID string, position [3]float64) (House, error) {
	cat, err := s.catalog.Get()
	if err != nil {
		return House{}, err
	}
	ht, ok := cat.HouseType(houseTypeID)
	if !ok {
		return House{}, fmt.Errorf("houses: %w: %q", ErrUnknownHouseType, houseTypeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h := House{
		ID:          uuid.NewString(),
		HouseTypeID: ht.ID,
		Name:        s.friendlyName(ht.Name),
		DNA:         append([]string(nil), ht.DNA...),
		Position:    position,
	}
	if err := s.save(ctx, h); err != nil {
		return House{}, err
	}
	s.houses[h.ID] = h
	s.order = append(s.order, h.ID)
	return h.clone(), nil
}

// friendlyName returns "<type> N" for the lowest N not already used.
// Callers hold s.mu.
func (s *Store) friendlyName(typeName string) string {
	used := make(map[string]bool, len(s.houses))
	for _, h := range s.houses {
		used[h.Name] = true
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s %d", typeName, n)
		if !used[name] {
			return name
		}
	}
}

// Get returns the house with the given ID.
func (s *Store) Get(id string) (House, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.houses[id]
	if !ok {
		return House{}, fmt.Errorf("houses: %w: %q", ErrNotFound, id)
	}
	return h.clone(), nil
}

// List returns all houses in placement order.
func (s *Store) List() []House {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]House, len(s.order))
	for i, id := range s.order {
		out[i] = s.houses[id].clone()
	}
	return out
}

// Move sets a house's position and rotation (radians about the vertical
// axis).
func (s *Store) Move(ctx context.Context, id string, position [3]float64, rotation float64) (House, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.houses[id]
	if !ok {
		return House{}, fmt.Errorf("houses: %w: %q", ErrNotFound, id)
	}
	h.Position, h.Rotation = position, rotation
	if err := s.save(ctx, h); err != nil {
		return House{}, err
	}
	s.houses[id] = h
	return h.clone(), nil
}

// Remove deletes a house.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.houses[id]; !ok {
		return fmt.Errorf("houses: %w: %q", ErrNotFound, id)
	}
	if s.persister != nil {
		if err := s.persister.DeleteHouse(ctx, id); err != nil {
			return fmt.Errorf("houses: delete %s: %w", id, err)
		}
	}
	delete(s.houses, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) save(ctx context.Context, h House) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.SaveHouse(ctx, h); err != nil {
		return fmt.Errorf("houses: save %s: %w", h.ID, err)
	}
	return nil
}

// GeometrySource answers module geometry requests; *geometry.Service
// satisfies it.
type GeometrySource interface {
	ModuleGeometries(ctx context.Context, dna string) (geometry.Geometries, error)
}

// ModuleGeometry is the merged geometry of one module of a house.
type ModuleGeometry struct {
	DNA        string              `json:"dna"`
	Geometries geometry.Geometries `json:"geometries"`
}

// Geometries returns the element geometries of every module of h, in
// DNA order. A DNA repeated within the house shares one geometry map.
func Geometries(ctx context.Context, src GeometrySource, h House) ([]ModuleGeometry, error) {
	out := make([]ModuleGeometry, 0, len(h.DNA))
	for _, dna := range h.DNA {
		g, err := src.ModuleGeometries(ctx, dna)
		if err != nil {
			return nil, fmt.Errorf("houses: %s: module %q: %w", h.ID, dna, err)
		}
		out = append(out, ModuleGeometry{DNA: dna, Geometries: g})
	}
	return out, nil
}
