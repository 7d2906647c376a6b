// Package site holds the site boundary drawn on the map: the polygon, the
// map interaction mode and the conversions that place the boundary in the
// 3D scene.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// BoundaryKey is the persistence key of the site polygon.
const BoundaryKey = "buildx-polygon-0.1.0"

var (
	// ErrInvalidPolygon is returned for polygons that cannot be a site
	// boundary.
	ErrInvalidPolygon = errors.New("invalid site polygon")

	// ErrNoBoundary is returned by a Persister holding no boundary.
	ErrNoBoundary = errors.New("no site boundary")
)

// Mode is the map interaction mode.
type Mode string

const (
	ModeSearch Mode = "SEARCH"
	ModeDraw   Mode = "DRAW"
)

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSearch, ModeDraw:
		return m, nil
	}
	return "", fmt.Errorf("site: unknown mode %q", s)
}

// Persister stores the encoded boundary.
type Persister interface {
	LoadBoundary(ctx context.Context, key string) ([]byte, error)
	SaveBoundary(ctx context.Context, key string, payload []byte) error
}

// Event is delivered to subscribers after the polygon or mode changes.
type Event struct {
	Polygon orb.Polygon
	Mode    Mode
}

// Store is the site boundary state. The polygon starts unset and the mode
// starts at ModeSearch. It is safe for concurrent use.
type Store struct {
	persister Persister
	logger    *slog.Logger

	mu      sync.RWMutex
	polygon orb.Polygon
	mode    Mode

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewStore returns an empty Store. p may be nil for an unpersisted store.
func NewStore(p Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		persister: p,
		logger:    logger,
		mode:      ModeSearch,
		subs:      make(map[int]func(Event)),
	}
}

// Open loads the persisted boundary, if any. A stored payload that no
// longer decodes is logged and ignored.
func (s *Store) Open(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	payload, err := s.persister.LoadBoundary(ctx, BoundaryKey)
	if errors.Is(err, ErrNoBoundary) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("site: load boundary: %w", err)
	}
	p, err := DecodePolygon(payload)
	if err != nil {
		s.logger.Warn("ignoring stored site boundary", "error", err)
		return nil
	}
	s.mu.Lock()
	s.polygon = p
	s.mu.Unlock()
	return nil
}

// Polygon returns a copy of the boundary, or false when none is set.
func (s *Store) Polygon() (orb.Polygon, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.polygon == nil {
		return nil, false
	}
	return s.polygon.Clone(), true
}

// SetPolygon replaces the boundary and persists it. Unclosed rings are
// closed. The in-memory state is only updated once the write succeeds.
func (s *Store) SetPolygon(ctx context.Context, p orb.Polygon) error {
	p = closeRings(p.Clone())
	if err := validate(p); err != nil {
		return err
	}
	if s.persister != nil {
		payload, err := EncodePolygon(p)
		if err != nil {
			return err
		}
		if err := s.persister.SaveBoundary(ctx, BoundaryKey, payload); err != nil {
			return fmt.Errorf("site: save boundary: %w", err)
		}
	}

	s.mu.Lock()
	s.polygon = p
	mode := s.mode
	s.mu.Unlock()

	s.notify(Event{Polygon: p.Clone(), Mode: mode})
	return nil
}

// Mode returns the map interaction mode.
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode changes the map interaction mode.
func (s *Store) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	s.mu.Lock()
	if s.mode == m {
		s.mu.Unlock()
		return nil
	}
	s.mode = m
	var p orb.Polygon
	if s.polygon != nil {
		p = s.polygon.Clone()
	}
	s.mu.Unlock()

	s.notify(Event{Polygon: p, Mode: m})
	return nil
}

// Subscribe registers fn to be called after each change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify(ev Event) {
	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = s.subs[id]
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// EncodePolygon encodes p as a GeoJSON geometry.
func EncodePolygon(p orb.Polygon) ([]byte, error) {
	b, err := geojson.NewGeometry(p).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("site: encode polygon: %w", err)
	}
	return b, nil
}

// DecodePolygon decodes a GeoJSON Polygon geometry, closing open rings.
func DecodePolygon(b []byte) (orb.Polygon, error) {
	g, err := geojson.UnmarshalGeometry(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}
	p, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("%w: geometry is %s, not Polygon", ErrInvalidPolygon, g.Type)
	}
	p = closeRings(p)
	if err := validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func closeRings(p orb.Polygon) orb.Polygon {
	for i, r := range p {
		if len(r) > 0 && !r.Closed() {
			p[i] = append(r, r[0])
		}
	}
	return p
}

// validate requires a closed outer ring with at least three distinct
// vertices.
func validate(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no rings", ErrInvalidPolygon)
	}
	outer := p[0]
	if len(outer) < 4 || !outer.Closed() {
		return fmt.Errorf("%w: outer ring needs at least 3 vertices and must be closed", ErrInvalidPolygon)
	}
	distinct := make(map[orb.Point]bool, len(outer))
	for _, pt := range outer[:len(outer)-1] {
		distinct[pt] = true
	}
	if len(distinct) < 3 {
		return fmt.Errorf("%w: outer ring has %d distinct vertices", ErrInvalidPolygon, len(distinct))
	}
	return nil
}
