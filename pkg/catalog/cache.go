package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SnapshotKey is the key the catalog snapshot is stored under.
const SnapshotKey = "buildx-systems-v2"

// DefaultSnapshotTTL is how long a saved snapshot is considered fresh.
const DefaultSnapshotTTL = 15 * time.Minute

var (
	// ErrUnavailable is returned while no valid catalog is loaded, either
	// because loading has not finished or because it failed.
	ErrUnavailable = errors.New("catalog unavailable")

	// ErrNoSnapshot is returned by a SnapshotStore holding no snapshot.
	ErrNoSnapshot = errors.New("no catalog snapshot")
)

func errorf(format string, args ...any) error {
	return fmt.Errorf("catalog: "+format, args...)
}

// SnapshotStore persists serialized catalogs between sessions.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, key string) ([]byte, time.Time, error)
	SaveSnapshot(ctx context.Context, key string, payload []byte, savedAt time.Time) error
}

// State is the lifecycle state of a Cache.
type State int

const (
	StatePending     State = iota // nothing loaded yet
	StateReady                    // a valid catalog is available
	StateUnavailable              // the last load failed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Cache loads the catalog once per session and hands out the same
// *Catalog to every caller afterwards.
type Cache struct {
	source    Source
	snapshots SnapshotStore
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger

	loadMu sync.Mutex // held for a whole Load

	mu      sync.Mutex
	state   State
	catalog *Catalog
	err     error
}

// Option configures a Cache.
type Option func(*Cache)

// WithSnapshots enables reading and writing snapshots through store.
func WithSnapshots(store SnapshotStore) Option {
	return func(c *Cache) { c.snapshots = store }
}

// WithTTL overrides DefaultSnapshotTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache returns a Cache in StatePending.
func NewCache(src Source, opts ...Option) *Cache {
	c := &Cache{
		source: src,
		ttl:    DefaultSnapshotTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewStaticCache returns a Cache already Ready with cat, for callers that
// assemble the catalog themselves.
func NewStaticCache(cat *Catalog) (*Cache, error) {
	c := NewCache(nil)
	if err := cat.prepare(); err != nil {
		return nil, err
	}
	c.state, c.catalog = StateReady, cat
	return c, nil
}

// Load makes the catalog available. A Ready cache returns its catalog
// without doing any work. Otherwise a snapshot younger than the TTL is
// used when present, falling back to the source; a successful fetch is
// written back as the new snapshot. A failed fetch leaves the cache in
// StateUnavailable and returns an error wrapping ErrUnavailable; Load may
// be called again to retry. Concurrent loads are serialized, and Get and
// State keep answering while one is in progress.
func (c *Cache) Load(ctx context.Context) (*Catalog, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if cat, err := c.Get(); err == nil {
		return cat, nil
	}

	cat := c.readSnapshot(ctx)
	fetched := false
	if cat == nil {
		var err error
		if cat, err = c.fetch(ctx); err != nil {
			c.mu.Lock()
			c.state, c.err = StateUnavailable, err
			c.mu.Unlock()
			c.logger.Warn("catalog fetch failed", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		fetched = true
	}

	c.mu.Lock()
	c.state, c.catalog, c.err = StateReady, cat, nil
	c.mu.Unlock()
	if fetched {
		c.writeSnapshot(ctx, cat)
	}
	return cat, nil
}

// Get returns the loaded catalog, or ErrUnavailable when the cache is not
// Ready.
func (c *Cache) Get() (*Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateReady:
		return c.catalog, nil
	case StateUnavailable:
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, c.err)
	default:
		return nil, fmt.Errorf("%w: not loaded", ErrUnavailable)
	}
}

// State returns the current lifecycle state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cache) fetch(ctx context.Context) (*Catalog, error) {
	if c.source == nil {
		return nil, errorf("no source configured")
	}
	cat, err := c.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, errorf("source returned no catalog")
	}
	if err := cat.prepare(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Cache) readSnapshot(ctx context.Context) *Catalog {
	if c.snapshots == nil {
		return nil
	}
	payload, savedAt, err := c.snapshots.LoadSnapshot(ctx, SnapshotKey)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			c.logger.Warn("catalog snapshot read failed", "error", err)
		}
		return nil
	}
	if age := c.now().Sub(savedAt); age >= c.ttl {
		c.logger.Debug("catalog snapshot stale", "age", age)
		return nil
	}
	var cat Catalog
	if err := json.Unmarshal(payload, &cat); err != nil {
		c.logger.Warn("catalog snapshot corrupt", "error", err)
		return nil
	}
	if err := cat.prepare(); err != nil {
		c.logger.Warn("catalog snapshot invalid", "error", err)
		return nil
	}
	c.logger.Debug("catalog loaded from snapshot", "saved_at", savedAt)
	return &cat
}

func (c *Cache) writeSnapshot(ctx context.Context, cat *Catalog) {
	if c.snapshots == nil {
		return
	}
	payload, err := json.Marshal(cat)
	if err != nil {
		c.logger.Warn("catalog snapshot encode failed", "error", err)
		return
	}
	if err := c.snapshots.SaveSnapshot(ctx, SnapshotKey, payload, c.now()); err != nil {
		c.logger.Warn("catalog snapshot write failed", "error", err)
	}
}

// prepare normalizes and validates a freshly decoded catalog and computes
// its derived render data.
func (c *Catalog) prepare() error {
	c.dropEmptyHouseTypes()
	if err := c.validate(); err != nil {
		return err
	}
	c.buildRenderMaterials()
	return nil
}
