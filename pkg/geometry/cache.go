package geometry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/kernel"
	"github.com/chazu/buildx/pkg/resolve"
	"github.com/chazu/buildx/pkg/scene"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// ErrElementNotFound is returned when a module's merged geometry has no
// entry for the requested element: the catalog and the 3D asset disagree.
var ErrElementNotFound = errors.New("no geometry for element")

// Event is delivered to subscribers after a module's geometry is stored.
type Event struct {
	DNA      string   `json:"dna"`
	Elements []string `json:"elements"`
}

// Cache memoizes merged module geometry per module DNA. It is safe for
// concurrent use; concurrent first requests for one DNA share a single
// merge.
type Cache struct {
	resolver *resolve.Resolver
	logger   *slog.Logger
	metrics  *cacheMetrics
	counts   counters

	mu      sync.RWMutex
	modules map[string]Geometries
	group   singleflight.Group

	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	resolver *resolve.Resolver
	logger   *slog.Logger
	registry prometheus.Registerer
}

// WithResolver sets the resolver used for merges. Defaults to resolve.New().
func WithResolver(r *resolve.Resolver) Option {
	return func(o *cacheOptions) { o.resolver = r }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *cacheOptions) { o.logger = l }
}

// WithMetrics registers the cache's prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *cacheOptions) { o.registry = reg }
}

// NewCache returns an empty Cache. It fails only when metrics registration
// fails.
func NewCache(opts ...Option) (*Cache, error) {
	o := cacheOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.resolver == nil {
		o.resolver = resolve.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &Cache{
		resolver: o.resolver,
		logger:   o.logger,
		modules:  make(map[string]Geometries),
		subs:     make(map[int]func(Event)),
	}
	if o.registry != nil {
		m, err := newCacheMetrics(o.registry)
		if err != nil {
			return nil, fmt.Errorf("geometry: register metrics: %w", err)
		}
		c.metrics = m
	}
	return c, nil
}

// ModuleGeometries returns every element geometry of the module, merging
// g on the first request for dna. It never fails; a module with no
// resolvable elements yields an empty mapping. The same map is returned on
// every call for dna.
func (c *Cache) ModuleGeometries(dna string, g *scene.Graph, elements []catalog.Element) Geometries {
	return c.module(dna, g, elements)
}

// ElementGeometry returns the merged geometry of one element of the
// module. The first request for dna merges and stores the whole module.
// A missing element is reported as ErrElementNotFound.
func (c *Cache) ElementGeometry(dna, element string, g *scene.Graph, elements []catalog.Element) (*kernel.Mesh, error) {
	m, ok := c.module(dna, g, elements)[element]
	if !ok {
		return nil, fmt.Errorf("geometry: module %q: %w: %q", dna, ErrElementNotFound, element)
	}
	return m, nil
}

// Lookup returns the stored geometry of dna without computing anything.
func (c *Cache) Lookup(dna string) (Geometries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.modules[dna]
	return g, ok
}

// Modules returns the DNAs with stored geometry, sorted.
func (c *Cache) Modules() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.modules))
	for dna := range c.modules {
		out = append(out, dna)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.modules)
	c.mu.RUnlock()
	return Stats{
		Hits:    c.counts.hits.Load(),
		Misses:  c.counts.misses.Load(),
		Merges:  c.counts.merges.Load(),
		Modules: n,
	}
}

// Subscribe registers fn to be called after each module is stored. Calls
// happen on the goroutine that performed the merge, after the entry is
// visible to readers. The returned function removes the subscription.
func (c *Cache) Subscribe(fn func(Event)) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *Cache) module(dna string, g *scene.Graph, elements []catalog.Element) Geometries {
	if geoms, ok := c.Lookup(dna); ok {
		c.counts.hits.Add(1)
		c.metrics.recordHit()
		return geoms
	}
	c.counts.misses.Add(1)
	c.metrics.recordMiss()

	v, _, _ := c.group.Do(dna, func() (any, error) {
		// A merge for dna may have finished between Lookup and Do.
		if geoms, ok := c.Lookup(dna); ok {
			return geoms, nil
		}
		return c.store(dna, g, elements), nil
	})
	return v.(Geometries)
}

func (c *Cache) store(dna string, g *scene.Graph, elements []catalog.Element) Geometries {
	start := time.Now()
	geoms, dropped := mergeModule(g, c.resolver, elements)
	took := time.Since(start)

	c.mu.Lock()
	c.modules[dna] = geoms
	n := len(c.modules)
	c.mu.Unlock()

	c.counts.merges.Add(1)
	c.metrics.recordMerge(took, len(dropped), n)
	for _, name := range dropped {
		c.logger.Debug("element meshes did not merge", "dna", dna, "element", name)
	}
	c.logger.Debug("module geometry merged",
		"dna", dna, "elements", len(geoms), "dropped", len(dropped), "took", took)

	c.notify(Event{DNA: dna, Elements: geoms.Elements()})
	return geoms
}

func (c *Cache) notify(ev Event) {
	c.subsMu.Lock()
	fns := make([]func(Event), 0, len(c.subs))
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
