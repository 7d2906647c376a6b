// Package assets loads module scene graphs from asset URLs. Module assets
// live on local disk or in an S3 bucket and are either glTF documents or
// scene description sources evaluated by the engine.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/chazu/buildx/pkg/engine"
	"github.com/chazu/buildx/pkg/scene"
	"golang.org/x/sync/singleflight"
)

// ErrUnsupportedAsset is returned for URL schemes or file types the
// loader cannot read.
var ErrUnsupportedAsset = errors.New("unsupported asset")

// ObjectGetter is the subset of *s3.Client used to fetch assets.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader resolves asset URLs to scene graphs. Parsed graphs are cached
// per URL for the life of the Loader and concurrent loads of one URL
// share a single read.
type Loader struct {
	root   string
	s3     ObjectGetter
	engine *engine.Engine
	logger *slog.Logger

	mu     sync.RWMutex
	graphs map[string]*scene.Graph
	group  singleflight.Group
}

// Option configures a Loader.
type Option func(*Loader)

// WithS3 enables s3://bucket/key URLs.
func WithS3(c ObjectGetter) Option {
	return func(l *Loader) { l.s3 = c }
}

// WithEngine sets the engine used for .scene sources.
func WithEngine(e *engine.Engine) Option {
	return func(l *Loader) { l.engine = e }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(l *Loader) { l.logger = lg }
}

// NewLoader returns a Loader resolving bare relative paths against root.
func NewLoader(root string, opts ...Option) *Loader {
	l := &Loader{
		root:   root,
		logger: slog.Default(),
		graphs: make(map[string]*scene.Graph),
	}
	for _, o := range opts {
		o(l)
	}
	if l.engine == nil {
		l.engine = engine.NewEngine()
	}
	return l
}

// Load returns the scene graph behind url. Supported forms are
// file:///abs/path, bare paths (relative ones are joined to the root) and
// s3://bucket/key. Files ending in .glb or .gltf are decoded as glTF and
// files ending in .scene are evaluated as scene descriptions.
func (l *Loader) Load(ctx context.Context, url string) (*scene.Graph, error) {
	l.mu.RLock()
	g, ok := l.graphs[url]
	l.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := l.group.Do(url, func() (any, error) {
		l.mu.RLock()
		g, ok := l.graphs[url]
		l.mu.RUnlock()
		if ok {
			return g, nil
		}

		g, err := l.load(ctx, url)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.graphs[url] = g
		l.mu.Unlock()
		l.logger.Debug("asset loaded", "url", url, "labels", g.Len(), "meshes", g.MeshCount())
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("assets: load %s: %w", url, err)
	}
	return v.(*scene.Graph), nil
}

// Cached reports the number of graphs held.
func (l *Loader) Cached() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.graphs)
}

type kind int

const (
	kindGLTF kind = iota
	kindScene
)

func kindOf(name string) (kind, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".glb", ".gltf":
		return kindGLTF, nil
	case ".scene":
		return kindScene, nil
	}
	return 0, fmt.Errorf("%w: file type of %q", ErrUnsupportedAsset, name)
}

func (l *Loader) load(ctx context.Context, url string) (*scene.Graph, error) {
	switch {
	case strings.HasPrefix(url, "s3://"):
		return l.loadS3(ctx, strings.TrimPrefix(url, "s3://"))
	case strings.HasPrefix(url, "file://"):
		return l.loadFile(ctx, strings.TrimPrefix(url, "file://"))
	case strings.Contains(url, "://"):
		return nil, fmt.Errorf("%w: scheme of %q", ErrUnsupportedAsset, url)
	}
	p := url
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.root, filepath.FromSlash(p))
	}
	return l.loadFile(ctx, p)
}

func (l *Loader) loadFile(ctx context.Context, p string) (*scene.Graph, error) {
	k, err := kindOf(p)
	if err != nil {
		return nil, err
	}
	if k == kindGLTF {
		// scene.Open resolves external .gltf buffers next to the file.
		return scene.Open(p)
	}
	src, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return l.evaluate(ctx, string(src))
}

func (l *Loader) loadS3(ctx context.Context, loc string) (*scene.Graph, error) {
	if l.s3 == nil {
		return nil, fmt.Errorf("%w: s3 is not configured", ErrUnsupportedAsset)
	}
	bucket, key, ok := strings.Cut(loc, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 url must be s3://bucket/key")
	}
	k, err := kindOf(key)
	if err != nil {
		return nil, err
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	if k == kindGLTF {
		return scene.ReadGLB(out.Body)
	}
	src, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return l.evaluate(ctx, string(src))
}

func (l *Loader) evaluate(ctx context.Context, src string) (*scene.Graph, error) {
	g, evalErrs, err := l.engine.Run(ctx, src)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		errs := make([]error, len(evalErrs))
		for i, e := range evalErrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("scene source: %w", errors.Join(errs...))
	}
	return g, nil
}
