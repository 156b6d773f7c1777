// Package engine ties the resource and query components together behind one
// instance with an owned index pointer and cache. Multiple engines (one per
// upstream document) never share state.
//
// The engine is read-mostly: readers always observe either the previous or
// the new index, never a half-built one, and a failed rebuild keeps the
// last-known-good index serving.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jason-chang/openapi-mcp/pkg/cache"
	"github.com/jason-chang/openapi-mcp/pkg/document"
	"github.com/jason-chang/openapi-mcp/pkg/examples"
	"github.com/jason-chang/openapi-mcp/pkg/index"
	"github.com/jason-chang/openapi-mcp/pkg/resources"
	"github.com/jason-chang/openapi-mcp/pkg/search"
	"github.com/jason-chang/openapi-mcp/pkg/security"
)

// Engine serves resource reads, searches and example generation over one
// OpenAPI document. Construct with New, load a document with Refresh.
type Engine struct {
	cfg    Config
	filter *security.Filter
	cache  *cache.Cache

	router   *resources.Router
	searcher *search.Engine
	gen      *examples.Generator

	current atomic.Pointer[snapshot]

	refreshGroup singleflight.Group
	slots        chan struct{}
	waiting      atomic.Int32
}

// snapshot pairs a document with the index built from it. It is swapped as
// one unit so a request never sees an index from one Refresh and a document
// from another, and cache tags always name the version the value was
// computed from.
type snapshot struct {
	doc *document.Document
	idx *index.Index
}

// New constructs an Engine from cfg. No document is loaded yet; every
// operation fails until the first successful Refresh.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()

	var audit *security.AuditLog
	if cfg.AuditEnabled || cfg.AuditWriter != nil {
		audit = security.NewAuditLog(cfg.AuditWriter)
	}
	filter := security.NewFilter(security.Config{
		ExtraSensitiveKeys: cfg.SensitiveKeys,
		Visibility:         cfg.Visibility,
		Audit:              audit,
	})

	return &Engine{
		cfg:      cfg,
		filter:   filter,
		cache:    cache.New(cfg.CacheSize, cfg.CacheTTL, cfg.SweepInterval),
		router:   resources.NewRouter(filter),
		searcher: search.NewEngine(filter, cfg.SearchMaxLimit),
		gen:      examples.NewGenerator(filter, cfg.BaseURL),
		slots:    make(chan struct{}, cfg.ConcurrencyLimit),
	}
}

// Close releases background resources.
func (e *Engine) Close() { e.cache.Close() }

// Document returns the currently served document, or nil before the first
// successful Refresh.
func (e *Engine) Document() *document.Document {
	if snap := e.current.Load(); snap != nil {
		return snap.doc
	}
	return nil
}

// Index returns the currently served index, or nil before the first
// successful Refresh.
func (e *Engine) Index() *index.Index {
	if snap := e.current.Load(); snap != nil {
		return snap.idx
	}
	return nil
}

// CacheStats returns a snapshot of cache activity.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

// Refresh replaces the raw document and rebuilds the index. Concurrent
// refreshes collapse into a single build. On build failure the engine keeps
// serving the last-known-good index and the error goes to the refresher.
func (e *Engine) Refresh(ctx context.Context, raw map[string]any) error {
	_, err, _ := e.refreshGroup.Do("refresh", func() (any, error) {
		doc := document.New(raw)
		ix, err := index.Build(doc)
		if err != nil {
			return nil, wrap(err, "rebuilding index")
		}
		e.current.Store(&snapshot{doc: doc, idx: ix})
		// Entries derived from the previous version are already treated
		// as stale; dropping them just frees the memory sooner.
		e.cache.InvalidateAll()
		log.Printf("index rebuilt: version=%s endpoints=%d models=%d tags=%d",
			ix.SourceVersion, len(ix.Endpoints), len(ix.Models), len(ix.Tags))
		return ix, nil
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}

// ResolveResource resolves an openapi:// URI through the cache.
func (e *Engine) ResolveResource(ctx context.Context, uri string) (*resources.Payload, error) {
	uri = strings.TrimSpace(uri)
	ix, doc, release, err := e.begin(ctx, "resource")
	if err != nil {
		return nil, err
	}
	defer release()

	e.filter.Record(security.CallerFromContext(ctx), "resource", map[string]any{"uri": uri})

	value, err := e.cached(ctx, "resource:"+uri, ix.SourceVersion, func(context.Context) (any, error) {
		return e.router.Resolve(ix, doc, uri)
	})
	if err != nil {
		return nil, wrap(err, "resolving "+uri)
	}
	return value.(*resources.Payload), nil
}

// Search runs a structured endpoint query through the cache.
func (e *Engine) Search(ctx context.Context, q search.Query) (*search.Page, error) {
	ix, _, release, err := e.begin(ctx, "search")
	if err != nil {
		return nil, err
	}
	defer release()

	key, err := searchKey(q)
	if err != nil {
		return nil, wrap(err, "normalizing query")
	}
	e.filter.Record(security.CallerFromContext(ctx), "search", map[string]any{"query": q})

	value, err := e.cached(ctx, key, ix.SourceVersion, func(context.Context) (any, error) {
		return e.searcher.Search(ix, q)
	})
	if err != nil {
		return nil, wrap(err, "searching endpoints")
	}
	return value.(*search.Page), nil
}

// GenerateExamples renders examples for a model or endpoint reference in the
// requested formats.
func (e *Engine) GenerateExamples(ctx context.Context, ref examples.Ref, formats []string) (map[string]string, error) {
	ix, _, release, err := e.begin(ctx, "examples")
	if err != nil {
		return nil, err
	}
	defer release()

	sorted := append([]string{}, formats...)
	sort.Strings(sorted)
	key := fmt.Sprintf("examples:%s:%s:%s:%s", ref.Model, ref.Path, strings.ToUpper(ref.Method), strings.Join(sorted, ","))
	e.filter.Record(security.CallerFromContext(ctx), "generate_examples", map[string]any{
		"model": ref.Model, "path": ref.Path, "method": ref.Method, "formats": formats,
	})

	value, err := e.cached(ctx, key, ix.SourceVersion, func(context.Context) (any, error) {
		out, err := e.gen.Generate(ix, ref, formats)
		if err != nil {
			return nil, err
		}
		if e.cfg.ValidateExamples {
			e.validateExamples(ix, ref)
		}
		return out, nil
	})
	if err != nil {
		return nil, wrap(err, "generating examples")
	}
	return value.(map[string]string), nil
}

// Invalidate drops cached values. Scope is "all", a key prefix ending in
// "*", or an exact key; it returns how many entries were dropped (or -1 for
// "all", which does not count).
func (e *Engine) Invalidate(scope string) int {
	switch {
	case scope == "" || scope == "all":
		e.cache.InvalidateAll()
		return -1
	case strings.HasSuffix(scope, "*"):
		return e.cache.InvalidatePrefix(strings.TrimSuffix(scope, "*"))
	default:
		e.cache.Invalidate(scope)
		return 1
	}
}

// begin applies the shared request gates: the index must exist, a slot must
// be free (with a bounded waiting queue), and the request timeout starts.
// The returned release func ends the request.
func (e *Engine) begin(ctx context.Context, op string) (*index.Index, *document.Document, func(), error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, nil, nil, &Error{Kind: KindInternal, Message: "no document loaded"}
	}
	ix, doc := snap.idx, snap.doc

	select {
	case e.slots <- struct{}{}:
	default:
		if int(e.waiting.Add(1)) > e.cfg.QueueDepth {
			e.waiting.Add(-1)
			return nil, nil, nil, backpressureError(op)
		}
		select {
		case e.slots <- struct{}{}:
			e.waiting.Add(-1)
		case <-ctx.Done():
			e.waiting.Add(-1)
			return nil, nil, nil, e.ctxError(ctx, op)
		}
	}

	release := func() { <-e.slots }
	return ix, doc, release, nil
}

// cached reads through the version-tagged cache with single-flight, mapping
// a deadline hit to the engine's timeout error. version must be the
// SourceVersion of the index the compute closure reads, so a Refresh landing
// mid-request cannot tag an old result with the new version.
func (e *Engine) cached(ctx context.Context, key, version string, compute func(context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	value, err := e.cache.GetOrCompute(ctx, key, version, e.cfg.CacheTTL, compute)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, timeoutError("request")
	}
	return value, err
}

func (e *Engine) ctxError(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutError(op)
	}
	return ctx.Err()
}

// validateExamples logs schema findings for the generated value; it never
// affects the response.
func (e *Engine) validateExamples(ix *index.Index, ref examples.Ref) {
	name := ref.Model
	if name == "" {
		key := index.EndpointKey{Path: ref.Path, Method: index.Method(strings.ToUpper(ref.Method))}
		entry, ok := ix.Endpoints[key]
		if !ok || entry.RequestBody == "" {
			return
		}
		name = entry.RequestBody
	}
	model, ok := ix.Models[name]
	if !ok {
		return
	}
	gen := examples.NewGenerator(security.NewFilter(security.Config{}), e.cfg.BaseURL)
	rendered, err := gen.Generate(ix, examples.Ref{Model: name}, []string{examples.FormatJSON})
	if err != nil {
		return
	}
	var wrapper struct {
		Example any `json:"example"`
	}
	if err := json.Unmarshal([]byte(rendered[examples.FormatJSON]), &wrapper); err != nil {
		return
	}
	if ok, findings := examples.ValidateAgainstSchema(model.Schema, wrapper.Example); !ok {
		log.Printf("example validation findings for %s: %v", name, findings)
	}
}
