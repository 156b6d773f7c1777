package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jason-chang/openapi-mcp/pkg/examples"
	"github.com/jason-chang/openapi-mcp/pkg/search"
)

func rawDocument() map[string]any {
	return map[string]any{
		"openapi": "3.0.0",
		"info":    map[string]any{"title": "Inventory API", "version": "1.0.0"},
		"paths": map[string]any{
			"/items": map[string]any{
				"get": map[string]any{
					"operationId": "listItems",
					"summary":     "List items",
					"tags":        []any{"items"},
				},
				"post": map[string]any{
					"operationId": "createItem",
					"tags":        []any{"items"},
					"requestBody": map[string]any{
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/Item"},
							},
						},
					},
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"Item": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"sku":  map[string]any{"type": "string"},
						"name": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{CacheTTL: time.Minute})
	t.Cleanup(e.Close)
	require.NoError(t, e.Refresh(context.Background(), rawDocument()))
	return e
}

func TestOperationsBeforeRefresh(t *testing.T) {
	e := New(Config{})
	defer e.Close()

	_, err := e.Search(context.Background(), search.Query{})
	require.Error(t, err)
	require.Equal(t, KindInternal, KindOf(err))

	_, err = e.ResolveResource(context.Background(), "openapi://spec")
	require.Error(t, err)
}

func TestResolveResource(t *testing.T) {
	e := newTestEngine(t)

	payload, err := e.ResolveResource(context.Background(), "openapi://models/Item")
	require.NoError(t, err)
	content := payload.Content.(map[string]any)
	require.Equal(t, "Item", content["name"])

	_, err = e.ResolveResource(context.Background(), "openapi://models/Ghost")
	require.Error(t, err)
	require.Equal(t, KindNotFound, KindOf(err))
}

func TestSearchCached(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.Search(context.Background(), search.Query{Text: "items"})
	require.NoError(t, err)
	require.NotEmpty(t, first.Results)

	before := e.CacheStats().Hits
	again, err := e.Search(context.Background(), search.Query{Text: "items"})
	require.NoError(t, err)
	require.Equal(t, first, again)
	require.Greater(t, e.CacheStats().Hits, before, "identical query must be served from cache")
}

func TestSearchKeyNormalization(t *testing.T) {
	a, err := searchKey(search.Query{Methods: []string{"post", "GET"}, Tags: []string{"b", "a"}})
	require.NoError(t, err)
	b, err := searchKey(search.Query{Methods: []string{"GET", "POST"}, Tags: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, a, b, "slice order and method casing must not split cache entries")

	c, err := searchKey(search.Query{Methods: []string{"GET"}})
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestGenerateExamples(t *testing.T) {
	e := newTestEngine(t)

	out, err := e.GenerateExamples(context.Background(), examples.Ref{Model: "Item"}, []string{"json"})
	require.NoError(t, err)
	require.Contains(t, out["json"], "sku")

	_, err = e.GenerateExamples(context.Background(), examples.Ref{Model: "Ghost"}, nil)
	require.Equal(t, KindUnknownModel, KindOf(err))

	_, err = e.GenerateExamples(context.Background(), examples.Ref{Path: "/nope", Method: "GET"}, nil)
	require.Equal(t, KindUnknownEndpoint, KindOf(err))
}

func TestRefreshKeepsLastKnownGood(t *testing.T) {
	e := newTestEngine(t)
	goodVersion := e.Index().SourceVersion

	broken := map[string]any{
		"openapi": "3.0.0",
		"paths": map[string]any{
			"/broken": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": map[string]any{
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": map[string]any{"$ref": "#/components/schemas/Missing"},
								},
							},
						},
					},
				},
			},
		},
	}
	err := e.Refresh(context.Background(), broken)
	require.Error(t, err)
	require.Equal(t, KindIndexBuild, KindOf(err))

	// The failed rebuild never replaces the serving index.
	require.Equal(t, goodVersion, e.Index().SourceVersion)
	page, err := e.Search(context.Background(), search.Query{Text: "items"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
}

func TestRefreshInvalidatesCache(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Search(context.Background(), search.Query{Text: "items"})
	require.NoError(t, err)

	oldVersion := e.Index().SourceVersion
	require.NoError(t, e.Refresh(context.Background(), rawDocument()))
	require.NotEqual(t, oldVersion, e.Index().SourceVersion, "each refresh gets a fresh version stamp")

	// The same query recomputes against the new version rather than serving
	// a value derived from the replaced document.
	misses := e.CacheStats().Misses
	_, err = e.Search(context.Background(), search.Query{Text: "items"})
	require.NoError(t, err)
	require.Greater(t, e.CacheStats().Misses, misses)
}

func TestCacheTagMatchesServingIndex(t *testing.T) {
	e := newTestEngine(t)

	// Start a request against the current index, then swap it out before
	// the result is committed.
	ix, _, release, err := e.begin(context.Background(), "search")
	require.NoError(t, err)
	servingVersion := ix.SourceVersion

	require.NoError(t, e.Refresh(context.Background(), rawDocument()))
	newVersion := e.Index().SourceVersion
	require.NotEqual(t, servingVersion, newVersion)

	value, err := e.cached(context.Background(), "search:late", servingVersion, func(context.Context) (any, error) {
		return "stale-result", nil
	})
	release()
	require.NoError(t, err)
	require.Equal(t, "stale-result", value)

	// The value stays tagged with the version it was computed from, so
	// readers of the new index never see it.
	cached, ok := e.cache.Get("search:late", servingVersion)
	require.True(t, ok)
	require.Equal(t, "stale-result", cached)
	_, ok = e.cache.Get("search:late", newVersion)
	require.False(t, ok)
}

func TestInvalidateScopes(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Search(context.Background(), search.Query{Text: "items"})
	require.NoError(t, err)
	_, err = e.ResolveResource(context.Background(), "openapi://spec")
	require.NoError(t, err)

	require.Equal(t, 1, e.Invalidate("search*"))
	require.Equal(t, -1, e.Invalidate("all"))
	require.Equal(t, -1, e.Invalidate(""))
	require.Equal(t, 1, e.Invalidate("resource:openapi://spec"))
}

func TestConcurrentOperations(t *testing.T) {
	e := newTestEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Search(context.Background(), search.Query{Text: "items"})
			require.NoError(t, err)
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, e.Refresh(context.Background(), rawDocument()))
		}()
	}
	wg.Wait()
}

func TestCancelledContextDoesNotPoisonEngine(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The abandoning caller may race the in-flight computation, so either a
	// context error or a completed result is acceptable here.
	page, err := e.Search(ctx, search.Query{Text: "items"})
	if err == nil {
		require.NotNil(t, page)
	}

	// A fresh request afterwards must succeed normally.
	page, err = e.Search(context.Background(), search.Query{Text: "items"})
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
}

func TestKindOfClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"engine error passes through", &Error{Kind: KindBackpressure, Message: "full"}, KindBackpressure},
		{"wrapped keeps kind", wrap(&Error{Kind: KindTimeout, Message: "slow"}, "outer"), KindTimeout},
		{"unknown is internal", context.Canceled, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestKindHelpers(t *testing.T) {
	require.True(t, NotFound(&Error{Kind: KindUnknownModel, Message: "x"}))
	require.True(t, NotFound(&Error{Kind: KindNotFound, Message: "x"}))
	require.False(t, NotFound(&Error{Kind: KindTimeout, Message: "x"}))
	require.True(t, IsKind(&Error{Kind: KindTimeout, Message: "x"}, KindTimeout))
	require.False(t, IsKind(nil, KindTimeout))
}
