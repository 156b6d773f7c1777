package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jason-chang/openapi-mcp/pkg/document"
	"github.com/jason-chang/openapi-mcp/pkg/index"
	"github.com/jason-chang/openapi-mcp/pkg/security"
)

func searchIndex(t *testing.T) *index.Index {
	t.Helper()
	doc := document.New(map[string]any{
		"openapi": "3.0.0",
		"paths": map[string]any{
			"/users": map[string]any{
				"get": map[string]any{
					"summary": "List all users",
					"tags":    []any{"users"},
				},
				"post": map[string]any{
					"summary": "Create a user account",
					"tags":    []any{"users"},
				},
			},
			"/users/{id}": map[string]any{
				"get": map[string]any{
					"summary":     "Get one user",
					"description": "Returns the user identified by id.",
					"tags":        []any{"users"},
				},
			},
			"/orders": map[string]any{
				"get": map[string]any{
					"summary": "List orders",
					"tags":    []any{"orders"},
				},
			},
			"/legacy/users": map[string]any{
				"get": map[string]any{
					"summary":    "Old user listing",
					"deprecated": true,
					"tags":       []any{"users"},
				},
			},
		},
	})
	ix, err := index.Build(doc)
	require.NoError(t, err)
	return ix
}

func openEngine() *Engine {
	return NewEngine(security.NewFilter(security.Config{}), 50)
}

func TestSearchTextRanking(t *testing.T) {
	ix := searchIndex(t)
	e := openEngine()

	page, err := e.Search(ix, Query{Text: "user", Methods: []string{"GET"}})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	require.Equal(t, 2, page.Total)

	// Both match on path; ties break by path ascending, then method.
	require.Equal(t, "/users", page.Results[0].Path)
	require.Equal(t, "GET", page.Results[0].Method)
	require.Equal(t, "/users/{id}", page.Results[1].Path)

	for _, result := range page.Results {
		require.Greater(t, result.Score, 0.0)
		require.NotEmpty(t, result.MatchedIn)
	}
}

func TestSearchDeterminism(t *testing.T) {
	ix := searchIndex(t)
	e := openEngine()

	first, err := e.Search(ix, Query{Text: "user"})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Search(ix, Query{Text: "user"})
		require.NoError(t, err)
		require.Equal(t, first.Results, again.Results, "identical queries must return identical ordering")
	}
}

func TestSearchCaseFolding(t *testing.T) {
	ix := searchIndex(t)
	e := openEngine()

	exact, err := e.Search(ix, Query{Text: "users", SearchIn: []string{FieldPath}})
	require.NoError(t, err)
	folded, err := e.Search(ix, Query{Text: "USERS", SearchIn: []string{FieldPath}})
	require.NoError(t, err)

	require.Equal(t, len(exact.Results), len(folded.Results))
	require.Greater(t, exact.Results[0].Score, folded.Results[0].Score,
		"an exact substring outranks a case-insensitive one")
}

func TestSearchFilters(t *testing.T) {
	ix := searchIndex(t)
	e := openEngine()

	page, err := e.Search(ix, Query{Tags: []string{"orders"}})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, "/orders", page.Results[0].Path)

	page, err = e.Search(ix, Query{PathPattern: `^/users/\{id\}$`})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, "/users/{id}", page.Results[0].Path)

	page, err = e.Search(ix, Query{Methods: []string{"post"}})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, "POST", page.Results[0].Method)
}

func TestSearchDeprecatedExcludedByDefault(t *testing.T) {
	ix := searchIndex(t)
	e := openEngine()

	page, err := e.Search(ix, Query{PathPattern: "^/legacy"})
	require.NoError(t, err)
	require.Empty(t, page.Results)

	page, err = e.Search(ix, Query{PathPattern: "^/legacy", IncludeDeprecated: true})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.True(t, page.Results[0].Deprecated)
}

func TestSearchInvalidInput(t *testing.T) {
	ix := searchIndex(t)
	e := openEngine()

	tests := []struct {
		name  string
		query Query
	}{
		{"bad regex", Query{PathPattern: "["}},
		{"bad method", Query{Methods: []string{"FETCH"}}},
		{"bad field", Query{SearchIn: []string{"body"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Search(ix, tt.query)
			var invalid *InvalidQueryError
			require.True(t, errors.As(err, &invalid))
		})
	}
}

func TestSearchPagination(t *testing.T) {
	ix := searchIndex(t)
	e := NewEngine(security.NewFilter(security.Config{}), 2)

	page, err := e.Search(ix, Query{IncludeDeprecated: true, Limit: 100})
	require.NoError(t, err)
	require.Len(t, page.Results, 2, "limit is clamped to the engine maximum")
	require.Equal(t, 5, page.Total)
	require.True(t, page.Truncated)

	next, err := e.Search(ix, Query{IncludeDeprecated: true, Offset: 4})
	require.NoError(t, err)
	require.Len(t, next.Results, 1)
	require.False(t, next.Truncated)

	past, err := e.Search(ix, Query{IncludeDeprecated: true, Offset: 99})
	require.NoError(t, err)
	require.Empty(t, past.Results)
	require.Equal(t, 5, past.Total)
}

func TestSearchVisibility(t *testing.T) {
	ix := searchIndex(t)
	e := NewEngine(security.NewFilter(security.Config{
		Visibility: func(path, method string, tags []string) bool {
			return path != "/orders"
		},
	}), 50)

	page, err := e.Search(ix, Query{})
	require.NoError(t, err)
	for _, result := range page.Results {
		require.NotEqual(t, "/orders", result.Path)
	}
}

func TestTokenOverlapBelowSubstring(t *testing.T) {
	// A partial token match must stay below any substring score.
	require.Less(t, tokenOverlap("Create a user account", "user profile"), scoreFold)
	require.Equal(t, 0.5, tokenOverlap("Create a user account", "user profile"))
	require.Equal(t, 0.0, tokenOverlap("List orders", "user"))
}
