package examples

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jason-chang/openapi-mcp/pkg/document"
	"github.com/jason-chang/openapi-mcp/pkg/index"
	"github.com/jason-chang/openapi-mcp/pkg/security"
)

func exampleIndex(t *testing.T) *index.Index {
	t.Helper()
	doc := document.New(map[string]any{
		"openapi": "3.0.0",
		"paths": map[string]any{
			"/users/{id}": map[string]any{
				"put": map[string]any{
					"operationId": "updateUser",
					"parameters": []any{
						map[string]any{
							"name": "id", "in": "path", "required": true,
							"schema": map[string]any{"type": "string"},
						},
						map[string]any{
							"name": "notify", "in": "query",
							"schema": map[string]any{"type": "boolean"},
						},
					},
					"requestBody": map[string]any{
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/User"},
							},
						},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": map[string]any{"$ref": "#/components/schemas/User"},
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"User": map[string]any{
					"type":     "object",
					"required": []any{"name", "age"},
					"properties": map[string]any{
						"name":     map[string]any{"type": "string"},
						"age":      map[string]any{"type": "integer", "minimum": float64(0)},
						"email":    map[string]any{"type": "string", "format": "email"},
						"password": map[string]any{"type": "string", "format": "password"},
						"role":     map[string]any{"type": "string", "enum": []any{"admin", "user"}},
					},
				},
				"Category": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label":  map[string]any{"type": "string", "example": "books"},
						"parent": map[string]any{"$ref": "#/components/schemas/Category"},
					},
				},
			},
		},
	})
	ix, err := index.Build(doc)
	require.NoError(t, err)
	return ix
}

func newTestGenerator() *Generator {
	return NewGenerator(security.NewFilter(security.Config{}), "")
}

func TestGenerateModelAllFormats(t *testing.T) {
	ix := exampleIndex(t)
	g := newTestGenerator()

	out, err := g.Generate(ix, Ref{Model: "User"}, nil)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// Required fields appear in every rendered format.
	for format, rendered := range out {
		require.Contains(t, rendered, "name", "format %s", format)
		require.Contains(t, rendered, "age", "format %s", format)
	}

	var wrapper struct {
		Model   string         `json:"model"`
		Example map[string]any `json:"example"`
	}
	require.NoError(t, json.Unmarshal([]byte(out[FormatJSON]), &wrapper))
	require.Equal(t, "User", wrapper.Model)
	require.Equal(t, "John Doe", wrapper.Example["name"])
	require.Equal(t, float64(1), wrapper.Example["age"], "minimum 0 yields 1")
	require.Equal(t, "user@example.com", wrapper.Example["email"])
	require.Equal(t, "admin", wrapper.Example["role"], "enums pick the first variant")
}

func TestGenerateMasksSensitiveFieldsInEveryFormat(t *testing.T) {
	ix := exampleIndex(t)
	g := newTestGenerator()

	out, err := g.Generate(ix, Ref{Model: "User"}, nil)
	require.NoError(t, err)
	for format, rendered := range out {
		require.NotContains(t, rendered, "password123", "format %s leaks a masked value", format)
		require.Contains(t, rendered, security.RedactionMarker, "format %s", format)
	}
}

func TestGenerateRecursionTruncated(t *testing.T) {
	ix := exampleIndex(t)
	g := newTestGenerator()

	out, err := g.Generate(ix, Ref{Model: "Category"}, []string{FormatJSON})
	require.NoError(t, err)

	var wrapper struct {
		Example map[string]any `json:"example"`
	}
	require.NoError(t, json.Unmarshal([]byte(out[FormatJSON]), &wrapper))
	require.Equal(t, "books", wrapper.Example["label"])
	require.Equal(t, map[string]any{"$recursive": "Category"}, wrapper.Example["parent"],
		"self reference renders as a truncation placeholder, not infinite nesting")
}

func TestGenerateEndpoint(t *testing.T) {
	ix := exampleIndex(t)
	g := NewGenerator(security.NewFilter(security.Config{}), "https://api.test.local/")

	out, err := g.Generate(ix, Ref{Path: "/users/{id}", Method: "put"}, []string{FormatJSON, FormatCurl})
	require.NoError(t, err)

	var call struct {
		Method      string         `json:"method"`
		URL         string         `json:"url"`
		PathParams  map[string]any `json:"path_params"`
		QueryParams map[string]any `json:"query_params"`
		Body        map[string]any `json:"body"`
		Responses   map[string]any `json:"responses"`
	}
	require.NoError(t, json.Unmarshal([]byte(out[FormatJSON]), &call))
	require.Equal(t, "PUT", call.Method)
	require.Equal(t, "https://api.test.local/users/12345", call.URL, "path params are substituted")
	require.Equal(t, map[string]any{"id": "12345"}, call.PathParams)
	require.Equal(t, map[string]any{"notify": true}, call.QueryParams)
	require.Contains(t, call.Body, "name")
	require.Contains(t, call.Responses, "200")

	require.True(t, strings.HasPrefix(out[FormatCurl], "curl -X PUT"))
	require.Contains(t, out[FormatCurl], "notify=true")
	require.Contains(t, out[FormatCurl], "Content-Type: application/json")
}

func TestGenerateUnknownInputs(t *testing.T) {
	ix := exampleIndex(t)
	g := newTestGenerator()

	_, err := g.Generate(ix, Ref{Model: "Ghost"}, nil)
	var unknownModel *UnknownModelError
	require.True(t, errors.As(err, &unknownModel))
	require.Equal(t, "Ghost", unknownModel.Name)

	_, err = g.Generate(ix, Ref{Path: "/nope", Method: "GET"}, nil)
	var unknownEndpoint *UnknownEndpointError
	require.True(t, errors.As(err, &unknownEndpoint))

	_, err = g.Generate(ix, Ref{Model: "User"}, []string{"yaml"})
	var unknownFormat *UnknownFormatError
	require.True(t, errors.As(err, &unknownFormat))
	require.Equal(t, "yaml", unknownFormat.Format)
}

func TestFormats(t *testing.T) {
	g := newTestGenerator()
	require.Equal(t, []string{FormatCurl, FormatJavaScript, FormatJSON, FormatPython}, g.Formats())
}

func TestValueSynthesis(t *testing.T) {
	g := newTestGenerator()

	tests := []struct {
		name     string
		schema   map[string]any
		field    string
		expected any
	}{
		{"declared example wins", map[string]any{"type": "string", "example": "given"}, "x", "given"},
		{"default wins over synthesis", map[string]any{"type": "integer", "default": float64(7)}, "x", float64(7)},
		{"uuid format", map[string]any{"type": "string", "format": "uuid"}, "", "550e8400-e29b-41d4-a716-446655440000"},
		{"date-time format", map[string]any{"type": "string", "format": "date-time"}, "", "2023-12-01T12:00:00Z"},
		{"field name fallback", map[string]any{"type": "string"}, "widget", "example-widget"},
		{"boolean", map[string]any{"type": "boolean"}, "", true},
		{"type array form", map[string]any{"type": []any{"integer", "null"}}, "", int64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, g.value(tt.schema, tt.field))
		})
	}
}

func TestValueArrayAndAllOf(t *testing.T) {
	g := newTestGenerator()

	arr := g.value(map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string", "format": "email"},
	}, "")
	require.Equal(t, []any{"user@example.com"}, arr)

	merged := g.value(map[string]any{
		"allOf": []any{
			map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "boolean"}}},
			map[string]any{"type": "object", "properties": map[string]any{"b": map[string]any{"type": "integer"}}},
		},
	}, "")
	require.Equal(t, map[string]any{"a": true, "b": int64(1)}, merged)
}
