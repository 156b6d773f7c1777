// Package examples synthesizes representative call payloads from resolved
// models and endpoints. Synthesis produces one canonical value tree; format
// renderers (JSON, curl, Python, JavaScript) share it, so adding an output
// format means adding a renderer, not touching synthesis.
package examples

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/jason-chang/openapi-mcp/pkg/document"
	"github.com/jason-chang/openapi-mcp/pkg/index"
	"github.com/jason-chang/openapi-mcp/pkg/security"
)

// UnknownModelError reports a model name absent from the current index.
type UnknownModelError struct {
	Name string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s", e.Name)
}

// UnknownEndpointError reports an endpoint absent from the current index.
type UnknownEndpointError struct {
	Path   string
	Method string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("unknown endpoint: %s %s", e.Method, e.Path)
}

// UnknownFormatError reports a requested output format with no renderer.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown example format: %s", e.Format)
}

// Ref selects what to generate for: either a model by name, or an endpoint
// by path and method.
type Ref struct {
	Model  string `json:"model,omitempty"`
	Path   string `json:"path,omitempty"`
	Method string `json:"method,omitempty"`
}

// CallExample is the canonical intermediate representation every renderer
// consumes. For a model reference only Model and Value are set.
type CallExample struct {
	Model string
	Value any

	Method      string
	Path        string
	BaseURL     string
	PathParams  map[string]any
	QueryParams map[string]any
	Body        any
	Responses   map[string]any
}

// URL expands path parameters into the templated path and appends the base.
func (ex *CallExample) URL() string {
	path := ex.Path
	for name, value := range ex.PathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", cast.ToString(value))
	}
	return strings.TrimSuffix(ex.BaseURL, "/") + path
}

// Generator synthesizes examples against a built index. Sensitive fields are
// masked on the canonical tree before rendering, so redaction holds in every
// output format.
type Generator struct {
	filter    *security.Filter
	baseURL   string
	renderers map[string]Renderer
}

// NewGenerator returns a Generator. baseURL seeds rendered invocations when
// the document declares no servers.
func NewGenerator(filter *security.Filter, baseURL string) *Generator {
	if baseURL == "" {
		baseURL = "https://api.example.com"
	}
	g := &Generator{
		filter:    filter,
		baseURL:   baseURL,
		renderers: map[string]Renderer{},
	}
	for _, r := range []Renderer{jsonRenderer{}, curlRenderer{}, pythonRenderer{}, javascriptRenderer{}} {
		g.renderers[r.Format()] = r
	}
	return g
}

// Formats lists the registered output formats in ascending order.
func (g *Generator) Formats() []string {
	formats := make([]string, 0, len(g.renderers))
	for format := range g.renderers {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	return formats
}

// Generate renders an example per requested format. An empty formats slice
// means every registered format.
func (g *Generator) Generate(ix *index.Index, ref Ref, formats []string) (map[string]string, error) {
	if len(formats) == 0 {
		formats = g.Formats()
	}
	for _, format := range formats {
		if _, ok := g.renderers[format]; !ok {
			return nil, &UnknownFormatError{Format: format}
		}
	}

	ex, err := g.build(ix, ref)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(formats))
	for _, format := range formats {
		rendered, err := g.renderers[format].Render(ex)
		if err != nil {
			return nil, fmt.Errorf("rendering %s example: %w", format, err)
		}
		out[format] = rendered
	}
	return out, nil
}

func (g *Generator) build(ix *index.Index, ref Ref) (*CallExample, error) {
	if ref.Model != "" {
		entry, ok := ix.Models[ref.Model]
		if !ok {
			return nil, &UnknownModelError{Name: ref.Model}
		}
		return &CallExample{
			Model: entry.Name,
			Value: g.filter.Mask(g.value(entry.Schema, "")),
		}, nil
	}

	method := strings.ToUpper(strings.TrimSpace(ref.Method))
	key := index.EndpointKey{Path: ref.Path, Method: index.Method(method)}
	entry, ok := ix.Endpoints[key]
	if !ok || !g.filter.Visible(entry.Path, method, entry.Tags) {
		return nil, &UnknownEndpointError{Path: ref.Path, Method: method}
	}

	ex := &CallExample{
		Method:      method,
		Path:        entry.Path,
		BaseURL:     g.baseURL,
		PathParams:  map[string]any{},
		QueryParams: map[string]any{},
	}
	for _, param := range entry.Parameters {
		value := g.value(param.Schema, param.Name)
		switch param.In {
		case "path":
			ex.PathParams[param.Name] = value
		case "query":
			ex.QueryParams[param.Name] = value
		}
	}
	if entry.RequestBody != "" {
		if model, ok := ix.Models[entry.RequestBody]; ok {
			ex.Body = g.value(model.Schema, "")
		}
	}
	ex.Responses = g.responses(ix, entry)

	ex.PathParams = g.filter.Mask(ex.PathParams).(map[string]any)
	ex.QueryParams = g.filter.Mask(ex.QueryParams).(map[string]any)
	ex.Body = g.filter.Mask(ex.Body)
	ex.Responses = g.filter.Mask(ex.Responses).(map[string]any)
	return ex, nil
}

// responses synthesizes one representative response, preferring the first
// success status the endpoint declares.
func (g *Generator) responses(ix *index.Index, entry *index.EndpointEntry) map[string]any {
	if len(entry.Responses) == 0 {
		return map[string]any{}
	}
	code := ""
	for _, success := range []string{"200", "201", "202", "204"} {
		if _, ok := entry.Responses[success]; ok {
			code = success
			break
		}
	}
	if code == "" {
		codes := make([]string, 0, len(entry.Responses))
		for c := range entry.Responses {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		code = codes[0]
	}
	model, ok := ix.Models[entry.Responses[code]]
	if !ok {
		return map[string]any{}
	}
	return map[string]any{code: g.value(model.Schema, "")}
}

// value synthesizes a representative value for a resolved schema node.
// Declared example/default win; otherwise the placeholder is derived from
// type, format and field name. Back-reference markers from the resolver are
// rendered as truncated placeholders instead of recursing.
func (g *Generator) value(schema map[string]any, fieldName string) any {
	if schema == nil {
		return nil
	}
	if name, ok := document.IsRecursiveMarker(schema); ok {
		return map[string]any{"$recursive": name}
	}
	if example, ok := schema["example"]; ok {
		return example
	}
	if def, ok := schema["default"]; ok {
		return def
	}
	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}

	if allOf, ok := schema["allOf"].([]any); ok && len(allOf) > 0 {
		merged := map[string]any{}
		for _, sub := range allOf {
			subSchema, ok := sub.(map[string]any)
			if !ok {
				continue
			}
			if obj, ok := g.value(subSchema, fieldName).(map[string]any); ok {
				for key, value := range obj {
					merged[key] = value
				}
			}
		}
		return merged
	}
	for _, variant := range []string{"oneOf", "anyOf"} {
		if subs, ok := schema[variant].([]any); ok && len(subs) > 0 {
			if subSchema, ok := subs[0].(map[string]any); ok {
				return g.value(subSchema, fieldName)
			}
		}
	}

	switch schemaType(schema) {
	case "object":
		return g.objectValue(schema)
	case "array":
		items, _ := schema["items"].(map[string]any)
		return []any{g.value(items, fieldName)}
	case "string":
		return stringValue(schema, fieldName)
	case "integer":
		return integerValue(schema)
	case "number":
		return numberValue(schema)
	case "boolean":
		return true
	default:
		if _, ok := schema["properties"]; ok {
			return g.objectValue(schema)
		}
		return nil
	}
}

func (g *Generator) objectValue(schema map[string]any) map[string]any {
	out := map[string]any{}
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return out
	}
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		propSchema, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}
		out[name] = g.value(propSchema, name)
	}
	return out
}

// schemaType reads the node's type, tolerating the 3.1 array form.
func schemaType(schema map[string]any) string {
	switch typed := schema["type"].(type) {
	case string:
		return typed
	case []any:
		if len(typed) > 0 {
			return cast.ToString(typed[0])
		}
	}
	return ""
}

func stringValue(schema map[string]any, fieldName string) string {
	switch cast.ToString(schema["format"]) {
	case "email":
		return "user@example.com"
	case "uri", "url":
		return "https://example.com/resource"
	case "uuid":
		return "550e8400-e29b-41d4-a716-446655440000"
	case "date":
		return "2023-12-01"
	case "date-time":
		return "2023-12-01T12:00:00Z"
	case "password":
		return "password123"
	case "hostname":
		return "api.example.com"
	case "ipv4":
		return "192.0.2.1"
	}

	lower := strings.ToLower(fieldName)
	switch {
	case strings.Contains(lower, "email"):
		return "user@example.com"
	case strings.Contains(lower, "name"):
		return "John Doe"
	case strings.Contains(lower, "url"):
		return "https://example.com"
	case strings.Contains(lower, "id"):
		return "12345"
	case fieldName != "":
		return "example-" + fieldName
	default:
		return "example"
	}
}

func integerValue(schema map[string]any) int64 {
	min, hasMin := schema["minimum"]
	max, hasMax := schema["maximum"]
	value := int64(1)
	if hasMin {
		value = cast.ToInt64(min) + 1
	}
	if hasMax && value > cast.ToInt64(max) {
		value = cast.ToInt64(max)
	}
	return value
}

func numberValue(schema map[string]any) float64 {
	min, hasMin := schema["minimum"]
	max, hasMax := schema["maximum"]
	value := 1.5
	if hasMin {
		value = cast.ToFloat64(min) + 1.5
	}
	if hasMax && value > cast.ToFloat64(max) {
		value = cast.ToFloat64(max)
	}
	return value
}
