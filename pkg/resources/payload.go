package resources

import (
	"encoding/json"
	"strings"

	"github.com/jason-chang/openapi-mcp/pkg/document"
	"github.com/jason-chang/openapi-mcp/pkg/index"
)

func (r *Router) payload(content any) *Payload {
	return &Payload{
		Content:  r.filter.Mask(content),
		MIMEType: MIMEJSON,
	}
}

// specPayload passes the raw document through with hidden endpoints removed
// and sensitive fields masked.
func (r *Router) specPayload(ix *index.Index, doc *document.Document) (*Payload, error) {
	raw := doc.Raw()
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		out[key] = value
	}

	if paths, ok := raw["paths"].(map[string]any); ok {
		filtered := make(map[string]any, len(paths))
		for path, itemNode := range paths {
			item, ok := itemNode.(map[string]any)
			if !ok {
				filtered[path] = itemNode
				continue
			}
			kept := make(map[string]any, len(item))
			for key, op := range item {
				method := strings.ToUpper(key)
				if !index.IsMethod(method) {
					kept[key] = op
					continue
				}
				entry, ok := ix.Endpoints[index.EndpointKey{Path: path, Method: index.Method(method)}]
				if ok && !r.filter.Visible(path, method, entry.Tags) {
					continue
				}
				kept[key] = op
			}
			if len(kept) > 0 {
				filtered[path] = kept
			}
		}
		out["paths"] = filtered
	}

	return r.payload(out), nil
}

// endpointList returns the ordered summary list of all visible endpoints.
func (r *Router) endpointList(ix *index.Index) (*Payload, error) {
	summaries := []any{}
	for _, entry := range r.visibleEndpoints(ix) {
		summaries = append(summaries, endpointSummary(entry))
	}
	return r.payload(map[string]any{
		"endpoints": summaries,
		"total":     len(summaries),
	}), nil
}

// endpoint returns the full entries for every method declared at exactly
// path. Lookups are case-sensitive and the templated path is matched with
// {param} placeholders as literal tokens.
func (r *Router) endpoint(ix *index.Index, path string) (*Payload, error) {
	entries := []any{}
	for _, entry := range ix.ByPath(path) {
		if !r.filter.Visible(entry.Path, string(entry.Method), entry.Tags) {
			continue
		}
		entries = append(entries, toJSONValue(entry))
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{Resource: "endpoint " + path}
	}
	return r.payload(map[string]any{
		"path":       path,
		"operations": entries,
	}), nil
}

// modelList returns names and short descriptions for every model.
func (r *Router) modelList(ix *index.Index) (*Payload, error) {
	models := []any{}
	for _, name := range ix.ModelNames() {
		entry := ix.Models[name]
		models = append(models, map[string]any{
			"name":        entry.Name,
			"description": shortDescription(entry.Description),
		})
	}
	return r.payload(map[string]any{
		"models": models,
		"total":  len(models),
	}), nil
}

// model returns the fully resolved model, or NotFoundError: an unknown model
// name requested explicitly is a programmer-facing lookup miss.
func (r *Router) model(ix *index.Index, name string) (*Payload, error) {
	entry, ok := ix.Models[name]
	if !ok {
		return nil, &NotFoundError{Resource: "model " + name}
	}
	return r.payload(toJSONValue(entry)), nil
}

// tagList returns every tag with its visible endpoint count.
func (r *Router) tagList(ix *index.Index) (*Payload, error) {
	tags := []any{}
	for _, name := range ix.TagNames() {
		tag := ix.Tags[name]
		count := 0
		for _, key := range tag.Endpoints {
			entry := ix.Endpoints[key]
			if r.filter.Visible(entry.Path, string(entry.Method), entry.Tags) {
				count++
			}
		}
		tags = append(tags, map[string]any{
			"name":           tag.Name,
			"description":    tag.Description,
			"endpoint_count": count,
		})
	}
	return r.payload(map[string]any{
		"tags":  tags,
		"total": len(tags),
	}), nil
}

// tagEndpoints returns the endpoints of one tag. An unknown tag is a valid,
// common case for a client exploring the API, so it yields an empty payload
// rather than an error.
func (r *Router) tagEndpoints(ix *index.Index, name string) (*Payload, error) {
	endpoints := []any{}
	if tag, ok := ix.Tags[name]; ok {
		for _, key := range tag.Endpoints {
			entry := ix.Endpoints[key]
			if !r.filter.Visible(entry.Path, string(entry.Method), entry.Tags) {
				continue
			}
			endpoints = append(endpoints, endpointSummary(entry))
		}
	}
	return r.payload(map[string]any{
		"tag":       name,
		"endpoints": endpoints,
		"total":     len(endpoints),
	}), nil
}

func (r *Router) visibleEndpoints(ix *index.Index) []*index.EndpointEntry {
	var entries []*index.EndpointEntry
	for _, key := range ix.EndpointKeys() {
		entry := ix.Endpoints[key]
		if r.filter.Visible(entry.Path, string(entry.Method), entry.Tags) {
			entries = append(entries, entry)
		}
	}
	return entries
}

func endpointSummary(entry *index.EndpointEntry) map[string]any {
	return map[string]any{
		"path":        entry.Path,
		"method":      string(entry.Method),
		"operationId": entry.OperationID,
		"summary":     entry.Summary,
		"tags":        entry.Tags,
		"deprecated":  entry.Deprecated,
	}
}

func shortDescription(description string) string {
	if i := strings.IndexByte(description, '\n'); i >= 0 {
		description = description[:i]
	}
	const max = 120
	// Truncate on runes so a multibyte character is never split.
	if runes := []rune(description); len(runes) > max {
		description = string(runes[:max]) + "..."
	}
	return description
}

// toJSONValue converts a typed entry into the plain map/slice shape the
// security filter walks.
func toJSONValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
