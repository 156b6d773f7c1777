// Package index builds lookup indices over a raw OpenAPI document: endpoints
// by path and method, models by name, and tags by membership. The Index is
// built once per document version and is immutable afterwards; readers always
// observe a complete index or none at all.
package index

import (
	"sort"
	"time"
)

// Method is an upper-case HTTP method name.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// httpMethods lists the path-item keys treated as operations, in the order
// they are enumerated per path.
var httpMethods = []Method{
	MethodGet, MethodPost, MethodPut, MethodPatch,
	MethodDelete, MethodHead, MethodOptions,
}

// IsMethod reports whether s (upper-cased already) names a known HTTP method.
func IsMethod(s string) bool {
	for _, m := range httpMethods {
		if string(m) == s {
			return true
		}
	}
	return false
}

// UntaggedTag groups endpoints that declare no tags of their own.
const UntaggedTag = "untagged"

// EndpointKey identifies an endpoint uniquely within one document.
type EndpointKey struct {
	Path   string
	Method Method
}

// ParameterSpec describes a single operation parameter.
type ParameterSpec struct {
	Name        string         `json:"name"`
	In          string         `json:"in"`
	Required    bool           `json:"required"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// EndpointEntry is the indexed form of one path/method operation. Schema
// references point into the Index's model table by name.
type EndpointEntry struct {
	Path        string            `json:"path"`
	Method      Method            `json:"method"`
	OperationID string            `json:"operationId,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Parameters  []ParameterSpec   `json:"parameters,omitempty"`
	RequestBody string            `json:"requestBody,omitempty"`
	Responses   map[string]string `json:"responses,omitempty"`
	Deprecated  bool              `json:"deprecated,omitempty"`
}

// Key returns the entry's unique (path, method) key.
func (e *EndpointEntry) Key() EndpointKey {
	return EndpointKey{Path: e.Path, Method: e.Method}
}

// ModelEntry is a named, fully resolved schema. Ref is the original $ref
// pointer for component schemas and empty for synthetic inline models.
type ModelEntry struct {
	Name        string         `json:"name"`
	Ref         string         `json:"ref,omitempty"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
}

// TagEntry is derived by inverting endpoint tag membership. It is recomputed
// on every build and never references a missing endpoint.
type TagEntry struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Endpoints   []EndpointKey `json:"-"`
}

// Index is the composite lookup structure derived from one document version.
// All maps are fully populated at build time and must not be mutated after.
type Index struct {
	Endpoints map[EndpointKey]*EndpointEntry
	Models    map[string]*ModelEntry
	Tags      map[string]*TagEntry

	BuiltAt       time.Time
	SourceVersion string

	// Sorted key slices give deterministic iteration for listings.
	endpointKeys []EndpointKey
	modelNames   []string
	tagNames     []string
}

// EndpointKeys returns all endpoint keys ordered by path then method.
func (ix *Index) EndpointKeys() []EndpointKey { return ix.endpointKeys }

// ModelNames returns all model names in ascending order.
func (ix *Index) ModelNames() []string { return ix.modelNames }

// TagNames returns all tag names in ascending order.
func (ix *Index) TagNames() []string { return ix.tagNames }

// ByPath returns the entries declared at exactly path (templated placeholders
// are literal tokens), ordered by method.
func (ix *Index) ByPath(path string) []*EndpointEntry {
	var entries []*EndpointEntry
	for _, key := range ix.endpointKeys {
		if key.Path == path {
			entries = append(entries, ix.Endpoints[key])
		}
	}
	return entries
}

func (ix *Index) freeze() {
	ix.endpointKeys = make([]EndpointKey, 0, len(ix.Endpoints))
	for key := range ix.Endpoints {
		ix.endpointKeys = append(ix.endpointKeys, key)
	}
	sort.Slice(ix.endpointKeys, func(i, j int) bool {
		if ix.endpointKeys[i].Path != ix.endpointKeys[j].Path {
			return ix.endpointKeys[i].Path < ix.endpointKeys[j].Path
		}
		return ix.endpointKeys[i].Method < ix.endpointKeys[j].Method
	})

	ix.modelNames = make([]string, 0, len(ix.Models))
	for name := range ix.Models {
		ix.modelNames = append(ix.modelNames, name)
	}
	sort.Strings(ix.modelNames)

	ix.tagNames = make([]string, 0, len(ix.Tags))
	for name := range ix.Tags {
		ix.tagNames = append(ix.tagNames, name)
	}
	sort.Strings(ix.tagNames)

	for _, tag := range ix.Tags {
		members := tag.Endpoints
		sort.Slice(members, func(i, j int) bool {
			if members[i].Path != members[j].Path {
				return members[i].Path < members[j].Path
			}
			return members[i].Method < members[j].Method
		})
	}
}
