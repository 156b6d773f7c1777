// Package resources maps openapi:// URIs onto index lookups. The kind set is
// closed (spec, endpoints, models, tags) and dispatched through a fixed route
// table instead of an open-ended handler hierarchy.
package resources

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yosida95/uritemplate/v3"

	"github.com/jason-chang/openapi-mcp/pkg/document"
	"github.com/jason-chang/openapi-mcp/pkg/index"
	"github.com/jason-chang/openapi-mcp/pkg/security"
)

// Scheme is the URI scheme served by the router.
const Scheme = "openapi://"

// MIMEJSON is the media type of every router payload.
const MIMEJSON = "application/json"

// Kind enumerates the resource kinds addressable under the scheme.
type Kind int

const (
	KindSpec Kind = iota
	KindEndpointList
	KindEndpoint
	KindModelList
	KindModel
	KindTagList
	KindTagEndpoints
)

// NotFoundError reports an explicit lookup for something the current index
// does not contain (unknown model name, unmatched endpoint path, unroutable
// URI). Absence cases that are valid data, like an unknown tag, return an
// empty payload instead.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.Resource)
}

// Payload is the serializable result of a resource read.
type Payload struct {
	Content  any    `json:"content"`
	MIMEType string `json:"mime_type"`
}

type route struct {
	kind Kind
	tpl  *uritemplate.Template
}

// endpointPrefix is handled outside the template table because templated API
// paths contain slashes, which single-segment URI template variables reject.
const endpointPrefix = Scheme + "endpoints/"

// Router resolves openapi:// URIs against a built index. Every payload
// passes through the security filter before it is returned.
type Router struct {
	filter *security.Filter
	routes []route
}

// NewRouter builds a Router using filter for masking and visibility.
func NewRouter(filter *security.Filter) *Router {
	return &Router{
		filter: filter,
		routes: []route{
			{KindSpec, uritemplate.MustNew(Scheme + "spec")},
			{KindEndpointList, uritemplate.MustNew(Scheme + "endpoints")},
			{KindModelList, uritemplate.MustNew(Scheme + "models")},
			{KindModel, uritemplate.MustNew(Scheme + "models/{name}")},
			{KindTagList, uritemplate.MustNew(Scheme + "tags")},
			{KindTagEndpoints, uritemplate.MustNew(Scheme + "tags/{tag}/endpoints")},
		},
	}
}

// Resolve routes uri to an index lookup and returns its filtered payload.
func (r *Router) Resolve(ix *index.Index, doc *document.Document, uri string) (*Payload, error) {
	uri = strings.TrimSpace(uri)

	// Tag routes share the endpoints/... shape check below would swallow,
	// so template routes are tried first.
	for _, rt := range r.routes {
		values := rt.tpl.Match(uri)
		if values == nil {
			continue
		}
		switch rt.kind {
		case KindSpec:
			return r.specPayload(ix, doc)
		case KindEndpointList:
			return r.endpointList(ix)
		case KindModelList:
			return r.modelList(ix)
		case KindModel:
			name, err := decodeParam(values.Get("name").String())
			if err != nil {
				return nil, err
			}
			return r.model(ix, name)
		case KindTagList:
			return r.tagList(ix)
		case KindTagEndpoints:
			tag, err := decodeParam(values.Get("tag").String())
			if err != nil {
				return nil, err
			}
			return r.tagEndpoints(ix, tag)
		}
	}

	if strings.HasPrefix(uri, endpointPrefix) {
		path, err := decodeParam(strings.TrimPrefix(uri, endpointPrefix))
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return r.endpoint(ix, path)
	}

	return nil, &NotFoundError{Resource: uri}
}

// decodeParam percent-decodes a path parameter so reserved URI characters in
// templated API paths round-trip through the resource scheme.
func decodeParam(raw string) (string, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", &NotFoundError{Resource: raw}
	}
	return decoded, nil
}
