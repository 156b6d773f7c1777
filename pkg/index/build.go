package index

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/jason-chang/openapi-mcp/pkg/document"
)

// BuildError aborts an index build. A single structural error anywhere in the
// document fails the whole build: partial API knowledge is worse than a clear
// failure for an automated caller.
type BuildError struct {
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index build failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("index build failed: %s", e.Reason)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Build derives a complete Index from doc. The build is atomic and total:
// either every endpoint, model and tag is indexed, or an error is returned
// and no Index exists.
func Build(doc *document.Document) (*Index, error) {
	b := &builder{
		doc:      doc,
		resolver: document.NewResolver(doc),
		idx: &Index{
			Endpoints:     map[EndpointKey]*EndpointEntry{},
			Models:        map[string]*ModelEntry{},
			Tags:          map[string]*TagEntry{},
			BuiltAt:       time.Now(),
			SourceVersion: doc.Version(),
		},
	}

	if err := b.indexComponentSchemas(); err != nil {
		return nil, err
	}
	if err := b.indexPaths(); err != nil {
		return nil, err
	}
	b.indexTags()

	b.idx.freeze()
	return b.idx, nil
}

type builder struct {
	doc      *document.Document
	resolver *document.Resolver
	idx      *Index
}

// indexComponentSchemas resolves every named schema under components/schemas
// up front so duplicate references share one resolved structure.
func (b *builder) indexComponentSchemas() error {
	node, ok := b.doc.Pointer("#/components/schemas")
	if !ok {
		return nil
	}
	schemas, ok := node.(map[string]any)
	if !ok {
		return &BuildError{Reason: "components.schemas is not an object"}
	}
	for name := range schemas {
		if _, err := b.namedModel(name); err != nil {
			return err
		}
	}
	return nil
}

// namedModel resolves a component schema by name, memoized in the model table.
func (b *builder) namedModel(name string) (*ModelEntry, error) {
	if entry, ok := b.idx.Models[name]; ok {
		return entry, nil
	}
	ref := "#/components/schemas/" + name
	schema, err := b.resolver.Resolve(ref)
	if err != nil {
		return nil, &BuildError{Reason: fmt.Sprintf("resolving schema %q", name), Err: err}
	}
	entry := &ModelEntry{
		Name:        name,
		Ref:         ref,
		Description: cast.ToString(schema["description"]),
		Schema:      schema,
	}
	b.idx.Models[name] = entry
	return entry, nil
}

// inlineModel registers an anonymous schema under a synthetic context-derived
// name, e.g. "/users.POST.RequestBody".
func (b *builder) inlineModel(name string, node map[string]any) (*ModelEntry, error) {
	if entry, ok := b.idx.Models[name]; ok {
		return entry, nil
	}
	schema, err := b.resolver.ResolveSchema(node)
	if err != nil {
		return nil, &BuildError{Reason: fmt.Sprintf("resolving inline schema %q", name), Err: err}
	}
	entry := &ModelEntry{
		Name:        name,
		Description: cast.ToString(schema["description"]),
		Schema:      schema,
	}
	b.idx.Models[name] = entry
	return entry, nil
}

func (b *builder) indexPaths() error {
	node, ok := b.doc.Raw()["paths"]
	if !ok {
		return nil
	}
	paths, ok := node.(map[string]any)
	if !ok {
		return &BuildError{Reason: "paths is not an object"}
	}

	for path, itemNode := range paths {
		item, ok := itemNode.(map[string]any)
		if !ok {
			return &BuildError{Reason: fmt.Sprintf("path item %q is not an object", path)}
		}
		shared, err := b.parameters(item["parameters"], path)
		if err != nil {
			return err
		}
		for _, method := range httpMethods {
			opNode, ok := item[strings.ToLower(string(method))]
			if !ok {
				continue
			}
			op, ok := opNode.(map[string]any)
			if !ok {
				return &BuildError{Reason: fmt.Sprintf("operation %s %s is not an object", method, path)}
			}
			entry, err := b.endpoint(path, method, op, shared)
			if err != nil {
				return err
			}
			b.idx.Endpoints[entry.Key()] = entry
		}
	}
	return nil
}

func (b *builder) endpoint(path string, method Method, op map[string]any, shared []ParameterSpec) (*EndpointEntry, error) {
	entry := &EndpointEntry{
		Path:        path,
		Method:      method,
		OperationID: cast.ToString(op["operationId"]),
		Summary:     cast.ToString(op["summary"]),
		Description: cast.ToString(op["description"]),
		Tags:        cast.ToStringSlice(op["tags"]),
		Deprecated:  cast.ToBool(op["deprecated"]),
	}

	own, err := b.parameters(op["parameters"], path)
	if err != nil {
		return nil, err
	}
	entry.Parameters = append(append([]ParameterSpec{}, shared...), own...)

	if bodyNode, ok := op["requestBody"]; ok {
		name, err := b.bodyModel(bodyNode, path, method)
		if err != nil {
			return nil, err
		}
		entry.RequestBody = name
	}

	if respNode, ok := op["responses"]; ok {
		responses, ok := respNode.(map[string]any)
		if !ok {
			return nil, &BuildError{Reason: fmt.Sprintf("responses of %s %s is not an object", method, path)}
		}
		entry.Responses = map[string]string{}
		codes := make([]string, 0, len(responses))
		for code := range responses {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			name, err := b.responseModel(responses[code], path, method, code)
			if err != nil {
				return nil, err
			}
			if name != "" {
				entry.Responses[code] = name
			}
		}
	}
	return entry, nil
}

func (b *builder) parameters(node any, path string) ([]ParameterSpec, error) {
	if node == nil {
		return nil, nil
	}
	list, ok := node.([]any)
	if !ok {
		return nil, &BuildError{Reason: fmt.Sprintf("parameters of %q is not an array", path)}
	}
	var specs []ParameterSpec
	for _, raw := range list {
		param, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if ref, ok := param["$ref"].(string); ok && ref != "" {
			resolved, err := b.resolver.Resolve(ref)
			if err != nil {
				return nil, &BuildError{Reason: fmt.Sprintf("resolving parameter of %q", path), Err: err}
			}
			param = resolved
		}
		spec := ParameterSpec{
			Name:        cast.ToString(param["name"]),
			In:          cast.ToString(param["in"]),
			Required:    cast.ToBool(param["required"]),
			Description: cast.ToString(param["description"]),
		}
		if schemaNode, ok := param["schema"].(map[string]any); ok {
			schema, err := b.resolver.ResolveSchema(schemaNode)
			if err != nil {
				return nil, &BuildError{Reason: fmt.Sprintf("resolving parameter schema of %q", path), Err: err}
			}
			spec.Schema = schema
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// bodyModel indexes the request body schema of an operation and returns the
// model name it was stored under.
func (b *builder) bodyModel(node any, path string, method Method) (string, error) {
	body, ok := node.(map[string]any)
	if !ok {
		return "", &BuildError{Reason: fmt.Sprintf("requestBody of %s %s is not an object", method, path)}
	}
	if ref, ok := body["$ref"].(string); ok && ref != "" {
		resolved, err := b.resolver.Resolve(ref)
		if err != nil {
			return "", &BuildError{Reason: fmt.Sprintf("resolving requestBody of %s %s", method, path), Err: err}
		}
		body = resolved
	}
	schemaNode := contentSchema(body["content"])
	if schemaNode == nil {
		return "", nil
	}
	return b.schemaModel(schemaNode, fmt.Sprintf("%s.%s.RequestBody", path, method))
}

func (b *builder) responseModel(node any, path string, method Method, code string) (string, error) {
	resp, ok := node.(map[string]any)
	if !ok {
		return "", nil
	}
	if ref, ok := resp["$ref"].(string); ok && ref != "" {
		resolved, err := b.resolver.Resolve(ref)
		if err != nil {
			return "", &BuildError{Reason: fmt.Sprintf("resolving response %s of %s %s", code, method, path), Err: err}
		}
		resp = resolved
	}
	schemaNode := contentSchema(resp["content"])
	if schemaNode == nil {
		return "", nil
	}
	return b.schemaModel(schemaNode, fmt.Sprintf("%s.%s.Response%s", path, method, code))
}

// schemaModel registers the model behind a schema node: component references
// land under their declared name, anonymous schemas under synthetic.
func (b *builder) schemaModel(node map[string]any, synthetic string) (string, error) {
	if ref, ok := node["$ref"].(string); ok && ref != "" {
		name := document.RefName(ref)
		if strings.HasPrefix(ref, "#/components/schemas/") {
			if _, err := b.namedModel(name); err != nil {
				return "", err
			}
			return name, nil
		}
		// Non-schema component pointers keep their target name but are
		// indexed through full resolution, like inline schemas.
		resolved, err := b.resolver.Resolve(ref)
		if err != nil {
			return "", &BuildError{Reason: fmt.Sprintf("resolving reference %q", ref), Err: err}
		}
		if _, err := b.inlineModel(name, resolved); err != nil {
			return "", err
		}
		return name, nil
	}
	if _, err := b.inlineModel(synthetic, node); err != nil {
		return "", err
	}
	return synthetic, nil
}

// contentSchema picks the schema of the preferred media type from a content
// object. application/json wins; otherwise the lexically first media type.
func contentSchema(node any) map[string]any {
	content, ok := node.(map[string]any)
	if !ok || len(content) == 0 {
		return nil
	}
	media := content["application/json"]
	if media == nil {
		types := make([]string, 0, len(content))
		for mt := range content {
			types = append(types, mt)
		}
		sort.Strings(types)
		media = content[types[0]]
	}
	m, ok := media.(map[string]any)
	if !ok {
		return nil
	}
	schema, _ := m["schema"].(map[string]any)
	return schema
}

// indexTags inverts endpoint tag membership. Tag descriptions come from the
// document's top-level tag declarations when present; endpoints without tags
// are grouped under the reserved "untagged" tag.
func (b *builder) indexTags() {
	descriptions := map[string]string{}
	if declared, ok := b.doc.Raw()["tags"].([]any); ok {
		for _, raw := range declared {
			tag, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name := cast.ToString(tag["name"])
			if name != "" {
				descriptions[name] = cast.ToString(tag["description"])
			}
		}
	}

	for key, entry := range b.idx.Endpoints {
		tags := entry.Tags
		if len(tags) == 0 {
			tags = []string{UntaggedTag}
		}
		for _, name := range tags {
			tag, ok := b.idx.Tags[name]
			if !ok {
				tag = &TagEntry{Name: name, Description: descriptions[name]}
				b.idx.Tags[name] = tag
			}
			tag.Endpoints = append(tag.Endpoints, key)
		}
	}
}
