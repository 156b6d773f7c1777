package document

import (
	"fmt"
)

// Marker keys injected where the resolver truncates a reference cycle.
// A back-reference node records the target's name and a recursive flag so the
// relationship stays visible in documentation output without expanding it.
const (
	RecursiveRefKey  = "x-recursive-ref"
	RecursiveFlagKey = "x-recursive"
)

// UnresolvableReferenceError reports a $ref pointing at a path absent from
// the document. It is surfaced to the caller rather than dropped: a missing
// referenced model corrupts downstream example generation.
type UnresolvableReferenceError struct {
	Pointer string
}

func (e *UnresolvableReferenceError) Error() string {
	return fmt.Sprintf("unresolvable reference: %s", e.Pointer)
}

// Resolver expands $ref chains against a single Document. It never mutates
// the document; every resolution returns freshly allocated structures.
type Resolver struct {
	doc *Document
}

// NewResolver returns a Resolver bound to doc.
func NewResolver(doc *Document) *Resolver {
	return &Resolver{doc: doc}
}

// Resolve expands the schema behind a JSON pointer, following $ref chains
// transitively. Revisiting a pointer already on the active resolution path
// yields a back-reference marker instead of re-expanding.
func (r *Resolver) Resolve(ref string) (map[string]any, error) {
	node, ok := r.doc.Pointer(ref)
	if !ok {
		return nil, &UnresolvableReferenceError{Pointer: ref}
	}
	expanded, err := r.expand(node, map[string]bool{ref: true})
	if err != nil {
		return nil, err
	}
	schema, ok := expanded.(map[string]any)
	if !ok {
		return nil, &UnresolvableReferenceError{Pointer: ref}
	}
	return schema, nil
}

// ResolveSchema expands an inline schema node that is not itself addressable
// by a pointer (e.g. an anonymous request body schema).
func (r *Resolver) ResolveSchema(node map[string]any) (map[string]any, error) {
	expanded, err := r.expand(node, map[string]bool{})
	if err != nil {
		return nil, err
	}
	schema, _ := expanded.(map[string]any)
	return schema, nil
}

// expand walks a schema tree, replacing $ref nodes with their targets.
// active tracks the pointers currently being expanded on this path; hitting
// one again means a cycle, which is truncated with a marker node.
func (r *Resolver) expand(node any, active map[string]bool) (any, error) {
	switch typed := node.(type) {
	case map[string]any:
		if ref, ok := typed["$ref"].(string); ok && ref != "" {
			if active[ref] {
				return recursiveMarker(ref), nil
			}
			target, ok := r.doc.Pointer(ref)
			if !ok {
				return nil, &UnresolvableReferenceError{Pointer: ref}
			}
			active[ref] = true
			expanded, err := r.expand(target, active)
			delete(active, ref)
			return expanded, err
		}

		out := make(map[string]any, len(typed))
		for key, value := range typed {
			expanded, err := r.expand(value, active)
			if err != nil {
				return nil, err
			}
			out[key] = expanded
		}
		return out, nil

	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			expanded, err := r.expand(value, active)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil

	default:
		return node, nil
	}
}

func recursiveMarker(ref string) map[string]any {
	return map[string]any{
		RecursiveRefKey:  RefName(ref),
		RecursiveFlagKey: true,
	}
}

// IsRecursiveMarker reports whether node is a back-reference emitted by the
// resolver, returning the referenced model name when it is.
func IsRecursiveMarker(node any) (string, bool) {
	m, ok := node.(map[string]any)
	if !ok {
		return "", false
	}
	flag, _ := m[RecursiveFlagKey].(bool)
	if !flag {
		return "", false
	}
	name, _ := m[RecursiveRefKey].(string)
	return name, true
}
