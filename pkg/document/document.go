// Package document holds the raw OpenAPI document and resolves $ref pointers
// into fully expanded, cycle-safe schema trees.
//
// The raw document is kept as a plain map[string]any so the engine accepts any
// JSON-compatible structure permissively; schema-shape validation happens at
// the indexer boundary, not here. A Document is immutable once created and is
// replaced wholesale on refresh, each copy carrying a fresh version stamp.
package document

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Document wraps an immutable raw OpenAPI document with a version stamp.
// The stamp changes on every ingestion, so downstream caches can detect when
// a value was derived from a document that has since been replaced.
type Document struct {
	raw      map[string]any
	version  string
	loadedAt time.Time
}

// New wraps raw in a Document with a fresh version stamp. The caller must not
// mutate raw after handing it over.
func New(raw map[string]any) *Document {
	if raw == nil {
		raw = map[string]any{}
	}
	return &Document{
		raw:      raw,
		version:  uuid.NewString(),
		loadedAt: time.Now(),
	}
}

// Raw returns the underlying document. Treat it as read-only.
func (d *Document) Raw() map[string]any { return d.raw }

// Version returns the version stamp assigned at ingestion.
func (d *Document) Version() string { return d.version }

// LoadedAt returns when the document was ingested.
func (d *Document) LoadedAt() time.Time { return d.loadedAt }

// Info returns the document's info section, or an empty map.
func (d *Document) Info() map[string]any {
	info, _ := d.raw["info"].(map[string]any)
	if info == nil {
		return map[string]any{}
	}
	return info
}

// Title returns info.title, or an empty string.
func (d *Document) Title() string { return cast.ToString(d.Info()["title"]) }

// Pointer looks up a JSON pointer like "#/components/schemas/User" and
// returns the referenced node. The leading "#" is optional. Escaped tokens
// ("~0" for "~", "~1" for "/") are decoded per RFC 6901.
func (d *Document) Pointer(ptr string) (any, bool) {
	ptr = strings.TrimPrefix(ptr, "#")
	if ptr == "" || ptr == "/" {
		return d.raw, true
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil, false
	}

	var node any = d.raw
	for _, token := range strings.Split(ptr[1:], "/") {
		token = unescapeToken(token)
		switch typed := node.(type) {
		case map[string]any:
			child, ok := typed[token]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(typed) {
				return nil, false
			}
			node = typed[i]
		default:
			return nil, false
		}
	}
	return node, true
}

func unescapeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

// RefName extracts the last segment of a $ref pointer, which for component
// schemas is the model name ("#/components/schemas/User" -> "User").
func RefName(ref string) string {
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return unescapeToken(ref[i+1:])
	}
	return ref
}
