// Package loader ingests raw OpenAPI documents from files, URLs or the
// document store and normalizes them into the JSON-compatible map shape the
// engine consumes. Version-specific details are accepted permissively: the
// kin-openapi pass only warns, it never rejects a structurally usable
// document. Swagger 2.0 input is converted to OpenAPI 3 up front.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

const httpTimeout = 30 * time.Second

// LoadFile reads and parses an OpenAPI document from a local path.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file: %w", err)
	}
	raw, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return raw, nil
}

// LoadURL fetches and parses an OpenAPI document over HTTP(S).
func LoadURL(ctx context.Context, rawURL string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building spec request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching spec: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching spec: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading spec response: %w", err)
	}
	raw, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	return raw, nil
}

// Parse decodes YAML or JSON bytes into the canonical map form. All numbers
// come out as float64 and all keys as strings, so downstream cache keys and
// payloads are deterministic regardless of the input encoding.
func Parse(data []byte) (map[string]any, error) {
	var decoded any
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	raw, err := toJSONShape(decoded)
	if err != nil {
		return nil, err
	}

	if isSwagger2(raw) {
		converted, err := convertSwagger2(raw)
		if err != nil {
			return nil, fmt.Errorf("converting swagger 2.0 document: %w", err)
		}
		raw = converted
	}

	warnOnValidation(raw)
	return raw, nil
}

// toJSONShape canonicalizes a decoded YAML value through a JSON round-trip.
func toJSONShape(decoded any) (map[string]any, error) {
	data, err := json.Marshal(stringifyKeys(decoded))
	if err != nil {
		return nil, fmt.Errorf("normalizing document: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	return raw, nil
}

// stringifyKeys rewrites mappings with non-string keys into string-keyed maps.
// YAML allows unquoted status codes and version numbers as keys, which yaml.v3
// decodes as map[interface{}]interface{} and json.Marshal refuses.
func stringifyKeys(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = stringifyKeys(value)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[fmt.Sprint(key)] = stringifyKeys(value)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = stringifyKeys(item)
		}
		return out
	default:
		return v
	}
}

func isSwagger2(raw map[string]any) bool {
	version, _ := raw["swagger"].(string)
	return strings.HasPrefix(version, "2.")
}

func convertSwagger2(raw map[string]any) (map[string]any, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc2 openapi2.T
	if err := json.Unmarshal(data, &doc2); err != nil {
		return nil, err
	}
	doc3, err := openapi2conv.ToV3(&doc2)
	if err != nil {
		return nil, err
	}
	converted, err := json.Marshal(doc3)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(converted, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// warnOnValidation runs the kin-openapi loader over the document and logs
// findings. Acceptance stays permissive: the engine only needs the
// structural shape, so validation problems are reported, not fatal.
func warnOnValidation(raw map[string]any) {
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	kinLoader := openapi3.NewLoader()
	doc, err := kinLoader.LoadFromData(data)
	if err != nil {
		log.Printf("[WARN] document did not load as OpenAPI 3: %v", err)
		return
	}
	if err := doc.Validate(kinLoader.Context); err != nil {
		log.Printf("[WARN] document failed OpenAPI validation: %v", err)
	}
}
