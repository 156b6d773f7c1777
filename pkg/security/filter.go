// Package security provides the cross-cutting output filter: field-level
// masking of sensitive values, a visibility predicate that hides endpoints
// from every outward-facing listing, and best-effort access logging.
package security

import (
	"strings"
)

// RedactionMarker replaces the value of any sensitive field.
const RedactionMarker = "***"

// DefaultSensitiveKeys are the field names masked without any configuration,
// matched case-insensitively at any nesting depth.
var DefaultSensitiveKeys = []string{
	"password",
	"passwd",
	"pwd",
	"token",
	"access_token",
	"refresh_token",
	"api_key",
	"apikey",
	"secret",
	"client_secret",
	"authorization",
	"private_key",
	"session_id",
	"cookie",
}

// VisibilityFunc decides whether an endpoint appears in outward-facing
// results. A nil predicate means everything is visible. The index itself
// still contains hidden endpoints for internal consistency.
type VisibilityFunc func(path, method string, tags []string) bool

// Filter applies masking and visibility rules before payloads leave the
// engine. Router, search and example generation all share one Filter.
type Filter struct {
	sensitive map[string]struct{}
	visible   VisibilityFunc
	audit     *AuditLog
}

// Config configures a Filter. ExtraSensitiveKeys extends (never replaces)
// the default sensitive-name set.
type Config struct {
	ExtraSensitiveKeys []string
	Visibility         VisibilityFunc
	Audit              *AuditLog
}

// NewFilter builds a Filter from cfg.
func NewFilter(cfg Config) *Filter {
	sensitive := make(map[string]struct{}, len(DefaultSensitiveKeys)+len(cfg.ExtraSensitiveKeys))
	for _, key := range DefaultSensitiveKeys {
		sensitive[strings.ToLower(key)] = struct{}{}
	}
	for _, key := range cfg.ExtraSensitiveKeys {
		if key = strings.TrimSpace(key); key != "" {
			sensitive[strings.ToLower(key)] = struct{}{}
		}
	}
	return &Filter{
		sensitive: sensitive,
		visible:   cfg.Visibility,
		audit:     cfg.Audit,
	}
}

// Mask walks payload recursively and replaces the value of every mapping key
// in the sensitive set with the redaction marker. The input is not mutated;
// maps and slices along masked paths are copied.
func (f *Filter) Mask(payload any) any {
	switch typed := payload.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			if _, hit := f.sensitive[strings.ToLower(key)]; hit {
				out[key] = RedactionMarker
				continue
			}
			out[key] = f.Mask(value)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, value := range typed {
			out[i] = f.Mask(value)
		}
		return out
	default:
		return payload
	}
}

// Visible reports whether the endpoint may appear in outward-facing results.
func (f *Filter) Visible(path, method string, tags []string) bool {
	if f.visible == nil {
		return true
	}
	return f.visible(path, method, tags)
}

// Record emits an access-log entry if auditing is enabled. Failures never
// reach the caller; logging is a side effect, not a correctness requirement.
func (f *Filter) Record(caller, name string, params map[string]any) {
	if f.audit == nil {
		return
	}
	f.audit.Record(caller, name, params)
}
