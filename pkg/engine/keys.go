package engine

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/jason-chang/openapi-mcp/pkg/search"
)

// searchKey derives a deterministic cache key from a query by normalizing
// every set-valued dimension before serializing. Two queries that differ
// only in slice order or method casing share one cache entry.
func searchKey(q search.Query) (string, error) {
	normalized := q
	normalized.Methods = sortedUpper(q.Methods)
	normalized.Tags = sortedCopy(q.Tags)
	normalized.SearchIn = sortedLower(q.SearchIn)

	data, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return "search:" + string(data), nil
}

func sortedCopy(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string{}, values...)
	sort.Strings(out)
	return out
}

func sortedUpper(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	sort.Strings(out)
	return out
}

func sortedLower(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	sort.Strings(out)
	return out
}
