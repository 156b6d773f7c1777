// Package search evaluates multi-dimensional queries over the endpoint
// index: cheap hard filters first (methods, tags, path pattern), then text
// scoring on the survivors. Output ordering is deterministic so repeated
// identical queries return identical results.
package search

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jason-chang/openapi-mcp/pkg/index"
	"github.com/jason-chang/openapi-mcp/pkg/security"
)

// Fields a text query may be matched against.
const (
	FieldPath        = "path"
	FieldSummary     = "summary"
	FieldDescription = "description"
)

// Match scores. An exact substring outranks a case-insensitive one, which
// outranks token overlap; fuzzy scores stay below scoreFold by construction.
const (
	scoreExact = 3.0
	scoreFold  = 2.0
)

// InvalidQueryError reports a malformed query, e.g. an unparsable path
// pattern. It fails fast instead of producing a silent empty result.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

// Query describes one search. Zero-valued dimensions are not applied.
type Query struct {
	Text              string   `json:"text,omitempty"`
	PathPattern       string   `json:"path_pattern,omitempty"`
	Methods           []string `json:"methods,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	SearchIn          []string `json:"search_in,omitempty"`
	IncludeDeprecated bool     `json:"include_deprecated,omitempty"`
	Offset            int      `json:"offset,omitempty"`
	Limit             int      `json:"limit,omitempty"`
}

// Result is one ranked endpoint.
type Result struct {
	Path        string   `json:"path"`
	Method      string   `json:"method"`
	Summary     string   `json:"summary,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Deprecated  bool     `json:"deprecated,omitempty"`
	Score       float64  `json:"score"`
	MatchedIn   string   `json:"matched_in,omitempty"`
}

// Page is a paginated result set. Total counts all matches before offset and
// limit were applied.
type Page struct {
	Results   []Result `json:"results"`
	Total     int      `json:"total"`
	Offset    int      `json:"offset"`
	Limit     int      `json:"limit"`
	Truncated bool     `json:"truncated"`
}

// Engine evaluates queries against a built index.
type Engine struct {
	filter   *security.Filter
	maxLimit int
}

// NewEngine returns an Engine. maxLimit clamps caller-supplied limits to
// bound response size regardless of input.
func NewEngine(filter *security.Filter, maxLimit int) *Engine {
	if maxLimit <= 0 {
		maxLimit = 50
	}
	return &Engine{filter: filter, maxLimit: maxLimit}
}

// Search returns the ranked, paginated matches for q.
func (e *Engine) Search(ix *index.Index, q Query) (*Page, error) {
	pathRe, err := compilePattern(q.PathPattern)
	if err != nil {
		return nil, err
	}
	fields, err := searchFields(q.SearchIn)
	if err != nil {
		return nil, err
	}
	methods, err := methodSet(q.Methods)
	if err != nil {
		return nil, err
	}
	tags := stringSet(q.Tags)

	var matches []Result
	for _, key := range ix.EndpointKeys() {
		entry := ix.Endpoints[key]
		if !e.filter.Visible(entry.Path, string(entry.Method), entry.Tags) {
			continue
		}
		if len(methods) > 0 {
			if _, ok := methods[string(entry.Method)]; !ok {
				continue
			}
		}
		if len(tags) > 0 && !anyTag(entry.Tags, tags) {
			continue
		}
		if pathRe != nil && !pathRe.MatchString(entry.Path) {
			continue
		}
		if entry.Deprecated && !q.IncludeDeprecated {
			continue
		}

		score, matchedIn := 0.0, ""
		if q.Text != "" {
			score, matchedIn = scoreEntry(entry, q.Text, fields)
			if score == 0 {
				continue
			}
		}
		matches = append(matches, Result{
			Path:        entry.Path,
			Method:      string(entry.Method),
			Summary:     entry.Summary,
			Description: entry.Description,
			Tags:        entry.Tags,
			Deprecated:  entry.Deprecated,
			Score:       score,
			MatchedIn:   matchedIn,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Path != matches[j].Path {
			return matches[i].Path < matches[j].Path
		}
		return matches[i].Method < matches[j].Method
	})

	return paginate(matches, q.Offset, q.Limit, e.maxLimit), nil
}

// scoreEntry returns the best field score and which field produced it.
func scoreEntry(entry *index.EndpointEntry, text string, fields []string) (float64, string) {
	best, matchedIn := 0.0, ""
	for _, field := range fields {
		var value string
		switch field {
		case FieldPath:
			value = entry.Path
		case FieldSummary:
			value = entry.Summary
		case FieldDescription:
			value = entry.Description
		}
		if score := scoreText(value, text); score > best {
			best, matchedIn = score, field
		}
	}
	return best, matchedIn
}

func scoreText(value, text string) float64 {
	if value == "" {
		return 0
	}
	if strings.Contains(value, text) {
		return scoreExact
	}
	if strings.Contains(strings.ToLower(value), strings.ToLower(text)) {
		return scoreFold
	}
	return tokenOverlap(value, text)
}

// tokenOverlap scores the fraction of query tokens present in the field,
// always below a case-insensitive substring match.
func tokenOverlap(value, text string) float64 {
	queryTokens := tokenize(text)
	if len(queryTokens) == 0 {
		return 0
	}
	fieldTokens := map[string]struct{}{}
	for _, token := range tokenize(value) {
		fieldTokens[token] = struct{}{}
	}
	hits := 0
	for _, token := range queryTokens {
		if _, ok := fieldTokens[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &InvalidQueryError{Reason: fmt.Sprintf("bad path_pattern: %v", err)}
	}
	return re, nil
}

func searchFields(in []string) ([]string, error) {
	if len(in) == 0 {
		return []string{FieldPath, FieldSummary, FieldDescription}, nil
	}
	var fields []string
	for _, field := range in {
		switch strings.ToLower(field) {
		case FieldPath, FieldSummary, FieldDescription:
			fields = append(fields, strings.ToLower(field))
		default:
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("unknown search_in field %q", field)}
		}
	}
	return fields, nil
}

func methodSet(methods []string) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	for _, m := range methods {
		upper := strings.ToUpper(strings.TrimSpace(m))
		if !index.IsMethod(upper) {
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("unknown method %q", m)}
		}
		set[upper] = struct{}{}
	}
	return set, nil
}

func stringSet(values []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func anyTag(tags []string, want map[string]struct{}) bool {
	for _, tag := range tags {
		if _, ok := want[tag]; ok {
			return true
		}
	}
	return false
}

func paginate(matches []Result, offset, limit, maxLimit int) *Page {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	total := len(matches)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return &Page{
		Results:   matches[offset:end],
		Total:     total,
		Offset:    offset,
		Limit:     limit,
		Truncated: end < total,
	}
}
