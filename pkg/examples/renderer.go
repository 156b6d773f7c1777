package examples

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Renderer turns the canonical CallExample into one output format.
type Renderer interface {
	Format() string
	Render(ex *CallExample) (string, error)
}

// Registered format identifiers.
const (
	FormatJSON       = "json"
	FormatCurl       = "curl"
	FormatPython     = "python"
	FormatJavaScript = "javascript"
)

func marshalIndent(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// jsonRenderer emits the structured form of the example.
type jsonRenderer struct{}

func (jsonRenderer) Format() string { return FormatJSON }

func (jsonRenderer) Render(ex *CallExample) (string, error) {
	if ex.Model != "" {
		return marshalIndent(map[string]any{
			"model":   ex.Model,
			"example": ex.Value,
		})
	}
	return marshalIndent(map[string]any{
		"method":       ex.Method,
		"url":          ex.URL(),
		"path_params":  ex.PathParams,
		"query_params": ex.QueryParams,
		"body":         ex.Body,
		"responses":    ex.Responses,
	})
}

// curlRenderer emits a command-line invocation.
type curlRenderer struct{}

func (curlRenderer) Format() string { return FormatCurl }

func (curlRenderer) Render(ex *CallExample) (string, error) {
	if ex.Model != "" {
		body, err := json.Marshal(ex.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("echo '%s'", body), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s \"%s%s\"", ex.Method, ex.URL(), queryString(ex.QueryParams))
	if ex.Body != nil {
		body, err := json.Marshal(ex.Body)
		if err != nil {
			return "", err
		}
		b.WriteString(" \\\n  -H \"Content-Type: application/json\"")
		fmt.Fprintf(&b, " \\\n  -d '%s'", body)
	}
	return b.String(), nil
}

// pythonRenderer emits a requests-based snippet.
type pythonRenderer struct{}

func (pythonRenderer) Format() string { return FormatPython }

func (pythonRenderer) Render(ex *CallExample) (string, error) {
	if ex.Model != "" {
		value, err := marshalIndent(ex.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("example = %s", value), nil
	}

	var b strings.Builder
	b.WriteString("import requests\n\n")
	fmt.Fprintf(&b, "url = %q\n", ex.URL())
	args := []string{"url"}
	if len(ex.QueryParams) > 0 {
		params, err := marshalIndent(ex.QueryParams)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "params = %s\n", params)
		args = append(args, "params=params")
	}
	if ex.Body != nil {
		body, err := marshalIndent(ex.Body)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "payload = %s\n", body)
		args = append(args, "json=payload")
	}
	fmt.Fprintf(&b, "\nresponse = requests.%s(%s)\nprint(response.json())",
		strings.ToLower(ex.Method), strings.Join(args, ", "))
	return b.String(), nil
}

// javascriptRenderer emits a fetch-based snippet.
type javascriptRenderer struct{}

func (javascriptRenderer) Format() string { return FormatJavaScript }

func (javascriptRenderer) Render(ex *CallExample) (string, error) {
	if ex.Model != "" {
		value, err := marshalIndent(ex.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("const example = %s;", value), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "const response = await fetch(%q, {\n", ex.URL()+queryString(ex.QueryParams))
	fmt.Fprintf(&b, "  method: %q,\n", ex.Method)
	if ex.Body != nil {
		body, err := json.Marshal(ex.Body)
		if err != nil {
			return "", err
		}
		b.WriteString("  headers: { \"Content-Type\": \"application/json\" },\n")
		fmt.Fprintf(&b, "  body: JSON.stringify(%s),\n", body)
	}
	b.WriteString("});\nconst data = await response.json();")
	return b.String(), nil
}

// queryString renders query parameters deterministically.
func queryString(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, url.QueryEscape(name)+"="+url.QueryEscape(cast.ToString(params[name])))
	}
	return "?" + strings.Join(pairs, "&")
}
