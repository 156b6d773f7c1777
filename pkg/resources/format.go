package resources

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Output formats a payload can be rendered to. JSON is the wire default;
// markdown and plain suit terminals and chat surfaces.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatPlain    = "plain"
)

// Media types of the text formats.
const (
	MIMEMarkdown = "text/markdown"
	MIMEPlain    = "text/plain"
)

// UnknownFormatError reports a render request for a format nobody registered.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown output format: %s", e.Format)
}

// Rendered is a payload serialized into one output format.
type Rendered struct {
	Content  string `json:"content"`
	MIMEType string `json:"mime_type"`
}

// Formatter turns a resolved payload into one output format.
type Formatter interface {
	Format() string
	MIMEType() string
	Render(p *Payload) (string, error)
}

var formatters = map[string]Formatter{
	FormatJSON:     jsonFormatter{},
	FormatMarkdown: markdownFormatter{},
	FormatPlain:    plainFormatter{},
}

// Formats lists the registered format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render serializes p into the named format. An empty format means JSON.
func Render(p *Payload, format string) (*Rendered, error) {
	if format == "" {
		format = FormatJSON
	}
	f, ok := formatters[format]
	if !ok {
		return nil, &UnknownFormatError{Format: format}
	}
	content, err := f.Render(p)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", format, err)
	}
	return &Rendered{Content: content, MIMEType: f.MIMEType()}, nil
}

// jsonFormatter emits the payload content as indented JSON.
type jsonFormatter struct{}

func (jsonFormatter) Format() string   { return FormatJSON }
func (jsonFormatter) MIMEType() string { return MIMEJSON }

func (jsonFormatter) Render(p *Payload) (string, error) {
	data, err := json.MarshalIndent(p.Content, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// markdownFormatter walks the payload tree into nested bullet lists with bold
// keys, readable in terminals and chat clients alike.
type markdownFormatter struct{}

func (markdownFormatter) Format() string   { return FormatMarkdown }
func (markdownFormatter) MIMEType() string { return MIMEMarkdown }

func (markdownFormatter) Render(p *Payload) (string, error) {
	var b strings.Builder
	writeTree(&b, p.Content, 0, func(key string) string { return "**" + key + "**" })
	return b.String(), nil
}

// plainFormatter walks the payload tree into indented key: value lines with
// no markup.
type plainFormatter struct{}

func (plainFormatter) Format() string   { return FormatPlain }
func (plainFormatter) MIMEType() string { return MIMEPlain }

func (plainFormatter) Render(p *Payload) (string, error) {
	var b strings.Builder
	writeTree(&b, p.Content, 0, func(key string) string { return key })
	return b.String(), nil
}

// writeTree renders JSON-shaped values as an indented outline. Map keys are
// sorted for deterministic output; decorate styles the key text.
func writeTree(b *strings.Builder, v any, depth int, decorate func(string) string) {
	indent := strings.Repeat("  ", depth)
	switch typed := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := typed[key]
			if isScalar(value) {
				fmt.Fprintf(b, "%s- %s: %s\n", indent, decorate(key), scalarString(value))
				continue
			}
			fmt.Fprintf(b, "%s- %s:\n", indent, decorate(key))
			writeTree(b, value, depth+1, decorate)
		}
	case []any:
		for _, item := range typed {
			if isScalar(item) {
				fmt.Fprintf(b, "%s- %s\n", indent, scalarString(item))
				continue
			}
			fmt.Fprintf(b, "%s-\n", indent)
			writeTree(b, item, depth+1, decorate)
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, scalarString(v))
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

func scalarString(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}
