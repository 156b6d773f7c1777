package examples

import (
	"github.com/xeipuuv/gojsonschema"
)

// ValidateAgainstSchema checks a synthesized value against its source schema.
// This is a best-effort sanity pass: resolver back-reference markers and
// OpenAPI-only keywords are ignored by the validator, and callers treat an
// unparsable schema as "no finding" rather than a failure.
func ValidateAgainstSchema(schema map[string]any, value any) (bool, []string) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(value),
	)
	if err != nil {
		return true, nil
	}
	if result.Valid() {
		return true, nil
	}
	findings := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		findings = append(findings, desc.String())
	}
	return false, findings
}
