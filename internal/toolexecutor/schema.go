// Package toolexecutor validates tool arguments and invokes tool handlers
// under a timeout, producing error-as-result semantics per spec.md 4.3.
package toolexecutor

import (
	"fmt"
	"strings"
)

// ValidationIssue names one schema violation by JSON pointer-ish path, for
// the field-level detail spec.md 4.3 step 2 requires in the error result.
type ValidationIssue struct {
	Path    string
	Message string
}

// ValidateArgs checks args against the tool's input JSON Schema, a
// hand-rolled minimal subset (type, required, properties, enum, min/max,
// minLength/maxLength, items, nested objects) per the design note's
// explicit call to avoid generic reflection in the hot validation path.
// It returns every violation found, not just the first.
func ValidateArgs(schema map[string]any, args map[string]any) []ValidationIssue {
	var issues []ValidationIssue
	validateValue("", schema, args, &issues)
	return issues
}

func validateValue(path string, schema map[string]any, value any, issues *[]ValidationIssue) {
	if schema == nil {
		return
	}

	if t, ok := schema["type"].(string); ok {
		if !typeMatches(t, value) {
			*issues = append(*issues, ValidationIssue{Path: pathOrRoot(path), Message: fmt.Sprintf("expected type %s", t)})
			return
		}
	}

	if enumVals, ok := schema["enum"].([]any); ok {
		if !enumContains(enumVals, value) {
			*issues = append(*issues, ValidationIssue{Path: pathOrRoot(path), Message: "value is not one of the allowed enum values"})
		}
	}

	switch v := value.(type) {
	case float64:
		validateNumber(path, schema, v, issues)
	case int:
		validateNumber(path, schema, float64(v), issues)
	case string:
		validateString(path, schema, v, issues)
	case []any:
		validateArray(path, schema, v, issues)
	case map[string]any:
		validateObject(path, schema, v, issues)
	}
}

func typeMatches(t string, value any) bool {
	switch t {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, int:
			return true
		}
		return false
	case "integer":
		switch n := value.(type) {
		case int:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}

func validateNumber(path string, schema map[string]any, n float64, issues *[]ValidationIssue) {
	if min, ok := numericField(schema, "minimum"); ok && n < min {
		*issues = append(*issues, ValidationIssue{Path: pathOrRoot(path), Message: fmt.Sprintf("must be >= %v", min)})
	}
	if max, ok := numericField(schema, "maximum"); ok && n > max {
		*issues = append(*issues, ValidationIssue{Path: pathOrRoot(path), Message: fmt.Sprintf("must be <= %v", max)})
	}
}

func numericField(schema map[string]any, key string) (float64, bool) {
	v, ok := schema[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func validateString(path string, schema map[string]any, s string, issues *[]ValidationIssue) {
	if minLen, ok := numericField(schema, "minLength"); ok && len(s) < int(minLen) {
		*issues = append(*issues, ValidationIssue{Path: pathOrRoot(path), Message: fmt.Sprintf("length must be >= %d", int(minLen))})
	}
	if maxLen, ok := numericField(schema, "maxLength"); ok && len(s) > int(maxLen) {
		*issues = append(*issues, ValidationIssue{Path: pathOrRoot(path), Message: fmt.Sprintf("length must be <= %d", int(maxLen))})
	}
}

func validateArray(path string, schema map[string]any, arr []any, issues *[]ValidationIssue) {
	itemSchema, _ := schema["items"].(map[string]any)
	if itemSchema == nil {
		return
	}
	for i, item := range arr {
		validateValue(fmt.Sprintf("%s[%d]", path, i), itemSchema, item, issues)
	}
}

func validateObject(path string, schema map[string]any, obj map[string]any, issues *[]ValidationIssue) {
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := obj[name]; !present {
				*issues = append(*issues, ValidationIssue{Path: childPath(path, name), Message: "required field is missing"})
			}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for key, val := range obj {
		propSchema, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		validateValue(childPath(path, key), propSchema, val, issues)
	}
}

func pathOrRoot(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

func childPath(path, name string) string {
	if path == "" {
		return name
	}
	return strings.TrimPrefix(path+"."+name, ".")
}
