package agentloop

import (
	"encoding/json"
	"fmt"
	"math"
)

// Validation failure kinds.
const (
	ValidationMissingField = "missing_field"
	ValidationWrongType    = "wrong_type"
	ValidationOutOfRange   = "out_of_range"
)

// ValidationError reports a tool-call argument that does not satisfy the
// tool's parameter schema. The Dispatcher converts it into a tool-error
// result; it never crosses the session boundary as a Go error.
type ValidationError struct {
	Tool    string
	Field   string
	Kind    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid argument %q: %s", e.Tool, e.Field, e.Message)
}

// ValidateArguments checks raw tool-call arguments against the tool's
// parameter schema. This is a lightweight subset of JSON Schema: required
// fields, type checks (including nullable type lists), and minimum bounds.
//
// A required field whose type list allows null may be absent; the tool
// treats missing and null identically.
func ValidateArguments(def ToolDefinition, raw json.RawMessage) error {
	args, err := ParseToolArguments(raw)
	if err != nil {
		return &ValidationError{
			Tool:    def.Name,
			Kind:    ValidationWrongType,
			Message: err.Error(),
		}
	}

	properties, _ := def.Parameters["properties"].(map[string]interface{})

	if required, ok := def.Parameters["required"].([]interface{}); ok {
		for _, field := range required {
			fieldName, ok := field.(string)
			if !ok {
				continue // malformed schema
			}
			if _, exists := args[fieldName]; exists {
				continue
			}
			if prop, ok := properties[fieldName].(map[string]interface{}); ok && typeAllowsNull(prop) {
				continue
			}
			return &ValidationError{
				Tool:    def.Name,
				Field:   fieldName,
				Kind:    ValidationMissingField,
				Message: "missing required field",
			}
		}
	}

	for key, value := range args {
		prop, ok := properties[key].(map[string]interface{})
		if !ok {
			continue
		}
		if err := validateValue(def.Name, key, prop, value); err != nil {
			return err
		}
	}

	return nil
}

// propertyTypes normalizes the schema "type" keyword, which may be a single
// string or a list of strings.
func propertyTypes(schema map[string]interface{}) []string {
	switch t := schema["type"].(type) {
	case string:
		return []string{t}
	case []interface{}:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		return types
	default:
		return nil
	}
}

func typeAllowsNull(schema map[string]interface{}) bool {
	for _, t := range propertyTypes(schema) {
		if t == "null" {
			return true
		}
	}
	return false
}

func validateValue(tool, field string, schema map[string]interface{}, value interface{}) error {
	types := propertyTypes(schema)
	if len(types) == 0 {
		return nil // type not specified
	}

	if value == nil {
		if typeAllowsNull(schema) {
			return nil
		}
		return &ValidationError{
			Tool:    tool,
			Field:   field,
			Kind:    ValidationWrongType,
			Message: "expected " + types[0] + ", got null",
		}
	}

	matched := false
	for _, t := range types {
		if valueMatchesType(t, value) {
			matched = true
			break
		}
	}
	if !matched {
		return &ValidationError{
			Tool:    tool,
			Field:   field,
			Kind:    ValidationWrongType,
			Message: fmt.Sprintf("expected %v, got %T", types, value),
		}
	}

	if min, ok := schema["minimum"].(float64); ok {
		if n, ok := value.(float64); ok && n < min {
			return &ValidationError{
				Tool:    tool,
				Field:   field,
				Kind:    ValidationOutOfRange,
				Message: fmt.Sprintf("must be >= %v", min),
			}
		}
	}

	return nil
}

func valueMatchesType(expected string, value interface{}) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		// JSON unmarshals numbers to float64.
		n, ok := value.(float64)
		return ok && n == math.Trunc(n)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}
