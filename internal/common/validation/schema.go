package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// JSONSchema defines the structure of a JSON document exchanged with the model
// or written as output.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Description          string              `json:"description,omitempty"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties,omitempty"`
}

type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Pattern     *string             `json:"pattern,omitempty"`
	MinLength   *int                `json:"minLength,omitempty"`
	MaxLength   *int                `json:"maxLength,omitempty"`
	MinItems    *int                `json:"minItems,omitempty"`
	Items       *Property           `json:"items,omitempty"`      // For array validation
	Properties  map[string]Property `json:"properties,omitempty"` // For nested objects
	Required    []string            `json:"required,omitempty"`   // For nested objects
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Int and Float return pointers for constraint fields.
func Int(v int) *int { return &v }

func Float(v float64) *float64 { return &v }

// ValidateInput validates input against JSON schema with detailed errors.
// Every violation is collected; fields are visited in sorted order so the
// result is stable.
func ValidateInput(input map[string]interface{}, schema JSONSchema) *ValidationResult {
	errors := validateObject("", input, schema.Properties, schema.Required, schema.AdditionalProperties)
	return &ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

// ValidateDocument validates an arbitrary decoded JSON value. A non-object
// document yields a single error on the root path "$".
func ValidateDocument(doc interface{}, schema JSONSchema) *ValidationResult {
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "$",
				Message: fmt.Sprintf("expected object, got %s", jsonTypeName(doc)),
				Code:    "INVALID_TYPE",
			}},
		}
	}
	return ValidateInput(obj, schema)
}

func validateObject(prefix string, obj map[string]interface{}, props map[string]Property, required []string, additional bool) []ValidationError {
	errors := []ValidationError{}

	for _, requiredField := range required {
		if _, exists := obj[requiredField]; !exists {
			errors = append(errors, ValidationError{
				Field:   joinPath(prefix, requiredField),
				Message: "required field missing",
				Code:    "REQUIRED_FIELD_MISSING",
			})
		}
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, fieldName := range names {
		path := joinPath(prefix, fieldName)
		prop, exists := props[fieldName]
		if !exists {
			if !additional {
				errors = append(errors, ValidationError{
					Field:   path,
					Message: "field not allowed in schema",
					Code:    "EXTRA_FIELD",
				})
			}
			continue
		}
		errors = append(errors, validateField(path, obj[fieldName], prop)...)
	}

	return errors
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func validateField(fieldName string, value interface{}, prop Property) []ValidationError {
	errors := []ValidationError{}

	if typeErr := validateType(value, prop.Type); typeErr != nil {
		errors = append(errors, ValidationError{
			Field:   fieldName,
			Message: typeErr.Error(),
			Code:    "INVALID_TYPE",
		})
		return errors
	}

	// String validations
	if strVal, ok := value.(string); ok {
		length := len([]rune(strVal))
		if prop.MinLength != nil && length < *prop.MinLength {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be at least %d characters", *prop.MinLength),
				Code:    "MIN_LENGTH_VIOLATION",
			})
		}
		if prop.MaxLength != nil && length > *prop.MaxLength {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be at most %d characters", *prop.MaxLength),
				Code:    "MAX_LENGTH_VIOLATION",
			})
		}

		if prop.Pattern != nil {
			matched, err := regexp.MatchString(*prop.Pattern, strVal)
			if err != nil || !matched {
				errors = append(errors, ValidationError{
					Field:   fieldName,
					Message: fmt.Sprintf("value must match pattern %s", *prop.Pattern),
					Code:    "PATTERN_MISMATCH",
				})
			}
		}

		if len(prop.Enum) > 0 {
			found := false
			for _, enumVal := range prop.Enum {
				if strVal == enumVal {
					found = true
					break
				}
			}
			if !found {
				errors = append(errors, ValidationError{
					Field:   fieldName,
					Message: fmt.Sprintf("value must be one of %v", prop.Enum),
					Code:    "INVALID_ENUM_VALUE",
				})
			}
		}
	}

	// Number range validation
	if numVal, ok := toFloat(value); ok {
		if prop.Minimum != nil && numVal < *prop.Minimum {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be >= %g", *prop.Minimum),
				Code:    "MINIMUM_VIOLATION",
			})
		}
		if prop.Maximum != nil && numVal > *prop.Maximum {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("value must be <= %g", *prop.Maximum),
				Code:    "MAXIMUM_VIOLATION",
			})
		}
	}

	// Array validation
	if arrVal, ok := value.([]interface{}); ok {
		if prop.MinItems != nil && len(arrVal) < *prop.MinItems {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("array must contain at least %d items", *prop.MinItems),
				Code:    "MIN_ITEMS_VIOLATION",
			})
		}
		if prop.Items != nil {
			for i, item := range arrVal {
				errors = append(errors, validateField(fmt.Sprintf("%s[%d]", fieldName, i), item, *prop.Items)...)
			}
		}
	}

	// Nested object validation
	if objVal, ok := value.(map[string]interface{}); ok && prop.Properties != nil {
		errors = append(errors, validateObject(fieldName, objVal, prop.Properties, prop.Required, true)...)
	}

	return errors
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func validateType(value interface{}, expectedType string) error {
	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %s", jsonTypeName(value))
		}
	case "number":
		if _, ok := toFloat(value); !ok {
			return fmt.Errorf("expected number, got %s", jsonTypeName(value))
		}
	case "integer":
		// encoding/json decodes every number as float64.
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("expected integer, got %s", jsonTypeName(value))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %s", jsonTypeName(value))
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("expected object, got %s", jsonTypeName(value))
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("expected array, got %s", jsonTypeName(value))
		}
	case "null":
		if value != nil {
			return fmt.Errorf("expected null, got %s", jsonTypeName(value))
		}
	}
	return nil
}

func jsonTypeName(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		if f, ok := toFloat(v); ok {
			if f == math.Trunc(f) {
				return "integer"
			}
			return "number"
		}
		return fmt.Sprintf("%T", value)
	}
}

// FieldInfo describes one leaf or container field of a schema.
type FieldInfo struct {
	Path        string
	Type        string
	Required    bool
	Description string
}

// Fields flattens the schema into paths like "current_medications[].name",
// sorted by path.
func (s JSONSchema) Fields() []FieldInfo {
	var out []FieldInfo
	collectFields(&out, "", s.Properties, s.Required)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func collectFields(out *[]FieldInfo, prefix string, props map[string]Property, required []string) {
	req := make(map[string]bool, len(required))
	for _, r := range required {
		req[r] = true
	}
	for name, prop := range props {
		path := joinPath(prefix, name)
		typ := prop.Type
		if prop.Type == "array" && prop.Items != nil {
			typ = "array of " + prop.Items.Type
		}
		*out = append(*out, FieldInfo{Path: path, Type: typ, Required: req[name], Description: prop.Description})

		switch {
		case prop.Type == "object" && prop.Properties != nil:
			collectFields(out, path, prop.Properties, prop.Required)
		case prop.Type == "array" && prop.Items != nil && prop.Items.Properties != nil:
			collectFields(out, path+"[]", prop.Items.Properties, prop.Items.Required)
		}
	}
}

// GetSchemaFromJSON parses JSON schema from string
func GetSchemaFromJSON(schemaJSON string) (JSONSchema, error) {
	var schema JSONSchema
	err := json.Unmarshal([]byte(schemaJSON), &schema)
	return schema, err
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// GetErrorsForField returns errors for a specific field
func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var fieldErrors []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") || strings.HasPrefix(err.Field, field+"[") {
			fieldErrors = append(fieldErrors, err)
		}
	}
	return fieldErrors
}

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	emailPattern := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailPattern.MatchString(email)
}
