// Package extraction turns completion replies into typed, validated values.
package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/common/metrics"
	"treatment-review/internal/common/validation"
)

// ValidationError lists every way a reply failed to match its schema.
type ValidationError struct {
	Schema     string
	Violations []validation.ValidationError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%s reply failed validation: %s", e.Schema, strings.Join(msgs, "; "))
}

// ErrorCode implements errors.Coded.
func (e *ValidationError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeValidationFailed
}

// Fields returns the offending field paths in report order.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.Field
	}
	return out
}

var fenced = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)```")

// Payload isolates the JSON text of a reply: the trimmed reply when it is
// already valid JSON, else the body of the first fenced code block, else the
// trimmed reply.
func Payload(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}
	if m := fenced.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// Parse decodes reply into T after validating it against schema. It returns
// either a complete T or the zero value with an error, never a partial value.
func Parse[T any](reply string, name string, schema validation.JSONSchema) (T, error) {
	var zero T

	doc, err := decodeDocument(Payload(reply))
	if err != nil {
		return zero, fail(name, validation.ValidationError{Field: "$", Message: err.Error(), Code: "INVALID_JSON"})
	}

	result := validation.ValidateDocument(doc, schema)
	if !result.Valid {
		return zero, fail(name, result.Errors...)
	}

	// Round-trip through the generic document so integral floats such as 7.0
	// decode into int fields.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return zero, fail(name, validation.ValidationError{Field: "$", Message: err.Error(), Code: "INVALID_JSON"})
	}
	var out T
	if err := json.Unmarshal(normalized, &out); err != nil {
		field := "$"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field = typeErr.Field
		}
		return zero, fail(name, validation.ValidationError{Field: field, Message: err.Error(), Code: "INVALID_TYPE"})
	}
	return out, nil
}

func decodeDocument(payload string) (interface{}, error) {
	if payload == "" {
		return nil, errors.New("reply is empty")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("reply is not valid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("reply has trailing data after the JSON value")
	}
	return doc, nil
}

func fail(name string, violations ...validation.ValidationError) *ValidationError {
	metrics.ValidationFailures.WithLabelValues(name).Inc()
	return &ValidationError{Schema: name, Violations: violations}
}
