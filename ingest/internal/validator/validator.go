// Package validator checks agent event payloads and normalizes submitted
// alerts.
package validator

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/netsentry/netsentry/common/models"
)

//go:embed schema.json
var eventSchema string

const schemaURL = "agent-event.json"

var ErrInvalidPayload = errors.New("invalid payload")

// requiredFields must be present in every agent event.
var requiredFields = []string{"src", "dst"}

// ValidationError lists every offending field of a rejected payload.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// EventValidator validates raw agent event bodies.
type EventValidator struct {
	schema *jsonschema.Schema
}

func NewEventValidator() (*EventValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, strings.NewReader(eventSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &EventValidator{schema: schema}, nil
}

// Validate checks body and decodes it. All violations are reported at once
// in a *ValidationError.
func (v *EventValidator) Validate(body []byte) (*models.Event, error) {
	instance, err := decode(body)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"body"}}
	}
	obj, ok := instance.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Fields: []string{"body"}}
	}

	var fields []string
	for _, f := range requiredFields {
		if _, present := obj[f]; !present {
			fields = append(fields, f)
		}
	}

	if err := v.schema.Validate(instance); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		fields = append(fields, violatedFields(verr)...)
	}

	if len(fields) > 0 {
		slices.Sort(fields)
		return nil, &ValidationError{Fields: slices.Compact(fields)}
	}

	// The schema accepts whole floats such as 40.0 as integers; rewrite them
	// so the typed decode agrees.
	for k, val := range obj {
		if n, ok := val.(json.Number); ok {
			if i, ok := wholeNumber(n); ok {
				obj[k] = i
			}
		}
	}
	normalized, err := json.Marshal(obj)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"body"}}
	}

	var w models.AgentEvent
	if err := json.Unmarshal(normalized, &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, &ValidationError{Fields: []string{typeErr.Field}}
		}
		return nil, &ValidationError{Fields: []string{"body"}}
	}
	return w.Event(), nil
}

// decode parses a single JSON document keeping numbers as json.Number, the
// form the schema validator expects.
func decode(body []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var instance interface{}
	if err := dec.Decode(&instance); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after document")
	}
	return instance, nil
}

func wholeNumber(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// violatedFields maps leaf schema errors to top-level property names.
func violatedFields(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		field := strings.TrimPrefix(err.InstanceLocation, "/")
		if i := strings.Index(field, "/"); i >= 0 {
			field = field[:i]
		}
		if field == "" {
			field = "body"
		}
		return []string{field}
	}
	var out []string
	for _, c := range err.Causes {
		out = append(out, violatedFields(c)...)
	}
	return out
}
