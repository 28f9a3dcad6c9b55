// Package schema provides JSON Schema descriptors for tool inputs and
// structured model responses.
//
// Information Hiding:
// - Schema compilation and caching hidden
// - Reflection from Go types hidden
// - Validator error formatting hidden
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrViolation is returned when a payload does not conform to a schema.
var ErrViolation = errors.New("schema violation")

// Descriptor is a named, compiled JSON Schema.
type Descriptor struct {
	Name        string
	Description string

	document json.RawMessage
	compiled *jsonschema.Schema
}

// New compiles a schema document. The document must be a JSON object.
func New(name, description string, document json.RawMessage) (*Descriptor, error) {
	if name == "" {
		return nil, errors.New("schema name cannot be empty")
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", string(document))
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}

	return &Descriptor{
		Name:        name,
		Description: description,
		document:    append(json.RawMessage(nil), document...),
		compiled:    compiled,
	}, nil
}

// FromMap compiles a schema given as a decoded JSON object.
func FromMap(name, description string, document map[string]any) (*Descriptor, error) {
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("encode schema %q: %w", name, err)
	}
	return New(name, description, raw)
}

// For reflects a schema from the Go type T. Fields without `omitempty` are
// required; additional properties are rejected.
func For[T any](name, description string) (*Descriptor, error) {
	var zero T
	r := &invopop.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	reflected := r.Reflect(&zero)
	reflected.Version = ""
	reflected.ID = ""
	if description == "" {
		description = reflected.Description
	}

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("encode reflected schema %q: %w", name, err)
	}
	return New(name, description, raw)
}

// MustFor is like For but panics on error. Use it for package-level schemas
// built from static types.
func MustFor[T any](name, description string) *Descriptor {
	d, err := For[T](name, description)
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return d
}

// Document returns the raw schema document.
func (d *Descriptor) Document() json.RawMessage {
	return append(json.RawMessage(nil), d.document...)
}

// Parameters returns the schema as a map suitable for provider tool
// definitions. Meta keywords that providers reject are dropped.
func (d *Descriptor) Parameters() map[string]interface{} {
	var params map[string]interface{}
	if err := json.Unmarshal(d.document, &params); err != nil || params == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	delete(params, "$schema")
	delete(params, "$id")
	return params
}

// Validate checks raw JSON against the schema. An empty payload is treated
// as an empty object.
func (d *Descriptor) Validate(raw json.RawMessage) error {
	_, err := d.decode(raw)
	return err
}

func (d *Descriptor) decode(raw json.RawMessage) (interface{}, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		trimmed = "{}"
	}

	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, fmt.Errorf("%w: %s: payload is not valid JSON: %v", ErrViolation, d.Name, err)
	}

	if err := d.compiled.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrViolation, d.Name, describe(err))
	}
	return v, nil
}

// Decode validates raw against d and unmarshals it into T.
func Decode[T any](d *Descriptor, raw json.RawMessage) (T, error) {
	var out T
	if d != nil {
		if err := d.Validate(raw); err != nil {
			return out, err
		}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: decode: %v", ErrViolation, err)
	}
	return out, nil
}

// describe flattens a validation error into one line.
func describe(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}

	leaves := collectLeaves(verr)
	if len(leaves) == 0 {
		return verr.Message
	}
	return strings.Join(leaves, "; ")
}

func collectLeaves(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Message)}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, collectLeaves(c)...)
	}
	return out
}
