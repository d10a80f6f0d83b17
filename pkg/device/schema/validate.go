package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

// Validator validates parameter values against JSON Schema documents.
// It caches compiled schemas keyed by their raw bytes.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates a new Validator with an empty cache.
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// Validate validates payload against the given JSON Schema document.
// Returns nil if valid, or an error describing the validation failures.
func (v *Validator) Validate(schemaDoc json.RawMessage, payload any) error {
	if len(schemaDoc) == 0 || string(schemaDoc) == "{}" || string(schemaDoc) == "null" {
		return nil // No schema = no validation
	}

	compiled, err := v.compile(schemaDoc)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	inst, err := normalize(payload)
	if err != nil {
		return err
	}
	return compiled.Validate(inst)
}

// ValidateValues checks values against the parameter descriptions and
// returns one message per offending parameter. Unknown and read-only
// parameters are rejected; momentary actions accept any value.
func (v *Validator) ValidateValues(params []paramset.Parameter, values map[string]any) paramset.ValidationErrors {
	byID := make(map[string]*paramset.Parameter, len(params))
	for i := range params {
		byID[params[i].ID] = &params[i]
	}

	errs := make(paramset.ValidationErrors)
	for id, value := range values {
		p, ok := byID[id]
		switch {
		case !ok:
			errs[id] = "unknown parameter"
			continue
		case !p.Writable:
			errs[id] = "parameter is read-only"
			continue
		case p.Type == paramset.TypeAction:
			continue
		}
		if err := v.Validate(ParameterSchema(p), value); err != nil {
			errs[id] = describe(err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ParameterSchema builds the JSON Schema of a single parameter value.
func ParameterSchema(p *paramset.Parameter) json.RawMessage {
	doc := map[string]any{}
	switch p.Type {
	case paramset.TypeBoolean, paramset.TypeAction:
		doc["type"] = "boolean"
	case paramset.TypeInteger:
		doc["type"] = "integer"
	case paramset.TypeFloat:
		doc["type"] = "number"
	case paramset.TypeEnum:
		doc["type"] = "integer"
		if len(p.Options) > 0 {
			doc["minimum"] = 0
			doc["maximum"] = len(p.Options) - 1
		}
	case paramset.TypeString:
		doc["type"] = "string"
	}
	if p.Type == paramset.TypeInteger || p.Type == paramset.TypeFloat {
		if p.Min != nil {
			doc["minimum"] = *p.Min
		}
		if p.Max != nil {
			doc["maximum"] = *p.Max
		}
	}
	raw, _ := json.Marshal(doc)
	return raw
}

// normalize converts a Go value into the representation the compiled
// schemas expect, e.g. ints become json.Number.
func normalize(payload any) (any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return inst, nil
}

// describe reduces a validation error to its innermost message.
func describe(err error) string {
	msg := strings.TrimSpace(err.Error())
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = msg[i+1:]
	}
	msg = strings.TrimPrefix(strings.TrimSpace(msg), "- ")
	if strings.HasPrefix(msg, "at ") {
		if j := strings.Index(msg, ": "); j >= 0 {
			msg = msg[j+2:]
		}
	}
	return msg
}

func (v *Validator) compile(schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaDoc)

	v.mu.RLock()
	if s, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return s, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := v.cache[key]; ok {
		return s, nil
	}

	schemaMap, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaMap); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}
