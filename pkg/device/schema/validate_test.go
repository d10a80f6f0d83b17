package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/urmzd/homai-panel/pkg/paramset"
)

func exportDocSchema() json.RawMessage {
	return json.RawMessage(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["version", "values"],
		"properties": {
			"version": {"type": "integer", "minimum": 1},
			"paramset_key": {"type": "string", "enum": ["MASTER", "VALUES", "LINK"]},
			"values": {"type": "object"}
		}
	}`)
}

func ptr(f float64) *float64 { return &f }

func thermostatParams() []paramset.Parameter {
	return []paramset.Parameter{
		{ID: "TEMPERATURE_OFFSET", Type: paramset.TypeFloat, Min: ptr(-3.5), Max: ptr(3.5), Writable: true},
		{ID: "BOOST_TIME_PERIOD", Type: paramset.TypeEnum, Options: []string{"0", "5", "10"}, Writable: true},
		{ID: "SHOW_WEEKDAY", Type: paramset.TypeBoolean, Writable: true},
		{ID: "CYCLIC_INFO_MSG", Type: paramset.TypeInteger, Min: ptr(0), Max: ptr(255), Writable: true},
		{ID: "ROOM_NAME", Type: paramset.TypeString, Writable: true},
		{ID: "FIRMWARE", Type: paramset.TypeString},
		{ID: "CALIBRATE", Type: paramset.TypeAction, Writable: true},
	}
}

func TestValidate_ValidDocument(t *testing.T) {
	v := NewValidator()

	err := v.Validate(exportDocSchema(), map[string]any{
		"version":      1,
		"paramset_key": "MASTER",
		"values":       map[string]any{"ROOM_NAME": "Hall"},
	})
	if err != nil {
		t.Errorf("expected valid document, got: %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	v := NewValidator()

	err := v.Validate(exportDocSchema(), map[string]any{"version": 1})
	if err == nil {
		t.Error("expected validation error for missing values")
	}
}

func TestValidate_InvalidEnum(t *testing.T) {
	v := NewValidator()

	err := v.Validate(exportDocSchema(), map[string]any{
		"version":      1,
		"paramset_key": "BOGUS",
		"values":       map[string]any{},
	})
	if err == nil {
		t.Error("expected validation error for invalid paramset key")
	}
}

func TestValidate_EmptySchema(t *testing.T) {
	v := NewValidator()

	// Empty schema means no validation
	err := v.Validate(json.RawMessage(`{}`), map[string]any{
		"anything": "goes",
	})
	if err != nil {
		t.Errorf("empty schema should skip validation, got: %v", err)
	}
}

func TestValidate_NilSchema(t *testing.T) {
	v := NewValidator()

	err := v.Validate(nil, map[string]any{"anything": "goes"})
	if err != nil {
		t.Errorf("nil schema should skip validation, got: %v", err)
	}
}

func TestValidate_CachesSchema(t *testing.T) {
	v := NewValidator()
	p := &thermostatParams()[0]

	if err := v.Validate(ParameterSchema(p), 1.5); err != nil {
		t.Fatal(err)
	}
	if err := v.Validate(ParameterSchema(p), -2); err != nil {
		t.Fatal(err)
	}

	v.mu.RLock()
	cacheSize := len(v.cache)
	v.mu.RUnlock()
	if cacheSize != 1 {
		t.Errorf("expected 1 cached schema, got %d", cacheSize)
	}
}

func TestValidateValues_Valid(t *testing.T) {
	v := NewValidator()

	errs := v.ValidateValues(thermostatParams(), map[string]any{
		"TEMPERATURE_OFFSET": 1.5,
		"BOOST_TIME_PERIOD":  2,
		"SHOW_WEEKDAY":       true,
		"CYCLIC_INFO_MSG":    float64(10),
		"ROOM_NAME":          "Kitchen",
		"CALIBRATE":          true,
	})
	if errs != nil {
		t.Errorf("expected no errors, got: %v", errs)
	}
}

func TestValidateValues_PerParameterErrors(t *testing.T) {
	v := NewValidator()

	errs := v.ValidateValues(thermostatParams(), map[string]any{
		"TEMPERATURE_OFFSET": 4.0,
		"BOOST_TIME_PERIOD":  3,
		"SHOW_WEEKDAY":       "yes",
		"CYCLIC_INFO_MSG":    1.5,
		"ROOM_NAME":          "ok",
		"FIRMWARE":           "9.9",
		"NOPE":               1,
	})

	for _, id := range []string{"TEMPERATURE_OFFSET", "BOOST_TIME_PERIOD", "SHOW_WEEKDAY", "CYCLIC_INFO_MSG", "FIRMWARE", "NOPE"} {
		msg, ok := errs[id]
		if !ok {
			t.Errorf("expected error for %s", id)
			continue
		}
		if msg == "" || strings.Contains(msg, "\n") {
			t.Errorf("expected single-line message for %s, got %q", id, msg)
		}
	}
	if _, ok := errs["ROOM_NAME"]; ok {
		t.Error("ROOM_NAME should be valid")
	}
	if errs["FIRMWARE"] != "parameter is read-only" {
		t.Errorf("unexpected FIRMWARE message: %q", errs["FIRMWARE"])
	}
}

func TestDescribe(t *testing.T) {
	err := &stringError{"jsonschema validation failed with 'schema.json#'\n- at '': maximum: got 4, want 3.5"}
	if got := describe(err); got != "maximum: got 4, want 3.5" {
		t.Errorf("unexpected description: %q", got)
	}
}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }
