package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

const exportVersion = 1

// documentField keys validation errors that concern the import document
// as a whole rather than one parameter.
const documentField = "json_data"

// exportDocument is the portable form of a paramset.
type exportDocument struct {
	Version        int            `json:"version"`
	ExportedAt     time.Time      `json:"exported_at"`
	DeviceModel    string         `json:"device_model,omitempty"`
	ChannelAddress string         `json:"channel_address"`
	ChannelType    string         `json:"channel_type,omitempty"`
	ParamsetKey    string         `json:"paramset_key"`
	Values         map[string]any `json:"values"`
}

var exportDocumentSchema = json.RawMessage(`{
	"type": "object",
	"required": ["version", "paramset_key", "values"],
	"properties": {
		"version": {"type": "integer", "const": 1},
		"exported_at": {"type": "string"},
		"device_model": {"type": "string"},
		"channel_address": {"type": "string"},
		"channel_type": {"type": "string"},
		"paramset_key": {"type": "string", "minLength": 1},
		"values": {"type": "object"}
	}
}`)

// ExportParamset serializes the saved writable values of ref.
func (s *Service) ExportParamset(ctx context.Context, ref rpc.ChannelRef) (*rpc.ExportResult, error) {
	fs, d, err := s.savedSchema(ctx, ref)
	if err != nil {
		return nil, err
	}
	doc := exportDocument{
		Version:        exportVersion,
		ExportedAt:     time.Now().UTC(),
		DeviceModel:    d.Model,
		ChannelAddress: ref.ChannelAddress,
		ChannelType:    fs.ChannelType,
		ParamsetKey:    ref.ParamsetKey,
		Values:         make(map[string]any),
	}
	for _, p := range fs.Parameters() {
		if p.Writable && p.Type != paramset.TypeAction && p.CurrentValue != nil {
			doc.Values[p.ID] = p.CurrentValue
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return &rpc.ExportResult{JSONData: string(data)}, nil
}

// ImportParamset applies an exported document to ref. Values of
// parameters the target does not have, or cannot write, are skipped so a
// document can be copied between channels of the same type. The remaining
// values are validated and written together.
func (s *Service) ImportParamset(ctx context.Context, p rpc.ImportParamsetParams) (*rpc.ImportResult, error) {
	fs, d, err := s.savedSchema(ctx, p.ChannelRef)
	if err != nil {
		return nil, err
	}

	reject := func(format string, args ...any) (*rpc.ImportResult, error) {
		return &rpc.ImportResult{ValidationErrors: paramset.ValidationErrors{documentField: fmt.Sprintf(format, args...)}}, nil
	}

	var raw any
	if err := json.Unmarshal([]byte(p.JSONData), &raw); err != nil {
		return reject("invalid JSON: %v", err)
	}
	if err := s.validator.Validate(exportDocumentSchema, raw); err != nil {
		return reject("invalid export document: %v", err)
	}
	var doc exportDocument
	if err := json.Unmarshal([]byte(p.JSONData), &doc); err != nil {
		return reject("invalid export document: %v", err)
	}
	if doc.ParamsetKey != p.ParamsetKey {
		return reject("document holds paramset %s, not %s", doc.ParamsetKey, p.ParamsetKey)
	}

	values := make(map[string]any, len(doc.Values))
	skipped := 0
	for id, v := range doc.Values {
		param, ok := fs.Parameter(id)
		if !ok || !param.Writable || param.Type == paramset.TypeAction {
			skipped++
			continue
		}
		values[id] = v
	}
	if errs := s.validator.ValidateValues(fs.Parameters(), values); errs != nil {
		return &rpc.ImportResult{ValidationErrors: errs}, nil
	}

	source := paramset.SourceImport
	if doc.ChannelAddress != "" && doc.ChannelAddress != p.ChannelAddress {
		source = paramset.SourceCopy
	}
	if _, err := s.write(ctx, p.ChannelRef, fs, d, values, source); err != nil {
		return nil, err
	}
	log.Info().Str("channel", p.ChannelAddress).Int("imported", len(values)).Int("skipped", skipped).Msg("Paramset imported")
	return &rpc.ImportResult{Success: true}, nil
}
