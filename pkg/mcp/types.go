package mcp

import (
	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/form"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

// --- List Devices Tool ---

// ListDevicesOutput is the output for the list_devices tool
type ListDevicesOutput struct {
	Devices []DeviceInfo `json:"devices" jsonschema:"description=Devices of the configured entry"`
	Count   int          `json:"count" jsonschema:"description=Total number of devices"`
}

// DeviceInfo represents a device in tool outputs
type DeviceInfo struct {
	Address     string             `json:"address" jsonschema:"description=Device address"`
	Name        string             `json:"name" jsonschema:"description=User-friendly device name"`
	Model       string             `json:"model,omitempty" jsonschema:"description=Device model"`
	Type        string             `json:"type" jsonschema:"description=Device type (thermostat/switch/remote/sensor)"`
	Channels    []ChannelInfo      `json:"channels" jsonschema:"description=Channels and their paramset keys"`
	Maintenance device.Maintenance `json:"maintenance" jsonschema:"description=Reachability and battery state"`
}

// ChannelInfo represents a channel in tool outputs
type ChannelInfo struct {
	Address   string   `json:"address"`
	Type      string   `json:"type"`
	Paramsets []string `json:"paramsets"`
}

// DeviceToInfo converts a device to its tool representation
func DeviceToInfo(d *device.Device) DeviceInfo {
	info := DeviceInfo{
		Address:     d.Address,
		Name:        d.Name,
		Model:       d.Model,
		Type:        d.Type,
		Maintenance: d.Maintenance,
		Channels:    make([]ChannelInfo, 0, len(d.Channels)),
	}
	for _, ch := range d.Channels {
		info.Channels = append(info.Channels, ChannelInfo{
			Address:   ch.Address,
			Type:      ch.Type,
			Paramsets: ch.ParamsetKeys,
		})
	}
	return info
}

// --- Form Tools (open_editor, get_form, set_parameter, undo, redo, ...) ---

// FormOutput is the state of an open channel editor
type FormOutput struct {
	ChannelAddress   string                    `json:"channel_address"`
	ParamsetKey      string                    `json:"paramset_key"`
	State            string                    `json:"state" jsonschema:"description=Editor lifecycle state"`
	Dirty            bool                      `json:"dirty" jsonschema:"description=Whether there is anything to save"`
	SessionActive    bool                      `json:"session_active" jsonschema:"description=Whether edits are mirrored to a server session"`
	CanUndo          bool                      `json:"can_undo"`
	CanRedo          bool                      `json:"can_redo"`
	Pending          map[string]any            `json:"pending,omitempty" jsonschema:"description=Unsaved values by parameter id"`
	ValidationErrors paramset.ValidationErrors `json:"validation_errors,omitempty"`
	Sections         []SectionInfo             `json:"sections,omitempty"`
	Messages         []string                  `json:"messages,omitempty" jsonschema:"description=Notifications raised by the last operation"`
}

// SectionInfo is a rendered form section
type SectionInfo struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Controls []ControlInfo `json:"controls"`
}

// ControlInfo is a rendered form control
type ControlInfo struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Widget   string   `json:"widget"`
	Value    any      `json:"value"`
	Display  string   `json:"display"`
	Unit     string   `json:"unit,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Options  []string `json:"options,omitempty"`
	Group    string   `json:"keypress_group,omitempty"`
	Modified bool     `json:"modified,omitempty"`
	ReadOnly bool     `json:"read_only,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func sectionsOf(f *form.Form) []SectionInfo {
	out := make([]SectionInfo, 0, len(f.Sections))
	for _, s := range f.Sections {
		info := SectionInfo{ID: s.ID, Title: s.Title}
		for _, c := range s.Controls {
			p := c.Parameter
			info.Controls = append(info.Controls, ControlInfo{
				ID:       p.ID,
				Label:    p.Label,
				Type:     string(p.Type),
				Widget:   string(c.Widget),
				Value:    c.Value,
				Display:  c.Display,
				Unit:     p.Unit,
				Min:      p.Min,
				Max:      p.Max,
				Options:  p.Options,
				Group:    p.KeypressGroup,
				Modified: c.Modified,
				ReadOnly: c.Disabled,
				Error:    c.Error,
			})
		}
		out = append(out, info)
	}
	return out
}

func formOutput(c *editor.Controller, messages []string) FormOutput {
	snap := c.Snapshot()
	ref := c.Ref()
	out := FormOutput{
		ChannelAddress:   ref.ChannelAddress,
		ParamsetKey:      ref.ParamsetKey,
		State:            snap.State.String(),
		Dirty:            snap.Dirty,
		SessionActive:    snap.SessionActive,
		CanUndo:          snap.CanUndo,
		CanRedo:          snap.CanRedo,
		Pending:          snap.Changes,
		ValidationErrors: snap.ValidationErrors,
		Messages:         messages,
	}
	if snap.Schema != nil {
		out.Sections = sectionsOf(form.Render(snap.Schema, snap.ChangeSet(), snap.ValidationErrors, nil))
	}
	return out
}

// --- Save Tools ---

// SaveOutput is the output for the save and save_link tools
type SaveOutput struct {
	Outcome          string                               `json:"outcome" jsonschema:"description=applied/rejected/failed/skipped/cancelled"`
	ChangesApplied   int                                  `json:"changes_applied,omitempty"`
	Saved            []string                             `json:"saved,omitempty" jsonschema:"description=Link endpoints that were written"`
	Failed           []string                             `json:"failed,omitempty" jsonschema:"description=Link endpoints that were not written"`
	ValidationErrors map[string]paramset.ValidationErrors `json:"validation_errors,omitempty"`
	Messages         []string                             `json:"messages,omitempty"`
}

// SavePreviewOutput is returned by save tools called without confirm=true
type SavePreviewOutput struct {
	Confirmed bool     `json:"confirmed"`
	Changes   []string `json:"changes" jsonschema:"description=Summary lines of the pending changes"`
	Message   string   `json:"message"`
}

// --- Simple Results ---

// ResultOutput is a generic success/message output
type ResultOutput struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Messages []string `json:"messages,omitempty"`
}

// --- History Tools ---

// HistoryOutput is the output for the get_history tool
type HistoryOutput struct {
	Entries []paramset.HistoryEntry `json:"entries"`
	Total   int                     `json:"total"`
}

// --- Export Tool ---

// ExportOutput is the output for the export_paramset tool
type ExportOutput struct {
	ChannelAddress string `json:"channel_address"`
	ParamsetKey    string `json:"paramset_key"`
	Document       string `json:"document" jsonschema:"description=JSON document accepted by import_paramset"`
}

// ImportOutput is the output for the import_paramset tool
type ImportOutput struct {
	Success          bool                      `json:"success"`
	ValidationErrors paramset.ValidationErrors `json:"validation_errors,omitempty"`
	Messages         []string                  `json:"messages,omitempty"`
}

// --- Link Tools ---

// ListLinksOutput is the output for the list_links tool
type ListLinksOutput struct {
	Links []paramset.Link `json:"links"`
	Count int             `json:"count"`
}

// LinkFormOutput is the state of an open link editor
type LinkFormOutput struct {
	ReceiverAddress string         `json:"receiver_address"`
	SenderAddress   string         `json:"sender_address"`
	State           string         `json:"state"`
	Dirty           bool           `json:"dirty"`
	Profile         string         `json:"profile,omitempty" jsonschema:"description=Last selected link profile"`
	Profiles        []ProfileInfo  `json:"profiles,omitempty" jsonschema:"description=Profiles offered for the receiver"`
	Endpoints       []EndpointInfo `json:"endpoints"`
	Messages        []string       `json:"messages,omitempty"`
}

// ProfileInfo describes a link profile
type ProfileInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// EndpointInfo is one side of a link editor
type EndpointInfo struct {
	Side             string                    `json:"side" jsonschema:"description=receiver or sender"`
	ChannelAddress   string                    `json:"channel_address"`
	Pending          map[string]any            `json:"pending,omitempty"`
	ValidationErrors paramset.ValidationErrors `json:"validation_errors,omitempty"`
	Sections         []SectionInfo             `json:"sections,omitempty"`
}

func linkFormOutput(c *editor.LinkController, messages []string) LinkFormOutput {
	recv := c.Ref(editor.Receiver)
	out := LinkFormOutput{
		ReceiverAddress: recv.ChannelAddress,
		SenderAddress:   recv.PeerAddress,
		State:           c.State().String(),
		Dirty:           c.IsDirty(),
		Profile:         c.Profile(),
		Messages:        messages,
	}
	for _, side := range editor.Sides {
		snap := c.Snapshot(side)
		ep := EndpointInfo{
			Side:             side.String(),
			ChannelAddress:   snap.Ref.ChannelAddress,
			Pending:          snap.Changes,
			ValidationErrors: snap.ValidationErrors,
		}
		if snap.Schema != nil {
			ep.Sections = sectionsOf(form.Render(&snap.Schema.FormSchema, snap.ChangeSet(), snap.ValidationErrors, nil))
			if side == editor.Receiver {
				for _, p := range snap.Schema.Profiles {
					out.Profiles = append(out.Profiles, ProfileInfo{ID: p.ID, Name: p.Name, Description: p.Description})
				}
			}
		}
		out.Endpoints = append(out.Endpoints, ep)
	}
	return out
}
