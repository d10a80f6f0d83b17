package paramset

import "time"

// Paramset keys
const (
	KeyMaster = "MASTER" // persisted configuration
	KeyValues = "VALUES" // live / maintenance values
	KeyLink   = "LINK"   // peering configuration
)

// ParameterType is the declared value type of a parameter.
type ParameterType string

const (
	TypeBoolean ParameterType = "boolean"
	TypeInteger ParameterType = "integer"
	TypeFloat   ParameterType = "float"
	TypeEnum    ParameterType = "enum"
	TypeString  ParameterType = "string"
	TypeAction  ParameterType = "action"
)

// Widget is the kind of control a parameter is edited with.
type Widget string

const (
	WidgetToggle   Widget = "toggle"
	WidgetSlider   Widget = "slider"
	WidgetNumber   Widget = "number"
	WidgetDropdown Widget = "dropdown"
	WidgetRadio    Widget = "radio"
	WidgetText     Widget = "text"
	WidgetButton   Widget = "button"
	WidgetReadOnly Widget = "readonly"
)

// Keypress groups used by link paramsets
const (
	KeypressShort = "short"
	KeypressLong  = "long"
)

// Parameter is a single editable device setting as described by the backend.
// It is immutable once fetched and superseded by the next schema fetch.
type Parameter struct {
	ID            string        `json:"id" yaml:"id"`
	Label         string        `json:"label" yaml:"label"`
	Type          ParameterType `json:"type" yaml:"type"`
	Widget        Widget        `json:"widget" yaml:"widget"`
	Min           *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Step          *float64      `json:"step,omitempty" yaml:"step,omitempty"`
	Unit          string        `json:"unit,omitempty" yaml:"unit,omitempty"`
	Options       []string      `json:"options,omitempty" yaml:"options,omitempty"` // enum labels, indexed by value
	Default       any           `json:"default,omitempty" yaml:"default,omitempty"` // nil when undefined
	CurrentValue  any           `json:"current_value" yaml:"current_value"`
	Writable      bool          `json:"writable" yaml:"writable"`
	TimePairID    string        `json:"time_pair_id,omitempty" yaml:"time_pair_id,omitempty"`
	KeypressGroup string        `json:"keypress_group,omitempty" yaml:"keypress_group,omitempty"`
	Percent       bool          `json:"percent,omitempty" yaml:"percent,omitempty"`

	// Staged is set when CurrentValue comes from the open edit session
	// rather than the device; SavedValue then holds the device value.
	Staged     bool `json:"staged,omitempty" yaml:"-"`
	SavedValue any  `json:"saved_value,omitempty" yaml:"-"`
}

// HasDefault reports whether the parameter declares a default value.
func (p *Parameter) HasDefault() bool {
	return p.Default != nil
}

// Section is an ordered group of parameters.
type Section struct {
	ID         string      `json:"id" yaml:"id"`
	Title      string      `json:"title" yaml:"title"`
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
}

// FormSchema describes the editable parameters of one channel paramset.
type FormSchema struct {
	EntryID            string    `json:"entry_id"`
	InterfaceID        string    `json:"interface_id,omitempty"`
	ChannelAddress     string    `json:"channel_address"`
	ChannelType        string    `json:"channel_type,omitempty"`
	ParamsetKey        string    `json:"paramset_key"`
	Sections           []Section `json:"sections"`
	TotalParameters    int       `json:"total_parameters"`
	WritableParameters int       `json:"writable_parameters"`
	SessionDirty       bool      `json:"session_dirty,omitempty"`
}

// Parameter looks up a parameter by id.
func (s *FormSchema) Parameter(id string) (*Parameter, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Sections {
		for j := range s.Sections[i].Parameters {
			if s.Sections[i].Parameters[j].ID == id {
				return &s.Sections[i].Parameters[j], true
			}
		}
	}
	return nil, false
}

// Parameters returns all parameters in section order.
func (s *FormSchema) Parameters() []Parameter {
	if s == nil {
		return nil
	}
	var out []Parameter
	for _, sec := range s.Sections {
		out = append(out, sec.Parameters...)
	}
	return out
}

// Count recomputes the summary counts from the sections.
func (s *FormSchema) Count() {
	s.TotalParameters = 0
	s.WritableParameters = 0
	for _, sec := range s.Sections {
		for _, p := range sec.Parameters {
			s.TotalParameters++
			if p.Writable {
				s.WritableParameters++
			}
		}
	}
}

// ValidationErrors maps parameter ids to human readable messages.
type ValidationErrors map[string]string

// ChangeSource tags where a saved change came from.
type ChangeSource string

const (
	SourceManual ChangeSource = "manual"
	SourceImport ChangeSource = "import"
	SourceCopy   ChangeSource = "copy"
)

// ValueChange is an old/new pair of a saved parameter.
type ValueChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// HistoryEntry records one completed save. Entries are server-owned.
type HistoryEntry struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	EntryID        string                 `json:"entry_id"`
	DeviceAddress  string                 `json:"device_address"`
	DeviceName     string                 `json:"device_name"`
	ChannelAddress string                 `json:"channel_address"`
	ParamsetKey    string                 `json:"paramset_key"`
	Changes        map[string]ValueChange `json:"changes"`
	Source         ChangeSource           `json:"source"`
}

// Link is a directed peering between a sender and a receiver channel.
type Link struct {
	SenderAddress   string `json:"sender_address"`
	ReceiverAddress string `json:"receiver_address"`
	SenderName      string `json:"sender_name,omitempty"`
	ReceiverName    string `json:"receiver_name,omitempty"`
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	Direction       string `json:"direction,omitempty"` // outgoing or incoming, relative to the queried device
}

// LinkProfile is a named preset for a link's receiver paramset.
type LinkProfile struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Fixed       map[string]any `json:"fixed,omitempty"`
	Defaults    map[string]any `json:"defaults,omitempty"`
}

// Values returns the profile's target values, fixed values winning over defaults.
func (lp *LinkProfile) Values() map[string]any {
	out := make(map[string]any, len(lp.Fixed)+len(lp.Defaults))
	for k, v := range lp.Defaults {
		out[k] = v
	}
	for k, v := range lp.Fixed {
		out[k] = v
	}
	return out
}

// LinkFormSchema is the form schema of one endpoint of a link.
type LinkFormSchema struct {
	FormSchema
	PeerAddress string        `json:"peer_address"`
	Profiles    []LinkProfile `json:"profiles,omitempty"`
}

// Profile looks up a link profile by id.
func (s *LinkFormSchema) Profile(id string) (*LinkProfile, bool) {
	for i := range s.Profiles {
		if s.Profiles[i].ID == id {
			return &s.Profiles[i], true
		}
	}
	return nil, false
}

// LinkableChannel is a channel that can be peered with a given channel.
type LinkableChannel struct {
	Address     string `json:"address"`
	DeviceName  string `json:"device_name"`
	ChannelType string `json:"channel_type"`
	Role        string `json:"role"` // sender or receiver
}

// StagedValues returns the values held by the edit session but not yet
// saved, as reflected in the schema.
func (s *FormSchema) StagedValues() map[string]any {
	out := make(map[string]any)
	for _, p := range s.Parameters() {
		if p.Staged {
			out[p.ID] = p.CurrentValue
		}
	}
	return out
}

// KeypressGroups splits link parameters for presentation. Grouping has no
// effect on dirtiness or saving.
type KeypressGroups struct {
	Short  []Parameter
	Long   []Parameter
	Common []Parameter
}

// GroupByKeypress groups the schema's parameters by keypress group.
func GroupByKeypress(s *FormSchema) KeypressGroups {
	var g KeypressGroups
	for _, p := range s.Parameters() {
		switch p.KeypressGroup {
		case KeypressShort:
			g.Short = append(g.Short, p)
		case KeypressLong:
			g.Long = append(g.Long, p)
		default:
			g.Common = append(g.Common, p)
		}
	}
	return g
}
