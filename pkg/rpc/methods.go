package rpc

import (
	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

// Method names
const (
	MethodListDevices         = "list_devices"
	MethodGetFormSchema       = "get_form_schema"
	MethodGetParamset         = "get_paramset"
	MethodPutParamset         = "put_paramset"
	MethodSessionOpen         = "session_open"
	MethodSessionSet          = "session_set"
	MethodSessionUndo         = "session_undo"
	MethodSessionRedo         = "session_redo"
	MethodSessionSave         = "session_save"
	MethodSessionDiscard      = "session_discard"
	MethodExportParamset      = "export_paramset"
	MethodImportParamset      = "import_paramset"
	MethodGetChangeHistory    = "get_change_history"
	MethodClearChangeHistory  = "clear_change_history"
	MethodListDeviceLinks     = "list_device_links"
	MethodGetLinkFormSchema   = "get_link_form_schema"
	MethodGetLinkParamset     = "get_link_paramset"
	MethodPutLinkParamset     = "put_link_paramset"
	MethodAddLink             = "add_link"
	MethodRemoveLink          = "remove_link"
	MethodGetLinkableChannels = "get_linkable_channels"
)

// ChannelRef addresses one paramset of one channel.
type ChannelRef struct {
	EntryID        string `json:"entry_id"`
	InterfaceID    string `json:"interface_id,omitempty"`
	ChannelAddress string `json:"channel_address"`
	ParamsetKey    string `json:"paramset_key"`
}

// Key identifies the ref for maps and logs.
func (r ChannelRef) Key() string {
	return r.EntryID + "/" + r.InterfaceID + "/" + r.ChannelAddress + "/" + r.ParamsetKey
}

// LinkRef addresses the paramset one endpoint of a link holds about its peer.
type LinkRef struct {
	EntryID        string `json:"entry_id"`
	InterfaceID    string `json:"interface_id,omitempty"`
	ChannelAddress string `json:"channel_address"`
	PeerAddress    string `json:"peer_address"`
}

// Swap returns the ref of the opposite endpoint.
func (r LinkRef) Swap() LinkRef {
	r.ChannelAddress, r.PeerAddress = r.PeerAddress, r.ChannelAddress
	return r
}

// --- Requests ---

type ListDevicesParams struct {
	EntryID string `json:"entry_id"`
}

type PutParamsetParams struct {
	ChannelRef
	Values   map[string]any `json:"values"`
	Validate bool           `json:"validate"`
}

type SessionSetParams struct {
	ChannelRef
	Parameter string `json:"parameter"`
	Value     any    `json:"value"`
}

type ImportParamsetParams struct {
	ChannelRef
	JSONData string `json:"json_data"`
}

type HistoryParams struct {
	EntryID        string `json:"entry_id"`
	ChannelAddress string `json:"channel_address,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type DeviceLinksParams struct {
	EntryID       string `json:"entry_id"`
	InterfaceID   string `json:"interface_id,omitempty"`
	DeviceAddress string `json:"device_address"`
}

type PutLinkParamsetParams struct {
	LinkRef
	Values map[string]any `json:"values"`
}

type AddLinkParams struct {
	EntryID         string `json:"entry_id"`
	InterfaceID     string `json:"interface_id,omitempty"`
	SenderAddress   string `json:"sender_address"`
	ReceiverAddress string `json:"receiver_address"`
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
}

type RemoveLinkParams struct {
	EntryID         string `json:"entry_id"`
	InterfaceID     string `json:"interface_id,omitempty"`
	SenderAddress   string `json:"sender_address"`
	ReceiverAddress string `json:"receiver_address"`
}

type LinkableChannelsParams struct {
	EntryID        string `json:"entry_id"`
	InterfaceID    string `json:"interface_id,omitempty"`
	ChannelAddress string `json:"channel_address"`
	Role           string `json:"role,omitempty"` // role of channel_address: sender or receiver
}

// --- Results ---

type ListDevicesResult struct {
	Devices []device.Device `json:"devices"`
}

type ParamsetResult struct {
	Values map[string]any `json:"values"`
}

type PutParamsetResult struct {
	Success          bool                      `json:"success"`
	Validated        bool                      `json:"validated"`
	ValidationErrors paramset.ValidationErrors `json:"validation_errors,omitempty"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

type SessionState struct {
	IsDirty          bool                      `json:"is_dirty"`
	CanUndo          bool                      `json:"can_undo"`
	CanRedo          bool                      `json:"can_redo"`
	ValidationErrors paramset.ValidationErrors `json:"validation_errors,omitempty"`
}

type SessionStepResult struct {
	Performed bool `json:"performed"`
	IsDirty   bool `json:"is_dirty"`
	CanUndo   bool `json:"can_undo"`
	CanRedo   bool `json:"can_redo"`
}

type SessionSaveResult struct {
	Success          bool                      `json:"success"`
	Validated        bool                      `json:"validated"`
	ValidationErrors paramset.ValidationErrors `json:"validation_errors,omitempty"`
	ChangesApplied   int                       `json:"changes_applied"`
}

type ExportResult struct {
	JSONData string `json:"json_data"`
}

type ImportResult struct {
	Success          bool                      `json:"success"`
	ValidationErrors paramset.ValidationErrors `json:"validation_errors,omitempty"`
}

type HistoryResult struct {
	Entries []paramset.HistoryEntry `json:"entries"`
	Total   int                     `json:"total"`
}

type ClearHistoryResult struct {
	Success bool `json:"success"`
	Cleared int  `json:"cleared"`
}

type LinksResult struct {
	Links []paramset.Link `json:"links"`
}

type LinkableChannelsResult struct {
	Channels []paramset.LinkableChannel `json:"channels"`
}
