package rpc

import (
	"context"

	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

// Client is the typed wrapper over a Transport, one method per remote call.
type Client struct {
	transport Transport
}

// NewClient wraps t.
func NewClient(t Transport) *Client {
	return &Client{transport: t}
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// ListDevices enumerates the devices of an entry.
func (c *Client) ListDevices(ctx context.Context, entryID string) ([]device.Device, error) {
	var res ListDevicesResult
	if err := c.transport.Call(ctx, MethodListDevices, ListDevicesParams{EntryID: entryID}, &res); err != nil {
		return nil, err
	}
	return res.Devices, nil
}

// GetFormSchema fetches the editable schema of a channel paramset.
func (c *Client) GetFormSchema(ctx context.Context, ref ChannelRef) (*paramset.FormSchema, error) {
	var res paramset.FormSchema
	if err := c.transport.Call(ctx, MethodGetFormSchema, ref, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetParamset fetches the raw current values of a paramset.
func (c *Client) GetParamset(ctx context.Context, ref ChannelRef) (map[string]any, error) {
	var res ParamsetResult
	if err := c.transport.Call(ctx, MethodGetParamset, ref, &res); err != nil {
		return nil, err
	}
	return res.Values, nil
}

// PutParamset validates and writes values directly, bypassing any session.
func (c *Client) PutParamset(ctx context.Context, ref ChannelRef, values map[string]any) (*PutParamsetResult, error) {
	var res PutParamsetResult
	params := PutParamsetParams{ChannelRef: ref, Values: values, Validate: true}
	if err := c.transport.Call(ctx, MethodPutParamset, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionOpen begins a server-tracked edit session.
func (c *Client) SessionOpen(ctx context.Context, ref ChannelRef) (*SuccessResult, error) {
	var res SuccessResult
	if err := c.transport.Call(ctx, MethodSessionOpen, ref, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionSet stages one parameter edit in the server session.
func (c *Client) SessionSet(ctx context.Context, ref ChannelRef, parameter string, value any) (*SessionState, error) {
	var res SessionState
	params := SessionSetParams{ChannelRef: ref, Parameter: parameter, Value: value}
	if err := c.transport.Call(ctx, MethodSessionSet, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionUndo steps the session back one edit.
func (c *Client) SessionUndo(ctx context.Context, ref ChannelRef) (*SessionStepResult, error) {
	var res SessionStepResult
	if err := c.transport.Call(ctx, MethodSessionUndo, ref, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionRedo re-applies the last undone edit.
func (c *Client) SessionRedo(ctx context.Context, ref ChannelRef) (*SessionStepResult, error) {
	var res SessionStepResult
	if err := c.transport.Call(ctx, MethodSessionRedo, ref, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionSave validates, writes and logs every staged edit of the session.
func (c *Client) SessionSave(ctx context.Context, ref ChannelRef) (*SessionSaveResult, error) {
	var res SessionSaveResult
	if err := c.transport.Call(ctx, MethodSessionSave, ref, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionDiscard abandons the session's staged edits.
func (c *Client) SessionDiscard(ctx context.Context, ref ChannelRef) (*SuccessResult, error) {
	var res SuccessResult
	if err := c.transport.Call(ctx, MethodSessionDiscard, ref, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExportParamset serializes a paramset as portable JSON.
func (c *Client) ExportParamset(ctx context.Context, ref ChannelRef) (string, error) {
	var res ExportResult
	if err := c.transport.Call(ctx, MethodExportParamset, ref, &res); err != nil {
		return "", err
	}
	return res.JSONData, nil
}

// ImportParamset applies previously exported data to a paramset.
func (c *Client) ImportParamset(ctx context.Context, ref ChannelRef, jsonData string) (*ImportResult, error) {
	var res ImportResult
	params := ImportParamsetParams{ChannelRef: ref, JSONData: jsonData}
	if err := c.transport.Call(ctx, MethodImportParamset, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetChangeHistory reads the audit log, newest first.
func (c *Client) GetChangeHistory(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	var res HistoryResult
	if err := c.transport.Call(ctx, MethodGetChangeHistory, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ClearChangeHistory wipes the audit log of an entry.
func (c *Client) ClearChangeHistory(ctx context.Context, entryID string) (*ClearHistoryResult, error) {
	var res ClearHistoryResult
	if err := c.transport.Call(ctx, MethodClearChangeHistory, HistoryParams{EntryID: entryID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListDeviceLinks lists the links any channel of a device takes part in.
func (c *Client) ListDeviceLinks(ctx context.Context, params DeviceLinksParams) ([]paramset.Link, error) {
	var res LinksResult
	if err := c.transport.Call(ctx, MethodListDeviceLinks, params, &res); err != nil {
		return nil, err
	}
	return res.Links, nil
}

// GetLinkFormSchema fetches the schema of one endpoint's link paramset.
func (c *Client) GetLinkFormSchema(ctx context.Context, ref LinkRef) (*paramset.LinkFormSchema, error) {
	var res paramset.LinkFormSchema
	if err := c.transport.Call(ctx, MethodGetLinkFormSchema, ref, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetLinkParamset fetches the raw values of one endpoint's link paramset.
func (c *Client) GetLinkParamset(ctx context.Context, ref LinkRef) (map[string]any, error) {
	var res ParamsetResult
	if err := c.transport.Call(ctx, MethodGetLinkParamset, ref, &res); err != nil {
		return nil, err
	}
	return res.Values, nil
}

// PutLinkParamset validates and writes one endpoint's link paramset.
func (c *Client) PutLinkParamset(ctx context.Context, ref LinkRef, values map[string]any) (*PutParamsetResult, error) {
	var res PutParamsetResult
	if err := c.transport.Call(ctx, MethodPutLinkParamset, PutLinkParamsetParams{LinkRef: ref, Values: values}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AddLink creates a link between two channels.
func (c *Client) AddLink(ctx context.Context, params AddLinkParams) (*SuccessResult, error) {
	var res SuccessResult
	if err := c.transport.Call(ctx, MethodAddLink, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveLink deletes a link.
func (c *Client) RemoveLink(ctx context.Context, params RemoveLinkParams) (*SuccessResult, error) {
	var res SuccessResult
	if err := c.transport.Call(ctx, MethodRemoveLink, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetLinkableChannels lists channels that can be peered with a channel.
func (c *Client) GetLinkableChannels(ctx context.Context, params LinkableChannelsParams) ([]paramset.LinkableChannel, error) {
	var res LinkableChannelsResult
	if err := c.transport.Call(ctx, MethodGetLinkableChannels, params, &res); err != nil {
		return nil, err
	}
	return res.Channels, nil
}
