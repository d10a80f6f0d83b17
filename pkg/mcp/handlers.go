package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/form"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

func (s *Server) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.client.ListDevices(ctx, s.cfg.EntryID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list devices: %s", err)), nil
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for i := range devices {
		infos = append(infos, DeviceToInfo(&devices[i]))
	}

	out := ListDevicesOutput{
		Devices: infos,
		Count:   len(infos),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- channel editor ---

func (s *Server) handleOpenEditor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.channelRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e, err := s.openEditor(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open editor: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(formOutput(e.ctrl, e.toasts.drain()))), nil
}

func (s *Server) handleGetForm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, errResult := s.requireEditor(request)
	if errResult != nil {
		return errResult, nil
	}
	return mcp.NewToolResultText(formatJSON(formOutput(e.ctrl, e.toasts.drain()))), nil
}

func (s *Server) handleSetParameter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.channelRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := requiredString(request, "parameter")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := requiredString(request, "value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	e, err := s.openEditor(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open editor: %s", err)), nil
	}

	p, ok := e.ctrl.Snapshot().Schema.Parameter(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown parameter %q", id)), nil
	}
	value, err := form.Parse(p, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := e.ctrl.SetValue(ctx, id, value); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set parameter: %s", err)), nil
	}
	// report the session's view of the edit
	e.ctrl.Wait()

	return mcp.NewToolResultText(formatJSON(formOutput(e.ctrl, e.toasts.drain()))), nil
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, errResult := s.requireEditor(request)
	if errResult != nil {
		return errResult, nil
	}
	if err := e.ctrl.Undo(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to undo: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(formOutput(e.ctrl, e.toasts.drain()))), nil
}

func (s *Server) handleRedo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, errResult := s.requireEditor(request)
	if errResult != nil {
		return errResult, nil
	}
	if err := e.ctrl.Redo(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to redo: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(formOutput(e.ctrl, e.toasts.drain()))), nil
}

func (s *Server) handleResetToDefaults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, errResult := s.requireEditor(request)
	if errResult != nil {
		return errResult, nil
	}
	n := e.ctrl.ResetToDefaults()
	messages := append(e.toasts.drain(), fmt.Sprintf("Staged %d default value(s)", n))
	return mcp.NewToolResultText(formatJSON(formOutput(e.ctrl, messages))), nil
}

func (s *Server) handleSave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, errResult := s.requireEditor(request)
	if errResult != nil {
		return errResult, nil
	}

	snap := e.ctrl.Snapshot()
	ctx, asked := withConfirmation(ctx, boolArg(request, "confirm"))
	res, err := e.ctrl.Save(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save: %s", err)), nil
	}

	if res.Outcome == editor.SaveCancelled {
		return mcp.NewToolResultText(formatJSON(previewOutput(asked, paramset.Summary(snap.Schema, snap.ChangeSet())))), nil
	}

	out := SaveOutput{
		Outcome:        res.Outcome.String(),
		ChangesApplied: res.ChangesApplied,
		Messages:       e.toasts.drain(),
	}
	if len(res.ValidationErrors) > 0 {
		out.ValidationErrors = map[string]paramset.ValidationErrors{e.ctrl.Ref().ChannelAddress: res.ValidationErrors}
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleDiscard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, errResult := s.requireEditor(request)
	if errResult != nil {
		return errResult, nil
	}
	if err := e.ctrl.Discard(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to discard: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(formOutput(e.ctrl, e.toasts.drain()))), nil
}

func (s *Server) handleCloseEditor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.channelRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, ok := s.lookupEditor(ref)
	if !ok {
		return mcp.NewToolResultText(formatJSON(ResultOutput{Success: true, Message: "No editor open for " + ref.ChannelAddress})), nil
	}

	ctx, _ = withConfirmation(ctx, boolArg(request, "force"))
	if !e.ctrl.Close(ctx) {
		return mcp.NewToolResultError("editor has unsaved changes; save, discard or pass force=true"), nil
	}
	s.forgetEditor(ref, e)

	out := ResultOutput{
		Success:  true,
		Message:  fmt.Sprintf("Editor for %s %s closed", ref.ChannelAddress, ref.ParamsetKey),
		Messages: e.toasts.drain(),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- history ---

func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := rpc.HistoryParams{
		EntryID:        s.cfg.EntryID,
		ChannelAddress: optionalString(request, "channel_address", ""),
		Limit:          intArg(request, "limit", 0),
	}

	res, err := s.client.GetChangeHistory(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get history: %s", err)), nil
	}

	out := HistoryOutput{
		Entries: res.Entries,
		Total:   res.Total,
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleClearHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !boolArg(request, "confirm") {
		return mcp.NewToolResultError("clearing the history cannot be undone; pass confirm=true"), nil
	}

	res, err := s.client.ClearChangeHistory(ctx, s.cfg.EntryID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear history: %s", err)), nil
	}

	out := ResultOutput{
		Success: res.Success,
		Message: fmt.Sprintf("Cleared %d history entries", res.Cleared),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- export / import ---

func (s *Server) handleExportParamset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.channelRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.client.ExportParamset(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to export paramset: %s", err)), nil
	}

	out := ExportOutput{
		ChannelAddress: ref.ChannelAddress,
		ParamsetKey:    ref.ParamsetKey,
		Document:       doc,
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleImportParamset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.channelRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := requiredString(request, "json_data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// an open editor rebases its pending edits onto the imported values
	if e, ok := s.lookupEditor(ref); ok {
		verrs, err := e.ctrl.Import(ctx, data)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to import paramset: %s", err)), nil
		}
		out := ImportOutput{
			Success:          len(verrs) == 0,
			ValidationErrors: verrs,
			Messages:         e.toasts.drain(),
		}
		return mcp.NewToolResultText(formatJSON(out)), nil
	}

	res, err := s.client.ImportParamset(ctx, ref, data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to import paramset: %s", err)), nil
	}

	out := ImportOutput{
		Success:          res.Success,
		ValidationErrors: res.ValidationErrors,
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- links ---

func (s *Server) handleListLinks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requiredString(request, "device_address")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	links, err := s.client.ListDeviceLinks(ctx, rpc.DeviceLinksParams{
		EntryID:       s.cfg.EntryID,
		InterfaceID:   s.cfg.InterfaceID,
		DeviceAddress: address,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list links: %s", err)), nil
	}

	out := ListLinksOutput{
		Links: links,
		Count: len(links),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleOpenLinkEditor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.linkRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	l, err := s.openLinkEditor(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open link editor: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(linkFormOutput(l.ctrl, l.toasts.drain()))), nil
}

func (s *Server) handleSetLinkParameter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.linkRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sideName, err := requiredString(request, "side")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	side := editor.Receiver
	switch sideName {
	case editor.Receiver.String():
	case editor.Sender.String():
		side = editor.Sender
	default:
		return mcp.NewToolResultError(fmt.Sprintf("side must be receiver or sender, got %q", sideName)), nil
	}
	id, err := requiredString(request, "parameter")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := requiredString(request, "value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	l, err := s.openLinkEditor(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open link editor: %s", err)), nil
	}

	snap := l.ctrl.Snapshot(side)
	p, ok := snap.Schema.Parameter(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown %s parameter %q", side, id)), nil
	}
	value, err := form.Parse(p, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := l.ctrl.SetValue(side, id, value); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set parameter: %s", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(linkFormOutput(l.ctrl, l.toasts.drain()))), nil
}

func (s *Server) handleSelectLinkProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.linkRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	profile, err := requiredString(request, "profile")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	l, err := s.openLinkEditor(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open link editor: %s", err)), nil
	}
	n, err := l.ctrl.SelectProfile(profile)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to select profile: %s", err)), nil
	}

	messages := append(l.toasts.drain(), fmt.Sprintf("Profile %q staged %d value(s)", profile, n))
	return mcp.NewToolResultText(formatJSON(linkFormOutput(l.ctrl, messages))), nil
}

func (s *Server) handleSaveLink(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.linkRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, ok := s.lookupLinkEditor(ref)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no link editor open for %s -> %s; call open_link_editor first", ref.PeerAddress, ref.ChannelAddress)), nil
	}

	var lines []string
	for _, side := range editor.Sides {
		snap := l.ctrl.Snapshot(side)
		if snap.Schema == nil {
			continue
		}
		for _, line := range paramset.Summary(&snap.Schema.FormSchema, snap.ChangeSet()) {
			lines = append(lines, side.String()+" "+line)
		}
	}

	ctx, asked := withConfirmation(ctx, boolArg(request, "confirm"))
	res, err := l.ctrl.Save(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save link: %s", err)), nil
	}
	if res.Outcome == editor.SaveCancelled {
		return mcp.NewToolResultText(formatJSON(previewOutput(asked, lines))), nil
	}

	out := SaveOutput{
		Outcome:  res.Outcome.String(),
		Messages: l.toasts.drain(),
	}
	for _, side := range res.Saved {
		out.Saved = append(out.Saved, side.String())
	}
	for _, side := range res.Failed {
		out.Failed = append(out.Failed, side.String())
	}
	for side, verrs := range res.ValidationErrors {
		if out.ValidationErrors == nil {
			out.ValidationErrors = make(map[string]paramset.ValidationErrors)
		}
		out.ValidationErrors[side.String()] = verrs
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleCloseLinkEditor(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := s.linkRef(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, ok := s.lookupLinkEditor(ref)
	if !ok {
		return mcp.NewToolResultText(formatJSON(ResultOutput{Success: true, Message: "No link editor open"})), nil
	}

	ctx, _ = withConfirmation(ctx, boolArg(request, "force"))
	if !l.ctrl.Close(ctx) {
		return mcp.NewToolResultError("link editor has unsaved changes; save or pass force=true"), nil
	}
	s.forgetLinkEditor(ref)

	out := ResultOutput{
		Success: true,
		Message: fmt.Sprintf("Link editor for %s -> %s closed", ref.PeerAddress, ref.ChannelAddress),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

// --- helpers ---

func previewOutput(asked *confirmation, lines []string) SavePreviewOutput {
	out := SavePreviewOutput{
		Changes: lines,
		Message: "Nothing was saved. Call again with confirm=true to write these changes.",
	}
	if asked.asked != nil {
		out.Message = asked.asked.Body + "\n\n" + out.Message
	}
	return out
}

func (s *Server) channelRef(request mcp.CallToolRequest) (rpc.ChannelRef, error) {
	address, err := requiredString(request, "channel_address")
	if err != nil {
		return rpc.ChannelRef{}, err
	}
	key := optionalString(request, "paramset_key", paramset.KeyMaster)
	if key != paramset.KeyMaster && key != paramset.KeyValues {
		return rpc.ChannelRef{}, fmt.Errorf("paramset_key must be %s or %s", paramset.KeyMaster, paramset.KeyValues)
	}
	return s.cfg.Channel(address, key), nil
}

func (s *Server) linkRef(request mcp.CallToolRequest) (rpc.LinkRef, error) {
	receiver, err := requiredString(request, "receiver_address")
	if err != nil {
		return rpc.LinkRef{}, err
	}
	sender, err := requiredString(request, "sender_address")
	if err != nil {
		return rpc.LinkRef{}, err
	}
	return s.cfg.Link(receiver, sender), nil
}

func (s *Server) requireEditor(request mcp.CallToolRequest) (*channelEditor, *mcp.CallToolResult) {
	ref, err := s.channelRef(request)
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	e, ok := s.lookupEditor(ref)
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("no editor open for %s %s; call open_editor first", ref.ChannelAddress, ref.ParamsetKey))
	}
	return e, nil
}

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	args := request.GetArguments()
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("required parameter %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalString(request mcp.CallToolRequest, key, def string) string {
	if s, ok := request.GetArguments()[key].(string); ok && s != "" {
		return s
	}
	return def
}

func boolArg(request mcp.CallToolRequest, key string) bool {
	b, _ := request.GetArguments()[key].(bool)
	return b
}

func intArg(request mcp.CallToolRequest, key string, def int) int {
	if f, ok := request.GetArguments()[key].(float64); ok && f > 0 {
		return int(f)
	}
	return def
}

func formatJSON(v any) string {
	b, err := encodeJSON(v)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}

func encodeJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
