package mcp

import "github.com/mark3labs/mcp-go/mcp"

func channelArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("channel_address",
			mcp.Required(),
			mcp.Description("Channel address, e.g. OEQ0000001:1"),
		),
		mcp.WithString("paramset_key",
			mcp.Description("Paramset to edit (default MASTER)"),
			mcp.Enum("MASTER", "VALUES"),
		),
	}
}

func linkArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("receiver_address",
			mcp.Required(),
			mcp.Description("Channel address of the link receiver (e.g. the switch actuator)"),
		),
		mcp.WithString("sender_address",
			mcp.Required(),
			mcp.Description("Channel address of the link sender (e.g. the wall button)"),
		),
	}
}

func tool(name, description string, opts ...[]mcp.ToolOption) mcp.Tool {
	all := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, o := range opts {
		all = append(all, o...)
	}
	return mcp.NewTool(name, all...)
}

func option(opts ...mcp.ToolOption) []mcp.ToolOption {
	return opts
}

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	// Devices
	s.mcpServer.AddTool(
		tool("list_devices", "List all devices of the configured entry with their channels and paramset keys"),
		s.handleListDevices,
	)

	// Channel editor lifecycle
	s.mcpServer.AddTool(
		tool("open_editor", "Open (or resume) an edit session for a channel paramset and return its form",
			channelArgs()),
		s.handleOpenEditor,
	)
	s.mcpServer.AddTool(
		tool("get_form", "Return the form of an open editor: every parameter with its value, pending edit and validation error",
			channelArgs()),
		s.handleGetForm,
	)
	s.mcpServer.AddTool(
		tool("set_parameter", "Stage a new value for a parameter. Nothing is written to the device until save.",
			channelArgs(),
			option(
				mcp.WithString("parameter",
					mcp.Required(),
					mcp.Description("Parameter id, e.g. TEMPERATURE_OFFSET"),
				),
				mcp.WithString("value",
					mcp.Required(),
					mcp.Description("New value as text: on/off for booleans, an option label or index for enums, percentages scaled by 100"),
				),
			)),
		s.handleSetParameter,
	)
	s.mcpServer.AddTool(
		tool("undo", "Revert the last edit of the session", channelArgs()),
		s.handleUndo,
	)
	s.mcpServer.AddTool(
		tool("redo", "Re-apply the last undone edit", channelArgs()),
		s.handleRedo,
	)
	s.mcpServer.AddTool(
		tool("reset_to_defaults", "Stage the declared default for every writable parameter that differs from it", channelArgs()),
		s.handleResetToDefaults,
	)
	s.mcpServer.AddTool(
		tool("save", "Write the pending edits to the device. Without confirm=true only a summary of the changes is returned.",
			channelArgs(),
			option(mcp.WithBoolean("confirm",
				mcp.Description("Set to true to actually save (default false)"),
			))),
		s.handleSave,
	)
	s.mcpServer.AddTool(
		tool("discard", "Drop all pending edits of an open editor", channelArgs()),
		s.handleDiscard,
	)
	s.mcpServer.AddTool(
		tool("close_editor", "Close an editor and discard its server session",
			channelArgs(),
			option(mcp.WithBoolean("force",
				mcp.Description("Close even if there are unsaved edits (default false)"),
			))),
		s.handleCloseEditor,
	)

	// History
	s.mcpServer.AddTool(
		tool("get_history", "List saved changes, newest first",
			option(
				mcp.WithString("channel_address",
					mcp.Description("Only changes of this channel"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of entries (default 50)"),
				),
			)),
		s.handleGetHistory,
	)
	s.mcpServer.AddTool(
		tool("clear_history", "Delete the change history of the configured entry",
			option(mcp.WithBoolean("confirm",
				mcp.Required(),
				mcp.Description("Must be true"),
			))),
		s.handleClearHistory,
	)

	// Export / import
	s.mcpServer.AddTool(
		tool("export_paramset", "Export the saved values of a channel paramset as a JSON document", channelArgs()),
		s.handleExportParamset,
	)
	s.mcpServer.AddTool(
		tool("import_paramset", "Write a previously exported JSON document to a channel paramset",
			channelArgs(),
			option(mcp.WithString("json_data",
				mcp.Required(),
				mcp.Description("Document returned by export_paramset"),
			))),
		s.handleImportParamset,
	)

	// Links
	s.mcpServer.AddTool(
		tool("list_links", "List the direct links of a device",
			option(mcp.WithString("device_address",
				mcp.Required(),
				mcp.Description("Device address, e.g. OEQ0000003"),
			))),
		s.handleListLinks,
	)
	s.mcpServer.AddTool(
		tool("open_link_editor", "Open an editor for both paramsets of a link and return their forms and profiles", linkArgs()),
		s.handleOpenLinkEditor,
	)
	s.mcpServer.AddTool(
		tool("set_link_parameter", "Stage a new value for a parameter of one link endpoint",
			linkArgs(),
			option(
				mcp.WithString("side",
					mcp.Required(),
					mcp.Description("Endpoint to edit"),
					mcp.Enum("receiver", "sender"),
				),
				mcp.WithString("parameter",
					mcp.Required(),
					mcp.Description("Parameter id, e.g. SHORT_ON_TIME"),
				),
				mcp.WithString("value",
					mcp.Required(),
					mcp.Description("New value as text"),
				),
			)),
		s.handleSetLinkParameter,
	)
	s.mcpServer.AddTool(
		tool("select_link_profile", "Stage the values of a receiver profile",
			linkArgs(),
			option(mcp.WithString("profile",
				mcp.Required(),
				mcp.Description("Profile id as listed by open_link_editor"),
			))),
		s.handleSelectLinkProfile,
	)
	s.mcpServer.AddTool(
		tool("save_link", "Write the pending edits of both link endpoints. Without confirm=true only a summary is returned.",
			linkArgs(),
			option(mcp.WithBoolean("confirm",
				mcp.Description("Set to true to actually save (default false)"),
			))),
		s.handleSaveLink,
	)
	s.mcpServer.AddTool(
		tool("close_link_editor", "Close a link editor",
			linkArgs(),
			option(mcp.WithBoolean("force",
				mcp.Description("Close even if there are unsaved edits (default false)"),
			))),
		s.handleCloseLinkEditor,
	)
}
