package db

import (
	"context"
	"fmt"

	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

// Receiver link action types
const (
	actionInactive = iota
	actionJumpToTarget
	actionToggle
	actionToggleInverse
)

func f64(v float64) *float64 { return &v }

func boolParam(id, label string, def bool, writable bool) paramset.Parameter {
	return paramset.Parameter{ID: id, Label: label, Type: paramset.TypeBoolean, Widget: paramset.WidgetToggle, Default: def, Writable: writable}
}

func floatParam(id, label string, lo, hi, step float64, unit string, def float64) paramset.Parameter {
	return paramset.Parameter{ID: id, Label: label, Type: paramset.TypeFloat, Widget: paramset.WidgetSlider,
		Min: f64(lo), Max: f64(hi), Step: f64(step), Unit: unit, Default: def, Writable: true}
}

func enumParam(id, label string, options []string, def int) paramset.Parameter {
	return paramset.Parameter{ID: id, Label: label, Type: paramset.TypeEnum, Widget: paramset.WidgetDropdown,
		Options: options, Default: def, Writable: true}
}

func withGroup(p paramset.Parameter, group string) paramset.Parameter {
	p.KeypressGroup = group
	return p
}

var linkActions = []string{"Inactive", "Jump to target", "Toggle", "Toggle inverse"}

func maintenanceValues() []paramset.Section {
	rssi := paramset.Parameter{ID: "RSSI_DEVICE", Label: "Signal strength", Type: paramset.TypeInteger, Widget: paramset.WidgetReadOnly, Unit: "dBm"}
	return []paramset.Section{{ID: "status", Title: "Status", Parameters: []paramset.Parameter{
		boolParam("UNREACH", "Unreachable", false, false),
		boolParam("LOWBAT", "Low battery", false, false),
		boolParam("CONFIG_PENDING", "Configuration pending", false, false),
		rssi,
	}}}
}

func maintenanceMaster() []paramset.Section {
	return []paramset.Section{{ID: "radio", Title: "Radio", Parameters: []paramset.Parameter{
		boolParam("BURST_RX", "Wake on burst", false, true),
		boolParam("LOCAL_RESET_DISABLE", "Disable local reset", false, true),
	}}}
}

func thermostatMaster() []paramset.Section {
	startHour := paramset.Parameter{ID: "ECO_START_HOUR", Label: "Eco start (hour)", Type: paramset.TypeInteger, Widget: paramset.WidgetNumber,
		Min: f64(0), Max: f64(23), Step: f64(1), Default: 22, Writable: true, TimePairID: "ECO_START"}
	startMinute := paramset.Parameter{ID: "ECO_START_MINUTE", Label: "Eco start (minute)", Type: paramset.TypeInteger, Widget: paramset.WidgetNumber,
		Min: f64(0), Max: f64(59), Step: f64(1), Default: 0, Writable: true, TimePairID: "ECO_START"}
	valve := floatParam("VALVE_MAXIMUM_POSITION", "Maximum valve position", 0, 1, 0.01, "", 1.0)
	valve.Percent = true
	return []paramset.Section{
		{ID: "temperature", Title: "Temperature", Parameters: []paramset.Parameter{
			floatParam("TEMPERATURE_OFFSET", "Temperature offset", -3.5, 3.5, 0.5, "°C", 0.0),
			floatParam("COMFORT_TEMPERATURE", "Comfort temperature", 5, 30, 0.5, "°C", 21.0),
			floatParam("ECO_TEMPERATURE", "Eco temperature", 5, 30, 0.5, "°C", 17.0),
			floatParam("WINDOW_OPEN_TEMPERATURE", "Window open temperature", 5, 30, 0.5, "°C", 12.0),
			startHour,
			startMinute,
		}},
		{ID: "valve", Title: "Valve", Parameters: []paramset.Parameter{
			enumParam("BOOST_TIME_PERIOD", "Boost duration", []string{"0 min", "5 min", "10 min", "15 min", "20 min", "25 min", "30 min"}, 3),
			valve,
			{ID: "VALVE_CALIBRATE", Label: "Calibrate valve", Type: paramset.TypeAction, Widget: paramset.WidgetButton, Writable: true},
		}},
		{ID: "display", Title: "Display", Parameters: []paramset.Parameter{
			boolParam("SHOW_WEEKDAY", "Show weekday", false, true),
			boolParam("BUTTON_LOCK", "Button lock", false, true),
			{ID: "ROOM_NAME", Label: "Room name", Type: paramset.TypeString, Widget: paramset.WidgetText, Writable: true},
		}},
	}
}

func switchMaster() []paramset.Section {
	return []paramset.Section{{ID: "behaviour", Title: "Behaviour", Parameters: []paramset.Parameter{
		enumParam("POWERUP_ACTION", "State after power loss", []string{"Off", "On"}, 0),
		floatParam("STATUSINFO_MINDELAY", "Status report delay", 0.5, 15, 0.5, "s", 2.0),
	}}}
}

func switchLink() []paramset.Section {
	return []paramset.Section{{ID: "link", Title: "Link", Parameters: []paramset.Parameter{
		withGroup(enumParam("SHORT_ACTION_TYPE", "Action", linkActions, actionJumpToTarget), paramset.KeypressShort),
		withGroup(floatParam("SHORT_ON_TIME", "On time", 0, 111600, 0.1, "s", 0.0), paramset.KeypressShort),
		withGroup(floatParam("SHORT_OFF_TIME", "Off time", 0, 111600, 0.1, "s", 0.0), paramset.KeypressShort),
		withGroup(enumParam("LONG_ACTION_TYPE", "Action", linkActions, actionJumpToTarget), paramset.KeypressLong),
		withGroup(floatParam("LONG_ON_TIME", "On time", 0, 111600, 0.1, "s", 0.0), paramset.KeypressLong),
		withGroup(boolParam("LONG_MULTIEXECUTE", "Repeat while held", true, true), paramset.KeypressLong),
		{ID: "UI_HINT", Label: "Name", Type: paramset.TypeString, Widget: paramset.WidgetText, Writable: true},
	}}}
}

func keyMaster() []paramset.Section {
	return []paramset.Section{{ID: "timing", Title: "Timing", Parameters: []paramset.Parameter{
		floatParam("DBL_PRESS_TIME", "Double press time", 0, 1.5, 0.1, "s", 0.4),
		floatParam("LONG_PRESS_TIME", "Long press time", 0.3, 1.8, 0.1, "s", 0.4),
	}}}
}

func keyLink() []paramset.Section {
	return []paramset.Section{{ID: "link", Title: "Link", Parameters: []paramset.Parameter{
		boolParam("PEER_NEEDS_BURST", "Peer needs burst", false, true),
		boolParam("EXPECT_AES", "Expect AES", false, false),
	}}}
}

// DefaultLinkProfiles returns the profiles offered for links whose
// receiver has the given channel type.
func DefaultLinkProfiles(receiverType string) []paramset.LinkProfile {
	if receiverType != device.ChannelTypeSwitch {
		return nil
	}
	return []paramset.LinkProfile{
		{
			ID: "toggle", Name: "Toggle", Description: "Each press toggles the light",
			Fixed:    map[string]any{"SHORT_ACTION_TYPE": actionToggle, "LONG_ACTION_TYPE": actionToggle},
			Defaults: map[string]any{"SHORT_ON_TIME": 0.0},
		},
		{
			ID: "staircase", Name: "Staircase light", Description: "Switch on for a fixed time",
			Fixed:    map[string]any{"SHORT_ACTION_TYPE": actionJumpToTarget, "LONG_ACTION_TYPE": actionJumpToTarget},
			Defaults: map[string]any{"SHORT_ON_TIME": 120.0, "LONG_ON_TIME": 300.0},
		},
		{
			ID: "inactive", Name: "Inactive", Description: "Ignore the sender",
			Fixed: map[string]any{"SHORT_ACTION_TYPE": actionInactive, "LONG_ACTION_TYPE": actionInactive},
		},
	}
}

// LinkDescription returns the link paramset description of a channel type,
// and whether the type can take part in links.
func LinkDescription(channelType string) ([]paramset.Section, bool) {
	switch channelType {
	case device.ChannelTypeSwitch:
		return switchLink(), true
	case device.ChannelTypeKey:
		return keyLink(), true
	}
	return nil, false
}

// LinkRole returns "sender" or "receiver" for linkable channel types.
func LinkRole(channelType string) string {
	switch channelType {
	case device.ChannelTypeKey:
		return "sender"
	case device.ChannelTypeSwitch:
		return "receiver"
	}
	return ""
}

// Defaults returns the declared default of every parameter that has one.
func Defaults(sections []paramset.Section) map[string]any {
	out := make(map[string]any)
	for _, s := range sections {
		for _, p := range s.Parameters {
			if p.Default != nil {
				out[p.ID] = p.Default
			}
		}
	}
	return out
}

type demoChannel struct {
	device.Channel
	descriptions map[string][]paramset.Section
	overrides    map[string]map[string]any
}

type demoDevice struct {
	device.Device
	channels []demoChannel
}

func maintenanceChannel(addr string, rssi int) demoChannel {
	return demoChannel{
		Channel: device.Channel{Address: addr + ":0", Index: 0, Type: device.ChannelTypeMaintenance,
			ParamsetKeys: []string{paramset.KeyMaster, paramset.KeyValues}},
		descriptions: map[string][]paramset.Section{
			paramset.KeyMaster: maintenanceMaster(),
			paramset.KeyValues: maintenanceValues(),
		},
		overrides: map[string]map[string]any{paramset.KeyValues: {"RSSI_DEVICE": rssi}},
	}
}

func demoDevices(entryID string) []demoDevice {
	linkable := []string{paramset.KeyMaster, paramset.KeyLink}
	return []demoDevice{
		{
			Device: device.Device{Address: "OEQ0000001", EntryID: entryID, Name: "Living room thermostat",
				Model: "HM-CC-RT-DN", Type: device.DeviceTypeThermostat, Firmware: "1.5",
				Maintenance: device.Maintenance{RSSI: -61}},
			channels: []demoChannel{
				maintenanceChannel("OEQ0000001", -61),
				{
					Channel: device.Channel{Address: "OEQ0000001:1", Index: 1, Type: device.ChannelTypeClimate,
						ParamsetKeys: []string{paramset.KeyMaster}},
					descriptions: map[string][]paramset.Section{paramset.KeyMaster: thermostatMaster()},
					overrides: map[string]map[string]any{paramset.KeyMaster: {
						"ROOM_NAME":         "Living room",
						"BOOST_TIME_PERIOD": 4,
					}},
				},
			},
		},
		{
			Device: device.Device{Address: "OEQ0000002", EntryID: entryID, Name: "Hall light switch",
				Model: "HmIP-BSM", Type: device.DeviceTypeSwitch, Firmware: "2.6.2",
				Maintenance: device.Maintenance{RSSI: -58}},
			channels: []demoChannel{
				maintenanceChannel("OEQ0000002", -58),
				{
					Channel: device.Channel{Address: "OEQ0000002:1", Index: 1, Type: device.ChannelTypeSwitch, ParamsetKeys: linkable},
					descriptions: map[string][]paramset.Section{
						paramset.KeyMaster: switchMaster(),
						paramset.KeyLink:   switchLink(),
					},
				},
			},
		},
		{
			Device: device.Device{Address: "OEQ0000003", EntryID: entryID, Name: "Hall wall button",
				Model: "HmIP-WRC2", Type: device.DeviceTypeRemote, Firmware: "1.4.8",
				Maintenance: device.Maintenance{RSSI: -72, LowBattery: true}},
			channels: []demoChannel{
				maintenanceChannel("OEQ0000003", -72),
				{
					Channel: device.Channel{Address: "OEQ0000003:1", Index: 1, Type: device.ChannelTypeKey, ParamsetKeys: linkable},
					descriptions: map[string][]paramset.Section{
						paramset.KeyMaster: keyMaster(),
						paramset.KeyLink:   keyLink(),
					},
				},
				{
					Channel: device.Channel{Address: "OEQ0000003:2", Index: 2, Type: device.ChannelTypeKey, ParamsetKeys: linkable},
					descriptions: map[string][]paramset.Section{
						paramset.KeyMaster: keyMaster(),
						paramset.KeyLink:   keyLink(),
					},
				},
			},
		},
	}
}

// SeedDemo stores a thermostat, a wall switch and a wall button linked to
// the switch, with default values.
func (db *DB) SeedDemo(ctx context.Context, entryID string) error {
	for _, dd := range demoDevices(entryID) {
		d := dd.Device
		for _, ch := range dd.channels {
			d.Channels = append(d.Channels, ch.Channel)
		}
		if err := db.Devices().Upsert(ctx, &d); err != nil {
			return err
		}
		for _, ch := range dd.channels {
			for key, sections := range ch.descriptions {
				if err := db.Paramsets().PutDescription(ctx, entryID, ch.Address, key, sections); err != nil {
					return err
				}
				if key == paramset.KeyLink {
					continue
				}
				values := Defaults(sections)
				for k, v := range ch.overrides[key] {
					values[k] = v
				}
				if err := db.Paramsets().PutValues(ctx, entryID, ch.Address, key, values); err != nil {
					return err
				}
			}
		}
	}

	link := &LinkRecord{
		Link: paramset.Link{
			SenderAddress:   "OEQ0000003:1",
			ReceiverAddress: "OEQ0000002:1",
			Name:            "Button toggles hall light",
		},
		EntryID:  entryID,
		Profiles: DefaultLinkProfiles(device.ChannelTypeSwitch),
	}
	if err := db.Links().Create(ctx, link); err != nil {
		return fmt.Errorf("failed to create demo link: %w", err)
	}
	if err := db.Links().PutValues(ctx, entryID, link.ReceiverAddress, link.SenderAddress, Defaults(switchLink())); err != nil {
		return err
	}
	return db.Links().PutValues(ctx, entryID, link.SenderAddress, link.ReceiverAddress, Defaults(keyLink()))
}
