package device

// Device is a physical device known to an integration entry.
type Device struct {
	Address     string      `json:"address"`      // Interface-unique address (e.g. VCU0000001)
	EntryID     string      `json:"entry_id"`     // Integration entry the device belongs to
	InterfaceID string      `json:"interface_id"` // Interface the device is reached through
	Name        string      `json:"name"`         // User-friendly name
	Model       string      `json:"model"`        // Device model
	Type        string      `json:"type"`         // Device type (thermostat, switch, ...)
	Firmware    string      `json:"firmware,omitempty"`
	Channels    []Channel   `json:"channels"`
	Maintenance Maintenance `json:"maintenance"`
}

// Channel is an addressable sub-unit of a device with its own paramsets.
type Channel struct {
	Address      string   `json:"address"` // <device address>:<index>
	Index        int      `json:"index"`
	Type         string   `json:"type"`
	ParamsetKeys []string `json:"paramset_keys"`
}

// Maintenance is the health summary reported by a device's maintenance channel.
type Maintenance struct {
	Unreachable   bool `json:"unreachable"`
	LowBattery    bool `json:"low_battery"`
	ConfigPending bool `json:"config_pending"`
	RSSI          int  `json:"rssi,omitempty"`
}

// Channel looks up a channel by address.
func (d *Device) Channel(address string) (*Channel, bool) {
	for i := range d.Channels {
		if d.Channels[i].Address == address {
			return &d.Channels[i], true
		}
	}
	return nil, false
}

// HasParamset reports whether the channel exposes the paramset key.
func (c *Channel) HasParamset(key string) bool {
	for _, k := range c.ParamsetKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Device type constants
const (
	DeviceTypeThermostat = "thermostat"
	DeviceTypeSwitch     = "switch"
	DeviceTypeRemote     = "remote"
	DeviceTypeSensor     = "sensor"
)

// Channel type constants
const (
	ChannelTypeMaintenance = "MAINTENANCE"
	ChannelTypeClimate     = "CLIMATECONTROL_RT_TRANSCEIVER"
	ChannelTypeSwitch      = "SWITCH_VIRTUAL_RECEIVER"
	ChannelTypeKey         = "KEY_TRANSCEIVER"
)
