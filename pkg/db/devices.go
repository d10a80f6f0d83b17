package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/urmzd/homai-panel/pkg/device"
)

// DeviceStore persists devices and their channels.
type DeviceStore interface {
	List(ctx context.Context, entryID string) ([]*device.Device, error)
	Get(ctx context.Context, entryID, address string) (*device.Device, error)
	GetByChannel(ctx context.Context, entryID, channelAddress string) (*device.Device, error)
	Upsert(ctx context.Context, d *device.Device) error
	Delete(ctx context.Context, entryID, address string) error
}

// Devices returns a DeviceStore for this database.
func (db *DB) Devices() DeviceStore {
	return &deviceStore{db: db}
}

type deviceStore struct {
	db *DB
}

const deviceColumns = `entry_id, address, interface_id, name, model, type, firmware,
	unreachable, low_battery, config_pending, rssi`

func scanDevice(row interface{ Scan(...any) error }) (*device.Device, error) {
	d := &device.Device{}
	m := &d.Maintenance
	err := row.Scan(&d.EntryID, &d.Address, &d.InterfaceID, &d.Name, &d.Model, &d.Type, &d.Firmware,
		&m.Unreachable, &m.LowBattery, &m.ConfigPending, &m.RSSI)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *deviceStore) List(ctx context.Context, entryID string) ([]*device.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE entry_id = ? ORDER BY name, address
	`, entryID)
	if err != nil {
		return nil, err
	}
	var devices []*device.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		devices = append(devices, d)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, err
	}

	for _, d := range devices {
		if d.Channels, err = s.channels(ctx, entryID, d.Address); err != nil {
			return nil, err
		}
	}
	return devices, nil
}

func (s *deviceStore) Get(ctx context.Context, entryID, address string) (*device.Device, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE entry_id = ? AND address = ?
	`, entryID, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, device.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.Channels, err = s.channels(ctx, entryID, address); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *deviceStore) GetByChannel(ctx context.Context, entryID, channelAddress string) (*device.Device, error) {
	var address string
	err := s.db.QueryRowContext(ctx, `
		SELECT device_address FROM channels WHERE entry_id = ? AND address = ?
	`, entryID, channelAddress).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, device.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, entryID, address)
}

func (s *deviceStore) channels(ctx context.Context, entryID, deviceAddress string) ([]device.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, idx, type, paramset_keys FROM channels
		WHERE entry_id = ? AND device_address = ? ORDER BY idx
	`, entryID, deviceAddress)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var channels []device.Channel
	for rows.Next() {
		var ch device.Channel
		var keys string
		if err := rows.Scan(&ch.Address, &ch.Index, &ch.Type, &keys); err != nil {
			return nil, err
		}
		if err := decodeJSON(keys, &ch.ParamsetKeys); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// Upsert writes the device and replaces its channel list.
func (s *deviceStore) Upsert(ctx context.Context, d *device.Device) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		m := d.Maintenance
		_, err := tx.ExecContext(ctx, `
			INSERT INTO devices (entry_id, address, interface_id, name, model, type, firmware,
				unreachable, low_battery, config_pending, rssi)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entry_id, address) DO UPDATE SET
				interface_id = excluded.interface_id, name = excluded.name, model = excluded.model,
				type = excluded.type, firmware = excluded.firmware, unreachable = excluded.unreachable,
				low_battery = excluded.low_battery, config_pending = excluded.config_pending,
				rssi = excluded.rssi, updated_at = datetime('now')
		`, d.EntryID, d.Address, d.InterfaceID, d.Name, d.Model, d.Type, d.Firmware,
			m.Unreachable, m.LowBattery, m.ConfigPending, m.RSSI)
		if err != nil {
			return fmt.Errorf("failed to upsert device %s: %w", d.Address, err)
		}

		for _, ch := range d.Channels {
			keys, err := encodeJSON(ch.ParamsetKeys)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO channels (entry_id, address, device_address, idx, type, paramset_keys)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(entry_id, address) DO UPDATE SET
					idx = excluded.idx, type = excluded.type, paramset_keys = excluded.paramset_keys
			`, d.EntryID, ch.Address, d.Address, ch.Index, ch.Type, keys)
			if err != nil {
				return fmt.Errorf("failed to upsert channel %s: %w", ch.Address, err)
			}
		}
		return nil
	})
}

func (s *deviceStore) Delete(ctx context.Context, entryID, address string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE entry_id = ? AND address = ?`, entryID, address)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return device.ErrNotFound
	}
	return nil
}
