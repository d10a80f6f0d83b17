package db

import (
	"context"
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 2

// Schema SQL for version 1: entries, devices and channel paramsets
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER PRIMARY KEY,
    applied_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Integration entries (one per installation / interface host)
CREATE TABLE IF NOT EXISTS entries (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    timezone    TEXT NOT NULL DEFAULT 'UTC',
    is_active   INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

-- API server config
CREATE TABLE IF NOT EXISTS api_servers (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id    TEXT NOT NULL UNIQUE REFERENCES entries(id) ON DELETE CASCADE,
    host        TEXT NOT NULL DEFAULT '0.0.0.0',
    port        INTEGER NOT NULL DEFAULT 8080,
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Devices
CREATE TABLE IF NOT EXISTS devices (
    entry_id       TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
    address        TEXT NOT NULL,
    interface_id   TEXT NOT NULL DEFAULT '',
    name           TEXT NOT NULL,
    model          TEXT NOT NULL DEFAULT '',
    type           TEXT NOT NULL DEFAULT '',
    firmware       TEXT NOT NULL DEFAULT '',
    unreachable    INTEGER NOT NULL DEFAULT 0,
    low_battery    INTEGER NOT NULL DEFAULT 0,
    config_pending INTEGER NOT NULL DEFAULT 0,
    rssi           INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (entry_id, address)
);

-- Channels
CREATE TABLE IF NOT EXISTS channels (
    entry_id       TEXT NOT NULL,
    address        TEXT NOT NULL,
    device_address TEXT NOT NULL,
    idx            INTEGER NOT NULL,
    type           TEXT NOT NULL DEFAULT '',
    paramset_keys  TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (entry_id, address),
    FOREIGN KEY (entry_id, device_address) REFERENCES devices(entry_id, address) ON DELETE CASCADE
);

-- Paramset descriptions: ordered sections of parameter descriptions
CREATE TABLE IF NOT EXISTS paramset_descriptions (
    entry_id        TEXT NOT NULL,
    channel_address TEXT NOT NULL,
    paramset_key    TEXT NOT NULL,
    sections        TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (entry_id, channel_address, paramset_key),
    FOREIGN KEY (entry_id, channel_address) REFERENCES channels(entry_id, address) ON DELETE CASCADE
);

-- Saved parameter values
CREATE TABLE IF NOT EXISTS paramset_values (
    entry_id        TEXT NOT NULL,
    channel_address TEXT NOT NULL,
    paramset_key    TEXT NOT NULL,
    parameter       TEXT NOT NULL,
    value           TEXT NOT NULL,
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (entry_id, channel_address, paramset_key, parameter),
    FOREIGN KEY (entry_id, channel_address) REFERENCES channels(entry_id, address) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_entries_active ON entries(is_active);
CREATE INDEX IF NOT EXISTS idx_channels_device ON channels(entry_id, device_address);
`

// Schema SQL for version 2: links and change history
const schemaV2 = `
-- Direct links between a sender and a receiver channel
CREATE TABLE IF NOT EXISTS links (
    entry_id         TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
    sender_address   TEXT NOT NULL,
    receiver_address TEXT NOT NULL,
    name             TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    profiles         TEXT NOT NULL DEFAULT '[]',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (entry_id, sender_address, receiver_address)
);

-- Link parameter values, stored per endpoint
CREATE TABLE IF NOT EXISTS link_values (
    entry_id        TEXT NOT NULL,
    channel_address TEXT NOT NULL,
    peer_address    TEXT NOT NULL,
    parameter       TEXT NOT NULL,
    value           TEXT NOT NULL,
    PRIMARY KEY (entry_id, channel_address, peer_address, parameter)
);

-- Audit trail of completed saves
CREATE TABLE IF NOT EXISTS change_history (
    id              TEXT PRIMARY KEY,
    entry_id        TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
    timestamp       TEXT NOT NULL,
    device_address  TEXT NOT NULL,
    device_name     TEXT NOT NULL DEFAULT '',
    channel_address TEXT NOT NULL,
    paramset_key    TEXT NOT NULL,
    changes         TEXT NOT NULL DEFAULT '{}',
    source          TEXT NOT NULL DEFAULT 'manual'
);

CREATE INDEX IF NOT EXISTS idx_links_receiver ON links(entry_id, receiver_address);
CREATE INDEX IF NOT EXISTS idx_history_entry ON change_history(entry_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_history_channel ON change_history(entry_id, channel_address);
`

// Migrate runs database migrations to bring the schema up to date.
func (db *DB) Migrate(ctx context.Context) error {
	version, err := db.getSchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		return nil // Already up to date
	}

	migrations := []string{schemaV1, schemaV2}
	for v := version + 1; v <= currentSchemaVersion; v++ {
		if err := db.applySchema(ctx, v, migrations[v-1]); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", v, err)
		}
	}

	return nil
}

// getSchemaVersion returns the current schema version, or 0 if no schema exists.
func (db *DB) getSchemaVersion(ctx context.Context) (int, error) {
	// Check if schema_version table exists
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&count)
	if err != nil {
		return 0, err
	}

	if count == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// applySchema executes one migration and records its version.
func (db *DB) applySchema(ctx context.Context, version int, ddl string) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}

		return nil
	})
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return db.getSchemaVersion(ctx)
}
