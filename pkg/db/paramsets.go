package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

// ParamsetStore persists paramset descriptions and saved values.
type ParamsetStore interface {
	// Description returns the ordered sections describing a paramset. The
	// parameters carry no current values.
	Description(ctx context.Context, entryID, channel, key string) ([]paramset.Section, error)
	PutDescription(ctx context.Context, entryID, channel, key string, sections []paramset.Section) error
	Values(ctx context.Context, entryID, channel, key string) (map[string]any, error)
	// PutValues upserts values in one transaction.
	PutValues(ctx context.Context, entryID, channel, key string, values map[string]any) error
}

// Paramsets returns a ParamsetStore for this database.
func (db *DB) Paramsets() ParamsetStore {
	return &paramsetStore{db: db}
}

type paramsetStore struct {
	db *DB
}

func (s *paramsetStore) Description(ctx context.Context, entryID, channel, key string) ([]paramset.Section, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT sections FROM paramset_descriptions
		WHERE entry_id = ? AND channel_address = ? AND paramset_key = ?
	`, entryID, channel, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, device.ErrParamsetNotFound
	}
	if err != nil {
		return nil, err
	}
	var sections []paramset.Section
	if err := decodeJSON(raw, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

func (s *paramsetStore) PutDescription(ctx context.Context, entryID, channel, key string, sections []paramset.Section) error {
	raw, err := encodeJSON(sections)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO paramset_descriptions (entry_id, channel_address, paramset_key, sections)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entry_id, channel_address, paramset_key) DO UPDATE SET sections = excluded.sections
	`, entryID, channel, key, raw)
	if err != nil {
		return fmt.Errorf("failed to store description of %s/%s: %w", channel, key, err)
	}
	return nil
}

func (s *paramsetStore) Values(ctx context.Context, entryID, channel, key string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parameter, value FROM paramset_values
		WHERE entry_id = ? AND channel_address = ? AND paramset_key = ?
	`, entryID, channel, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanValues(rows)
}

func (s *paramsetStore) PutValues(ctx context.Context, entryID, channel, key string, values map[string]any) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		for param, v := range values {
			raw, err := encodeJSON(v)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO paramset_values (entry_id, channel_address, paramset_key, parameter, value)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(entry_id, channel_address, paramset_key, parameter) DO UPDATE SET
					value = excluded.value, updated_at = datetime('now')
			`, entryID, channel, key, param, raw)
			if err != nil {
				return fmt.Errorf("failed to store %s on %s: %w", param, channel, err)
			}
		}
		return nil
	})
}

func scanValues(rows *sql.Rows) (map[string]any, error) {
	values := make(map[string]any)
	for rows.Next() {
		var param, raw string
		if err := rows.Scan(&param, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := decodeJSON(raw, &v); err != nil {
			return nil, err
		}
		values[param] = v
	}
	return values, rows.Err()
}
