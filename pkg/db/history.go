package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

// HistoryStore persists the change history of completed saves.
type HistoryStore interface {
	Append(ctx context.Context, e *paramset.HistoryEntry) error
	// List returns the newest entries first, optionally filtered by
	// channel, together with the unlimited total.
	List(ctx context.Context, entryID, channel string, limit int) ([]paramset.HistoryEntry, int, error)
	Clear(ctx context.Context, entryID string) (int, error)
}

// History returns a HistoryStore for this database.
func (db *DB) History() HistoryStore {
	return &historyStore{db: db}
}

type historyStore struct {
	db *DB
}

func (s *historyStore) Append(ctx context.Context, e *paramset.HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Source == "" {
		e.Source = paramset.SourceManual
	}
	changes, err := encodeJSON(e.Changes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO change_history (id, entry_id, timestamp, device_address, device_name,
			channel_address, paramset_key, changes, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.EntryID, e.Timestamp.Format(time.RFC3339Nano), e.DeviceAddress, e.DeviceName,
		e.ChannelAddress, e.ParamsetKey, changes, string(e.Source))
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (s *historyStore) List(ctx context.Context, entryID, channel string, limit int) ([]paramset.HistoryEntry, int, error) {
	where := `WHERE entry_id = ?`
	args := []any{entryID}
	if channel != "" {
		where += ` AND channel_address = ?`
		args = append(args, channel)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_history `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, entry_id, timestamp, device_address, device_name, channel_address,
		paramset_key, changes, source FROM change_history ` + where + ` ORDER BY timestamp DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	entries := []paramset.HistoryEntry{}
	for rows.Next() {
		var e paramset.HistoryEntry
		var ts, changes, source string
		if err := rows.Scan(&e.ID, &e.EntryID, &ts, &e.DeviceAddress, &e.DeviceName, &e.ChannelAddress,
			&e.ParamsetKey, &changes, &source); err != nil {
			return nil, 0, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Source = paramset.ChangeSource(source)
		if err := decodeJSON(changes, &e.Changes); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *historyStore) Clear(ctx context.Context, entryID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM change_history WHERE entry_id = ?`, entryID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}
