package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/urmzd/homai-panel/pkg/paramset"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrLinkExists   = errors.New("link already exists")
)

// LinkRecord is a stored link with its receiver profiles.
type LinkRecord struct {
	paramset.Link
	EntryID  string
	Profiles []paramset.LinkProfile
}

// LinkStore persists links and their per-endpoint values.
type LinkStore interface {
	// List returns the links with an endpoint on the given device, or all
	// links of the entry if deviceAddress is empty.
	List(ctx context.Context, entryID, deviceAddress string) ([]*LinkRecord, error)
	// Find returns the link between a and b in either direction.
	Find(ctx context.Context, entryID, a, b string) (*LinkRecord, error)
	Create(ctx context.Context, l *LinkRecord) error
	Delete(ctx context.Context, entryID, sender, receiver string) error
	Values(ctx context.Context, entryID, channel, peer string) (map[string]any, error)
	PutValues(ctx context.Context, entryID, channel, peer string, values map[string]any) error
}

// Links returns a LinkStore for this database.
func (db *DB) Links() LinkStore {
	return &linkStore{db: db}
}

type linkStore struct {
	db *DB
}

const linkColumns = `entry_id, sender_address, receiver_address, name, description, profiles`

func scanLink(row interface{ Scan(...any) error }) (*LinkRecord, error) {
	l := &LinkRecord{}
	var profiles string
	if err := row.Scan(&l.EntryID, &l.SenderAddress, &l.ReceiverAddress, &l.Name, &l.Description, &profiles); err != nil {
		return nil, err
	}
	if err := decodeJSON(profiles, &l.Profiles); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *linkStore) List(ctx context.Context, entryID, deviceAddress string) ([]*LinkRecord, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE entry_id = ?`
	args := []any{entryID}
	if deviceAddress != "" {
		prefix := deviceAddress + ":%"
		query += ` AND (sender_address LIKE ? OR receiver_address LIKE ? OR sender_address = ? OR receiver_address = ?)`
		args = append(args, prefix, prefix, deviceAddress, deviceAddress)
	}
	query += ` ORDER BY sender_address, receiver_address`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var links []*LinkRecord
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *linkStore) Find(ctx context.Context, entryID, a, b string) (*LinkRecord, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE entry_id = ? AND ((sender_address = ? AND receiver_address = ?) OR (sender_address = ? AND receiver_address = ?))
	`, entryID, a, b, b, a))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLinkNotFound
	}
	return l, err
}

func (s *linkStore) Create(ctx context.Context, l *LinkRecord) error {
	if _, err := s.Find(ctx, l.EntryID, l.SenderAddress, l.ReceiverAddress); err == nil {
		return ErrLinkExists
	}
	profiles, err := encodeJSON(l.Profiles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO links (`+linkColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, l.EntryID, l.SenderAddress, l.ReceiverAddress, l.Name, l.Description, profiles)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// Delete removes the link and the values of both endpoints.
func (s *linkStore) Delete(ctx context.Context, entryID, sender, receiver string) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM links WHERE entry_id = ? AND sender_address = ? AND receiver_address = ?
		`, entryID, sender, receiver)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrLinkNotFound
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM link_values WHERE entry_id = ?
			AND ((channel_address = ? AND peer_address = ?) OR (channel_address = ? AND peer_address = ?))
		`, entryID, sender, receiver, receiver, sender)
		return err
	})
}

func (s *linkStore) Values(ctx context.Context, entryID, channel, peer string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT parameter, value FROM link_values
		WHERE entry_id = ? AND channel_address = ? AND peer_address = ?
	`, entryID, channel, peer)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanValues(rows)
}

func (s *linkStore) PutValues(ctx context.Context, entryID, channel, peer string, values map[string]any) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		for param, v := range values {
			raw, err := encodeJSON(v)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO link_values (entry_id, channel_address, peer_address, parameter, value)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(entry_id, channel_address, peer_address, parameter) DO UPDATE SET value = excluded.value
			`, entryID, channel, peer, param, raw)
			if err != nil {
				return fmt.Errorf("failed to store link value %s: %w", param, err)
			}
		}
		return nil
	})
}
