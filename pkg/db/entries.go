package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrEntryNotFound = errors.New("entry not found")

// Entry is an integration entry, i.e. one installation whose devices the
// panel configures.
type Entry struct {
	ID        string
	Name      string
	Timezone  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryStore provides entry CRUD operations.
type EntryStore interface {
	Get(ctx context.Context, id string) (*Entry, error)
	GetActive(ctx context.Context) (*Entry, error)
	List(ctx context.Context) ([]*Entry, error)
	Create(ctx context.Context, e *Entry) error
	Update(ctx context.Context, e *Entry) error
	SetActive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Entries returns an EntryStore for this database.
func (db *DB) Entries() EntryStore {
	return &entryStore{db: db}
}

type entryStore struct {
	db *DB
}

const entryColumns = `id, name, timezone, is_active, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (*Entry, error) {
	e := &Entry{}
	var createdAt, updatedAt string
	if err := row.Scan(&e.ID, &e.Name, &e.Timezone, &e.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	e.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return e, nil
}

func (s *entryStore) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (s *entryStore) GetActive(ctx context.Context) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE is_active = 1 LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (s *entryStore) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *entryStore) Create(ctx context.Context, e *Entry) error {
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, name, timezone, is_active)
		VALUES (?, ?, ?, ?)
	`, e.ID, e.Name, e.Timezone, e.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

func (s *entryStore) Update(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE entries SET name = ?, timezone = ?, is_active = ?, updated_at = datetime('now')
		WHERE id = ?
	`, e.Name, e.Timezone, e.IsActive, e.ID)
	return err
}

func (s *entryStore) SetActive(ctx context.Context, id string) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		// Deactivate all entries
		if _, err := tx.ExecContext(ctx, `UPDATE entries SET is_active = 0`); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `UPDATE entries SET is_active = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrEntryNotFound
		}
		return nil
	})
}

func (s *entryStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEntryNotFound
	}
	return nil
}
