package db

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoActiveEntry = errors.New("no active entry found")

// Config represents the complete runtime configuration loaded from the database.
type Config struct {
	Entry     *Entry
	APIServer *APIServer
}

// APIAddress returns the API server listen address.
func (c *Config) APIAddress() string {
	if c.APIServer == nil {
		return "0.0.0.0:8080"
	}
	return c.APIServer.Address()
}

// EntryID returns the active entry id.
func (c *Config) EntryID() string {
	if c.Entry == nil {
		return ""
	}
	return c.Entry.ID
}

// Timezone returns the entry timezone.
func (c *Config) Timezone() string {
	if c.Entry == nil {
		return "UTC"
	}
	return c.Entry.Timezone
}

// ActiveConfig loads the complete configuration for the active entry.
func (db *DB) ActiveConfig(ctx context.Context) (*Config, error) {
	entry, err := db.Entries().GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, ErrNoActiveEntry
		}
		return nil, fmt.Errorf("failed to get active entry: %w", err)
	}

	config := &Config{
		Entry: entry,
	}

	// Get API server config
	apiServer, err := db.APIServers().Get(ctx, entry.ID)
	if err != nil && !errors.Is(err, ErrAPIServerNotFound) {
		return nil, fmt.Errorf("failed to get API server config: %w", err)
	}
	config.APIServer = apiServer

	return config, nil
}
