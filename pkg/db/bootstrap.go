package db

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultEntryID is the integration entry created on first run.
const DefaultEntryID = "default"

// Default listen address stored for a new entry.
const (
	defaultAPIHost = "0.0.0.0"
	defaultAPIPort = 8080
)

// NeedsBootstrap reports whether no entry exists yet.
func (db *DB) NeedsBootstrap(ctx context.Context) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// Bootstrap creates the default entry and its listen address on first run.
// With demo set the entry is seeded with sample devices and a link.
// It does nothing once an entry exists.
func (db *DB) Bootstrap(ctx context.Context, demo bool) error {
	needs, err := db.NeedsBootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to check entries: %w", err)
	}
	if !needs {
		return nil
	}

	entry := &Entry{ID: DefaultEntryID, Name: "Default", Timezone: detectTimezone(), IsActive: true}
	if err := db.Entries().Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to create default entry: %w", err)
	}
	if err := db.APIServers().Put(ctx, &APIServer{EntryID: entry.ID, Host: defaultAPIHost, Port: defaultAPIPort}); err != nil {
		return err
	}

	if !demo {
		return nil
	}
	return db.SeedDemo(ctx, entry.ID)
}

// detectTimezone returns the IANA name of the host timezone, or UTC.
func detectTimezone() string {
	candidates := []string{os.Getenv("TZ")}
	if data, err := os.ReadFile("/etc/timezone"); err == nil {
		candidates = append(candidates, strings.TrimSpace(string(data)))
	}
	if link, err := os.Readlink("/etc/localtime"); err == nil {
		if _, name, ok := strings.Cut(link, "zoneinfo/"); ok {
			candidates = append(candidates, name)
		}
	}
	for _, name := range candidates {
		name = strings.TrimPrefix(name, ":")
		if name == "" || name == "Local" {
			continue
		}
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}
	return "UTC"
}
