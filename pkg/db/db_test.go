package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

func openTestDB(t *testing.T, demo bool) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx))
	require.NoError(t, database.Bootstrap(ctx, demo))
	return database
}

func TestMigrateIsIdempotent(t *testing.T) {
	database := openTestDB(t, false)
	ctx := context.Background()

	require.NoError(t, database.Migrate(ctx))
	version, err := database.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

func TestBootstrapCreatesDefaultEntry(t *testing.T) {
	database := openTestDB(t, false)
	ctx := context.Background()

	cfg, err := database.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultEntryID, cfg.EntryID())
	assert.Equal(t, "0.0.0.0:8080", cfg.APIAddress())

	needs, err := database.NeedsBootstrap(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	// Second run is a no-op.
	require.NoError(t, database.Bootstrap(ctx, true))
	devices, err := database.Devices().List(ctx, DefaultEntryID)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestAPIServers(t *testing.T) {
	database := openTestDB(t, false)
	ctx := context.Background()
	store := database.APIServers()

	require.NoError(t, store.Put(ctx, &APIServer{EntryID: DefaultEntryID, Host: "::1", Port: 9090}))
	a, err := store.Get(ctx, DefaultEntryID)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:9090", a.Address())

	assert.Error(t, store.Put(ctx, &APIServer{EntryID: DefaultEntryID, Host: "::1", Port: 0}))
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrAPIServerNotFound)
}

func TestDetectTimezone(t *testing.T) {
	t.Setenv("TZ", "Europe/Berlin")
	assert.Equal(t, "Europe/Berlin", detectTimezone())
}

func TestEntries(t *testing.T) {
	database := openTestDB(t, false)
	ctx := context.Background()
	store := database.Entries()

	require.NoError(t, store.Create(ctx, &Entry{ID: "cabin", Name: "Cabin"}))
	e, err := store.Get(ctx, "cabin")
	require.NoError(t, err)
	assert.Equal(t, "UTC", e.Timezone)
	assert.False(t, e.IsActive)

	require.NoError(t, store.SetActive(ctx, "cabin"))
	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cabin", active.ID)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.ErrorIs(t, store.SetActive(ctx, "missing"), ErrEntryNotFound)
	require.NoError(t, store.Delete(ctx, "cabin"))
	_, err = store.Get(ctx, "cabin")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDemoDevices(t *testing.T) {
	database := openTestDB(t, true)
	ctx := context.Background()

	devices, err := database.Devices().List(ctx, DefaultEntryID)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	d, err := database.Devices().GetByChannel(ctx, DefaultEntryID, "OEQ0000001:1")
	require.NoError(t, err)
	assert.Equal(t, "Living room thermostat", d.Name)
	require.Len(t, d.Channels, 2)
	ch, ok := d.Channel("OEQ0000001:1")
	require.True(t, ok)
	assert.True(t, ch.HasParamset(paramset.KeyMaster))

	_, err = database.Devices().GetByChannel(ctx, DefaultEntryID, "OEQ9999999:1")
	assert.ErrorIs(t, err, device.ErrChannelNotFound)
}

func TestParamsets(t *testing.T) {
	database := openTestDB(t, true)
	ctx := context.Background()
	store := database.Paramsets()

	sections, err := store.Description(ctx, DefaultEntryID, "OEQ0000001:1", paramset.KeyMaster)
	require.NoError(t, err)
	schema := &paramset.FormSchema{Sections: sections}
	p, ok := schema.Parameter("TEMPERATURE_OFFSET")
	require.True(t, ok)
	assert.Equal(t, paramset.TypeFloat, p.Type)
	require.NotNil(t, p.Min)
	assert.Equal(t, -3.5, *p.Min)

	_, err = store.Description(ctx, DefaultEntryID, "OEQ0000001:1", paramset.KeyLink)
	assert.ErrorIs(t, err, device.ErrParamsetNotFound)

	values, err := store.Values(ctx, DefaultEntryID, "OEQ0000001:1", paramset.KeyMaster)
	require.NoError(t, err)
	assert.Equal(t, "Living room", values["ROOM_NAME"])
	assert.EqualValues(t, 4, values["BOOST_TIME_PERIOD"])

	require.NoError(t, store.PutValues(ctx, DefaultEntryID, "OEQ0000001:1", paramset.KeyMaster, map[string]any{
		"TEMPERATURE_OFFSET": 1.5,
	}))
	values, err = store.Values(ctx, DefaultEntryID, "OEQ0000001:1", paramset.KeyMaster)
	require.NoError(t, err)
	assert.Equal(t, 1.5, values["TEMPERATURE_OFFSET"])
	assert.Equal(t, "Living room", values["ROOM_NAME"])
}

func TestLinks(t *testing.T) {
	database := openTestDB(t, true)
	ctx := context.Background()
	store := database.Links()

	links, err := store.List(ctx, DefaultEntryID, "OEQ0000002")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "OEQ0000003:1", links[0].SenderAddress)
	assert.Len(t, links[0].Profiles, 3)

	// Either direction finds the link.
	l, err := store.Find(ctx, DefaultEntryID, "OEQ0000002:1", "OEQ0000003:1")
	require.NoError(t, err)
	assert.Equal(t, "OEQ0000002:1", l.ReceiverAddress)

	err = store.Create(ctx, &LinkRecord{
		Link:    paramset.Link{SenderAddress: "OEQ0000003:1", ReceiverAddress: "OEQ0000002:1"},
		EntryID: DefaultEntryID,
	})
	assert.ErrorIs(t, err, ErrLinkExists)

	values, err := store.Values(ctx, DefaultEntryID, "OEQ0000002:1", "OEQ0000003:1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, values["SHORT_ACTION_TYPE"])

	require.NoError(t, store.Delete(ctx, DefaultEntryID, "OEQ0000003:1", "OEQ0000002:1"))
	values, err = store.Values(ctx, DefaultEntryID, "OEQ0000002:1", "OEQ0000003:1")
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.ErrorIs(t, store.Delete(ctx, DefaultEntryID, "OEQ0000003:1", "OEQ0000002:1"), ErrLinkNotFound)
}

func TestHistory(t *testing.T) {
	database := openTestDB(t, false)
	ctx := context.Background()
	store := database.History()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, ch := range []string{"OEQ0000001:1", "OEQ0000002:1", "OEQ0000001:1"} {
		require.NoError(t, store.Append(ctx, &paramset.HistoryEntry{
			EntryID:        DefaultEntryID,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			ChannelAddress: ch,
			ParamsetKey:    paramset.KeyMaster,
			Changes:        map[string]paramset.ValueChange{"X": {Old: i, New: i + 1}},
		}))
	}

	entries, total, err := store.List(ctx, DefaultEntryID, "", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
	assert.Equal(t, paramset.SourceManual, entries[0].Source)
	assert.NotEmpty(t, entries[0].ID)

	entries, total, err = store.List(ctx, DefaultEntryID, "OEQ0000001:1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, entries, 2)
	assert.EqualValues(t, 3, entries[0].Changes["X"].New)

	n, err := store.Clear(ctx, DefaultEntryID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
