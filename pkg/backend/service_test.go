package backend

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/homai-panel/pkg/db"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

var thermostat = rpc.ChannelRef{EntryID: db.DefaultEntryID, ChannelAddress: "OEQ0000001:1", ParamsetKey: paramset.KeyMaster}

func newTestService(t *testing.T) (*Service, *rpc.Client) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx))
	require.NoError(t, database.Bootstrap(ctx, true))

	svc := New(database)
	d := rpc.NewDispatcher(nil)
	svc.Register(d)
	client := rpc.NewClient(rpc.NewLoopback(d))
	t.Cleanup(func() { _ = client.Close() })
	return svc, client
}

func TestRegisterBindsEveryMethod(t *testing.T) {
	svc, _ := newTestService(t)
	d := rpc.NewDispatcher(nil)
	svc.Register(d)
	assert.Len(t, d.Methods(), 21)
}

func TestGetFormSchema(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	fs, err := client.GetFormSchema(ctx, thermostat)
	require.NoError(t, err)
	assert.Equal(t, "CLIMATECONTROL_RT_TRANSCEIVER", fs.ChannelType)
	assert.Equal(t, 12, fs.TotalParameters)

	p, ok := fs.Parameter("BOOST_TIME_PERIOD")
	require.True(t, ok)
	assert.EqualValues(t, 4, p.CurrentValue)
	assert.False(t, p.Staged)

	_, err = client.GetFormSchema(ctx, rpc.ChannelRef{EntryID: db.DefaultEntryID, ChannelAddress: "OEQ0000001:1", ParamsetKey: paramset.KeyLink})
	assert.ErrorIs(t, err, rpc.ErrNotFound)

	_, err = client.GetFormSchema(ctx, rpc.ChannelRef{EntryID: db.DefaultEntryID, ChannelAddress: "NOPE:1", ParamsetKey: paramset.KeyMaster})
	assert.ErrorIs(t, err, rpc.ErrNotFound)
}

func TestPutParamset(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	res, err := client.PutParamset(ctx, thermostat, map[string]any{"TEMPERATURE_OFFSET": 9.0, "FIRMWARE": "x"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.False(t, res.Validated)
	assert.Contains(t, res.ValidationErrors, "TEMPERATURE_OFFSET")
	assert.Equal(t, "unknown parameter", res.ValidationErrors["FIRMWARE"])

	res, err = client.PutParamset(ctx, thermostat, map[string]any{"TEMPERATURE_OFFSET": -1.5})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Validated)

	values, err := client.GetParamset(ctx, thermostat)
	require.NoError(t, err)
	assert.Equal(t, -1.5, values["TEMPERATURE_OFFSET"])

	hist, err := client.GetChangeHistory(ctx, rpc.HistoryParams{EntryID: db.DefaultEntryID})
	require.NoError(t, err)
	require.Equal(t, 1, hist.Total)
	assert.Equal(t, "Living room thermostat", hist.Entries[0].DeviceName)
	assert.Equal(t, -1.5, hist.Entries[0].Changes["TEMPERATURE_OFFSET"].New)
}

func TestSessionLifecycle(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	_, err := client.SessionSet(ctx, thermostat, "TEMPERATURE_OFFSET", 1.0)
	assert.ErrorIs(t, err, rpc.ErrNoSession)

	ok, err := client.SessionOpen(ctx, thermostat)
	require.NoError(t, err)
	assert.True(t, ok.Success)
	// resuming does not create a second session
	_, err = client.SessionOpen(ctx, thermostat)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.sessions.count())

	st, err := client.SessionSet(ctx, thermostat, "TEMPERATURE_OFFSET", 1.0)
	require.NoError(t, err)
	assert.True(t, st.IsDirty)
	assert.True(t, st.CanUndo)

	st, err = client.SessionSet(ctx, thermostat, "ECO_TEMPERATURE", 45.0)
	require.NoError(t, err)
	assert.Contains(t, st.ValidationErrors, "ECO_TEMPERATURE")

	fs, err := client.GetFormSchema(ctx, thermostat)
	require.NoError(t, err)
	assert.True(t, fs.SessionDirty)
	p, _ := fs.Parameter("TEMPERATURE_OFFSET")
	assert.True(t, p.Staged)
	assert.Equal(t, 1.0, p.CurrentValue)
	assert.Equal(t, 0.0, p.SavedValue)

	saved, err := client.SessionSave(ctx, thermostat)
	require.NoError(t, err)
	assert.False(t, saved.Validated)
	assert.Contains(t, saved.ValidationErrors, "ECO_TEMPERATURE")

	step, err := client.SessionUndo(ctx, thermostat)
	require.NoError(t, err)
	assert.True(t, step.Performed)
	assert.True(t, step.CanRedo)

	step, err = client.SessionRedo(ctx, thermostat)
	require.NoError(t, err)
	assert.True(t, step.Performed)
	step, err = client.SessionUndo(ctx, thermostat)
	require.NoError(t, err)
	assert.True(t, step.IsDirty)

	saved, err = client.SessionSave(ctx, thermostat)
	require.NoError(t, err)
	assert.True(t, saved.Success)
	assert.Equal(t, 1, saved.ChangesApplied)
	assert.Equal(t, 0, svc.sessions.count())

	values, err := client.GetParamset(ctx, thermostat)
	require.NoError(t, err)
	assert.Equal(t, 1.0, values["TEMPERATURE_OFFSET"])
	assert.Equal(t, 17.0, values["ECO_TEMPERATURE"])
}

func TestSessionSetBackToSavedDropsStaging(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	_, err := client.SessionOpen(ctx, thermostat)
	require.NoError(t, err)
	_, err = client.SessionSet(ctx, thermostat, "SHOW_WEEKDAY", true)
	require.NoError(t, err)
	st, err := client.SessionSet(ctx, thermostat, "SHOW_WEEKDAY", false)
	require.NoError(t, err)
	assert.False(t, st.IsDirty)
	assert.True(t, st.CanUndo)

	_, err = client.SessionSet(ctx, thermostat, "NOPE", 1)
	assert.ErrorIs(t, err, rpc.ErrNotFound)
}

func TestExportImport(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	data, err := client.ExportParamset(ctx, thermostat)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &doc))
	values := doc["values"].(map[string]any)
	assert.Equal(t, "Living room", values["ROOM_NAME"])
	assert.NotContains(t, values, "VALVE_CALIBRATE")

	values["ROOM_NAME"] = "Study"
	values["UNKNOWN"] = 1
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	res, err := client.ImportParamset(ctx, thermostat, string(raw))
	require.NoError(t, err)
	assert.True(t, res.Success)

	fs, err := client.GetFormSchema(ctx, thermostat)
	require.NoError(t, err)
	p, _ := fs.Parameter("ROOM_NAME")
	assert.Equal(t, "Study", p.CurrentValue)

	hist, err := client.GetChangeHistory(ctx, rpc.HistoryParams{EntryID: db.DefaultEntryID, ChannelAddress: thermostat.ChannelAddress})
	require.NoError(t, err)
	require.NotEmpty(t, hist.Entries)
	assert.Equal(t, paramset.SourceImport, hist.Entries[0].Source)
}

func TestImportRejects(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"not json", "{", documentField},
		{"missing values", `{"version": 1, "paramset_key": "MASTER"}`, documentField},
		{"wrong version", `{"version": 2, "paramset_key": "MASTER", "values": {}}`, documentField},
		{"wrong paramset", `{"version": 1, "paramset_key": "VALUES", "values": {}}`, documentField},
		{"out of range", `{"version": 1, "paramset_key": "MASTER", "values": {"TEMPERATURE_OFFSET": 7}}`, "TEMPERATURE_OFFSET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := client.ImportParamset(ctx, thermostat, tt.data)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Contains(t, res.ValidationErrors, tt.field)
		})
	}
}

func TestClearChangeHistory(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	_, err := client.PutParamset(ctx, thermostat, map[string]any{"BUTTON_LOCK": true})
	require.NoError(t, err)
	res, err := client.ClearChangeHistory(ctx, db.DefaultEntryID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cleared)

	hist, err := client.GetChangeHistory(ctx, rpc.HistoryParams{EntryID: db.DefaultEntryID})
	require.NoError(t, err)
	assert.Zero(t, hist.Total)
	assert.Empty(t, hist.Entries)
}

// The controller and the backend agree on session semantics end to end.
func TestControllerAgainstService(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	c := editor.NewController(client, thermostat)
	require.NoError(t, c.Open(ctx))

	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 2.0))
	c.Wait()
	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Office"))
	c.Wait()
	snap := c.Snapshot()
	assert.True(t, snap.CanUndo)

	require.NoError(t, c.Undo(ctx))
	snap = c.Snapshot()
	p, _ := snap.Schema.Parameter("ROOM_NAME")
	assert.Equal(t, "Living room", p.CurrentValue)
	p, _ = snap.Schema.Parameter("TEMPERATURE_OFFSET")
	assert.Equal(t, 2.0, p.CurrentValue)
	assert.True(t, snap.Dirty)

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, editor.SaveApplied, res.Outcome)
	assert.Equal(t, 1, res.ChangesApplied)
	assert.False(t, c.IsDirty())

	values, err := client.GetParamset(ctx, thermostat)
	require.NoError(t, err)
	assert.Equal(t, 2.0, values["TEMPERATURE_OFFSET"])
	assert.Equal(t, "Living room", values["ROOM_NAME"])

	assert.True(t, c.Close(ctx))
}

// slowFirstSet delays the first session_set so a later one reaches the
// backend first unless the controller keeps them in order.
type slowFirstSet struct {
	*rpc.Client
	once bool
}

func (s *slowFirstSet) SessionSet(ctx context.Context, ref rpc.ChannelRef, parameter string, value any) (*rpc.SessionState, error) {
	if !s.once {
		s.once = true
		time.Sleep(50 * time.Millisecond)
	}
	return s.Client.SessionSet(ctx, ref, parameter, value)
}

func TestControllerRevertWhileSyncInFlight(t *testing.T) {
	_, client := newTestService(t)
	ctx := context.Background()

	c := editor.NewController(&slowFirstSet{Client: client}, thermostat)
	require.NoError(t, c.Open(ctx))

	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 2.0))
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 0.0))
	c.Wait()
	assert.False(t, c.IsDirty())

	fs, err := client.GetFormSchema(ctx, thermostat)
	require.NoError(t, err)
	assert.False(t, fs.SessionDirty)

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, editor.SaveSkipped, res.Outcome)

	values, err := client.GetParamset(ctx, thermostat)
	require.NoError(t, err)
	assert.Equal(t, 0.0, values["TEMPERATURE_OFFSET"])
	assert.True(t, c.Close(ctx))
}
