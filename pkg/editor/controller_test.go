package editor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

var thermostatRef = rpc.ChannelRef{EntryID: "demo", ChannelAddress: "OEQ0000001:1", ParamsetKey: paramset.KeyMaster}

func openController(t *testing.T, b *fakeBackend, r *recorder) *Controller {
	t.Helper()
	c := NewController(b, thermostatRef, r.options()...)
	require.NoError(t, c.Open(context.Background()))
	require.Equal(t, StateReady, c.State())
	return c
}

func TestOpen_LoadsSchemaAndSession(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())

	snap := c.Snapshot()
	assert.True(t, snap.SessionActive)
	assert.False(t, snap.Dirty)
	assert.Equal(t, 1, b.count(rpc.MethodGetFormSchema))
	assert.Equal(t, 1, b.count(rpc.MethodSessionOpen))
	assert.Equal(t, 6, snap.Schema.TotalParameters)
}

func TestOpen_SchemaFailureIsFatal(t *testing.T) {
	b := newFakeBackend()
	b.schemaErr = errUnavailable
	c := NewController(b, thermostatRef)

	err := c.Open(context.Background())
	require.ErrorIs(t, err, ErrLoad)
	require.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 0, b.count(rpc.MethodSessionOpen))
	assert.ErrorIs(t, c.Snapshot().Err, errUnavailable)

	// a failed controller may retry
	b.set(func(f *fakeBackend) { f.schemaErr = nil })
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, StateReady, c.State())
}

func TestSetValue_BackToCurrentIsNotDirty(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 1.5))
	assert.True(t, c.IsDirty())
	c.Wait()

	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 0))
	c.Wait()
	assert.False(t, c.IsDirty())
	assert.Empty(t, c.Snapshot().Changes)
}

func TestSetValue_Errors(t *testing.T) {
	c := openController(t, newFakeBackend(), newRecorder())
	ctx := context.Background()

	assert.ErrorIs(t, c.SetValue(ctx, "NOPE", 1), ErrUnknownParameter)
	assert.ErrorIs(t, c.SetValue(ctx, "FIRMWARE", "3.0"), ErrReadOnly)

	idle := NewController(newFakeBackend(), thermostatRef)
	assert.ErrorIs(t, idle.SetValue(ctx, "ROOM_NAME", "x"), ErrNotReady)
}

func TestSetValue_ActionStagesTrue(t *testing.T) {
	c := openController(t, newFakeBackend(), newRecorder())

	require.NoError(t, c.SetValue(context.Background(), "CALIBRATE", "pressed"))
	c.Wait()
	assert.Equal(t, map[string]any{"CALIBRATE": true}, c.Snapshot().Changes)
}

func TestSetValue_SessionSyncsKeepEditOrder(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)
	ctx := context.Background()

	// the first sync is slow; the revert must not reach the session before it
	b.set(func(f *fakeBackend) { f.setDelay = 50 * time.Millisecond })
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 2.0))
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 0.0))
	c.Wait()

	assert.Empty(t, c.Snapshot().Changes)
	assert.False(t, c.IsDirty())
	b.set(func(f *fakeBackend) { assert.Empty(t, f.staged) })

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveSkipped, res.Outcome)
	assert.Equal(t, 0, r.confirmCount())
	assert.Equal(t, 0.0, b.saved["TEMPERATURE_OFFSET"])

	b.set(func(f *fakeBackend) { f.setDelay = 50 * time.Millisecond })
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 2.0))
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 1.0))

	res, err = c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	assert.Equal(t, 1, res.ChangesApplied)
	require.Equal(t, 1, r.confirmCount())
	assert.Contains(t, r.confirms[0].Body, "Temperature offset: 0 °C → 1 °C")
	assert.Equal(t, 1.0, b.saved["TEMPERATURE_OFFSET"])
	assert.Equal(t, 0, b.count(rpc.MethodPutParamset))
}

func TestSave_DirectWhenSessionDiverges(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 1.0))
	c.Wait()
	// the session picked up an edit this controller never made
	b.set(func(f *fakeBackend) { f.staged["ROOM_NAME"] = "Attic" })

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	assert.Equal(t, 0, b.count(rpc.MethodSessionSave))
	require.Len(t, b.puts, 1)
	assert.Equal(t, map[string]any{"TEMPERATURE_OFFSET": 1.0}, b.puts[0])
	assert.Equal(t, "Living room", b.saved["ROOM_NAME"])
	assert.False(t, c.IsDirty())
}

func TestSetValue_MirrorsToSession(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())

	require.NoError(t, c.SetValue(context.Background(), "ROOM_NAME", "Kitchen"))
	c.Wait()

	assert.Equal(t, 1, b.count(rpc.MethodSessionSet))
	snap := c.Snapshot()
	assert.True(t, snap.CanUndo)
	assert.False(t, snap.CanRedo)
}

func TestSave_CleanIsNoop(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)

	res, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveSkipped, res.Outcome)
	assert.Equal(t, 0, r.confirmCount())
	assert.Equal(t, 0, b.count(rpc.MethodSessionSave))
	assert.Equal(t, 0, b.count(rpc.MethodPutParamset))
}

func TestSave_SessionMode(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 1.5))
	require.NoError(t, c.SetValue(ctx, "BOOST_TIME_PERIOD", 1))

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	assert.Equal(t, 2, res.ChangesApplied)
	assert.Equal(t, "Saved 2 change(s)", r.lastToast())

	require.Equal(t, 1, r.confirmCount())
	assert.Contains(t, r.confirms[0].Body, "Temperature offset: 0 °C → 1.5 °C")
	assert.Contains(t, r.confirms[0].Body, "Boost duration: 15 min → 5 min")

	assert.False(t, c.IsDirty())
	assert.Equal(t, 1.5, b.saved["TEMPERATURE_OFFSET"])
	assert.Equal(t, 0, b.count(rpc.MethodPutParamset))
	// session reopened and schema refreshed
	assert.Equal(t, 2, b.count(rpc.MethodSessionOpen))
	p, _ := c.Snapshot().Schema.Parameter("TEMPERATURE_OFFSET")
	assert.Equal(t, 1.5, p.CurrentValue)

	res, err = c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveSkipped, res.Outcome)
	assert.Equal(t, 1, b.count(rpc.MethodSessionSave))
}

func TestSave_Cancelled(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	r.answer = false
	c := openController(t, b, r)

	require.NoError(t, c.SetValue(context.Background(), "ROOM_NAME", "Kitchen"))
	res, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveCancelled, res.Outcome)
	assert.True(t, c.IsDirty())
	assert.Equal(t, 0, b.count(rpc.MethodSessionSave))
}

func TestSave_RejectedKeepsChanges(t *testing.T) {
	b := newFakeBackend()
	b.rejectErr = paramset.ValidationErrors{"WINDOW_OPEN_TEMPERATURE": "must be <= 30"}
	r := newRecorder()
	c := openController(t, b, r)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "WINDOW_OPEN_TEMPERATURE", 45.0))
	before := c.Snapshot().Changes

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveRejected, res.Outcome)
	assert.Equal(t, b.rejectErr, res.ValidationErrors)

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, before, snap.Changes)
	assert.Equal(t, "must be <= 30", snap.ValidationErrors["WINDOW_OPEN_TEMPERATURE"])
	assert.Equal(t, "Some values were rejected, please correct them", r.lastToast())
}

func TestSave_TransportFailureKeepsChanges(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	c.Wait()
	b.set(func(f *fakeBackend) { f.saveErr = errUnavailable })

	res, err := c.Save(ctx)
	require.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, SaveFailed, res.Outcome)
	assert.True(t, c.IsDirty())
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, "Saving failed", r.lastToast())
}

func TestUndo_ClearsLocalChanges(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	c.Wait()
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 2.0))
	c.Wait()

	require.NoError(t, c.Undo(ctx))
	snap := c.Snapshot()
	assert.Empty(t, snap.Changes)
	assert.True(t, snap.CanRedo)
	assert.True(t, snap.CanUndo)
	// the refetched schema carries the remaining session edit
	p, _ := snap.Schema.Parameter("ROOM_NAME")
	assert.True(t, p.Staged)
	assert.Equal(t, "Kitchen", p.CurrentValue)
	assert.True(t, snap.Dirty)

	require.NoError(t, c.Redo(ctx))
	p, _ = c.Snapshot().Schema.Parameter("TEMPERATURE_OFFSET")
	assert.Equal(t, 2.0, p.CurrentValue)

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	assert.Equal(t, "Kitchen", b.saved["ROOM_NAME"])
	assert.Equal(t, 2.0, b.saved["TEMPERATURE_OFFSET"])
}

func TestUndo_NothingToUndo(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())

	require.NoError(t, c.Undo(context.Background()))
	assert.Equal(t, 0, b.count(rpc.MethodSessionUndo))
}

func TestDirectWriteFallback(t *testing.T) {
	b := newFakeBackend()
	b.openErr = errUnavailable
	c := openController(t, b, newRecorder())
	ctx := context.Background()

	assert.False(t, c.Snapshot().SessionActive)
	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	c.Wait()
	assert.Equal(t, 0, b.count(rpc.MethodSessionSet))

	require.NoError(t, c.Undo(ctx))
	assert.Equal(t, 0, b.count(rpc.MethodSessionUndo))
	assert.True(t, c.IsDirty())

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	require.Len(t, b.puts, 1)
	assert.Equal(t, map[string]any{"ROOM_NAME": "Kitchen"}, b.puts[0])
	assert.False(t, c.IsDirty())
}

func TestSave_ReplaysFailedSyncs(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())
	ctx := context.Background()

	b.set(func(f *fakeBackend) { f.setErr = errUnavailable })
	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	c.Wait()
	assert.True(t, c.IsDirty())

	b.set(func(f *fakeBackend) { f.setErr = nil })
	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	assert.Equal(t, "Kitchen", b.saved["ROOM_NAME"])
	assert.Equal(t, 1, b.count(rpc.MethodSessionSave))
	assert.Equal(t, 0, b.count(rpc.MethodPutParamset))
}

func TestSave_FallsBackWhenReplayFails(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 1.0))
	c.Wait()
	b.set(func(f *fakeBackend) { f.setErr = errUnavailable })
	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	c.Wait()

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	require.Len(t, b.puts, 1)
	assert.Equal(t, map[string]any{"TEMPERATURE_OFFSET": 1.0, "ROOM_NAME": "Kitchen"}, b.puts[0])
	assert.Equal(t, 0, b.count(rpc.MethodSessionSave))
	assert.GreaterOrEqual(t, b.count(rpc.MethodSessionDiscard), 1)
	assert.False(t, c.IsDirty())
}

func TestResetToDefaults(t *testing.T) {
	b := newFakeBackend()
	c := openController(t, b, newRecorder())

	n := c.ResetToDefaults()
	// only BOOST_TIME_PERIOD differs from its default; ROOM_NAME has none
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]any{"BOOST_TIME_PERIOD": 2}, c.Snapshot().Changes)

	// a second reset finds nothing new to stage
	assert.Equal(t, 1, c.ResetToDefaults())
	assert.Equal(t, map[string]any{"BOOST_TIME_PERIOD": 2}, c.Snapshot().Changes)
	assert.Equal(t, []string{"BOOST_TIME_PERIOD"}, c.Snapshot().Order)

	res, err := c.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	assert.Equal(t, 2, b.saved["BOOST_TIME_PERIOD"])

	assert.Zero(t, c.ResetToDefaults())
	assert.False(t, c.IsDirty())
}

func TestDiscard_ReopensSession(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 2.5))
	require.NoError(t, c.SetValue(ctx, "BOOST_TIME_PERIOD", 0))
	require.NoError(t, c.SetValue(ctx, "CALIBRATE", true))
	require.NoError(t, c.Discard(ctx))

	assert.False(t, c.IsDirty())
	snap := c.Snapshot()
	cs := snap.ChangeSet()
	params := snap.Schema.Parameters()
	for i := range params {
		p := &params[i]
		assert.Equal(t, p.CurrentValue, cs.EffectiveValue(p), p.ID)
	}
	b.set(func(f *fakeBackend) { assert.Empty(t, f.staged) })
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, 1, b.count(rpc.MethodSessionDiscard))
	assert.Equal(t, 2, b.count(rpc.MethodSessionOpen))
	assert.Equal(t, "Changes discarded", r.lastToast())
}

func TestClose_AsksWhenDirty(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	r.answer = false
	assert.False(t, c.Close(ctx))
	assert.Equal(t, StateReady, c.State())
	assert.True(t, r.confirms[0].Destructive)
	assert.Equal(t, 0, r.backs)

	r.answer = true
	assert.True(t, c.Close(ctx))
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, r.backs)
	assert.Equal(t, 1, b.count(rpc.MethodSessionDiscard))
	assert.ErrorIs(t, c.SetValue(ctx, "ROOM_NAME", "x"), ErrNotReady)
}

func TestClose_CleanDiscardsSessionWithoutAsking(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)

	assert.True(t, c.Close(context.Background()))
	assert.Equal(t, 0, r.confirmCount())
	assert.Equal(t, 1, b.count(rpc.MethodSessionDiscard))
}

func TestImport_RebasesLocalChanges(t *testing.T) {
	b := newFakeBackend()
	r := newRecorder()
	c := openController(t, b, r)
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 1.0))
	c.Wait()

	verrs, err := c.Import(ctx, `{"ROOM_NAME":"Kitchen","BOOST_TIME_PERIOD":4}`)
	require.NoError(t, err)
	assert.Empty(t, verrs)
	assert.Equal(t, "Settings imported", r.lastToast())

	// ROOM_NAME now equals the imported value and drops out
	assert.Equal(t, []string{"TEMPERATURE_OFFSET"}, c.Snapshot().Order)

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveApplied, res.Outcome)
	assert.Equal(t, 1.0, b.saved["TEMPERATURE_OFFSET"])
}

func TestImport_InvalidData(t *testing.T) {
	c := openController(t, newFakeBackend(), newRecorder())

	verrs, err := c.Import(context.Background(), "not json")
	require.NoError(t, err)
	assert.Contains(t, verrs, "json_data")
	assert.Equal(t, StateReady, c.State())
}

func TestSnapshot_ChangeSetKeepsOrder(t *testing.T) {
	c := openController(t, newFakeBackend(), newRecorder())
	ctx := context.Background()

	require.NoError(t, c.SetValue(ctx, "ROOM_NAME", "Kitchen"))
	require.NoError(t, c.SetValue(ctx, "TEMPERATURE_OFFSET", 1.5))
	c.Wait()

	cs := c.Snapshot().ChangeSet()
	assert.Equal(t, []string{"ROOM_NAME", "TEMPERATURE_OFFSET"}, cs.Keys())
	v, ok := cs.Get("TEMPERATURE_OFFSET")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
}
