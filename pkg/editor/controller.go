// Package editor implements the edit-session controllers behind the
// device configuration views.
package editor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// State is the lifecycle state of a controller.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateSaving
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNotReady         = errors.New("editor is not ready")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrReadOnly         = errors.New("parameter is read-only")
	ErrLoad             = errors.New("failed to load form schema")
	ErrSave             = errors.New("backend did not apply the changes")
)

// Backend is the set of remote calls a Controller needs. *rpc.Client
// implements it.
type Backend interface {
	GetFormSchema(ctx context.Context, ref rpc.ChannelRef) (*paramset.FormSchema, error)
	PutParamset(ctx context.Context, ref rpc.ChannelRef, values map[string]any) (*rpc.PutParamsetResult, error)
	SessionOpen(ctx context.Context, ref rpc.ChannelRef) (*rpc.SuccessResult, error)
	SessionSet(ctx context.Context, ref rpc.ChannelRef, parameter string, value any) (*rpc.SessionState, error)
	SessionUndo(ctx context.Context, ref rpc.ChannelRef) (*rpc.SessionStepResult, error)
	SessionRedo(ctx context.Context, ref rpc.ChannelRef) (*rpc.SessionStepResult, error)
	SessionSave(ctx context.Context, ref rpc.ChannelRef) (*rpc.SessionSaveResult, error)
	SessionDiscard(ctx context.Context, ref rpc.ChannelRef) (*rpc.SuccessResult, error)
	ExportParamset(ctx context.Context, ref rpc.ChannelRef) (string, error)
	ImportParamset(ctx context.Context, ref rpc.ChannelRef, jsonData string) (*rpc.ImportResult, error)
}

// SaveOutcome tells how a Save call ended.
type SaveOutcome int

const (
	SaveSkipped   SaveOutcome = iota // nothing to save, or not ready
	SaveCancelled                    // operator declined the confirmation
	SaveApplied
	SaveRejected // validation failed, edits kept
	SaveFailed   // transport or backend failure, edits kept
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveSkipped:
		return "skipped"
	case SaveCancelled:
		return "cancelled"
	case SaveApplied:
		return "applied"
	case SaveRejected:
		return "rejected"
	case SaveFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// SaveResult reports the result of Save.
type SaveResult struct {
	Outcome          SaveOutcome
	ChangesApplied   int
	ValidationErrors paramset.ValidationErrors
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State            State
	Schema           *paramset.FormSchema
	Changes          map[string]any
	Order            []string
	Dirty            bool
	SessionActive    bool
	CanUndo          bool
	CanRedo          bool
	ValidationErrors paramset.ValidationErrors
	Err              error
}

// ChangeSet rebuilds the pending edits in the order they were made.
func (s Snapshot) ChangeSet() *paramset.ChangeSet {
	return changeSetOf(s.Order, s.Changes)
}

func changeSetOf(order []string, values map[string]any) *paramset.ChangeSet {
	cs := paramset.NewChangeSet()
	for _, id := range order {
		cs.Stage(id, values[id])
	}
	return cs
}

// Controller manages the edit session of one channel paramset. The local
// change set is authoritative for what the view shows; the server session,
// when available, mirrors it for undo/redo and atomic save.
//
// All methods are safe for concurrent use. The lock is never held across a
// backend call.
type Controller struct {
	client Backend
	ref    rpc.ChannelRef
	collaborators

	mu            sync.Mutex
	state         State
	schema        *paramset.FormSchema
	changes       *paramset.ChangeSet
	unsynced      map[string]bool // ids whose latest value the session has not seen
	sessionActive bool
	sessionDirty  bool
	canUndo       bool
	canRedo       bool
	errs          paramset.ValidationErrors
	lastErr       error

	// session syncs are sent one at a time, in edit order
	queue    []sessionEdit
	draining bool
	syncs    sync.WaitGroup
}

type sessionEdit struct {
	id    string
	value any
}

// NewController creates a controller for ref. Call Open before editing.
func NewController(client Backend, ref rpc.ChannelRef, opts ...Option) *Controller {
	c := &Controller{
		client:        client,
		ref:           ref,
		collaborators: defaultCollaborators(),
		changes:       paramset.NewChangeSet(),
		unsynced:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(&c.collaborators)
	}
	return c
}

// Ref returns the edited channel paramset.
func (c *Controller) Ref() rpc.ChannelRef {
	return c.ref
}

// Open fetches the form schema and opens the server session. A failing
// session_open degrades the controller to direct writes; a failing schema
// fetch is fatal and leaves the controller in StateFailed.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateFailed {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("open %s in state %s: %w", c.ref.Key(), st, ErrNotReady)
	}
	c.state = StateLoading
	c.mu.Unlock()
	return c.load(ctx)
}

func (c *Controller) load(ctx context.Context) error {
	schema, err := c.client.GetFormSchema(ctx, c.ref)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.lastErr = err
		c.mu.Unlock()
		log.Error().Err(err).Str("channel", c.ref.ChannelAddress).Str("paramset", c.ref.ParamsetKey).Msg("Failed to load form schema")
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	active := true
	res, err := c.client.SessionOpen(ctx, c.ref)
	if err != nil || !res.Success {
		active = false
		log.Warn().Err(err).Str("channel", c.ref.ChannelAddress).Msg("Edit session unavailable, using direct writes")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.schema = schema
	c.sessionActive = active
	c.sessionDirty = active && schema.SessionDirty
	c.canUndo, c.canRedo = false, false
	c.errs = nil
	c.changes.Rebase(schema)
	c.unsynced = make(map[string]bool)
	if active {
		// edits surviving a reload were never sent to the new session
		for _, id := range c.changes.Keys() {
			c.unsynced[id] = true
		}
	}
	c.state = StateReady
	return nil
}

// SetValue records an edit. Setting a parameter back to its current value
// removes it from the change set. In session mode the edit is queued for
// the server and mirrored asynchronously, in the order edits were made; a
// failed mirror keeps the local edit and is retried on save.
func (c *Controller) SetValue(ctx context.Context, id string, value any) error {
	c.mu.Lock()
	if c.state != StateReady && c.state != StateSaving {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("set %s in state %s: %w", id, st, ErrNotReady)
	}
	p, ok := c.schema.Parameter(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
	if !p.Writable {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReadOnly, id)
	}
	if p.Type == paramset.TypeAction {
		value = true
		c.changes.Stage(id, value)
	} else {
		c.changes.Set(id, value, p.CurrentValue)
	}
	start := false
	if c.sessionActive && c.state == StateReady {
		delete(c.unsynced, id)
		c.queue = append(c.queue, sessionEdit{id: id, value: value})
		c.syncs.Add(1)
		start = !c.draining
		c.draining = true
	} else if c.sessionActive {
		// a save is in flight against the current session
		c.unsynced[id] = true
	}
	c.mu.Unlock()

	if start {
		go c.drain(context.WithoutCancel(ctx))
	}
	return nil
}

// drain mirrors queued edits until the queue is empty. At most one drain
// runs per controller, so session_set calls never overtake each other.
func (c *Controller) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		e := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.mirror(ctx, e)
	}
}

func (c *Controller) mirror(ctx context.Context, e sessionEdit) {
	defer c.syncs.Done()
	st, err := c.client.SessionSet(ctx, c.ref, e.id, e.value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.unsynced[e.id] = true
		log.Debug().Err(err).Str("parameter", e.id).Msg("Session sync failed, keeping edit locally")
		return
	}
	if c.state == StateReady {
		// while saving, a newer edit to e.id may be waiting for replay
		delete(c.unsynced, e.id)
	}
	c.applyState(st)
}

// applyState takes the history flags from a session_set reply. Dirtiness
// is not taken from it; session-held edits are tracked through the schema.
func (c *Controller) applyState(st *rpc.SessionState) {
	c.canUndo, c.canRedo = st.CanUndo, st.CanRedo
	c.errs = st.ValidationErrors
}

// Wait blocks until all in-flight session syncs have completed.
func (c *Controller) Wait() {
	c.syncs.Wait()
}

// Undo asks the server to revert the last session edit. Undo is a no-op
// outside session mode or when the server reports nothing to undo.
func (c *Controller) Undo(ctx context.Context) error {
	return c.step(ctx, true)
}

// Redo re-applies the last undone session edit.
func (c *Controller) Redo(ctx context.Context) error {
	return c.step(ctx, false)
}

func (c *Controller) step(ctx context.Context, undo bool) error {
	op, call, key := "redo", c.client.SessionRedo, "redo.failed"
	if undo {
		op, call, key = "undo", c.client.SessionUndo, "undo.failed"
	}

	// steps apply to the session as the server sees it
	c.syncs.Wait()

	c.mu.Lock()
	allowed := c.state == StateReady && c.sessionActive && ((undo && c.canUndo) || (!undo && c.canRedo))
	c.mu.Unlock()
	if !allowed {
		return nil
	}

	res, err := call(ctx, c.ref)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.notify.Notify(c.tr.T(key, nil))
		return fmt.Errorf("%s %s: %w", op, c.ref.Key(), err)
	}

	c.mu.Lock()
	c.sessionDirty = res.IsDirty
	c.canUndo, c.canRedo = res.CanUndo, res.CanRedo
	if res.Performed {
		// the session is authoritative after a step; the refetched schema
		// carries its staged values
		c.changes.Clear()
		c.unsynced = make(map[string]bool)
		c.errs = nil
	}
	c.mu.Unlock()
	if !res.Performed {
		return nil
	}

	schema, err := c.client.GetFormSchema(ctx, c.ref)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	c.mu.Lock()
	c.schema = schema
	c.mu.Unlock()
	return nil
}

// ResetToDefaults stages the declared default for every writable parameter
// whose current value differs from it. Parameters without a default, or
// already at their default, are left untouched. Returns the number of
// parameters staged.
func (c *Controller) ResetToDefaults() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return 0
	}
	n := 0
	for _, p := range c.schema.Parameters() {
		if !p.Writable || !p.HasDefault() || p.Type == paramset.TypeAction {
			continue
		}
		if paramset.Equal(p.Default, p.CurrentValue) {
			continue
		}
		c.changes.Set(p.ID, p.Default, p.CurrentValue)
		if c.sessionActive {
			c.unsynced[p.ID] = true
		}
		n++
	}
	return n
}

// IsDirty reports whether there is anything to save: local edits, or edits
// the session holds after an undo or redo.
func (c *Controller) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyLocked()
}

func (c *Controller) dirtyLocked() bool {
	return c.changes.IsDirty() || (c.sessionActive && c.sessionDirty)
}

// Save asks for confirmation and persists the pending edits. In session
// mode edits the session has not seen are pushed first and the session is
// committed; if that push fails, the session no longer holds exactly the
// pending edits, or without a session, the full change set is written
// directly. On success the schema is reloaded and a fresh
// session opened.
func (c *Controller) Save(ctx context.Context) (SaveResult, error) {
	c.mu.Lock()
	if c.state != StateReady || !c.dirtyLocked() {
		c.mu.Unlock()
		return SaveResult{Outcome: SaveSkipped}, nil
	}
	lines := paramset.Summary(c.schema, c.changes)
	c.mu.Unlock()

	req := ConfirmRequest{
		Title: c.tr.T("save.confirm.title", nil),
		Body: c.tr.T("save.confirm.body", map[string]any{
			"count":   len(lines),
			"channel": c.ref.ChannelAddress,
			"summary": strings.Join(lines, "\n"),
		}),
		ConfirmLabel: c.tr.T("save.confirm.ok", nil),
		CancelLabel:  c.tr.T("common.cancel", nil),
	}
	if !c.confirm.Confirm(ctx, req) {
		return SaveResult{Outcome: SaveCancelled}, nil
	}

	c.mu.Lock()
	if c.state != StateReady || !c.dirtyLocked() {
		c.mu.Unlock()
		return SaveResult{Outcome: SaveSkipped}, nil
	}
	c.state = StateSaving
	c.mu.Unlock()

	c.syncs.Wait()

	c.mu.Lock()
	snapshot := c.changes.Clone()
	session := c.sessionActive
	pending := c.unsyncedLocked()
	outgoing := c.schema.StagedValues()
	for k, v := range snapshot.Values() {
		outgoing[k] = v
	}
	c.mu.Unlock()

	direct := !session || !c.replay(ctx, snapshot, pending) || !c.sessionMatches(ctx, outgoing)

	var (
		applied   int
		validated bool
		success   bool
		verrs     paramset.ValidationErrors
		err       error
	)
	if direct {
		var res *rpc.PutParamsetResult
		res, err = c.client.PutParamset(ctx, c.ref, outgoing)
		if err == nil {
			validated, success, verrs = res.Validated, res.Success, res.ValidationErrors
			applied = len(outgoing)
		}
	} else {
		var res *rpc.SessionSaveResult
		res, err = c.client.SessionSave(ctx, c.ref)
		if err == nil {
			validated, success, verrs = res.Validated, res.Success, res.ValidationErrors
			applied = res.ChangesApplied
		}
	}

	if err == nil && (!validated || len(verrs) > 0) {
		c.mu.Lock()
		c.state = StateReady
		c.errs = verrs
		c.mu.Unlock()
		c.notify.Notify(c.tr.T("save.rejected", nil))
		log.Info().Str("channel", c.ref.ChannelAddress).Int("errors", len(verrs)).Msg("Save rejected by validation")
		return SaveResult{Outcome: SaveRejected, ValidationErrors: verrs}, nil
	}
	if err == nil && !success {
		err = ErrSave
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateReady
		c.lastErr = err
		c.mu.Unlock()
		c.notify.Notify(c.tr.T("save.failed", nil))
		log.Error().Err(err).Str("channel", c.ref.ChannelAddress).Bool("direct", direct).Msg("Save failed")
		return SaveResult{Outcome: SaveFailed}, fmt.Errorf("save %s: %w", c.ref.Key(), err)
	}

	c.mu.Lock()
	// edits made while saving survive
	for _, id := range snapshot.Keys() {
		saved, _ := snapshot.Get(id)
		if cur, ok := c.changes.Get(id); ok && reflect.DeepEqual(cur, saved) {
			c.changes.Delete(id)
		}
	}
	c.errs = nil
	c.lastErr = nil
	c.mu.Unlock()

	if direct && session {
		// the session still stages what was just written directly
		if _, err := c.client.SessionDiscard(ctx, c.ref); err != nil {
			log.Debug().Err(err).Msg("Failed to discard session after direct save")
		}
	}

	log.Info().Str("channel", c.ref.ChannelAddress).Int("changes", applied).Bool("direct", direct).Msg("Paramset saved")
	c.notify.Notify(c.tr.T("save.success", map[string]any{"count": applied}))

	result := SaveResult{Outcome: SaveApplied, ChangesApplied: applied}
	if err := c.load(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// replay pushes edits the session has not seen. Ids no longer in the
// change set are pushed with their current value so the session drops
// them. Reports false if any push failed.
func (c *Controller) replay(ctx context.Context, snapshot *paramset.ChangeSet, ids []string) bool {
	for _, id := range ids {
		value, ok := snapshot.Get(id)
		if !ok {
			c.mu.Lock()
			p, found := c.schema.Parameter(id)
			if found {
				value = p.SavedValue
				if !p.Staged {
					value = p.CurrentValue
				}
			}
			c.mu.Unlock()
			if !found {
				continue
			}
		}
		st, err := c.client.SessionSet(ctx, c.ref, id, value)
		if err != nil {
			log.Warn().Err(err).Str("parameter", id).Msg("Session replay failed, falling back to direct write")
			return false
		}
		c.mu.Lock()
		c.applyState(st)
		delete(c.unsynced, id)
		c.mu.Unlock()
	}
	return true
}

// sessionMatches reports whether the server session stages exactly want.
func (c *Controller) sessionMatches(ctx context.Context, want map[string]any) bool {
	schema, err := c.client.GetFormSchema(ctx, c.ref)
	if err != nil {
		log.Warn().Err(err).Str("channel", c.ref.ChannelAddress).Msg("Failed to verify session, falling back to direct write")
		return false
	}
	for _, p := range schema.Parameters() {
		v, ok := want[p.ID]
		if !ok {
			if p.Staged {
				log.Warn().Str("parameter", p.ID).Msg("Session stages an edit not made here, falling back to direct write")
				return false
			}
			continue
		}
		if !paramset.Equal(v, p.CurrentValue) {
			log.Warn().Str("parameter", p.ID).Msg("Session out of step with pending edits, falling back to direct write")
			return false
		}
	}
	return true
}

func (c *Controller) unsyncedLocked() []string {
	var out []string
	for _, id := range c.changes.Keys() {
		if c.unsynced[id] {
			out = append(out, id)
		}
	}
	for id := range c.unsynced {
		if _, ok := c.changes.Get(id); !ok {
			out = append(out, id)
		}
	}
	return out
}

// Discard drops all pending edits. In session mode the server session is
// discarded, best effort, and a fresh one opened.
func (c *Controller) Discard(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return nil
	}
	c.changes.Clear()
	c.unsynced = make(map[string]bool)
	c.errs = nil
	session := c.sessionActive
	if session {
		c.state = StateLoading
	}
	c.mu.Unlock()

	c.notify.Notify(c.tr.T("discard.done", nil))
	if !session {
		return nil
	}
	c.syncs.Wait()
	if _, err := c.client.SessionDiscard(ctx, c.ref); err != nil {
		log.Debug().Err(err).Msg("Failed to discard session")
	}
	return c.load(ctx)
}

// Close leaves the view. With unsaved edits the operator is asked first
// and false is returned if they decline. The server session is discarded
// either way.
func (c *Controller) Close(ctx context.Context) bool {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return true
	case StateSaving, StateClosing, StateLoading:
		c.mu.Unlock()
		return false
	}
	dirty := c.dirtyLocked()
	count := c.changes.Len()
	c.mu.Unlock()

	if dirty {
		req := ConfirmRequest{
			Title:        c.tr.T("close.confirm.title", nil),
			Body:         c.tr.T("close.confirm.body", map[string]any{"count": count}),
			ConfirmLabel: c.tr.T("close.confirm.ok", nil),
			CancelLabel:  c.tr.T("common.cancel", nil),
			Destructive:  true,
		}
		if !c.confirm.Confirm(ctx, req) {
			return false
		}
	}

	c.mu.Lock()
	if st := c.state; st == StateSaving || st == StateClosing || st == StateLoading || st == StateClosed {
		c.mu.Unlock()
		return st == StateClosed
	}
	c.state = StateClosing
	session := c.sessionActive
	c.mu.Unlock()

	c.syncs.Wait()
	if session {
		if _, err := c.client.SessionDiscard(ctx, c.ref); err != nil {
			log.Debug().Err(err).Msg("Failed to discard session on close")
		}
	}

	c.mu.Lock()
	c.state = StateClosed
	c.sessionActive = false
	c.changes.Clear()
	c.unsynced = make(map[string]bool)
	c.mu.Unlock()

	c.navigate.Back()
	return true
}

// Export returns the saved paramset as JSON.
func (c *Controller) Export(ctx context.Context) (string, error) {
	return c.client.ExportParamset(ctx, c.ref)
}

// Import writes a previously exported paramset. On success the schema is
// reloaded and local edits are rebased onto the imported values. Rejected
// values are returned without touching local state.
func (c *Controller) Import(ctx context.Context, jsonData string) (paramset.ValidationErrors, error) {
	c.mu.Lock()
	if c.state != StateReady {
		st := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("import in state %s: %w", st, ErrNotReady)
	}
	c.state = StateSaving
	session := c.sessionActive
	c.mu.Unlock()

	c.syncs.Wait()
	res, err := c.client.ImportParamset(ctx, c.ref, jsonData)
	if err != nil || !res.Success {
		c.mu.Lock()
		c.state = StateReady
		if err != nil {
			c.lastErr = err
		} else {
			c.errs = res.ValidationErrors
		}
		c.mu.Unlock()
		c.notify.Notify(c.tr.T("import.failed", nil))
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", c.ref.Key(), err)
		}
		return res.ValidationErrors, nil
	}

	c.notify.Notify(c.tr.T("import.success", nil))
	if session {
		if _, err := c.client.SessionDiscard(ctx, c.ref); err != nil {
			log.Debug().Err(err).Msg("Failed to discard session after import")
		}
	}
	return nil, c.load(ctx)
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make(paramset.ValidationErrors, len(c.errs))
	for k, v := range c.errs {
		errs[k] = v
	}
	return Snapshot{
		State:            c.state,
		Schema:           c.schema,
		Changes:          c.changes.Values(),
		Order:            c.changes.Keys(),
		Dirty:            c.dirtyLocked(),
		SessionActive:    c.sessionActive,
		CanUndo:          c.sessionActive && c.canUndo,
		CanRedo:          c.sessionActive && c.canRedo,
		ValidationErrors: errs,
		Err:              c.lastErr,
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
