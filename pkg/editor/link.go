package editor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
	"golang.org/x/sync/errgroup"
)

// Side selects one endpoint of a link.
type Side int

const (
	Receiver Side = iota
	Sender
)

func (s Side) String() string {
	if s == Sender {
		return "sender"
	}
	return "receiver"
}

// Sides lists both endpoints in presentation order.
var Sides = []Side{Receiver, Sender}

var ErrUnknownProfile = errors.New("unknown link profile")

// LinkBackend is the set of remote calls a LinkController needs.
type LinkBackend interface {
	GetLinkFormSchema(ctx context.Context, ref rpc.LinkRef) (*paramset.LinkFormSchema, error)
	PutLinkParamset(ctx context.Context, ref rpc.LinkRef, values map[string]any) (*rpc.PutParamsetResult, error)
}

type endpoint struct {
	ref     rpc.LinkRef
	schema  *paramset.LinkFormSchema
	changes *paramset.ChangeSet
	errs    paramset.ValidationErrors
}

// LinkSaveResult reports the outcome of LinkController.Save per endpoint.
type LinkSaveResult struct {
	Outcome SaveOutcome
	Saved   []Side
	Failed  []Side
	// ValidationErrors is keyed by side.
	ValidationErrors map[Side]paramset.ValidationErrors
}

// LinkSnapshot is a consistent copy of one endpoint's state.
type LinkSnapshot struct {
	Side             Side
	Ref              rpc.LinkRef
	Schema           *paramset.LinkFormSchema
	Changes          map[string]any
	Order            []string
	ValidationErrors paramset.ValidationErrors
}

// ChangeSet rebuilds the endpoint's pending edits in the order they were made.
func (s LinkSnapshot) ChangeSet() *paramset.ChangeSet {
	return changeSetOf(s.Order, s.Changes)
}

// LinkController edits both paramsets of a link. The two endpoints are
// independent on the wire but saved and reloaded together.
type LinkController struct {
	client LinkBackend
	collaborators

	mu      sync.Mutex
	state   State
	sides   [2]*endpoint
	profile string
	lastErr error
}

// NewLinkController creates a controller for the link addressed by ref,
// seen from the receiver: ref.ChannelAddress is the receiver and
// ref.PeerAddress the sender.
func NewLinkController(client LinkBackend, ref rpc.LinkRef, opts ...Option) *LinkController {
	c := &LinkController{
		client:        client,
		collaborators: defaultCollaborators(),
	}
	c.sides[Receiver] = &endpoint{ref: ref, changes: paramset.NewChangeSet()}
	c.sides[Sender] = &endpoint{ref: ref.Swap(), changes: paramset.NewChangeSet()}
	for _, opt := range opts {
		opt(&c.collaborators)
	}
	return c
}

// Ref returns the address of one endpoint.
func (c *LinkController) Ref(side Side) rpc.LinkRef {
	return c.sides[side].ref
}

// Open fetches both endpoint schemas in parallel.
func (c *LinkController) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateFailed {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("open link in state %s: %w", st, ErrNotReady)
	}
	c.state = StateLoading
	c.mu.Unlock()

	schemas, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.lastErr = err
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	for _, side := range Sides {
		c.sides[side].schema = schemas[side]
		c.sides[side].changes.Clear()
		c.sides[side].errs = nil
	}
	c.state = StateReady
	return nil
}

func (c *LinkController) fetch(ctx context.Context) ([2]*paramset.LinkFormSchema, error) {
	var out [2]*paramset.LinkFormSchema
	g, gctx := errgroup.WithContext(ctx)
	for _, side := range Sides {
		ref := c.sides[side].ref
		g.Go(func() error {
			s, err := c.client.GetLinkFormSchema(gctx, ref)
			if err != nil {
				return fmt.Errorf("%s schema: %w", side, err)
			}
			out[side] = s
			return nil
		})
	}
	return out, g.Wait()
}

// SetValue records an edit on one endpoint.
func (c *LinkController) SetValue(side Side, id string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(side, id, value)
}

func (c *LinkController) setLocked(side Side, id string, value any) error {
	if c.state != StateReady && c.state != StateSaving {
		return fmt.Errorf("set %s %s in state %s: %w", side, id, c.state, ErrNotReady)
	}
	ep := c.sides[side]
	p, ok := ep.schema.Parameter(id)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnknownParameter, side, id)
	}
	if !p.Writable {
		return fmt.Errorf("%w: %s %s", ErrReadOnly, side, id)
	}
	if p.Type == paramset.TypeAction {
		ep.changes.Stage(id, true)
		return nil
	}
	ep.changes.Set(id, value, p.CurrentValue)
	return nil
}

// SelectProfile stages the values of a receiver profile. It is exactly a
// sequence of SetValue calls in key order, so values already at their
// target are not tracked. Profile keys the receiver does not expose are
// skipped. Returns the number of parameters that differ from current.
func (c *LinkController) SelectProfile(id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return 0, fmt.Errorf("select profile in state %s: %w", c.state, ErrNotReady)
	}
	recv := c.sides[Receiver]
	profile, ok := recv.schema.Profile(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProfile, id)
	}
	values := profile.Values()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := 0
	for _, k := range keys {
		err := c.setLocked(Receiver, k, values[k])
		if errors.Is(err, ErrUnknownParameter) || errors.Is(err, ErrReadOnly) {
			log.Debug().Str("profile", id).Str("parameter", k).Msg("Skipping profile value")
			continue
		}
		if err != nil {
			return n, err
		}
		if _, staged := recv.changes.Get(k); staged {
			n++
		}
	}
	c.profile = id
	return n, nil
}

// Profile returns the last selected profile id.
func (c *LinkController) Profile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// ResetToDefaults stages declared defaults on both endpoints.
func (c *LinkController) ResetToDefaults() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return 0
	}
	n := 0
	for _, side := range Sides {
		ep := c.sides[side]
		for _, p := range ep.schema.Parameters() {
			if !p.Writable || !p.HasDefault() || p.Type == paramset.TypeAction {
				continue
			}
			if paramset.Equal(p.Default, p.CurrentValue) {
				continue
			}
			ep.changes.Set(p.ID, p.Default, p.CurrentValue)
			n++
		}
	}
	return n
}

// IsDirty reports whether either endpoint has pending edits.
func (c *LinkController) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyLocked()
}

func (c *LinkController) dirtyLocked() bool {
	return c.sides[Receiver].changes.IsDirty() || c.sides[Sender].changes.IsDirty()
}

// Save writes the dirty endpoints in parallel. Writes are independent, so
// one side can succeed while the other fails: both schemas are refetched
// afterwards, the saved side's edits are dropped, and the failed side's
// edits are kept and rebased onto the fresh values.
func (c *LinkController) Save(ctx context.Context) (LinkSaveResult, error) {
	c.mu.Lock()
	if c.state != StateReady || !c.dirtyLocked() {
		c.mu.Unlock()
		return LinkSaveResult{Outcome: SaveSkipped}, nil
	}
	var lines []string
	count := 0
	for _, side := range Sides {
		ep := c.sides[side]
		for _, l := range paramset.Summary(&ep.schema.FormSchema, ep.changes) {
			lines = append(lines, side.String()+" "+l)
		}
		count += ep.changes.Len()
	}
	c.mu.Unlock()

	req := ConfirmRequest{
		Title: c.tr.T("save.confirm.title", nil),
		Body: c.tr.T("save.confirm.body", map[string]any{
			"count":   count,
			"channel": c.sides[Receiver].ref.PeerAddress + " → " + c.sides[Receiver].ref.ChannelAddress,
			"summary": strings.Join(lines, "\n"),
		}),
		ConfirmLabel: c.tr.T("save.confirm.ok", nil),
		CancelLabel:  c.tr.T("common.cancel", nil),
	}
	if !c.confirm.Confirm(ctx, req) {
		return LinkSaveResult{Outcome: SaveCancelled}, nil
	}

	c.mu.Lock()
	if c.state != StateReady || !c.dirtyLocked() {
		c.mu.Unlock()
		return LinkSaveResult{Outcome: SaveSkipped}, nil
	}
	c.state = StateSaving
	var snapshots [2]*paramset.ChangeSet
	for _, side := range Sides {
		snapshots[side] = c.sides[side].changes.Clone()
	}
	c.mu.Unlock()

	type outcome struct {
		res *rpc.PutParamsetResult
		err error
	}
	var results [2]*outcome
	// a plain Group: one side failing must not cancel the other
	var g errgroup.Group
	for _, side := range Sides {
		if !snapshots[side].IsDirty() {
			continue
		}
		o := &outcome{}
		results[side] = o
		ref := c.sides[side].ref
		values := snapshots[side].Values()
		g.Go(func() error {
			o.res, o.err = c.client.PutLinkParamset(ctx, ref, values)
			return nil
		})
	}
	_ = g.Wait()

	result := LinkSaveResult{ValidationErrors: make(map[Side]paramset.ValidationErrors)}
	var errs []error
	for _, side := range Sides {
		o := results[side]
		switch {
		case o == nil:
		case o.err != nil:
			result.Failed = append(result.Failed, side)
			errs = append(errs, fmt.Errorf("%s: %w", side, o.err))
		case len(o.res.ValidationErrors) > 0:
			result.Failed = append(result.Failed, side)
			result.ValidationErrors[side] = o.res.ValidationErrors
		case !o.res.Success:
			result.Failed = append(result.Failed, side)
			errs = append(errs, fmt.Errorf("%s: %w", side, ErrSave))
		default:
			result.Saved = append(result.Saved, side)
		}
	}

	c.mu.Lock()
	for _, side := range result.Saved {
		ep := c.sides[side]
		for _, id := range snapshots[side].Keys() {
			saved, _ := snapshots[side].Get(id)
			if cur, ok := ep.changes.Get(id); ok && reflect.DeepEqual(cur, saved) {
				ep.changes.Delete(id)
			}
		}
		ep.errs = nil
	}
	for side, verrs := range result.ValidationErrors {
		c.sides[side].errs = verrs
	}
	c.mu.Unlock()

	switch {
	case len(result.Failed) == 0:
		result.Outcome = SaveApplied
		c.notify.Notify(c.tr.T("save.success", map[string]any{"count": count}))
	case len(result.Saved) == 0 && len(errs) == 0:
		result.Outcome = SaveRejected
		c.notify.Notify(c.tr.T("save.rejected", nil))
	case len(result.Saved) == 0:
		result.Outcome = SaveFailed
		c.notify.Notify(c.tr.T("save.failed", nil))
	default:
		result.Outcome = SaveFailed
		c.notify.Notify(c.tr.T("save.partial", map[string]any{"failed": len(result.Failed)}))
	}
	log.Info().
		Str("sender", c.sides[Sender].ref.ChannelAddress).
		Str("receiver", c.sides[Receiver].ref.ChannelAddress).
		Int("saved", len(result.Saved)).
		Int("failed", len(result.Failed)).
		Msg("Link save finished")

	saveErr := errors.Join(errs...)
	if err := c.reload(ctx); err != nil {
		return result, errors.Join(saveErr, err)
	}
	c.mu.Lock()
	c.lastErr = saveErr
	c.mu.Unlock()
	if saveErr != nil {
		return result, fmt.Errorf("save link: %w", saveErr)
	}
	return result, nil
}

// reload refetches both schemas and rebases both change sets.
func (c *LinkController) reload(ctx context.Context) error {
	schemas, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.lastErr = err
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	for _, side := range Sides {
		ep := c.sides[side]
		ep.schema = schemas[side]
		ep.changes.Rebase(&ep.schema.FormSchema)
	}
	c.state = StateReady
	return nil
}

// Discard drops the pending edits of both endpoints.
func (c *LinkController) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return
	}
	for _, side := range Sides {
		c.sides[side].changes.Clear()
		c.sides[side].errs = nil
	}
	c.profile = ""
	c.notify.Notify(c.tr.T("discard.done", nil))
}

// Close leaves the link view, asking first if edits are pending.
func (c *LinkController) Close(ctx context.Context) bool {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return true
	case StateSaving, StateLoading, StateClosing:
		c.mu.Unlock()
		return false
	}
	dirty := c.dirtyLocked()
	count := c.sides[Receiver].changes.Len() + c.sides[Sender].changes.Len()
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
	if st := c.state; st == StateSaving || st == StateLoading || st == StateClosing {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosed
	for _, side := range Sides {
		c.sides[side].changes.Clear()
	}
	c.mu.Unlock()

	c.navigate.Back()
	return true
}

// Groups splits one endpoint's parameters into keypress groups.
func (c *LinkController) Groups(side Side) paramset.KeypressGroups {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep := c.sides[side]
	if ep.schema == nil {
		return paramset.KeypressGroups{}
	}
	return paramset.GroupByKeypress(&ep.schema.FormSchema)
}

// Snapshot returns a copy of one endpoint's state.
func (c *LinkController) Snapshot(side Side) LinkSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep := c.sides[side]
	errs := make(paramset.ValidationErrors, len(ep.errs))
	for k, v := range ep.errs {
		errs[k] = v
	}
	return LinkSnapshot{
		Side:             side,
		Ref:              ep.ref,
		Schema:           ep.schema,
		Changes:          ep.changes.Values(),
		Order:            ep.changes.Keys(),
		ValidationErrors: errs,
	}
}

// State returns the lifecycle state.
func (c *LinkController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed operation, if any.
func (c *LinkController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
