package editor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

var errUnavailable = errors.New("backend unavailable")

func ptr(f float64) *float64 { return &f }

func thermostatParameters() []paramset.Parameter {
	return []paramset.Parameter{
		{ID: "TEMPERATURE_OFFSET", Label: "Temperature offset", Type: paramset.TypeFloat, Widget: paramset.WidgetSlider,
			Min: ptr(-3.5), Max: ptr(3.5), Step: ptr(0.5), Unit: "°C", Default: 0.0, Writable: true},
		{ID: "BOOST_TIME_PERIOD", Label: "Boost duration", Type: paramset.TypeEnum, Widget: paramset.WidgetDropdown,
			Options: []string{"0 min", "5 min", "10 min", "15 min", "20 min"}, Default: 2, Writable: true},
		{ID: "WINDOW_OPEN_TEMPERATURE", Label: "Window open temperature", Type: paramset.TypeFloat, Widget: paramset.WidgetNumber,
			Min: ptr(5), Max: ptr(30), Unit: "°C", Default: 12.0, Writable: true},
		{ID: "ROOM_NAME", Label: "Room", Type: paramset.TypeString, Widget: paramset.WidgetText, Writable: true},
		{ID: "FIRMWARE", Label: "Firmware", Type: paramset.TypeString, Widget: paramset.WidgetReadOnly},
		{ID: "CALIBRATE", Label: "Calibrate", Type: paramset.TypeAction, Widget: paramset.WidgetButton, Writable: true},
	}
}

// fakeBackend is an in-memory backend with a single edit session.
type fakeBackend struct {
	mu     sync.Mutex
	params []paramset.Parameter
	saved  map[string]any

	session bool
	staged  map[string]any
	undo    []map[string]any
	redo    []map[string]any

	calls map[string]int
	puts  []map[string]any

	schemaErr error
	openErr   error
	setErr    error
	saveErr   error
	rejectErr paramset.ValidationErrors

	// setDelay holds back the next session_set before it is applied
	setDelay time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		params: thermostatParameters(),
		saved: map[string]any{
			"TEMPERATURE_OFFSET":      0.0,
			"BOOST_TIME_PERIOD":       3,
			"WINDOW_OPEN_TEMPERATURE": 12.0,
			"ROOM_NAME":               "Living room",
			"FIRMWARE":                "2.4.1",
		},
		staged: map[string]any{},
		calls:  map[string]int{},
	}
}

func (f *fakeBackend) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *fakeBackend) stateLocked() *rpc.SessionState {
	return &rpc.SessionState{IsDirty: len(f.staged) > 0, CanUndo: len(f.undo) > 0, CanRedo: len(f.redo) > 0}
}

func (f *fakeBackend) GetFormSchema(_ context.Context, ref rpc.ChannelRef) (*paramset.FormSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodGetFormSchema]++
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	params := make([]paramset.Parameter, len(f.params))
	copy(params, f.params)
	for i := range params {
		p := &params[i]
		p.CurrentValue = f.saved[p.ID]
		if v, ok := f.staged[p.ID]; ok && f.session {
			p.Staged = true
			p.SavedValue = p.CurrentValue
			p.CurrentValue = v
		}
	}
	s := &paramset.FormSchema{
		EntryID:        ref.EntryID,
		ChannelAddress: ref.ChannelAddress,
		ParamsetKey:    ref.ParamsetKey,
		Sections:       []paramset.Section{{ID: "general", Title: "General", Parameters: params}},
		SessionDirty:   f.session && len(f.staged) > 0,
	}
	s.Count()
	return s, nil
}

func (f *fakeBackend) apply(values map[string]any) {
	for k, v := range values {
		if k == "CALIBRATE" {
			continue
		}
		f.saved[k] = v
	}
}

func (f *fakeBackend) PutParamset(_ context.Context, _ rpc.ChannelRef, values map[string]any) (*rpc.PutParamsetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodPutParamset]++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if len(f.rejectErr) > 0 {
		return &rpc.PutParamsetResult{Validated: false, ValidationErrors: f.rejectErr}, nil
	}
	f.puts = append(f.puts, copyMap(values))
	f.apply(values)
	return &rpc.PutParamsetResult{Success: true, Validated: true}, nil
}

func (f *fakeBackend) SessionOpen(context.Context, rpc.ChannelRef) (*rpc.SuccessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodSessionOpen]++
	if f.openErr != nil {
		return nil, f.openErr
	}
	if !f.session {
		f.session = true
		f.staged = map[string]any{}
		f.undo, f.redo = nil, nil
	}
	return &rpc.SuccessResult{Success: true}, nil
}

func (f *fakeBackend) SessionSet(_ context.Context, _ rpc.ChannelRef, parameter string, value any) (*rpc.SessionState, error) {
	f.mu.Lock()
	delay := f.setDelay
	f.setDelay = 0
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodSessionSet]++
	if f.setErr != nil {
		return nil, f.setErr
	}
	if !f.session {
		return nil, rpc.ErrNoSession
	}
	f.undo = append(f.undo, copyMap(f.staged))
	f.redo = nil
	if paramset.Equal(value, f.saved[parameter]) {
		delete(f.staged, parameter)
	} else {
		f.staged[parameter] = value
	}
	return f.stateLocked(), nil
}

func (f *fakeBackend) step(undo bool) *rpc.SessionStepResult {
	from, to := &f.redo, &f.undo
	if undo {
		from, to = &f.undo, &f.redo
	}
	if len(*from) == 0 {
		st := f.stateLocked()
		return &rpc.SessionStepResult{IsDirty: st.IsDirty, CanUndo: st.CanUndo, CanRedo: st.CanRedo}
	}
	*to = append(*to, copyMap(f.staged))
	f.staged = (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	st := f.stateLocked()
	return &rpc.SessionStepResult{Performed: true, IsDirty: st.IsDirty, CanUndo: st.CanUndo, CanRedo: st.CanRedo}
}

func (f *fakeBackend) SessionUndo(context.Context, rpc.ChannelRef) (*rpc.SessionStepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodSessionUndo]++
	return f.step(true), nil
}

func (f *fakeBackend) SessionRedo(context.Context, rpc.ChannelRef) (*rpc.SessionStepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodSessionRedo]++
	return f.step(false), nil
}

func (f *fakeBackend) SessionSave(context.Context, rpc.ChannelRef) (*rpc.SessionSaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodSessionSave]++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	if len(f.rejectErr) > 0 {
		return &rpc.SessionSaveResult{Validated: false, ValidationErrors: f.rejectErr}, nil
	}
	n := len(f.staged)
	f.apply(f.staged)
	f.session = false
	f.staged = map[string]any{}
	f.undo, f.redo = nil, nil
	return &rpc.SessionSaveResult{Success: true, Validated: true, ChangesApplied: n}, nil
}

func (f *fakeBackend) SessionDiscard(context.Context, rpc.ChannelRef) (*rpc.SuccessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodSessionDiscard]++
	f.session = false
	f.staged = map[string]any{}
	f.undo, f.redo = nil, nil
	return &rpc.SuccessResult{Success: true}, nil
}

func (f *fakeBackend) ExportParamset(context.Context, rpc.ChannelRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodExportParamset]++
	data, err := json.Marshal(f.saved)
	return string(data), err
}

func (f *fakeBackend) ImportParamset(_ context.Context, _ rpc.ChannelRef, jsonData string) (*rpc.ImportResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rpc.MethodImportParamset]++
	var values map[string]any
	if err := json.Unmarshal([]byte(jsonData), &values); err != nil {
		return &rpc.ImportResult{ValidationErrors: paramset.ValidationErrors{"json_data": err.Error()}}, nil
	}
	f.apply(values)
	return &rpc.ImportResult{Success: true}, nil
}

// recorder collects notifications and confirmation requests.
type recorder struct {
	mu       sync.Mutex
	toasts   []string
	confirms []ConfirmRequest
	answer   bool
	backs    int
}

func newRecorder() *recorder {
	return &recorder{answer: true}
}

func (r *recorder) options() []Option {
	return []Option{
		WithConfirmer(ConfirmFunc(func(_ context.Context, req ConfirmRequest) bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.confirms = append(r.confirms, req)
			return r.answer
		})),
		WithNotifier(NotifyFunc(func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.toasts = append(r.toasts, msg)
		})),
		WithNavigator(NavigateFunc(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.backs++
		})),
	}
}

func (r *recorder) lastToast() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return ""
	}
	return r.toasts[len(r.toasts)-1]
}

func (r *recorder) confirmCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.confirms)
}
