// Package backend serves the paramset calls of the panel from the sqlite
// store: form schemas, server-held edit sessions, validation, change
// history, export/import and direct links.
package backend

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/db"
	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/device/schema"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// Service implements every remote call against a database. Last write
// wins; there are no version tokens.
type Service struct {
	db        *db.DB
	validator *schema.Validator
	sessions  *sessionStore
}

// New creates a Service backed by database.
func New(database *db.DB) *Service {
	return &Service{
		db:        database,
		validator: schema.NewValidator(),
		sessions:  newSessionStore(),
	}
}

// OpenSessions returns the number of edit sessions currently held.
func (s *Service) OpenSessions() int {
	return s.sessions.count()
}

// Register binds every call to d.
func (s *Service) Register(d *rpc.Dispatcher) {
	bind(d, rpc.MethodListDevices, s.ListDevices)
	bind(d, rpc.MethodGetFormSchema, s.GetFormSchema)
	bind(d, rpc.MethodGetParamset, s.GetParamset)
	bind(d, rpc.MethodPutParamset, s.PutParamset)
	bind(d, rpc.MethodSessionOpen, s.SessionOpen)
	bind(d, rpc.MethodSessionSet, s.SessionSet)
	bind(d, rpc.MethodSessionUndo, s.SessionUndo)
	bind(d, rpc.MethodSessionRedo, s.SessionRedo)
	bind(d, rpc.MethodSessionSave, s.SessionSave)
	bind(d, rpc.MethodSessionDiscard, s.SessionDiscard)
	bind(d, rpc.MethodExportParamset, s.ExportParamset)
	bind(d, rpc.MethodImportParamset, s.ImportParamset)
	bind(d, rpc.MethodGetChangeHistory, s.GetChangeHistory)
	bind(d, rpc.MethodClearChangeHistory, s.ClearChangeHistory)
	bind(d, rpc.MethodListDeviceLinks, s.ListDeviceLinks)
	bind(d, rpc.MethodGetLinkFormSchema, s.GetLinkFormSchema)
	bind(d, rpc.MethodGetLinkParamset, s.GetLinkParamset)
	bind(d, rpc.MethodPutLinkParamset, s.PutLinkParamset)
	bind(d, rpc.MethodAddLink, s.AddLink)
	bind(d, rpc.MethodRemoveLink, s.RemoveLink)
	bind(d, rpc.MethodGetLinkableChannels, s.GetLinkableChannels)
}

func bind[P, R any](d *rpc.Dispatcher, method string, fn func(context.Context, P) (R, error)) {
	rpc.Bind(d, method, func(ctx context.Context, p P) (R, error) {
		r, err := fn(ctx, p)
		if err != nil {
			return r, toRPCError(err)
		}
		return r, nil
	})
}

// toRPCError maps store sentinels to wire error codes.
func toRPCError(err error) error {
	var e *rpc.Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, device.ErrNotFound),
		errors.Is(err, device.ErrChannelNotFound),
		errors.Is(err, device.ErrParamsetNotFound),
		errors.Is(err, db.ErrLinkNotFound),
		errors.Is(err, db.ErrEntryNotFound):
		return &rpc.Error{Code: rpc.CodeNotFound, Message: err.Error()}
	case errors.Is(err, db.ErrLinkExists):
		return &rpc.Error{Code: rpc.CodeInvalidRequest, Message: err.Error()}
	}
	log.Error().Err(err).Msg("backend call failed")
	return &rpc.Error{Code: rpc.CodeInternal, Message: err.Error()}
}

func checkRef(ref rpc.ChannelRef) error {
	switch {
	case ref.EntryID == "":
		return rpc.Errorf(rpc.CodeInvalidRequest, "entry_id is required")
	case ref.ChannelAddress == "":
		return rpc.Errorf(rpc.CodeInvalidRequest, "channel_address is required")
	case ref.ParamsetKey == "":
		return rpc.Errorf(rpc.CodeInvalidRequest, "paramset_key is required")
	}
	return nil
}

// ListDevices returns the devices of an entry with their channels.
func (s *Service) ListDevices(ctx context.Context, p rpc.ListDevicesParams) (*rpc.ListDevicesResult, error) {
	if p.EntryID == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "entry_id is required")
	}
	devices, err := s.db.Devices().List(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}
	res := &rpc.ListDevicesResult{Devices: make([]device.Device, 0, len(devices))}
	for _, d := range devices {
		res.Devices = append(res.Devices, *d)
	}
	return res, nil
}

// channel resolves the device and channel of ref and checks that the
// channel exposes the paramset.
func (s *Service) channel(ctx context.Context, ref rpc.ChannelRef) (*device.Device, *device.Channel, error) {
	if err := checkRef(ref); err != nil {
		return nil, nil, err
	}
	d, err := s.db.Devices().GetByChannel(ctx, ref.EntryID, ref.ChannelAddress)
	if err != nil {
		return nil, nil, err
	}
	ch, ok := d.Channel(ref.ChannelAddress)
	if !ok {
		return nil, nil, device.ErrChannelNotFound
	}
	if !ch.HasParamset(ref.ParamsetKey) || ref.ParamsetKey == paramset.KeyLink {
		return nil, nil, device.ErrParamsetNotFound
	}
	return d, ch, nil
}

// savedSchema assembles the schema of ref from the stored description and
// saved values, without session overlay.
func (s *Service) savedSchema(ctx context.Context, ref rpc.ChannelRef) (*paramset.FormSchema, *device.Device, error) {
	d, ch, err := s.channel(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	sections, err := s.db.Paramsets().Description(ctx, ref.EntryID, ref.ChannelAddress, ref.ParamsetKey)
	if err != nil {
		return nil, nil, err
	}
	values, err := s.db.Paramsets().Values(ctx, ref.EntryID, ref.ChannelAddress, ref.ParamsetKey)
	if err != nil {
		return nil, nil, err
	}
	fs := &paramset.FormSchema{
		EntryID:        ref.EntryID,
		InterfaceID:    ref.InterfaceID,
		ChannelAddress: ref.ChannelAddress,
		ChannelType:    ch.Type,
		ParamsetKey:    ref.ParamsetKey,
		Sections:       fill(sections, values),
	}
	fs.Count()
	return fs, d, nil
}

// fill sets every parameter's current value from values, falling back to
// its default.
func fill(sections []paramset.Section, values map[string]any) []paramset.Section {
	for i := range sections {
		for j := range sections[i].Parameters {
			p := &sections[i].Parameters[j]
			if v, ok := values[p.ID]; ok {
				p.CurrentValue = v
			} else if p.Type != paramset.TypeAction {
				p.CurrentValue = p.Default
			}
		}
	}
	return sections
}

// GetFormSchema returns the schema of ref. Values staged in an open
// session replace the saved ones and are flagged as staged.
func (s *Service) GetFormSchema(ctx context.Context, ref rpc.ChannelRef) (*paramset.FormSchema, error) {
	fs, _, err := s.savedSchema(ctx, ref)
	if err != nil {
		return nil, err
	}
	staged, ok := s.sessions.staged(ref)
	if !ok {
		return fs, nil
	}
	for i := range fs.Sections {
		for j := range fs.Sections[i].Parameters {
			p := &fs.Sections[i].Parameters[j]
			if v, ok := staged[p.ID]; ok {
				p.SavedValue = p.CurrentValue
				p.CurrentValue = v
				p.Staged = true
			}
		}
	}
	fs.SessionDirty = len(staged) > 0
	return fs, nil
}

// GetParamset returns the saved values of ref.
func (s *Service) GetParamset(ctx context.Context, ref rpc.ChannelRef) (*rpc.ParamsetResult, error) {
	fs, _, err := s.savedSchema(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &rpc.ParamsetResult{Values: currentValues(fs)}, nil
}

func currentValues(fs *paramset.FormSchema) map[string]any {
	out := make(map[string]any)
	for _, p := range fs.Parameters() {
		if p.Type == paramset.TypeAction || p.CurrentValue == nil {
			continue
		}
		out[p.ID] = p.CurrentValue
	}
	return out
}

// PutParamset validates and writes values directly. Validation always
// runs; a rejection writes nothing.
func (s *Service) PutParamset(ctx context.Context, p rpc.PutParamsetParams) (*rpc.PutParamsetResult, error) {
	fs, d, err := s.savedSchema(ctx, p.ChannelRef)
	if err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateValues(fs.Parameters(), p.Values); errs != nil {
		return &rpc.PutParamsetResult{Validated: false, ValidationErrors: errs}, nil
	}
	if _, err := s.write(ctx, p.ChannelRef, fs, d, p.Values, paramset.SourceManual); err != nil {
		return nil, err
	}
	return &rpc.PutParamsetResult{Success: true, Validated: true}, nil
}

// write stores values and appends a history entry with the effective
// changes. Actions are executed, not stored. Returns the number of values
// applied.
func (s *Service) write(ctx context.Context, ref rpc.ChannelRef, fs *paramset.FormSchema, d *device.Device,
	values map[string]any, source paramset.ChangeSource) (int, error) {
	stored := make(map[string]any, len(values))
	changes := make(map[string]paramset.ValueChange)
	for id, v := range values {
		param, ok := fs.Parameter(id)
		if !ok {
			continue
		}
		if param.Type == paramset.TypeAction {
			changes[id] = paramset.ValueChange{Old: nil, New: v}
			log.Info().Str("channel", ref.ChannelAddress).Str("action", id).Msg("Action triggered")
			continue
		}
		stored[id] = v
		if !paramset.Equal(param.CurrentValue, v) {
			changes[id] = paramset.ValueChange{Old: param.CurrentValue, New: v}
		}
	}

	if len(stored) > 0 {
		if err := s.db.Paramsets().PutValues(ctx, ref.EntryID, ref.ChannelAddress, ref.ParamsetKey, stored); err != nil {
			return 0, err
		}
	}
	if len(changes) > 0 {
		entry := &paramset.HistoryEntry{
			EntryID:        ref.EntryID,
			DeviceAddress:  d.Address,
			DeviceName:     d.Name,
			ChannelAddress: ref.ChannelAddress,
			ParamsetKey:    ref.ParamsetKey,
			Changes:        changes,
			Source:         source,
		}
		if err := s.db.History().Append(ctx, entry); err != nil {
			return 0, err
		}
	}

	log.Info().
		Str("channel", ref.ChannelAddress).
		Str("paramset", ref.ParamsetKey).
		Int("values", len(values)).
		Str("source", string(source)).
		Msg("Paramset written")
	return len(values), nil
}
