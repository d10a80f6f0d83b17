package backend

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// session holds the edits staged against one channel paramset. Only
// values that differ from the saved ones are staged.
type session struct {
	id     string
	ref    rpc.ChannelRef
	opened time.Time
	staged map[string]any
	undo   []map[string]any
	redo   []map[string]any
}

func (s *session) state() rpc.SessionState {
	return rpc.SessionState{
		IsDirty: len(s.staged) > 0,
		CanUndo: len(s.undo) > 0,
		CanRedo: len(s.redo) > 0,
	}
}

func (s *session) step() rpc.SessionStepResult {
	st := s.state()
	return rpc.SessionStepResult{Performed: true, IsDirty: st.IsDirty, CanUndo: st.CanUndo, CanRedo: st.CanRedo}
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

// open returns the session of ref, creating it if needed.
func (st *sessionStore) open(ref rpc.ChannelRef) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[ref.Key()]; ok {
		return s, false
	}
	s := &session{id: uuid.NewString(), ref: ref, opened: time.Now(), staged: make(map[string]any)}
	st.sessions[ref.Key()] = s
	return s, true
}

// with runs fn on the session of ref under the store lock.
func (st *sessionStore) with(ref rpc.ChannelRef, fn func(s *session) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[ref.Key()]
	if !ok {
		return rpc.Errorf(rpc.CodeNoSession, "no edit session for %s", ref.ChannelAddress)
	}
	return fn(s)
}

func (st *sessionStore) staged(ref rpc.ChannelRef) (map[string]any, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[ref.Key()]
	if !ok {
		return nil, false
	}
	return maps.Clone(s.staged), true
}

// close removes the session of ref if it is still s.
func (st *sessionStore) close(ref rpc.ChannelRef, s *session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sessions[ref.Key()] == s {
		delete(st.sessions, ref.Key())
	}
}

func (st *sessionStore) discard(ref rpc.ChannelRef) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[ref.Key()]
	delete(st.sessions, ref.Key())
	return ok
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// SessionOpen opens the edit session of ref, resuming an existing one.
func (s *Service) SessionOpen(ctx context.Context, ref rpc.ChannelRef) (*rpc.SuccessResult, error) {
	if _, _, err := s.channel(ctx, ref); err != nil {
		return nil, err
	}
	sess, created := s.sessions.open(ref)
	log.Debug().Str("session", sess.id).Str("channel", ref.ChannelAddress).Bool("created", created).Msg("Edit session opened")
	return &rpc.SuccessResult{Success: true}, nil
}

// SessionSet stages one edit. A value equal to the saved one removes the
// staging. Every staged value is validated and the errors returned; an
// invalid value is still staged so it can be corrected or undone.
func (s *Service) SessionSet(ctx context.Context, p rpc.SessionSetParams) (*rpc.SessionState, error) {
	fs, _, err := s.savedSchema(ctx, p.ChannelRef)
	if err != nil {
		return nil, err
	}
	param, ok := fs.Parameter(p.Parameter)
	if !ok {
		return nil, rpc.Errorf(rpc.CodeNotFound, "unknown parameter %s", p.Parameter)
	}
	if !param.Writable {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "parameter %s is read-only", p.Parameter)
	}

	var res rpc.SessionState
	err = s.sessions.with(p.ChannelRef, func(sess *session) error {
		prev, had := sess.staged[p.Parameter]
		same := paramset.Equal(param.CurrentValue, p.Value) && param.Type != paramset.TypeAction
		if (same && !had) || (had && paramset.Equal(prev, p.Value)) {
			res = sess.state()
			return nil
		}
		sess.undo = append(sess.undo, maps.Clone(sess.staged))
		sess.redo = nil
		if same {
			delete(sess.staged, p.Parameter)
		} else {
			sess.staged[p.Parameter] = p.Value
		}
		res = sess.state()
		return nil
	})
	if err != nil {
		return nil, err
	}
	staged, _ := s.sessions.staged(p.ChannelRef)
	res.ValidationErrors = s.validator.ValidateValues(fs.Parameters(), staged)
	return &res, nil
}

// SessionUndo restores the staging before the last edit.
func (s *Service) SessionUndo(_ context.Context, ref rpc.ChannelRef) (*rpc.SessionStepResult, error) {
	var res rpc.SessionStepResult
	err := s.sessions.with(ref, func(sess *session) error {
		if len(sess.undo) == 0 {
			st := sess.state()
			res = rpc.SessionStepResult{IsDirty: st.IsDirty, CanUndo: st.CanUndo, CanRedo: st.CanRedo}
			return nil
		}
		last := sess.undo[len(sess.undo)-1]
		sess.undo = sess.undo[:len(sess.undo)-1]
		sess.redo = append(sess.redo, sess.staged)
		sess.staged = last
		res = sess.step()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionRedo re-applies the last undone edit.
func (s *Service) SessionRedo(_ context.Context, ref rpc.ChannelRef) (*rpc.SessionStepResult, error) {
	var res rpc.SessionStepResult
	err := s.sessions.with(ref, func(sess *session) error {
		if len(sess.redo) == 0 {
			st := sess.state()
			res = rpc.SessionStepResult{IsDirty: st.IsDirty, CanUndo: st.CanUndo, CanRedo: st.CanRedo}
			return nil
		}
		next := sess.redo[len(sess.redo)-1]
		sess.redo = sess.redo[:len(sess.redo)-1]
		sess.undo = append(sess.undo, sess.staged)
		sess.staged = next
		res = sess.step()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionSave validates and writes every staged edit, logs them to the
// change history and closes the session. A rejected save keeps the
// session.
func (s *Service) SessionSave(ctx context.Context, ref rpc.ChannelRef) (*rpc.SessionSaveResult, error) {
	fs, d, err := s.savedSchema(ctx, ref)
	if err != nil {
		return nil, err
	}

	var sess *session
	var staged map[string]any
	err = s.sessions.with(ref, func(cur *session) error {
		sess = cur
		staged = maps.Clone(cur.staged)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if errs := s.validator.ValidateValues(fs.Parameters(), staged); errs != nil {
		return &rpc.SessionSaveResult{Validated: false, ValidationErrors: errs}, nil
	}
	applied, err := s.write(ctx, ref, fs, d, staged, paramset.SourceManual)
	if err != nil {
		return nil, err
	}
	s.sessions.close(ref, sess)
	log.Debug().Str("session", sess.id).Dur("age", time.Since(sess.opened)).Msg("Edit session saved")
	return &rpc.SessionSaveResult{Success: true, Validated: true, ChangesApplied: applied}, nil
}

// SessionDiscard drops the session of ref. Discarding a missing session
// succeeds.
func (s *Service) SessionDiscard(_ context.Context, ref rpc.ChannelRef) (*rpc.SuccessResult, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	if s.sessions.discard(ref) {
		log.Debug().Str("channel", ref.ChannelAddress).Msg("Edit session discarded")
	}
	return &rpc.SuccessResult{Success: true}, nil
}
