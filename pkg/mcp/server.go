package mcp

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urmzd/homai-panel/pkg/clientcfg"
	"github.com/urmzd/homai-panel/pkg/device"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

// Backend is the set of remote calls the tools need. *rpc.Client
// implements it.
type Backend interface {
	editor.Backend
	editor.LinkBackend
	ListDevices(ctx context.Context, entryID string) ([]device.Device, error)
	GetChangeHistory(ctx context.Context, params rpc.HistoryParams) (*rpc.HistoryResult, error)
	ClearChangeHistory(ctx context.Context, entryID string) (*rpc.ClearHistoryResult, error)
	ListDeviceLinks(ctx context.Context, params rpc.DeviceLinksParams) ([]paramset.Link, error)
}

// Server wraps the MCP server with edit sessions over the paramset backend.
// Editors stay open across tool calls until closed.
type Server struct {
	mcpServer *server.MCPServer
	client    Backend
	cfg       clientcfg.Config
	tr        editor.Localizer

	mu      sync.Mutex
	editors map[string]*channelEditor
	links   map[string]*linkEditor
}

type channelEditor struct {
	ctrl   *editor.Controller
	toasts *toastLog
}

type linkEditor struct {
	ctrl   *editor.LinkController
	toasts *toastLog
}

// toastLog collects notifications until the next tool result picks them up.
type toastLog struct {
	mu   sync.Mutex
	msgs []string
}

func (t *toastLog) Notify(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, message)
}

func (t *toastLog) drain() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.msgs
	t.msgs = nil
	return out
}

type confirmKey struct{}

// confirmation carries the operator's answer for dialogs raised during one
// tool call. Tools without a confirm argument confirm everything.
type confirmation struct {
	allow bool
	asked *editor.ConfirmRequest
}

func withConfirmation(ctx context.Context, allow bool) (context.Context, *confirmation) {
	c := &confirmation{allow: allow}
	return context.WithValue(ctx, confirmKey{}, c), c
}

func confirmFromContext(ctx context.Context, req editor.ConfirmRequest) bool {
	c, ok := ctx.Value(confirmKey{}).(*confirmation)
	if !ok {
		return true
	}
	c.asked = &req
	return c.allow
}

// NewServer creates a new MCP server for paramset editing
func NewServer(client Backend, cfg clientcfg.Config) (*Server, error) {
	tr, err := cfg.Localizer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		client:  client,
		cfg:     cfg,
		tr:      tr,
		editors: make(map[string]*channelEditor),
		links:   make(map[string]*linkEditor),
	}

	// Create MCP server
	s.mcpServer = server.NewMCPServer(
		"homai-panel",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Register all tools
	s.registerTools()

	return s, nil
}

// ServeStdio starts the MCP server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Shutdown discards the server sessions of every open editor.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	editors := s.editors
	links := s.links
	s.editors = make(map[string]*channelEditor)
	s.links = make(map[string]*linkEditor)
	s.mu.Unlock()

	for _, e := range editors {
		e.ctrl.Close(ctx)
	}
	for _, l := range links {
		l.ctrl.Close(ctx)
	}
}

// openEditor returns the editor for ref, opening it on first use.
func (s *Server) openEditor(ctx context.Context, ref rpc.ChannelRef) (*channelEditor, error) {
	s.mu.Lock()
	e, ok := s.editors[ref.Key()]
	if !ok {
		toasts := &toastLog{}
		e = &channelEditor{
			ctrl: editor.NewController(s.client, ref,
				editor.WithNotifier(toasts),
				editor.WithLocalizer(s.tr),
				editor.WithConfirmer(editor.ConfirmFunc(confirmFromContext)),
			),
			toasts: toasts,
		}
		s.editors[ref.Key()] = e
	}
	s.mu.Unlock()

	if st := e.ctrl.State(); st == editor.StateIdle || st == editor.StateFailed {
		if err := e.ctrl.Open(ctx); err != nil {
			s.forgetEditor(ref, e)
			return nil, err
		}
	}
	return e, nil
}

// lookupEditor returns an already open editor.
func (s *Server) lookupEditor(ref rpc.ChannelRef) (*channelEditor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.editors[ref.Key()]
	return e, ok
}

func (s *Server) forgetEditor(ref rpc.ChannelRef, e *channelEditor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editors[ref.Key()] == e {
		delete(s.editors, ref.Key())
	}
}

func linkKey(ref rpc.LinkRef) string {
	return ref.EntryID + "/" + ref.InterfaceID + "/" + ref.ChannelAddress + "<-" + ref.PeerAddress
}

// openLinkEditor returns the editor for the link, opening it on first use.
func (s *Server) openLinkEditor(ctx context.Context, ref rpc.LinkRef) (*linkEditor, error) {
	key := linkKey(ref)
	s.mu.Lock()
	l, ok := s.links[key]
	if !ok {
		toasts := &toastLog{}
		l = &linkEditor{
			ctrl: editor.NewLinkController(s.client, ref,
				editor.WithNotifier(toasts),
				editor.WithLocalizer(s.tr),
				editor.WithConfirmer(editor.ConfirmFunc(confirmFromContext)),
			),
			toasts: toasts,
		}
		s.links[key] = l
	}
	s.mu.Unlock()

	if st := l.ctrl.State(); st == editor.StateIdle || st == editor.StateFailed {
		if err := l.ctrl.Open(ctx); err != nil {
			s.mu.Lock()
			if s.links[key] == l {
				delete(s.links, key)
			}
			s.mu.Unlock()
			return nil, err
		}
	}
	return l, nil
}

func (s *Server) lookupLinkEditor(ref rpc.LinkRef) (*linkEditor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[linkKey(ref)]
	return l, ok
}

func (s *Server) forgetLinkEditor(ref rpc.LinkRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, linkKey(ref))
}
