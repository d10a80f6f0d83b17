package rpc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSTransport multiplexes calls over one WebSocket connection. Responses
// are matched to waiting callers by request id, so they may arrive in any
// order. The connection is dialed on first use and redialed after a
// failure.
type WSTransport struct {
	url          string
	dialer       *websocket.Dialer
	writeTimeout time.Duration

	mu      sync.Mutex // guards conn and pending
	conn    *websocket.Conn
	pending map[string]pendingCall
	closed  bool

	writeMu sync.Mutex
}

// pendingCall is a caller waiting for a response on conn.
type pendingCall struct {
	conn *websocket.Conn
	ch   chan *Response
}

// NewWSTransport creates a transport for the backend at baseURL. http(s)
// schemes are rewritten to ws(s).
func NewWSTransport(baseURL string, writeTimeout time.Duration) *WSTransport {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSTransport{
		url:          u + "/api/v1/ws",
		dialer:       websocket.DefaultDialer,
		writeTimeout: writeTimeout,
		pending:      make(map[string]pendingCall),
	}
}

func (t *WSTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if t.conn != nil {
		return t.conn, nil
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, &Error{Code: CodeTransport, Message: fmt.Sprintf("dial %s: %v", t.url, err)}
	}
	t.conn = conn
	go t.readLoop(conn)

	log.Debug().Str("url", t.url).Msg("rpc websocket connected")
	return conn, nil
}

// readLoop delivers responses until the connection fails.
func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		var resp Response
		if err := conn.ReadJSON(&resp); err != nil {
			t.fail(conn, err)
			return
		}

		t.mu.Lock()
		call, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()

		if !ok {
			log.Debug().Str("id", resp.ID).Msg("rpc response without waiting caller")
			continue
		}
		call.ch <- &resp
	}
}

// fail drops conn and fails every caller waiting on it. Callers on a
// newer connection are left alone.
func (t *WSTransport) fail(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	pending := make(map[string]chan *Response)
	for id, call := range t.pending {
		if call.conn == conn {
			pending[id] = call.ch
			delete(t.pending, id)
		}
	}
	closed := t.closed
	t.mu.Unlock()

	_ = conn.Close()
	if !closed {
		log.Warn().Err(err).Str("url", t.url).Msg("rpc websocket connection lost")
	}

	for id, ch := range pending {
		ch <- &Response{ID: id, Error: &Error{Code: CodeTransport, Message: "connection lost"}}
	}
}

func (t *WSTransport) Call(ctx context.Context, method string, params, result any) error {
	raw, err := encodeParams(params)
	if err != nil {
		return err
	}
	conn, err := t.connect(ctx)
	if err != nil {
		return err
	}

	req := &Request{ID: uuid.NewString(), Method: method, Params: raw}
	ch := make(chan *Response, 1)

	t.mu.Lock()
	if t.conn != conn {
		// lost between dial and registration
		t.mu.Unlock()
		return &Error{Code: CodeTransport, Message: "connection lost"}
	}
	t.pending[req.ID] = pendingCall{conn: conn, ch: ch}
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	err = conn.WriteJSON(req)
	t.writeMu.Unlock()
	if err != nil {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
		t.fail(conn, err)
		return &Error{Code: CodeTransport, Message: err.Error()}
	}

	select {
	case resp := <-ch:
		return decodeResult(resp, result)
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
		return ctx.Err()
	}
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return conn.Close()
}
