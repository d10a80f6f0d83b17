package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 10 * time.Second

// ServeWS answers requests read from conn until the peer disconnects or
// ctx is done. Requests are dispatched concurrently and responses written
// as they complete, so they may be out of order.
func ServeWS(ctx context.Context, conn *websocket.Conn, d *Dispatcher) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
	)
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	write := func(resp *Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug().Err(err).Str("id", resp.ID).Msg("Failed to write rpc response")
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			write(&Response{Error: Errorf(CodeInvalidRequest, "malformed request: %v", err)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			write(d.Dispatch(ctx, &req))
		}()
	}
}
