package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Loopback is an in-process Transport that serves calls from a Dispatcher.
// Params and results go through the same JSON encoding as the network
// transports so values arrive with wire types (numbers as float64).
type Loopback struct {
	dispatcher *Dispatcher
	seq        atomic.Uint64
	closed     atomic.Bool
}

// NewLoopback returns a Transport bound to d.
func NewLoopback(d *Dispatcher) *Loopback {
	return &Loopback{dispatcher: d}
}

func (l *Loopback) Call(ctx context.Context, method string, params, result any) error {
	if l.closed.Load() {
		return ErrClosed
	}
	raw, err := encodeParams(params)
	if err != nil {
		return err
	}
	req := &Request{
		ID:     fmt.Sprintf("loop-%d", l.seq.Add(1)),
		Method: method,
		Params: raw,
	}
	resp := l.dispatcher.Dispatch(ctx, req)

	// Round-trip the envelope like a real connection would.
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	var decoded Response
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return decodeResult(&decoded, result)
}

func (l *Loopback) Close() error {
	l.closed.Store(true)
	return nil
}
