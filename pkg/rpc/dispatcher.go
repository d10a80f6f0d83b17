package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// HandlerFunc serves one method. The returned value is encoded as the result.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher routes requests to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewDispatcher creates an empty dispatcher. Its metrics are registered
// with reg when reg is non-nil.
func NewDispatcher(reg prometheus.Registerer) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "homai",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Remote calls served, by method and result code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "homai",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Latency of remote calls, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(d.calls, d.duration)
	}
	return d
}

// Handle registers h for method, replacing any previous handler.
func (d *Dispatcher) Handle(method string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = h
}

// Bind registers a typed handler whose params are decoded into P.
func Bind[P, R any](d *Dispatcher, method string, fn func(ctx context.Context, params P) (R, error)) {
	d.Handle(method, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, Errorf(CodeInvalidRequest, "invalid params for %s: %v", method, err)
			}
		}
		return fn(ctx, p)
	})
}

// Methods lists the registered method names.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch serves req and always returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	start := time.Now()
	resp := &Response{ID: req.ID}

	d.mu.RLock()
	h, ok := d.handlers[req.Method]
	d.mu.RUnlock()

	if !ok {
		resp.Error = Errorf(CodeUnknownMethod, "unknown method %q", req.Method)
		d.observe(req.Method, resp.Error.Code, start)
		return resp
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		resp.Error = toError(err)
		log.Debug().
			Str("method", req.Method).
			Str("code", resp.Error.Code).
			Err(err).
			Msg("rpc call failed")
		d.observe(req.Method, resp.Error.Code, start)
		return resp
	}

	b, err := json.Marshal(result)
	if err != nil {
		resp.Error = Errorf(CodeInternal, "failed to encode result: %v", err)
		d.observe(req.Method, resp.Error.Code, start)
		return resp
	}
	resp.Result = b
	d.observe(req.Method, "ok", start)
	return resp
}

func (d *Dispatcher) observe(method, code string, start time.Time) {
	d.calls.WithLabelValues(method, code).Inc()
	d.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func toError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}
