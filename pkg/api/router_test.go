package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "github.com/urmzd/homai-panel/docs"
	"github.com/urmzd/homai-panel/pkg/api/types"
	"github.com/urmzd/homai-panel/pkg/backend"
	"github.com/urmzd/homai-panel/pkg/db"
	"github.com/urmzd/homai-panel/pkg/editor"
	"github.com/urmzd/homai-panel/pkg/paramset"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

var thermostat = rpc.ChannelRef{EntryID: db.DefaultEntryID, ChannelAddress: "OEQ0000001:1", ParamsetKey: paramset.KeyMaster}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx))
	require.NoError(t, database.Bootstrap(ctx, true))

	reg := prometheus.NewRegistry()
	d := rpc.NewDispatcher(reg)
	svc := backend.New(database)
	svc.Register(d)

	router := NewRouter(Options{
		Dispatcher: d,
		Store:      database,
		Sessions:   svc.OpenSessions,
		Gatherer:   reg,
	})
	srv := httptest.NewServer(router.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/api/v1/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		var body types.HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "connected", body.Database)
	}
}

type downStore struct{}

func (downStore) PingContext(context.Context) error { return errors.New("disk gone") }

func TestHealthDegraded(t *testing.T) {
	router := NewRouter(Options{Dispatcher: rpc.NewDispatcher(nil), Store: downStore{}, Gatherer: prometheus.NewRegistry()})

	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body types.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unreachable", body.Database)
}

func TestRPCOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := rpc.NewClient(rpc.NewHTTPTransport(srv.URL, 5*time.Second))
	defer func() { _ = client.Close() }()
	ctx := context.Background()

	devices, err := client.ListDevices(ctx, db.DefaultEntryID)
	require.NoError(t, err)
	assert.Len(t, devices, 3)

	_, err = client.GetFormSchema(ctx, rpc.ChannelRef{EntryID: db.DefaultEntryID, ChannelAddress: "NOPE:1", ParamsetKey: paramset.KeyMaster})
	assert.ErrorIs(t, err, rpc.ErrNotFound)
}

func TestRPCRejectsMalformedEnvelope(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"no method", `{"id": "1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/rpc", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body types.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, rpc.CodeInvalidRequest, body.Error)
		})
	}
}

func TestMethods(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/rpc/methods")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body types.MethodsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 21, body.Count)
	assert.Contains(t, body.Methods, rpc.MethodSessionSave)
}

func TestEditSessionOverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	client := rpc.NewClient(rpc.NewWSTransport(srv.URL, 5*time.Second))
	defer func() { _ = client.Close() }()
	ctx := context.Background()

	c := editor.NewController(client, thermostat)
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.SetValue(ctx, "COMFORT_TEMPERATURE", 22.5))
	c.Wait()

	res, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, editor.SaveApplied, res.Outcome)

	values, err := client.GetParamset(ctx, thermostat)
	require.NoError(t, err)
	assert.Equal(t, 22.5, values["COMFORT_TEMPERATURE"])
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t)
	client := rpc.NewClient(rpc.NewHTTPTransport(srv.URL, 5*time.Second))
	_, err := client.ListDevices(context.Background(), db.DefaultEntryID)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `homai_rpc_calls_total{code="ok",method="list_devices"} 1`)
}

func TestDocsRedirect(t *testing.T) {
	router := NewRouter(Options{Dispatcher: rpc.NewDispatcher(nil), Store: downStore{}})

	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/swagger/index.html", w.Header().Get("Location"))
}

func TestSwaggerDoc(t *testing.T) {
	router := NewRouter(Options{Dispatcher: rpc.NewDispatcher(nil), Store: downStore{}})

	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		BasePath string                    `json:"basePath"`
		Schemes  []string                  `json:"schemes"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "/api/v1", doc.BasePath)
	assert.Equal(t, []string{"http", "https"}, doc.Schemes)
	assert.Contains(t, doc.Paths["/rpc"], "post")
	assert.Contains(t, doc.Paths, "/ws")
}

func TestRequestID(t *testing.T) {
	router := NewRouter(Options{Dispatcher: rpc.NewDispatcher(nil), Store: downStore{}})

	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rpc/methods", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rpc/methods", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}
