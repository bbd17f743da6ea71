package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examforge/gatekeeper/pkg/api/middleware"
	"examforge/gatekeeper/pkg/config"
	"examforge/gatekeeper/pkg/limits"
	"examforge/gatekeeper/pkg/limits/storage"
)

func newTestEngine(t *testing.T) (*limits.Engine, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	engine, err := limits.New(limits.Config{
		Backend:    storage.NewMemoryBackend(),
		Registerer: reg,
	})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine, reg
}

func newTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *limits.Engine) {
	t.Helper()

	engine, reg := newTestEngine(t)
	srv := New(Options{
		Config:   cfg,
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Engine:   engine,
		Gatherer: reg,
	})
	return srv, engine
}

func serve(srv *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "203.0.113.7:40000"
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Probes(t *testing.T) {
	srv, engine := newTestServer(t, config.Default().Server)

	w := serve(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = serve(srv, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, engine.Close())

	w = serve(srv, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, config.Default().Server)

	w := serve(srv, http.MethodPost, "/v1/ratelimit/auth", strings.NewReader(`{"identity":"user-1"}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `gatekeeper_policy_checks_total{policy="auth",result="allowed"} 1`)
	assert.Contains(t, body, `gatekeeper_http_requests_total{method="POST",route="/v1/ratelimit/{policy}",status="200"} 1`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	engine, reg := newTestEngine(t)
	srv := New(Options{Config: config.Default().Server, Engine: engine, Gatherer: reg})

	w := serve(srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_ThrottleAPI(t *testing.T) {
	cfg := config.Default().Server
	cfg.ThrottleAPI = true
	srv, _ := newTestServer(t, cfg)

	for i := 0; i < 300; i++ {
		w := serve(srv, http.MethodGet, "/v1/policies", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := serve(srv, http.MethodGet, "/v1/policies", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRetryAfter))

	// Probes are never throttled
	w = serve(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_NoThrottleByDefault(t *testing.T) {
	srv, engine := newTestServer(t, config.Default().Server)

	w := serve(srv, http.MethodGet, "/v1/policies", nil)
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := engine.PeekCounter(context.Background(), "api:203.0.113.7")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	cfg := config.Default().Server
	cfg.ShutdownTimeout = time.Second
	srv, _ := newTestServer(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, ln.Addr().String(), srv.Addr().String())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = http.Get(url)
	assert.Error(t, err)
}

func TestServer_StartInvalidAddress(t *testing.T) {
	cfg := config.Default().Server
	cfg.ListenAddress = "256.0.0.1:bad"
	srv, _ := newTestServer(t, cfg)

	assert.Error(t, srv.Start(context.Background()))
}
