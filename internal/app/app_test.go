package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelens/internal/config"
	"tradelens/internal/errors"
	"tradelens/internal/middleware"
	"tradelens/internal/shared/testutil"
	handlers "tradelens/internal/transport/http"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Telemetry.EnableTracing = false
	cfg.Security.RateLimit.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *Application {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger, _ := testutil.NewTestLogger(t)
	app, err := New(cfg, logger)
	require.NoError(t, err)
	return app
}

func ledgerUpload(t *testing.T, target string, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(handlers.UploadField, name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(app *Application, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestNew(t *testing.T) {
	app := newTestApp(t, nil)

	assert.NotNil(t, app.Router)
	assert.NotNil(t, app.Server)
	assert.NotNil(t, app.LedgerService)
	assert.NotNil(t, app.HealthService)
	assert.NotNil(t, app.Metrics)
	assert.NotNil(t, app.OTelProviders.PrometheusHTTP)
	assert.Equal(t, ":0", app.Server.Addr)
	assert.Equal(t, app.Config.Server.MaxHeaderBytes, app.Server.MaxHeaderBytes)
}

func TestNewRejectsBadPipelineConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown timezone", mutate: func(c *config.Config) { c.Pipeline.Timezone = "Nowhere/Special" }},
		{name: "unknown group", mutate: func(c *config.Config) { c.Pipeline.DefaultGroups = []string{"minute"} }},
		{name: "unknown policy", mutate: func(c *config.Config) { c.Pipeline.RowErrorPolicy = "retry" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			logger, _ := testutil.NewTestLogger(t)

			app, err := New(cfg, logger)
			assert.Error(t, err)
			assert.Nil(t, app)
		})
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestRouter_Endpoints(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
		check          func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:           "health",
			method:         http.MethodGet,
			path:           "/api/health",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "ok", decode(t, rec)["status"])
			},
		},
		{
			name:           "readiness",
			method:         http.MethodGet,
			path:           "/api/health/ready",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, "ready", decode(t, rec)["status"])
			},
		},
		{
			name:           "liveness",
			method:         http.MethodGet,
			path:           "/api/health/live",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "version",
			method:         http.MethodGet,
			path:           "/api/version",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, decode(t, rec), "version")
			},
		},
		{
			name:           "client log",
			method:         http.MethodPost,
			path:           "/api/log",
			body:           `{"level":"info","message":"page loaded"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown route",
			method:         http.MethodGet,
			path:           "/api/nothing",
			expectedStatus: http.StatusNotFound,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, errors.TypeNotFound, decode(t, rec)["type"])
			},
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			path:           "/api/ledger/analyze",
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "metrics",
			method:         http.MethodGet,
			path:           "/metrics",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			rec := serve(app, req)

			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
			if tt.check != nil {
				tt.check(t, rec)
			}
		})
	}
}

func TestRouter_AnalyzeAndExport(t *testing.T) {
	app := newTestApp(t, nil)
	ledger := testutil.LedgerCSV(t,
		testutil.Trade("T1", "EUR/USD", "HIGH", 9, 0, 1950),
		testutil.Trade("T2", "EUR/USD", "LOW", 14, 30, 0),
		testutil.Trade("T3", "USD/JPY", "HIGH", 21, 15, 1950),
	)

	rec := serve(app, ledgerUpload(t, "/api/ledger/analyze?group=instrument", "ledger.csv", ledger))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data := decode(t, rec)["data"].(map[string]interface{})
	summary := data["summary"].(map[string]interface{})
	assert.Equal(t, float64(3), summary["total_trades"])
	assert.Equal(t, float64(2), summary["wins"])
	assert.Len(t, data["groups"], 1)

	rec = serve(app, ledgerUpload(t, "/api/ledger/export", "ledger.csv", ledger))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Body.String(), "T3")

	// pipeline counters reach the exposition endpoint
	rec = serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_rows_read_total")
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRouter_UploadLimit(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.Pipeline.MaxUploadBytes = 128 })
	ledger := testutil.LedgerCSV(t, testutil.Trade("T1", "EUR/USD", "HIGH", 9, 0, 1950))

	rec := serve(app, ledgerUpload(t, "/api/ledger/analyze", "ledger.csv", ledger))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.Telemetry.EnableMetrics = false })

	rec := serve(app, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		origin     string
		wantOrigin string
	}{
		{name: "allowed origin", enabled: true, origin: "http://localhost:8080", wantOrigin: "http://localhost:8080"},
		{name: "foreign origin", enabled: true, origin: "http://evil.example", wantOrigin: ""},
		{name: "disabled", enabled: false, origin: "http://localhost:8080", wantOrigin: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, func(c *config.Config) { c.Security.EnableCORS = tt.enabled })

			req := httptest.NewRequest(http.MethodOptions, "/api/ledger/analyze", nil)
			req.Header.Set("Origin", tt.origin)
			rec := serve(app, req)

			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRouter_RateLimit(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.Security.RateLimit.Enabled = true
		c.Security.RateLimit.RPS = 0.001
		c.Security.RateLimit.Burst = 1
	})

	first := serve(app, httptest.NewRequest(http.MethodGet, "/api/health/live", nil))
	second := serve(app, httptest.NewRequest(http.MethodGet, "/api/health/live", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestApplication_StartStop(t *testing.T) {
	app := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Start(ctx, cancel))
	assert.NoError(t, app.Stop(context.Background()))
	assert.NoError(t, ctx.Err())

	// a shut down server refuses to serve again
	assert.ErrorIs(t, app.Server.ListenAndServe(), http.ErrServerClosed)
}
