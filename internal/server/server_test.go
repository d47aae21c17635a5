package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebox-sh/codebox/internal/bash"
	"github.com/codebox-sh/codebox/internal/infrastructure/config"
	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
)

var (
	testSrv  *Server
	testOnce sync.Once
)

// testServer builds one shared server for the package: metrics
// register in the default Prometheus registry, so a second construction
// would collide.
func testServer(t *testing.T) *Server {
	t.Helper()
	testOnce.Do(func() {
		dir, err := os.MkdirTemp("", "codebox-server-test")
		if err != nil {
			t.Fatalf("temp dir: %v", err)
		}
		cfg := config.Default()
		cfg.Workspace.WorkDir = dir
		cfg.Jupyter.Enabled = false
		cfg.RateLimit.Enabled = false
		testSrv = New(cfg, logging.NewNop())
	})
	return testSrv
}

func do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	srv := testServer(t)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAlive(t *testing.T) {
	w := do(t, http.MethodGet, "/alive", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decode(t, w)["status"])
}

func TestRoot(t *testing.T) {
	w := do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "codebox-runtime", body["name"])
	assert.Equal(t, Version, body["version"])
}

func TestRequestIDHeader(t *testing.T) {
	w := do(t, http.MethodGet, "/alive", "")
	rid := w.Header().Get("X-Request-ID")
	assert.True(t, strings.HasPrefix(rid, "req_"), "got %q", rid)
}

func TestServerInfo(t *testing.T) {
	w := do(t, http.MethodGet, "/server_info", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "idle_time")
	assert.Contains(t, body, "resources")
}

func TestSystemStats(t *testing.T) {
	w := do(t, http.MethodGet, "/system/stats", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "memory")
	assert.Contains(t, body, "cpu")
	assert.Contains(t, body, "goroutines")
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "runtime_http_requests_total")
}

func TestExecuteActionRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing action", `{"args":{}}`},
		{"unknown action", `{"action":"fly","args":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, http.MethodPost, "/execute_action", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode(t, w), "detail")
		})
	}
}

func TestExecuteActionFileRoundTrip(t *testing.T) {
	wWrite := do(t, http.MethodPost, "/execute_action",
		`{"action":"write","args":{"path":"notes.txt","content":"remember"}}`)
	require.Equal(t, http.StatusOK, wWrite.Code)
	obsW := decode(t, wWrite)
	assert.Equal(t, "write", obsW["observation"])
	assert.Equal(t, "File written successfully", obsW["content"])

	wRead := do(t, http.MethodPost, "/execute_action",
		`{"action":"read","args":{"path":"notes.txt"}}`)
	require.Equal(t, http.StatusOK, wRead.Code)
	obsR := decode(t, wRead)
	assert.Equal(t, "read", obsR["observation"])
	assert.Equal(t, "remember", obsR["content"])
}

func TestExecuteActionIPythonBeforeInit(t *testing.T) {
	w := do(t, http.MethodPost, "/execute_action",
		`{"action":"run_ipython","args":{"code":"print(1)"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	obs := decode(t, w)
	assert.Equal(t, "run_ipython", obs["observation"])
	assert.Contains(t, obs["content"], "not initialized")
}

func TestViewFile(t *testing.T) {
	srv := testServer(t)
	path := srv.cfg.Workspace.WorkDir + "/view.txt"
	require.NoError(t, os.WriteFile(path, []byte("preview me"), 0o644))

	w := do(t, http.MethodGet, "/view-file?path="+path, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "preview me")
}

func TestViewFileErrors(t *testing.T) {
	w := do(t, http.MethodGet, "/view-file", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, http.MethodGet, "/view-file?path=/definitely/not/here.txt", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlugins(t *testing.T) {
	w := do(t, http.MethodGet, "/plugins", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	plugins, ok := body["plugins"].([]interface{})
	require.True(t, ok)
	require.Len(t, plugins, 1)
	p := plugins[0].(map[string]interface{})
	assert.Equal(t, "jupyter", p["name"])
	assert.Equal(t, false, p["initialized"])
}

func TestInitializeUnknownPlugin(t *testing.T) {
	w := do(t, http.MethodPost, "/plugins/matlab/initialize", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&bash.MultiStatementError{Statements: 2}, "multi_statement"},
		{&bash.ParseError{Err: assert.AnError}, "parse_error"},
		{&bash.DesyncError{SessionID: "default"}, "desync"},
		{bash.ErrCommandInFlight, "command_in_flight"},
		{bash.ErrAwaitingInput, "awaiting_input"},
		{bash.ErrNotAwaitingInput, "not_awaiting_input"},
		{bash.ErrEmptyCommand, "empty_command"},
		{bash.ErrSessionClosed, "session_closed"},
		{assert.AnError, "runtime_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyError(tt.err))
	}
}
