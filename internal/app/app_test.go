package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"alphaseeker/internal/config"
	"alphaseeker/internal/gateway/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	reply string
}

func (s stubProvider) ID() string    { return "stub" }
func (s stubProvider) Model() string { return "stub-1" }
func (s stubProvider) Call(context.Context, provider.ChatPayload) (string, error) {
	return s.reply, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.StaticDir = ""
	cfg.Storage.HistoryPath = filepath.Join(dir, "data", "history.jsonl")
	cfg.Storage.TraceDBPath = filepath.Join(dir, "data", "trace.db")
	cfg.Prompt.Dir = filepath.Join(dir, "prompts")
	return cfg
}

func TestBuildServesAnalyzeEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewAppBuilder(cfg, WithProvider(stubProvider{
		reply: "```json\n{\"company_name\":\"Apple\",\"valuation_verdict\":\"BUY\"}\n```",
	})).Build(context.Background())
	require.NoError(t, err)
	defer a.trace.Close()

	h := a.Server().Handler()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"ticker":"AAPL","price":190}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"company_name":"Apple"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tickers", nil))
	assert.JSONEq(t, `["AAPL"]`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/traces", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"purpose":"analyze"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `alphaseeker_ledger_writes_total{mode="append",result="ok"} 1`)

	assert.Contains(t, a.Summary.String(), "stub/stub-1")
}

func TestBuildWithoutTraceDB(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.TraceDBPath = ""
	a, err := NewAppBuilder(cfg, WithProvider(stubProvider{})).Build(context.Background())
	require.NoError(t, err)
	assert.Nil(t, a.trace)

	w := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/traces", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompt.Watch = true
	a, err := NewAppBuilder(cfg, WithProvider(stubProvider{})).Build(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewAppRejectsNilConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}
