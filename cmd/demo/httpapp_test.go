package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadedb/branchdata/internal/bootstrap"
)

func testApp(t *testing.T) *httpApp {
	t.Helper()

	cfg := &bootstrap.Config{
		DataDir:       t.TempDir(),
		RemoteBaseURL: "http://127.0.0.1:1",
		RemoteTimeout: 1000,
		CacheSize:     64,
	}

	return &httpApp{cfg: cfg, manager: bootstrap.NewManager(cfg), addr: ":0"}
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	a := testApp(t)
	app := newFiberApp(a)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleAction_InvalidBodyReturnsBadRequest(t *testing.T) {
	a := testApp(t)
	app := newFiberApp(a)

	req := httptest.NewRequest(http.MethodPost, "/actions", bytes.NewReader([]byte("not-json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAction_UnknownResourceReturnsBadRequest(t *testing.T) {
	a := testApp(t)
	app := newFiberApp(a)

	payload, err := json.Marshal(actionRequest{Action: "ghost.get", Data: map[string]any{"id": "n1"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/actions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-tenant-id", "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ghost")
}

func TestNewFiberApp_SetsCorrelationIDHeader(t *testing.T) {
	a := testApp(t)
	app := newFiberApp(a)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestHandleQueueStatus_ReturnsEmptyStatusForFreshTenant(t *testing.T) {
	a := testApp(t)
	app := newFiberApp(a)

	req := httptest.NewRequest(http.MethodGet, "/actions/queue", nil)
	req.Header.Set("x-tenant-id", "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Pending int `json:"Pending"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 0, status.Pending)
}
