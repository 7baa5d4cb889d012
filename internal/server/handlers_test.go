package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/deskpilot/internal/backend/backendtest"
	"github.com/deskpilot/deskpilot/internal/config"
	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/history"
	"github.com/deskpilot/deskpilot/internal/metrics"
	"github.com/deskpilot/deskpilot/internal/orchestrator"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

type testEnv struct {
	srv     *Server
	client  *backendtest.Client
	history *history.Store
	metrics *metrics.Metrics
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	client := backendtest.NewClient()
	tools := tool.NewRegistry()
	tools.Register(tool.NewTimerTool())
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	source := config.NewSource(t.TempDir(), &types.Config{Model: "fake/m1"})
	orch := orchestrator.New(client, tools, source, orchestrator.WithBus(bus))
	t.Cleanup(func() { orch.Cleanup(context.Background()) })

	env := &testEnv{
		client:  client,
		history: history.New(storage.New(t.TempDir())),
		metrics: metrics.New(),
	}
	env.srv = New(nil, Deps{
		Orchestrator: orch,
		Tools:        tools,
		Bus:          bus,
		History:      env.history,
		Metrics:      env.metrics,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestChat(t *testing.T) {
	env := setupTestServer(t)
	env.client.SetReply(backendtest.Reply("It is sunny."))

	w := env.do(t, "POST", "/chat", ChatRequest{Prompt: "weather?", SessionKey: 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, ChatResponse{Reply: "It is sunny.", SessionKey: 3}, resp)

	entries, err := env.history.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, history.RoleUser, entries[0].Role)
	assert.Equal(t, "It is sunny.", entries[1].Content)

	w = env.do(t, "GET", "/session", nil)
	assert.Contains(t, w.Body.String(), `"sessionID":"deskpilot-3"`)
}

func TestChatDefaultsKey(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "POST", "/chat", ChatRequest{Prompt: "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sessionKey":1`)
}

func TestChatValidation(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/chat", ChatRequest{Prompt: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidRequest, decodeError(t, w).Code)

	req := httptest.NewRequest("POST", "/chat", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatBackendError(t *testing.T) {
	env := setupTestServer(t)
	env.client.SetReply(backendtest.Fail(errors.New("model overloaded")))

	w := env.do(t, "POST", "/chat", ChatRequest{Prompt: "hi", SessionKey: 2})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, ErrCodeBackendError, detail.Code)
	assert.Contains(t, detail.Message, "model overloaded")

	entries, err := env.history.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, history.RoleError, entries[1].Role)
}

func TestCompactSession(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "POST", "/session/4/compact", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, w).Code)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/chat", ChatRequest{Prompt: "hi", SessionKey: 4}).Code)

	w = env.do(t, "POST", "/session/4/compact", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result orchestrator.CompactResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "ok", result.Summary)

	w = env.do(t, "POST", "/session/zero/compact", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryRoutes(t *testing.T) {
	env := setupTestServer(t)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/chat", ChatRequest{Prompt: "hi", SessionKey: 5}).Code)

	w := env.do(t, "GET", "/session/5/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []history.Entry
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	assert.Len(t, entries, 2)

	assert.Equal(t, http.StatusOK, env.do(t, "DELETE", "/session/5/history", nil).Code)

	w = env.do(t, "GET", "/session/5/history", nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	assert.Empty(t, entries)
}

func TestAttachmentRoutes(t *testing.T) {
	env := setupTestServer(t)
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/attachment", nil).Code)

	w := env.do(t, "POST", "/attachment", types.Attachment{Type: types.AttachmentImage, Path: path})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "GET", "/attachment", nil)
	assert.Contains(t, w.Body.String(), "shot.png")

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/chat", ChatRequest{Prompt: "what is this?"}).Code)
	sent := env.client.Last().Sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, path, sent[0].Attachments[0].Path)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/attachment", nil).Code)

	w = env.do(t, "POST", "/attachment", types.Attachment{Path: filepath.Join(t.TempDir(), "missing")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "POST", "/attachment", types.Attachment{Type: "video", Path: path})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/attachment", types.Attachment{Path: path}).Code)
	assert.Equal(t, http.StatusOK, env.do(t, "DELETE", "/attachment", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/attachment", nil).Code)
}

func TestChatHistoryRecordsSentAttachment(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/attachment", types.Attachment{Type: types.AttachmentImage, Path: path}).Code)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/chat", ChatRequest{Prompt: "what is this?"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/chat", ChatRequest{Prompt: "and this?"}).Code)

	entries, err := env.history.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.NotNil(t, entries[0].Attachment)
	assert.Equal(t, path, entries[0].Attachment.Path)
	assert.Nil(t, entries[2].Attachment)

	env.client.Last().SetReply(backendtest.Fail(errors.New("overloaded")))
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/attachment", types.Attachment{Type: types.AttachmentImage, Path: path}).Code)
	assert.Equal(t, http.StatusBadGateway, env.do(t, "POST", "/chat", ChatRequest{Prompt: "try again"}).Code)

	entries, err = env.history.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	require.NotNil(t, entries[4].Attachment, "a failed send still consumed the attachment")
	assert.Equal(t, history.RoleError, entries[5].Role)
}

func TestModelsAndTools(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, "GET", "/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"m1"`)

	w = env.do(t, "GET", "/tools", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tools []ToolInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "timer", tools[0].ID)

	w = env.do(t, "GET", "/mcp", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestModelsBackendError(t *testing.T) {
	env := setupTestServer(t)
	env.client.SetStartErr(errors.New("no credentials"))

	w := env.do(t, "GET", "/models", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, ErrCodeBackendError, decodeError(t, w).Code)
}

func TestMetricsRoute(t *testing.T) {
	env := setupTestServer(t)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/chat", ChatRequest{Prompt: "hi"}).Code)

	w := env.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `deskpilot_chats_total{status="ok"} 1`)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(nil)
	assert.Equal(t, DefaultPort, cfg.Port)

	cfg = ConfigFrom(&types.ServerConfig{Port: 9000, CORSOrigins: []string{"app://deskpilot"}})
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"app://deskpilot"}, cfg.CORSOrigins)
}
