package tool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, tl Tool, input string) (*Result, error) {
	t.Helper()
	return tl.Execute(context.Background(), json.RawMessage(input), &Context{WorkDir: t.TempDir()})
}

func decode(t *testing.T, output string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &m))
	return m
}

func TestTimerTool(t *testing.T) {
	res, err := run(t, NewTimerTool(), `{"seconds": 300, "label": "tea"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"widget":"timer","duration":300,"label":"tea"}`, res.Output)

	_, err = run(t, NewTimerTool(), `{"seconds": 0}`)
	assert.Error(t, err)
	_, err = run(t, NewTimerTool(), `{"seconds": 90000}`)
	assert.Error(t, err)
}

func TestWorldClockTool(t *testing.T) {
	res, err := run(t, NewWorldClockTool(), `{"cities": ["tokyo", "Europe/Paris", "utc"]}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"widget":"world_clock","cities":[
		{"name":"Tokyo","timezone":"Asia/Tokyo"},
		{"name":"Paris","timezone":"Europe/Paris"},
		{"name":"UTC","timezone":"UTC"}]}`, res.Output)

	res, err = run(t, NewWorldClockTool(), `{"cities": ["new york", "Atlantis"]}`)
	require.NoError(t, err)
	out := decode(t, res.Output)
	assert.Equal(t, "unknown cities: Atlantis", out["error"])
	assert.Len(t, out["cities"], 1)

	_, err = run(t, NewWorldClockTool(), `{"cities": ["Atlantis"]}`)
	assert.ErrorContains(t, err, "Atlantis")
}

func TestWifiStatusTool(t *testing.T) {
	connected := NewWifiStatusTool(WifiProberFunc(func(ctx context.Context) (WifiStatus, error) {
		return WifiStatus{Enabled: true, Connected: true, CurrentNetwork: "home", SavedNetworks: []string{"home", "office"}}, nil
	}))
	res, err := run(t, connected, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"widget":"wifi","enabled":true,"connected":true,"currentNetwork":"home","savedNetworks":["home","office"]}`, res.Output)

	disconnected := NewWifiStatusTool(WifiProberFunc(func(ctx context.Context) (WifiStatus, error) {
		return WifiStatus{Enabled: true}, nil
	}))
	res, err = run(t, disconnected, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"widget":"wifi","enabled":true,"connected":false,"currentNetwork":null}`, res.Output)

	broken := NewWifiStatusTool(WifiProberFunc(func(ctx context.Context) (WifiStatus, error) {
		return WifiStatus{}, ErrWifiUnavailable
	}))
	res, err = run(t, broken, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"widget":"wifi","error":"wifi status unavailable on this system"}`, res.Output)
}

func TestScreenshotTool(t *testing.T) {
	dir := t.TempDir()
	tl := NewScreenshotTool(&types.ScreenshotConfig{
		Command: []string{"sh", "-c", `printf png > "$0"`},
		Dir:     dir,
	}, "")
	tl.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	res, err := run(t, tl, `{}`)
	require.NoError(t, err)

	var out ScreenshotOutput
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	assert.True(t, out.Success)
	assert.Equal(t, filepath.Join(dir, "screenshot-20240301-120000.png"), out.Path)
	assert.FileExists(t, out.Path)

	res, err = run(t, tl, `{"filename": "../desk"}`)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	assert.Equal(t, filepath.Join(dir, "desk.png"), out.Path)
}

func TestScreenshotTool_CommandFailure(t *testing.T) {
	tl := NewScreenshotTool(&types.ScreenshotConfig{
		Command: []string{"sh", "-c", "echo denied >&2; exit 1"},
		Dir:     t.TempDir(),
	}, "")

	_, err := run(t, tl, `{}`)
	assert.ErrorContains(t, err, "denied")
}

func TestNotesTool(t *testing.T) {
	ctx := context.Background()
	store := storage.New(t.TempDir())
	notes := NewNotesTool(store)

	res, err := run(t, notes, `{"action": "list"}`)
	require.NoError(t, err)
	assert.Equal(t, "No notes yet.", res.Output)

	res, err = run(t, notes, `{"action": "write", "title": "Groceries", "content": "milk"}`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "+milk")
	assert.Equal(t, "groceries", res.Metadata["slug"])

	_, err = run(t, notes, `{"action": "append", "title": "groceries", "content": "eggs"}`)
	require.NoError(t, err)

	var note Note
	require.NoError(t, store.Get(ctx, []string{"notes", "groceries"}, &note))
	assert.Equal(t, "Groceries", note.Title)
	assert.Equal(t, "milk\neggs", note.Content)

	res, err = run(t, notes, `{"action": "read", "title": "Groceries"}`)
	require.NoError(t, err)
	assert.Equal(t, "milk\neggs", res.Output)

	_, err = run(t, notes, `{"action": "delete", "title": "Groceries"}`)
	require.NoError(t, err)
	_, err = run(t, notes, `{"action": "read", "title": "Groceries"}`)
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, notes, `{"action": "read"}`)
	assert.ErrorContains(t, err, "title is required")
}

func TestTodoTool(t *testing.T) {
	todo := NewTodoTool(storage.New(t.TempDir()))

	res, err := run(t, todo, `{}`)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, res.Output)

	res, err = run(t, todo, `{"todos": [
		{"id": "1", "content": "call mom", "status": "pending"},
		{"id": "2", "content": "pay rent", "status": "completed", "priority": "high"}
	]}`)
	require.NoError(t, err)
	assert.Equal(t, "1 todos", res.Title)
	assert.Equal(t, 2, res.Metadata["total"])

	res, err = run(t, todo, `{}`)
	require.NoError(t, err)
	var items []TodoItem
	require.NoError(t, json.Unmarshal([]byte(res.Output), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "medium", items[0].Priority)

	_, err = run(t, todo, `{"todos": [{"id": "3", "content": "x", "status": "someday"}]}`)
	assert.ErrorContains(t, err, "invalid status")
}

func TestShellTool(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0644))
	sh := NewShellTool(dir, nil)

	res, err := sh.Execute(context.Background(), json.RawMessage(`{"command": "cat hello.txt; echo done"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "hidone\n", res.Output)
	assert.Equal(t, 0, res.Metadata["exit"])

	res, err = sh.Execute(context.Background(), json.RawMessage(`{"command": "echo oops >&2; exit 3"}`), nil)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "oops")
	assert.Contains(t, res.Output, "(exit status 3)")
	assert.Equal(t, 3, res.Metadata["exit"])

	_, err = sh.Execute(context.Background(), json.RawMessage(`{"command": "echo 'unterminated"}`), nil)
	assert.ErrorContains(t, err, "parse command")

	_, err = sh.Execute(context.Background(), json.RawMessage(`{"command": "  "}`), nil)
	assert.Error(t, err)
}

func TestShellTool_Timeout(t *testing.T) {
	sh := NewShellTool(t.TempDir(), nil)
	_, err := sh.Execute(context.Background(), json.RawMessage(`{"command": "sleep 5", "timeout": 1}`), nil)
	assert.ErrorContains(t, err, "timed out")
}

func TestWebFetchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><script>var x=1;</script></head><body><nav>menu</nav><h1>Weather</h1><p>Sunny <b>today</b></p></body></html>`))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("just text"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	wf := NewWebFetchTool()

	res, err := run(t, wf, `{"url": "`+srv.URL+`/page"}`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "# Weather")
	assert.Contains(t, res.Output, "**today**")
	assert.NotContains(t, res.Output, "var x")
	assert.NotContains(t, res.Output, "menu")
	assert.Equal(t, http.StatusOK, res.Metadata["status"])
	assert.Equal(t, "Weather", res.Title)

	res, err = run(t, wf, `{"url": "`+srv.URL+`/page", "selector": "p", "format": "text"}`)
	require.NoError(t, err)
	assert.Equal(t, "Sunny today", res.Output)

	_, err = run(t, wf, `{"url": "`+srv.URL+`/page", "selector": "#forecast"}`)
	assert.ErrorContains(t, err, "matched nothing")

	res, err = run(t, wf, `{"url": "`+srv.URL+`/page", "format": "text"}`)
	require.NoError(t, err)
	assert.Contains(t, res.Output, "Sunny")
	assert.NotContains(t, res.Output, "<p>")

	res, err = run(t, wf, `{"url": "`+srv.URL+`/plain", "format": "markdown"}`)
	require.NoError(t, err)
	assert.Equal(t, "just text", res.Output)

	_, err = run(t, wf, `{"url": "`+srv.URL+`/missing"}`)
	assert.ErrorContains(t, err, "404")

	_, err = run(t, wf, `{"url": "ftp://example.com"}`)
	assert.Error(t, err)
	_, err = run(t, wf, `{"url": "`+srv.URL+`/page", "format": "pdf"}`)
	assert.Error(t, err)
}

func TestEinoToolWrapper(t *testing.T) {
	failing := NewBaseTool("fail", "always fails", json.RawMessage(`{"type":"object","properties":{}}`),
		func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
			return nil, errors.New("boom")
		})

	einoTimer := NewTimerTool().EinoTool()
	info, err := einoTimer.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "timer", info.Name)

	out, err := einoTimer.InvokableRun(context.Background(), `{"seconds": 5}`)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, `"widget":"timer"`))

	_, err = failing.EinoTool().InvokableRun(context.Background(), `{}`)
	assert.ErrorContains(t, err, "boom")
}

func TestListToolsTool(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewTimerTool())
	registry.Register(NewWorldClockTool())
	lister := NewListToolsTool(registry)
	registry.Register(lister)

	res, err := run(t, lister, `{}`)
	require.NoError(t, err)
	out := decode(t, res.Output)
	assert.Len(t, out["tools"], 2)
	assert.Equal(t, "2 tools", res.Title)

	// Tools registered after the lister show up on the next call.
	registry.Register(NewBaseTool("lights", "Switch the desk lamp", json.RawMessage(`{}`), nil))
	res, err = run(t, lister, `{"query": "lamp"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tools":[{"name":"lights","description":"Switch the desk lamp"}]}`, res.Output)

	res, err = run(t, lister, `{"query": "timr"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tools":[],"suggestions":["timer"]}`, res.Output)
}
