package commands

import (
	"bytes"
	"context"
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
	"github.com/deskpilot/deskpilot/internal/orchestrator"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

func testApp(t *testing.T) (*app, *backendtest.Client) {
	t.Helper()
	client := backendtest.NewClient()
	source := config.NewSource(t.TempDir(), &types.Config{Model: "fake/m1"})
	bus := event.NewBus()
	tools := tool.NewRegistry()
	tools.Register(tool.NewTimerTool())

	a := &app{
		source:  source,
		bus:     bus,
		tools:   tools,
		history: history.New(storage.New(t.TempDir())),
		orch:    orchestrator.New(client, tools, source, orchestrator.WithBus(bus)),
	}
	a.orch.ForwardTo(bus)
	t.Cleanup(func() {
		a.orch.Cleanup(context.Background())
		bus.Close()
	})
	return a, client
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line, name, arg string
		ok              bool
	}{
		{"/compact", "compact", "", true},
		{"/attach my file.png", "attach", "my file.png", true},
		{"/Session  2", "session", "2", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		name, arg, ok := parseCommand(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		if tt.ok {
			assert.Equal(t, tt.name, name, tt.line)
			assert.Equal(t, tt.arg, arg, tt.line)
		}
	}
}

func TestAttachmentFor(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "shot.PNG")
	doc := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o644))

	a, err := attachmentFor(img)
	require.NoError(t, err)
	assert.Equal(t, types.AttachmentImage, a.Type)
	assert.Equal(t, "shot.PNG", a.DisplayName)

	a, err = attachmentFor(doc)
	require.NoError(t, err)
	assert.Equal(t, types.AttachmentFile, a.Type)

	_, err = attachmentFor(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
	_, err = attachmentFor(dir)
	assert.ErrorContains(t, err, "directory")
	_, err = attachmentFor("")
	assert.Error(t, err)
}

func TestDescribeWidget(t *testing.T) {
	d, label, yes := 300.0, "tea", true
	assert.Equal(t, "[timer tea] 300s", describeWidget(event.WidgetEvent{Type: "timer", Duration: &d, Label: &label}))
	assert.Equal(t, "[world clock] Tokyo, Paris", describeWidget(event.WidgetEvent{
		Type:   "world_clock",
		Cities: []event.City{{Name: "Tokyo"}, {Name: "Paris"}},
	}))
	assert.Equal(t, "[wifi] connected to home", describeWidget(event.WidgetEvent{
		Type:           "wifi",
		Connected:      &yes,
		CurrentNetwork: &event.NullableString{Value: "home", Valid: true},
	}))
	assert.Equal(t, "[wifi] not connected", describeWidget(event.WidgetEvent{Type: "wifi"}))
	assert.Equal(t, "[calendar]", describeWidget(event.WidgetEvent{Type: "calendar"}))
}

func TestSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.md"), []byte("Call me Sam.\n"), 0o644))

	assert.Equal(t, defaultSystemPrompt, systemPrompt(dir, &types.Config{}))

	got := systemPrompt(dir, &types.Config{
		SystemPrompt: "Be terse.",
		Instructions: []string{"extra.md", "missing.md"},
	})
	assert.Equal(t, "Be terse.\n\nCall me Sam.", got)
}

func TestREPL(t *testing.T) {
	a, client := testApp(t)
	client.SetReply(backendtest.Reply("hello there"))

	img := filepath.Join(t.TempDir(), "screen.png")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o644))

	input := strings.Join([]string{
		"hi",
		"/attach " + img,
		"what is this?",
		"/session 2",
		"again",
		"/compact",
		"/bogus",
		"/quit",
		"never sent",
	}, "\n")

	var out, errOut bytes.Buffer
	r := newRenderer(&out, &errOut)
	defer r.attach(a.bus)()

	require.NoError(t, repl(context.Background(), a, r, strings.NewReader(input), 1))

	assert.Equal(t, 3, strings.Count(out.String(), "hello there"))
	assert.Contains(t, errOut.String(), "attached image screen.png")
	assert.Contains(t, errOut.String(), "conversation compacted")
	assert.Contains(t, errOut.String(), "unknown command /bogus")

	sessions := a.orch.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, orchestrator.SessionKey(2), sessions[1].Key)

	first := client.Sessions()[0].Sent()
	require.Len(t, first, 2)
	assert.Empty(t, first[0].Attachments)
	require.Len(t, first[1].Attachments, 1)
	assert.Equal(t, img, first[1].Attachments[0].Path)

	entries, err := a.history.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Nil(t, entries[0].Attachment)
	require.NotNil(t, entries[2].Attachment)
	assert.Equal(t, img, entries[2].Attachment.Path)
}

func TestTurnPrintsErrors(t *testing.T) {
	a, client := testApp(t)
	client.SetReply(backendtest.Fail(assert.AnError))

	a.orch.SetPendingAttachment(&types.Attachment{Type: types.AttachmentFile, Path: "notes.txt"})

	var out, errOut bytes.Buffer
	r := newRenderer(&out, &errOut)
	err := r.turn(context.Background(), a, "hi", 1)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, errOut.String(), "error:")
	assert.Empty(t, out.String())

	entries, err := a.history.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Attachment)
	assert.Equal(t, "notes.txt", entries[0].Attachment.Path)
}
