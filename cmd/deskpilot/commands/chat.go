package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/orchestrator"
	"github.com/deskpilot/deskpilot/pkg/types"
)

var (
	chatSession int
	chatAttach  string
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt...]",
	Short: "Chat with the assistant",
	Long: `Send one prompt, or start an interactive conversation when no prompt
is given.

Inside the conversation:
  /compact          summarize and restart the conversation
  /attach <path>    send a file or image with the next message
  /detach           drop the pending attachment
  /session <n>      switch to conversation n
  /models           list available models
  /quit             leave

Examples:
  deskpilot chat "set a 10 minute timer for the oven"
  deskpilot chat --attach ~/Desktop/error.png "what does this dialog mean?"
  deskpilot chat --session 2`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVarP(&chatSession, "session", "s", int(orchestrator.DefaultSessionKey), "Conversation key")
	chatCmd.Flags().StringVarP(&chatAttach, "attach", "a", "", "File or image to send with the first message")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.orch.ForwardTo(a.bus)
	r := newRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr())
	defer r.attach(a.bus)()

	if chatAttach != "" {
		att, err := attachmentFor(chatAttach)
		if err != nil {
			return err
		}
		a.orch.SetPendingAttachment(att)
	}

	key := orchestrator.SessionKey(chatSession)
	if len(args) > 0 {
		return r.turn(ctx, a, strings.Join(args, " "), key)
	}
	return repl(ctx, a, r, cmd.InOrStdin(), key)
}

// repl reads prompts line by line until EOF, /quit or ctx is done.
func repl(ctx context.Context, a *app, r *renderer, in io.Reader, key orchestrator.SessionKey) error {
	fmt.Fprintf(r.errOut, "deskpilot %s, model %s. /quit to leave.\n", Version, a.source.Model())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(r.errOut, "[%d]> ", key)
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, arg, isCommand := parseCommand(line)
		if !isCommand {
			// Failures are printed by turn; the conversation goes on.
			_ = r.turn(ctx, a, line, key)
			continue
		}

		switch name {
		case "quit", "exit":
			return nil
		case "compact":
			result := a.orch.CompactSession(ctx, key)
			if !result.Success {
				fmt.Fprintf(r.errOut, "compact failed: %s\n", result.Error)
				continue
			}
			fmt.Fprintf(r.errOut, "conversation compacted (%d chars of summary)\n", len(result.Summary))
		case "attach":
			att, err := attachmentFor(arg)
			if err != nil {
				fmt.Fprintln(r.errOut, err)
				continue
			}
			a.orch.SetPendingAttachment(att)
			fmt.Fprintf(r.errOut, "attached %s %s\n", att.Type, att.DisplayName)
		case "detach":
			a.orch.SetPendingAttachment(nil)
		case "session":
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				fmt.Fprintln(r.errOut, "usage: /session <positive number>")
				continue
			}
			key = orchestrator.SessionKey(n)
		case "models":
			if err := printModels(ctx, a, r.out, ""); err != nil {
				fmt.Fprintln(r.errOut, err)
			}
		default:
			fmt.Fprintf(r.errOut, "unknown command /%s\n", name)
		}
	}
	return scanner.Err()
}

// parseCommand splits "/attach some file.png" into ("attach", "some file.png").
func parseCommand(line string) (name, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return strings.ToLower(name), strings.TrimSpace(arg), name != ""
}

// attachmentFor builds an attachment for an existing file. Common image
// extensions are sent as images.
func attachmentFor(path string) (*types.Attachment, error) {
	if path == "" {
		return nil, errors.New("usage: /attach <path>")
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot attach %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot attach %s: is a directory", path)
	}

	t := types.AttachmentFile
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		t = types.AttachmentImage
	}
	return &types.Attachment{Type: t, Path: abs, DisplayName: filepath.Base(abs)}, nil
}

// renderer prints bus events for a terminal user.
type renderer struct {
	out      io.Writer
	errOut   io.Writer
	streamed atomic.Bool
}

func newRenderer(out, errOut io.Writer) *renderer {
	return &renderer{out: out, errOut: errOut}
}

// attach subscribes to bus and returns the unsubscribe func.
func (r *renderer) attach(bus *event.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(event.StreamDelta, func(e event.Event) {
			if d, ok := e.Data.(event.StreamDeltaEvent); ok {
				r.streamed.Store(true)
				fmt.Fprint(r.out, d.Delta)
			}
		}),
		bus.Subscribe(event.ToolStarted, func(e event.Event) {
			if t, ok := e.Data.(event.ToolEvent); ok {
				fmt.Fprintf(r.errOut, "\n· %s\n", t.ToolName)
			}
		}),
		bus.Subscribe(event.WidgetRender, func(e event.Event) {
			if w, ok := e.Data.(event.WidgetEvent); ok {
				fmt.Fprintf(r.errOut, "%s\n", describeWidget(w))
			}
		}),
		bus.Subscribe(event.Screenshot, func(e event.Event) {
			if s, ok := e.Data.(event.ScreenshotEvent); ok {
				fmt.Fprintf(r.errOut, "[screenshot] %s%s\n", s.Path, s.URL)
			}
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// turn sends one prompt and prints the reply unless it was streamed.
func (r *renderer) turn(ctx context.Context, a *app, prompt string, key orchestrator.SessionKey) error {
	r.streamed.Store(false)
	res, err := a.orch.Send(ctx, prompt, key)
	if herr := a.history.Exchange(ctx, int(key), prompt, res.Attachment, res.Reply, err); herr != nil {
		logging.Warn().Err(herr).Msg("failed to record history")
	}
	if err != nil {
		fmt.Fprintf(r.errOut, "error: %v\n", err)
		return err
	}

	if !r.streamed.Load() {
		fmt.Fprint(r.out, res.Reply)
	}
	fmt.Fprintln(r.out)
	return nil
}

func describeWidget(w event.WidgetEvent) string {
	switch w.Type {
	case "timer":
		label := ""
		if w.Label != nil {
			label = " " + *w.Label
		}
		if w.Duration != nil {
			return fmt.Sprintf("[timer%s] %.0fs", label, *w.Duration)
		}
		return "[timer" + label + "]"
	case "world_clock":
		names := make([]string, 0, len(w.Cities))
		for _, c := range w.Cities {
			names = append(names, c.Name)
		}
		return "[world clock] " + strings.Join(names, ", ")
	case "wifi":
		if w.Connected != nil && *w.Connected && w.CurrentNetwork != nil && w.CurrentNetwork.Valid {
			return "[wifi] connected to " + w.CurrentNetwork.Value
		}
		return "[wifi] not connected"
	}
	return "[" + w.Type + "]"
}
