package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// ScreenshotToolID is the designated screenshot tool; its successful
// results produce screenshot events.
const ScreenshotToolID = "take_screenshot"

// ScreenshotTool captures the screen with an external command.
type ScreenshotTool struct {
	command []string
	dir     string
	now     func() time.Time
}

// ScreenshotInput is the input for the take_screenshot tool.
type ScreenshotInput struct {
	Filename string `json:"filename,omitempty"`
}

// ScreenshotOutput is the tool's JSON result.
type ScreenshotOutput struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	URL     string `json:"url,omitempty"`
}

// NewScreenshotTool creates the tool. Without a configured command it
// falls back to the platform's usual capture utility.
func NewScreenshotTool(cfg *types.ScreenshotConfig, defaultDir string) *ScreenshotTool {
	t := &ScreenshotTool{dir: defaultDir, now: time.Now}
	if cfg != nil {
		t.command = cfg.Command
		if cfg.Dir != "" {
			t.dir = cfg.Dir
		}
	}
	if len(t.command) == 0 {
		t.command = platformCaptureCommand()
	}
	if t.dir == "" {
		t.dir = os.TempDir()
	}
	return t
}

func platformCaptureCommand() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"screencapture", "-x"}
	case "linux":
		for _, candidate := range [][]string{{"grim"}, {"gnome-screenshot", "-f"}, {"import", "-window", "root"}} {
			if _, err := exec.LookPath(candidate[0]); err == nil {
				return candidate
			}
		}
	}
	return nil
}

func (t *ScreenshotTool) ID() string { return ScreenshotToolID }

func (t *ScreenshotTool) Description() string {
	return "Capture the screen to a PNG file. The image is attached to the next message so you can look at it."
}

func (t *ScreenshotTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filename": {"type": "string", "description": "Optional file name (without directory)"}
		}
	}`)
}

func (t *ScreenshotTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ScreenshotInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}
	if len(t.command) == 0 {
		return nil, fmt.Errorf("no screenshot command available on %s", runtime.GOOS)
	}

	name := filepath.Base(strings.TrimSpace(params.Filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("screenshot-%s.png", t.now().Format("20060102-150405"))
	}
	if filepath.Ext(name) == "" {
		name += ".png"
	}

	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(t.dir, name)

	args := append(append([]string{}, t.command[1:]...), path)
	out, err := exec.CommandContext(ctx, t.command[0], args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", t.command[0], err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("capture produced no file: %w", err)
	}

	return JSONResult("Screenshot", ScreenshotOutput{Success: true, Path: path})
}

func (t *ScreenshotTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
