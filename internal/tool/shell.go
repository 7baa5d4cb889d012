package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const (
	DefaultShellTimeout = 30 * time.Second
	MaxShellTimeout     = 2 * time.Minute
	MaxOutputLength     = 30000
)

const shellDescription = `Runs a POSIX shell command on the user's machine and returns its output.

Usage:
- Use for desktop actions that have a command-line form (opening apps, adjusting settings, querying system state)
- Optional timeout in seconds (max 120)
- stdout and stderr are combined; long output is truncated
- A non-zero exit status is reported, not treated as a tool failure
- Commands that power off the machine, format disks or escalate privileges are refused`

// ShellTool runs commands through an embedded POSIX shell interpreter.
type ShellTool struct {
	workDir string
	policy  ShellPolicy
}

// ShellInput represents the input for the shell tool.
type ShellInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // seconds
}

// NewShellTool creates a shell tool. A nil policy means DefaultShellPolicy.
func NewShellTool(workDir string, policy ShellPolicy) *ShellTool {
	if policy == nil {
		policy = DefaultShellPolicy
	}
	return &ShellTool{workDir: workDir, policy: policy}
}

func (t *ShellTool) ID() string          { return "shell" }
func (t *ShellTool) Description() string { return shellDescription }

func (t *ShellTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The command to run"},
			"timeout": {"type": "integer", "description": "Optional timeout in seconds (max 120)"}
		},
		"required": ["command"]
	}`)
}

func (t *ShellTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ShellInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}

	prog, err := syntax.NewParser().Parse(strings.NewReader(params.Command), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if err := t.policy.Check(prog); err != nil {
		return nil, err
	}

	timeout := DefaultShellTimeout
	if params.Timeout > 0 {
		timeout = min(time.Duration(params.Timeout)*time.Second, MaxShellTimeout)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := t.workDir
	if toolCtx != nil && toolCtx.WorkDir != "" {
		dir = toolCtx.WorkDir
	}
	if dir == "" {
		dir, _ = os.Getwd()
	}

	var out bytes.Buffer
	runner, err := interp.New(
		interp.StdIO(nil, &out, &out),
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(os.Environ()...)),
	)
	if err != nil {
		return nil, fmt.Errorf("create shell: %w", err)
	}

	exitCode := 0
	runErr := runner.Run(runCtx, prog)
	var status interp.ExitStatus
	switch {
	case runErr == nil:
	case runCtx.Err() != nil:
		return nil, fmt.Errorf("command timed out after %s", timeout)
	case errors.As(runErr, &status):
		exitCode = int(status)
	default:
		return nil, fmt.Errorf("run command: %w", runErr)
	}

	output := out.String()
	if len(output) > MaxOutputLength {
		output = output[:MaxOutputLength] + "\n... (output truncated)"
	}
	if exitCode != 0 {
		output += fmt.Sprintf("\n(exit status %d)", exitCode)
	}

	return &Result{
		Title:    params.Command,
		Output:   output,
		Metadata: map[string]any{"exit": exitCode},
	}, nil
}

func (t *ShellTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
