package mcp

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/deskpilot/deskpilot/internal/tool"
)

// ToolWrapper exposes an MCP tool as a tool.Tool.
type ToolWrapper struct {
	mcpTool Tool
	client  *Client
}

var _ tool.Tool = (*ToolWrapper)(nil)

// NewToolWrapper wraps mcpTool, which must carry its prefixed name.
func NewToolWrapper(mcpTool Tool, client *Client) *ToolWrapper {
	return &ToolWrapper{mcpTool: mcpTool, client: client}
}

func (w *ToolWrapper) ID() string                  { return w.mcpTool.Name }
func (w *ToolWrapper) Description() string         { return w.mcpTool.Description }
func (w *ToolWrapper) Parameters() json.RawMessage { return w.mcpTool.InputSchema }

// Execute calls the tool on its server. The server's text output is passed
// through, so an MCP tool can produce widget JSON like a local one.
func (w *ToolWrapper) Execute(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
	output, err := w.client.ExecuteTool(ctx, w.mcpTool.Name, input)
	if err != nil {
		return nil, err
	}
	return &tool.Result{
		Title:    w.mcpTool.Name,
		Output:   output,
		Metadata: map[string]any{"type": "mcp"},
	}, nil
}

func (w *ToolWrapper) EinoTool() einotool.InvokableTool {
	return &einoWrapper{wrapper: w}
}

type einoWrapper struct {
	wrapper *ToolWrapper
}

func (e *einoWrapper) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return tool.Info(e.wrapper), nil
}

func (e *einoWrapper) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := e.wrapper.Execute(ctx, json.RawMessage(argsJSON), nil)
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

// RegisterTools registers every tool of every connected server and returns
// how many were added. Built-in tools with the same ID are replaced.
func RegisterTools(client *Client, registry *tool.Registry) int {
	if client == nil || registry == nil {
		return 0
	}
	tools := client.Tools()
	for _, t := range tools {
		registry.Register(NewToolWrapper(t, client))
	}
	return len(tools)
}
