// Package desktop serves deskpilot's local tools as an MCP server, so other
// MCP clients (and deskpilot itself, as an external server) can call them.
package desktop

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/tool"
)

// NewServer creates an MCP server exposing every tool in reg. The tool's
// JSON schema is passed through unchanged.
func NewServer(reg *tool.Registry) *server.MCPServer {
	s := server.NewMCPServer(
		"deskpilot-desktop",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	for _, t := range reg.List() {
		s.AddTool(mcp.NewToolWithRawSchema(t.ID(), t.Description(), t.Parameters()), handlerFor(t))
	}
	return s
}

// handlerFor adapts a tool to an MCP handler. Tool failures are returned
// as error results rather than protocol errors.
func handlerFor(t tool.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		input, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		result, err := t.Execute(ctx, input, &tool.Context{SessionID: "mcp"})
		if err != nil {
			logging.Debug().Err(err).Str("tool", t.ID()).Msg("mcp tool call failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(result.Output), nil
	}
}
