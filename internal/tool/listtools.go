package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
)

// ListToolsTool lets the model see what it can do. It reads the registry at
// call time, so tools added later (MCP servers) are listed too.
type ListToolsTool struct {
	registry *Registry
}

type listToolsInput struct {
	Query string `json:"query,omitempty"`
}

type listToolsOutput struct {
	Tools       []toolSummary `json:"tools"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

type toolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func NewListToolsTool(registry *Registry) *ListToolsTool {
	return &ListToolsTool{registry: registry}
}

func (t *ListToolsTool) ID() string { return "list_tools" }

func (t *ListToolsTool) Description() string {
	return "List the tools available in this assistant, optionally filtered by a search word."
}

func (t *ListToolsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Only list tools whose name or description contains this word"}
		}
	}`)
}

func (t *ListToolsTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params listToolsInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}
	query := strings.ToLower(strings.TrimSpace(params.Query))

	tools := []toolSummary{}
	for _, tl := range t.registry.List() {
		if tl.ID() == t.ID() {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(tl.ID()), query) &&
			!strings.Contains(strings.ToLower(tl.Description()), query) {
			continue
		}
		tools = append(tools, toolSummary{Name: tl.ID(), Description: tl.Description()})
	}

	out := listToolsOutput{Tools: tools}
	if len(tools) == 0 && query != "" {
		out.Suggestions = t.registry.Suggest(query)
	}
	return JSONResult(fmt.Sprintf("%d tools", len(tools)), out)
}

func (t *ListToolsTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
