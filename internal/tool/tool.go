// Package tool provides the desktop tool framework: the Tool contract, an
// ordered registry and the built-in leaf tools.
package tool

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool defines the interface for all tools.
type Tool interface {
	// ID returns the tool identifier.
	ID() string

	// Description returns the tool description.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() json.RawMessage

	// Execute executes the tool with the given input.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)

	// EinoTool returns an Eino-compatible tool implementation.
	EinoTool() einotool.InvokableTool
}

// Context provides execution context to tools.
type Context struct {
	SessionID string
	CallID    string
	WorkDir   string
}

// Result represents the output of a tool execution. Output is what the
// model sees; widget tools put a JSON object with a "widget" field there.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JSONResult marshals v into a Result's Output.
func JSONResult(title string, v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Result{Title: title, Output: string(data)}, nil
}

// BaseTool provides a base implementation for tools.
type BaseTool struct {
	id          string
	description string
	parameters  json.RawMessage
	execute     func(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// NewBaseTool creates a new base tool.
func NewBaseTool(id, description string, params json.RawMessage, execute func(context.Context, json.RawMessage, *Context) (*Result, error)) *BaseTool {
	return &BaseTool{
		id:          id,
		description: description,
		parameters:  params,
		execute:     execute,
	}
}

func (t *BaseTool) ID() string                  { return t.id }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) Parameters() json.RawMessage { return t.parameters }

func (t *BaseTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	return t.execute(ctx, input, toolCtx)
}

// EinoTool returns an Eino-compatible tool implementation.
func (t *BaseTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

// Info builds the eino tool description the chat model sees.
func Info(t Tool) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.ID(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaToParams(t.Parameters())),
	}
}

// einoToolWrapper wraps a Tool to implement Eino's InvokableTool interface.
type einoToolWrapper struct {
	tool Tool
}

func (w *einoToolWrapper) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return Info(w.tool), nil
}

func (w *einoToolWrapper) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := w.tool.Execute(ctx, json.RawMessage(argsJSON), &Context{})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}

type jsonSchemaProp struct {
	Type        string                    `json:"type"`
	Description string                    `json:"description"`
	Enum        []string                  `json:"enum"`
	Items       *jsonSchemaProp           `json:"items"`
	Properties  map[string]jsonSchemaProp `json:"properties"`
	Required    []string                  `json:"required"`
}

// parseJSONSchemaToParams converts JSON Schema to Eino ParameterInfo.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var root jsonSchemaProp
	if err := json.Unmarshal(schemaJSON, &root); err != nil {
		return nil
	}
	return convertProps(root.Properties, root.Required)
}

func convertProps(props map[string]jsonSchemaProp, required []string) map[string]*schema.ParameterInfo {
	requiredSet := make(map[string]bool, len(required))
	for _, r := range required {
		requiredSet[r] = true
	}

	params := make(map[string]*schema.ParameterInfo, len(props))
	for name, prop := range props {
		info := convertProp(prop)
		info.Required = requiredSet[name]
		params[name] = info
	}
	return params
}

func convertProp(prop jsonSchemaProp) *schema.ParameterInfo {
	info := &schema.ParameterInfo{
		Type: schema.String,
		Desc: prop.Description,
		Enum: prop.Enum,
	}
	switch prop.Type {
	case "integer":
		info.Type = schema.Integer
	case "number":
		info.Type = schema.Number
	case "boolean":
		info.Type = schema.Boolean
	case "array":
		info.Type = schema.Array
		if prop.Items != nil {
			info.ElemInfo = convertProp(*prop.Items)
		}
	case "object":
		info.Type = schema.Object
		if len(prop.Properties) > 0 {
			info.SubParams = convertProps(prop.Properties, prop.Required)
		}
	}
	return info
}
