package mcp

import (
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deskpilot/deskpilot/pkg/types"
)

// DefaultTimeout bounds connecting to a server and listing its tools.
const DefaultTimeout = 5000 // milliseconds

// Config defines one MCP server connection.
type Config struct {
	Enabled     bool              `json:"enabled"`
	Type        TransportType     `json:"type"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Timeout     int               `json:"timeout,omitempty"` // milliseconds
}

// ConfigFrom converts the config file form. A server without an explicit
// type is local when it has a command and remote otherwise.
func ConfigFrom(c types.MCPConfig) *Config {
	t := TransportType(c.Type)
	if t == "" {
		t = TransportTypeRemote
		if len(c.Command) > 0 {
			t = TransportTypeLocal
		}
	}
	return &Config{
		Enabled:     c.Enabled == nil || *c.Enabled,
		Type:        t,
		URL:         c.URL,
		Headers:     c.Headers,
		Command:     c.Command,
		Environment: c.Environment,
		Timeout:     c.Timeout,
	}
}

// TransportType represents the type of MCP transport.
type TransportType string

const (
	TransportTypeRemote TransportType = "remote"
	TransportTypeLocal  TransportType = "local"
	TransportTypeStdio  TransportType = "stdio"
)

// Tool is a tool offered by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// fromSDKTool copies the fields deskpilot needs. A schema that cannot be
// marshalled becomes an empty object schema.
func fromSDKTool(t *sdkmcp.Tool) Tool {
	schema, err := json.Marshal(t.InputSchema)
	if err != nil || string(schema) == "null" {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return Tool{Name: t.Name, Description: t.Description, InputSchema: schema}
}

// ServerStatus represents the status of an MCP server.
type ServerStatus struct {
	Name      string      `json:"name"`
	Status    Status      `json:"status"`
	ToolCount int         `json:"toolCount"`
	Server    *ServerInfo `json:"server,omitempty"`
	Error     *string     `json:"error,omitempty"`
}

// Status represents the connection status.
type Status string

const (
	StatusConnected  Status = "connected"
	StatusDisabled   Status = "disabled"
	StatusFailed     Status = "failed"
	StatusConnecting Status = "connecting"
)

// ServerInfo is what a server reports about itself on initialization.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
