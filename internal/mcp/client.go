package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// Client manages MCP server connections using the official MCP SDK.
type Client struct {
	mu        sync.RWMutex
	servers   map[string]*mcpServer
	sdkClient *sdkmcp.Client
}

type mcpServer struct {
	name       string
	config     *Config
	session    *sdkmcp.ClientSession
	tools      []Tool
	status     Status
	error      string
	serverInfo *ServerInfo
}

// NewClient creates a client that identifies itself as deskpilot.
func NewClient() *Client {
	sdkClient := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "deskpilot",
		Version: "1.0.0",
	}, nil)

	return &Client{
		servers:   make(map[string]*mcpServer),
		sdkClient: sdkClient,
	}
}

// ConnectAll adds every configured server. A server that fails to connect
// is logged and recorded as failed; the others are still connected.
func (c *Client) ConnectAll(ctx context.Context, servers map[string]types.MCPConfig) int {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	connected := 0
	for _, name := range names {
		if err := c.AddServer(ctx, name, ConfigFrom(servers[name])); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("mcp server unavailable")
			continue
		}
		if st, err := c.GetServer(name); err == nil && st.Status == StatusConnected {
			connected++
			logging.Info().Str("server", name).Int("tools", st.ToolCount).Msg("mcp server connected")
		}
	}
	return connected
}

// AddServer adds and connects to an MCP server.
func (c *Client) AddServer(ctx context.Context, name string, config *Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.servers[name]; ok {
		return fmt.Errorf("server already exists: %s", name)
	}

	if !config.Enabled {
		c.servers[name] = &mcpServer{name: name, config: config, status: StatusDisabled}
		return nil
	}

	server, err := c.connectServer(ctx, name, config)
	if err != nil {
		c.servers[name] = &mcpServer{
			name:   name,
			config: config,
			status: StatusFailed,
			error:  err.Error(),
		}
		return err
	}

	c.servers[name] = server
	return nil
}

// candidate is one way of reaching a server. Remote servers have two.
type candidate struct {
	name      string
	transport sdkmcp.Transport
}

func transportsFor(config *Config) ([]candidate, error) {
	switch config.Type {
	case TransportTypeRemote:
		if config.URL == "" {
			return nil, fmt.Errorf("remote server has no url")
		}
		httpClient := httpClientWithHeaders(nil, config.Headers)
		return []candidate{
			{"streamable", &sdkmcp.StreamableClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
			{"sse", &sdkmcp.SSEClientTransport{Endpoint: config.URL, HTTPClient: httpClient}},
		}, nil

	case TransportTypeLocal, TransportTypeStdio:
		if len(config.Command) == 0 {
			return nil, fmt.Errorf("empty command")
		}
		cmd := exec.Command(config.Command[0], config.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range config.Environment {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return []candidate{{"stdio", &sdkmcp.CommandTransport{Command: cmd}}}, nil

	default:
		return nil, fmt.Errorf("unknown transport type: %s", config.Type)
	}
}

// connectServer tries each transport in turn and keeps the first that
// completes the handshake.
func (c *Client) connectServer(ctx context.Context, name string, config *Config) (*mcpServer, error) {
	timeout := time.Duration(config.Timeout) * time.Millisecond
	if timeout == 0 {
		timeout = DefaultTimeout * time.Millisecond
	}

	candidates, err := transportsFor(config)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", name, err)
	}

	server := &mcpServer{name: name, config: config, status: StatusConnecting}
	var errs []error
	for _, cand := range candidates {
		if err := c.connectWithTransport(ctx, cand.transport, timeout, server); err != nil {
			errs = append(errs, fmt.Errorf("%s transport: %w", cand.name, err))
			continue
		}
		server.status = StatusConnected
		return server, nil
	}
	return nil, errors.Join(errs...)
}

// connectWithTransport connects and lists the server's tools. Only the
// handshake is bounded by timeout; the session outlives it.
func (c *Client) connectWithTransport(ctx context.Context, transport sdkmcp.Transport, timeout time.Duration, server *mcpServer) error {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	session, err := c.sdkClient.Connect(connectCtx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if res := session.InitializeResult(); res != nil && res.ServerInfo != nil {
		server.serverInfo = &ServerInfo{Name: res.ServerInfo.Name, Version: res.ServerInfo.Version}
	}

	server.session = session
	if err := server.listTools(connectCtx); err != nil {
		session.Close()
		server.session = nil
		return fmt.Errorf("failed to list tools: %w", err)
	}
	return nil
}

func httpClientWithHeaders(base *http.Client, headers map[string]string) *http.Client {
	if base == nil {
		base = &http.Client{}
	}

	client := *base
	client.Timeout = 0 // per-request contexts bound the calls

	if len(headers) == 0 {
		return &client
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &headerRoundTripper{headers: headers, next: transport}
	return &client
}

type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	for k, v := range h.headers {
		cloned.Header.Set(k, v)
	}
	return h.next.RoundTrip(cloned)
}

func (s *mcpServer) listTools(ctx context.Context) error {
	if s.session == nil {
		return fmt.Errorf("not connected")
	}

	result, err := s.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	s.tools = make([]Tool, len(result.Tools))
	for i, t := range result.Tools {
		s.tools[i] = fromSDKTool(t)
	}
	return nil
}

// Tools returns the tools of every connected server, named
// "<server>_<tool>" and ordered by name.
func (c *Client) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []Tool
	for name, server := range c.servers {
		if server.status != StatusConnected {
			continue
		}
		for _, t := range server.tools {
			all = append(all, Tool{
				Name:        sanitizeToolName(name) + "_" + sanitizeToolName(t.Name),
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// resolve maps a prefixed tool name back to its server and the name the
// server knows it by.
func (c *Client) resolve(toolName string) (*mcpServer, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, server := range c.servers {
		if server.status != StatusConnected {
			continue
		}
		suffix, ok := strings.CutPrefix(toolName, sanitizeToolName(name)+"_")
		if !ok {
			continue
		}
		for _, t := range server.tools {
			if sanitizeToolName(t.Name) == suffix {
				return server, t.Name, true
			}
		}
	}
	return nil, "", false
}

// ExecuteTool calls a tool by its prefixed name and returns its text output.
func (c *Client) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	server, original, ok := c.resolve(toolName)
	if !ok {
		return "", fmt.Errorf("no server found for tool: %s", toolName)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("failed to parse arguments: %w", err)
		}
	}

	result, err := server.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: original, Arguments: arguments})
	if err != nil {
		return "", err
	}

	text := textContent(result.Content)
	switch {
	case !result.IsError:
		return text, nil
	case text == "":
		return "", fmt.Errorf("tool execution failed")
	default:
		return "", fmt.Errorf("tool error: %s", text)
	}
}

func textContent(contents []sdkmcp.Content) string {
	var out strings.Builder
	for _, content := range contents {
		if tc, ok := content.(*sdkmcp.TextContent); ok {
			out.WriteString(tc.Text)
		}
	}
	return out.String()
}

// Status returns the status of every server, ordered by name.
func (c *Client) Status() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := make([]ServerStatus, 0, len(c.servers))
	for name, server := range c.servers {
		status = append(status, server.statusOf(name))
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// GetServer returns the status of one server.
func (c *Client) GetServer(name string) (*ServerStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	server, ok := c.servers[name]
	if !ok {
		return nil, fmt.Errorf("server not found: %s", name)
	}
	s := server.statusOf(name)
	return &s, nil
}

func (s *mcpServer) statusOf(name string) ServerStatus {
	st := ServerStatus{
		Name:      name,
		Status:    s.status,
		ToolCount: len(s.tools),
		Server:    s.serverInfo,
	}
	if s.error != "" {
		msg := s.error
		st.Error = &msg
	}
	return st
}

// RemoveServer removes and disconnects a server.
func (c *Client) RemoveServer(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	server, ok := c.servers[name]
	if !ok {
		return fmt.Errorf("server not found: %s", name)
	}
	if server.session != nil {
		server.session.Close()
	}
	delete(c.servers, name)
	return nil
}

// Close disconnects all servers.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, server := range c.servers {
		if server.session != nil {
			server.session.Close()
		}
	}
	c.servers = make(map[string]*mcpServer)
	return nil
}

// ServerCount returns the number of configured servers.
func (c *Client) ServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers)
}

// ConnectedCount returns the number of connected servers.
func (c *Client) ConnectedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, server := range c.servers {
		if server.status == StatusConnected {
			count++
		}
	}
	return count
}

// sanitizeToolName replaces non-alphanumeric chars with underscore.
func sanitizeToolName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
