// Package types holds the data shapes shared between deskpilot packages and
// the UI: configuration, model descriptors and attachments.
package types

// Config represents the deskpilot configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model selection
	Model      string `json:"model,omitempty"`       // "anthropic/claude-sonnet-4"
	SmallModel string `json:"small_model,omitempty"` // For summaries

	// System prompt given to every new session
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Additional instruction files appended to the system prompt
	Instructions []string `json:"instructions,omitempty"`

	// Tool enable/disable, keyed by glob pattern ("web*": false)
	Tools map[string]bool `json:"tools,omitempty"`

	// Shell command policy, keyed by command pattern ("git push *": "deny")
	Shell map[string]string `json:"shell,omitempty"`

	// Provider configs
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// MCP server configs
	MCP map[string]MCPConfig `json:"mcp,omitempty"`

	// HTTP surface
	Server *ServerConfig `json:"server,omitempty"`

	// Logging
	Log *LogConfig `json:"log,omitempty"`

	// Screenshot tool capture command, e.g. ["screencapture", "-x"]
	Screenshot *ScreenshotConfig `json:"screenshot,omitempty"`

	// Attach screenshots taken by the assistant to the next message
	AttachScreenshots bool `json:"attach_screenshots,omitempty"`

	// Scripted offline provider
	Scripted *ScriptedConfig `json:"scripted,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// Model/Endpoint ID (ARK addresses models by endpoint)
	Model string `json:"model,omitempty"`

	// Nested options
	Options *ProviderOptions `json:"options,omitempty"`

	// Model filtering
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Timeout *int   `json:"timeout,omitempty"` // ms, nil = default, 0 = disabled
}

// MCPConfig holds MCP server configuration.
type MCPConfig struct {
	Type        string            `json:"type,omitempty"` // "local"|"remote"
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Timeout     int               `json:"timeout,omitempty"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int      `json:"port,omitempty"`
	CORSOrigins []string `json:"cors,omitempty"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `json:"level,omitempty"`
	File  bool   `json:"file,omitempty"`
	Dir   string `json:"dir,omitempty"`
}

// ScreenshotConfig configures the take_screenshot tool.
type ScreenshotConfig struct {
	Command []string `json:"command,omitempty"` // output path is appended
	Dir     string   `json:"dir,omitempty"`
}

// ScriptedConfig points at a YAML scenario for the scripted provider.
type ScriptedConfig struct {
	File string `json:"file,omitempty"`
}

// Model represents an LLM model available from a provider.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	InputPrice        float64      `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice       float64      `json:"outputPrice,omitempty"` // per 1M tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions contains model-specific options.
type ModelOptions struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	PromptCaching  bool     `json:"promptCaching,omitempty"`
	ExtendedOutput bool     `json:"extendedOutput,omitempty"`
}
