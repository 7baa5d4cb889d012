package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/deskpilot/deskpilot/pkg/types"
)

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	cache  *modelCache
	models []types.Model
	config *AnthropicConfig
}

// AnthropicConfig holds configuration for Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	MaxTokens int

	// Extended thinking support
	Thinking *claude.Thinking
}

// NewAnthropicProvider creates a new Anthropic provider. Chat models are
// built lazily per model ID.
func NewAnthropicProvider(config *AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 8192
	}

	p := &AnthropicProvider{models: catalogue("anthropic", anthropicCatalogue...), config: config}
	p.cache = newModelCache(func(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
		cfg := &claude.Config{
			APIKey:    config.APIKey,
			Model:     modelID,
			MaxTokens: config.MaxTokens,
			Thinking:  config.Thinking,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = &config.BaseURL
		}
		chatModel, err := claude.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude model: %w", err)
		}
		return chatModel, nil
	})
	return p, nil
}

// ID returns the provider identifier.
func (p *AnthropicProvider) ID() string { return "anthropic" }

// Name returns the human-readable provider name.
func (p *AnthropicProvider) Name() string { return "Anthropic" }

// Models returns the list of available models.
func (p *AnthropicProvider) Models() []types.Model {
	return p.models
}

// ChatModel returns the Claude chat model for modelID.
func (p *AnthropicProvider) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	if !hasModel(p.models, modelID) {
		return nil, unknownModel(p.ID(), modelID)
	}
	return p.cache.get(ctx, modelID)
}
