package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/deskpilot/deskpilot/pkg/types"
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible
// endpoints.
type OpenAIProvider struct {
	cache  *modelCache
	models []types.Model
	config *OpenAIConfig
}

// OpenAIConfig holds configuration for OpenAI provider.
type OpenAIConfig struct {
	// ID is the provider identifier (e.g., "openai", "ollama").
	// If empty, defaults to "openai"
	ID        string
	APIKey    string
	BaseURL   string
	MaxTokens int

	// Models overrides the built-in model list, for compatible servers.
	Models []string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(config *OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}

	p := &OpenAIProvider{config: config}
	p.models = catalogue(p.ID(), openAICatalogue...)
	if len(config.Models) > 0 {
		p.models = customModels(p.ID(), config.Models)
	}

	p.cache = newModelCache(func(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
		maxTokens := config.MaxTokens
		cfg := &openai.ChatModelConfig{
			APIKey:              config.APIKey,
			Model:               modelID,
			MaxCompletionTokens: &maxTokens,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		chatModel, err := openai.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return chatModel, nil
	})
	return p, nil
}

// ID returns the provider identifier.
func (p *OpenAIProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "openai"
}

// Name returns the human-readable provider name.
func (p *OpenAIProvider) Name() string { return "OpenAI" }

// Models returns the list of available models.
func (p *OpenAIProvider) Models() []types.Model {
	return p.models
}

// ChatModel returns the OpenAI chat model for modelID.
func (p *OpenAIProvider) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	if !hasModel(p.models, modelID) {
		return nil, unknownModel(p.ID(), modelID)
	}
	return p.cache.get(ctx, modelID)
}
