package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/deskpilot/deskpilot/pkg/types"
)

// ArkProvider implements Provider for Volcengine ARK endpoints.
type ArkProvider struct {
	cache  *modelCache
	models []types.Model
	config *ArkConfig
}

// ArkConfig holds configuration for ARK provider.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // Endpoint ID on ARK platform
	MaxTokens int
}

// NewArkProvider creates a new ARK provider. ARK serves exactly one
// endpoint per provider.
func NewArkProvider(config *ArkConfig) (*ArkProvider, error) {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("ARK_API_KEY")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY not set")
	}
	if config.Model == "" {
		config.Model = os.Getenv("ARK_MODEL_ID")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("ARK_MODEL_ID not set")
	}
	if config.BaseURL == "" {
		config.BaseURL = os.Getenv("ARK_BASE_URL")
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}

	p := &ArkProvider{models: arkModels(config.Model), config: config}
	p.cache = newModelCache(func(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
		maxTokens := config.MaxTokens
		cfg := &ark.ChatModelConfig{
			APIKey:    config.APIKey,
			Model:     modelID,
			MaxTokens: &maxTokens,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		chatModel, err := ark.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create ARK model: %w", err)
		}
		return chatModel, nil
	})
	return p, nil
}

// ID returns the provider identifier.
func (p *ArkProvider) ID() string { return "ark" }

// Name returns the human-readable provider name.
func (p *ArkProvider) Name() string { return "ARK" }

// Models returns the list of available models.
func (p *ArkProvider) Models() []types.Model {
	return p.models
}

// ChatModel returns the chat model for the configured endpoint.
func (p *ArkProvider) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	if modelID != p.config.Model {
		return nil, unknownModel(p.ID(), modelID)
	}
	return p.cache.get(ctx, modelID)
}
