package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// DefaultModel is used when the configuration names no model.
const DefaultModel = "anthropic/claude-sonnet-4-20250514"

// Registry manages all available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID() < providers[j].ID() })
	return providers
}

// AllModels returns all models from all providers, best first.
func (r *Registry) AllModels() []types.Model {
	var models []types.Model
	for _, p := range r.List() {
		models = append(models, p.Models()...)
	}

	sort.SliceStable(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})
	return models
}

// ChatModel resolves a "provider/model" string to a chat model.
func (r *Registry) ChatModel(ctx context.Context, ref string) (model.ToolCallingChatModel, error) {
	providerID, modelID := ParseModelString(ref)
	if providerID == "" {
		return nil, fmt.Errorf("%w: %q has no provider prefix", ErrModelNotFound, ref)
	}
	p, err := r.Get(providerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelNotFound, err)
	}
	return p.ChatModel(ctx, modelID)
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 100
	case strings.Contains(modelID, "gpt-5"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "haiku"):
		return 75
	default:
		return 50
	}
}

// InitializeProviders creates and registers every provider the
// configuration enables. Providers without credentials are skipped.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry()

	enabled := func(id string) (types.ProviderConfig, bool) {
		cfg, ok := config.Provider[id]
		return cfg, ok && !cfg.Disable
	}

	if cfg, ok := enabled("anthropic"); ok && cfg.APIKey != "" {
		p, err := NewAnthropicProvider(&AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
		if err != nil {
			logging.Warn().Err(err).Str("provider", "anthropic").Msg("provider disabled")
		} else {
			p.models = filterModels(p.models, cfg.Whitelist, cfg.Blacklist)
			registry.Register(p)
		}
	}

	if cfg, ok := enabled("openai"); ok && cfg.APIKey != "" {
		oc := &OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}
		if cfg.Model != "" {
			oc.Models = []string{cfg.Model}
		}
		p, err := NewOpenAIProvider(oc)
		if err != nil {
			logging.Warn().Err(err).Str("provider", "openai").Msg("provider disabled")
		} else {
			p.models = filterModels(p.models, cfg.Whitelist, cfg.Blacklist)
			registry.Register(p)
		}
	}

	if cfg, ok := enabled("ark"); ok && cfg.APIKey != "" {
		p, err := NewArkProvider(&ArkConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			logging.Warn().Err(err).Str("provider", "ark").Msg("provider disabled")
		} else {
			registry.Register(p)
		}
	}

	if config.Scripted != nil {
		script := DefaultScript()
		if config.Scripted.File != "" {
			loaded, err := LoadScript(config.Scripted.File)
			if err != nil {
				return nil, err
			}
			script = loaded
		}
		registry.Register(NewScriptedProvider(script))
	}

	logging.Debug().Int("providers", len(registry.List())).Msg("providers initialized")
	return registry, nil
}
