package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/deskpilot/deskpilot/pkg/types"
)

// ErrModelNotFound is returned when a "provider/model" string does not
// resolve to a registered model.
var ErrModelNotFound = errors.New("model not found")

// Provider represents an LLM provider backed by Eino chat models.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the Eino ChatModel serving modelID.
	ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error)
}

type modelFactory func(ctx context.Context, modelID string) (model.ToolCallingChatModel, error)

// modelCache builds one chat model per model ID and reuses it.
type modelCache struct {
	mu     sync.Mutex
	models map[string]model.ToolCallingChatModel
	build  modelFactory
}

func newModelCache(build modelFactory) *modelCache {
	return &modelCache{models: make(map[string]model.ToolCallingChatModel), build: build}
}

func (c *modelCache) get(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[modelID]; ok {
		return m, nil
	}
	m, err := c.build(ctx, modelID)
	if err != nil {
		return nil, err
	}
	c.models[modelID] = m
	return m, nil
}

// hasModel reports whether models lists modelID.
func hasModel(models []types.Model, modelID string) bool {
	for _, m := range models {
		if m.ID == modelID {
			return true
		}
	}
	return false
}

// filterModels applies a provider's whitelist and blacklist.
func filterModels(models []types.Model, whitelist, blacklist []string) []types.Model {
	if len(whitelist) == 0 && len(blacklist) == 0 {
		return models
	}
	allowed := make(map[string]bool, len(whitelist))
	for _, id := range whitelist {
		allowed[id] = true
	}
	denied := make(map[string]bool, len(blacklist))
	for _, id := range blacklist {
		denied[id] = true
	}

	out := make([]types.Model, 0, len(models))
	for _, m := range models {
		if len(allowed) > 0 && !allowed[m.ID] {
			continue
		}
		if denied[m.ID] {
			continue
		}
		out = append(out, m)
	}
	return out
}

func unknownModel(providerID, modelID string) error {
	return fmt.Errorf("%w: %s/%s", ErrModelNotFound, providerID, modelID)
}
