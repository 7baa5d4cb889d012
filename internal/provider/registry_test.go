package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/deskpilot/pkg/types"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		in, provider, model string
	}{
		{"anthropic/claude-sonnet-4-20250514", "anthropic", "claude-sonnet-4-20250514"},
		{"openai/org/model", "openai", "org/model"},
		{"gpt-4o", "", "gpt-4o"},
	}
	for _, tt := range tests {
		p, m := ParseModelString(tt.in)
		assert.Equal(t, tt.provider, p, tt.in)
		assert.Equal(t, tt.model, m, tt.in)
	}
}

func TestFilterModels(t *testing.T) {
	models := []types.Model{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.Len(t, filterModels(models, nil, nil), 3)
	assert.Equal(t, []types.Model{{ID: "a"}, {ID: "c"}}, filterModels(models, []string{"a", "c"}, nil))
	assert.Equal(t, []types.Model{{ID: "b"}}, filterModels(models, nil, []string{"a", "c"}))
	assert.Equal(t, []types.Model{{ID: "a"}}, filterModels(models, []string{"a", "b"}, []string{"b"}))
}

func TestModelCache_BuildsOncePerModel(t *testing.T) {
	builds := 0
	cache := newModelCache(func(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
		builds++
		if modelID == "broken" {
			return nil, errors.New("no such endpoint")
		}
		return NewScriptedModel(modelID, DefaultScript()), nil
	})

	first, err := cache.get(context.Background(), "m1")
	require.NoError(t, err)
	second, err := cache.get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = cache.get(context.Background(), "broken")
	assert.Error(t, err)
	_, err = cache.get(context.Background(), "broken")
	assert.Error(t, err)
	assert.Equal(t, 3, builds, "failed builds are not cached")
}

func TestRegistry_AllModelsOrdering(t *testing.T) {
	r := NewRegistry()
	r.Register(NewScriptedProvider(&Script{Models: []string{"zzz"}}))
	p, err := NewAnthropicProvider(&AnthropicConfig{APIKey: "test"})
	require.NoError(t, err)
	r.Register(p)

	models := r.AllModels()
	require.NotEmpty(t, models)
	assert.Equal(t, "claude-sonnet-4-20250514", models[0].ID)
	assert.Equal(t, "zzz", models[len(models)-1].ID)

	ids := []string{}
	for _, p := range r.List() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"anthropic", "scripted"}, ids)
}

func TestProviders_RejectUnknownModels(t *testing.T) {
	ctx := context.Background()

	anthropic, err := NewAnthropicProvider(&AnthropicConfig{APIKey: "test"})
	require.NoError(t, err)
	_, err = anthropic.ChatModel(ctx, "gpt-4o")
	assert.ErrorIs(t, err, ErrModelNotFound)

	openai, err := NewOpenAIProvider(&OpenAIConfig{ID: "ollama", APIKey: "test", Models: []string{"llama3"}})
	require.NoError(t, err)
	assert.Equal(t, "ollama", openai.ID())
	assert.Equal(t, "ollama", openai.Models()[0].ProviderID)
	_, err = openai.ChatModel(ctx, "gpt-4o")
	assert.ErrorIs(t, err, ErrModelNotFound)

	ark, err := NewArkProvider(&ArkConfig{APIKey: "test", Model: "ep-123"})
	require.NoError(t, err)
	_, err = ark.ChatModel(ctx, "ep-456")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestNewProviders_RequireCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ARK_API_KEY", "")
	t.Setenv("ARK_MODEL_ID", "")

	_, err := NewAnthropicProvider(&AnthropicConfig{})
	assert.Error(t, err)
	_, err = NewOpenAIProvider(&OpenAIConfig{})
	assert.Error(t, err)
	_, err = NewArkProvider(&ArkConfig{APIKey: "k"})
	assert.ErrorContains(t, err, "ARK_MODEL_ID")
}

func TestInitializeProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [offline]\nfallback: ok\n"), 0644))

	cfg := &types.Config{
		Provider: map[string]types.ProviderConfig{
			"anthropic": {APIKey: "test", Whitelist: []string{"claude-3-5-haiku-20241022"}},
			"openai":    {APIKey: "test", Disable: true},
			"ark":       {},
		},
		Scripted: &types.ScriptedConfig{File: path},
	}

	r, err := InitializeProviders(context.Background(), cfg)
	require.NoError(t, err)

	ids := []string{}
	for _, m := range r.AllModels() {
		ids = append(ids, m.ProviderID+"/"+m.ID)
	}
	assert.ElementsMatch(t, []string{"anthropic/claude-3-5-haiku-20241022", "scripted/offline"}, ids)

	_, err = r.ChatModel(context.Background(), "scripted/offline")
	assert.NoError(t, err)
}

func TestInitializeProviders_BadScript(t *testing.T) {
	cfg := &types.Config{Scripted: &types.ScriptedConfig{File: filepath.Join(t.TempDir(), "missing.yaml")}}
	_, err := InitializeProviders(context.Background(), cfg)
	assert.Error(t, err)
}
