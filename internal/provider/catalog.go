package provider

import "github.com/deskpilot/deskpilot/pkg/types"

// capability flags for catalog entries. Every catalogued model calls tools;
// the desktop tools are the assistant's only way to act.
const (
	vision = 1 << iota
	reasoning
	promptCaching
	extendedOutput
)

// entry is one row of a provider's model catalogue. Prices are USD per
// million tokens.
type entry struct {
	id, name      string
	context, out  int
	input, output float64
	caps          int
}

func (e entry) model(providerID string) types.Model {
	return types.Model{
		ID:                e.id,
		Name:              e.name,
		ProviderID:        providerID,
		ContextLength:     e.context,
		MaxOutputTokens:   e.out,
		SupportsTools:     true,
		SupportsVision:    e.caps&vision != 0,
		SupportsReasoning: e.caps&reasoning != 0,
		InputPrice:        e.input,
		OutputPrice:       e.output,
		Options: types.ModelOptions{
			PromptCaching:  e.caps&promptCaching != 0,
			ExtendedOutput: e.caps&extendedOutput != 0,
		},
	}
}

func catalogue(providerID string, entries ...entry) []types.Model {
	models := make([]types.Model, len(entries))
	for i, e := range entries {
		models[i] = e.model(providerID)
	}
	return models
}

var anthropicCatalogue = []entry{
	{"claude-sonnet-4-20250514", "Claude Sonnet 4", 200000, 64000, 3, 15, vision | promptCaching | extendedOutput},
	{"claude-opus-4-20250514", "Claude Opus 4", 200000, 32000, 15, 75, vision | reasoning | promptCaching},
	{"claude-haiku-4-5-20251001", "Claude Haiku 4.5", 200000, 64000, 1, 5, vision | promptCaching},
	{"claude-3-5-sonnet-20241022", "Claude 3.5 Sonnet", 200000, 8192, 3, 15, vision | promptCaching},
	{"claude-3-5-haiku-20241022", "Claude 3.5 Haiku", 200000, 8192, 0.8, 4, vision},
}

var openAICatalogue = []entry{
	{"gpt-5", "GPT-5", 272000, 128000, 1.25, 10, vision | reasoning},
	{"gpt-5-mini", "GPT-5 Mini", 272000, 128000, 0.25, 2, vision | reasoning},
	{"gpt-5-nano", "GPT-5 Nano", 272000, 128000, 0.05, 0.4, vision},
	{"gpt-4o", "GPT-4o", 128000, 16384, 2.5, 10, vision},
	{"gpt-4o-mini", "GPT-4o Mini", 128000, 16384, 0.15, 0.6, vision},
}

// customModels describes models served by an OpenAI-compatible endpoint,
// whose limits and prices are unknown.
func customModels(providerID string, ids []string) []types.Model {
	entries := make([]entry, len(ids))
	for i, id := range ids {
		entries[i] = entry{id: id, name: id, context: 128000}
	}
	return catalogue(providerID, entries...)
}

func arkModels(endpointID string) []types.Model {
	return catalogue("ark", entry{id: endpointID, name: "ARK " + endpointID, context: 128000, out: 4096, caps: vision})
}
