package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/deskpilot/deskpilot/pkg/types"
)

// ScriptedProviderID is the provider ID of the offline scripted provider.
const ScriptedProviderID = "scripted"

// Script defines the YAML scenario a scripted model follows.
type Script struct {
	Models    []string       `yaml:"models"`
	Settings  ScriptSettings `yaml:"settings"`
	Fallback  string         `yaml:"fallback"`
	Responses []ResponseRule `yaml:"responses"`
	ToolRules []ToolRule     `yaml:"tool_rules"`
}

// ScriptSettings configures scripted model behavior.
type ScriptSettings struct {
	LagMS     int `yaml:"lag_ms"`     // Artificial delay before answering
	ChunkSize int `yaml:"chunk_size"` // Words per streamed chunk
}

// ResponseRule maps a prompt to a text reply, or to a failure when Error
// is set.
type ResponseRule struct {
	Name     string      `yaml:"name"`
	Match    MatchConfig `yaml:"match"`
	Response string      `yaml:"response"`
	Error    string      `yaml:"error"`
	Priority int         `yaml:"priority"`
}

// ToolRule makes the model call a tool when the prompt matches and the tool
// is bound.
type ToolRule struct {
	Name      string         `yaml:"name"`
	Match     MatchConfig    `yaml:"match"`
	Tool      string         `yaml:"tool"`
	ID        string         `yaml:"id"` // generated if empty
	Arguments map[string]any `yaml:"arguments"`
	Response  string         `yaml:"response"` // text alongside the call
	After     string         `yaml:"after"`    // reply once the tool result is back
	Priority  int            `yaml:"priority"`
}

// MatchConfig defines how to match a prompt. Matching is case-insensitive.
type MatchConfig struct {
	Contains    string   `yaml:"contains"`
	ContainsAll []string `yaml:"contains_all"`
	ContainsAny []string `yaml:"contains_any"`
	Exact       string   `yaml:"exact"`
	Regex       string   `yaml:"regex"`
}

// Matches checks if the prompt matches this rule.
func (m *MatchConfig) Matches(prompt string) bool {
	lower := strings.ToLower(prompt)

	switch {
	case m.Exact != "":
		return strings.EqualFold(strings.TrimSpace(prompt), m.Exact)
	case m.Contains != "":
		return strings.Contains(lower, strings.ToLower(m.Contains))
	case len(m.ContainsAll) > 0:
		for _, s := range m.ContainsAll {
			if !strings.Contains(lower, strings.ToLower(s)) {
				return false
			}
		}
		return true
	case len(m.ContainsAny) > 0:
		for _, s := range m.ContainsAny {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	case m.Regex != "":
		re, err := regexp.Compile("(?i)" + m.Regex)
		return err == nil && re.MatchString(prompt)
	}
	return false
}

// DefaultScript returns a scenario that exercises the built-in widget tools.
func DefaultScript() *Script {
	return &Script{
		Models:   []string{"default"},
		Settings: ScriptSettings{ChunkSize: 3},
		Fallback: "I understand. Let me know if you want me to do something on your desktop.",
		Responses: []ResponseRule{
			{Name: "greeting", Match: MatchConfig{ContainsAny: []string{"hello", "hi "}}, Response: "Hello! How can I help you today?"},
			{Name: "summary", Match: MatchConfig{Contains: "summarize the conversation"}, Response: "We chatted briefly. No open tasks.", Priority: 10},
		},
		ToolRules: []ToolRule{
			{
				Name:      "timer",
				Match:     MatchConfig{Contains: "timer"},
				Tool:      "timer",
				Arguments: map[string]any{"seconds": 300, "label": "Timer"},
				After:     "Your 5 minute timer is running.",
			},
			{
				Name:      "clock",
				Match:     MatchConfig{ContainsAny: []string{"what time", "world clock"}},
				Tool:      "world_clock",
				Arguments: map[string]any{"cities": []any{"London", "New York", "Tokyo"}},
				After:     "Here are the current times.",
			},
			{
				Name:  "wifi",
				Match: MatchConfig{Contains: "wifi"},
				Tool:  "wifi_status",
				After: "Here is your WiFi status.",
			},
			{
				Name:  "screenshot",
				Match: MatchConfig{Contains: "screenshot"},
				Tool:  "take_screenshot",
				After: "I took a screenshot.",
			},
		},
	}
}

// LoadScript loads a scenario from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	if len(script.Models) == 0 {
		script.Models = []string{"default"}
	}
	return &script, nil
}

func (s *Script) findResponse(prompt string) (*ResponseRule, bool) {
	var best *ResponseRule
	for i := range s.Responses {
		rule := &s.Responses[i]
		if rule.Match.Matches(prompt) && (best == nil || rule.Priority > best.Priority) {
			best = rule
		}
	}
	return best, best != nil
}

func (s *Script) findToolRule(prompt string, tools map[string]bool) *ToolRule {
	var best *ToolRule
	for i := range s.ToolRules {
		rule := &s.ToolRules[i]
		if !tools[rule.Tool] || !rule.Match.Matches(prompt) {
			continue
		}
		if best == nil || rule.Priority > best.Priority {
			best = rule
		}
	}
	return best
}

// ScriptedProvider serves scripted models. It needs no network access.
type ScriptedProvider struct {
	script *Script
	models []types.Model
}

// NewScriptedProvider creates a scripted provider. A nil script uses
// DefaultScript.
func NewScriptedProvider(script *Script) *ScriptedProvider {
	if script == nil {
		script = DefaultScript()
	}
	return &ScriptedProvider{script: script, models: customModels(ScriptedProviderID, script.Models)}
}

func (p *ScriptedProvider) ID() string            { return ScriptedProviderID }
func (p *ScriptedProvider) Name() string          { return "Scripted" }
func (p *ScriptedProvider) Models() []types.Model { return p.models }

func (p *ScriptedProvider) ChatModel(ctx context.Context, modelID string) (model.ToolCallingChatModel, error) {
	if !hasModel(p.models, modelID) {
		return nil, unknownModel(p.ID(), modelID)
	}
	return NewScriptedModel(modelID, p.script), nil
}

// ScriptedModel implements model.ToolCallingChatModel from a Script.
type ScriptedModel struct {
	modelID string
	script  *Script
	tools   map[string]bool
}

// NewScriptedModel creates a scripted chat model.
func NewScriptedModel(modelID string, script *Script) *ScriptedModel {
	return &ScriptedModel{modelID: modelID, script: script, tools: map[string]bool{}}
}

// WithTools returns a copy bound to tools.
func (m *ScriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound := make(map[string]bool, len(tools))
	for _, t := range tools {
		bound[t.Name] = true
	}
	return &ScriptedModel{modelID: m.modelID, script: m.script, tools: bound}, nil
}

func (m *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("scripted: empty conversation")
	}

	prompt := lastUserPrompt(input)
	msg := &schema.Message{Role: schema.Assistant}

	if last := input[len(input)-1]; last.Role == schema.Tool {
		msg.Content = "Done."
		if rule := m.script.findToolRule(prompt, m.tools); rule != nil && rule.After != "" {
			msg.Content = rule.After
		}
	} else if rule := m.script.findToolRule(prompt, m.tools); rule != nil {
		args, err := json.Marshal(rule.Arguments)
		if err != nil {
			return nil, fmt.Errorf("scripted: encode arguments for %s: %w", rule.Tool, err)
		}
		if rule.Arguments == nil {
			args = []byte("{}")
		}
		id := rule.ID
		if id == "" {
			id = "call_" + strings.ToLower(ulid.Make().String())
		}
		msg.Content = rule.Response
		msg.ToolCalls = []schema.ToolCall{{
			ID:       id,
			Type:     "function",
			Function: schema.FunctionCall{Name: rule.Tool, Arguments: string(args)},
		}}
	} else if rule, ok := m.script.findResponse(prompt); ok {
		if rule.Error != "" {
			return nil, fmt.Errorf("scripted: %s", rule.Error)
		}
		msg.Content = rule.Response
	} else {
		msg.Content = m.script.Fallback
	}

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: finish,
		Usage: &schema.TokenUsage{
			PromptTokens:     approxTokens(input...),
			CompletionTokens: approxTokens(msg),
		},
	}
	msg.ResponseMeta.Usage.TotalTokens = msg.ResponseMeta.Usage.PromptTokens + msg.ResponseMeta.Usage.CompletionTokens
	return msg, nil
}

// Stream splits the generated reply into word chunks. Tool calls and usage
// arrive with the last chunk.
func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}

	size := m.script.Settings.ChunkSize
	if size <= 0 {
		size = 1
	}
	words := strings.SplitAfter(msg.Content, " ")

	var chunks []*schema.Message
	for i := 0; i < len(words); i += size {
		end := min(i+size, len(words))
		text := strings.Join(words[i:end], "")
		if text == "" {
			continue
		}
		chunks = append(chunks, &schema.Message{Role: schema.Assistant, Content: text})
	}
	chunks = append(chunks, &schema.Message{
		Role:         schema.Assistant,
		ToolCalls:    msg.ToolCalls,
		ResponseMeta: msg.ResponseMeta,
	})
	return schema.StreamReaderFromArray(chunks), nil
}

func (m *ScriptedModel) wait(ctx context.Context) error {
	if m.script.Settings.LagMS <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(m.script.Settings.LagMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func lastUserPrompt(input []*schema.Message) string {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i].Role == schema.User {
			return input[i].Content
		}
	}
	return ""
}

func approxTokens(msgs ...*schema.Message) int {
	n := 0
	for _, msg := range msgs {
		n += (len(msg.Content) + 3) / 4
	}
	return n
}
