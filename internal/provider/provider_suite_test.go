package provider_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/deskpilot/deskpilot/internal/provider"
)

func TestProviderSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Provider Suite")
}

var timerTool = &schema.ToolInfo{Name: "timer", Desc: "timer"}

var _ = Describe("ScriptedModel", func() {
	var (
		ctx    context.Context
		script *provider.Script
	)

	BeforeEach(func() {
		ctx = context.Background()
		script = &provider.Script{
			Models:   []string{"default"},
			Settings: provider.ScriptSettings{ChunkSize: 2},
			Fallback: "fallback reply",
			Responses: []provider.ResponseRule{
				{Match: provider.MatchConfig{Contains: "hello"}, Response: "Hi there friend", Priority: 1},
				{Match: provider.MatchConfig{ContainsAll: []string{"hello", "boss"}}, Response: "Good morning", Priority: 5},
				{Match: provider.MatchConfig{Exact: "break"}, Error: "dead"},
				{Match: provider.MatchConfig{Regex: `^ping\d+$`}, Response: "pong"},
			},
			ToolRules: []provider.ToolRule{
				{Match: provider.MatchConfig{Contains: "timer"}, Tool: "timer", ID: "c1",
					Arguments: map[string]any{"seconds": 60}, After: "Timer started."},
			},
		}
	})

	user := func(text string) []*schema.Message {
		return []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage(text)}
	}

	Describe("Generate", func() {
		It("answers with the highest priority matching rule", func() {
			m := provider.NewScriptedModel("default", script)
			msg, err := m.Generate(ctx, user("Hello boss"))
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Content).To(Equal("Good morning"))
			Expect(msg.ResponseMeta.Usage.TotalTokens).To(BeNumerically(">", 0))
		})

		It("falls back when nothing matches", func() {
			msg, err := provider.NewScriptedModel("default", script).Generate(ctx, user("weather?"))
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Content).To(Equal("fallback reply"))
		})

		It("matches regular expressions", func() {
			msg, err := provider.NewScriptedModel("default", script).Generate(ctx, user("PING42"))
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Content).To(Equal("pong"))
		})

		It("fails when the rule says so", func() {
			_, err := provider.NewScriptedModel("default", script).Generate(ctx, user("break"))
			Expect(err).To(MatchError(ContainSubstring("dead")))
		})

		It("calls a tool only when it is bound", func() {
			unbound := provider.NewScriptedModel("default", script)
			msg, err := unbound.Generate(ctx, user("start a timer"))
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.ToolCalls).To(BeEmpty())

			bound, err := unbound.WithTools([]*schema.ToolInfo{timerTool})
			Expect(err).NotTo(HaveOccurred())
			msg, err = bound.Generate(ctx, user("start a timer"))
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.ToolCalls).To(HaveLen(1))
			Expect(msg.ToolCalls[0].ID).To(Equal("c1"))
			Expect(msg.ToolCalls[0].Function.Name).To(Equal("timer"))
			Expect(msg.ToolCalls[0].Function.Arguments).To(MatchJSON(`{"seconds":60}`))
			Expect(msg.ResponseMeta.FinishReason).To(Equal("tool_calls"))
		})

		It("replies with the rule's follow-up after a tool result", func() {
			bound, _ := provider.NewScriptedModel("default", script).WithTools([]*schema.ToolInfo{timerTool})
			history := append(user("start a timer"),
				&schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: "timer"}}}},
				schema.ToolMessage(`{"widget":"timer"}`, "c1"),
			)
			msg, err := bound.Generate(ctx, history)
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Content).To(Equal("Timer started."))
			Expect(msg.ToolCalls).To(BeEmpty())
		})

		It("honours context cancellation while lagging", func() {
			script.Settings.LagMS = 5000
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := provider.NewScriptedModel("default", script).Generate(cctx, user("hello"))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	Describe("Stream", func() {
		It("streams word chunks that concatenate to the full reply", func() {
			reader, err := provider.NewScriptedModel("default", script).Stream(ctx, user("hello"))
			Expect(err).NotTo(HaveOccurred())
			defer reader.Close()

			var chunks []*schema.Message
			for {
				chunk, err := reader.Recv()
				if err == io.EOF {
					break
				}
				Expect(err).NotTo(HaveOccurred())
				chunks = append(chunks, chunk)
			}
			Expect(len(chunks)).To(BeNumerically(">=", 3))
			Expect(chunks[0].Content).To(Equal("Hi there "))

			full, err := schema.ConcatMessages(chunks)
			Expect(err).NotTo(HaveOccurred())
			Expect(full.Content).To(Equal("Hi there friend"))
			Expect(full.ResponseMeta).NotTo(BeNil())
		})
	})
})

var _ = Describe("Registry", func() {
	It("resolves provider/model references", func() {
		r := provider.NewRegistry()
		r.Register(provider.NewScriptedProvider(nil))

		m, err := r.ChatModel(context.Background(), "scripted/default")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).NotTo(BeNil())

		_, err = r.ChatModel(context.Background(), "scripted/nope")
		Expect(errors.Is(err, provider.ErrModelNotFound)).To(BeTrue())

		_, err = r.ChatModel(context.Background(), "missing/default")
		Expect(errors.Is(err, provider.ErrModelNotFound)).To(BeTrue())

		_, err = r.ChatModel(context.Background(), "default")
		Expect(errors.Is(err, provider.ErrModelNotFound)).To(BeTrue())
	})

	It("loads scripts from YAML", func() {
		path := filepath.Join(GinkgoT().TempDir(), "script.yaml")
		Expect(os.WriteFile(path, []byte(`
models: [fast, slow]
fallback: "meh"
responses:
  - match: {contains_any: ["yo", "sup"]}
    response: "hey"
tool_rules:
  - match: {contains: "clock"}
    tool: world_clock
    arguments:
      cities: [Tokyo, Paris]
`), 0644)).To(Succeed())

		script, err := provider.LoadScript(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(script.Models).To(Equal([]string{"fast", "slow"}))
		Expect(script.ToolRules[0].Arguments["cities"]).To(HaveLen(2))

		p := provider.NewScriptedProvider(script)
		Expect(p.Models()).To(HaveLen(2))
		Expect(p.Models()[0].ProviderID).To(Equal("scripted"))

		m, err := p.ChatModel(context.Background(), "fast")
		Expect(err).NotTo(HaveOccurred())
		bound, err := m.WithTools([]*schema.ToolInfo{{Name: "world_clock"}})
		Expect(err).NotTo(HaveOccurred())
		msg, err := bound.Generate(context.Background(), []*schema.Message{schema.UserMessage("show the clock")})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ToolCalls[0].Function.Arguments).To(MatchJSON(`{"cities":["Tokyo","Paris"]}`))
		Expect(msg.ToolCalls[0].ID).To(HavePrefix("call_"))
	})
})
