package eino

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/deskpilot/deskpilot/internal/backend"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

const (
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute

	maxAttachedFileSize = 64 * 1024
)

// newRetryBackoff creates an exponential backoff with jitter for model
// calls.
func newRetryBackoff(ctx context.Context, maxRetries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

type handlerEntry struct {
	id uint64
	fn func(backend.Event)
}

// Session is a conversation driven by an Eino chat model.
type Session struct {
	id        string
	model     string
	info      *types.Model
	chat      model.ToolCallingChatModel
	tools     *tool.Registry
	system    string
	stateDir  string
	streaming bool
	client    *Client

	// sendMu serializes messages; mu guards the fields below it.
	sendMu  sync.Mutex
	mu      sync.Mutex
	history []*schema.Message
	closed  bool
	started bool

	hmu      sync.RWMutex
	handlers []handlerEntry
	nextID   uint64
}

var _ backend.Session = (*Session)(nil)

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// On registers an event handler.
func (s *Session) On(handler func(backend.Event)) func() {
	s.hmu.Lock()
	defer s.hmu.Unlock()

	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, handlerEntry{id: id, fn: handler})

	return func() {
		s.hmu.Lock()
		defer s.hmu.Unlock()
		for i, h := range s.handlers {
			if h.id == id {
				s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) emit(e backend.Event) {
	s.hmu.RLock()
	handlers := make([]handlerEntry, len(s.handlers))
	copy(handlers, s.handlers)
	s.hmu.RUnlock()

	for _, h := range handlers {
		h.fn(e)
	}
}

// SendAndWait runs the tool-calling loop for one user message.
func (s *Session) SendAndWait(ctx context.Context, msg backend.MessageOptions, timeout time.Duration) (*backend.AssistantMessage, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, backend.ErrSessionClosed
	}
	first := !s.started
	s.started = true
	messages := append([]*schema.Message(nil), s.history...)
	s.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if first {
		s.emit(backend.SessionStartEvent{SessionID: s.id, Model: s.model})
	}

	messages = append(messages, buildUserMessage(msg))
	start := len(messages) - 1

	for step := 0; step < s.client.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, s.timeoutError(err, timeout)
		}

		messageID := "msg_" + strings.ToLower(ulid.Make().String())
		reply, err := s.generate(ctx, s.withSystem(messages), messageID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, s.timeoutError(ctx.Err(), timeout)
			}
			s.emit(backend.SessionErrorEvent{Message: err.Error()})
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		s.emitUsage(reply)
		messages = append(messages, reply)

		if len(reply.ToolCalls) == 0 {
			s.commit(ctx, messages[start:])
			return &backend.AssistantMessage{ID: messageID, Content: reply.Content}, nil
		}

		for _, call := range reply.ToolCalls {
			messages = append(messages, s.executeTool(ctx, call))
		}
	}

	return nil, fmt.Errorf("max steps (%d) exceeded", s.client.maxSteps)
}

func (s *Session) timeoutError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) && timeout > 0 {
		return fmt.Errorf("no response within %s: %w", timeout, err)
	}
	return err
}

func (s *Session) withSystem(messages []*schema.Message) []*schema.Message {
	if s.system == "" {
		return messages
	}
	return append([]*schema.Message{schema.SystemMessage(s.system)}, messages...)
}

// generate calls the model, retrying transient failures. Once streamed text
// has been emitted a failure is not retried.
func (s *Session) generate(ctx context.Context, messages []*schema.Message, messageID string) (*schema.Message, error) {
	var reply *schema.Message
	op := func() error {
		var emitted bool
		var err error
		if s.streaming {
			reply, emitted, err = s.stream(ctx, messages, messageID)
		} else {
			reply, err = s.chat.Generate(ctx, messages)
		}
		if err == nil {
			return nil
		}
		if emitted || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logging.Warn().Err(err).Str("session", s.id).Msg("model call failed, retrying")
		return err
	}

	if err := backoff.Retry(op, newRetryBackoff(ctx, s.client.maxRetries)); err != nil {
		return nil, err
	}
	return reply, nil
}

func (s *Session) stream(ctx context.Context, messages []*schema.Message, messageID string) (*schema.Message, bool, error) {
	reader, err := s.chat.Stream(ctx, messages)
	if err != nil {
		return nil, false, err
	}
	defer reader.Close()

	var chunks []*schema.Message
	emitted := false
	for {
		chunk, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, emitted, err
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			emitted = true
			s.emit(backend.MessageDeltaEvent{MessageID: messageID, DeltaContent: chunk.Content})
		}
	}
	if len(chunks) == 0 {
		return &schema.Message{Role: schema.Assistant}, emitted, nil
	}

	reply, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, emitted, fmt.Errorf("concat stream: %w", err)
	}
	return reply, emitted, nil
}

func (s *Session) emitUsage(reply *schema.Message) {
	if reply.ResponseMeta == nil || reply.ResponseMeta.Usage == nil {
		return
	}
	usage := reply.ResponseMeta.Usage
	in, out := usage.PromptTokens, usage.CompletionTokens
	e := backend.UsageEvent{Model: s.model, InputTokens: &in, OutputTokens: &out}
	if s.info != nil && (s.info.InputPrice > 0 || s.info.OutputPrice > 0) {
		cost := (float64(in)*s.info.InputPrice + float64(out)*s.info.OutputPrice) / 1e6
		e.Cost = &cost
	}
	s.emit(e)
}

// executeTool runs one tool call and returns the tool message for the
// model. Failures become error text rather than aborting the loop.
func (s *Session) executeTool(ctx context.Context, call schema.ToolCall) *schema.Message {
	name := call.Function.Name
	args := call.Function.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	s.emit(backend.ToolExecutionStartEvent{ToolCallID: call.ID, ToolName: name, Arguments: []byte(args)})

	complete := backend.ToolExecutionCompleteEvent{ToolCallID: call.ID, ToolName: name}
	var content string

	t, ok := s.tools.Get(name)
	if !ok {
		content = fmt.Sprintf("Error: unknown tool %q", name)
		if suggestions := s.tools.Suggest(name); len(suggestions) > 0 {
			content += fmt.Sprintf(". Did you mean %s?", strings.Join(suggestions, ", "))
		}
		complete.Error = content
	} else {
		tctx, cancel := context.WithTimeout(ctx, s.client.toolTimeout)
		result, err := t.Execute(tctx, []byte(args), &tool.Context{SessionID: s.id, CallID: call.ID, WorkDir: s.stateDir})
		cancel()

		switch {
		case err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			content = fmt.Sprintf("Error: %s timed out after %s", name, s.client.toolTimeout)
			complete.Error = content
		case err != nil:
			content = "Error: " + err.Error()
			complete.Error = err.Error()
		default:
			content = result.Output
			complete.Success = true
			complete.Result = &backend.ToolResult{Content: result.Output}
		}
	}

	logging.Debug().
		Str("session", s.id).
		Str("tool", name).
		Bool("success", complete.Success).
		Msg("tool executed")
	s.emit(complete)
	return schema.ToolMessage(content, call.ID)
}

// commit appends a finished exchange to the history and persists it.
func (s *Session) commit(ctx context.Context, exchange []*schema.Message) {
	s.mu.Lock()
	s.history = append(s.history, exchange...)
	history := append([]*schema.Message(nil), s.history...)
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}
	if err := s.client.store.Put(context.WithoutCancel(ctx), historyPath(s.id), history); err != nil {
		logging.Warn().Err(err).Str("session", s.id).Msg("failed to persist history")
	}
}

func (s *Session) loadHistory(ctx context.Context) error {
	var history []*schema.Message
	err := s.client.store.Get(ctx, historyPath(s.id), &history)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load history: %w", err)
	}
	s.history = history
	return nil
}

// Destroy closes the session. Its stored history stays until the client
// deletes it.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return backend.ErrSessionClosed
	}
	s.mu.Unlock()

	s.close()
	s.client.forget(s)
	return nil
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.hmu.Lock()
	s.handlers = nil
	s.hmu.Unlock()
}

// buildUserMessage turns the prompt and attachments into one user message.
// Images are inlined as data URLs; other files as text.
func buildUserMessage(msg backend.MessageOptions) *schema.Message {
	if len(msg.Attachments) == 0 {
		return schema.UserMessage(msg.Prompt)
	}

	text := msg.Prompt
	var images []schema.ChatMessagePart
	for _, a := range msg.Attachments {
		name := a.DisplayName
		if name == "" {
			name = filepath.Base(a.Path)
		}

		data, err := os.ReadFile(a.Path)
		if err != nil {
			logging.Warn().Err(err).Str("path", a.Path).Msg("attachment unreadable")
			text += fmt.Sprintf("\n\n[attachment %s could not be read]", name)
			continue
		}

		if a.Type == types.AttachmentImage {
			mimeType := mime.TypeByExtension(filepath.Ext(a.Path))
			if mimeType == "" {
				mimeType = "image/png"
			}
			images = append(images, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
					MIMEType: mimeType,
				},
			})
			text += fmt.Sprintf("\n\n[image attached: %s]", name)
			continue
		}

		if len(data) > maxAttachedFileSize {
			data = data[:maxAttachedFileSize]
		}
		text += fmt.Sprintf("\n\n<file name=%q>\n%s\n</file>", name, data)
	}

	user := schema.UserMessage(text)
	if len(images) > 0 {
		user.MultiContent = append([]schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: text}}, images...)
	}
	return user
}
