// Package eino implements backend.Client in-process on top of Eino chat
// models. Each session runs its own tool-calling loop and keeps its history
// in storage so a session can be resumed by ID.
package eino

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/deskpilot/deskpilot/internal/backend"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/provider"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

const (
	// DefaultToolTimeout bounds a single tool execution.
	DefaultToolTimeout = 30 * time.Second
	// MaxSteps is the maximum number of model calls per message.
	MaxSteps = 25
	// MaxRetries is the maximum number of retries for model errors.
	MaxRetries = 3
)

var errNotStarted = errors.New("backend client not started")

// ModelResolver resolves "provider/model" references. provider.Registry
// implements it.
type ModelResolver interface {
	ChatModel(ctx context.Context, ref string) (model.ToolCallingChatModel, error)
	AllModels() []types.Model
}

// Client runs sessions in-process.
type Client struct {
	models ModelResolver
	store  *storage.Storage

	toolTimeout time.Duration
	maxSteps    int
	maxRetries  uint64

	mu        sync.Mutex
	started   bool
	sessions  map[string]*Session
	stateDirs map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithToolTimeout sets the per-tool execution timeout.
func WithToolTimeout(d time.Duration) Option {
	return func(c *Client) { c.toolTimeout = d }
}

// WithMaxSteps sets the model-call limit per message.
func WithMaxSteps(n int) Option {
	return func(c *Client) { c.maxSteps = n }
}

// WithMaxRetries sets how often a failed model call is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a client. Session history is stored under
// "sessions/<id>" in store.
func NewClient(models ModelResolver, store *storage.Storage, opts ...Option) *Client {
	c := &Client{
		models:      models,
		store:       store,
		toolTimeout: DefaultToolTimeout,
		maxSteps:    MaxSteps,
		maxRetries:  MaxRetries,
		sessions:    make(map[string]*Session),
		stateDirs:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start checks that at least one model is available.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	if len(c.models.AllModels()) == 0 {
		return fmt.Errorf("no models available: configure a provider")
	}
	c.started = true
	logging.Info().Msg("backend client started")
	return nil
}

// Stop closes every open session.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	open := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		open = append(open, s)
	}
	c.mu.Unlock()

	for _, s := range open {
		_ = s.Destroy(context.Background())
	}
	logging.Info().Int("closed", len(open)).Msg("backend client stopped")
	return nil
}

// CreateSession creates or resumes a session.
func (c *Client) CreateSession(ctx context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil, errNotStarted
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	chatModel, err := c.models.ChatModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("resolve model %s: %w", cfg.Model, err)
	}

	tools := tool.NewRegistry()
	for _, t := range cfg.Tools {
		tools.Register(t)
	}
	if tools.Len() > 0 {
		chatModel, err = chatModel.WithTools(tools.ToolInfos())
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	s := &Session{
		id:        cfg.SessionID,
		model:     cfg.Model,
		info:      c.modelInfo(cfg.Model),
		chat:      chatModel,
		tools:     tools,
		system:    cfg.SystemPrompt,
		stateDir:  cfg.StateDir,
		streaming: cfg.Streaming,
		client:    c,
	}
	if err := s.loadHistory(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if old, ok := c.sessions[s.id]; ok {
		// A live session with the same ID is replaced; its handlers go with it.
		old.close()
	}
	c.sessions[s.id] = s
	c.stateDirs[s.id] = cfg.StateDir
	c.mu.Unlock()

	logging.Debug().
		Str("session", s.id).
		Str("model", cfg.Model).
		Int("tools", tools.Len()).
		Int("history", len(s.history)).
		Msg("session created")
	return s, nil
}

// DeleteSession removes a session's stored history and state directory.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	dir := c.stateDirs[sessionID]
	delete(c.stateDirs, sessionID)
	c.mu.Unlock()

	if err := c.store.RemoveAll(ctx, historyPath(sessionID)[:2]); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("delete session %s state: %w", sessionID, err)
		}
	}
	return nil
}

// ListModels lists the models of every configured provider.
func (c *Client) ListModels(ctx context.Context) ([]types.Model, error) {
	return c.models.AllModels(), nil
}

func (c *Client) forget(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
	}
}

func (c *Client) modelInfo(ref string) *types.Model {
	providerID, modelID := provider.ParseModelString(ref)
	for _, m := range c.models.AllModels() {
		if m.ID == modelID && m.ProviderID == providerID {
			info := m
			return &info
		}
	}
	return nil
}

func historyPath(sessionID string) []string {
	return []string{"sessions", sessionID, "history"}
}
