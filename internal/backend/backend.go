// Package backend defines the contract between the session orchestrator and
// the AI backend: a Client that creates Sessions, and the typed event stream
// every Session emits.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// ErrSessionClosed is returned by operations on a destroyed session.
var ErrSessionClosed = errors.New("session closed")

// Client manages the connection to the AI backend.
type Client interface {
	Start(ctx context.Context) error
	Stop() error

	// CreateSession creates a session. A SessionID that was used before
	// resumes that session's persisted state.
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)

	// DeleteSession removes a session's persisted state.
	DeleteSession(ctx context.Context, sessionID string) error

	ListModels(ctx context.Context) ([]types.Model, error)
}

// SessionConfig configures a new session.
type SessionConfig struct {
	SessionID    string
	Model        string // "provider/model"
	SystemPrompt string
	Tools        []tool.Tool
	StateDir     string
	Streaming    bool
}

// Session is one conversation with the backend.
type Session interface {
	ID() string

	// On registers a handler for the session's events and returns a func
	// that removes it. Events are delivered in emission order.
	On(handler func(Event)) (unsubscribe func())

	// SendAndWait sends a message and blocks until the assistant's final
	// reply, the timeout, or ctx ends.
	SendAndWait(ctx context.Context, msg MessageOptions, timeout time.Duration) (*AssistantMessage, error)

	Destroy(ctx context.Context) error
}

// MessageOptions is one outbound user message.
type MessageOptions struct {
	Prompt      string
	Attachments []types.Attachment
}

// AssistantMessage is the assistant's final reply to a message.
type AssistantMessage struct {
	ID      string
	Content string
}
