// Package backendtest provides an in-memory backend.Client for tests. It
// counts lifecycle calls and lets tests script replies and inject events.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deskpilot/deskpilot/internal/backend"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// ReplyFunc produces a session's reply to one message.
type ReplyFunc func(s *Session, msg backend.MessageOptions) (*backend.AssistantMessage, error)

// Reply returns a ReplyFunc that always answers content.
func Reply(content string) ReplyFunc {
	return func(s *Session, msg backend.MessageOptions) (*backend.AssistantMessage, error) {
		return &backend.AssistantMessage{ID: "m", Content: content}, nil
	}
}

// Fail returns a ReplyFunc that always fails with err.
func Fail(err error) ReplyFunc {
	return func(s *Session, msg backend.MessageOptions) (*backend.AssistantMessage, error) {
		return nil, err
	}
}

// Client is a fake backend.Client.
type Client struct {
	mu        sync.Mutex
	startErr  error
	createErr error
	deleteErr error
	reply     ReplyFunc
	models    []types.Model

	starts   int
	stops    int
	sessions []*Session
	deleted  []string
}

var _ backend.Client = (*Client)(nil)

// NewClient creates a fake client that answers "ok".
func NewClient() *Client {
	return &Client{
		reply:  Reply("ok"),
		models: []types.Model{{ID: "m1", Name: "Model One", ProviderID: "fake"}},
	}
}

// SetStartErr makes Start fail with err until cleared with nil.
func (c *Client) SetStartErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startErr = err
}

// SetCreateErr makes CreateSession fail with err until cleared with nil.
func (c *Client) SetCreateErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createErr = err
}

// SetDeleteErr makes DeleteSession fail with err until cleared with nil.
func (c *Client) SetDeleteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteErr = err
}

// SetReply sets the reply used by sessions without their own.
func (c *Client) SetReply(fn ReplyFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = fn
}

func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return c.startErr
}

func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *Client) CreateSession(ctx context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	s := &Session{cfg: cfg, client: c, handlers: make(map[int]func(backend.Event))}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, sessionID)
	return nil
}

func (c *Client) ListModels(ctx context.Context) ([]types.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Model(nil), c.models...), nil
}

// Starts returns how often Start was called.
func (c *Client) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

// Stops returns how often Stop was called.
func (c *Client) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

// Created returns how many sessions were created.
func (c *Client) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Destroyed returns the total number of Destroy calls over all sessions.
func (c *Client) Destroyed() int {
	n := 0
	for _, s := range c.Sessions() {
		n += s.Destroyed()
	}
	return n
}

// Sessions returns every session created so far, oldest first.
func (c *Client) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// Last returns the most recently created session.
func (c *Client) Last() *Session {
	sessions := c.Sessions()
	if len(sessions) == 0 {
		return nil
	}
	return sessions[len(sessions)-1]
}

// Deleted returns the IDs passed to DeleteSession.
func (c *Client) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

// Session is a fake backend.Session.
type Session struct {
	cfg    backend.SessionConfig
	client *Client

	mu         sync.Mutex
	handlers   map[int]func(backend.Event)
	order      []int
	nextID     int
	reply      ReplyFunc
	destroyErr error
	sent       []backend.MessageOptions
	timeouts   []time.Duration
	destroyed  int
}

var _ backend.Session = (*Session)(nil)

func (s *Session) ID() string { return s.cfg.SessionID }

// Config returns the configuration the session was created with.
func (s *Session) Config() backend.SessionConfig { return s.cfg }

// Model returns the model the session was created with.
func (s *Session) Model() string { return s.cfg.Model }

// SetReply overrides the client's reply for this session.
func (s *Session) SetReply(fn ReplyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

// SetDestroyErr makes Destroy fail with err.
func (s *Session) SetDestroyErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyErr = err
}

func (s *Session) On(handler func(backend.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.handlers[id] = handler
	s.order = append(s.order, id)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

// Handlers returns the number of subscribed handlers.
func (s *Session) Handlers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Emit delivers e to every handler synchronously, in subscription order.
func (s *Session) Emit(e backend.Event) {
	s.mu.Lock()
	var fns []func(backend.Event)
	for _, id := range s.order {
		if fn, ok := s.handlers[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// EmitJSON decodes an event envelope and emits it.
func (s *Session) EmitJSON(raw string) error {
	e, err := backend.DecodeEvent([]byte(raw))
	if err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	s.Emit(e)
	return nil
}

func (s *Session) SendAndWait(ctx context.Context, msg backend.MessageOptions, timeout time.Duration) (*backend.AssistantMessage, error) {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.timeouts = append(s.timeouts, timeout)
	reply := s.reply
	s.mu.Unlock()

	if reply == nil {
		s.client.mu.Lock()
		reply = s.client.reply
		s.client.mu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reply(s, msg)
}

// Sent returns the messages sent to the session.
func (s *Session) Sent() []backend.MessageOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.MessageOptions(nil), s.sent...)
}

// Timeouts returns the timeout passed with each message.
func (s *Session) Timeouts() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.timeouts...)
}

func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed++
	return s.destroyErr
}

// Destroyed returns how often Destroy was called.
func (s *Session) Destroyed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
