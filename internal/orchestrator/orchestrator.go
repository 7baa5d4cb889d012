// Package orchestrator maps conversation keys to live backend sessions.
//
// It keeps at most one session per key, recreates every session when the
// configured model changes, evicts sessions that fail, injects the pending
// attachment into the next outbound message and turns each session's event
// stream into UI events (see fanout.go).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deskpilot/deskpilot/internal/backend"
	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// SessionKey identifies one logical conversation. Keys are positive and
// chosen by the caller.
type SessionKey int

// DefaultSessionKey is used when a caller passes a non-positive key.
const DefaultSessionKey SessionKey = 1

const (
	// ChatTimeout bounds one Chat round trip.
	ChatTimeout = 120 * time.Second
	// SummaryTimeout bounds the summary request during compaction.
	SummaryTimeout = 60 * time.Second
	// PrimeTimeout bounds priming the replacement session.
	PrimeTimeout = 30 * time.Second
	// DestroyTimeout bounds a single session teardown.
	DestroyTimeout = 10 * time.Second
)

// ErrNoActiveSession is reported when compacting a key without a session.
var ErrNoActiveSession = errors.New("no active session")

const summaryPrompt = `Summarize our conversation so far in a few short paragraphs. ` +
	`Include the user's goals, decisions made, facts the user shared and any open tasks. ` +
	`Reply with the summary only.`

const primePrompt = "Here is a summary of our earlier conversation. Use it as context for what follows " +
	"and reply with a short acknowledgement.\n\n<summary>\n%s\n</summary>"

// ConfigSource supplies the configured model. config.Source implements it.
type ConfigSource interface {
	Model() string
}

// CompactResult is the outcome of CompactSession.
type CompactResult struct {
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionInfo describes a live session.
type SessionInfo struct {
	Key       SessionKey `json:"key"`
	SessionID string     `json:"sessionID"`
	Model     string     `json:"model"`
}

type sessionRecord struct {
	key     SessionKey
	session backend.Session
	model   string

	detachOnce  sync.Once
	unsubscribe func()
	destroyOnce sync.Once

	mu              sync.Mutex
	activeToolCalls map[string]string
}

func (r *sessionRecord) detach() {
	r.detachOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
	})
}

// Orchestrator owns the session map, the model watermark, the pending
// attachment and the UI handler slots.
type Orchestrator struct {
	client       backend.Client
	tools        *tool.Registry
	config       ConfigSource
	bus          *event.Bus
	systemPrompt string
	stateRoot    string
	autoAttach   bool

	initMu      sync.Mutex
	initialized bool

	// mu guards sessions, watermark and pending.
	mu        sync.Mutex
	sessions  map[SessionKey]*sessionRecord
	watermark string
	pending   *types.Attachment

	keyMu    sync.Mutex
	keyLocks map[SessionKey]*sync.Mutex

	handlers handlers
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSystemPrompt sets the system prompt of every new session.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithStateRoot gives each key a state directory below root.
func WithStateRoot(root string) Option {
	return func(o *Orchestrator) { o.stateRoot = root }
}

// WithBus publishes session lifecycle events on bus.
func WithBus(bus *event.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithScreenshotAttachments makes every captured screenshot the pending
// attachment.
func WithScreenshotAttachments(enabled bool) Option {
	return func(o *Orchestrator) { o.autoAttach = enabled }
}

// New creates an orchestrator. The client is started lazily.
func New(client backend.Client, tools *tool.Registry, config ConfigSource, opts ...Option) *Orchestrator {
	if tools == nil {
		tools = tool.NewRegistry()
	}
	o := &Orchestrator{
		client:   client,
		tools:    tools,
		config:   config,
		sessions: make(map[SessionKey]*sessionRecord),
		keyLocks: make(map[SessionKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionID returns the backend session ID used for key.
func SessionID(key SessionKey) string {
	return fmt.Sprintf("deskpilot-%d", key)
}

// Initialize starts the backend client. It is a no-op once it succeeded; a
// failed start is retried by the next call.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	if o.initialized {
		return nil
	}
	if err := o.client.Start(ctx); err != nil {
		return fmt.Errorf("start backend: %w", err)
	}
	o.initialized = true
	return nil
}

// ChatResult is the outcome of Send.
type ChatResult struct {
	Reply string
	// Attachment is the pending attachment this message consumed, if any.
	Attachment *types.Attachment
}

// Chat sends prompt on key's session and returns the reply text. A failed
// send evicts the session so the next call starts fresh; the error is
// returned unchanged.
func (o *Orchestrator) Chat(ctx context.Context, prompt string, key SessionKey) (string, error) {
	res, err := o.Send(ctx, prompt, key)
	return res.Reply, err
}

// Send is Chat that also reports the attachment the message carried. The
// attachment is reported even when the send fails, since it was consumed.
func (o *Orchestrator) Send(ctx context.Context, prompt string, key SessionKey) (ChatResult, error) {
	key = normalize(key)
	if err := o.Initialize(ctx); err != nil {
		return ChatResult{}, err
	}
	model := o.config.Model()

	unlock := o.lockKey(key)
	defer unlock()

	o.recreateOnModelChange(ctx, model)

	rec, err := o.getOrCreateSession(ctx, key, model)
	if err != nil {
		return ChatResult{}, err
	}

	var res ChatResult
	msg := backend.MessageOptions{Prompt: prompt}
	if a := o.takePendingAttachment(); a != nil {
		msg.Attachments = []types.Attachment{*a}
		res.Attachment = a
	}

	log := logging.ForSession(int(key)).With().Str("model", model).Logger()
	log.Debug().Int("attachments", len(msg.Attachments)).Msg("sending message")

	reply, err := rec.session.SendAndWait(ctx, msg, ChatTimeout)
	if err != nil {
		log.Warn().Err(err).Msg("send failed, evicting session")
		o.evict(ctx, rec, event.RemovedOnSendFailure)
		return res, err
	}
	if reply != nil {
		res.Reply = reply.Content
	}
	return res, nil
}

// getOrCreateSession returns key's record, creating a session at model if
// none exists. The existing record's model is not checked.
func (o *Orchestrator) getOrCreateSession(ctx context.Context, key SessionKey, model string) (*sessionRecord, error) {
	o.mu.Lock()
	rec, ok := o.sessions[key]
	o.mu.Unlock()
	if ok {
		return rec, nil
	}

	cfg := backend.SessionConfig{
		SessionID:    SessionID(key),
		Model:        model,
		SystemPrompt: o.systemPrompt,
		Tools:        o.tools.List(),
		Streaming:    true,
	}
	if o.stateRoot != "" {
		cfg.StateDir = filepath.Join(o.stateRoot, cfg.SessionID)
	}

	sess, err := o.client.CreateSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create session for key %d: %w", key, err)
	}

	rec = &sessionRecord{
		key:             key,
		session:         sess,
		model:           model,
		activeToolCalls: make(map[string]string),
	}
	rec.unsubscribe = sess.On(func(e backend.Event) { o.handleEvent(rec, e) })

	o.mu.Lock()
	o.sessions[key] = rec
	o.mu.Unlock()

	logging.Info().Int("session_key", int(key)).Str("session", sess.ID()).Str("model", model).Msg("session created")
	o.publish(event.SessionCreated, event.SessionCreatedData{SessionKey: int(key), SessionID: sess.ID(), Model: model})
	return rec, nil
}

// recreateOnModelChange destroys every session when model differs from the
// watermark, then moves the watermark.
func (o *Orchestrator) recreateOnModelChange(ctx context.Context, model string) {
	o.mu.Lock()
	if len(o.sessions) == 0 || o.watermark == model {
		o.watermark = model
		o.mu.Unlock()
		return
	}
	from := o.watermark
	doomed := make([]*sessionRecord, 0, len(o.sessions))
	for _, rec := range o.sessions {
		doomed = append(doomed, rec)
	}
	o.sessions = make(map[SessionKey]*sessionRecord)
	o.watermark = model
	o.mu.Unlock()

	logging.Info().Str("from", from).Str("to", model).Int("sessions", len(doomed)).Msg("model changed, recreating sessions")
	o.teardown(ctx, doomed, event.RemovedOnModelChange)
	o.publish(event.ModelChanged, event.ModelChangedData{From: from, To: model, Destroyed: len(doomed)})
}

// teardown destroys records in parallel. Failures are logged and dropped.
func (o *Orchestrator) teardown(ctx context.Context, records []*sessionRecord, reason event.RemovalReason) {
	var g errgroup.Group
	for _, rec := range records {
		g.Go(func() error {
			rec.detach()
			o.destroy(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	for _, rec := range records {
		o.publishRemoved(rec, reason)
	}
}

// evict removes rec from the map if it is still the live record for its
// key, then destroys it.
func (o *Orchestrator) evict(ctx context.Context, rec *sessionRecord, reason event.RemovalReason) {
	removed := o.removeRecord(rec)
	rec.detach()
	o.destroy(ctx, rec)
	if removed {
		o.publishRemoved(rec, reason)
	}
}

func (o *Orchestrator) removeRecord(rec *sessionRecord) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.sessions[rec.key]; ok && cur == rec {
		delete(o.sessions, rec.key)
		return true
	}
	return false
}

// destroy tears rec's session down once; later calls are no-ops.
func (o *Orchestrator) destroy(ctx context.Context, rec *sessionRecord) {
	rec.destroyOnce.Do(func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DestroyTimeout)
		defer cancel()
		if err := rec.session.Destroy(dctx); err != nil {
			logging.Warn().Err(err).Int("session_key", int(rec.key)).Str("session", rec.session.ID()).Msg("failed to destroy session")
		}
	})
}

// CompactSession replaces key's session with a fresh one primed with a
// summary of the conversation. Failures are reported in the result; when
// the summary fails the old session is left untouched.
func (o *Orchestrator) CompactSession(ctx context.Context, key SessionKey) CompactResult {
	key = normalize(key)
	unlock := o.lockKey(key)
	defer unlock()

	o.mu.Lock()
	rec := o.sessions[key]
	o.mu.Unlock()
	if rec == nil {
		return CompactResult{Error: ErrNoActiveSession.Error()}
	}

	log := logging.ForSession(int(key))

	reply, err := rec.session.SendAndWait(ctx, backend.MessageOptions{Prompt: summaryPrompt}, SummaryTimeout)
	if err != nil {
		log.Warn().Err(err).Msg("summary failed")
		return CompactResult{Error: fmt.Sprintf("summary failed: %v", err)}
	}
	summary := ""
	if reply != nil {
		summary = strings.TrimSpace(reply.Content)
	}
	if summary == "" {
		return CompactResult{Error: "summary failed: empty response"}
	}

	oldID := rec.session.ID()
	o.evict(ctx, rec, event.RemovedOnCompaction)
	if err := o.client.DeleteSession(context.WithoutCancel(ctx), oldID); err != nil {
		// A replacement under the same ID would reload the full transcript.
		log.Warn().Err(err).Str("session", oldID).Msg("failed to delete session state")
		return CompactResult{Summary: summary, Error: fmt.Sprintf("delete session state: %v", err)}
	}

	model := o.config.Model()
	o.recreateOnModelChange(ctx, model)

	fresh, err := o.getOrCreateSession(ctx, key, model)
	if err != nil {
		return CompactResult{Error: fmt.Sprintf("recreate session: %v", err)}
	}
	if _, err := fresh.session.SendAndWait(ctx, backend.MessageOptions{Prompt: fmt.Sprintf(primePrompt, summary)}, PrimeTimeout); err != nil {
		log.Warn().Err(err).Msg("priming failed, evicting session")
		o.evict(ctx, fresh, event.RemovedOnSendFailure)
		return CompactResult{Error: fmt.Sprintf("prime session: %v", err)}
	}

	log.Info().Int("summary_len", len(summary)).Msg("session compacted")
	o.publish(event.SessionCompacted, event.SessionCompactedData{SessionKey: int(key), SessionID: fresh.session.ID(), Summary: summary})
	return CompactResult{Success: true, Summary: summary}
}

// Cleanup destroys every session and stops the client. A second call does
// nothing.
func (o *Orchestrator) Cleanup(ctx context.Context) {
	o.mu.Lock()
	records := make([]*sessionRecord, 0, len(o.sessions))
	for _, rec := range o.sessions {
		records = append(records, rec)
	}
	o.sessions = make(map[SessionKey]*sessionRecord)
	o.mu.Unlock()

	o.teardown(ctx, records, event.RemovedOnCleanup)

	o.initMu.Lock()
	defer o.initMu.Unlock()
	if !o.initialized {
		return
	}
	o.initialized = false
	if err := o.client.Stop(); err != nil {
		logging.Warn().Err(err).Msg("failed to stop backend client")
	}
	logging.Info().Int("destroyed", len(records)).Msg("orchestrator cleaned up")
}

// ListModels returns the backend's models, starting the client if needed.
func (o *Orchestrator) ListModels(ctx context.Context) ([]types.Model, error) {
	if err := o.Initialize(ctx); err != nil {
		return nil, err
	}
	return o.client.ListModels(ctx)
}

// SetPendingAttachment replaces the pending attachment. nil clears it.
func (o *Orchestrator) SetPendingAttachment(a *types.Attachment) {
	o.mu.Lock()
	if a == nil {
		o.pending = nil
	} else {
		cp := *a
		o.pending = &cp
	}
	o.mu.Unlock()

	if a != nil {
		o.publish(event.AttachmentSet, event.AttachmentSetData{Type: string(a.Type), Path: a.Path})
	}
}

// PendingAttachment returns a copy of the pending attachment, or nil.
func (o *Orchestrator) PendingAttachment() *types.Attachment {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return nil
	}
	cp := *o.pending
	return &cp
}

func (o *Orchestrator) takePendingAttachment() *types.Attachment {
	o.mu.Lock()
	defer o.mu.Unlock()
	a := o.pending
	o.pending = nil
	return a
}

// Sessions lists the live sessions ordered by key.
func (o *Orchestrator) Sessions() []SessionInfo {
	o.mu.Lock()
	out := make([]SessionInfo, 0, len(o.sessions))
	for key, rec := range o.sessions {
		out = append(out, SessionInfo{Key: key, SessionID: rec.session.ID(), Model: rec.model})
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Watermark returns the model the live sessions were created with.
func (o *Orchestrator) Watermark() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.watermark
}

func (o *Orchestrator) lockKey(key SessionKey) func() {
	o.keyMu.Lock()
	l, ok := o.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		o.keyLocks[key] = l
	}
	o.keyMu.Unlock()

	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) publish(t event.EventType, data any) {
	if o.bus != nil {
		o.bus.PublishSync(event.Event{Type: t, Data: data})
	}
}

func (o *Orchestrator) publishRemoved(rec *sessionRecord, reason event.RemovalReason) {
	logging.Debug().Int("session_key", int(rec.key)).Str("reason", string(reason)).Msg("session removed")
	o.publish(event.SessionRemoved, event.SessionRemovedData{
		SessionKey: int(rec.key),
		SessionID:  rec.session.ID(),
		Reason:     reason,
	})
}

func normalize(key SessionKey) SessionKey {
	if key <= 0 {
		return DefaultSessionKey
	}
	return key
}
