package orchestrator

import (
	"context"
	"sync"

	"github.com/deskpilot/deskpilot/internal/backend"
	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// UnknownToolName is reported for completions whose start was not seen.
const UnknownToolName = "unknown_tool"

// handlers holds one callback per UI event kind. Registering replaces the
// previous callback.
type handlers struct {
	mu         sync.RWMutex
	tool       func(event.ToolEvent)
	widget     func(event.WidgetEvent)
	delta      func(event.StreamDeltaEvent)
	screenshot func(event.ScreenshotEvent)
	usage      func(event.ModelUsageEvent)
}

// OnToolEvent sets the tool start/complete callback.
func (o *Orchestrator) OnToolEvent(fn func(event.ToolEvent)) {
	o.handlers.mu.Lock()
	defer o.handlers.mu.Unlock()
	o.handlers.tool = fn
}

// OnWidgetEvent sets the widget callback.
func (o *Orchestrator) OnWidgetEvent(fn func(event.WidgetEvent)) {
	o.handlers.mu.Lock()
	defer o.handlers.mu.Unlock()
	o.handlers.widget = fn
}

// OnStreamDelta sets the streaming text callback.
func (o *Orchestrator) OnStreamDelta(fn func(event.StreamDeltaEvent)) {
	o.handlers.mu.Lock()
	defer o.handlers.mu.Unlock()
	o.handlers.delta = fn
}

// OnScreenshotEvent sets the screenshot callback.
func (o *Orchestrator) OnScreenshotEvent(fn func(event.ScreenshotEvent)) {
	o.handlers.mu.Lock()
	defer o.handlers.mu.Unlock()
	o.handlers.screenshot = fn
}

// OnModelUsage sets the model usage callback.
func (o *Orchestrator) OnModelUsage(fn func(event.ModelUsageEvent)) {
	o.handlers.mu.Lock()
	defer o.handlers.mu.Unlock()
	o.handlers.usage = fn
}

// ForwardTo registers callbacks that publish every UI event on bus,
// replacing any callbacks set before.
func (o *Orchestrator) ForwardTo(bus *event.Bus) {
	o.OnToolEvent(func(e event.ToolEvent) {
		t := event.ToolStarted
		if e.Phase == event.ToolPhaseComplete {
			t = event.ToolCompleted
		}
		bus.PublishSync(event.Event{Type: t, Data: e})
	})
	o.OnWidgetEvent(func(e event.WidgetEvent) {
		bus.PublishSync(event.Event{Type: event.WidgetRender, Data: e})
	})
	o.OnStreamDelta(func(e event.StreamDeltaEvent) {
		bus.PublishSync(event.Event{Type: event.StreamDelta, Data: e})
	})
	o.OnScreenshotEvent(func(e event.ScreenshotEvent) {
		bus.PublishSync(event.Event{Type: event.Screenshot, Data: e})
	})
	o.OnModelUsage(func(e event.ModelUsageEvent) {
		bus.PublishSync(event.Event{Type: event.ModelUsage, Data: e})
	})
}

// handleEvent turns one backend event of rec's session into UI events.
func (o *Orchestrator) handleEvent(rec *sessionRecord, e backend.Event) {
	key := int(rec.key)

	switch ev := e.(type) {
	case backend.SessionErrorEvent:
		logging.Warn().Int("session_key", key).Str("error", ev.Message).Msg("session error")
		o.evict(context.Background(), rec, event.RemovedOnError)

	case backend.ToolExecutionStartEvent:
		rec.mu.Lock()
		rec.activeToolCalls[ev.ToolCallID] = ev.ToolName
		rec.mu.Unlock()

		o.emitTool(event.ToolEvent{
			SessionKey: key,
			Phase:      event.ToolPhaseStart,
			ToolName:   ev.ToolName,
			ToolCallID: ev.ToolCallID,
		})

	case backend.ToolExecutionCompleteEvent:
		rec.mu.Lock()
		name, ok := rec.activeToolCalls[ev.ToolCallID]
		delete(rec.activeToolCalls, ev.ToolCallID)
		rec.mu.Unlock()
		if !ok {
			name = ev.ToolName
		}
		if name == "" {
			name = UnknownToolName
		}

		success := ev.Success
		out := event.ToolEvent{
			SessionKey: key,
			Phase:      event.ToolPhaseComplete,
			ToolName:   name,
			ToolCallID: ev.ToolCallID,
			Success:    &success,
			Error:      ev.Error,
		}
		if ev.Result != nil {
			out.Result = ev.Result.Content
		}
		o.emitTool(out)

		if ev.Result == nil {
			return
		}
		if w, ok := parseWidget(ev.Result.Content); ok {
			w.SessionKey = key
			w.ToolCallID = ev.ToolCallID
			o.emitWidget(w)
		}
		if name == tool.ScreenshotToolID && ev.Success {
			if path, url, ok := parseScreenshot(ev.Result.Content); ok {
				o.emitScreenshot(event.ScreenshotEvent{SessionKey: key, ToolCallID: ev.ToolCallID, Path: path, URL: url})
				if o.autoAttach && path != "" {
					o.SetPendingAttachment(&types.Attachment{Type: types.AttachmentImage, Path: path})
				}
			}
		}

	case backend.MessageDeltaEvent:
		if ev.DeltaContent == "" || ev.ParentToolCallID != "" {
			return
		}
		o.emitDelta(event.StreamDeltaEvent{SessionKey: key, MessageID: ev.MessageID, Delta: ev.DeltaContent})

	case backend.UsageEvent:
		if ev.Model == "" {
			return
		}
		o.emitUsage(event.ModelUsageEvent{
			SessionKey:   key,
			Model:        ev.Model,
			InputTokens:  ev.InputTokens,
			OutputTokens: ev.OutputTokens,
			Cost:         ev.Cost,
		})

	default:
		logging.Debug().Int("session_key", key).Str("type", string(e.Type())).Msg("ignoring session event")
	}
}

func (o *Orchestrator) emitTool(e event.ToolEvent) {
	o.handlers.mu.RLock()
	fn := o.handlers.tool
	o.handlers.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

func (o *Orchestrator) emitWidget(e event.WidgetEvent) {
	o.handlers.mu.RLock()
	fn := o.handlers.widget
	o.handlers.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

func (o *Orchestrator) emitDelta(e event.StreamDeltaEvent) {
	o.handlers.mu.RLock()
	fn := o.handlers.delta
	o.handlers.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

func (o *Orchestrator) emitScreenshot(e event.ScreenshotEvent) {
	o.handlers.mu.RLock()
	fn := o.handlers.screenshot
	o.handlers.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

func (o *Orchestrator) emitUsage(e event.ModelUsageEvent) {
	o.handlers.mu.RLock()
	fn := o.handlers.usage
	o.handlers.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}
