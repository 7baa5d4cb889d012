package backend

import (
	"encoding/json"
	"fmt"
)

// EventType names a session event.
type EventType string

const (
	EventSessionStart   EventType = "session.start"
	EventSessionError   EventType = "session.error"
	EventToolStart      EventType = "tool.execution_start"
	EventToolComplete   EventType = "tool.execution_complete"
	EventMessageDelta   EventType = "assistant.message_delta"
	EventAssistantUsage EventType = "assistant.usage"
)

// Event is one item of a session's event stream. The concrete type is one
// of the *Event structs in this package.
type Event interface {
	Type() EventType
}

// SessionStartEvent is emitted once a session is ready.
type SessionStartEvent struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
}

// SessionErrorEvent reports a fatal session failure. The session must not
// be reused afterwards.
type SessionErrorEvent struct {
	Message string `json:"message"`
}

// ToolExecutionStartEvent is emitted before a tool runs.
type ToolExecutionStartEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is a finished tool call's output.
type ToolResult struct {
	Content string `json:"content"`
}

// ToolExecutionCompleteEvent is emitted after a tool returns. ToolName may
// be empty.
type ToolExecutionCompleteEvent struct {
	ToolCallID string      `json:"toolCallId"`
	ToolName   string      `json:"toolName,omitempty"`
	Success    bool        `json:"success"`
	Result     *ToolResult `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// MessageDeltaEvent carries streamed assistant text.
type MessageDeltaEvent struct {
	MessageID        string `json:"messageId"`
	DeltaContent     string `json:"deltaContent"`
	ParentToolCallID string `json:"parentToolCallId,omitempty"`
}

// UsageEvent reports which model served a request and what it cost.
type UsageEvent struct {
	Model        string   `json:"model"`
	InputTokens  *int     `json:"inputTokens,omitempty"`
	OutputTokens *int     `json:"outputTokens,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`
}

// UnknownEvent holds an event type this package does not model.
type UnknownEvent struct {
	Kind EventType       `json:"-"`
	Data json.RawMessage `json:"-"`
}

func (SessionStartEvent) Type() EventType          { return EventSessionStart }
func (SessionErrorEvent) Type() EventType          { return EventSessionError }
func (ToolExecutionStartEvent) Type() EventType    { return EventToolStart }
func (ToolExecutionCompleteEvent) Type() EventType { return EventToolComplete }
func (MessageDeltaEvent) Type() EventType          { return EventMessageDelta }
func (UsageEvent) Type() EventType                 { return EventAssistantUsage }
func (e UnknownEvent) Type() EventType             { return e.Kind }

// Envelope is the wire form of an Event.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeEvent marshals an event into its envelope form.
func EncodeEvent(e Event) ([]byte, error) {
	if u, ok := e.(UnknownEvent); ok {
		return json.Marshal(Envelope{Type: u.Kind, Data: u.Data})
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Type(), err)
	}
	return json.Marshal(Envelope{Type: e.Type(), Data: data})
}

// DecodeEvent parses an envelope. Types it does not know become
// UnknownEvent rather than an error.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var target Event
	switch env.Type {
	case EventSessionStart:
		target = &SessionStartEvent{}
	case EventSessionError:
		target = &SessionErrorEvent{}
	case EventToolStart:
		target = &ToolExecutionStartEvent{}
	case EventToolComplete:
		target = &ToolExecutionCompleteEvent{}
	case EventMessageDelta:
		target = &MessageDeltaEvent{}
	case EventAssistantUsage:
		target = &UsageEvent{}
	default:
		return UnknownEvent{Kind: env.Type, Data: env.Data}, nil
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	}

	switch e := target.(type) {
	case *SessionStartEvent:
		return *e, nil
	case *SessionErrorEvent:
		return *e, nil
	case *ToolExecutionStartEvent:
		return *e, nil
	case *ToolExecutionCompleteEvent:
		return *e, nil
	case *MessageDeltaEvent:
		return *e, nil
	case *UsageEvent:
		return *e, nil
	}
	return target, nil
}
