package event

import "encoding/json"

// EventType represents the type of event.
type EventType string

const (
	// Session lifecycle
	SessionCreated   EventType = "session.created"
	SessionRemoved   EventType = "session.removed"
	SessionCompacted EventType = "session.compacted"
	ModelChanged     EventType = "model.changed"

	// UI events
	ToolStarted   EventType = "tool.start"
	ToolCompleted EventType = "tool.complete"
	WidgetRender  EventType = "widget.render"
	StreamDelta   EventType = "stream.delta"
	Screenshot    EventType = "screenshot.captured"
	ModelUsage    EventType = "model.usage"

	// Process
	ConfigUpdated EventType = "config.updated"
	AttachmentSet EventType = "attachment.set"
)

// RemovalReason says why a session left the session map.
type RemovalReason string

const (
	RemovedOnError       RemovalReason = "error"
	RemovedOnSendFailure RemovalReason = "send_failure"
	RemovedOnModelChange RemovalReason = "model_change"
	RemovedOnCompaction  RemovalReason = "compaction"
	RemovedOnCleanup     RemovalReason = "cleanup"
)

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	SessionKey int    `json:"sessionKey"`
	SessionID  string `json:"sessionID"`
	Model      string `json:"model"`
}

// SessionRemovedData is the data for session.removed events.
type SessionRemovedData struct {
	SessionKey int           `json:"sessionKey"`
	SessionID  string        `json:"sessionID"`
	Reason     RemovalReason `json:"reason"`
}

// SessionCompactedData is the data for session.compacted events.
type SessionCompactedData struct {
	SessionKey int    `json:"sessionKey"`
	SessionID  string `json:"sessionID"`
	Summary    string `json:"summary"`
}

// ModelChangedData is the data for model.changed events.
type ModelChangedData struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Destroyed int    `json:"destroyed"`
}

// ConfigUpdatedData is the data for config.updated events.
type ConfigUpdatedData struct {
	Model string `json:"model"`
}

// AttachmentSetData is the data for attachment.set events.
type AttachmentSetData struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// ToolPhase distinguishes tool start from completion.
type ToolPhase string

const (
	ToolPhaseStart    ToolPhase = "start"
	ToolPhaseComplete ToolPhase = "complete"
)

// ToolEvent reports a tool call starting or finishing.
type ToolEvent struct {
	SessionKey int       `json:"sessionKey"`
	Phase      ToolPhase `json:"phase"`
	ToolName   string    `json:"toolName"`
	ToolCallID string    `json:"toolCallId"`
	Success    *bool     `json:"success,omitempty"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// City is one world-clock entry.
type City struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// NullableString is a JSON value that may be a string or null.
type NullableString struct {
	Value string
	Valid bool
}

func (n NullableString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullableString{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// WidgetEvent asks the UI to render an interactive component. Absent
// fields are omitted; CurrentNetwork keeps the difference between an
// absent field and an explicit null.
type WidgetEvent struct {
	SessionKey     int             `json:"sessionKey"`
	ToolCallID     string          `json:"toolCallId,omitempty"`
	Type           string          `json:"type"`
	Duration       *float64        `json:"duration,omitempty"`
	Label          *string         `json:"label,omitempty"`
	Cities         []City          `json:"cities,omitempty"`
	Category       *string         `json:"category,omitempty"`
	Enabled        *bool           `json:"enabled,omitempty"`
	Connected      *bool           `json:"connected,omitempty"`
	CurrentNetwork *NullableString `json:"currentNetwork,omitempty"`
	SavedNetworks  []string        `json:"savedNetworks,omitempty"`
	Error          *string         `json:"error,omitempty"`
}

// StreamDeltaEvent carries one top-level chunk of assistant text.
type StreamDeltaEvent struct {
	SessionKey int    `json:"sessionKey"`
	MessageID  string `json:"messageId"`
	Delta      string `json:"delta"`
}

// ScreenshotEvent reports a successful screen capture.
type ScreenshotEvent struct {
	SessionKey int    `json:"sessionKey"`
	ToolCallID string `json:"toolCallId"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`
}

// ModelUsageEvent reports which model served a request.
type ModelUsageEvent struct {
	SessionKey   int      `json:"sessionKey"`
	Model        string   `json:"model"`
	InputTokens  *int     `json:"inputTokens,omitempty"`
	OutputTokens *int     `json:"outputTokens,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`
}
