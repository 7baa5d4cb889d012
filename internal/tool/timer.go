package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
)

const maxTimerDuration = 24 * time.Hour

// TimerTool starts a countdown rendered by the UI's timer widget.
type TimerTool struct{}

// TimerInput is the input for the timer tool.
type TimerInput struct {
	Seconds float64 `json:"seconds"`
	Label   string  `json:"label,omitempty"`
}

type timerWidget struct {
	Widget   string  `json:"widget"`
	Duration float64 `json:"duration"`
	Label    string  `json:"label,omitempty"`
}

func NewTimerTool() *TimerTool { return &TimerTool{} }

func (t *TimerTool) ID() string { return "timer" }

func (t *TimerTool) Description() string {
	return "Start a countdown timer shown in the chat. Use for reminders like \"set a 5 minute timer for tea\"."
}

func (t *TimerTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"seconds": {"type": "number", "description": "Timer length in seconds"},
			"label": {"type": "string", "description": "Optional label shown on the timer"}
		},
		"required": ["seconds"]
	}`)
}

func (t *TimerTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params TimerInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	d := time.Duration(params.Seconds * float64(time.Second))
	if d <= 0 {
		return nil, fmt.Errorf("seconds must be positive")
	}
	if d > maxTimerDuration {
		return nil, fmt.Errorf("timer cannot exceed %s", maxTimerDuration)
	}

	return JSONResult(fmt.Sprintf("Timer %s", d), timerWidget{
		Widget:   "timer",
		Duration: params.Seconds,
		Label:    params.Label,
	})
}

func (t *TimerTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
