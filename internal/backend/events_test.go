package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "tool start",
			raw:  `{"type":"tool.execution_start","data":{"toolCallId":"c1","toolName":"timer"}}`,
			want: ToolExecutionStartEvent{ToolCallID: "c1", ToolName: "timer"},
		},
		{
			name: "tool complete without name",
			raw:  `{"type":"tool.execution_complete","data":{"toolCallId":"c1","success":true,"result":{"content":"{\"widget\":\"timer\"}"}}}`,
			want: ToolExecutionCompleteEvent{ToolCallID: "c1", Success: true, Result: &ToolResult{Content: `{"widget":"timer"}`}},
		},
		{
			name: "nested delta",
			raw:  `{"type":"assistant.message_delta","data":{"messageId":"m1","deltaContent":"hi","parentToolCallId":"c9"}}`,
			want: MessageDeltaEvent{MessageID: "m1", DeltaContent: "hi", ParentToolCallID: "c9"},
		},
		{
			name: "session error",
			raw:  `{"type":"session.error","data":{"message":"boom"}}`,
			want: SessionErrorEvent{Message: "boom"},
		},
		{
			name: "start without data",
			raw:  `{"type":"session.start"}`,
			want: SessionStartEvent{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Type(), got.Type())
		})
	}
}

func TestDecodeEvent_Usage(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"assistant.usage","data":{"model":"m2","inputTokens":12,"cost":0.5}}`))
	require.NoError(t, err)

	usage, ok := got.(UsageEvent)
	require.True(t, ok)
	assert.Equal(t, "m2", usage.Model)
	require.NotNil(t, usage.InputTokens)
	assert.Equal(t, 12, *usage.InputTokens)
	assert.Nil(t, usage.OutputTokens)
	require.NotNil(t, usage.Cost)
	assert.InDelta(t, 0.5, *usage.Cost, 1e-9)
}

func TestDecodeEvent_Unknown(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"session.idle","data":{"x":1}}`))
	require.NoError(t, err)

	unknown, ok := got.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, EventType("session.idle"), unknown.Type())
	assert.JSONEq(t, `{"x":1}`, string(unknown.Data))

	raw, err := EncodeEvent(unknown)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"session.idle","data":{"x":1}}`, string(raw))
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, err := DecodeEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"type":"tool.execution_start","data":"oops"}`))
	assert.Error(t, err)
}

func TestEncodeEvent(t *testing.T) {
	raw, err := EncodeEvent(ToolExecutionCompleteEvent{ToolCallID: "c1", Success: false, Error: "denied"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool.execution_complete","data":{"toolCallId":"c1","success":false,"error":"denied"}}`, string(raw))

	back, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, ToolExecutionCompleteEvent{ToolCallID: "c1", Error: "denied"}, back)
}
