package orchestrator

import (
	"encoding/json"

	"github.com/deskpilot/deskpilot/internal/event"
)

// parseWidget reads a tool result as a widget. Anything that is not a JSON
// object with a non-empty string "widget" field yields false. Each declared
// field is decoded on its own; one of the wrong type is left out rather
// than dropping the widget.
func parseWidget(content string) (event.WidgetEvent, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return event.WidgetEvent{}, false
	}
	var kind string
	if err := json.Unmarshal(fields["widget"], &kind); err != nil || kind == "" {
		return event.WidgetEvent{}, false
	}

	w := event.WidgetEvent{Type: kind}
	w.Duration = optional[float64](fields, "duration")
	w.Label = optional[string](fields, "label")
	w.Category = optional[string](fields, "category")
	w.Enabled = optional[bool](fields, "enabled")
	w.Connected = optional[bool](fields, "connected")
	w.Error = optional[string](fields, "error")
	if raw, ok := fields["currentNetwork"]; ok {
		var n event.NullableString
		if err := json.Unmarshal(raw, &n); err == nil {
			w.CurrentNetwork = &n
		}
	}
	if cities := optional[[]event.City](fields, "cities"); cities != nil {
		w.Cities = *cities
	}
	if saved := optional[[]string](fields, "savedNetworks"); saved != nil {
		w.SavedNetworks = *saved
	}
	return w, true
}

// optional decodes fields[name] into a T, or returns nil when the field is
// absent, null or does not decode.
func optional[T any](fields map[string]json.RawMessage, name string) *T {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil
	}
	return v
}

type screenshotPayload struct {
	Success *bool  `json:"success"`
	Path    string `json:"path"`
	URL     string `json:"url"`
}

// parseScreenshot returns the location of a captured screenshot.
func parseScreenshot(content string) (path, url string, ok bool) {
	var p screenshotPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return "", "", false
	}
	if p.Success != nil && !*p.Success {
		return "", "", false
	}
	if p.Path == "" && p.URL == "" {
		return "", "", false
	}
	return p.Path, p.URL, true
}
