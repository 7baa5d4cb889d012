package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
)

// knownCities maps lower-case city names to IANA zones. Anything else is
// tried as a zone name directly.
var knownCities = map[string]string{
	"london":        "Europe/London",
	"paris":         "Europe/Paris",
	"berlin":        "Europe/Berlin",
	"madrid":        "Europe/Madrid",
	"rome":          "Europe/Rome",
	"moscow":        "Europe/Moscow",
	"dubai":         "Asia/Dubai",
	"mumbai":        "Asia/Kolkata",
	"delhi":         "Asia/Kolkata",
	"singapore":     "Asia/Singapore",
	"hong kong":     "Asia/Hong_Kong",
	"shanghai":      "Asia/Shanghai",
	"beijing":       "Asia/Shanghai",
	"seoul":         "Asia/Seoul",
	"tokyo":         "Asia/Tokyo",
	"sydney":        "Australia/Sydney",
	"auckland":      "Pacific/Auckland",
	"new york":      "America/New_York",
	"toronto":       "America/Toronto",
	"chicago":       "America/Chicago",
	"denver":        "America/Denver",
	"los angeles":   "America/Los_Angeles",
	"san francisco": "America/Los_Angeles",
	"mexico city":   "America/Mexico_City",
	"sao paulo":     "America/Sao_Paulo",
	"utc":           "UTC",
}

// WorldClockTool shows the time in several cities.
type WorldClockTool struct{}

// WorldClockInput is the input for the world_clock tool.
type WorldClockInput struct {
	Cities []string `json:"cities"`
}

type clockCity struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

type worldClockWidget struct {
	Widget string      `json:"widget"`
	Cities []clockCity `json:"cities"`
	Error  string      `json:"error,omitempty"`
}

func NewWorldClockTool() *WorldClockTool { return &WorldClockTool{} }

func (t *WorldClockTool) ID() string { return "world_clock" }

func (t *WorldClockTool) Description() string {
	return "Show a live clock for one or more cities or IANA time zones."
}

func (t *WorldClockTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"cities": {
				"type": "array",
				"items": {"type": "string"},
				"description": "City names (\"Tokyo\") or IANA zones (\"Europe/Paris\")"
			}
		},
		"required": ["cities"]
	}`)
}

func (t *WorldClockTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params WorldClockInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(params.Cities) == 0 {
		return nil, fmt.Errorf("at least one city is required")
	}

	widget := worldClockWidget{Widget: "world_clock"}
	var unknown []string
	for _, name := range params.Cities {
		zone, ok := resolveZone(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		widget.Cities = append(widget.Cities, clockCity{Name: cityLabel(name), Timezone: zone})
	}
	if len(widget.Cities) == 0 {
		return nil, fmt.Errorf("unknown cities: %s", strings.Join(unknown, ", "))
	}
	if len(unknown) > 0 {
		widget.Error = "unknown cities: " + strings.Join(unknown, ", ")
	}

	return JSONResult("World clock", widget)
}

func (t *WorldClockTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}

func resolveZone(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if zone, ok := knownCities[key]; ok {
		return zone, true
	}
	if key == "" || key == "local" {
		return "", false
	}
	if _, err := time.LoadLocation(strings.TrimSpace(name)); err == nil {
		return strings.TrimSpace(name), true
	}
	return "", false
}

// cityLabel turns "Europe/Paris" into "Paris" and "new york" into "New York".
func cityLabel(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = strings.ReplaceAll(name[i+1:], "_", " ")
	}
	if strings.EqualFold(name, "utc") {
		return "UTC"
	}
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
