package tool

import (
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// Registry is an ordered collection of tools. Registration order is the
// order tools are offered to the model.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering an existing ID replaces the tool in place.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.ID()]; !exists {
		r.order = append(r.order, tool.ID())
	}
	r.tools[tool.ID()] = tool
	logging.Debug().Str("tool", tool.ID()).Msg("registered tool")
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[id]
	return tool, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.order))
	for _, id := range r.order {
		tools = append(tools, r.tools[id])
	}
	return tools
}

// IDs returns all tool IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// EinoTools returns Eino-compatible tools.
func (r *Registry) EinoTools() []einotool.BaseTool {
	tools := r.List()
	out := make([]einotool.BaseTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.EinoTool())
	}
	return out
}

// ToolInfos returns Eino tool infos for all tools.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	tools := r.List()
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, Info(t))
	}
	return infos
}

// Filter returns a registry holding only the tools enabled by patterns.
// Keys are doublestar globs matched against tool IDs; a tool not matched
// by any pattern stays enabled. When several patterns match, an exact
// name wins, then the longest pattern.
func (r *Registry) Filter(patterns map[string]bool) *Registry {
	keys := make([]string, 0, len(patterns))
	for k := range patterns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) < len(keys[j])
		}
		return keys[i] < keys[j]
	})

	out := NewRegistry()
	for _, t := range r.List() {
		enabled := true
		for _, pattern := range keys {
			if ok, _ := doublestar.Match(pattern, t.ID()); ok {
				enabled = patterns[pattern]
			}
		}
		if v, ok := patterns[t.ID()]; ok {
			enabled = v
		}
		if !enabled {
			continue
		}
		if _, ok := t.(*ListToolsTool); ok {
			t = NewListToolsTool(out)
		}
		out.Register(t)
	}
	return out
}

// Suggest returns registered IDs close to an unknown name, nearest first.
func (r *Registry) Suggest(name string) []string {
	type candidate struct {
		id   string
		dist int
	}
	var candidates []candidate
	lower := strings.ToLower(name)
	for _, id := range r.IDs() {
		d := levenshtein.ComputeDistance(lower, strings.ToLower(id))
		if d <= 3 || strings.Contains(id, lower) {
			candidates = append(candidates, candidate{id, d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.id)
	}
	return out
}

// Options configures DefaultRegistry.
type Options struct {
	WorkDir    string
	Storage    *storage.Storage
	Screenshot *types.ScreenshotConfig
	// ScreenshotDir is used when Screenshot.Dir is empty.
	ScreenshotDir string
	WifiProber    WifiProber
	// ShellPolicy defaults to DefaultShellPolicy.
	ShellPolicy ShellPolicy
}

// DefaultRegistry creates a registry with all built-in tools.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()

	r.Register(NewTimerTool())
	r.Register(NewWorldClockTool())
	r.Register(NewWifiStatusTool(opts.WifiProber))
	r.Register(NewScreenshotTool(opts.Screenshot, opts.ScreenshotDir))
	if opts.Storage != nil {
		r.Register(NewNotesTool(opts.Storage))
		r.Register(NewTodoTool(opts.Storage))
	}
	r.Register(NewShellTool(opts.WorkDir, opts.ShellPolicy))
	r.Register(NewWebFetchTool())
	r.Register(NewListToolsTool(r))

	logging.Debug().Strs("tools", r.IDs()).Msg("default registry created")
	return r
}
