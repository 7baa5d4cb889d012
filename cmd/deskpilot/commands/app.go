package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deskpilot/deskpilot/internal/backend/eino"
	"github.com/deskpilot/deskpilot/internal/config"
	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/history"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/mcp"
	"github.com/deskpilot/deskpilot/internal/metrics"
	"github.com/deskpilot/deskpilot/internal/orchestrator"
	"github.com/deskpilot/deskpilot/internal/provider"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/types"
)

const defaultSystemPrompt = `You are deskpilot, a friendly assistant living on the user's desktop.
Answer briefly. Prefer a tool over a guess: use the timer for countdowns,
world_clock for times in other places, wifi_status for network questions and
take_screenshot when the user asks about what is on screen. Tool results that
carry a "widget" field are rendered for the user, so do not repeat them
verbatim.`

// app is every long-lived component of one deskpilot process.
type app struct {
	workDir string
	source  *config.Source
	watcher *config.Watcher
	bus     *event.Bus
	store   *storage.Storage
	tools   *tool.Registry
	mcp     *mcp.Client
	orch    *orchestrator.Orchestrator
	history *history.Store
	metrics *metrics.Metrics
}

// newApp loads configuration and wires the backend, tools, MCP servers and
// the orchestrator. Close releases everything.
func newApp(ctx context.Context) (*app, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	source, err := config.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if modelFlag != "" {
		source.SetModel(modelFlag)
	}
	cfg := source.Config()
	if cfg.Log != nil && cfg.Log.Level != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		logLevel = cfg.Log.Level
		initLogging()
	}

	providers, err := provider.InitializeProviders(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize providers: %w", err)
	}

	shellPolicy, err := tool.MergeShellPolicy(cfg.Shell)
	if err != nil {
		return nil, err
	}

	store := storage.New(paths.StoragePath())
	tools := tool.DefaultRegistry(tool.Options{
		WorkDir:       dir,
		Storage:       store,
		Screenshot:    cfg.Screenshot,
		ScreenshotDir: paths.ScreenshotPath(),
		ShellPolicy:   shellPolicy,
	})

	mcpClient := mcp.NewClient()
	if len(cfg.MCP) > 0 {
		mcpClient.ConnectAll(ctx, cfg.MCP)
		if n := mcp.RegisterTools(mcpClient, tools); n > 0 {
			logging.Info().Int("tools", n).Msg("registered mcp tools")
		}
	}
	tools = tools.Filter(cfg.Tools)

	bus := event.NewBus()
	a := &app{
		workDir: dir,
		source:  source,
		bus:     bus,
		store:   store,
		tools:   tools,
		mcp:     mcpClient,
		history: history.New(store),
		metrics: metrics.New(),
	}

	a.orch = orchestrator.New(
		eino.NewClient(providers, store),
		tools,
		source,
		orchestrator.WithSystemPrompt(systemPrompt(dir, cfg)),
		orchestrator.WithStateRoot(filepath.Join(paths.State, "sessions")),
		orchestrator.WithBus(bus),
		orchestrator.WithScreenshotAttachments(cfg.AttachScreenshots),
	)

	// Without a watcher a model change needs a restart; not fatal.
	if w, err := config.NewWatcher(source, bus); err != nil {
		logging.Warn().Err(err).Msg("config hot reload disabled")
	} else {
		w.Start()
		a.watcher = w
	}

	logging.Info().Str("dir", dir).Str("model", source.Model()).Int("tools", tools.Len()).Msg("deskpilot ready")
	return a, nil
}

// Close tears down sessions, MCP connections, the watcher and the bus.
func (a *app) Close() {
	a.orch.Cleanup(context.Background())
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.mcp.Close()
	a.bus.Close()
}

// systemPrompt is the configured prompt (or the default) followed by the
// contents of every instruction file. Relative paths resolve against dir.
func systemPrompt(dir string, cfg *types.Config) string {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	parts := []string{prompt}
	for _, file := range cfg.Instructions {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Warn().Err(err).Str("file", path).Msg("skipping instruction file")
			continue
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	return strings.Join(parts, "\n\n")
}
