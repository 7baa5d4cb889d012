// Command deskpilot-tools-mcp serves the built-in desktop tools over stdio
// so any MCP client can use them.
package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/deskpilot/deskpilot/internal/config"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/internal/tool"
	"github.com/deskpilot/deskpilot/pkg/mcpserver/desktop"
)

func main() {
	// stdout carries the protocol.
	logging.Init(logging.Config{
		Level:     logging.ParseLevel(os.Getenv("DESKPILOT_LOG_LEVEL")),
		Output:    os.Stderr,
		LogToFile: true,
		LogDir:    config.GetPaths().LogPath(),
	})
	defer logging.Close()

	workDir, err := os.Getwd()
	if err != nil {
		logging.Fatal().Err(err).Msg("resolve working directory")
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}

	shellPolicy, err := tool.MergeShellPolicy(cfg.Shell)
	if err != nil {
		logging.Fatal().Err(err).Msg("shell policy")
	}

	paths := config.GetPaths()
	reg := tool.DefaultRegistry(tool.Options{
		WorkDir:       workDir,
		Storage:       storage.New(paths.StoragePath()),
		Screenshot:    cfg.Screenshot,
		ScreenshotDir: paths.ScreenshotPath(),
		ShellPolicy:   shellPolicy,
	}).Filter(cfg.Tools)

	if err := server.ServeStdio(desktop.NewServer(reg)); err != nil {
		logging.Fatal().Err(err).Msg("mcp server stopped")
	}
}
