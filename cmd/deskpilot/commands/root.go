// Package commands provides the CLI commands for deskpilot.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deskpilot/deskpilot/internal/config"
	"github.com/deskpilot/deskpilot/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
	modelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "deskpilot",
	Short: "deskpilot - a desktop assistant",
	Long: `deskpilot is a desktop assistant that chats with a language model and
uses desktop tools: timers, world clocks, Wi-Fi status, screenshots, notes
and anything an MCP server offers.

Run 'deskpilot chat' for an interactive conversation, or 'deskpilot serve'
to start the HTTP API used by the desktop UI.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Project directory (defaults to the current directory)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model to use (provider/model format)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("deskpilot %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(toolsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogging writes logs to a file under the state dir, and to stderr
// as well with --print-logs.
func initLogging() {
	var out io.Writer = io.Discard
	if printLogs {
		out = os.Stderr
	}
	logging.Init(logging.Config{
		Level:     logging.ParseLevel(logLevel),
		Output:    out,
		Pretty:    printLogs,
		LogToFile: true,
		LogDir:    config.GetPaths().LogPath(),
	})
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
