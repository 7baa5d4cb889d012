// Package logging provides structured logging using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents log levels.
type Level = zerolog.Level

// Log levels exposed for convenience.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Pretty enables human-readable console output.
	Pretty bool
	// TimeFormat specifies the time format. Defaults to RFC3339.
	TimeFormat string
	// LogToFile mirrors every record into deskpilot-<timestamp>.log under LogDir.
	LogToFile bool
	// LogDir is the directory for log files. Defaults to os.TempDir().
	LogDir string
}

var (
	fileMu  sync.Mutex
	logFile *os.File
)

// DefaultConfig logs info and above to stderr as JSON.
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Output: os.Stderr, TimeFormat: time.RFC3339, LogDir: os.TempDir()}
}

// Init initializes the global logger with the given configuration.
// A log file opened by a previous Init is closed first.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	if cfg.LogDir == "" {
		cfg.LogDir = os.TempDir()
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: cfg.TimeFormat,
		}
	}

	Close()
	if cfg.LogToFile {
		f, err := openLogFile(cfg.LogDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		} else {
			fileMu.Lock()
			logFile = f
			fileMu.Unlock()
			output = zerolog.MultiLevelWriter(output, f)
		}
	}

	Logger = zerolog.New(output).
		Level(cfg.Level).
		With().
		Timestamp().
		Logger()
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("deskpilot-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// GetLogFilePath returns the path of the active log file, or "" when
// file logging is off.
func GetLogFilePath() string {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// Close closes the active log file, if any.
func Close() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

var levelNames = map[string]Level{
	"DEBUG":   DebugLevel,
	"INFO":    InfoLevel,
	"WARN":    WarnLevel,
	"WARNING": WarnLevel,
	"ERROR":   ErrorLevel,
	"FATAL":   FatalLevel,
}

// ParseLevel parses a level name, ignoring case and surrounding space.
// Unknown names give InfoLevel.
func ParseLevel(level string) Level {
	if l, ok := levelNames[strings.ToUpper(strings.TrimSpace(level))]; ok {
		return l
	}
	return InfoLevel
}

func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event { return Logger.Info() }
func Warn() *zerolog.Event { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }

// Fatal starts a new fatal level log message.
// Calling Msg or Send on the returned event will call os.Exit(1).
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// With creates a child logger with the given fields.
func With() zerolog.Context {
	return Logger.With()
}

// ForSession returns a child logger tagged with a chat session key.
func ForSession(key int) zerolog.Logger {
	return Logger.With().Int("session_key", key).Logger()
}

func init() {
	Init(DefaultConfig())
}
