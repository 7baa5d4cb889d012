package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != InfoLevel {
		t.Errorf("expected Level to be InfoLevel, got %v", cfg.Level)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected Output to be os.Stderr")
	}
	if cfg.TimeFormat != time.RFC3339 {
		t.Errorf("expected TimeFormat to be RFC3339, got %s", cfg.TimeFormat)
	}
	if cfg.LogToFile {
		t.Errorf("expected LogToFile to be false")
	}
	if cfg.LogDir != os.TempDir() {
		t.Errorf("expected LogDir to be %s, got %s", os.TempDir(), cfg.LogDir)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"  debug  ", DebugLevel},
		{"info", InfoLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"FATAL", FatalLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, Output: &buf})

	Debug().Msg("debug message")
	Info().Msg("info message")
	Warn().Msg("warn message")
	Error().Msg("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("messages below warn should be filtered, got %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn and error should be written, got %s", output)
	}
}

func TestLogWithFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})

	logger := ForSession(3)
	logger.Info().Str("tool", "timer").Msg("tool started")

	output := buf.String()
	if !strings.Contains(output, `"session_key":3`) {
		t.Errorf("expected session_key field, got %s", output)
	}
	if !strings.Contains(output, `"tool":"timer"`) {
		t.Errorf("expected tool field, got %s", output)
	}
}

func TestLogToFile(t *testing.T) {
	dir := t.TempDir()
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	defer Close()

	Info().Msg("file log test")

	logPath := GetLogFilePath()
	if logPath == "" {
		t.Fatal("expected log file path to be set")
	}
	if !strings.HasPrefix(logPath, dir) {
		t.Errorf("log file path %s should be in %s", logPath, dir)
	}
	name := filepath.Base(logPath)
	if !strings.HasPrefix(name, "deskpilot-") || !strings.HasSuffix(name, ".log") {
		t.Errorf("unexpected log file name: %s", name)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "file log test") {
		t.Errorf("log file should contain the message, got: %s", content)
	}
}

func TestCloseClearsPath(t *testing.T) {
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: t.TempDir()})
	if GetLogFilePath() == "" {
		t.Fatal("expected log file path before close")
	}

	Close()
	Close()

	if GetLogFilePath() != "" {
		t.Error("expected empty log file path after close")
	}
}

func TestInitWithNilOutput(t *testing.T) {
	Init(Config{Level: InfoLevel})
	Init(DefaultConfig())
}
