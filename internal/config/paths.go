package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for deskpilot data.
type Paths struct {
	Data   string // ~/.local/share/deskpilot
	Config string // ~/.config/deskpilot
	Cache  string // ~/.cache/deskpilot
	State  string // ~/.local/state/deskpilot
}

// GetPaths returns the standard paths for deskpilot data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "deskpilot"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "deskpilot"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "deskpilot"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "deskpilot"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the path to the storage directory.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// SessionStatePath returns the directory holding a backend session's
// persisted state.
func (p *Paths) SessionStatePath(sessionID string) string {
	return filepath.Join(p.State, "sessions", sessionID)
}

// ScreenshotPath returns the default directory for captured screenshots.
func (p *Paths) ScreenshotPath() string {
	return filepath.Join(p.Cache, "screenshots")
}

// LogPath returns the directory for log files.
func (p *Paths) LogPath() string {
	return filepath.Join(p.State, "log")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "deskpilot.json")
}
