package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/deskpilot/deskpilot/pkg/types"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/deskpilot/)
// 2. Project config (deskpilot.json[c], .deskpilot/deskpilot.json[c])
// 3. DESKPILOT_CONFIG file
// 4. DESKPILOT_CONFIG_CONTENT inline JSON
// 5. Environment variables (after loading <directory>/.env)
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	if directory != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(filepath.Join(directory, ".env")); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	loaded := make(map[string]bool)
	for _, path := range Files(directory) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			continue
		}
		err = loadConfigFile(path, config, filepath.Dir(path))
		if err == nil {
			loaded[absPath] = true
			continue
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if content := os.Getenv("DESKPILOT_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("parse DESKPILOT_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inline)
	}

	applyEnvOverrides(config)
	normalizeProviderConfig(config)

	return config, nil
}

// Files returns every config file Load consults, in load order. Files that
// do not exist are included so a watcher can pick them up once created.
func Files(directory string) []string {
	global := GetPaths().Config
	files := []string{
		filepath.Join(global, "deskpilot.json"),
		filepath.Join(global, "deskpilot.jsonc"),
	}
	if directory != "" {
		files = append(files,
			filepath.Join(directory, "deskpilot.json"),
			filepath.Join(directory, "deskpilot.jsonc"),
			filepath.Join(directory, ".deskpilot", "deskpilot.json"),
			filepath.Join(directory, ".deskpilot", "deskpilot.jsonc"),
		)
	}
	if path := os.Getenv("DESKPILOT_CONFIG"); path != "" {
		files = append(files, path)
	}
	return files
}

func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = interpolate(jsonc.ToJSON(data), baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}

		// Embed as the inside of a JSON string literal.
		quoted, _ := json.Marshal(strings.TrimRight(string(content), "\n"))
		return string(quoted[1 : len(quoted)-1])
	})

	return []byte(str)
}

func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.SystemPrompt != "" {
		target.SystemPrompt = source.SystemPrompt
	}
	if source.AttachScreenshots {
		target.AttachScreenshots = true
	}

	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}

	if source.Tools != nil {
		if target.Tools == nil {
			target.Tools = make(map[string]bool)
		}
		for k, v := range source.Tools {
			target.Tools[k] = v
		}
	}

	if source.Shell != nil {
		if target.Shell == nil {
			target.Shell = make(map[string]string)
		}
		for k, v := range source.Shell {
			target.Shell[k] = v
		}
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}

	if source.Server != nil {
		target.Server = source.Server
	}
	if source.Log != nil {
		target.Log = source.Log
	}
	if source.Screenshot != nil {
		target.Screenshot = source.Screenshot
	}
	if source.Scripted != nil {
		target.Scripted = source.Scripted
	}
}

func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("DESKPILOT_MODEL"); model != "" {
		config.Model = model
	}
	if smallModel := os.Getenv("DESKPILOT_SMALL_MODEL"); smallModel != "" {
		config.SmallModel = smallModel
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
