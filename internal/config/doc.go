// Package config provides configuration loading, merging, hot reload and
// path management for deskpilot.
//
// # Configuration Loading
//
// Load merges configuration from these sources, later ones winning:
//
//  1. Global config (~/.config/deskpilot/deskpilot.json[c])
//  2. Project config (deskpilot.json[c] and .deskpilot/deskpilot.json[c])
//  3. DESKPILOT_CONFIG file
//  4. DESKPILOT_CONFIG_CONTENT inline JSON
//  5. Environment variables (DESKPILOT_MODEL, ANTHROPIC_API_KEY, OPENAI_API_KEY, ARK_API_KEY)
//
// A .env file in the project directory is loaded with godotenv before the
// environment layer is applied. Variables already set in the process win.
//
// Files may be JSONC (comments are stripped with tidwall/jsonc) and may use
// {env:VAR} and {file:path} placeholders:
//
//	{
//	  // the orchestrator reads this on every chat
//	  "model": "anthropic/claude-sonnet-4-20250514",
//	  "provider": {
//	    "anthropic": {"options": {"apiKey": "{env:ANTHROPIC_API_KEY}"}}
//	  },
//	  "system_prompt": "{file:prompt.txt}",
//	  "tools": {"shell": false}
//	}
//
// # Live configuration
//
// Source holds the current snapshot behind an atomic pointer so Model() is
// a cheap synchronous read. Watcher reloads the Source when a config file
// changes, which is how a model switch reaches running sessions without a
// restart.
//
// # Path Management
//
// Paths follows the XDG Base Directory layout:
//   - Data: ~/.local/share/deskpilot (XDG_DATA_HOME)
//   - Config: ~/.config/deskpilot (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/deskpilot (XDG_CACHE_HOME)
//   - State: ~/.local/state/deskpilot (XDG_STATE_HOME)
package config
