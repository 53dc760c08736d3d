// Package config provides layered configuration for every ida-swarm
// process: the MCP server, the orchestrator, agent processes and the
// swarmctl operator CLI.
//
// # Configuration Loading
//
// Load implements a layered strategy that merges configuration from
// multiple sources in increasing priority order:
//
//  1. Built-in defaults (Default)
//  2. Global config (~/.config/ida-swarm/ida-swarm.json, XDG compliant)
//  3. Project config (<directory>/.ida-swarm/ida-swarm.json)
//  4. IDA_SWARM_CONFIG file
//  5. IDA_SWARM_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// # Supported Formats
//
// Config files may be JSON or JSONC (JSON with comments); comments are
// stripped with github.com/tidwall/jsonc before unmarshaling.
//
// # Variable Interpolation
//
// Configuration files support two placeholder forms, expanded before
// JSON parsing:
//   - {env:VAR_NAME} - environment variable value
//   - {file:path} - file contents, JSON-string-escaped
//
// {file:path} resolves relative paths against the config file's own
// directory and supports a leading ~/ for the caller's home directory.
//
// Example:
//
//	{
//	  "provider": {
//	    "anthropic": {"api_key": "{env:ANTHROPIC_API_KEY}"}
//	  },
//	  "instructions": ["{file:~/ida-swarm-notes.txt}"]
//	}
//
// # Configuration Merging
//
// Scalars overwrite, the provider map merges key by key, and
// instruction lists append; later (higher-precedence) layers always
// win on a conflicting scalar.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/ida-swarm (XDG_DATA_HOME)
//   - Config: ~/.config/ida-swarm (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/ida-swarm (XDG_CACHE_HOME)
//   - State: ~/.local/state/ida-swarm (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
package config
