// Package config handles configuration loading for murmur-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from MURMUR_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/murmur/gateway.yaml
//  3. ~/.config/murmur/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:8723"  # chat API and live event streams
//
// Database:
//
//	database:
//	  path: "/var/lib/murmur/gateway.db"
//
// Completion provider:
//
//	openai:
//	  api_key: "${OPENAI_API_KEY}"
//	  base_url: ""                 # empty for the public API
//	  model: "gpt-4.1-nano"
//	  system_prompt: ""            # empty for the built-in prompt
//
// Generation tuning (Go time.ParseDuration syntax):
//
//	generation:
//	  fragment_timeout: "30s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The MURMUR_DB_PATH environment variable, when set, overrides database.path.
package config
