// Package config loads agentchat settings from YAML or TOML files, a .env
// file and AGENTCHAT_* environment variables, and turns them into models,
// caches, agents and group chats.
//
// Precedence: defaults, then the config file, then the environment.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentchat.yaml").
//	    WithDotEnv(".env").
//	    Load()
package config
