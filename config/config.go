package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentchat/core"
)

// Config is the complete agentchat configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" toml:"log" env:"LOG"`
	LLM     LLMConfig     `yaml:"llm" toml:"llm" env:"LLM"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache" env:"CACHE"`
	Server  ServerConfig  `yaml:"server" toml:"server" env:"SERVER"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics" env:"METRICS"`

	// ConfigList holds the model endpoints agents may use, in order of
	// preference.
	ConfigList []ModelConfig   `yaml:"config_list" toml:"config_list"`
	Agents     []AgentConfig   `yaml:"agents" toml:"agents"`
	GroupChat  GroupChatConfig `yaml:"group_chat" toml:"group_chat"`
}

// LogConfig selects the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" toml:"level" env:"LEVEL"`
	// Format is json or text for slog, or zap.
	Format    string `yaml:"format" toml:"format" env:"FORMAT"`
	AddSource bool   `yaml:"add_source" toml:"add_source" env:"ADD_SOURCE"`
}

// LLMConfig holds the defaults applied to every ModelConfig.
type LLMConfig struct {
	// ConfigListEnv names the environment variable holding a JSON config
	// list (or the path to a file containing one).
	ConfigListEnv string        `yaml:"config_list_env" toml:"config_list_env" env:"CONFIG_LIST_ENV"`
	Temperature   float64       `yaml:"temperature" toml:"temperature" env:"TEMPERATURE"`
	MaxTokens     int           `yaml:"max_tokens" toml:"max_tokens" env:"MAX_TOKENS"`
	Timeout       time.Duration `yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
}

// ModelConfig describes one model endpoint.
type ModelConfig struct {
	// Provider is openai, anthropic, compat or mock.
	Provider    string   `yaml:"provider" toml:"provider" json:"provider"`
	Model       string   `yaml:"model" toml:"model" json:"model"`
	APIKey      string   `yaml:"api_key" toml:"api_key" json:"api_key"`
	BaseURL     string   `yaml:"base_url" toml:"base_url" json:"base_url"`
	Temperature *float64 `yaml:"temperature" toml:"temperature" json:"temperature"`
	MaxTokens   int      `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	// RequestsPerSecond throttles calls to the endpoint (0 = unlimited).
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	Burst             int      `yaml:"burst" toml:"burst" json:"burst"`
	Tags              []string `yaml:"tags" toml:"tags" json:"tags"`
}

// CacheConfig configures response caching.
type CacheConfig struct {
	// Seed enables caching; requests are cached per seed.
	Seed *int `yaml:"seed" toml:"seed" env:"SEED"`
	// RedisAddr selects the Redis cache; empty keeps responses in memory.
	RedisAddr string        `yaml:"redis_addr" toml:"redis_addr" env:"REDIS_ADDR"`
	RedisDB   int           `yaml:"redis_db" toml:"redis_db" env:"REDIS_DB"`
	Prefix    string        `yaml:"prefix" toml:"prefix" env:"PREFIX"`
	TTL       time.Duration `yaml:"ttl" toml:"ttl" env:"TTL"`
}

// ServerConfig configures the remote agent server.
type ServerConfig struct {
	Addr           string        `yaml:"addr" toml:"addr" env:"ADDR"`
	BaseURL        string        `yaml:"base_url" toml:"base_url" env:"BASE_URL"`
	RateLimit      float64       `yaml:"rate_limit" toml:"rate_limit" env:"RATE_LIMIT"`
	Burst          int           `yaml:"burst" toml:"burst" env:"BURST"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout" toml:"receive_timeout" env:"RECEIVE_TIMEOUT"`
	Peers          []PeerConfig  `yaml:"peers" toml:"peers"`
	// ExposeCodeExecution hosts agents with code execution enabled, and a
	// group chat containing them. Off by default: a hosted agent runs code
	// found in any accepted delivery.
	ExposeCodeExecution bool `yaml:"expose_code_execution" toml:"expose_code_execution" env:"EXPOSE_CODE_EXECUTION"`
}

// PeerConfig names an agent hosted by another server.
type PeerConfig struct {
	Name    string `yaml:"name" toml:"name"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Addr      string `yaml:"addr" toml:"addr" env:"ADDR"`
	Namespace string `yaml:"namespace" toml:"namespace" env:"NAMESPACE"`
}

// AgentConfig describes a conversable agent.
type AgentConfig struct {
	Name                    string `yaml:"name" toml:"name"`
	Description             string `yaml:"description" toml:"description"`
	SystemMessage           string `yaml:"system_message" toml:"system_message"`
	HumanInputMode          string `yaml:"human_input_mode" toml:"human_input_mode"`
	MaxConsecutiveAutoReply *int   `yaml:"max_consecutive_auto_reply" toml:"max_consecutive_auto_reply"`
	DefaultAutoReply        string `yaml:"default_auto_reply" toml:"default_auto_reply"`
	// Model selects an entry of the config list by model name or tag.
	// Empty disables the LLM stage.
	Model                string              `yaml:"model" toml:"model"`
	AllowTemplate        bool                `yaml:"allow_template" toml:"allow_template"`
	Stream               bool                `yaml:"stream" toml:"stream"`
	MaxParallelToolCalls int                 `yaml:"max_parallel_tool_calls" toml:"max_parallel_tool_calls"`
	CodeExecution        CodeExecutionConfig `yaml:"code_execution" toml:"code_execution"`
}

// CodeExecutionConfig enables local execution of code blocks received by
// an agent.
type CodeExecutionConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	WorkDir string        `yaml:"work_dir" toml:"work_dir"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

// GroupChatConfig describes a group chat over configured agents.
type GroupChatConfig struct {
	Agents             []string `yaml:"agents" toml:"agents"`
	MaxRound           int      `yaml:"max_round" toml:"max_round"`
	SpeakerSelection   string   `yaml:"speaker_selection" toml:"speaker_selection"`
	AllowRepeatSpeaker *bool    `yaml:"allow_repeat_speaker" toml:"allow_repeat_speaker"`
	ManualOrder        []string `yaml:"manual_order" toml:"manual_order"`
	// SelectorModel picks the config list entry used by auto selection.
	SelectorModel string `yaml:"selector_model" toml:"selector_model"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		LLM: LLMConfig{
			ConfigListEnv: "OAI_CONFIG_LIST",
			Temperature:   0.7,
			MaxTokens:     4096,
			Timeout:       60 * time.Second,
		},
		Cache: CacheConfig{
			Prefix: "agentchat:llm:cache:",
			TTL:    24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			Burst:          10,
			ReceiveTimeout: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Addr:      "127.0.0.1:9090",
			Namespace: "agentchat",
		},
		GroupChat: GroupChatConfig{
			MaxRound:         10,
			SpeakerSelection: "round_robin",
		},
	}
}

var validProviders = map[string]bool{"openai": true, "anthropic": true, "compat": true, "mock": true}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	switch c.Log.Format {
	case "json", "text", "zap":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	for i, m := range c.ConfigList {
		if !validProviders[m.Provider] {
			errs = append(errs, fmt.Errorf("config_list[%d]: unknown provider %q", i, m.Provider))
		}
		if m.Model == "" && m.Provider != "mock" {
			errs = append(errs, fmt.Errorf("config_list[%d]: model is required", i))
		}
	}

	names := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
			continue
		}
		if names[a.Name] {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name))
		}
		names[a.Name] = true

		if a.HumanInputMode != "" {
			if _, err := core.ParseHumanInputMode(a.HumanInputMode); err != nil {
				errs = append(errs, fmt.Errorf("agents[%d]: %w", i, err))
			}
		}
		if a.Model != "" {
			if _, err := c.SelectModel(a.Model); err != nil {
				errs = append(errs, fmt.Errorf("agents[%d]: %w", i, err))
			}
		}
	}

	for _, name := range c.GroupChat.Agents {
		if !names[name] {
			errs = append(errs, fmt.Errorf("group_chat: unknown agent %q", name))
		}
	}

	if c.GroupChat.MaxRound <= 0 {
		errs = append(errs, errors.New("group_chat.max_round must be positive"))
	}

	return errors.Join(errs...)
}
