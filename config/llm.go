package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentchat/model"
	"github.com/hupe1980/agentchat/model/anthropic"
	"github.com/hupe1980/agentchat/model/compat"
	"github.com/hupe1980/agentchat/model/openai"
)

// ErrNoModelConfig is returned when no config list entry matches.
var ErrNoModelConfig = errors.New("no matching model config")

// ConfigListFromEnv reads a config list from the environment variable name.
// The value is either the list itself (JSON or YAML) or the path to a file
// containing it. An unset variable yields an empty list.
func ConfigListFromEnv(name string, lookup func(string) (string, bool)) ([]ModelConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	raw, ok := lookup(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	data := []byte(raw)
	if t := strings.TrimSpace(raw); !strings.HasPrefix(t, "[") && !strings.HasPrefix(t, "-") {
		b, err := os.ReadFile(t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		data = b
	}

	var list []ModelConfig
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%s: failed to parse config list: %w", name, err)
	}

	return list, nil
}

// FilterConfigList keeps the entries for which keep returns true.
func FilterConfigList(list []ModelConfig, keep func(ModelConfig) bool) []ModelConfig {
	var out []ModelConfig
	for _, m := range list {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// SelectModel returns the first config list entry whose model name or one
// of whose tags equals ref.
func (c *Config) SelectModel(ref string) (ModelConfig, error) {
	list := FilterConfigList(c.ConfigList, func(m ModelConfig) bool {
		return m.Model == ref || slices.Contains(m.Tags, ref)
	})
	if len(list) == 0 {
		return ModelConfig{}, fmt.Errorf("%w: %s", ErrNoModelConfig, ref)
	}
	return list[0], nil
}

// BuildModel creates the model described by mc, with the LLM defaults
// applied and rate limiting when configured.
func (c *Config) BuildModel(mc ModelConfig) (model.Model, error) {
	temperature := c.LLM.Temperature
	if mc.Temperature != nil {
		temperature = *mc.Temperature
	}

	maxTokens := c.LLM.MaxTokens
	if mc.MaxTokens > 0 {
		maxTokens = mc.MaxTokens
	}

	var m model.Model

	switch mc.Provider {
	case "openai":
		var reqOpts []option.RequestOption
		if mc.APIKey != "" {
			reqOpts = append(reqOpts, option.WithAPIKey(mc.APIKey))
		}
		if mc.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(mc.BaseURL))
		}
		if c.LLM.Timeout > 0 {
			reqOpts = append(reqOpts, option.WithRequestTimeout(c.LLM.Timeout))
		}

		client := openaisdk.NewClient(reqOpts...)
		m = openai.NewModelFromClient(&client, func(o *openai.Options) {
			o.Model = mc.Model
			o.Temperature = temperature
			o.MaxCompletionTokens = int64(maxTokens)
		})

	case "anthropic":
		m = anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(mc.Model)
			o.Temperature = temperature
			o.MaxTokens = int64(maxTokens)
			o.APIKey = mc.APIKey
		})

	case "compat":
		m = compat.NewModel(func(o *compat.Options) {
			o.Model = mc.Model
			o.BaseURL = mc.BaseURL
			o.APIKey = mc.APIKey
			o.Temperature = float32(temperature)
			o.MaxTokens = maxTokens
		})

	case "mock":
		name := mc.Model
		if name == "" {
			name = "mock"
		}
		m = model.NewMockModel(name, "mock")

	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}

	if mc.RequestsPerSecond > 0 {
		m = model.WithRateLimit(m, mc.RequestsPerSecond, max(mc.Burst, 1))
	}

	return m, nil
}

// BuildCache returns the response cache, or nil when caching is disabled.
// A Redis cache is used when an address is configured.
func (c *Config) BuildCache() model.Cache {
	if c.Cache.Seed == nil {
		return nil
	}

	if c.Cache.RedisAddr == "" {
		return model.NewInMemoryCache()
	}

	client := redis.NewClient(&redis.Options{Addr: c.Cache.RedisAddr, DB: c.Cache.RedisDB})

	return model.NewRedisCache(client, func(o *model.RedisCacheOptions) {
		o.Prefix = c.Cache.Prefix
		o.TTL = c.Cache.TTL
	})
}
