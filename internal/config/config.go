package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config supplies named settings with defaults. Values come from an
// optional config file (yaml/json/toml) overridden by PROMPTLOOP_*
// environment variables.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from path, or from ./config.{yaml,json,toml}
// when path is empty. A missing file is not an error: defaults apply.
func Load(path string) *Config {
	v := viper.New()

	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://api.deepseek.com/v1")
	v.SetDefault("target_llm_model", "deepseek-chat")
	v.SetDefault("judge_llm_model", "deepseek-chat")
	v.SetDefault("modification_assistant_llm_model", "deepseek-chat")
	v.SetDefault("evaluation_method", "rule_based")
	v.SetDefault("storage_path", "promptloop.sessions.db")
	v.SetDefault("requests_per_minute", 60)

	v.SetEnvPrefix("PROMPTLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		log.Printf("No usable config file (%v), continuing with defaults and environment", err)
	}

	return &Config{v: v}
}

// APIKey returns the model API key, empty when unset.
func (c *Config) APIKey() string { return c.v.GetString("api_key") }

// BaseURL returns the chat completions endpoint base URL.
func (c *Config) BaseURL() string { return c.v.GetString("base_url") }

// TargetModel returns the model identifier prompts are refined against.
func (c *Config) TargetModel() string { return c.v.GetString("target_llm_model") }

// JudgeModel returns the model identifier used for judge-mode evaluation.
func (c *Config) JudgeModel() string { return c.v.GetString("judge_llm_model") }

// ModifierModel returns the model identifier used by the suggester.
func (c *Config) ModifierModel() string { return c.v.GetString("modification_assistant_llm_model") }

// EvaluationMethod returns the configured evaluation mode string.
func (c *Config) EvaluationMethod() string { return c.v.GetString("evaluation_method") }

// StoragePath returns the session database path.
func (c *Config) StoragePath() string { return c.v.GetString("storage_path") }

// RequestsPerMinute returns the outbound request budget.
func (c *Config) RequestsPerMinute() int { return c.v.GetInt("requests_per_minute") }

// GetString returns a named setting, or def when unset.
func (c *Config) GetString(name, def string) string {
	if c.v.IsSet(name) {
		return c.v.GetString(name)
	}
	return def
}

// Set overrides a setting for the lifetime of this process.
func (c *Config) Set(name string, value any) {
	c.v.Set(name, value)
}
