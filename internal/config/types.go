package config

import (
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Providers []Provider     `yaml:"providers"`
	Defaults  DefaultsConfig `yaml:"defaults"`
	Usage     UsageConfig    `yaml:"usage"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// Provider represents an LLM provider configuration
type Provider struct {
	Name             string  `yaml:"name"`
	BaseURL          string  `yaml:"base_url"`
	APIKeyEnv        string  `yaml:"api_key_env"`
	DefaultModel     string  `yaml:"default_model,omitempty"`
	DefaultMaxTokens int     `yaml:"default_max_tokens,omitempty"`
	Models           []Model `yaml:"models"`
}

// Model represents an LLM model configuration
type Model struct {
	ID            string `yaml:"id"`
	DisplayName   string `yaml:"display_name"`
	ContextWindow int    `yaml:"context_window"`
}

// DefaultsConfig holds default request parameters applied to all providers
type DefaultsConfig struct {
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MaxTokens             int     `yaml:"max_tokens"`
	Temperature           float64 `yaml:"temperature"`
}

// RequestTimeout returns the request timeout as a Duration
func (d *DefaultsConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutSeconds) * time.Second
}

// UsageConfig holds token usage tracking settings
type UsageConfig struct {
	Enabled       bool        `yaml:"enabled"`
	RetentionDays int         `yaml:"retention_days"`
	Redis         RedisConfig `yaml:"redis"`
}

// Retention returns the usage retention window as a Duration
func (u *UsageConfig) Retention() time.Duration {
	return time.Duration(u.RetentionDays) * 24 * time.Hour
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address     string `yaml:"address"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultMaxTokensFor returns the max tokens for a provider (with fallback
// to the global default)
func (p *Provider) DefaultMaxTokensFor(defaults DefaultsConfig) int {
	if p.DefaultMaxTokens > 0 {
		return p.DefaultMaxTokens
	}
	return defaults.MaxTokens
}
