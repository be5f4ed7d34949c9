package config

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			RequestTimeoutSeconds: 120,
			MaxTokens:             1024,
			Temperature:           0.7,
		},
		Usage: UsageConfig{
			Enabled:       false,
			RetentionDays: 90, // 3 months
			Redis: RedisConfig{
				Address:   "localhost:6379",
				DB:        0,
				KeyPrefix: "llmprobe:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
