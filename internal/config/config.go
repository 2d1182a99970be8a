package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	// Per-connection limits.
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`

	JWT     JWTConfig     `mapstructure:"jwt" yaml:"jwt"`
	AI      AIConfig      `mapstructure:"ai" yaml:"ai"`
	LiveKit LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
}

// JWTConfig controls identity verification of connecting clients.
type JWTConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience"`
	Required bool   `mapstructure:"required" yaml:"required"`
}

// AIConfig points at the tutor answer service.
type AIConfig struct {
	URL      string        `mapstructure:"url" yaml:"url"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Fallback string        `mapstructure:"fallback" yaml:"fallback"`
}

// LiveKitConfig enables media join tokens for live sessions.
type LiveKitConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	URL       string `mapstructure:"url" yaml:"url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
}

// DefaultFallbackAnswer is sent when the tutor service cannot answer.
const DefaultFallbackAnswer = "The AI tutor is unavailable right now. Please try again in a moment or ask your instructor."

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "liveroom.db",
		MaxMessageBytes:    1 << 20,
		SendBuffer:         64,
		WriteTimeout:       5 * time.Second,
		IdleTimeout:        90 * time.Second,
		PingInterval:       30 * time.Second,
		RateLimitPerMinute: 120,
		HistoryLimit:       50,
		JWT: JWTConfig{
			Issuer:   "liveroom",
			Audience: "liveroom",
		},
		AI: AIConfig{
			Timeout:  10 * time.Second,
			Fallback: DefaultFallbackAnswer,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.IdleTimeout != 0 {
		c.IdleTimeout = other.IdleTimeout
	}
	if other.JWT.Secret != "" {
		c.JWT.Secret = other.JWT.Secret
	}
	if other.JWT.Required {
		c.JWT.Required = true
	}
	if other.AI.URL != "" {
		c.AI.URL = other.AI.URL
	}
}
