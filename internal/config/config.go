package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTRequired bool   `mapstructure:"jwt_required" yaml:"jwt_required"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	EventBuffer        int   `mapstructure:"event_buffer" yaml:"event_buffer"`

	// RingTimeout matches the 30 second ring window of the web client.
	RingTimeout   time.Duration `mapstructure:"ring_timeout" yaml:"ring_timeout"`
	CallRetention time.Duration `mapstructure:"call_retention" yaml:"call_retention"`
	SweepSchedule string        `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`

	AMQPURL      string `mapstructure:"amqp_url" yaml:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange" yaml:"amqp_exchange"`

	STUNURLs []string `mapstructure:"stun_urls" yaml:"stun_urls"`

	UnreadPollInterval time.Duration `mapstructure:"unread_poll_interval" yaml:"unread_poll_interval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "mentorwire.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "mentorwire",
		JWTAudience:        "mentorwire-clients",
		JWTRequired:        true,
		MaxMessageBytes:    1 << 20,
		RateLimitPerMinute: 600,
		EventBuffer:        64,
		RingTimeout:        30 * time.Second,
		CallRetention:      2 * time.Minute,
		SweepSchedule:      "@every 1m",
		AMQPExchange:       "mentorwire.events",
		STUNURLs:           []string{"stun:stun.l.google.com:19302"},
		UnreadPollInterval: 30 * time.Second,
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
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.RingTimeout != 0 {
		c.RingTimeout = other.RingTimeout
	}
	if other.AMQPURL != "" {
		c.AMQPURL = other.AMQPURL
	}
}
