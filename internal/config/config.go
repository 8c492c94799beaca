package config

import "time"

// Config holds server and client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath    string `mapstructure:"database_path" yaml:"database_path"`
	MaxMessageBytes int64  `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	HistoryLimit    int    `mapstructure:"history_limit" yaml:"history_limit"`
	// WSRateLimit caps inbound frames per connection per minute; 0 disables it.
	WSRateLimit int `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	RedisChannel  string `mapstructure:"redis_channel" yaml:"redis_channel"`

	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// ClientConfig configures the realtime channel used by `rotawire listen`.
type ClientConfig struct {
	Origin            string        `mapstructure:"origin" yaml:"origin"`
	Path              string        `mapstructure:"path" yaml:"path"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	QueueCapacity     int           `mapstructure:"queue_capacity" yaml:"queue_capacity"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "rotawire.db",
		MaxMessageBytes:   1 << 20,
		HistoryLimit:      100,
		WSRateLimit:       600,
		JWTIssuer:         "rotawire",
		JWTAudience:       "rotawire",
		JWTTTL:            24 * time.Hour,
		RedisChannel:      "rotawire:events",
		Client: ClientConfig{
			Origin:            "http://localhost:8080",
			Path:              "/ws",
			ConnectTimeout:    10 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			QueueCapacity:     100,
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
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if other.Client.Origin != "" {
		c.Client.Origin = other.Client.Origin
	}
}
