package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Sessions  SessionConfig `mapstructure:"sessions"`
	Store     StoreConfig   `mapstructure:"store"`
	LogLevel  string        `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address    string
	CORSOrigin string `mapstructure:"corsOrigin"`
	Auth       AuthConfig
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

// SessionConfig controls how many live connections one user identity may
// hold. Mode "single" cycles out the previous connection when a new one
// arrives; mode "multi" admits up to MaxPerUser concurrent connections.
type SessionConfig struct {
	Mode       string `mapstructure:"mode"`
	MaxPerUser int    `mapstructure:"maxPerUser"`
}

// TransportConfig tunes the per-connection transport. ReadTimeout bounds
// the wait for a data frame and is enforced only when PingInterval is
// zero; with a heartbeat running, liveness comes from failed pings.
type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	PingInterval time.Duration `mapstructure:"pingInterval"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

const (
	SessionModeSingle = "single"
	SessionModeMulti  = "multi"
)
