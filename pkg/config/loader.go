package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	// 1. Set default values
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.corsOrigin", "http://localhost:5173")
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("sessions.mode", SessionModeSingle)
	v.SetDefault("sessions.maxPerUser", 4)
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.pingInterval", "25s")
	v.SetDefault("store.path", "estate.db")
	v.SetDefault("logLevel", "info")

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix("ESTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.Sessions.Mode {
	case SessionModeSingle, SessionModeMulti:
	default:
		return nil, fmt.Errorf("invalid sessions.mode '%s': must be '%s' or '%s'",
			cfg.Sessions.Mode, SessionModeSingle, SessionModeMulti)
	}

	return &cfg, nil
}
