// Package config layers defaults, an optional config file, RELAY_*
// environment variables and command line flags, in ascending
// precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	APIListenAddr    string        `mapstructure:"api-listen-addr"`
	WSListenAddr     string        `mapstructure:"ws-listen-addr"`
	LogLevel         string        `mapstructure:"log-level"`
	StatusInterval   time.Duration `mapstructure:"status-interval"`
	LivenessInterval time.Duration `mapstructure:"liveness-interval"`
	TerminationURL   string        `mapstructure:"termination-url"`
	TerminationToken string        `mapstructure:"termination-token"`
}

func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName("relay")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("api-listen-addr", ":8080")
	v.SetDefault("ws-listen-addr", ":6969")
	v.SetDefault("log-level", "debug")
	v.SetDefault("status-interval", "2s")
	v.SetDefault("liveness-interval", "30s")
	v.SetDefault("termination-url", "")
	v.SetDefault("termination-token", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
