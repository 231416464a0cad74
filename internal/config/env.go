// Package config loads runtime settings from the environment and system
// manifests from YAML, TOML or CUE files.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Env holds settings read from BEAMIO_* environment variables. Command-line
// flags override them.
type Env struct {
	DB       string `env:"BEAMIO_DB" envDefault:"beamio.db"`
	LogLevel string `env:"BEAMIO_LOG_LEVEL" envDefault:"warn"`
	Format   string `env:"BEAMIO_FORMAT" envDefault:"text"`
	RPCURL   string `env:"BEAMIO_RPC_URL"`
}

// LoadEnv parses the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// LoadEnvFrom parses an explicit variable set instead of the process
// environment.
func LoadEnvFrom(vars map[string]string) (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Level returns the slog level named by LogLevel.
func (e Env) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(e.LogLevel))); err != nil {
		return 0, fmt.Errorf("BEAMIO_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
