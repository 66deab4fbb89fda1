// Package config provides configuration management for the VectorFlow CLI.
//
// The configuration types live in internal/config so the server and tests
// can use them without the CLI; they are re-exported here via type aliases
// for convenience.
package config

import (
	intconfig "github.com/leapstack-labs/vectorflow/internal/config"
)

// Config is an alias for the shared configuration.
type Config = intconfig.Config

// EnvPrefix is the prefix of environment variables read into the config.
// A double underscore separates nesting levels:
// VECTORFLOW_SERVER__PORT sets server.port.
const EnvPrefix = "VECTORFLOW_"

// Default returns a Config holding every default.
func Default() *Config {
	return intconfig.New()
}
