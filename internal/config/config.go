// Package config loads session configuration: the revset alias table and
// the plain-mode gate.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"revq/internal/revset"
)

// Config is the YAML session configuration.
type Config struct {
	// Plain disables alias substitution for ad-hoc queries, matching
	// script-friendly output expectations.
	Plain bool `yaml:"plain"`

	// Aliases maps alias declarations ("name" or "name(args)") to their
	// body text.
	Aliases map[string]string `yaml:"aliases"`
}

// Load loads configuration from a YAML file. A missing file yields an
// empty configuration rather than an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// AliasTable builds the alias table for a session. Plain mode suppresses
// aliases entirely unless forceAliases re-enables them.
func (c *Config) AliasTable(forceAliases bool) *revset.AliasTable {
	if len(c.Aliases) == 0 {
		return nil
	}
	if c.Plain && !forceAliases {
		return nil
	}
	return revset.NewAliasTable(c.Aliases)
}
