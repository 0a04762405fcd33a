// Package netconfig loads the JSON configuration profiles that name
// endpoint addresses for each collaborating system (the bus, the
// time-sync client/server, sensor-specific processes).
//
// Grounded on original_source/network_config/config.h/.cpp (the
// Config/SystemConfig shape: bind, connect, and kissnet fields keyed by
// system name) and spec.md §6's "JSON at a conventional path" decision —
// the spec pins the file format to JSON, so encoding/json is used
// directly rather than substituting an ecosystem parser (see
// DESIGN.md).
package netconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SystemConfig is one named system's endpoint configuration, mirroring
// network_config::SystemConfig.
type SystemConfig struct {
	Bind    string `json:"bind"`
	Connect string `json:"connect"`
	Kissnet string `json:"kissnet"`
}

// Config is a loaded profile: every system name it defines, mapped to
// its SystemConfig.
type Config struct {
	systems map[string]SystemConfig
}

// ConfigError reports a configuration load failure: unreadable or
// malformed JSON, or a lookup against a system name the profile does
// not define. Per spec.md §7, this class of error is fatal at startup.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("netconfig: %s: %v", e.Op, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads <home>/.network_config/<name>.json and parses it into a
// Config. name may be given with or without the .json suffix.
func Load(name string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, &ConfigError{Op: "load", Err: err}
	}
	if filepath.Ext(name) != ".json" {
		name += ".json"
	}
	path := filepath.Join(home, ".network_config", name)
	return LoadFile(path)
}

// LoadFile parses path directly, bypassing the conventional
// ~/.network_config/ location. Exposed for tests and for tools that
// accept an explicit config path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Op: "read", Err: err}
	}

	var systems map[string]SystemConfig
	if err := json.Unmarshal(data, &systems); err != nil {
		return nil, &ConfigError{Op: "parse", Err: err}
	}

	return &Config{systems: systems}, nil
}

// Get returns the named system's configuration. It fails with
// ConfigError if system is not defined in this profile, matching
// spec.md §7's "missing required key" ConfigurationError case.
func (c *Config) Get(system string) (SystemConfig, error) {
	sc, ok := c.systems[system]
	if !ok {
		return SystemConfig{}, &ConfigError{Op: "get", Err: fmt.Errorf("system %q not defined", system)}
	}
	return sc, nil
}
