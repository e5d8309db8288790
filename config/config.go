// Package config handles bfjit.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/bfjit/pkg/bytecode"
)

// Config represents a bfjit.toml configuration.
type Config struct {
	Runtime Runtime `toml:"runtime"`
	Cache   Cache   `toml:"cache"`

	// Dir is the directory containing the bfjit.toml file (set at load time).
	Dir string `toml:"-"`
}

// Runtime configures compilation and execution.
type Runtime struct {
	TapeSize    int    `toml:"tape-size"`
	EOF         string `toml:"eof"`
	Optimize    bool   `toml:"optimize"`
	CheckBounds bool   `toml:"check-bounds"`
}

// Cache configures the compiled-chunk cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the built-in configuration: a 30000-cell tape, EOF
// leaving the cell unchanged, optimization on, and the cache on.
func Default() *Config {
	return &Config{
		Runtime: Runtime{
			TapeSize: bytecode.DefaultTapeSize,
			EOF:      bytecode.EOFKeep.String(),
			Optimize: true,
		},
		Cache: Cache{
			Enabled: true,
		},
	}
}

// Load parses a bfjit.toml file from the given directory. Settings absent
// from the file keep their Default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "bfjit.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if _, err := bytecode.ParseEOFPolicy(cfg.Runtime.EOF); err != nil {
		return nil, fmt.Errorf("invalid setting in %s: %w", path, err)
	}
	if cfg.Runtime.TapeSize < 0 {
		return nil, fmt.Errorf("invalid setting in %s: tape-size must not be negative", path)
	}

	return cfg, nil
}

// FindAndLoad walks up from startDir to find a bfjit.toml file, then loads
// and returns the configuration. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "bfjit.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EOFPolicy returns the parsed runtime EOF policy. Unknown strings fall
// back to the keep policy; Load rejects them on the way in.
func (c *Config) EOFPolicy() bytecode.EOFPolicy {
	p, _ := bytecode.ParseEOFPolicy(c.Runtime.EOF)
	return p
}

// CachePath returns the configured cache database path. Relative paths
// resolve against the configuration directory. Empty means the default
// location should be used.
func (c *Config) CachePath() string {
	if c.Cache.Path == "" {
		return ""
	}
	if filepath.IsAbs(c.Cache.Path) || c.Dir == "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Dir, c.Cache.Path)
}
