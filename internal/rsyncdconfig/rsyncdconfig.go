// Package rsyncdconfig loads the TOML configuration file that drives
// cmd/gorsyncd: which address to listen on and which modules to export.
// Corresponds to rsync/rsyncd.conf(5), reimagined as a small typed TOML
// document instead of a key=value ini file.
package rsyncdconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/oferchen/gorsync/rsyncd"
)

// Listener configures one network address the daemon accepts connections
// on. Only the plain rsync:// protocol is supported; the SSH- and
// namespace-based listener kinds of the upstream project are out of
// scope here.
type Listener struct {
	Rsyncd string `toml:"rsyncd"`
}

// Config is the top-level shape of a gorsyncd.toml file.
type Config struct {
	Listeners []Listener      `toml:"listener"`
	Modules   []rsyncd.Module `toml:"module"`
}

// defaultConfigNames are tried, in order, by FromDefaultFiles.
var defaultConfigNames = []string{
	"gorsyncd.toml",
}

// FromFile parses the TOML document at path.
func FromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, mod := range cfg.Modules {
		if err := rsyncd.ValidateModule(mod); err != nil {
			return nil, fmt.Errorf("module %q: %w", mod.Name, err)
		}
	}
	return &cfg, nil
}

// FromDefaultFiles looks for a config file in the current user's config
// directory, returning the config and the path it was loaded from.
func FromDefaultFiles() (*Config, string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, "", err
	}
	for _, name := range defaultConfigNames {
		path := filepath.Join(dir, name)
		cfg, err := FromFile(path)
		if err == nil {
			return cfg, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, path, err
		}
	}
	return nil, filepath.Join(dir, defaultConfigNames[0]), os.ErrNotExist
}
