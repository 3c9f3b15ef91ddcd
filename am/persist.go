package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/valstream/errors"
)

// Marshal renders the configuration as TOML
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return data, nil
}

// WriteFile writes the configuration to path as TOML, creating parent directories.
// When a ConfigWatcher is watching path, the write is marked as its own so it
// does not trigger a reload.
func (c *Config) WriteFile(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory for %s", path)
	}

	if w := GetGlobalWatcher(); w != nil && w.configPath == path {
		w.MarkOwnWrite()
	}

	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config to %s", path)
	}
	return nil
}

// Unmarshal parses TOML produced by Marshal
func Unmarshal(data []byte) (*Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return &c, nil
}
