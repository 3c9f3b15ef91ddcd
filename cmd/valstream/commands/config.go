package commands

import (
	"github.com/teranos/valstream/am"
)

// ConfigPath is set by the --config flag. Empty means the usual cascade.
var ConfigPath string

func loadConfig() (*am.Config, error) {
	if ConfigPath != "" {
		return am.LoadFromFile(ConfigPath)
	}
	return am.Load()
}
