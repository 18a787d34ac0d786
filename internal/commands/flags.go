package commands

import (
	"github.com/livefir/blogpage/internal/config"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// config returns the loaded config, or defaults when the Before hook did not run
func (f *Flags) config() *config.Config {
	if f.Config == nil {
		return config.DefaultConfig()
	}
	return f.Config
}
