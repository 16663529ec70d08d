package app

import "errors"

// Commands the operator surface exposes.
const (
	CommandSetup = "setup"
	CommandRun   = "run"
)

// Config holds everything an App instance needs to run.
type Config struct {
	// Command is one of CommandSetup or CommandRun.
	Command string
	// ManifestPath is a .hcl file or a directory of them, resolved relative
	// to the workspace root when not absolute.
	ManifestPath string
	// InvocationDir is where workspace resolution starts; defaults to the
	// process working directory.
	InvocationDir string
	// Force makes setup re-acquire bundles whose completion markers exist.
	Force bool

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandSetup, CommandRun:
	default:
		return nil, errors.New("command must be 'setup' or 'run'")
	}
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.InvocationDir == "" {
		cfg.InvocationDir = "."
	}
	return &cfg, nil
}
