package activation

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
)

// Default contents written when the files are first created.
const (
	RecklessHeader = "# This configuration file is managed by reckless to activate and disable\n# reckless-installed plugins\n\n"
	NetworkHeader  = "# This config was autopopulated by reckless\n\n"
)

// State is how the activation config refers to an entrypoint.
type State int

const (
	Unlisted State = iota
	Enabled
	Disabled
)

func (s State) String() string {
	switch s {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	default:
		return "unlisted"
	}
}

// EnableDirective is the line that makes lightningd load entrypoint.
func EnableDirective(entrypoint string) string { return "plugin=" + entrypoint }

// DisableDirective is the line that keeps lightningd from loading entrypoint.
func DisableDirective(entrypoint string) string { return "disable-plugin=" + entrypoint }

// Config is the reckless-managed activation file included from the network
// config.
type Config struct {
	editor *Editor
	log    *logger.Logger
}

// Bootstrap creates the reckless config if needed and makes sure the network
// config includes it.
func Bootstrap(recklessPath, networkPath string, log *logger.Logger) (*Config, error) {
	reckless := NewEditor(recklessPath, RecklessHeader).WithLogger(log)
	created, err := reckless.Ensure()
	if err != nil {
		return nil, fmt.Errorf("reckless config could not be written: %w", err)
	}
	if created {
		log.WithField("path", recklessPath).Debug("created reckless config")
	}

	network := NewEditor(networkPath, NetworkHeader).WithLogger(log)
	changed, err := network.Edit("include "+recklessPath, "")
	if err != nil {
		return nil, fmt.Errorf("network config could not be updated: %w", err)
	}
	if changed {
		log.WithField("path", networkPath).Debug("network config now includes reckless config")
	}
	return &Config{editor: reckless, log: log}, nil
}

// Path is the reckless config file.
func (c *Config) Path() string { return c.editor.Path() }

// Enable records entrypoint as active, dropping any disable line for it.
func (c *Config) Enable(entrypoint string) (bool, error) {
	return c.set(EnableDirective(entrypoint), DisableDirective(entrypoint))
}

// Disable records entrypoint as inactive, dropping any enable line for it.
func (c *Config) Disable(entrypoint string) (bool, error) {
	return c.set(DisableDirective(entrypoint), EnableDirective(entrypoint))
}

// State reports the directive currently recorded for entrypoint.
func (c *Config) State(entrypoint string) (State, error) {
	lines, err := c.editor.Lines()
	if err != nil {
		return Unlisted, err
	}
	switch {
	case slices.Contains(lines, EnableDirective(entrypoint)):
		return Enabled, nil
	case slices.Contains(lines, DisableDirective(entrypoint)):
		return Disabled, nil
	default:
		return Unlisted, nil
	}
}

func (c *Config) set(add, remove string) (bool, error) {
	changed, err := c.editor.Edit(add, remove)
	if err != nil {
		return false, err
	}
	c.log.WithFields(map[string]any{"line": add, "changed": changed}).Debug("activation config edited")
	return changed, nil
}

// SameFile reports whether two config paths name the same file once cleaned.
func SameFile(a, b string) bool {
	if a == b {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return ra == rb
}
