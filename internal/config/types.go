package config

import (
	"path/filepath"
	"time"
)

// Networks lists the chains lightningd can be configured for.
var Networks = []string{"bitcoin", "regtest", "liquid", "liquid-regtest", "litecoin", "signet", "testnet"}

// Settings holds everything one reckless invocation needs to locate the node,
// its configuration and the remote hosting endpoints.
type Settings struct {
	LightningDir string `yaml:"lightning_dir" validate:"required"`
	RecklessDir  string `yaml:"reckless_dir" validate:"required"`
	Network      string `yaml:"network" validate:"required,oneof=bitcoin regtest liquid liquid-regtest litecoin signet testnet"`
	// Conf is an explicit lightningd config file overriding the per-network default.
	Conf         string `yaml:"conf,omitempty"`
	LightningCLI string `yaml:"lightning_cli" validate:"required"`

	GitHubAPI  string `yaml:"github_api" validate:"required,source_url"`
	GitHubBase string `yaml:"github_base" validate:"required,source_url"`

	APICallLimit      int `yaml:"api_call_limit" validate:"min=1,max=1000"`
	SearchParallelism int `yaml:"search_parallelism" validate:"min=1,max=16"`

	SmokeTestTimeout  time.Duration `yaml:"smoke_test_timeout" validate:"gt=0"`
	CloneTimeout      time.Duration `yaml:"clone_timeout" validate:"gt=0"`
	MetadataTimeout   time.Duration `yaml:"metadata_timeout" validate:"gt=0"`
	DependencyTimeout time.Duration `yaml:"dependency_timeout" validate:"gt=0"`
	ControlTimeout    time.Duration `yaml:"control_timeout" validate:"gt=0"`

	Verbose bool `yaml:"verbose,omitempty"`
	// Trace writes OpenTelemetry spans for installations to stderr.
	Trace bool `yaml:"trace,omitempty"`
}

// Defaults returns settings rooted at lightningDir with the stock endpoints and timeouts.
func Defaults(lightningDir string) Settings {
	return Settings{
		LightningDir:      lightningDir,
		RecklessDir:       filepath.Join(lightningDir, "reckless"),
		Network:           "bitcoin",
		LightningCLI:      "lightning-cli",
		GitHubAPI:         "https://api.github.com",
		GitHubBase:        "https://github.com",
		APICallLimit:      5,
		SearchParallelism: 1,
		SmokeTestTimeout:  10 * time.Second,
		CloneTimeout:      60 * time.Second,
		MetadataTimeout:   5 * time.Second,
		DependencyTimeout: 30 * time.Minute,
		ControlTimeout:    15 * time.Second,
	}
}

// InstallRoot is the directory holding one subdirectory per installed plugin.
func (s Settings) InstallRoot() string {
	return s.RecklessDir
}

// RecklessConfigPath is the activation config managed by reckless.
func (s Settings) RecklessConfigPath() string {
	return filepath.Join(s.RecklessDir, s.Network+"-reckless.conf")
}

// NetworkConfigPath is the lightningd config that must include the reckless config.
func (s Settings) NetworkConfigPath() string {
	if s.Conf != "" {
		return s.Conf
	}
	return filepath.Join(s.LightningDir, s.Network, "config")
}

// SourcesPath is the file listing plugin sources, one per line.
func (s Settings) SourcesPath() string {
	return filepath.Join(s.RecklessDir, ".sources")
}
