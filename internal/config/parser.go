package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Environment variables that redirect endpoints, mostly for testing against mirrors.
const (
	EnvGitHubAPI    = "REDIR_GITHUB_API"
	EnvGitHubBase   = "REDIR_GITHUB"
	EnvLightningCLI = "LIGHTNING_CLI"
)

// SettingsFileName is looked up inside the reckless directory when no file is given.
const SettingsFileName = "settings.yaml"

// Overrides carries command-line values. Empty fields leave lower layers untouched.
type Overrides struct {
	SettingsFile string
	LightningDir string
	RecklessDir  string
	Conf         string
	Network      string
	Regtest      bool
	Verbose      bool
	Trace        bool
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Load layers defaults, the settings file, the environment and flags, in that
// order, then validates the result.
func Load(o Overrides, lookup LookupEnv) (*Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	settingsFile := o.SettingsFile
	if settingsFile == "" {
		candidate, err := defaultSettingsFile(o)
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(candidate); statErr == nil {
			settingsFile = candidate
		}
	}

	s := Defaults("")
	s.RecklessDir = ""

	if settingsFile != "" {
		fromFile, err := ParseFile(settingsFile)
		if err != nil {
			return nil, err
		}
		s.overlay(*fromFile)
	}

	if v, ok := lookup(EnvGitHubAPI); ok && v != "" {
		s.GitHubAPI = strings.TrimSuffix(v, "/")
	}
	if v, ok := lookup(EnvGitHubBase); ok && v != "" {
		s.GitHubBase = strings.TrimSuffix(v, "/")
	}
	if v, ok := lookup(EnvLightningCLI); ok && v != "" {
		s.LightningCLI = v
	}

	s.overlay(Settings{
		LightningDir: o.LightningDir,
		RecklessDir:  o.RecklessDir,
		Conf:         o.Conf,
		Network:      o.Network,
		Verbose:      o.Verbose,
		Trace:        o.Trace,
	})
	if o.Regtest {
		s.Network = "regtest"
	}

	if err := s.resolvePaths(); err != nil {
		return nil, err
	}
	if err := Validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseFile reads a YAML settings document. Keys that are absent stay zero.
func ParseFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, recklesserrors.NewParseError(path, 0, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, recklesserrors.NewParseError(path, extractLine(err), err)
	}
	return &s, nil
}

func defaultSettingsFile(o Overrides) (string, error) {
	if o.RecklessDir != "" {
		dir, err := ExpandPath(o.RecklessDir)
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, SettingsFileName), nil
	}
	lightningDir := o.LightningDir
	if lightningDir == "" {
		lightningDir = "~/.lightning"
	}
	dir, err := ExpandPath(lightningDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reckless", SettingsFileName), nil
}

// overlay copies every non-zero field of o onto s.
func (s *Settings) overlay(o Settings) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&s.LightningDir, o.LightningDir)
	setString(&s.RecklessDir, o.RecklessDir)
	setString(&s.Network, o.Network)
	setString(&s.Conf, o.Conf)
	setString(&s.LightningCLI, o.LightningCLI)
	setString(&s.GitHubAPI, strings.TrimSuffix(o.GitHubAPI, "/"))
	setString(&s.GitHubBase, strings.TrimSuffix(o.GitHubBase, "/"))

	if o.APICallLimit != 0 {
		s.APICallLimit = o.APICallLimit
	}
	if o.SearchParallelism != 0 {
		s.SearchParallelism = o.SearchParallelism
	}
	if o.SmokeTestTimeout != 0 {
		s.SmokeTestTimeout = o.SmokeTestTimeout
	}
	if o.CloneTimeout != 0 {
		s.CloneTimeout = o.CloneTimeout
	}
	if o.MetadataTimeout != 0 {
		s.MetadataTimeout = o.MetadataTimeout
	}
	if o.DependencyTimeout != 0 {
		s.DependencyTimeout = o.DependencyTimeout
	}
	if o.ControlTimeout != 0 {
		s.ControlTimeout = o.ControlTimeout
	}
	if o.Verbose {
		s.Verbose = true
	}
	if o.Trace {
		s.Trace = true
	}
}

func (s *Settings) resolvePaths() error {
	if s.LightningDir == "" {
		s.LightningDir = "~/.lightning"
	}
	dir, err := ExpandPath(s.LightningDir)
	if err != nil {
		return recklesserrors.NewValidationError("lightning_dir", err.Error(), err)
	}
	s.LightningDir = dir

	if s.RecklessDir == "" {
		s.RecklessDir = filepath.Join(s.LightningDir, "reckless")
	}
	if s.RecklessDir, err = ExpandPath(s.RecklessDir); err != nil {
		return recklesserrors.NewValidationError("reckless_dir", err.Error(), err)
	}

	if s.Conf != "" {
		if s.Conf, err = ExpandPath(s.Conf); err != nil {
			return recklesserrors.NewValidationError("conf", err.Error(), err)
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("empty path")
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			path = home
		} else if strings.HasPrefix(path, "~/") {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Abs(path)
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
