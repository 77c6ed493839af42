// Package manager wires search, installation and activation together for one
// reckless invocation.
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alexisbeaulieu97/reckless/internal/activation"
	"github.com/alexisbeaulieu97/reckless/internal/config"
	"github.com/alexisbeaulieu97/reckless/internal/installer"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/pipeline"
	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// Searcher finds a plugin among source locators.
type Searcher interface {
	Search(ctx context.Context, name string, locators []string) (plugin.Descriptor, error)
}

// Installer runs the installation pipeline.
type Installer interface {
	InstallObserved(ctx context.Context, located plugin.Descriptor, observe pipeline.Observer) (plugin.Descriptor, error)
}

// ControlPlane starts and stops plugins in the running daemon.
type ControlPlane interface {
	Start(ctx context.Context, entrypoint string) error
	Stop(ctx context.Context, entrypoint string) error
	ActiveConf(ctx context.Context) (string, bool, error)
}

// Deps are the collaborators a Service uses.
type Deps struct {
	Registry  *installer.Registry
	Searcher  Searcher
	Installer Installer
	Control   ControlPlane
	Sources   *activation.Sources
}

// Service implements the reckless commands.
type Service struct {
	settings config.Settings
	deps     Deps
	log      *logger.Logger

	once      sync.Once
	activeCfg *activation.Config
	cfgErr    error
}

// New returns a Service over deps.
func New(settings config.Settings, deps Deps, log *logger.Logger) *Service {
	return &Service{settings: settings, deps: deps, log: log}
}

// Settings returns the settings the service was built with.
func (s *Service) Settings() config.Settings { return s.settings }

// Search looks for name in the configured sources.
func (s *Service) Search(ctx context.Context, name string) (plugin.Descriptor, error) {
	sources, err := s.deps.Sources.List()
	if err != nil {
		return plugin.Descriptor{}, fmt.Errorf("read sources: %w", err)
	}
	return s.deps.Searcher.Search(ctx, name, sources)
}

// Install searches for the requested plugin, installs it and enables it. raw
// may carry a commit or tag as "name@ref".
func (s *Service) Install(ctx context.Context, raw string, observe pipeline.Observer) (plugin.Descriptor, error) {
	req, err := plugin.ParseRequest(raw)
	if err != nil {
		return plugin.Descriptor{}, err
	}
	log := s.log.WithField("plugin", req.String())

	dest := filepath.Join(s.settings.InstallRoot(), req.Name)
	if _, err := os.Lstat(dest); err == nil {
		return plugin.Descriptor{}, fmt.Errorf("%w: %s", recklesserrors.ErrAlreadyInstalled, dest)
	}

	located, err := s.Search(ctx, req.Name)
	if err != nil {
		return plugin.Descriptor{}, err
	}
	log.WithField("source", located.Source).Debug("plugin located")

	installed, err := s.deps.Installer.InstallObserved(ctx, located.WithRequest(req), observe)
	if err != nil {
		return plugin.Descriptor{}, err
	}

	if err := s.activate(ctx, installed.Name, installed.EntrypointPath()); err != nil {
		return installed, fmt.Errorf("%s installed but not enabled: %w", installed.Name, err)
	}
	return installed, nil
}

// Uninstall disables an installed plugin and removes it.
func (s *Service) Uninstall(ctx context.Context, name string) (pipeline.Installed, error) {
	inst, err := s.locate(name)
	if err != nil {
		return pipeline.Installed{}, err
	}
	if err := s.deactivate(ctx, inst.Name, inst.EntrypointPath()); err != nil {
		return inst, err
	}
	if err := pipeline.Remove(inst); err != nil {
		return inst, err
	}
	s.log.WithField("plugin", inst.Name).Debug("plugin removed")
	return inst, nil
}

// Enable starts an installed plugin and records it as active.
func (s *Service) Enable(ctx context.Context, name string) (pipeline.Installed, error) {
	inst, err := s.locate(name)
	if err != nil {
		return pipeline.Installed{}, err
	}
	return inst, s.activate(ctx, inst.Name, inst.EntrypointPath())
}

// Disable stops an installed plugin and records it as inactive.
func (s *Service) Disable(ctx context.Context, name string) (pipeline.Installed, error) {
	inst, err := s.locate(name)
	if err != nil {
		return pipeline.Installed{}, err
	}
	return inst, s.deactivate(ctx, inst.Name, inst.EntrypointPath())
}

// Sources lists the configured plugin sources.
func (s *Service) Sources() ([]string, error) {
	return s.deps.Sources.List()
}

// AddSource adds a plugin source.
func (s *Service) AddSource(src string) error {
	return s.deps.Sources.Add(src)
}

// RemoveSource removes a plugin source.
func (s *Service) RemoveSource(src string) error {
	return s.deps.Sources.Remove(src)
}

func (s *Service) locate(name string) (pipeline.Installed, error) {
	inst, err := pipeline.Locate(s.settings.InstallRoot(), name, s.deps.Registry)
	if err != nil {
		return pipeline.Installed{}, err
	}
	if _, err := os.Stat(inst.EntrypointPath()); err != nil {
		return inst, fmt.Errorf("%w: cannot find installed plugin at expected path %s", recklesserrors.ErrNotInstalled, inst.EntrypointPath())
	}
	return inst, nil
}

func (s *Service) activate(ctx context.Context, name, entrypoint string) error {
	cfg, err := s.activation(ctx)
	if err != nil {
		return err
	}
	if err := s.deps.Control.Start(ctx, entrypoint); err != nil {
		if !errors.Is(err, recklesserrors.ErrControlPlaneUnavailable) {
			return fmt.Errorf("%s failed to start: %w", name, err)
		}
		s.log.WithField("plugin", name).Debug("lightningd rpc unavailable, skipping dynamic activation")
	}
	_, err = cfg.Enable(entrypoint)
	return err
}

func (s *Service) deactivate(ctx context.Context, name, entrypoint string) error {
	cfg, err := s.activation(ctx)
	if err != nil {
		return err
	}
	if err := s.deps.Control.Stop(ctx, entrypoint); err != nil {
		if !errors.Is(err, recklesserrors.ErrControlPlaneUnavailable) {
			return fmt.Errorf("%s failed to stop: %w", name, err)
		}
		s.log.WithField("plugin", name).Debug("lightningd rpc unavailable, skipping dynamic deactivation")
	}
	_, err = cfg.Disable(entrypoint)
	return err
}

// activation checks the daemon agrees on the network config, then creates
// the activation files. It runs once per Service.
func (s *Service) activation(ctx context.Context) (*activation.Config, error) {
	s.once.Do(func() {
		if s.cfgErr = s.checkConf(ctx); s.cfgErr != nil {
			return
		}
		s.activeCfg, s.cfgErr = activation.Bootstrap(s.settings.RecklessConfigPath(), s.settings.NetworkConfigPath(), s.log)
	})
	return s.activeCfg, s.cfgErr
}

func (s *Service) checkConf(ctx context.Context) error {
	active, found, err := s.deps.Control.ActiveConf(ctx)
	if err != nil {
		s.log.WithField("error", err.Error()).Debug("could not read lightningd configuration")
		return nil
	}
	if !found {
		return nil
	}
	expected := s.settings.NetworkConfigPath()
	if !activation.SameFile(active, expected) {
		return fmt.Errorf("%w: reckless network config path: %s, lightningd active config: %s",
			recklesserrors.ErrConfigMismatch, expected, active)
	}
	return nil
}
