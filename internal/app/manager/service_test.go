package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reckless/internal/activation"
	"github.com/alexisbeaulieu97/reckless/internal/config"
	"github.com/alexisbeaulieu97/reckless/internal/installer"
	"github.com/alexisbeaulieu97/reckless/internal/pipeline"
	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	"github.com/alexisbeaulieu97/reckless/internal/source"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

type fakeSearcher struct {
	found    plugin.Descriptor
	err      error
	searched []string
	sources  []string
}

func (f *fakeSearcher) Search(_ context.Context, name string, locators []string) (plugin.Descriptor, error) {
	f.searched = append(f.searched, name)
	f.sources = locators
	return f.found, f.err
}

// fakeInstaller lays out an installed plugin the way the pipeline does.
type fakeInstaller struct {
	root     string
	err      error
	received []plugin.Descriptor
}

func (f *fakeInstaller) InstallObserved(_ context.Context, located plugin.Descriptor, observe pipeline.Observer) (plugin.Descriptor, error) {
	f.received = append(f.received, located)
	if f.err != nil {
		return plugin.Descriptor{}, f.err
	}
	dir := filepath.Join(f.root, located.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return plugin.Descriptor{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, located.Entrypoint), []byte("#!/bin/sh\n"), 0o755); err != nil {
		return plugin.Descriptor{}, err
	}
	if observe != nil {
		observe(pipeline.Event{Plugin: located.Name, Stage: pipeline.Committed})
	}
	return located.Relocate(dir), nil
}

type fakeControl struct {
	startErr   error
	stopErr    error
	activeConf string
	confErr    error
	started    []string
	stopped    []string
}

func (f *fakeControl) Start(_ context.Context, entry string) error {
	f.started = append(f.started, entry)
	return f.startErr
}

func (f *fakeControl) Stop(_ context.Context, entry string) error {
	f.stopped = append(f.stopped, entry)
	return f.stopErr
}

func (f *fakeControl) ActiveConf(context.Context) (string, bool, error) {
	return f.activeConf, f.activeConf != "", f.confErr
}

type env struct {
	svc       *Service
	settings  config.Settings
	searcher  *fakeSearcher
	installer *fakeInstaller
	control   *fakeControl
}

func newEnv(t *testing.T) *env {
	t.Helper()
	settings := config.Defaults(t.TempDir())

	registry, err := installer.Default(installer.Options{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
	})
	require.NoError(t, err)

	e := &env{
		settings: settings,
		searcher: &fakeSearcher{
			found: plugin.New("summary", source.Classified{Locator: "https://github.com/lightningd/plugins", Type: source.RemoteRepo}).
				WithMatch("https://api.github.com/repos/lightningd/plugins/contents/summary", "summary", "summary.py", "requirements.txt"),
		},
		installer: &fakeInstaller{root: settings.InstallRoot()},
		control:   &fakeControl{},
	}
	e.svc = New(settings, Deps{
		Registry:  registry,
		Searcher:  e.searcher,
		Installer: e.installer,
		Control:   e.control,
		Sources:   activation.NewSources(settings.SourcesPath()),
	}, nil)
	return e
}

func (e *env) recklessConfig(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(e.settings.RecklessConfigPath())
	require.NoError(t, err)
	return string(data)
}

func TestInstallEnablesPlugin(t *testing.T) {
	e := newEnv(t)

	var events []pipeline.Event
	installed, err := e.svc.Install(context.Background(), "summary", func(ev pipeline.Event) { events = append(events, ev) })
	require.NoError(t, err)

	entry := filepath.Join(e.settings.InstallRoot(), "summary", "summary.py")
	assert.Equal(t, entry, installed.EntrypointPath())
	assert.Equal(t, []string{entry}, e.control.started)
	assert.Len(t, events, 1)
	assert.Equal(t, []string{activation.DefaultSource}, e.searcher.sources)
	assert.Contains(t, e.recklessConfig(t), "plugin="+entry+"\n")

	network, err := os.ReadFile(e.settings.NetworkConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(network), "include "+e.settings.RecklessConfigPath())
}

func TestInstallPassesRequestedCommit(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Install(context.Background(), "summary@v0.2", nil)
	require.NoError(t, err)
	require.Len(t, e.installer.received, 1)
	assert.Equal(t, "v0.2", e.installer.received[0].RequestedCommit)
	assert.Equal(t, []string{"summary"}, e.searcher.searched)
}

func TestInstallWithoutControlPlaneStillEnables(t *testing.T) {
	e := newEnv(t)
	e.control.startErr = recklesserrors.ErrControlPlaneUnavailable
	e.control.confErr = recklesserrors.ErrControlPlaneUnavailable

	installed, err := e.svc.Install(context.Background(), "summary", nil)
	require.NoError(t, err)
	assert.Contains(t, e.recklessConfig(t), "plugin="+installed.EntrypointPath())
}

func TestInstallReportsStartRefusal(t *testing.T) {
	e := newEnv(t)
	e.control.startErr = &recklesserrors.ControlPlaneError{Code: -3, Message: "exited before replying to getmanifest"}

	installed, err := e.svc.Install(context.Background(), "summary", nil)
	var cpErr *recklesserrors.ControlPlaneError
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, "summary", installed.Name)
	assert.NotContains(t, e.recklessConfig(t), "plugin=")
}

func TestInstallRefusesExistingBeforeSearching(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(e.settings.InstallRoot(), "summary"), 0o755))

	_, err := e.svc.Install(context.Background(), "summary", nil)
	assert.ErrorIs(t, err, recklesserrors.ErrAlreadyInstalled)
	assert.Empty(t, e.searcher.searched)
}

func TestInstallStopsWhenSearchFails(t *testing.T) {
	for _, kind := range []error{recklesserrors.ErrNotFound, recklesserrors.ErrRateLimitExceeded} {
		e := newEnv(t)
		e.searcher.err = kind

		_, err := e.svc.Install(context.Background(), "summary", nil)
		assert.ErrorIs(t, err, kind)
		assert.Empty(t, e.installer.received)
		assert.NoFileExists(t, e.settings.RecklessConfigPath())
	}
}

func TestInstallPropagatesPipelineFailure(t *testing.T) {
	e := newEnv(t)
	e.installer.err = recklesserrors.NewStageError("summary", pipeline.Tested.String(), recklesserrors.ErrSmokeTest, errors.New("exit code 1"))

	_, err := e.svc.Install(context.Background(), "summary", nil)
	assert.ErrorIs(t, err, recklesserrors.ErrSmokeTest)
	assert.Empty(t, e.control.started)
}

func TestInstallRejectsEmptyName(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Install(context.Background(), "@v1", nil)
	require.Error(t, err)
	assert.Empty(t, e.searcher.searched)
}

func TestUninstall(t *testing.T) {
	e := newEnv(t)
	installed, err := e.svc.Install(context.Background(), "summary", nil)
	require.NoError(t, err)

	removed, err := e.svc.Uninstall(context.Background(), "summary.py")
	require.NoError(t, err)
	assert.Equal(t, "summary", removed.Name)
	assert.Equal(t, []string{installed.EntrypointPath()}, e.control.stopped)
	assert.NoDirExists(t, filepath.Join(e.settings.InstallRoot(), "summary"))

	conf := e.recklessConfig(t)
	assert.Contains(t, conf, "disable-plugin="+installed.EntrypointPath())
	assert.NotContains(t, conf, "\nplugin=")

	_, err = e.svc.Uninstall(context.Background(), "summary")
	assert.ErrorIs(t, err, recklesserrors.ErrNotInstalled)
}

func TestUninstallKeepsPluginWhenStopRefused(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Install(context.Background(), "summary", nil)
	require.NoError(t, err)
	e.control.stopErr = &recklesserrors.ControlPlaneError{Code: -3, Message: "plugin cannot be managed"}

	_, err = e.svc.Uninstall(context.Background(), "summary")
	require.Error(t, err)
	assert.DirExists(t, filepath.Join(e.settings.InstallRoot(), "summary"))
}

func TestEnableDisable(t *testing.T) {
	e := newEnv(t)
	installed, err := e.svc.Install(context.Background(), "summary", nil)
	require.NoError(t, err)
	entry := installed.EntrypointPath()

	e.control.stopErr = recklesserrors.ErrControlPlaneUnavailable
	_, err = e.svc.Disable(context.Background(), "SUMMARY")
	require.NoError(t, err)
	assert.Contains(t, e.recklessConfig(t), "disable-plugin="+entry)

	inst, err := e.svc.Enable(context.Background(), "summary")
	require.NoError(t, err)
	assert.Equal(t, entry, inst.EntrypointPath())
	conf := e.recklessConfig(t)
	assert.Contains(t, conf, "plugin="+entry)
	assert.NotContains(t, conf, "disable-plugin=")
	assert.Equal(t, []string{entry, entry}, e.control.started)

	_, err = e.svc.Enable(context.Background(), "missing")
	assert.ErrorIs(t, err, recklesserrors.ErrNotInstalled)
}

func TestActivationRefusesMismatchedConfig(t *testing.T) {
	e := newEnv(t)
	e.control.activeConf = filepath.Join(t.TempDir(), "elsewhere", "config")

	_, err := e.svc.Install(context.Background(), "summary", nil)
	assert.ErrorIs(t, err, recklesserrors.ErrConfigMismatch)
	assert.NoFileExists(t, e.settings.RecklessConfigPath())
	assert.Empty(t, e.control.started)
}

func TestActivationAcceptsMatchingConfig(t *testing.T) {
	e := newEnv(t)
	e.control.activeConf = e.settings.NetworkConfigPath()

	_, err := e.svc.Install(context.Background(), "summary", nil)
	require.NoError(t, err)
}

func TestSources(t *testing.T) {
	e := newEnv(t)

	got, err := e.svc.Sources()
	require.NoError(t, err)
	assert.Equal(t, []string{activation.DefaultSource}, got)

	require.NoError(t, e.svc.AddSource("https://github.com/someone/plugins"))
	assert.ErrorIs(t, e.svc.AddSource("nonsense"), recklesserrors.ErrInvalidSource)
	require.NoError(t, e.svc.RemoveSource(activation.DefaultSource))
	assert.ErrorIs(t, e.svc.RemoveSource(activation.DefaultSource), recklesserrors.ErrSourceNotFound)

	got, err = e.svc.Sources()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/someone/plugins"}, got)

	_, err = e.svc.Search(context.Background(), "summary")
	require.NoError(t, err)
	assert.Equal(t, got, e.searcher.sources)
}
