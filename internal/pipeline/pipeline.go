// Package pipeline installs a located plugin: it clones, checks out, stages,
// installs dependencies and tests it, leaving nothing behind on failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexisbeaulieu97/reckless/internal/execx"
	"github.com/alexisbeaulieu97/reckless/internal/installer"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	"github.com/alexisbeaulieu97/reckless/internal/resolver"
	"github.com/alexisbeaulieu97/reckless/internal/source"
	"github.com/alexisbeaulieu97/reckless/internal/tree"
	"github.com/alexisbeaulieu97/reckless/internal/vcs"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// DefaultSmokeTestTimeout is how long a plugin must survive, or exit cleanly
// within, to pass its smoke test.
const DefaultSmokeTestTimeout = 10 * time.Second

// SourceDirName holds the staged plugin inside its install directory.
const SourceDirName = "source"

const tracerName = "reckless.pipeline"

// Pipeline installs plugins below one install root.
type Pipeline struct {
	installRoot  string
	tempDir      string
	githubBase   string
	smokeTimeout time.Duration

	vcs      vcs.Client
	registry *installer.Registry
	resolver *resolver.Resolver
	runner   execx.Runner

	observer Observer
	now      func() time.Time
	tracer   trace.Tracer
	log      *logger.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithTempDir sets where temporary clones are made. Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(p *Pipeline) {
		if dir != "" {
			p.tempDir = dir
		}
	}
}

// WithGitHubBase rebases remote repository clone URLs onto base.
func WithGitHubBase(base string) Option {
	return func(p *Pipeline) {
		p.githubBase = strings.TrimSuffix(base, "/")
	}
}

// WithSmokeTestTimeout overrides DefaultSmokeTestTimeout.
func WithSmokeTestTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.smokeTimeout = d
		}
	}
}

// WithObserver receives stage events.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithClock replaces time.Now for metadata.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTracerProvider replaces the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// New returns a Pipeline installing into installRoot.
func New(installRoot string, client vcs.Client, registry *installer.Registry, runner execx.Runner, opts ...Option) *Pipeline {
	p := &Pipeline{
		installRoot:  installRoot,
		tempDir:      os.TempDir(),
		smokeTimeout: DefaultSmokeTestTimeout,
		vcs:          client,
		registry:     registry,
		runner:       runner,
		now:          time.Now,
		tracer:       otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.resolver = resolver.New(registry, p.log)
	return p
}

// InstallDir is where name is, or would be, installed.
func (p *Pipeline) InstallDir(name string) string {
	return filepath.Join(p.installRoot, name)
}

// run carries the state of one installation.
type run struct {
	p        *Pipeline
	ctx      context.Context
	span     trace.Span
	stage    Stage
	current  trace.Span
	log      *logger.Logger
	desc     plugin.Descriptor
	work     string
	install  string
	staging  bool
	finished bool
	observe  Observer
}

// Install takes a located plugin to Committed and returns its descriptor,
// now pointing at the install directory. On any failure both the temporary
// clone and a partially staged install directory are removed, and the error
// is a *StageError naming the stage that could not be reached.
func (p *Pipeline) Install(ctx context.Context, located plugin.Descriptor) (plugin.Descriptor, error) {
	return p.InstallObserved(ctx, located, nil)
}

// InstallObserved is Install with an extra observer for this run only.
func (p *Pipeline) InstallObserved(ctx context.Context, located plugin.Descriptor, observe Observer) (plugin.Descriptor, error) {
	ctx, span := p.tracer.Start(ctx, "reckless.install", trace.WithAttributes(
		attribute.String("plugin.name", located.Name),
		attribute.String("plugin.source", located.Source),
		attribute.String("plugin.source_type", located.SourceType.String()),
	))
	defer span.End()

	r := &run{
		p:       p,
		ctx:     ctx,
		span:    span,
		log:     p.log.WithFields(map[string]any{"plugin": located.Name, "source": located.Source}),
		desc:    located,
		install: p.InstallDir(located.Name),
		observe: observe,
	}

	if _, err := os.Lstat(r.install); err == nil {
		err = fmt.Errorf("%w: %s", recklesserrors.ErrAlreadyInstalled, r.install)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return located, err
	}

	defer r.cleanup()
	r.advance(Located, "")

	installed, err := r.execute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return located, err
	}
	r.finished = true
	span.SetStatus(codes.Ok, "plugin installed")
	return installed, nil
}

func (r *run) execute(ctx context.Context) (plugin.Descriptor, error) {
	p := r.p
	name := r.desc.Name

	work, err := p.workDir()
	if err != nil {
		return r.fail(Cloned, recklesserrors.ErrClone, err)
	}
	r.work = work
	cloneDir := filepath.Join(work, "clone", name)

	pluginDir, err := r.fetch(ctx, cloneDir)
	if err != nil {
		return r.fail(Cloned, recklesserrors.ErrClone, err)
	}
	r.advance(Cloned, cloneDir)

	if err := r.checkout(ctx, cloneDir); err != nil {
		return r.fail(CommitChecked, recklesserrors.ErrCheckout, err)
	}
	r.advance(CommitChecked, r.desc.InstalledCommit)

	cloned, err := r.reresolve(ctx, pluginDir, cloneDir)
	if err != nil {
		return r.fail(InstallerSelected, recklesserrors.ErrClone, err)
	}
	spec, err := p.registry.Select(cloned.Location)
	if err != nil {
		return r.fail(InstallerSelected, recklesserrors.ErrNoInstaller, err)
	}
	r.span.SetAttributes(attribute.String("plugin.installer", spec.Name))
	r.advance(InstallerSelected, spec.Name)

	sourceDir := filepath.Join(r.install, SourceDirName)
	r.staging = true
	if err := stage(cloned.Location, r.install, sourceDir, cloned.Entrypoint); err != nil {
		return r.fail(Staged, recklesserrors.ErrClone, err)
	}
	staged := cloned.Relocate(r.install)
	r.advance(Staged, sourceDir)

	job := installer.Job{
		Name:       name,
		InstallDir: r.install,
		SourceDir:  sourceDir,
		Entrypoint: staged.Entrypoint,
		Manifest:   staged.Manifest,
	}
	if err := spec.Procedure.Install(ctx, job); err != nil {
		return r.fail(DependenciesInstalled, recklesserrors.ErrDependencyInstall, err)
	}
	r.advance(DependenciesInstalled, spec.Manager)

	if err := r.smokeTest(ctx, staged, sourceDir); err != nil {
		return r.fail(Tested, recklesserrors.ErrSmokeTest, err)
	}
	r.advance(Tested, "")

	if err := plugin.WriteMetadata(r.install, plugin.NewMetadata(staged, p.now())); err != nil {
		return r.fail(Committed, recklesserrors.ErrClone, err)
	}
	r.advance(Committed, r.install)
	return staged, nil
}

func (p *Pipeline) workDir() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("temporary directory id: %w", err)
	}
	dir := filepath.Join(p.tempDir, "reckless-"+id.String())
	if err := os.MkdirAll(filepath.Join(dir, "clone"), 0o755); err != nil {
		return "", fmt.Errorf("create temporary directory: %w", err)
	}
	return dir, nil
}

// fetch copies or clones the source into cloneDir and returns the plugin
// directory inside it.
func (r *run) fetch(ctx context.Context, cloneDir string) (string, error) {
	d := r.desc
	switch d.SourceType {
	case source.Directory:
		from := d.Location
		if from == "" {
			from = filepath.Join(d.Source, filepath.FromSlash(d.Subdir))
		}
		r.log.WithField("from", from).Debug("copying local directory")
		if err := copyTree(from, cloneDir); err != nil {
			return "", fmt.Errorf("copy %s: %w", from, err)
		}
		return cloneDir, nil
	case source.LocalRepo, source.RemoteRepo, source.GenericURL:
		url, prefix := r.p.cloneURL(d)
		r.log.WithField("url", url).Debug("cloning")
		if err := r.p.vcs.Clone(ctx, url, cloneDir); err != nil {
			return "", err
		}
		return filepath.Join(cloneDir, filepath.FromSlash(prefix), filepath.FromSlash(d.Subdir)), nil
	default:
		return "", fmt.Errorf("cannot install from %s source %q", d.SourceType, d.Source)
	}
}

// cloneURL returns what to clone for d and the path of the source below the
// clone root.
func (p *Pipeline) cloneURL(d plugin.Descriptor) (string, string) {
	switch d.SourceType {
	case source.RemoteRepo:
		if p.githubBase != "" {
			if i := strings.Index(d.Source, source.DefaultRemoteHost); i >= 0 {
				return p.githubBase + d.Source[i+len(source.DefaultRemoteHost):], ""
			}
		}
		return d.Source, ""
	case source.LocalRepo:
		root, prefix := worktreeRoot(d.Source)
		return root, prefix
	default:
		return d.Source, ""
	}
}

// worktreeRoot walks up from dir to the directory holding .git.
func worktreeRoot(dir string) (string, string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir, ""
	}
	for cur := abs; ; {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			rel, err := filepath.Rel(cur, abs)
			if err != nil || rel == "." {
				return cur, ""
			}
			return cur, filepath.ToSlash(rel)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, ""
		}
		cur = parent
	}
}

func (r *run) checkout(ctx context.Context, cloneDir string) error {
	d := r.desc
	if !d.SourceType.IsRepository() {
		if d.RequestedCommit != "" {
			r.log.WithField("commit", d.RequestedCommit).Warn("unable to check out a commit on a non-repository source")
		}
		return nil
	}

	if d.RequestedCommit != "" {
		r.log.WithField("commit", d.RequestedCommit).Debug("checking out")
		if err := r.p.vcs.Checkout(ctx, cloneDir, d.RequestedCommit); err != nil {
			return fmt.Errorf("check out %s: %w", d.RequestedCommit, err)
		}
	} else {
		r.log.Debug("using latest commit of default branch")
	}

	head, err := r.p.vcs.Head(ctx, cloneDir)
	if err != nil {
		return fmt.Errorf("resolve head: %w", err)
	}
	r.desc = d.WithInstalledCommit(head)
	r.span.SetAttributes(attribute.String("plugin.commit", head))
	return nil
}

// reresolve finds the plugin layout in the clone, which is authoritative over
// whatever the search saw.
func (r *run) reresolve(ctx context.Context, pluginDir, cloneDir string) (plugin.Descriptor, error) {
	base := r.desc
	name := filepath.Base(pluginDir)
	d, ok, err := r.p.resolver.Resolve(ctx, base, tree.NewDir(name, pluginDir, tree.Filesystem{}), 1)
	if err != nil {
		return base, err
	}
	if ok && d.Resolved() {
		d.Subdir = base.Subdir
		return d, nil
	}

	r.log.Debug("plugin not at the expected location in the clone, searching it")
	d, ok, err = r.p.resolver.Resolve(ctx, base, tree.NewDir(filepath.Base(cloneDir), cloneDir, tree.Filesystem{}), resolver.LocalDepth)
	if err != nil {
		return base, err
	}
	if !ok || !d.Resolved() {
		return base, errors.New("plugin not found after cloning")
	}
	return d, nil
}

// stage copies the plugin into sourceDir and links the entrypoint at the
// install root so the daemon loads it by its usual name.
func stage(pluginDir, installDir, sourceDir, entrypoint string) error {
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return err
	}
	if err := copyTree(pluginDir, sourceDir, ".git"); err != nil {
		return fmt.Errorf("copy to %s: %w", sourceDir, err)
	}
	return os.Symlink(filepath.Join(sourceDir, entrypoint), filepath.Join(installDir, entrypoint))
}

// smokeTest runs the staged entrypoint. A plugin still running at the
// timeout passes.
func (r *run) smokeTest(ctx context.Context, staged plugin.Descriptor, sourceDir string) error {
	res, err := r.p.runner.Run(ctx, execx.Command{
		Name:    filepath.Join(r.install, staged.Entrypoint),
		Dir:     sourceDir,
		Timeout: r.p.smokeTimeout,
	})
	if err == nil {
		return nil
	}
	if res.TimedOut || errors.Is(err, context.DeadlineExceeded) {
		r.log.Debug("plugin still running at the end of its test, assuming it works")
		return nil
	}
	for _, line := range strings.Split(res.Stderr, "\n") {
		if line != "" {
			r.log.Debug("  " + line)
		}
	}
	return fmt.Errorf("exit code %d: %w", res.ExitCode, err)
}

// beginStage opens the span covering the work that reaches s.
func (r *run) beginStage(s Stage) {
	_, r.current = r.p.tracer.Start(r.ctx, "reckless.stage."+s.String(), trace.WithAttributes(
		attribute.String("plugin.name", r.desc.Name),
		attribute.String("stage", s.String()),
	))
	r.stage = s
}

// stageSpan returns the open span for s, opening one if needed.
func (r *run) stageSpan(s Stage) trace.Span {
	if r.current == nil || r.stage != s {
		r.endStage()
		r.beginStage(s)
	}
	return r.current
}

func (r *run) endStage() {
	if r.current != nil {
		r.current.End()
		r.current = nil
	}
}

func (r *run) advance(s Stage, detail string) {
	r.stageSpan(s).SetStatus(codes.Ok, "")
	r.endStage()
	if s < Committed {
		r.beginStage(s + 1)
	}
	r.span.AddEvent(s.String())
	r.log.WithField("stage", s.String()).Debug("installation progressed")
	r.emit(Event{Plugin: r.desc.Name, Stage: s, Detail: detail})
}

func (r *run) fail(s Stage, kind, err error) (plugin.Descriptor, error) {
	stageErr := recklesserrors.NewStageError(r.desc.Name, s.String(), kind, err)
	span := r.stageSpan(s)
	span.RecordError(stageErr)
	span.SetStatus(codes.Error, stageErr.Error())
	r.endStage()
	r.span.SetAttributes(attribute.String("plugin.failed_stage", s.String()))
	r.emit(Event{Plugin: r.desc.Name, Stage: s, Failed: true, Err: stageErr})
	return r.desc, stageErr
}

// cleanup always removes the temporary clone, and removes the install
// directory unless the run finished.
func (r *run) cleanup() {
	r.endStage()
	if r.work != "" {
		if err := os.RemoveAll(r.work); err != nil {
			r.log.Error(err, "failed to remove temporary clone")
		}
	}
	if r.staging && !r.finished {
		r.log.WithField("dir", r.install).Debug("rolling back partial installation")
		if err := os.RemoveAll(r.install); err != nil {
			r.log.Error(err, "failed to remove partial installation")
		}
	}
}

func (r *run) emit(e Event) {
	if r.p.observer != nil {
		r.p.observer(e)
	}
	if r.observe != nil {
		r.observe(e)
	}
}
