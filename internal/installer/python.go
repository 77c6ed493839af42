package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/alexisbeaulieu97/reckless/internal/execx"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

const venvDir = ".venv"

var wrapperTemplate = template.Must(template.New("wrapper").Parse(`#!{{ .Venv }}/bin/python
import sys
import runpy

if '{{ .Source }}' not in sys.path:
    sys.path.append('{{ .Source }}')
if '{{ .Install }}' in sys.path:
    sys.path.remove('{{ .Install }}')
runpy.run_module("{{ .Module }}", {}, "__main__")
`))

type wrapperData struct {
	Venv    string
	Source  string
	Install string
	Module  string
}

// PythonVenv installs a python plugin into a private virtual environment next
// to its staged source, then replaces the entrypoint redirect with a wrapper
// that runs the plugin module with that environment's interpreter.
type PythonVenv struct {
	Runner   execx.Runner
	LookPath LookPath
	Timeout  time.Duration
	Stream   bool
	Log      *logger.Logger
}

var _ Procedure = (*PythonVenv)(nil)

// Install implements Procedure. Every failure wraps ErrDependencyInstall.
func (p *PythonVenv) Install(ctx context.Context, job Job) error {
	if err := p.install(ctx, job); err != nil {
		return fmt.Errorf("%w: %v", recklesserrors.ErrDependencyInstall, err)
	}
	return nil
}

func (p *PythonVenv) install(ctx context.Context, job Job) error {
	redirect := filepath.Join(job.InstallDir, job.Entrypoint)
	if err := os.Remove(redirect); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove entrypoint redirect: %w", err)
	}

	// The entrypoint is imported as a module, so it needs a .py suffix. The
	// wrapper keeps the original name.
	staged := filepath.Join(job.SourceDir, job.Entrypoint)
	module := strings.TrimSuffix(job.Entrypoint, filepath.Ext(job.Entrypoint))
	if filepath.Ext(job.Entrypoint) != ".py" {
		module = job.Entrypoint
		if err := os.Rename(staged, staged+".py"); err != nil {
			return fmt.Errorf("rename entrypoint: %w", err)
		}
	}

	venv := filepath.Join(job.InstallDir, venvDir)
	if job.Manifest == "pyproject.toml" && p.hasExecutable("poetry") {
		if err := p.poetry(ctx, job); err != nil {
			return err
		}
	} else if err := p.pip(ctx, job, venv); err != nil {
		return err
	}

	return writeWrapper(redirect, wrapperData{
		Venv:    venv,
		Source:  job.SourceDir,
		Install: job.InstallDir,
		Module:  module,
	})
}

func (p *PythonVenv) hasExecutable(name string) bool {
	if p.LookPath == nil {
		return false
	}
	_, err := p.LookPath(name)
	return err == nil
}

// poetry places the environment at InstallDir/.venv by running from the
// install directory with the project files linked in for the duration.
func (p *PythonVenv) poetry(ctx context.Context, job Job) error {
	p.Log.WithField("venv", filepath.Join(job.InstallDir, venvDir)).Debug("configuring a python virtual environment (poetry)")

	var links []string
	defer func() {
		for _, l := range links {
			_ = os.Remove(l)
		}
	}()
	for _, f := range []string{"pyproject.toml", "poetry.lock"} {
		link := filepath.Join(job.InstallDir, f)
		if err := os.Symlink(filepath.Join(job.SourceDir, f), link); err != nil {
			return fmt.Errorf("link %s: %w", f, err)
		}
		links = append(links, link)
	}

	return p.run(ctx, execx.Command{
		Name: "poetry",
		Args: []string{"install", "--no-root"},
		Dir:  job.InstallDir,
		Env:  execx.MergeEnv(map[string]string{"POETRY_VIRTUALENVS_IN_PROJECT": "true"}, "VIRTUAL_ENV"),
	})
}

func (p *PythonVenv) pip(ctx context.Context, job Job, venv string) error {
	p.Log.WithField("venv", venv).Debug("configuring a python virtual environment (pip)")

	if err := p.run(ctx, execx.Command{Name: "python3", Args: []string{"-m", "venv", venv}, Dir: job.InstallDir}); err != nil {
		return err
	}

	pipBin := filepath.Join(venv, "bin", "pip")
	switch job.Manifest {
	case "pyproject.toml":
		return p.run(ctx, execx.Command{Name: pipBin, Args: []string{"install", job.SourceDir}, Dir: job.SourceDir})
	case "requirements.txt":
		return p.run(ctx, execx.Command{
			Name: pipBin,
			Args: []string{"install", "-r", filepath.Join(job.SourceDir, "requirements.txt")},
			Dir:  job.SourceDir,
		})
	default:
		p.Log.Debug("no python dependency file")
		return nil
	}
}

func (p *PythonVenv) run(ctx context.Context, cmd execx.Command) error {
	cmd.Timeout = p.Timeout
	if cmd.Timeout <= 0 {
		cmd.Timeout = DefaultDependencyTimeout
	}
	cmd.Stream = p.Stream

	p.Log.WithField("command", cmd.String()).Debug("running")
	res, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		p.Log.WithField("output", res.PrimaryOutput()).Debug("command failed")
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

func writeWrapper(path string, data wrapperData) error {
	var buf bytes.Buffer
	if err := wrapperTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("render wrapper: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o755); err != nil {
		return fmt.Errorf("write wrapper: %w", err)
	}
	return os.Chmod(path, 0o755)
}
