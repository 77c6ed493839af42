package installer

import (
	"time"

	"github.com/alexisbeaulieu97/reckless/internal/execx"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
)

// Options configures the stock installers.
type Options struct {
	Runner   execx.Runner
	LookPath LookPath
	Timeout  time.Duration
	Stream   bool
	Log      *logger.Logger
}

var pythonEntries = []string{"{name}.py", "{name}", "__init__.py"}

// DefaultSpecs returns the stock installers in priority order.
func DefaultSpecs(opts Options) []Spec {
	venv := &PythonVenv{
		Runner:   opts.Runner,
		LookPath: opts.LookPath,
		Timeout:  opts.Timeout,
		Stream:   opts.Stream,
		Log:      opts.Log,
	}

	return []Spec{
		{
			Name:          "python3venv",
			Mimetype:      "text/x-python",
			Interpreter:   "python3",
			Manager:       "pip",
			EntryPatterns: pythonEntries,
			Manifest:      "requirements.txt",
			Procedure:     venv,
		},
		{
			Name:          "poetryvenv",
			Mimetype:      "text/x-python",
			Interpreter:   "python3",
			Manager:       "poetry",
			EntryPatterns: pythonEntries,
			Manifest:      "pyproject.toml",
			Procedure:     venv,
		},
		{
			Name:          "pyprojectViaPip",
			Mimetype:      "text/x-python",
			Interpreter:   "python3",
			Manager:       "pip",
			EntryPatterns: pythonEntries,
			Manifest:      "pyproject.toml",
			Procedure:     venv,
		},
		{
			Name:          "nodejs",
			Mimetype:      "application/javascript",
			Interpreter:   "node",
			Manager:       "npm",
			EntryPatterns: []string{"{name}.js", "{name}"},
			Manifest:      "package.json",
			Procedure: &CommandProcedure{
				Calls:   [][]string{{"npm", "install", "--omit=dev"}},
				Runner:  opts.Runner,
				Timeout: opts.Timeout,
				Stream:  opts.Stream,
				Log:     opts.Log,
			},
		},
	}
}

// Default returns a registry of the stock installers.
func Default(opts Options) (*Registry, error) {
	return NewRegistry(opts.LookPath, DefaultSpecs(opts)...)
}
