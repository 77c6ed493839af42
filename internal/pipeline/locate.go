package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/reckless/internal/installer"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// Installed is a plugin present in the install root.
type Installed struct {
	Name       string
	Dir        string
	Entrypoint string
}

// EntrypointPath is the absolute path the daemon is told to load.
func (i Installed) EntrypointPath() string {
	return filepath.Join(i.Dir, i.Entrypoint)
}

// Locate finds an installed plugin by name. The name may be given in an
// entrypoint form such as "summary.py" and is matched ignoring case.
func Locate(installRoot, name string, registry *installer.Registry) (Installed, error) {
	want := registry.PluginName(strings.TrimSpace(name))

	entries, err := os.ReadDir(installRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Installed{}, fmt.Errorf("%w: %s", recklesserrors.ErrNotInstalled, want)
		}
		return Installed{}, fmt.Errorf("read %s: %w", installRoot, err)
	}

	for _, e := range entries {
		if !e.IsDir() || !strings.EqualFold(e.Name(), want) {
			continue
		}
		dir := filepath.Join(installRoot, e.Name())
		if entry, ok := findEntrypoint(dir, registry.EntrypointGuesses(want)); ok {
			return Installed{Name: e.Name(), Dir: dir, Entrypoint: entry}, nil
		}
		return Installed{}, fmt.Errorf("%w: no entrypoint for %s in %s", recklesserrors.ErrNotInstalled, want, dir)
	}
	return Installed{}, fmt.Errorf("%w: %s", recklesserrors.ErrNotInstalled, want)
}

// findEntrypoint returns the first guess present in dir as a file or link,
// ignoring case.
func findEntrypoint(dir string, guesses []string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, guess := range guesses {
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(e.Name(), guess) {
				return e.Name(), true
			}
		}
	}
	return "", false
}

// Remove deletes an installed plugin.
func Remove(i Installed) error {
	if i.Dir == "" {
		return fmt.Errorf("%w: %s", recklesserrors.ErrNotInstalled, i.Name)
	}
	if err := os.RemoveAll(i.Dir); err != nil {
		return fmt.Errorf("remove %s: %w", i.Dir, err)
	}
	return nil
}
