// Package installer describes the language ecosystems plugins can be built
// for and picks the one a plugin directory can use.
package installer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/reckless/internal/config"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// NamePlaceholder is replaced by the plugin name in entrypoint patterns.
const NamePlaceholder = "{name}"

// Job is the staged plugin a dependency procedure works on.
type Job struct {
	Name string
	// InstallDir is <install root>/<name>; it holds the entrypoint redirect.
	InstallDir string
	// SourceDir is InstallDir/source, the staged copy of the plugin.
	SourceDir  string
	Entrypoint string
	Manifest   string
}

// Procedure installs a staged plugin's dependencies.
type Procedure interface {
	Install(ctx context.Context, job Job) error
}

// Spec describes one ecosystem. Specs are values; a Registry never hands out
// references to its own copies.
type Spec struct {
	Name        string `validate:"required"`
	Mimetype    string `validate:"required"`
	Interpreter string
	Compiler    string
	Manager     string
	// EntryPatterns are tried in order; the first is the canonical entrypoint.
	EntryPatterns []string `validate:"required,min=1,dive,required"`
	// Manifest is the dependency file this ecosystem expects, if any.
	Manifest  string
	Procedure Procedure `validate:"required"`
}

// Entrypoints formats every pattern for name.
func (s Spec) Entrypoints(name string) []string {
	out := make([]string, 0, len(s.EntryPatterns))
	for _, p := range s.EntryPatterns {
		out = append(out, strings.ReplaceAll(p, NamePlaceholder, name))
	}
	return out
}

// Executables lists the binaries that must be on PATH for this spec.
func (s Spec) Executables() []string {
	var out []string
	for _, e := range []string{s.Interpreter, s.Compiler, s.Manager} {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// LookPath matches exec.LookPath.
type LookPath func(file string) (string, error)

// Registry is an ordered catalog of specs; earlier entries win.
type Registry struct {
	specs    []Spec
	lookPath LookPath
}

// NewRegistry validates and stores specs in priority order.
func NewRegistry(lookPath LookPath, specs ...Spec) (*Registry, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	v := config.GetValidator()
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if err := v.Struct(s); err != nil {
			return nil, specError(s.Name, err)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, recklesserrors.NewValidationError(s.Name, "duplicate installer", nil)
		}
		seen[s.Name] = struct{}{}
	}
	return &Registry{specs: append([]Spec(nil), specs...), lookPath: lookPath}, nil
}

func specError(name string, err error) error {
	if ves, ok := err.(validator.ValidationErrors); ok && len(ves) > 0 {
		return recklesserrors.NewValidationError(name, fmt.Sprintf("%s failed validation for tag '%s'", ves[0].Field(), ves[0].Tag()), err)
	}
	return recklesserrors.NewValidationError(name, err.Error(), err)
}

// Specs returns the specs in priority order.
func (r *Registry) Specs() []Spec {
	return append([]Spec(nil), r.specs...)
}

// Available reports whether every executable s needs is on PATH.
func (r *Registry) Available(s Spec) bool {
	for _, exe := range s.Executables() {
		if _, err := r.lookPath(exe); err != nil {
			return false
		}
	}
	return true
}

// Select returns the first spec whose executables are present and whose
// manifest, when declared, is in dir. ErrNoInstaller when none qualifies.
func (r *Registry) Select(dir string) (Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Spec{}, fmt.Errorf("%w: read %s: %v", recklesserrors.ErrNoInstaller, dir, err)
	}
	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		present[e.Name()] = struct{}{}
	}

	for _, s := range r.specs {
		if !r.Available(s) {
			continue
		}
		if s.Manifest != "" {
			if _, ok := present[s.Manifest]; !ok {
				continue
			}
		}
		return s, nil
	}
	return Spec{}, fmt.Errorf("%w for %s", recklesserrors.ErrNoInstaller, dir)
}

// EntrypointGuesses lists every entrypoint any spec would accept for name,
// in priority order and without duplicates.
func (r *Registry) EntrypointGuesses(name string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range r.specs {
		for _, e := range s.Entrypoints(name) {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// PluginName recovers a plugin name from an entrypoint form such as
// "summary.py". Patterns are compared tier by tier so every spec's canonical
// form is tried before any fallback form.
func (r *Registry) PluginName(entry string) string {
	tiers := 0
	for _, s := range r.specs {
		tiers = max(tiers, len(s.EntryPatterns))
	}
	for tier := 0; tier < tiers; tier++ {
		for _, s := range r.specs {
			if tier >= len(s.EntryPatterns) {
				continue
			}
			pattern := s.EntryPatterns[tier]
			pre, post, ok := strings.Cut(pattern, NamePlaceholder)
			if !ok {
				if pattern == entry {
					return entry
				}
				continue
			}
			if len(entry) > len(pre)+len(post) && strings.HasPrefix(entry, pre) && strings.HasSuffix(entry, post) {
				return entry[len(pre) : len(entry)-len(post)]
			}
		}
	}
	return entry
}
