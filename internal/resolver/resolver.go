// Package resolver finds a plugin directory in a content tree and works out
// which files start it and declare its dependencies.
package resolver

import (
	"context"
	"strings"

	"github.com/alexisbeaulieu97/reckless/internal/installer"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	"github.com/alexisbeaulieu97/reckless/internal/source"
	"github.com/alexisbeaulieu97/reckless/internal/tree"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// Search depth limits by source type.
const (
	LocalDepth  = 5
	RemoteDepth = 1
)

const archiveDir = "archive"

// DepthFor returns the search depth for a source type.
func DepthFor(t source.Type) int {
	if t == source.RemoteRepo {
		return RemoteDepth
	}
	return LocalDepth
}

// Resolver matches plugin layouts against the installer registry.
type Resolver struct {
	registry *installer.Registry
	log      *logger.Logger
}

// New returns a Resolver.
func New(registry *installer.Registry, log *logger.Logger) *Resolver {
	return &Resolver{registry: registry, log: log}
}

// frame is one directory visit.
type frame struct {
	dir    *tree.Dir
	budget int
	top    bool
}

// Resolve searches root depth-first for a directory named base.Name. A full
// match sets the entrypoint and manifest; a directory reached with no depth
// left, or an opaque one, matches on its name alone. ok is false when nothing
// matched. Only fatal listing errors and cancellation are returned.
func (r *Resolver) Resolve(ctx context.Context, base plugin.Descriptor, root *tree.Dir, depth int) (plugin.Descriptor, bool, error) {
	return r.visit(ctx, base, frame{dir: root, budget: depth, top: true})
}

func (r *Resolver) visit(ctx context.Context, base plugin.Descriptor, f frame) (plugin.Descriptor, bool, error) {
	if err := ctx.Err(); err != nil {
		return base, false, err
	}

	if f.budget < 1 || f.dir.Opaque() {
		if tree.MatchesName(f.dir, base.Name) {
			r.log.WithField("location", f.dir.Location).Debug("partial match, contents unknown")
			return base.WithMatch(f.dir.Location, f.dir.Relative, "", ""), true, nil
		}
		return base, false, nil
	}

	if err := f.dir.Populate(ctx); err != nil {
		if recklesserrors.IsFatal(err) {
			return base, false, err
		}
		r.log.WithFields(map[string]any{"location": f.dir.Location, "error": err.Error()}).Debug("could not list directory")
		return base, false, nil
	}

	if tree.MatchesName(f.dir, base.Name) {
		if entry, manifest, ok := r.match(f.dir, base.Name); ok {
			return base.WithMatch(f.dir.Location, f.dir.Relative, entry, manifest), true, nil
		}
	}

	for _, sub := range f.dir.Subdirs() {
		if f.top && strings.EqualFold(sub.Name(), archiveDir) {
			continue
		}
		d, ok, err := r.visit(ctx, base, frame{dir: sub, budget: f.budget - 1})
		if err != nil || ok {
			return d, ok, err
		}
	}
	return base, false, nil
}

// match scans installers in priority order for an entrypoint among dir's
// children, accepting it only with the installer's manifest alongside.
func (r *Resolver) match(dir *tree.Dir, name string) (string, string, bool) {
	for _, spec := range r.registry.Specs() {
		for _, candidate := range spec.Entrypoints(name) {
			entry := dir.Find(candidate, tree.KindFile)
			if entry == nil {
				continue
			}
			if spec.Manifest == "" {
				return entry.Name(), "", true
			}
			manifest := dir.Find(spec.Manifest, tree.KindFile)
			if manifest == nil {
				r.log.WithFields(map[string]any{
					"installer":  spec.Name,
					"entrypoint": entry.Name(),
					"manifest":   spec.Manifest,
				}).Debug("found entrypoint without its dependency manifest")
				continue
			}
			return entry.Name(), manifest.Name(), true
		}
	}
	return "", "", false
}
