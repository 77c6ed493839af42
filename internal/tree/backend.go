package tree

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/vcs"
)

// Backend lists one directory level for the directories it created.
type Backend interface {
	List(ctx context.Context, dir *Dir) ([]Node, error)
}

// Filesystem lists plain directories. Subdirectories inherit this backend, so
// nested checkouts are not re-probed.
type Filesystem struct{}

// List implements Backend.
func (Filesystem) List(_ context.Context, dir *Dir) ([]Node, error) {
	entries, err := os.ReadDir(dir.Location)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir.Location, err)
	}

	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(dir.Location, e.Name())
		isDir := e.IsDir()
		if e.Type()&os.ModeSymlink != 0 {
			if info, statErr := os.Stat(full); statErr == nil {
				isDir = info.IsDir()
			}
		}
		if isDir {
			nodes = append(nodes, NewDir(e.Name(), full, Filesystem{}))
		} else {
			nodes = append(nodes, NewFile(e.Name(), full))
		}
	}
	return nodes, nil
}

// Repository lists a local working tree from its committed files at a fixed
// ref. One listing call builds the whole hierarchy, so every directory below
// the root comes back already populated.
type Repository struct {
	vcs vcs.Client
	ref string
	log *logger.Logger
}

// NewRepository returns a repository backend listing ref (HEAD when empty).
func NewRepository(client vcs.Client, ref string, log *logger.Logger) *Repository {
	return &Repository{vcs: client, ref: ref, log: log}
}

// List implements Backend.
func (r *Repository) List(ctx context.Context, dir *Dir) ([]Node, error) {
	files, err := r.vcs.ListFiles(ctx, dir.Location, r.ref)
	if err != nil {
		r.log.WithField("path", dir.Location).Debug("repository listing failed: " + err.Error())
		return nil, fmt.Errorf("list repository %s: %w", dir.Location, err)
	}

	root := &Dir{populated: true}
	for _, f := range files {
		parts := strings.Split(f, "/")
		parent := root
		for i, p := range parts[:len(parts)-1] {
			child := parent.childByExactName(p)
			if child == nil {
				rel := path.Join(parts[:i+1]...)
				child = &Dir{name: p, Location: rel, backend: r, populated: true}
				parent.add(child)
			}
			parent = child
		}
		parent.add(NewFile(parts[len(parts)-1], f))
	}
	return root.children, nil
}
