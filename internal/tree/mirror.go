package tree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/vcs"
)

// Mirror makes a generic git URL searchable by cloning it into a temporary
// directory and listing the clone like a local repository.
type Mirror struct {
	vcs     vcs.Client
	repo    *Repository
	tempDir string
	log     *logger.Logger

	mu     sync.Mutex
	clones []string
}

// NewMirror clones below tempDir, or os.TempDir() when empty.
func NewMirror(client vcs.Client, tempDir string, log *logger.Logger) *Mirror {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Mirror{
		vcs:     client,
		repo:    NewRepository(client, "", log),
		tempDir: tempDir,
		log:     log,
	}
}

// List implements Backend.
func (m *Mirror) List(ctx context.Context, dir *Dir) ([]Node, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("mirror id: %w", err)
	}
	workDir := filepath.Join(m.tempDir, "reckless-mirror-"+id.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}
	m.track(workDir)

	dest := filepath.Join(workDir, "repo")
	if err := m.vcs.Clone(ctx, dir.Location, dest); err != nil {
		return nil, err
	}
	m.log.WithFields(map[string]any{"url": dir.Location, "mirror": dest}).Debug("mirrored remote repository")

	return m.repo.List(ctx, &Dir{name: dir.name, Location: dest})
}

func (m *Mirror) track(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clones = append(m.clones, path)
}

// Close removes every mirror created so far.
func (m *Mirror) Close() error {
	m.mu.Lock()
	clones := m.clones
	m.clones = nil
	m.mu.Unlock()

	var errs []error
	for _, c := range clones {
		if err := os.RemoveAll(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
