// Package vcs wraps go-git for the repository operations plugin installation needs.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
)

// Default timeouts for repository operations.
const (
	DefaultMetadataTimeout = 5 * time.Second
	DefaultCloneTimeout    = 60 * time.Second
)

// ErrTimeout is returned when a repository operation exceeds its budget.
var ErrTimeout = errors.New("repository operation timed out")

// Client is the set of repository operations used by search and installation.
type Client interface {
	IsRepository(ctx context.Context, path string) (bool, error)
	ListFiles(ctx context.Context, path, ref string) ([]string, error)
	Clone(ctx context.Context, url, dest string) error
	Checkout(ctx context.Context, dir, ref string) error
	Head(ctx context.Context, dir string) (string, error)
}

// Git implements Client on go-git.
type Git struct {
	metadataTimeout time.Duration
	cloneTimeout    time.Duration
	log             *logger.Logger
}

var _ Client = (*Git)(nil)

// Option customises Git.
type Option func(*Git)

// WithMetadataTimeout bounds probes, listings and head lookups.
func WithMetadataTimeout(d time.Duration) Option {
	return func(g *Git) {
		if d > 0 {
			g.metadataTimeout = d
		}
	}
}

// WithCloneTimeout bounds clones and checkouts.
func WithCloneTimeout(d time.Duration) Option {
	return func(g *Git) {
		if d > 0 {
			g.cloneTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(g *Git) {
		g.log = log
	}
}

// New returns a go-git backed Client.
func New(opts ...Option) *Git {
	g := &Git{
		metadataTimeout: DefaultMetadataTimeout,
		cloneTimeout:    DefaultCloneTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsRepository reports whether path is inside a working tree.
func (g *Git) IsRepository(ctx context.Context, path string) (bool, error) {
	return withTimeout(ctx, g.metadataTimeout, func() (bool, error) {
		_, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// ListFiles returns every tracked file at ref (HEAD when empty) below path,
// slash-separated and relative to path.
func (g *Git) ListFiles(ctx context.Context, path, ref string) ([]string, error) {
	return withTimeout(ctx, g.metadataTimeout, func() ([]string, error) {
		repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		prefix, err := worktreePrefix(repo, path)
		if err != nil {
			return nil, err
		}

		commit, err := resolveCommit(repo, ref)
		if err != nil {
			return nil, err
		}
		tree, err := commit.Tree()
		if err != nil {
			return nil, fmt.Errorf("read tree of %s: %w", commit.Hash, err)
		}

		var files []string
		err = tree.Files().ForEach(func(f *object.File) error {
			name := f.Name
			if prefix != "" {
				if !strings.HasPrefix(name, prefix+"/") {
					return nil
				}
				name = strings.TrimPrefix(name, prefix+"/")
			}
			files = append(files, name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list files of %s: %w", commit.Hash, err)
		}
		return files, nil
	})
}

// Clone copies the repository at url into dest. A failed clone leaves no dest behind.
func (g *Git) Clone(ctx context.Context, url, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cloneTimeout)
	defer cancel()

	g.log.WithFields(map[string]any{"url": url, "dest": dest}).Debug("cloning repository")
	if _, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: url}); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("clone %s: %w", url, ErrTimeout)
		}
		return fmt.Errorf("clone %s: %w", url, err)
	}
	return nil
}

// Checkout moves the working tree of dir to ref, which may be a branch, tag or
// (abbreviated) commit hash.
func (g *Git) Checkout(ctx context.Context, dir, ref string) error {
	_, err := withTimeout(ctx, g.cloneTimeout, func() (struct{}, error) {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return struct{}{}, fmt.Errorf("open %s: %w", dir, err)
		}
		hash, remote, err := resolveRef(repo, ref)
		if err != nil {
			return struct{}{}, err
		}
		wt, err := repo.Worktree()
		if err != nil {
			return struct{}{}, fmt.Errorf("worktree of %s: %w", dir, err)
		}
		opts := &git.CheckoutOptions{Hash: hash, Force: true}
		if remote {
			// Like git checkout <branch>: create a local branch from origin's.
			opts.Branch = plumbing.NewBranchReferenceName(ref)
			opts.Create = true
		}
		if err := wt.Checkout(opts); err != nil {
			return struct{}{}, fmt.Errorf("checkout %s: %w", ref, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Head returns the commit hash currently checked out in dir.
func (g *Git) Head(ctx context.Context, dir string) (string, error) {
	return withTimeout(ctx, g.metadataTimeout, func() (string, error) {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", dir, err)
		}
		head, err := repo.Head()
		if err != nil {
			return "", fmt.Errorf("head of %s: %w", dir, err)
		}
		return head.Hash().String(), nil
	})
}

func resolveRevision(repo *git.Repository, ref string) (plumbing.Hash, error) {
	hash, _, err := resolveRef(repo, ref)
	return hash, err
}

// resolveRef resolves ref locally first, then as a branch of origin, which is
// where branches other than the default one live after a clone. remote
// reports the latter.
func resolveRef(repo *git.Repository, ref string) (plumbing.Hash, bool, error) {
	if ref == "" {
		ref = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err == nil {
		return *hash, false, nil
	}
	remoteRef, remoteErr := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, ref), true)
	if remoteErr != nil {
		return plumbing.ZeroHash, false, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return remoteRef.Hash(), true, nil
}

func resolveCommit(repo *git.Repository, ref string) (*object.Commit, error) {
	hash, err := resolveRevision(repo, ref)
	if err != nil {
		return nil, err
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", hash, err)
	}
	return commit, nil
}

// worktreePrefix is path relative to the working tree root, slash-separated,
// or "" when path is the root.
func worktreePrefix(repo *git.Repository, path string) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	root, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return "", err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if target, err = filepath.EvalSymlinks(target); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// withTimeout runs fn, which cannot itself be cancelled, and gives up once
// ctx or timeout expires. fn keeps running in the background in that case.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
