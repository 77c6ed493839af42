package resolver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alexisbeaulieu97/reckless/internal/execx"
	"github.com/alexisbeaulieu97/reckless/internal/installer"
	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	"github.com/alexisbeaulieu97/reckless/internal/source"
	"github.com/alexisbeaulieu97/reckless/internal/tree"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, execx.Command) (execx.Result, error) {
	return execx.Result{}, nil
}

func testRegistry(t testing.TB) *installer.Registry {
	reg, err := installer.Default(installer.Options{
		Runner:   nopRunner{},
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
	})
	require.NoError(t, err)
	return reg
}

// memBackend lists an in-memory layout keyed by slash paths. Directories are
// keys that end in "/".
type memBackend struct {
	paths map[string]bool
	calls atomic.Int64
}

func newMemBackend(files ...string) *memBackend {
	m := &memBackend{paths: map[string]bool{}}
	for _, f := range files {
		m.paths[f] = true
		for dir := path.Dir(f); dir != "."; dir = path.Dir(dir) {
			m.paths[dir+"/"] = true
		}
	}
	return m
}

func (m *memBackend) List(_ context.Context, dir *tree.Dir) ([]tree.Node, error) {
	m.calls.Add(1)
	prefix := ""
	if dir.Location != "" {
		prefix = dir.Location + "/"
	}
	var out []tree.Node
	seen := map[string]bool{}
	for _, key := range slices.Sorted(maps.Keys(m.paths)) {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || rest == "" {
			continue
		}
		name, _, isDir := strings.Cut(rest, "/")
		if seen[name] {
			continue
		}
		seen[name] = true
		if isDir {
			out = append(out, tree.NewDir(name, prefix+name, m))
		} else {
			out = append(out, tree.NewFile(name, prefix+name))
		}
	}
	return out, nil
}

func memRoot(files ...string) (*tree.Dir, *memBackend) {
	b := newMemBackend(files...)
	return tree.NewDir("root", "", b), b
}

func base(name string) plugin.Descriptor {
	return plugin.New(name, source.Classified{Locator: "mem", Type: source.Directory})
}

func TestResolveFullMatch(t *testing.T) {
	r := New(testRegistry(t), nil)
	root, _ := memRoot(
		"README.md",
		"summary/summary.py",
		"summary/requirements.txt",
	)

	d, ok, err := r.Resolve(context.Background(), base("summary"), root, LocalDepth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "summary.py", d.Entrypoint)
	assert.Equal(t, "requirements.txt", d.Manifest)
	assert.Equal(t, "summary", d.Subdir)
	assert.Equal(t, "summary", d.Location)
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := New(testRegistry(t), nil)
	root, _ := memRoot("Summary/summary.py", "Summary/requirements.txt")

	d, ok, err := r.Resolve(context.Background(), base("SUMMARY"), root, LocalDepth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "summary.py", d.Entrypoint)
	assert.Equal(t, "Summary", d.Subdir)
}

func TestResolveRootItself(t *testing.T) {
	r := New(testRegistry(t), nil)
	dir := t.TempDir()
	plug := filepath.Join(dir, "myplugin")
	require.NoError(t, os.MkdirAll(plug, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(plug, "myplugin.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(plug, "requirements.txt"), nil, 0o644))

	root := tree.NewDir("myplugin", plug, tree.Filesystem{})
	d, ok, err := r.Resolve(context.Background(), base("myplugin"), root, LocalDepth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "myplugin.py", d.Entrypoint)
	assert.Equal(t, "requirements.txt", d.Manifest)
	assert.Empty(t, d.Subdir)
	assert.Equal(t, plug, d.Location)
}

func TestResolveRequiresManifest(t *testing.T) {
	r := New(testRegistry(t), nil)
	root, _ := memRoot("summary/summary.py", "summary/README.md")

	_, ok, err := r.Resolve(context.Background(), base("summary"), root, LocalDepth)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveFallsThroughToLaterInstaller(t *testing.T) {
	r := New(testRegistry(t), nil)
	root, _ := memRoot("summary/summary.py", "summary/package.json", "summary/summary.js")

	d, ok, err := r.Resolve(context.Background(), base("summary"), root, LocalDepth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "summary.js", d.Entrypoint)
	assert.Equal(t, "package.json", d.Manifest)
}

func TestResolveSkipsTopLevelArchive(t *testing.T) {
	r := New(testRegistry(t), nil)
	root, _ := memRoot("Archive/summary/summary.py", "Archive/summary/requirements.txt")

	_, ok, err := r.Resolve(context.Background(), base("summary"), root, LocalDepth)
	require.NoError(t, err)
	assert.False(t, ok)

	nested, _ := memRoot("x/archive/summary/summary.py", "x/archive/summary/requirements.txt")
	_, ok, err = r.Resolve(context.Background(), base("summary"), nested, LocalDepth)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolvePartialMatchAtDepthLimit(t *testing.T) {
	r := New(testRegistry(t), nil)
	root, backend := memRoot("other/x.py", "summary/summary.py", "summary/requirements.txt")

	d, ok, err := r.Resolve(context.Background(), base("summary"), root, RemoteDepth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, d.Resolved())
	assert.Equal(t, "summary", d.Subdir)
	assert.Equal(t, int64(1), backend.calls.Load(), "only the root is listed")
}

func TestResolveOpaqueDirMatchesByName(t *testing.T) {
	r := New(testRegistry(t), nil)
	root := tree.NewDir("root", "", &staticBackend{nodes: []tree.Node{tree.NewOpaqueDir("summary", "api/summary")}})

	d, ok, err := r.Resolve(context.Background(), base("summary"), root, LocalDepth)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, d.Resolved())
	assert.Equal(t, "api/summary", d.Location)
}

type staticBackend struct {
	nodes []tree.Node
	err   error
}

func (s *staticBackend) List(context.Context, *tree.Dir) ([]tree.Node, error) {
	return s.nodes, s.err
}

func TestResolveListingErrors(t *testing.T) {
	r := New(testRegistry(t), nil)

	root := tree.NewDir("root", "", &staticBackend{err: errors.New("timeout")})
	_, ok, err := r.Resolve(context.Background(), base("summary"), root, LocalDepth)
	require.NoError(t, err)
	assert.False(t, ok)

	limited := tree.NewDir("root", "", &staticBackend{err: fmt.Errorf("wrapped: %w", recklesserrors.ErrRateLimitExceeded)})
	_, _, err = r.Resolve(context.Background(), base("summary"), limited, LocalDepth)
	assert.ErrorIs(t, err, recklesserrors.ErrRateLimitExceeded)
}

func TestResolveDepthBoundIsExact(t *testing.T) {
	reg := testRegistry(t)
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(0, 6).Draw(t, "limit")
		depth := rapid.IntRange(1, 7).Draw(t, "depth")

		prefix := ""
		for i := 1; i < depth; i++ {
			prefix += fmt.Sprintf("d%d/", i)
		}
		root, _ := memRoot(prefix+"summary/summary.py", prefix+"summary/requirements.txt")

		d, ok, err := New(reg, nil).Resolve(context.Background(), base("summary"), root, limit)
		require.NoError(t, err)
		switch {
		case depth > limit:
			assert.False(t, ok)
		case depth == limit:
			assert.True(t, ok)
			assert.False(t, d.Resolved())
		default:
			assert.True(t, ok)
			assert.Equal(t, "summary.py", d.Entrypoint)
		}
	})
}

type noRepos struct{}

func (noRepos) IsRepository(context.Context, string) (bool, error) { return false, nil }

func fsPlugin(t *testing.T, root, name string, files ...string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0o644))
	}
}

func newSearcher(t *testing.T, opener *tree.Opener, opts ...SearcherOption) *Searcher {
	classifier := source.NewClassifier(noRepos{})
	return NewSearcher(classifier, opener, New(testRegistry(t), nil), opts...)
}

func TestSearchPrefersEarlierSources(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	fsPlugin(t, first, "summary", "summary.py", "requirements.txt")
	fsPlugin(t, second, "summary", "summary.js", "package.json")

	for _, parallel := range []int{1, 4} {
		s := newSearcher(t, &tree.Opener{}, WithParallelism(parallel))
		d, err := s.Search(context.Background(), "summary", []string{"not a source", first, second})
		require.NoError(t, err)
		assert.Equal(t, first, d.Source)
		assert.Equal(t, source.Directory, d.SourceType)
		assert.Equal(t, "summary.py", d.Entrypoint)
	}
}

func TestSearchNotFound(t *testing.T) {
	s := newSearcher(t, &tree.Opener{})
	_, err := s.Search(context.Background(), "summary", []string{t.TempDir()})
	assert.ErrorIs(t, err, recklesserrors.ErrNotFound)
}

func TestSearchPutsLocalSourcesBeforeRemotes(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	local := t.TempDir()
	fsPlugin(t, local, "summary", "summary.py", "requirements.txt")

	opener := &tree.Opener{Remote: tree.NewGitHub(srv.URL, tree.NewCallBudget(5), nil, nil)}
	s := newSearcher(t, opener)
	d, err := s.Search(context.Background(), "summary", []string{"https://github.com/lightningd/plugins", local})
	require.NoError(t, err)
	assert.Equal(t, local, d.Source)
	assert.Zero(t, hits.Load(), "remote source should not be listed once a local source matched")
}

func TestSearchRateLimitIsFatal(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallel), func(t *testing.T) {
			var hits atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				_, _ = w.Write([]byte(`[]`))
			}))
			defer srv.Close()

			later := t.TempDir()
			fsPlugin(t, later, "other", "other.py", "requirements.txt")

			opener := &tree.Opener{Remote: tree.NewGitHub(srv.URL, tree.NewCallBudget(0), nil, nil)}
			s := newSearcher(t, opener, WithParallelism(parallel))
			_, err := s.Search(context.Background(), "summary", []string{"https://github.com/lightningd/plugins", later})
			require.Error(t, err)
			assert.ErrorIs(t, err, recklesserrors.ErrRateLimitExceeded)
			assert.Zero(t, hits.Load())
		})
	}
}

func TestSearchParallelMatchesSequentialOrder(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallel), func(t *testing.T) {
			var hits atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				if strings.HasPrefix(r.URL.Path, "/repos/x/summary/") {
					time.Sleep(200 * time.Millisecond)
					_, _ = w.Write([]byte(`[{"name":"summary.py","type":"file","size":10},{"name":"requirements.txt","type":"file","size":10}]`))
					return
				}
				_, _ = w.Write([]byte(`[]`))
			}))
			defer srv.Close()

			opener := &tree.Opener{Remote: tree.NewGitHub(srv.URL, tree.NewCallBudget(2), nil, nil)}
			s := newSearcher(t, opener, WithParallelism(parallel))
			d, err := s.Search(context.Background(), "summary", []string{
				"https://github.com/x/r1",
				"https://github.com/x/r2",
				"https://github.com/x/r3",
				"https://github.com/x/summary",
			})
			require.NoError(t, err, "a rate limit below the matching source must not win")
			assert.Equal(t, "https://github.com/x/summary", d.Source)
			assert.Equal(t, "summary.py", d.Entrypoint)
			assert.Equal(t, int64(1), hits.Load(), "lower priority remotes are skipped after the match")
		})
	}
}

func TestSearchEarlierFailureWinsOverLaterMatch(t *testing.T) {
	for _, parallel := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallel), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[]`))
			}))
			defer srv.Close()

			other := t.TempDir()
			fsPlugin(t, other, "summary", "summary.py", "requirements.txt")

			opener := &tree.Opener{Remote: tree.NewGitHub(srv.URL, tree.NewCallBudget(0), nil, nil)}
			s := newSearcher(t, opener, WithParallelism(parallel))
			_, err := s.Search(context.Background(), "summary", []string{"https://github.com/x/summary", other})
			assert.ErrorIs(t, err, recklesserrors.ErrRateLimitExceeded)
		})
	}
}
