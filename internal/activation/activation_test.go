package activation

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestEditorCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bitcoin-reckless.conf")
	ed := NewEditor(path, RecklessHeader)

	created, err := ed.Ensure()
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, RecklessHeader, readFile(t, path))

	created, err = ed.Ensure()
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEditorAddRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reckless.conf")
	ed := NewEditor(path, RecklessHeader)

	changed, err := ed.Edit("plugin=/p/summary/summary.py", "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, RecklessHeader+"plugin=/p/summary/summary.py\n", readFile(t, path))

	changed, err = ed.Edit("plugin=/p/summary/summary.py", "")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = ed.Edit("disable-plugin=/p/summary/summary.py", "plugin=/p/summary/summary.py")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, RecklessHeader+"disable-plugin=/p/summary/summary.py\n", readFile(t, path))

	changed, err = ed.Edit("", "disable-plugin=/p/summary/summary.py")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, RecklessHeader, readFile(t, path))
}

func TestEditorNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("  network=regtest  \n\n\n\nlog-level=debug"), 0o600))
	ed := NewEditor(path, NetworkHeader)

	changed, err := ed.Edit("", "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "  network=regtest  \n\nlog-level=debug\n", readFile(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	lines, err := ed.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"network=regtest", "log-level=debug"}, lines)
}

func TestEditorKeepsUserLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	original := "network=regtest\n\talias = my node\n  plugin=/p/summary.py  \n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	ed := NewEditor(path, NetworkHeader)

	changed, err := ed.Edit("plugin=/p/summary.py", "")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = ed.Edit("include /r.conf", "plugin=/p/summary.py")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "network=regtest\n\talias = my node\ninclude /r.conf\n", readFile(t, path))
}

func TestEditorWritesThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "shared", "config")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("network=regtest\n"), 0o600))
	link := filepath.Join(dir, "bitcoin", "config")
	require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	require.NoError(t, os.Symlink(target, link))

	changed, err := NewEditor(link, NetworkHeader).Edit("include /r.conf", "")
	require.NoError(t, err)
	assert.True(t, changed)

	info, err := os.Lstat(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "config should still be a symlink")
	assert.Equal(t, "network=regtest\ninclude /r.conf\n", readFile(t, target))

	info, err = os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

var (
	lineChoices      = []string{"", "   ", "plugin=/a", " plugin=/a ", "disable-plugin=/a", "plugin=/b", "# comment", "include /x"}
	directiveChoices = []string{"plugin=/a", "disable-plugin=/a", "plugin=/b", "plugin=/c"}
)

func drawContent(t *rapid.T) string {
	lines := rapid.SliceOfN(rapid.SampledFrom(lineChoices), 0, 12).Draw(t, "lines")
	content := strings.Join(lines, "\n")
	if rapid.Bool().Draw(t, "trailing") {
		content += "\n"
	}
	return content
}

func TestEditorLogsChangedLines(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := logger.New(logger.Options{Level: "debug", Writer: buf})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "bitcoin-reckless.conf")
	ed := NewEditor(path, RecklessHeader).WithLogger(log)

	_, err = ed.Edit("plugin=/p/summary.py", "")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "file edited")
	assert.Contains(t, buf.String(), "+plugin=/p/summary.py")

	buf.Reset()
	changed, err := ed.Edit("plugin=/p/summary.py", "")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, buf.String())
}

func TestEditIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := drawContent(t)
		add := rapid.SampledFrom(directiveChoices).Draw(t, "add")

		once := editLines(content, add, "")
		twice := editLines(once, add, "")
		assert.Equal(t, once, twice)
	})
}

func TestEditAddThenRemoveProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := drawContent(t)
		x := rapid.SampledFrom(directiveChoices).Draw(t, "directive")

		out := editLines(editLines(content, x, ""), "", x)
		lines, _ := splitLines(out)
		for i, line := range lines {
			line = strings.TrimSpace(line)
			assert.NotEqual(t, x, line)
			if i > 0 {
				prev := strings.TrimSpace(lines[i-1])
				assert.False(t, line == "" && prev == "", "blank run at line %d in %q", i, out)
			}
		}
	})
}

func TestEditorIdempotentOnDisk(t *testing.T) {
	dir := t.TempDir()
	rapid.Check(t, func(rt *rapid.T) {
		content := drawContent(rt)
		add := rapid.SampledFrom(directiveChoices).Draw(rt, "add")

		path := filepath.Join(dir, "reckless.conf")
		require.NoError(rt, os.WriteFile(path, []byte(content), 0o644))
		ed := NewEditor(path, RecklessHeader)

		_, err := ed.Edit(add, "")
		require.NoError(rt, err)
		once, err := os.ReadFile(path)
		require.NoError(rt, err)

		changed, err := ed.Edit(add, "")
		require.NoError(rt, err)
		assert.False(rt, changed)
		twice, err := os.ReadFile(path)
		require.NoError(rt, err)
		assert.Equal(rt, once, twice)
	})
}

func TestBootstrap(t *testing.T) {
	dir := t.TempDir()
	reckless := filepath.Join(dir, "reckless", "bitcoin-reckless.conf")
	network := filepath.Join(dir, "bitcoin", "config")

	cfg, err := Bootstrap(reckless, network, nil)
	require.NoError(t, err)
	assert.Equal(t, reckless, cfg.Path())
	assert.Equal(t, RecklessHeader, readFile(t, reckless))
	assert.Equal(t, NetworkHeader+"include "+reckless+"\n", readFile(t, network))

	_, err = Bootstrap(reckless, network, nil)
	require.NoError(t, err)
	assert.Equal(t, NetworkHeader+"include "+reckless+"\n", readFile(t, network))
}

func TestBootstrapKeepsExistingNetworkConfig(t *testing.T) {
	dir := t.TempDir()
	reckless := filepath.Join(dir, "regtest-reckless.conf")
	network := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(network, []byte("network=regtest\n"), 0o644))

	_, err := Bootstrap(reckless, network, nil)
	require.NoError(t, err)
	assert.Equal(t, "network=regtest\ninclude "+reckless+"\n", readFile(t, network))
}

func TestEnableDisable(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Bootstrap(filepath.Join(dir, "r.conf"), filepath.Join(dir, "config"), nil)
	require.NoError(t, err)
	entry := "/home/u/.lightning/reckless/summary/summary.py"

	state, err := cfg.State(entry)
	require.NoError(t, err)
	assert.Equal(t, Unlisted, state)

	changed, err := cfg.Enable(entry)
	require.NoError(t, err)
	assert.True(t, changed)
	state, err = cfg.State(entry)
	require.NoError(t, err)
	assert.Equal(t, Enabled, state)

	changed, err = cfg.Enable(entry)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = cfg.Disable(entry)
	require.NoError(t, err)
	assert.True(t, changed)
	state, err = cfg.State(entry)
	require.NoError(t, err)
	assert.Equal(t, Disabled, state)
	assert.Equal(t, RecklessHeader+"disable-plugin="+entry+"\n", readFile(t, cfg.Path()))
	assert.Equal(t, "disabled", state.String())
}

func TestSameFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(target, nil, 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	assert.True(t, SameFile(target, link))
	assert.True(t, SameFile(filepath.Join(dir, "x", "..", "missing"), filepath.Join(dir, "missing")))
	assert.False(t, SameFile(target, filepath.Join(dir, "other")))
}

func TestSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".sources")
	s := NewSources(path)

	got, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultSource}, got)

	local := filepath.Join(dir, "plugins")
	require.NoError(t, os.Mkdir(local, 0o755))
	require.NoError(t, s.Add(local))
	require.NoError(t, s.Add("https://github.com/someone/plugins"))
	require.NoError(t, s.Add("https://github.com/someone/plugins"))

	got, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultSource, local, "https://github.com/someone/plugins"}, got)

	assert.ErrorIs(t, s.Add("not-a-thing"), recklesserrors.ErrInvalidSource)
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.ErrorIs(t, s.Add(file), recklesserrors.ErrInvalidSource)

	assert.ErrorIs(t, s.Remove("https://example.com/none"), recklesserrors.ErrSourceNotFound)
	require.NoError(t, s.Remove(DefaultSource))
	got, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{local, "https://github.com/someone/plugins"}, got)
}
