package plugin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reckless/internal/source"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		raw  string
		want Request
	}{
		{raw: "summary", want: Request{Name: "summary"}},
		{raw: "summary@abc123", want: Request{Name: "summary", Ref: "abc123"}},
		{raw: "summary@v1@weird", want: Request{Name: "summary", Ref: "v1@weird"}},
		{raw: " summary@ ", want: Request{Name: "summary"}},
	}
	for _, tt := range tests {
		got, err := ParseRequest(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := ParseRequest("@abc")
	assert.Error(t, err)

	assert.Equal(t, "summary@abc", Request{Name: "summary", Ref: "abc"}.String())
	assert.Equal(t, "summary", Request{Name: "summary"}.String())
}

func TestDescriptorStagesReturnCopies(t *testing.T) {
	base := New("summary", source.Classified{Locator: "/srv/plugins", Type: source.Directory})
	assert.False(t, base.Resolved())

	matched := base.WithRequest(Request{Name: "summary", Ref: "v2"}).
		WithMatch("/srv/plugins/summary", "summary", "summary.py", "requirements.txt")
	assert.True(t, matched.Resolved())
	assert.Empty(t, base.Entrypoint)
	assert.Empty(t, base.RequestedCommit)
	assert.Equal(t, "v2", matched.RequestedCommit)
	assert.Equal(t, "/srv/plugins/summary/summary.py", matched.EntrypointPath())

	moved := matched.Relocate("/home/u/.lightning/reckless/summary/source")
	assert.Equal(t, "/srv/plugins/summary", matched.Location)
	assert.Equal(t, "/home/u/.lightning/reckless/summary/source/summary.py", moved.EntrypointPath())
	assert.Contains(t, moved.String(), "/srv/plugins/summary")
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	installed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	d := New("summary", source.Classified{Locator: "https://github.com/lightningd/plugins", Type: source.RemoteRepo}).
		WithRequest(Request{Name: "summary", Ref: "abc123"}).
		WithInstalledCommit("abc123def")

	require.NoError(t, WriteMetadata(dir, NewMetadata(d, installed)))

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, []string{
		"installation date", "2026-03-14",
		"installation time", "1773500966",
		"original source", "https://github.com/lightningd/plugins",
		"requested commit", "abc123",
		"installed commit", "abc123def",
	}, lines)

	got, err := ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, installed.Unix(), got.InstalledAt.Unix())
	assert.Equal(t, "abc123", got.RequestedCommit)
	assert.Equal(t, "abc123def", got.InstalledCommit)
}

func TestMetadataWithoutCommits(t *testing.T) {
	m := Metadata{InstalledAt: time.Unix(1, 0), OriginalSource: "/tmp/myplugin"}
	body := string(m.Marshal())
	assert.Contains(t, body, "requested commit\nNone\n")
	assert.Contains(t, body, "installed commit\nNone\n")

	got, err := ParseMetadata("x", m.Marshal())
	require.NoError(t, err)
	assert.Empty(t, got.InstalledCommit)
	assert.Empty(t, got.RequestedCommit)
}

func TestMetadataValidation(t *testing.T) {
	err := WriteMetadata(t.TempDir(), Metadata{OriginalSource: "x"})
	var ve *recklesserrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "InstalledAt", ve.Field)

	err = WriteMetadata(t.TempDir(), Metadata{InstalledAt: time.Now()})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "OriginalSource", ve.Field)

	assert.NoError(t, Metadata{InstalledAt: time.Now(), OriginalSource: "x"}.Validate())
}

func TestParseMetadataErrors(t *testing.T) {
	_, err := ParseMetadata("meta", []byte("installation date\n2026-01-01\noriginal source\n"))
	var pe *recklesserrors.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Line)

	_, err = ParseMetadata("meta", []byte("installation time\nyesterday\n"))
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
}
