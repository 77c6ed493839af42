package tree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// DefaultAPICallLimit is the per-run ceiling on remote API requests.
const DefaultAPICallLimit = 5

// DefaultRequestTimeout bounds a single remote listing request.
const DefaultRequestTimeout = 5 * time.Second

const publicAPIHost = "api.github.com"

// CallBudget counts remote API requests for the lifetime of one run and is
// shared by every concurrent search branch.
type CallBudget struct {
	limit int64
	used  atomic.Int64
}

// NewCallBudget allows limit requests.
func NewCallBudget(limit int) *CallBudget {
	if limit < 0 {
		limit = 0
	}
	return &CallBudget{limit: int64(limit)}
}

// Take records one request. Once the limit is passed it returns
// ErrRateLimitExceeded and the request must not be issued.
func (b *CallBudget) Take() error {
	n := b.used.Add(1)
	if n > b.limit {
		return fmt.Errorf("%w: %d calls allowed per run", recklesserrors.ErrRateLimitExceeded, b.limit)
	}
	return nil
}

// Used returns the number of requests recorded so far, refused ones included.
func (b *CallBudget) Used() int {
	return int(b.used.Load())
}

// Remaining returns how many more requests may be issued.
func (b *CallBudget) Remaining() int {
	left := b.limit - b.used.Load()
	if left < 0 {
		return 0
	}
	return int(left)
}

// GitHub lists repositories through the hosted contents API.
type GitHub struct {
	client  *http.Client
	apiBase string
	budget  *CallBudget
	log     *logger.Logger
}

// NewGitHub returns a remote backend. apiBase replaces https://api.github.com,
// which lets tests and mirrors redirect every request.
func NewGitHub(apiBase string, budget *CallBudget, client *http.Client, log *logger.Logger) *GitHub {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if budget == nil {
		budget = NewCallBudget(DefaultAPICallLimit)
	}
	return &GitHub{
		client:  client,
		apiBase: strings.TrimSuffix(apiBase, "/"),
		budget:  budget,
		log:     log,
	}
}

// ContentsURL maps a repository locator to its contents listing URL.
// https://github.com/<user>/<repo> becomes <api>/repos/<user>/<repo>/contents/;
// URLs already pointing at the API are rebased onto the configured base.
func (g *GitHub) ContentsURL(repoURL string) (string, error) {
	raw := repoURL
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse repository url %q: %w", repoURL, err)
	}
	if strings.EqualFold(parsed.Hostname(), publicAPIHost) {
		return g.rebase(raw), nil
	}

	parts := strings.FieldsFunc(parsed.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return "", fmt.Errorf("repository url %q has no owner/name", repoURL)
	}
	repo := strings.TrimSuffix(parts[1], ".git")
	return fmt.Sprintf("%s/repos/%s/%s/contents/", g.apiBase, parts[0], repo), nil
}

func (g *GitHub) rebase(apiURL string) string {
	if i := strings.Index(apiURL, publicAPIHost); i >= 0 {
		return g.apiBase + apiURL[i+len(publicAPIHost):]
	}
	return apiURL
}

// apiEntry covers both the contents listing and git tree response shapes.
type apiEntry struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
	URL    string `json:"url"`
	GitURL string `json:"git_url"`
}

type treeResponse struct {
	Tree []apiEntry `json:"tree"`
}

// List implements Backend. It spends one unit of the call budget per request.
func (g *GitHub) List(ctx context.Context, dir *Dir) ([]Node, error) {
	if dir.Location == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := g.budget.Take(); err != nil {
		g.log.Warn("excessive remote API calls, giving up")
		return nil, err
	}

	endpoint := g.rebase(dir.Location)
	g.log.WithField("url", endpoint).Debug("fetching remote listing")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	entries, err := decodeEntries(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}

	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		if n := g.nodeFromEntry(e); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

func decodeEntries(body []byte) ([]apiEntry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []apiEntry
		err := json.Unmarshal(trimmed, &entries)
		return entries, err
	}
	var tree treeResponse
	if err := json.Unmarshal(trimmed, &tree); err != nil {
		return nil, err
	}
	return tree.Tree, nil
}

// nodeFromEntry maps an API entry. Submodules, commits and zero-size files are
// opaque placeholders that are never expanded.
func (g *GitHub) nodeFromEntry(e apiEntry) Node {
	name := e.Name
	if name == "" {
		name = e.Path
	}
	if name == "" {
		return nil
	}

	switch e.Type {
	case "dir":
		location := e.GitURL
		if location == "" {
			location = e.URL
		}
		return NewDir(name, location, g)
	case "tree":
		return NewDir(name, e.URL, g)
	case "file", "blob", "symlink":
		if e.Size == 0 {
			return NewOpaqueDir(name, e.GitURL)
		}
		return NewFile(name, e.URL)
	case "submodule", "commit":
		return NewOpaqueDir(name, e.GitURL)
	default:
		g.log.WithField("entry", name).Debug("skipping remote entry of type " + e.Type)
		return nil
	}
}
