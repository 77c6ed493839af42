// Package source classifies plugin source locators and orders them for search.
package source

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
)

// Type is the kind of location a source string points at.
type Type int

const (
	Unknown Type = iota
	Directory
	LocalRepo
	RemoteRepo
	GenericURL
)

func (t Type) String() string {
	switch t {
	case Directory:
		return "directory"
	case LocalRepo:
		return "local repository"
	case RemoteRepo:
		return "remote repository"
	case GenericURL:
		return "url"
	default:
		return "unknown"
	}
}

// IsLocal reports whether the source lives on this host.
func (t Type) IsLocal() bool {
	return t == Directory || t == LocalRepo
}

// IsRepository reports whether the source is version controlled and can be cloned.
func (t Type) IsRepository() bool {
	return t == LocalRepo || t == RemoteRepo || t == GenericURL
}

// DefaultProbeTimeout bounds the repository-root probe.
const DefaultProbeTimeout = 5 * time.Second

// DefaultRemoteHost is matched when no other remote host is configured.
const DefaultRemoteHost = "github.com"

// RepoProber answers whether path lies inside a version-controlled working tree.
type RepoProber interface {
	IsRepository(ctx context.Context, path string) (bool, error)
}

// Classifier maps source strings to a Type.
type Classifier struct {
	prober      RepoProber
	timeout     time.Duration
	remoteHosts []string
	log         *logger.Logger
}

// Option customises a Classifier.
type Option func(*Classifier)

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRemoteHosts adds hostnames treated as remote repository hosting, such as
// the host of a redirected API base.
func WithRemoteHosts(hosts ...string) Option {
	return func(c *Classifier) {
		for _, h := range hosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" {
				c.remoteHosts = append(c.remoteHosts, h)
			}
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Classifier) {
		c.log = log
	}
}

// NewClassifier builds a Classifier. prober may be nil, in which case no
// directory is ever considered a repository.
func NewClassifier(prober RepoProber, opts ...Option) *Classifier {
	c := &Classifier{
		prober:      prober,
		timeout:     DefaultProbeTimeout,
		remoteHosts: []string{DefaultRemoteHost},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify determines the Type of src. Existing directories are probed for a
// repository root; a probe error or timeout yields Directory.
func (c *Classifier) Classify(ctx context.Context, src string) Type {
	src = strings.TrimSpace(src)
	if src == "" {
		return Unknown
	}

	if real, ok := existingDir(src); ok {
		if c.probe(ctx, real) {
			return LocalRepo
		}
		return Directory
	}
	if _, err := os.Stat(src); err == nil {
		// a plain file is not searchable
		return Unknown
	}

	if c.isRemoteHost(src) {
		return RemoteRepo
	}
	lower := strings.ToLower(src)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return GenericURL
	}
	return Unknown
}

func (c *Classifier) probe(ctx context.Context, dir string) bool {
	if c.prober == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ok, err := c.prober.IsRepository(ctx, dir)
		done <- answer{ok: ok, err: err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			c.log.WithField("path", dir).Debug("repository probe failed: " + a.err.Error())
			return false
		}
		return a.ok
	case <-ctx.Done():
		c.log.WithField("path", dir).Debug("repository probe timed out")
		return false
	}
}

func (c *Classifier) isRemoteHost(src string) bool {
	host := hostOf(src)
	if host == "" {
		return false
	}
	for _, h := range c.remoteHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func hostOf(src string) string {
	candidate := src
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func existingDir(src string) (string, bool) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", false
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(real)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return real, true
}

// RepoName is the last path component of a repository locator without a
// trailing slash or .git suffix.
func RepoName(src string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(src), "/")
	if i := strings.LastIndexAny(trimmed, "/:"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return strings.TrimSuffix(trimmed, ".git")
}

// Classified pairs a source locator with its Type.
type Classified struct {
	Locator string
	Type    Type
}

// Order returns a new slice with remote repositories named after plugin first,
// then local sources, then everything else. Each group keeps its input order.
func Order(sources []Classified, plugin string) []Classified {
	named := make([]Classified, 0, len(sources))
	local := make([]Classified, 0, len(sources))
	rest := make([]Classified, 0, len(sources))

	for _, s := range sources {
		switch {
		case s.Type == RemoteRepo && strings.EqualFold(RepoName(s.Locator), plugin):
			named = append(named, s)
		case s.Type.IsLocal():
			local = append(local, s)
		default:
			rest = append(rest, s)
		}
	}

	out := make([]Classified, 0, len(sources))
	out = append(out, named...)
	out = append(out, local...)
	return append(out, rest...)
}

// ClassifyAll classifies every locator.
func (c *Classifier) ClassifyAll(ctx context.Context, locators []string) []Classified {
	out := make([]Classified, 0, len(locators))
	for _, l := range locators {
		out = append(out, Classified{Locator: l, Type: c.Classify(ctx, l)})
	}
	return out
}
