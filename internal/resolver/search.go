package resolver

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/plugin"
	"github.com/alexisbeaulieu97/reckless/internal/source"
	"github.com/alexisbeaulieu97/reckless/internal/tree"
	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// Searcher looks for a plugin across an ordered list of sources.
type Searcher struct {
	classifier  *source.Classifier
	opener      *tree.Opener
	resolver    *Resolver
	parallelism int
	log         *logger.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithParallelism lets up to n sources be searched at once. The result is
// the same as a sequential search; lower priority sources are cancelled once
// a higher priority one matched or failed.
func WithParallelism(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithSearchLogger sets the logger.
func WithSearchLogger(log *logger.Logger) SearcherOption {
	return func(s *Searcher) {
		s.log = log
	}
}

// NewSearcher returns a sequential Searcher unless configured otherwise.
func NewSearcher(classifier *source.Classifier, opener *tree.Opener, resolver *Resolver, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		classifier:  classifier,
		opener:      opener,
		resolver:    resolver,
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type outcome struct {
	desc plugin.Descriptor
	ok   bool
	err  error
}

// Search returns the match from the highest priority source. Sources that
// cannot be opened or listed are skipped. ErrNotFound when no source has the
// plugin; ErrRateLimitExceeded aborts the search unless a higher priority
// source already matched.
func (s *Searcher) Search(ctx context.Context, name string, locators []string) (plugin.Descriptor, error) {
	sources := source.Order(s.classifier.ClassifyAll(ctx, locators), name)
	if s.opener.Mirror != nil {
		defer func() {
			if err := s.opener.Mirror.Close(); err != nil {
				s.log.Error(err, "failed to remove search mirrors")
			}
		}()
	}

	results := make([]outcome, len(sources))
	branches := newBranches(ctx, len(sources))
	defer branches.cancelAll()

	// Remote sources share the API call budget, so they take turns in
	// priority order.
	turns := make([]<-chan struct{}, len(sources))
	done := make([]chan struct{}, len(sources))
	var prev chan struct{}
	for i, src := range sources {
		if src.Type != source.RemoteRepo {
			continue
		}
		turns[i] = prev
		done[i] = make(chan struct{})
		prev = done[i]
	}

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, src := range sources {
		if branches.settled(i) {
			break
		}
		g.Go(func() error {
			if done[i] != nil {
				defer close(done[i])
			}
			if turns[i] != nil {
				select {
				case <-turns[i]:
				case <-ctx.Done():
				}
			}
			bctx, ok := branches.start(i)
			if !ok {
				return nil
			}
			d, found, err := s.searchSource(bctx, name, src)
			results[i] = outcome{desc: d, ok: found, err: err}
			if found || err != nil {
				branches.settle(i)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.err != nil {
			return plugin.Descriptor{}, r.err
		}
		if r.ok {
			return r.desc, nil
		}
	}
	return plugin.Descriptor{}, fmt.Errorf("%w: %s", recklesserrors.ErrNotFound, name)
}

// branches tracks the lowest source index that produced a result. Every
// branch above it is cancelled and later ones never start.
type branches struct {
	parent  context.Context
	mu      sync.Mutex
	first   int
	cancels []context.CancelFunc
}

func newBranches(parent context.Context, n int) *branches {
	return &branches{parent: parent, first: n, cancels: make([]context.CancelFunc, n)}
}

func (b *branches) settled(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return i > b.first
}

func (b *branches) start(i int) (context.Context, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i > b.first {
		return nil, false
	}
	ctx, cancel := context.WithCancel(b.parent)
	b.cancels[i] = cancel
	return ctx, true
}

func (b *branches) settle(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= b.first {
		return
	}
	b.first = i
	for j := i + 1; j < len(b.cancels); j++ {
		if b.cancels[j] != nil {
			b.cancels[j]()
		}
	}
}

func (b *branches) cancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		if cancel != nil {
			cancel()
		}
	}
}

func (s *Searcher) searchSource(ctx context.Context, name string, src source.Classified) (plugin.Descriptor, bool, error) {
	log := s.log.WithFields(map[string]any{"source": src.Locator, "type": src.Type.String()})
	if src.Type == source.Unknown {
		log.Debug("source is not searchable")
		return plugin.Descriptor{}, false, nil
	}

	root, err := s.opener.Open(src)
	if err != nil {
		log.WithField("error", err.Error()).Debug("could not open source")
		return plugin.Descriptor{}, false, nil
	}

	log.Debug("searching")
	d, ok, err := s.resolver.Resolve(ctx, plugin.New(name, src), root, DepthFor(src.Type))
	if err != nil {
		return plugin.Descriptor{}, false, err
	}
	if ok {
		log.WithField("subdir", d.Subdir).Debug("found plugin")
	}
	return d, ok, nil
}
