package tree

import (
	"fmt"
	"path/filepath"

	"github.com/alexisbeaulieu97/reckless/internal/source"
)

// Opener creates the root directory for a classified source, choosing the
// backend from its type.
type Opener struct {
	Repository *Repository
	Remote     *GitHub
	Mirror     *Mirror
}

// Open returns an unpopulated root for src.
func (o *Opener) Open(src source.Classified) (*Dir, error) {
	switch src.Type {
	case source.Directory:
		abs, err := filepath.Abs(src.Locator)
		if err != nil {
			return nil, err
		}
		return NewDir(filepath.Base(abs), abs, Filesystem{}), nil
	case source.LocalRepo:
		if o.Repository == nil {
			return nil, fmt.Errorf("no repository backend for %s", src.Locator)
		}
		abs, err := filepath.Abs(src.Locator)
		if err != nil {
			return nil, err
		}
		return NewDir(filepath.Base(abs), abs, o.Repository), nil
	case source.RemoteRepo:
		if o.Remote == nil {
			return nil, fmt.Errorf("no remote backend for %s", src.Locator)
		}
		location, err := o.Remote.ContentsURL(src.Locator)
		if err != nil {
			return nil, err
		}
		return NewDir(source.RepoName(src.Locator), location, o.Remote), nil
	case source.GenericURL:
		if o.Mirror == nil {
			return nil, fmt.Errorf("no mirror backend for %s", src.Locator)
		}
		return NewDir(source.RepoName(src.Locator), src.Locator, o.Mirror), nil
	default:
		return nil, fmt.Errorf("cannot search %s source %q", src.Type, src.Locator)
	}
}
