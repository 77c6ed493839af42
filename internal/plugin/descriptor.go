// Package plugin holds the values that travel from search through
// installation: the user's request, the resolved descriptor and the
// metadata recorded next to an installed plugin.
package plugin

import (
	"fmt"
	"path"
	"strings"

	"github.com/alexisbeaulieu97/reckless/internal/source"
)

// Request is a plugin name with an optional commit or tag.
type Request struct {
	Name string
	Ref  string
}

// ParseRequest splits "name@ref" on the first '@'.
func ParseRequest(raw string) (Request, error) {
	name, ref, _ := strings.Cut(strings.TrimSpace(raw), "@")
	name = strings.TrimSpace(name)
	if name == "" {
		return Request{}, fmt.Errorf("plugin request %q has no name", raw)
	}
	return Request{Name: name, Ref: strings.TrimSpace(ref)}, nil
}

func (r Request) String() string {
	if r.Ref == "" {
		return r.Name
	}
	return r.Name + "@" + r.Ref
}

// Descriptor describes a plugin at one point of its journey. Stages never
// modify a descriptor they were given; they return an updated copy.
type Descriptor struct {
	Name string
	// Source is the configured locator the plugin was found in.
	Source     string
	SourceType source.Type
	// Location is where the plugin directory lives for the backend that
	// produced this descriptor: a path for local content, an API URL for
	// remote listings.
	Location string
	// Subdir is the slash-separated path of the plugin below Source.
	Subdir     string
	Entrypoint string
	Manifest   string
	// RequestedCommit is the ref asked for, if any.
	RequestedCommit string
	// InstalledCommit is the head of the clone after checkout.
	InstalledCommit string
}

// New starts a descriptor for a search of src.
func New(name string, src source.Classified) Descriptor {
	return Descriptor{Name: name, Source: src.Locator, SourceType: src.Type}
}

// Resolved reports whether the entrypoint is known.
func (d Descriptor) Resolved() bool {
	return d.Entrypoint != ""
}

// WithRequest records the requested commit.
func (d Descriptor) WithRequest(r Request) Descriptor {
	d.RequestedCommit = r.Ref
	return d
}

// WithMatch records where the plugin directory was found and, for a full
// match, its entrypoint and manifest.
func (d Descriptor) WithMatch(location, subdir, entrypoint, manifest string) Descriptor {
	d.Location = location
	d.Subdir = subdir
	d.Entrypoint = entrypoint
	d.Manifest = manifest
	return d
}

// WithInstalledCommit records the commit actually installed.
func (d Descriptor) WithInstalledCommit(commit string) Descriptor {
	d.InstalledCommit = commit
	return d
}

// Relocate points the descriptor at a copy of the plugin in dir.
func (d Descriptor) Relocate(dir string) Descriptor {
	d.Location = dir
	return d
}

// EntrypointPath is the entrypoint joined to Location.
func (d Descriptor) EntrypointPath() string {
	if d.Entrypoint == "" {
		return ""
	}
	return path.Join(d.Location, d.Entrypoint)
}

func (d Descriptor) String() string {
	where := d.Source
	if d.Subdir != "" {
		where = strings.TrimRight(where, "/") + "/" + d.Subdir
	}
	return fmt.Sprintf("%s (%s %s)", d.Name, d.SourceType, where)
}
