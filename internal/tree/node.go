// Package tree presents plugin sources as lazily populated directory trees,
// whatever backend actually holds the content.
package tree

import (
	"context"
	"path"
	"strings"
)

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Node is a File or a Dir.
type Node interface {
	Name() string
	Kind() Kind
}

// File is a leaf. Location is meaningful only to the backend that created it.
type File struct {
	name     string
	Location string
}

// NewFile creates a file node.
func NewFile(name, location string) *File {
	return &File{name: name, Location: location}
}

// Name implements Node.
func (f *File) Name() string { return f.name }

// Kind implements Node.
func (f *File) Kind() Kind { return KindFile }

// Dir is a directory whose children are listed on demand by its Backend.
// A parent owns its children once populated.
type Dir struct {
	name string
	// Location is a filesystem path, repository-relative path or API URL.
	Location string
	// Relative is the slash-separated path from the search root; empty for the root.
	Relative string

	backend   Backend
	children  []Node
	populated bool
	opaque    bool
}

// NewDir creates an unpopulated directory listed by backend.
func NewDir(name, location string, backend Backend) *Dir {
	return &Dir{name: name, Location: location, backend: backend}
}

// NewOpaqueDir creates a directory that is never expanded, such as a submodule placeholder.
func NewOpaqueDir(name, location string) *Dir {
	return &Dir{name: name, Location: location, populated: true, opaque: true}
}

// Name implements Node.
func (d *Dir) Name() string { return d.name }

// Kind implements Node.
func (d *Dir) Kind() Kind { return KindDir }

// Populated reports whether the children are known.
func (d *Dir) Populated() bool { return d.populated }

// Opaque reports whether the directory is a placeholder with unknown content.
func (d *Dir) Opaque() bool { return d.opaque }

// Children returns the populated children in backend order.
func (d *Dir) Children() []Node { return d.children }

// Populate lists the directory one level deep. It is a no-op once populated.
func (d *Dir) Populate(ctx context.Context) error {
	if !d.populated {
		if d.backend == nil {
			d.populated = true
			return nil
		}
		children, err := d.backend.List(ctx, d)
		if err != nil {
			return err
		}
		d.children = children
		d.populated = true
	}
	for _, c := range d.children {
		if sub, ok := c.(*Dir); ok && sub.Relative == "" {
			sub.Relative = path.Join(d.Relative, sub.name)
		}
	}
	return nil
}

// Find returns the populated direct child of the given kind whose name equals
// name, ignoring case. It never triggers population.
func (d *Dir) Find(name string, kind Kind) Node {
	for _, c := range d.children {
		if c.Kind() == kind && strings.EqualFold(c.Name(), name) {
			return c
		}
	}
	return nil
}

// Subdirs returns the populated child directories in backend order.
func (d *Dir) Subdirs() []*Dir {
	var out []*Dir
	for _, c := range d.children {
		if sub, ok := c.(*Dir); ok {
			out = append(out, sub)
		}
	}
	return out
}

// MatchesName reports whether the node is named name, ignoring case.
func MatchesName(n Node, name string) bool {
	return n != nil && strings.EqualFold(n.Name(), name)
}

// childByExactName is used while building a hierarchy, where identity is case-sensitive.
func (d *Dir) childByExactName(name string) *Dir {
	for _, c := range d.children {
		if sub, ok := c.(*Dir); ok && sub.name == name {
			return sub
		}
	}
	return nil
}

func (d *Dir) add(n Node) {
	d.children = append(d.children, n)
}
