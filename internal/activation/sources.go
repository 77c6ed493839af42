package activation

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	recklesserrors "github.com/alexisbeaulieu97/reckless/pkg/errors"
)

// DefaultSource seeds a new sources file.
const DefaultSource = "https://github.com/lightningd/plugins"

// Sources is the list of places searched for plugins, one locator per line.
type Sources struct {
	editor *Editor
}

// NewSources opens the sources file at path. Nothing is written until the
// list is read or edited.
func NewSources(path string) *Sources {
	return &Sources{editor: NewEditor(path, DefaultSource+"\n")}
}

// List returns the configured sources in order.
func (s *Sources) List() ([]string, error) {
	return s.editor.Lines()
}

// Add appends src. Directories are stored as absolute paths; anything else
// must look like a remote locator.
func (s *Sources) Add(src string) error {
	src = strings.TrimSpace(src)
	if src == "" {
		return fmt.Errorf("%w: empty source", recklesserrors.ErrInvalidSource)
	}

	entry := src
	if abs, err := filepath.Abs(src); err == nil {
		if info, statErr := os.Stat(abs); statErr == nil {
			if !info.IsDir() {
				return fmt.Errorf("%w: %s is not a directory", recklesserrors.ErrInvalidSource, src)
			}
			entry = abs
		} else if !remoteLocator(src) {
			return fmt.Errorf("%w: %s", recklesserrors.ErrInvalidSource, src)
		}
	}

	_, err := s.editor.Edit(entry, "")
	return err
}

// Remove deletes src from the list.
func (s *Sources) Remove(src string) error {
	src = strings.TrimSpace(src)
	current, err := s.List()
	if err != nil {
		return err
	}
	if !slices.Contains(current, src) {
		return fmt.Errorf("%w: %s", recklesserrors.ErrSourceNotFound, src)
	}
	_, err = s.editor.Edit("", src)
	return err
}

func remoteLocator(src string) bool {
	return strings.Contains(src, "github.com") ||
		strings.Contains(src, "http://") ||
		strings.Contains(src, "https://")
}
