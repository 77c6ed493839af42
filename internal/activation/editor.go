package activation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/pkg/diff"
)

const defaultFileMode os.FileMode = 0o644

// Editor applies line edits to a small text file. Lines are matched ignoring
// surrounding whitespace, but only the added line is written trimmed; other
// lines keep their text. A blank line directly after another is dropped.
// Applying the same edit twice leaves the file byte-identical.
type Editor struct {
	path        string
	defaultText string
	log         *logger.Logger
}

// NewEditor returns an editor for path. defaultText seeds the file the first
// time it is touched.
func NewEditor(path, defaultText string) *Editor {
	return &Editor{path: path, defaultText: defaultText}
}

// WithLogger makes the editor log the lines each edit changes at debug level.
func (e *Editor) WithLogger(log *logger.Logger) *Editor {
	e.log = log
	return e
}

// Path is the edited file.
func (e *Editor) Path() string { return e.path }

// Ensure creates the file with its default text if missing.
func (e *Editor) Ensure() (bool, error) {
	unlock, err := e.lock()
	if err != nil {
		return false, err
	}
	defer unlock()
	return e.ensure()
}

// Lines returns the trimmed, non-empty lines of the file, creating it first
// if needed.
func (e *Editor) Lines() ([]string, error) {
	unlock, err := e.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := e.ensure(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}
	lines, _ := splitLines(string(data))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// Edit removes every line equal to remove and appends add unless an equal line
// is already present. Either may be empty. It reports whether the file changed.
func (e *Editor) Edit(add, remove string) (bool, error) {
	add, remove = strings.TrimSpace(add), strings.TrimSpace(remove)

	unlock, err := e.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	if _, err := e.ensure(); err != nil {
		return false, err
	}
	// Write through symlinks so a linked config stays linked.
	target, err := filepath.EvalSymlinks(e.path)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", e.path, err)
	}
	info, err := os.Stat(target)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return false, err
	}

	updated := editLines(string(data), add, remove)
	if updated == string(data) {
		return false, nil
	}
	if err := writeFileAtomic(target, []byte(updated), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", e.path, err)
	}
	if e.log.DebugEnabled() {
		e.log.WithFields(map[string]any{"path": e.path, "diff": diff.Lines(string(data), updated)}).Debug("file edited")
	}
	return true, nil
}

func (e *Editor) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return nil, err
	}
	return lock(e.path)
}

func (e *Editor) ensure() (bool, error) {
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create %s: %w", e.path, err)
	}
	if _, err := f.WriteString(e.defaultText); err != nil {
		f.Close()
		return false, fmt.Errorf("write %s: %w", e.path, err)
	}
	return true, f.Close()
}

func editLines(content, add, remove string) string {
	lines, _ := splitLines(content)
	kept := make([]string, 0, len(lines)+1)
	present, prevBlank := false, false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if remove != "" && trimmed == remove {
			continue
		}
		blank := trimmed == ""
		if blank && prevBlank {
			continue
		}
		prevBlank = blank
		present = present || (add != "" && trimmed == add)
		kept = append(kept, line)
	}
	if add != "" && !present {
		kept = append(kept, add)
	}
	return joinLines(kept)
}

func splitLines(content string) ([]string, bool) {
	if content == "" {
		return []string{}, false
	}
	trailing := strings.HasSuffix(content, "\n")
	trimmed := strings.TrimSuffix(content, "\n")
	if trimmed == "" {
		return []string{""}, trailing
	}
	return strings.Split(trimmed, "\n"), trailing
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".reckless-edit-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
