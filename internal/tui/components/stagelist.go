package components

import (
	"fmt"
	"strings"
)

// StageEntry is one line of the stage list.
type StageEntry struct {
	Name   string
	Icon   string
	Detail string
}

// StageList renders stages in pipeline order.
type StageList struct {
	entries []StageEntry
}

// NewStageList builds a list from entries, which are copied.
func NewStageList(entries []StageEntry) StageList {
	return StageList{entries: append([]StageEntry(nil), entries...)}
}

// Len is the number of entries.
func (s StageList) Len() int { return len(s.entries) }

// View renders one line per stage.
func (s StageList) View() string {
	lines := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		line := fmt.Sprintf(" %s %s", e.Icon, e.Name)
		if detail := strings.TrimSpace(e.Detail); detail != "" {
			line = fmt.Sprintf("%s: %s", line, detail)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
