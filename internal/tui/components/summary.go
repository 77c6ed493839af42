package components

import (
	"fmt"
	"strings"
)

// SummaryData describes the outcome of one installation.
type SummaryData struct {
	Plugin    string
	Reached   int
	Total     int
	Finished  bool
	Cancelled bool
	Err       error
}

// Summary renders a short installation outcome.
type Summary struct {
	data SummaryData
}

// NewSummary creates a Summary.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary, or nothing while the installation is running.
func (s Summary) View() string {
	d := s.data
	switch {
	case d.Cancelled:
		return fmt.Sprintf("Installation of %s cancelled", d.Plugin)
	case !d.Finished:
		return ""
	case d.Err != nil:
		lines := []string{fmt.Sprintf("%s could not be installed", d.Plugin)}
		for _, line := range strings.Split(d.Err.Error(), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, "  "+line)
			}
		}
		return strings.Join(lines, "\n")
	case d.Total > 0 && d.Reached < d.Total:
		return fmt.Sprintf("%s stopped after %d/%d stages", d.Plugin, d.Reached, d.Total)
	default:
		return fmt.Sprintf("%s installed", d.Plugin)
	}
}
