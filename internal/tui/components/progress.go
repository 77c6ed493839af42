package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Progress renders how many installation stages have been reached.
type Progress struct {
	bar   progress.Model
	total int
}

// NewProgress creates a progress bar over total stages.
func NewProgress(total int) Progress {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 24
	return Progress{bar: bar, total: total}
}

// View renders the bar for reached stages. Counts above total are shown as is
// and the bar stays full.
func (p Progress) View(reached int) string {
	ratio := 0.0
	if p.total > 0 {
		ratio = math.Min(1.0, float64(reached)/float64(p.total))
	}
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d", reached, p.total))
	return lipgloss.JoinHorizontal(lipgloss.Left, p.bar.ViewAs(ratio), " ", label)
}
