package components

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		total   int
		reached int
		label   string
	}{
		{"empty total", 0, 0, "0/0"},
		{"partial", 8, 3, "3/8"},
		{"complete", 8, 8, "8/8"},
		{"beyond total", 8, 9, "9/8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			view := NewProgress(tt.total).View(tt.reached)
			require.Contains(t, view, tt.label)
			require.Greater(t, len(strings.TrimSpace(view)), len(tt.label))
		})
	}
}

func TestStageListView(t *testing.T) {
	t.Parallel()

	entries := []StageEntry{
		{Name: "located", Icon: "+"},
		{Name: "cloned", Icon: "x", Detail: "  clone failed  "},
	}
	list := NewStageList(entries)
	entries[0].Name = "changed"

	require.Equal(t, 2, list.Len())
	require.Equal(t, " + located\n x cloned: clone failed", list.View())
	require.Empty(t, NewStageList(nil).View())
}

func TestSummaryView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data SummaryData
		want string
	}{
		{"running", SummaryData{Plugin: "summary", Total: 8}, ""},
		{"cancelled", SummaryData{Plugin: "summary", Cancelled: true}, "Installation of summary cancelled"},
		{"installed", SummaryData{Plugin: "summary", Finished: true, Reached: 8, Total: 8}, "summary installed"},
		{"stopped", SummaryData{Plugin: "summary", Finished: true, Reached: 3, Total: 8}, "summary stopped after 3/8 stages"},
		{
			"failed",
			SummaryData{Plugin: "summary", Finished: true, Reached: 3, Total: 8, Err: errors.New("checkout failed\nref v9 missing")},
			"summary could not be installed\n  checkout failed\n  ref v9 missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, NewSummary(tt.data).View())
		})
	}
}
