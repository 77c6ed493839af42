package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/reckless/internal/pipeline"
)

// Stage statuses shown in the view.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// EventMsg carries one pipeline event into the program.
type EventMsg struct {
	Event pipeline.Event
}

// DoneMsg reports that the installation returned.
type DoneMsg struct {
	Err error
}

// Model is the Bubbletea state for one plugin installation.
type Model struct {
	plugin    string
	stages    []pipeline.Stage
	status    map[pipeline.Stage]string
	details   map[pipeline.Stage]string
	reached   int
	spinner   spinner.Model
	finished  bool
	cancelled bool
	err       error
}

// NewModel tracks the installation of plugin. The first stage starts running.
func NewModel(plugin string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	m := Model{
		plugin:  plugin,
		stages:  pipeline.Stages(),
		status:  make(map[pipeline.Stage]string),
		details: make(map[pipeline.Stage]string),
		spinner: s,
	}
	for _, stage := range m.stages {
		m.status[stage] = StatusPending
	}
	if len(m.stages) > 0 {
		m.status[m.stages[0]] = StatusRunning
	}
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Reached returns the number of stages completed.
func (m Model) Reached() int { return m.reached }

// TotalStages returns the number of tracked stages.
func (m Model) TotalStages() int { return len(m.stages) }

// IsFinished reports whether the installation returned or was interrupted.
func (m Model) IsFinished() bool { return m.finished }

// Cancelled reports whether the user interrupted the view.
func (m Model) Cancelled() bool { return m.cancelled }

// Err is the installation error, if any.
func (m Model) Err() error { return m.err }

// Status returns the displayed status of stage.
func (m Model) Status(stage pipeline.Stage) string { return m.status[stage] }

func (m *Model) apply(ev pipeline.Event) {
	if _, tracked := m.status[ev.Stage]; !tracked {
		return
	}
	if ev.Detail != "" {
		m.details[ev.Stage] = ev.Detail
	}
	if ev.Failed {
		m.status[ev.Stage] = StatusFailed
		if ev.Err != nil {
			m.err = ev.Err
			if ev.Detail == "" {
				m.details[ev.Stage] = ev.Err.Error()
			}
		}
		return
	}
	if m.status[ev.Stage] != StatusDone {
		m.status[ev.Stage] = StatusDone
		m.reached++
	}
	next := ev.Stage + 1
	if m.status[next] == StatusPending {
		m.status[next] = StatusRunning
	}
}

func (m *Model) finish(err error) {
	m.finished = true
	if err != nil && m.err == nil {
		m.err = err
	}
	for stage, status := range m.status {
		if status == StatusRunning {
			m.status[stage] = StatusPending
		}
	}
}
