// Package ui renders live terminal feedback for commands that wait on slow
// work, such as fetching and rebuilding the catalog.
package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/barshelf/internal/output"
)

// Spinner shows a one-line activity indicator with elapsed time.
type Spinner struct {
	mu      sync.Mutex
	out     io.Writer
	model   *spinnerModel
	program *tea.Program
	done    chan struct{}
}

// NewSpinner creates a spinner for out. It fails when out is not a terminal.
func NewSpinner(out io.Writer, label string) (*Spinner, error) {
	if !output.IsTerminal(out) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	return &Spinner{out: out, model: newSpinnerModel(label, output.NoColor(), time.Now)}, nil
}

// Start draws the spinner until Stop. Ctrl+C calls cancel.
func (s *Spinner) Start(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program != nil {
		return
	}
	s.model.cancel = cancel
	s.program = tea.NewProgram(s.model, tea.WithOutput(s.out))
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_, _ = s.program.Run()
	}()
}

// Stop clears the spinner line and waits briefly for the program to exit.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program == nil {
		return
	}
	s.program.Send(doneMsg{})
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		s.program.Kill()
	}
	s.program = nil
}

// Run calls fn, showing a spinner labelled label while it runs when out is
// a terminal. Otherwise fn runs with no output.
func Run(ctx context.Context, out io.Writer, label string, fn func(context.Context) error) error {
	s, err := NewSpinner(out, label)
	if err != nil {
		return fn(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.Start(cancel)
	err = fn(ctx)
	s.Stop()
	return err
}

type doneMsg struct{}

type spinnerModel struct {
	spinner spinner.Model
	label   string
	labelSt lipgloss.Style
	dimSt   lipgloss.Style
	started time.Time
	now     func() time.Time
	cancel  context.CancelFunc
	done    bool
}

func newSpinnerModel(label string, noColor bool, now func() time.Time) *spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	m := &spinnerModel{spinner: s, label: label, now: now, started: now()}
	if !noColor {
		styles := output.DefaultStyles()
		m.spinner.Style = styles.Header
		m.labelSt = styles.Label
		m.dimSt = styles.Dim
	}
	return m
}

// Init implements tea.Model.
func (m *spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.cancel != nil {
				m.cancel()
			}
			m.done = true
			return m, tea.Quit
		}
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model. A finished spinner renders nothing so the
// line is cleared before the command prints its result.
func (m *spinnerModel) View() string {
	if m.done {
		return ""
	}
	elapsed := m.now().Sub(m.started).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s", m.spinner.View(), m.labelSt.Render(m.label),
		m.dimSt.Render("("+elapsed.String()+")"))
}
