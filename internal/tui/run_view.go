// Package tui renders a live pipeline run in the terminal: one line per
// stage with its current state, then the run summary.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"diagramforge/internal/pipeline"
	"diagramforge/internal/stage"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	completeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	cachedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
)

type stageState string

const (
	statePending  stageState = "pending"
	stateRunning  stageState = "running"
	stateComplete stageState = "complete"
	stateCached   stageState = "cached"
	stateFailed   stageState = "failed"
)

// RunFunc executes the pipeline and returns its result. The view calls it
// exactly once, in the background.
type RunFunc func(ctx context.Context) (*pipeline.Result, error)

type eventMsg pipeline.Event

type runFinishedMsg struct {
	result *pipeline.Result
	err    error
}

// Model is the bubbletea model for one pipeline run.
type Model struct {
	runner  RunFunc
	cancel  context.CancelFunc
	events  chan pipeline.Event
	spinner spinner.Model

	order  []stage.ID
	states map[stage.ID]stageState

	result   *Result
	err      error
	done     bool
	canceled bool
}

// Result is what the view hands back after tea.Program finishes.
type Result struct {
	Pipeline *pipeline.Result
}

// NewModel builds a run view over the given stage order.
func NewModel(runner RunFunc, order []stage.ID) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	states := make(map[stage.ID]stageState, len(order))
	for _, id := range order {
		states[id] = statePending
	}
	return &Model{
		runner:  runner,
		events:  make(chan pipeline.Event, 64),
		spinner: sp,
		order:   order,
		states:  states,
	}
}

// Observer returns the pipeline observer that feeds this view. Register it
// on the orchestrator before starting the program.
func (m *Model) Observer() pipeline.Observer {
	return pipeline.ObserverFunc(func(event pipeline.Event) {
		select {
		case m.events <- event:
		default:
		}
	})
}

// Final returns the run outcome once the program has quit.
func (m *Model) Final() (*pipeline.Result, error) {
	if m.result != nil {
		return m.result.Pipeline, m.err
	}
	return nil, m.err
}

func (m *Model) Init() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	return tea.Batch(m.spinner.Tick, m.startRun(ctx), m.waitEvent())
}

func (m *Model) startRun(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		result, err := m.runner(ctx)
		return runFinishedMsg{result: result, err: err}
	}
}

func (m *Model) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.events)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case eventMsg:
		m.applyEvent(pipeline.Event(msg))
		return m, m.waitEvent()
	case runFinishedMsg:
		m.done = true
		m.result = &Result{Pipeline: msg.result}
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.canceled = true
			if m.cancel != nil {
				m.cancel()
			}
			// The run loop notices the cancellation and finishes; the
			// runFinishedMsg quits the program.
			return m, nil
		}
	}
	return m, nil
}

func (m *Model) applyEvent(event pipeline.Event) {
	switch event.Type {
	case pipeline.EventStageStarted:
		m.states[event.Stage] = stateRunning
	case pipeline.EventStageComplete:
		if event.FromCache {
			m.states[event.Stage] = stateCached
		} else {
			m.states[event.Stage] = stateComplete
		}
	case pipeline.EventStageFailed:
		m.states[event.Stage] = stateFailed
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("diagramforge pipeline"))
	b.WriteString("\n\n")
	for _, id := range m.order {
		b.WriteString("  ")
		b.WriteString(m.stageLine(id))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.canceled && !m.done:
		b.WriteString(detailStyle.Render("Canceling... letting in-flight stages finish"))
	case m.err != nil:
		b.WriteString(failedStyle.Render(fmt.Sprintf("Run failed: %v", m.err)))
	case m.done && m.result != nil && m.result.Pipeline != nil:
		b.WriteString(m.summaryLine())
	default:
		b.WriteString(detailStyle.Render("Press q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) stageLine(id stage.ID) string {
	label := stageName(id)
	switch m.states[id] {
	case stateRunning:
		return fmt.Sprintf("%s %s", m.spinner.View(), runningStyle.Render(label))
	case stateComplete:
		return fmt.Sprintf("%s %s", completeStyle.Render("✓"), label)
	case stateCached:
		return fmt.Sprintf("%s %s %s", completeStyle.Render("✓"), label, cachedStyle.Render("(cached)"))
	case stateFailed:
		return fmt.Sprintf("%s %s", failedStyle.Render("✗"), label)
	default:
		return pendingStyle.Render("· " + label)
	}
}

func (m *Model) summaryLine() string {
	s := m.result.Pipeline.Summary
	parts := []string{
		fmt.Sprintf("%d components", s.ComponentCount),
		fmt.Sprintf("compliance %d/100", s.ComplianceScore),
		fmt.Sprintf("%d files", s.FileCount),
	}
	if s.EstimatedMonthlySavings != "" {
		parts = append(parts, "est. savings "+s.EstimatedMonthlySavings+"/mo")
	}
	if !s.Converged {
		parts = append(parts, failedStyle.Render("compliance did not converge"))
	}
	return completeStyle.Render("Done") + detailStyle.Render(" · "+strings.Join(parts, " · "))
}

func stageName(id stage.ID) string {
	switch id {
	case stage.Analysis:
		return "Analyze diagram"
	case stage.Compliance:
		return "Check policy compliance"
	case stage.Cost:
		return "Optimize cost"
	case stage.Generation:
		return "Generate infrastructure code"
	default:
		return string(id)
	}
}
