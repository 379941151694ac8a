// Package tui renders startup progress and the screen shown once the shell
// is ready. It only sees the progress stream and the final outcome.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	bprogress "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/jask/launchpad/internal/progress"
	"github.com/jask/launchpad/internal/theme"
)

const (
	recentLines  = 6
	defaultWidth = 60
)

// EventMsg carries one item from the progress stream.
type EventMsg progress.Event

// OutcomeMsg delivers the bootstrap outcome from the completion callback.
type OutcomeMsg progress.Outcome

// StylesMsg swaps in the styles of the theme loaded during startup.
type StylesMsg theme.Styles

type streamClosedMsg struct{}

type screen int

const (
	screenSplash screen = iota
	screenHome
	screenFatal
)

// Model is the root bubbletea model.
type Model struct {
	styles theme.Styles
	keys   keyMap
	events <-chan progress.Event
	bar    bprogress.Model

	screen   screen
	width    int
	fraction float64
	recent   []string
	outcome  *progress.Outcome
	started  time.Time
	exitCode int
}

// New builds a model that reads updates from events. events may be nil when
// the outcome arrives only through OutcomeMsg.
func New(styles theme.Styles, events <-chan progress.Event) Model {
	return Model{
		styles:  styles,
		keys:    defaultKeys(),
		events:  events,
		bar:     newBar(styles.Accent, defaultWidth),
		width:   defaultWidth,
		started: time.Now(),
	}
}

func newBar(fill lipgloss.Color, width int) bprogress.Model {
	bar := bprogress.New(
		bprogress.WithSolidFill(string(fill)),
		bprogress.WithoutPercentage(),
	)
	bar.Width = width
	return bar
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan progress.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return EventMsg(e)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, min(msg.Width-4, 80))
		return m, nil

	case EventMsg:
		e := progress.Event(msg)
		m.fraction = e.Update.Fraction
		m.push(e.Update.Message)
		if e.Terminal() {
			m.resolve(*e.Outcome)
			return m, nil
		}
		return m, waitForEvent(m.events)

	case StylesMsg:
		m.styles = theme.Styles(msg)
		m.bar = newBar(m.styles.Accent, m.bar.Width)
		return m, nil

	case OutcomeMsg:
		m.fraction = 1
		m.resolve(progress.Outcome(msg))
		return m, nil

	case streamClosedMsg:
		return m, nil

	case tea.KeyMsg:
		if m.screen == screenFatal {
			return m, tea.Quit
		}
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) push(line string) {
	if line == "" {
		return
	}
	m.recent = append(m.recent, line)
	if len(m.recent) > recentLines {
		m.recent = m.recent[len(m.recent)-recentLines:]
	}
}

// resolve applies the outcome once; the stream and the callback both
// deliver it.
func (m *Model) resolve(o progress.Outcome) {
	if m.outcome != nil {
		return
	}
	m.outcome = &o
	if o.Kind == progress.Fatal {
		m.screen = screenFatal
		m.exitCode = 1
		return
	}
	m.screen = screenHome
}

// ExitCode is 1 after a Fatal outcome.
func (m Model) ExitCode() int { return m.exitCode }

// Outcome returns the outcome once known.
func (m Model) Outcome() (progress.Outcome, bool) {
	if m.outcome == nil {
		return progress.Outcome{}, false
	}
	return *m.outcome, true
}

func (m Model) View() string {
	switch m.screen {
	case screenFatal:
		return m.viewFatal()
	case screenHome:
		return m.viewHome()
	default:
		return m.viewSplash()
	}
}

func (m Model) line(s string) string {
	return ansi.Truncate(s, max(m.width-4, 10), "…")
}

func (m Model) viewSplash() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("launchpad"))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.fraction))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" %3.0f%%", m.fraction*100)))
	b.WriteString("\n\n")
	for _, l := range m.recent {
		b.WriteString(m.styles.Muted.Render(m.line(l)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewFatal() string {
	cause := "unknown error"
	if m.outcome != nil && m.outcome.Cause != nil {
		cause = m.outcome.Cause.Error()
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Error.Render("launchpad could not start"),
		"",
		m.styles.Text.Render(m.line(cause)),
		"",
		m.styles.Muted.Render("press "+m.keys.Any.Help().Key+" to "+m.keys.Any.Help().Desc),
	)
	return m.styles.Panel.Render(body)
}

func (m Model) viewHome() string {
	var rows []string
	rows = append(rows, m.styles.Title.Render("launchpad"))
	if m.outcome != nil && m.outcome.Kind == progress.Degraded {
		rows = append(rows, m.styles.Banner.Render(m.line("running with reduced capability: "+m.outcome.Reason)))
	}
	rows = append(rows, "")
	if m.outcome != nil {
		for _, p := range m.outcome.Phases {
			rows = append(rows, m.phaseLine(p))
		}
	}
	rows = append(rows, "", m.styles.Muted.Render(m.keys.Quit.Help().Key+" "+m.keys.Quit.Help().Desc))
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) phaseLine(p progress.PhaseReport) string {
	style := m.styles.Success
	mark := "✓"
	switch p.Status {
	case "completed":
	case "timed-out":
		style, mark = m.styles.Warning, "…"
	default:
		style, mark = m.styles.Error, "✗"
	}
	text := fmt.Sprintf("%s %-8s %-10s %s", mark, p.Name, p.Status, p.Elapsed.Round(time.Millisecond))
	return style.Render(m.line(text))
}
