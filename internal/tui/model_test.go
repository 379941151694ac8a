package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jask/launchpad/internal/progress"
	"github.com/jask/launchpad/internal/theme"
)

func newModel(events <-chan progress.Event) Model {
	return New(theme.NewStyles(theme.Mocha()), events)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestSplashShowsProgress(t *testing.T) {
	events := make(chan progress.Event, 1)
	m := newModel(events)
	require.NotNil(t, m.Init())

	m, cmd := update(t, m, EventMsg{Update: progress.Update{Fraction: 0.25, Message: "storage: applying schema"}})
	require.NotNil(t, cmd, "keeps reading the stream")
	view := m.View()
	assert.Contains(t, view, "storage: applying schema")
	assert.Contains(t, view, "25%")
}

func TestSplashReadsNextEvent(t *testing.T) {
	events := make(chan progress.Event, 1)
	events <- progress.Event{Update: progress.Update{Fraction: 0.5, Message: "cache ready"}}
	m := newModel(events)

	msg := m.Init()()
	require.Equal(t, EventMsg{Update: progress.Update{Fraction: 0.5, Message: "cache ready"}}, msg)

	close(events)
	_, cmd := update(t, m, msg)
	require.IsType(t, streamClosedMsg{}, cmd())
}

func TestSuccessShowsHome(t *testing.T) {
	m := newModel(nil)
	out := progress.Outcome{Kind: progress.Success, Phases: []progress.PhaseReport{
		{Name: "storage", Status: "completed", Elapsed: 120 * time.Millisecond},
	}}
	m, _ = update(t, m, EventMsg{Update: progress.Update{Fraction: 1, Message: "ready"}, Outcome: &out})

	view := m.View()
	assert.Contains(t, view, "storage")
	assert.NotContains(t, view, "reduced capability")
	assert.Zero(t, m.ExitCode())

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestDegradedShowsBanner(t *testing.T) {
	m := newModel(nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 40})
	m, _ = update(t, m, OutcomeMsg{Kind: progress.Degraded, Reason: "theme timed-out", Phases: []progress.PhaseReport{
		{Name: "theme", Status: "timed-out"},
	}})
	view := m.View()
	assert.Contains(t, view, "reduced capability")
	assert.Contains(t, view, "theme timed-out")

	// a second delivery from the stream does not change the screen
	fatal := progress.Outcome{Kind: progress.Fatal, Cause: errors.New("late")}
	m, _ = update(t, m, EventMsg{Outcome: &fatal})
	out, ok := m.Outcome()
	require.True(t, ok)
	assert.Equal(t, progress.Degraded, out.Kind)
}

func TestLoadedThemeReachesHome(t *testing.T) {
	latte := theme.Palette{
		Name: "latte", Base: "#eff1f5", Surface: "#ccd0da", Text: "#4c4f69", Muted: "#8c8fa1",
		Accent: "#ea76cb", Focus: "#7287fd", Info: "#179299", Success: "#40a02b", Warning: "#df8e1d", Error: "#d20f39",
	}
	styles := theme.NewStyles(latte)

	m := newModel(nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m, _ = update(t, m, StylesMsg(styles))
	m, _ = update(t, m, OutcomeMsg{Kind: progress.Degraded, Reason: "cache failed", Phases: []progress.PhaseReport{
		{Name: "storage", Status: "completed"},
		{Name: "cache", Status: "failed"},
	}})

	assert.Equal(t, lipgloss.Color(latte.Accent), m.styles.Title.GetForeground())
	assert.Equal(t, lipgloss.Color(latte.Warning), m.styles.Banner.GetBackground())
	assert.Equal(t, 80, m.bar.Width)

	view := m.View()
	assert.Contains(t, view, styles.Title.Render("launchpad"))
	assert.Contains(t, view, styles.Banner.Render("running with reduced capability: cache failed"))
}

func TestFatalExitsOnAnyKey(t *testing.T) {
	m := newModel(nil)
	m, _ = update(t, m, OutcomeMsg{Kind: progress.Fatal, Cause: errors.New("storage: disk full")})

	assert.Contains(t, m.View(), "disk full")
	assert.Equal(t, 1, m.ExitCode())

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestLongMessagesAreTruncated(t *testing.T) {
	m := newModel(nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 10})
	m, _ = update(t, m, EventMsg{Update: progress.Update{Fraction: 0.1, Message: strings.Repeat("x", 200)}})
	assert.NotContains(t, m.View(), strings.Repeat("x", 40))
}
