package theme

import (
	"fmt"
	"regexp"

	"github.com/charmbracelet/lipgloss"
)

// Catppuccin Mocha, https://catppuccin.com/palette
const (
	mochaRed      lipgloss.Color = "#f38ba8"
	mochaYellow   lipgloss.Color = "#f9e2af"
	mochaGreen    lipgloss.Color = "#a6e3a1"
	mochaTeal     lipgloss.Color = "#94e2d5"
	mochaPink     lipgloss.Color = "#f5c2e7"
	mochaLavender lipgloss.Color = "#b4befe"
	mochaText     lipgloss.Color = "#cdd6f4"
	mochaOverlay1 lipgloss.Color = "#7f849c"
	mochaSurface0 lipgloss.Color = "#313244"
	mochaBase     lipgloss.Color = "#1e1e2e"
)

// DefaultName is the built-in palette.
const DefaultName = "mocha"

// Palette maps the semantic roles the shell draws with to colours.
type Palette struct {
	Name    string `toml:"name"`
	Base    string `toml:"base"`
	Surface string `toml:"surface"`
	Text    string `toml:"text"`
	Muted   string `toml:"muted"`
	Accent  string `toml:"accent"`
	Focus   string `toml:"focus"`
	Info    string `toml:"info"`
	Success string `toml:"success"`
	Warning string `toml:"warning"`
	Error   string `toml:"error"`
}

// Mocha returns the built-in palette.
func Mocha() Palette {
	return Palette{
		Name:    DefaultName,
		Base:    string(mochaBase),
		Surface: string(mochaSurface0),
		Text:    string(mochaText),
		Muted:   string(mochaOverlay1),
		Accent:  string(mochaPink),
		Focus:   string(mochaLavender),
		Info:    string(mochaTeal),
		Success: string(mochaGreen),
		Warning: string(mochaYellow),
		Error:   string(mochaRed),
	}
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Validate checks that every role is set to a hex colour.
func (p Palette) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("palette has no name")
	}
	for role, c := range p.roles() {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("palette %s: %s %q is not a hex colour", p.Name, role, c)
		}
	}
	return nil
}

func (p Palette) roles() map[string]string {
	return map[string]string{
		"base":    p.Base,
		"surface": p.Surface,
		"text":    p.Text,
		"muted":   p.Muted,
		"accent":  p.Accent,
		"focus":   p.Focus,
		"info":    p.Info,
		"success": p.Success,
		"warning": p.Warning,
		"error":   p.Error,
	}
}

// Styles are the lipgloss styles derived from a palette.
type Styles struct {
	Title   lipgloss.Style
	Text    lipgloss.Style
	Muted   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Banner  lipgloss.Style
	Panel   lipgloss.Style
	Accent  lipgloss.Color
	Surface lipgloss.Color
}

func NewStyles(p Palette) Styles {
	c := func(s string) lipgloss.Color { return lipgloss.Color(s) }
	return Styles{
		Title:   lipgloss.NewStyle().Foreground(c(p.Accent)).Bold(true),
		Text:    lipgloss.NewStyle().Foreground(c(p.Text)),
		Muted:   lipgloss.NewStyle().Foreground(c(p.Muted)),
		Info:    lipgloss.NewStyle().Foreground(c(p.Info)),
		Success: lipgloss.NewStyle().Foreground(c(p.Success)).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(c(p.Warning)).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(c(p.Error)).Bold(true),
		Banner: lipgloss.NewStyle().
			Foreground(c(p.Base)).
			Background(c(p.Warning)).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c(p.Focus)).
			Padding(1, 2),
		Accent:  c(p.Accent),
		Surface: c(p.Surface),
	}
}
