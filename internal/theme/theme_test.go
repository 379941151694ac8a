package theme

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMochaIsValid(t *testing.T) {
	require.NoError(t, Mocha().Validate())
}

func TestValidateRejectsBadColour(t *testing.T) {
	p := Mocha()
	p.Warning = "yellow"
	require.ErrorContains(t, p.Validate(), "warning")
}

func writePalette(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o600))
}

func TestPreloadCommonMissingDirUsesBuiltin(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent"), "", nil)
	require.NoError(t, m.PreloadCommon(context.Background()))
	require.Equal(t, DefaultName, m.Active().Palette.Name)
	require.Equal(t, []string{"mocha"}, m.Names())
}

func TestPreloadCommonLoadsPalettes(t *testing.T) {
	dir := t.TempDir()
	writePalette(t, dir, "latte.toml", `
name = "latte"
base = "#eff1f5"
text = "#4c4f69"
accent = "#ea76cb"
`)
	writePalette(t, dir, "notes.txt", "ignored")

	m := NewManager(dir, "Latte", nil)
	require.NoError(t, m.PreloadCommon(context.Background()))

	active := m.Active()
	require.Equal(t, "latte", active.Palette.Name)
	require.Equal(t, "#eff1f5", active.Palette.Base)
	// unset roles inherit the built-in colours
	require.Equal(t, Mocha().Error, active.Palette.Error)
	require.Equal(t, []string{"latte", "mocha"}, m.Names())
}

func TestPreloadCommonRejectsInvalidPalette(t *testing.T) {
	dir := t.TempDir()
	writePalette(t, dir, "broken.toml", `accent = "pink"`)

	m := NewManager(dir, "", nil)
	err := m.PreloadCommon(context.Background())
	require.ErrorContains(t, err, "broken.toml")
	require.Equal(t, DefaultName, m.Active().Palette.Name)
}

func TestPreloadCommonSuggestsCloseName(t *testing.T) {
	m := NewManager(t.TempDir(), "mocah", nil)
	err := m.PreloadCommon(context.Background())
	require.ErrorIs(t, err, ErrUnknownTheme)
	require.ErrorContains(t, err, `did you mean "mocha"`)

	m = NewManager(t.TempDir(), "solarized-dark", nil)
	err = m.PreloadCommon(context.Background())
	require.ErrorIs(t, err, ErrUnknownTheme)
	require.NotContains(t, err.Error(), "did you mean")
}

func TestPreloadCommonHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	writePalette(t, dir, "latte.toml", `name = "latte"`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(dir, "", nil)
	require.ErrorIs(t, m.PreloadCommon(ctx), context.Canceled)
}
