// Package theme loads colour palettes and derives the shell's styles.
package theme

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/agnivade/levenshtein"
)

// ErrUnknownTheme is returned when the configured theme was not found.
var ErrUnknownTheme = errors.New("unknown theme")

// Theme is a palette with its styles.
type Theme struct {
	Palette Palette
	Styles  Styles
}

// Manager owns the known palettes and the active theme. Until PreloadCommon
// succeeds the active theme is the built-in one.
type Manager struct {
	dir  string
	name string
	log  *slog.Logger

	mu       sync.RWMutex
	palettes map[string]Palette
	active   Theme
}

func NewManager(dir, name string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = DefaultName
	}
	m := Mocha()
	return &Manager{
		dir:      dir,
		name:     strings.ToLower(name),
		log:      logger,
		palettes: map[string]Palette{DefaultName: m},
		active:   Theme{Palette: m, Styles: NewStyles(m)},
	}
}

// PreloadCommon reads every *.toml palette in the theme directory and
// activates the configured theme. A missing directory is not an error; an
// unreadable or invalid palette file is.
func (m *Manager) PreloadCommon(ctx context.Context) error {
	loaded := map[string]Palette{DefaultName: Mocha()}

	files, err := m.paletteFiles()
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := readPalette(path)
		if err != nil {
			return err
		}
		key := strings.ToLower(p.Name)
		if _, dup := loaded[key]; dup {
			m.log.Warn("palette overrides earlier definition", "theme", p.Name, "file", path)
		}
		loaded[key] = p
	}

	p, ok := loaded[m.name]
	if !ok {
		return unknownTheme(m.name, loaded)
	}

	m.mu.Lock()
	m.palettes = loaded
	m.active = Theme{Palette: p, Styles: NewStyles(p)}
	m.mu.Unlock()
	m.log.Debug("themes preloaded", "count", len(loaded), "active", p.Name)
	return nil
}

func (m *Manager) paletteFiles() ([]string, error) {
	if m.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read theme dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(m.dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readPalette(path string) (Palette, error) {
	// missing roles fall back to the built-in palette
	p := Mocha()
	p.Name = strings.TrimSuffix(filepath.Base(path), ".toml")
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Palette{}, fmt.Errorf("decode palette %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Palette{}, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

func unknownTheme(name string, known map[string]Palette) error {
	best, bestDist := "", -1
	for k := range known {
		d := levenshtein.ComputeDistance(name, k)
		if bestDist < 0 || d < bestDist || (d == bestDist && k < best) {
			best, bestDist = k, d
		}
	}
	if best != "" && bestDist <= 3 {
		return fmt.Errorf("%w %q, did you mean %q?", ErrUnknownTheme, name, best)
	}
	return fmt.Errorf("%w %q", ErrUnknownTheme, name)
}

// Active returns the current theme.
func (m *Manager) Active() Theme {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Names lists the known palettes in alphabetical order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.palettes))
	for k := range m.palettes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
