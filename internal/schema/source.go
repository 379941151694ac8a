package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

//go:embed sql/*.sql
var embedded embed.FS

const (
	enhancedFile = "enhanced.sql"
	baselineFile = "baseline.sql"
)

// ErrSchemaSourceMissing is returned when none of the candidate schema
// resources could be read.
var ErrSchemaSourceMissing = errors.New("schema source missing")

// Script is a resolved schema batch.
type Script struct {
	Source string
	Body   string
}

// Source is one candidate location for a schema script.
type Source interface {
	Name() string
	Load() (string, error)
}

// FSSource reads a script from a file system.
type FSSource struct {
	Label string
	FS    fs.FS
	Path  string
}

func (s FSSource) Name() string {
	if s.Label != "" {
		return s.Label + ":" + s.Path
	}
	return s.Path
}

func (s FSSource) Load() (string, error) {
	if s.FS == nil {
		return "", fs.ErrNotExist
	}
	b, err := fs.ReadFile(s.FS, s.Path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DefaultSources lists the candidates in resolution order: an optional
// override directory first, then the embedded resources. Within each
// location the enhanced schema is preferred over the baseline.
func DefaultSources(overrideDir string) []Source {
	var out []Source
	if overrideDir != "" {
		dir := os.DirFS(overrideDir)
		out = append(out,
			FSSource{Label: overrideDir, FS: dir, Path: enhancedFile},
			FSSource{Label: overrideDir, FS: dir, Path: baselineFile},
		)
	}
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return out
	}
	return append(out,
		FSSource{Label: "embedded", FS: sub, Path: enhancedFile},
		FSSource{Label: "embedded", FS: sub, Path: baselineFile},
	)
}

// Resolve returns the first source that yields a non-blank script.
func Resolve(sources ...Source) (Script, error) {
	var tried []string
	for _, src := range sources {
		body, err := src.Load()
		if err != nil {
			tried = append(tried, fmt.Sprintf("%s (%v)", src.Name(), err))
			continue
		}
		if strings.TrimSpace(body) == "" {
			tried = append(tried, src.Name()+" (empty)")
			continue
		}
		return Script{Source: src.Name(), Body: body}, nil
	}
	if len(tried) == 0 {
		return Script{}, fmt.Errorf("%w: no sources configured", ErrSchemaSourceMissing)
	}
	return Script{}, fmt.Errorf("%w: tried %s", ErrSchemaSourceMissing, strings.Join(tried, ", "))
}
