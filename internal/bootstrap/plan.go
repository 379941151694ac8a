package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jask/launchpad/internal/phase"
)

var (
	// ErrInvalidPlan is the Fatal cause for a phase set that cannot run.
	ErrInvalidPlan = errors.New("invalid bootstrap plan")
	// ErrDependencyNotMet fails a phase whose dependency did not complete.
	ErrDependencyNotMet = errors.New("dependency not completed")
	// ErrPhaseTimeout matches every *TimeoutError.
	ErrPhaseTimeout = errors.New("phase timed out")
)

// Default per-phase timeouts.
const (
	DefaultFastTimeout = 5 * time.Second
	DefaultSlowTimeout = 10 * time.Second
)

// Spec declares one phase. DependsOn names phases that must be Completed
// before Work starts; there is no other ordering between phases.
type Spec struct {
	Name      string
	Work      phase.Work
	Timeout   time.Duration
	Slow      bool
	DependsOn []string
}

// TimeoutError is retained on a phase the orchestrator stopped waiting for.
type TimeoutError struct {
	Phase string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("phase %s timed out after %s", e.Phase, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrPhaseTimeout }

// Criticality decides which phases force a Fatal outcome.
type Criticality interface {
	IsCritical(name string) bool
}

// CriticalSet is a Criticality backed by a fixed list of names.
type CriticalSet map[string]struct{}

func NewCriticalSet(names ...string) CriticalSet {
	set := make(CriticalSet, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (c CriticalSet) IsCritical(name string) bool {
	_, ok := c[strings.ToLower(name)]
	return ok
}

func validate(specs []Spec) error {
	byName := make(map[string]Spec, len(specs))
	for _, s := range specs {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: phase with empty name", ErrInvalidPlan)
		}
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("%w: duplicate phase %q", ErrInvalidPlan, s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("%w: %s depends on unknown phase %q", ErrInvalidPlan, s.Name, dep)
			}
		}
	}

	// dependency edges must form a DAG or the dependents would wait forever
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(specs))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("%w: dependency cycle %s", ErrInvalidPlan, strings.Join(append(path[:len(path):len(path)], name), " -> "))
		case done:
			return nil
		}
		state[name] = visiting
		path = append(path[:len(path):len(path)], name)
		for _, dep := range byName[name].DependsOn {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}
	for _, s := range specs {
		if err := visit(s.Name, nil); err != nil {
			return err
		}
	}
	return nil
}
