package progress

import (
	"fmt"
	"time"
)

// Kind tags the variant of an Outcome.
type Kind int

const (
	Success Kind = iota
	Degraded
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PhaseReport is the presentation-facing summary of one phase.
type PhaseReport struct {
	Name     string
	Status   string
	Critical bool
	Elapsed  time.Duration
	Err      error
}

// Outcome is the terminal result of a bootstrap attempt. Reason is set for
// Degraded, Cause for Fatal.
type Outcome struct {
	Kind    Kind
	Reason  string
	Cause   error
	Phases  []PhaseReport
	Attempt string
}

func (o Outcome) String() string {
	switch o.Kind {
	case Degraded:
		return fmt.Sprintf("degraded: %s", o.Reason)
	case Fatal:
		return fmt.Sprintf("fatal: %v", o.Cause)
	default:
		return o.Kind.String()
	}
}

// Ok reports whether the application may continue to normal operation.
func (o Outcome) Ok() bool {
	return o.Kind != Fatal
}
