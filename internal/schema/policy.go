package schema

import (
	"errors"
	"fmt"
)

// ErrSchemaRejected is returned by a Policy that does not accept a Result.
var ErrSchemaRejected = errors.New("schema rejected")

// Policy decides whether a partially applied batch is good enough for the
// storage phase to complete.
type Policy string

const (
	// PolicyStrict requires every statement to succeed.
	PolicyStrict Policy = "strict"
	// PolicyLenient accepts any batch where at least one statement landed.
	PolicyLenient Policy = "lenient"
)

// Check returns nil when r is acceptable under p.
func (p Policy) Check(r Result) error {
	if r.Total == 0 {
		return fmt.Errorf("%w: %s has no statements", ErrSchemaRejected, r.Source)
	}
	switch p {
	case PolicyStrict:
		if r.Failed > 0 {
			return fmt.Errorf("%w: %d of %d statements failed (first: %v)", ErrSchemaRejected, r.Failed, r.Total, r.Failures[0])
		}
	case PolicyLenient:
		if r.Succeeded == 0 {
			return fmt.Errorf("%w: none of %d statements applied", ErrSchemaRejected, r.Total)
		}
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrSchemaRejected, string(p))
	}
	return nil
}
