package ml

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

var (
	ErrNotFound      = errors.New("tensor not found")
	ErrExecution     = errors.New("execution failed")
	ErrUnsupportedOp = errors.New("unsupported operation")
	ErrNoDevice      = errors.New("no such device")
	ErrUnavailable   = errors.New("backend unavailable")
	ErrContextClosed = errors.New("execution context closed")
)

// NotFoundError is returned by Store.Get for names that were never stored.
type NotFoundError struct {
	Name string

	// Suggestion is the closest stored name, if any is close enough to be a
	// likely typo.
	Suggestion string
}

func (e *NotFoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tensor %q not found", e.Name)
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "; did you mean %q?", e.Suggestion)
	}
	return sb.String()
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ExecutionError describes a failed graph execution. It matches both
// ErrExecution and the underlying cause with errors.Is.
type ExecutionError struct {
	Placement Placement

	// Op is the index of the failing op, or -1 when the failure is not
	// attributable to a single op.
	Op     int
	OpType OpType
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Op < 0 {
		return fmt.Sprintf("execution on %s failed: %v", e.Placement, e.Err)
	}
	return fmt.Sprintf("execution on %s failed at op %d (%s): %v", e.Placement, e.Op, e.OpType, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// Suggest returns the candidate closest to name by edit distance, or "" if
// none is within a third of the name's length (and at least 2 edits).
func Suggest(name string, candidates []string) string {
	limit := max(2, len(name)/3)

	best, bestDistance := "", limit+1
	for _, c := range candidates {
		if c == name {
			continue
		}
		if d := levenshtein.ComputeDistance(name, c); d < bestDistance {
			best, bestDistance = c, d
		}
	}

	return best
}
