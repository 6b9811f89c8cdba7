package checker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ollama/devcheck/ml"
)

var (
	ErrInvalidConfig = errors.New("invalid checker configuration")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrMissingOutput = errors.New("missing output")
)

// MissingOutputError reports an output one run produced and another did
// not. It aborts the check.
type MissingOutputError struct {
	Name string

	// Placement is the run lacking the output and Reference the run that
	// produced it. For outputs only a non-reference run produced, Placement
	// is the reference placement.
	Placement ml.Placement
	Reference ml.Placement

	// Suggestion is the closest name the run did produce, if any.
	Suggestion string
}

func (e *MissingOutputError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "output %q produced on %s missing on %s", e.Name, e.Reference, e.Placement)
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "; did you mean %q?", e.Suggestion)
	}
	return sb.String()
}

func (e *MissingOutputError) Unwrap() error {
	return ErrMissingOutput
}
