package checker

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/ollama/devcheck/ml"
)

type Status int

const (
	Pass Status = iota
	Fail
	ShapeMismatch
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case ShapeMismatch:
		return "shape mismatch"
	default:
		return "unknown"
	}
}

// Result is the outcome of comparing two tensors elementwise.
type Result struct {
	Status    Status
	Tolerance float64

	ShapeA, ShapeB []int
	DTypeA, DTypeB ml.DType

	// MaxDiff is the largest absolute elementwise difference, found first at
	// flat index Index with coordinates Coords. Index is -1 when nothing was
	// compared.
	MaxDiff float64
	Index   int
	Coords  []int
}

func (r Result) Passed() bool {
	return r.Status == Pass
}

// Err describes a failed comparison. It is nil for passing results and wraps
// ErrShapeMismatch for shape mismatches.
func (r Result) Err() error {
	switch r.Status {
	case Pass:
		return nil
	case ShapeMismatch:
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, r.ShapeA, r.ShapeB)
	default:
		return fmt.Errorf("max difference %g at index %d %v exceeds tolerance %g", r.MaxDiff, r.Index, r.Coords, r.Tolerance)
	}
}

// Compare checks that a and b have the same shape and that no elementwise
// absolute difference exceeds tolerance. Values are widened to float64, so
// tensors of different dtypes compare by value. Compare is symmetric in a and
// b except for the order of the recorded shapes and dtypes.
func Compare(a, b *ml.Tensor, tolerance float64) Result {
	r := Result{
		Tolerance: tolerance,
		ShapeA:    a.Shape(),
		ShapeB:    b.Shape(),
		DTypeA:    a.DType(),
		DTypeB:    b.DType(),
		Index:     -1,
	}

	if !slices.Equal(r.ShapeA, r.ShapeB) {
		r.Status = ShapeMismatch
		return r
	}

	as, bs := a.Float64s(), b.Float64s()
	if len(as) == 0 {
		return r
	}

	diffs := make([]float64, len(as))
	for i := range as {
		diffs[i] = absDiff(as[i], bs[i])
	}

	r.Index = floats.MaxIdx(diffs)
	r.MaxDiff = diffs[r.Index]
	r.Coords = ml.Unravel(r.ShapeA, r.Index)
	if r.MaxDiff > tolerance {
		r.Status = Fail
	}

	return r
}

// absDiff treats NaN as equal to NaN and infinitely far from any number.
func absDiff(x, y float64) float64 {
	xNaN, yNaN := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xNaN && yNaN, x == y:
		return 0
	case xNaN || yNaN:
		return math.Inf(1)
	default:
		return math.Abs(x - y)
	}
}
