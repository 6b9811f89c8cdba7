package checker

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ollama/devcheck/ml"
)

func mustFloats(t *testing.T, s []float32, shape ...int) *ml.Tensor {
	t.Helper()
	tt, err := ml.FromFloats(s, shape...)
	if err != nil {
		t.Fatal(err)
	}
	return tt
}

func TestCompareEqual(t *testing.T) {
	a := mustFloats(t, []float32{1, -2, 3.5, 0}, 2, 2)
	for _, tol := range []float64{0, 1e-9, 0.05, 10} {
		if r := Compare(a, a, tol); !r.Passed() || r.MaxDiff != 0 {
			t.Errorf("tolerance %v: expected pass with zero difference, got %+v", tol, r)
		}
	}
}

func TestCompareTolerance(t *testing.T) {
	a := mustFloats(t, []float32{2, 4, 6}, 3)
	b := mustFloats(t, []float32{2, 4, 3.5}, 3)

	cases := []struct {
		tolerance float64
		want      Status
	}{
		{0, Fail},
		{0.01, Fail},
		{2.4999, Fail},
		{2.5, Pass},
		{3, Pass},
	}

	for _, c := range cases {
		r := Compare(a, b, c.tolerance)
		if r.Status != c.want {
			t.Errorf("tolerance %v: expected %s, got %s", c.tolerance, c.want, r.Status)
		}
		if r.MaxDiff != 2.5 || r.Index != 2 {
			t.Errorf("expected max difference 2.5 at 2, got %v at %d", r.MaxDiff, r.Index)
		}
	}
}

func TestCompareSymmetric(t *testing.T) {
	pairs := [][2]*ml.Tensor{
		{mustFloats(t, []float32{1, 2, 3, 4}, 2, 2), mustFloats(t, []float32{1, 2.5, 3, 3}, 2, 2)},
		{mustFloats(t, []float32{1, 2}, 2), mustFloats(t, []float32{1, 2}, 1, 2)},
		{mustFloats(t, []float32{float32(math.NaN()), 0}, 2), mustFloats(t, []float32{1, 0}, 2)},
		{mustFloats(t, []float32{0.1, 0.2}, 2), mustFloats(t, []float32{0.1, 0.2}, 2).Cast(ml.DTypeF16)},
	}

	for _, p := range pairs {
		for _, tol := range []float64{0, 0.5, 1} {
			ab, ba := Compare(p[0], p[1], tol), Compare(p[1], p[0], tol)
			if ab.Status != ba.Status || ab.MaxDiff != ba.MaxDiff || ab.Index != ba.Index {
				t.Errorf("asymmetric comparison: %+v vs %+v", ab, ba)
			}
			if diff := cmp.Diff(ab.ShapeA, ba.ShapeB); diff != "" {
				t.Errorf("shapes not swapped (-ab +ba):\n%s", diff)
			}
		}
	}
}

func TestCompareShapeMismatch(t *testing.T) {
	r := Compare(mustFloats(t, []float32{1, 2}, 2), mustFloats(t, []float32{1, 2}, 1, 2), 100)
	if r.Status != ShapeMismatch {
		t.Fatalf("expected shape mismatch, got %s", r.Status)
	}
	if !errors.Is(r.Err(), ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", r.Err())
	}
	if diff := cmp.Diff([]int{2}, r.ShapeA); diff != "" {
		t.Errorf("shape a (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, r.ShapeB); diff != "" {
		t.Errorf("shape b (-want +got):\n%s", diff)
	}
}

func TestCompareSpecialValues(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	cases := []struct {
		name  string
		a, b  []float32
		want  Status
		diff  float64
		index int
	}{
		{"nan both", []float32{1, nan}, []float32{1, nan}, Pass, 0, 0},
		{"nan one side", []float32{1, nan}, []float32{1, 2}, Fail, math.Inf(1), 1},
		{"same infinity", []float32{inf, 1}, []float32{inf, 1.5}, Fail, 0.5, 1},
		{"opposite infinity", []float32{inf}, []float32{-inf}, Fail, math.Inf(1), 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := Compare(mustFloats(t, c.a, len(c.a)), mustFloats(t, c.b, len(c.b)), 0.1)
			if r.Status != c.want || r.MaxDiff != c.diff || r.Index != c.index {
				t.Errorf("expected %s %v at %d, got %s %v at %d", c.want, c.diff, c.index, r.Status, r.MaxDiff, r.Index)
			}
		})
	}
}

func TestCompareEmpty(t *testing.T) {
	r := Compare(mustFloats(t, nil, 0, 3), mustFloats(t, nil, 0, 3), 0)
	if !r.Passed() || r.Index != -1 || r.MaxDiff != 0 {
		t.Errorf("expected empty pass, got %+v", r)
	}
}

func TestCompareCoords(t *testing.T) {
	a := mustFloats(t, make([]float32, 24), 2, 3, 4)
	s := make([]float32, 24)
	s[17] = 1
	r := Compare(a, mustFloats(t, s, 2, 3, 4), 0.5)

	if diff := cmp.Diff([]int{1, 1, 1}, r.Coords); diff != "" {
		t.Errorf("coords (-want +got):\n%s", diff)
	}
}

func TestCompareDTypes(t *testing.T) {
	a := mustFloats(t, []float32{1, 2}, 2)
	r := Compare(a, a.Cast(ml.DTypeBF16), 0)
	if !r.Passed() {
		t.Errorf("exactly representable values should pass, got %v", r.Err())
	}
	if r.DTypeA != ml.DTypeF32 || r.DTypeB != ml.DTypeBF16 {
		t.Errorf("unexpected dtypes %s, %s", r.DTypeA, r.DTypeB)
	}
}
