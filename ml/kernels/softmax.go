package kernels

import (
	"context"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/ollama/devcheck/ml"
)

// softmax normalizes each row of X viewed as [shape[0], rest].
func softmax(ctx context.Context, cfg Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 1, 1); err != nil {
		return nil, err
	}

	x := in[0]
	rows := 1
	if x.Rank() > 0 {
		rows = x.Dim(0)
	}

	xs := x.Floats()
	ys := make([]float32, len(xs))
	if rows == 0 {
		y, err := ml.FromFloats(ys, x.Shape()...)
		return []*ml.Tensor{y}, err
	}

	cols := len(xs) / rows
	if err := parallelFor(ctx, cfg.Threads, rows, func(r int) error {
		row, out := xs[r*cols:(r+1)*cols], ys[r*cols:(r+1)*cols]
		if cfg.BLAS {
			softmaxRow32(row, out)
		} else {
			softmaxRow64(row, out)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	y, err := ml.FromFloats(ys, x.Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{y}, nil
}

func softmaxRow64(x, y []float32) {
	m := math.Inf(-1)
	for _, v := range x {
		m = max(m, float64(v))
	}

	var sum float64
	e := make([]float64, len(x))
	for i, v := range x {
		e[i] = math.Exp(float64(v) - m)
		sum += e[i]
	}

	for i := range e {
		y[i] = float32(e[i] / sum)
	}
}

func softmaxRow32(x, y []float32) {
	m := math32.Inf(-1)
	for _, v := range x {
		m = max(m, v)
	}

	var sum float32
	for i, v := range x {
		y[i] = math32.Exp(v - m)
		sum += y[i]
	}

	for i := range y {
		y[i] /= sum
	}
}

// labelCrossEntropy computes X, Label -> Y with y[i] = -log(x[i, label[i]]).
func labelCrossEntropy(_ context.Context, _ Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 2, 2); err != nil {
		return nil, err
	}

	x, label := in[0], in[1]
	if err := rank(x, 2); err != nil {
		return nil, err
	}

	n, d := x.Dim(0), x.Dim(1)
	if label.Len() != n {
		return nil, fmt.Errorf("%d labels for batch of %d", label.Len(), n)
	}

	xs, labels := x.Floats(), label.Ints()
	ys := make([]float32, n)
	for i, l := range labels {
		if l < 0 || int(l) >= d {
			return nil, fmt.Errorf("label %d at %d out of range [0, %d)", l, i, d)
		}
		ys[i] = float32(-math.Log(max(float64(xs[i*d+int(l)]), 1e-20)))
	}

	y, err := ml.FromFloats(ys, n)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{y}, nil
}

// averagedLoss reduces X to the scalar mean of its elements.
func averagedLoss(_ context.Context, _ Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 1, 1); err != nil {
		return nil, err
	}

	xs := in[0].Float64s()
	if len(xs) == 0 {
		return nil, fmt.Errorf("cannot average empty input %v", in[0].Shape())
	}

	var sum float64
	for _, v := range xs {
		sum += v
	}

	y, err := ml.FromFloats([]float32{float32(sum / float64(len(xs)))})
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{y}, nil
}
