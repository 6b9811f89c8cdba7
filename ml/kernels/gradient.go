// gradient.go
// Dieses Modul enthaelt die Gradienten-Kernel fuer Loss, Softmax, FC und Relu.

package kernels

import (
	"context"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"

	"github.com/ollama/devcheck/ml"
)

func sameShape(a, b *ml.Tensor) error {
	if !slices.Equal(a.Shape(), b.Shape()) {
		return fmt.Errorf("gradient shape %v does not match %v", b.Shape(), a.Shape())
	}
	return nil
}

// reluGradient computes Y, dY -> dX with dX = dY where Y > 0.
func reluGradient(_ context.Context, _ Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 2, 2); err != nil {
		return nil, err
	}

	y, dy := in[0], in[1]
	if err := sameShape(y, dy); err != nil {
		return nil, err
	}

	ys, dx := y.Floats(), dy.Floats()
	for i, v := range ys {
		if v <= 0 {
			dx[i] = 0
		}
	}

	t, err := ml.FromFloats(dx, y.Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{t}, nil
}

// fcGradient computes X, W, dY -> dW, db, dX for Y = X*W^T + b.
func fcGradient(_ context.Context, cfg Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 3, 3); err != nil {
		return nil, err
	}

	x, w, dy := in[0], in[1], in[2]
	if x.Rank() < 1 {
		return nil, fmt.Errorf("expected batched input, got scalar")
	}
	if err := rank(w, 2); err != nil {
		return nil, err
	}

	n, m, k := x.Dim(0), w.Dim(0), w.Dim(1)
	if x.Len() != n*k {
		return nil, fmt.Errorf("input %v does not flatten to [%d, %d]", x.Shape(), n, k)
	}
	if !slices.Equal(dy.Shape(), []int{n, m}) {
		return nil, fmt.Errorf("gradient shape %v does not match [%d %d]", dy.Shape(), n, m)
	}

	dw, db, dx := make([]float32, m*k), make([]float32, m), make([]float32, n*k)
	if n > 0 && m > 0 && k > 0 {
		if cfg.BLAS {
			fcGradientGEMM(n, m, k, x.Floats(), w.Floats(), dy.Floats(), dw, db, dx)
		} else {
			fcGradientDense(n, m, k, x.Float64s(), w.Float64s(), dy.Float64s(), dw, db, dx)
		}
	}

	dwt, err := ml.FromFloats(dw, m, k)
	if err != nil {
		return nil, err
	}
	dbt, err := ml.FromFloats(db, m)
	if err != nil {
		return nil, err
	}
	dxt, err := ml.FromFloats(dx, x.Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{dwt, dbt, dxt}, nil
}

func fcGradientDense(n, m, k int, xs, ws, dys []float64, dw, db, dx []float32) {
	dy := mat.NewDense(n, m, dys)

	var dwm, dxm mat.Dense
	dwm.Mul(dy.T(), mat.NewDense(n, k, xs))
	dxm.Mul(dy, mat.NewDense(m, k, ws))

	for j := range m {
		for c := range k {
			dw[j*k+c] = float32(dwm.At(j, c))
		}
		db[j] = float32(mat.Sum(dy.ColView(j)))
	}

	for i := range n {
		for c := range k {
			dx[i*k+c] = float32(dxm.At(i, c))
		}
	}
}

func fcGradientGEMM(n, m, k int, xs, ws, dys, dw, db, dx []float32) {
	dy := blas32.General{Rows: n, Cols: m, Stride: m, Data: dys}

	blas32.Gemm(blas.Trans, blas.NoTrans, 1, dy,
		blas32.General{Rows: n, Cols: k, Stride: k, Data: xs},
		0, blas32.General{Rows: m, Cols: k, Stride: k, Data: dw})
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, dy,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: ws},
		0, blas32.General{Rows: n, Cols: k, Stride: k, Data: dx})

	for i := range n {
		for j := range m {
			db[j] += dys[i*m+j]
		}
	}
}

// softmaxGradient computes Y, dY -> dX with dX = Y * (dY - sum(dY * Y)) per row.
func softmaxGradient(_ context.Context, cfg Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 2, 2); err != nil {
		return nil, err
	}

	y, dy := in[0], in[1]
	if err := sameShape(y, dy); err != nil {
		return nil, err
	}

	rows := 1
	if y.Rank() > 0 {
		rows = y.Dim(0)
	}

	ys, dys := y.Floats(), dy.Floats()
	dx := make([]float32, len(ys))
	if rows > 0 {
		cols := len(ys) / rows
		for r := range rows {
			yr, dyr, dxr := ys[r*cols:(r+1)*cols], dys[r*cols:(r+1)*cols], dx[r*cols:(r+1)*cols]
			if cfg.BLAS {
				dot := blas32.Dot(blas32.Vector{N: cols, Inc: 1, Data: yr}, blas32.Vector{N: cols, Inc: 1, Data: dyr})
				for i := range dxr {
					dxr[i] = yr[i] * (dyr[i] - dot)
				}
			} else {
				var dot float64
				for i := range yr {
					dot += float64(yr[i]) * float64(dyr[i])
				}
				for i := range dxr {
					dxr[i] = float32(float64(yr[i]) * (float64(dyr[i]) - dot))
				}
			}
		}
	}

	t, err := ml.FromFloats(dx, y.Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{t}, nil
}

// labelCrossEntropyGradient computes X, Label, dY -> dX with
// dX[i, label[i]] = -dY[i] / x[i, label[i]] and zero elsewhere.
func labelCrossEntropyGradient(_ context.Context, _ Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 3, 3); err != nil {
		return nil, err
	}

	x, label, dy := in[0], in[1], in[2]
	if err := rank(x, 2); err != nil {
		return nil, err
	}

	n, d := x.Dim(0), x.Dim(1)
	if label.Len() != n || dy.Len() != n {
		return nil, fmt.Errorf("%d labels and %d gradients for batch of %d", label.Len(), dy.Len(), n)
	}

	xs, labels, dys := x.Floats(), label.Ints(), dy.Floats()
	dx := make([]float32, n*d)
	for i, l := range labels {
		if l < 0 || int(l) >= d {
			return nil, fmt.Errorf("label %d at %d out of range [0, %d)", l, i, d)
		}
		dx[i*d+int(l)] = float32(-float64(dys[i]) / max(float64(xs[i*d+int(l)]), 1e-20))
	}

	t, err := ml.FromFloats(dx, n, d)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{t}, nil
}

// averagedLossGradient computes X, dY -> dX spreading the scalar dY evenly
// over X.
func averagedLossGradient(_ context.Context, _ Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 2, 2); err != nil {
		return nil, err
	}

	x, dy := in[0], in[1]
	if x.Len() == 0 {
		return nil, fmt.Errorf("cannot average empty input %v", x.Shape())
	}
	if dy.Len() != 1 {
		return nil, fmt.Errorf("expected scalar gradient, got shape %v", dy.Shape())
	}

	v := dy.Floats()[0] / float32(x.Len())
	dx := make([]float32, x.Len())
	for i := range dx {
		dx[i] = v
	}

	t, err := ml.FromFloats(dx, x.Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{t}, nil
}
