package kernels

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/mat"

	"github.com/ollama/devcheck/ml"
)

// fc is a fully connected layer: X, W, b -> Y = X*W^T + b. X is flattened to
// [N, K] after its first dimension and W is [M, K].
func fc(ctx context.Context, cfg Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 2, 3); err != nil {
		return nil, err
	}

	x, w := in[0], in[1]
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

	bias := make([]float32, m)
	if len(in) == 3 {
		if in[2].Len() != m {
			return nil, fmt.Errorf("bias %v does not match %d outputs", in[2].Shape(), m)
		}
		bias = in[2].Floats()
	}

	ys := make([]float32, n*m)
	for i := range n {
		copy(ys[i*m:], bias)
	}

	if n > 0 && m > 0 && k > 0 {
		var err error
		if cfg.BLAS {
			err = fcGEMM(ctx, cfg.Threads, n, m, k, x.Floats(), w.Floats(), ys)
		} else {
			fcDense(n, m, k, x.Float64s(), w.Float64s(), ys)
		}
		if err != nil {
			return nil, err
		}
	}

	y, err := ml.FromFloats(ys, n, m)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{y}, nil
}

func fcDense(n, m, k int, xs, ws []float64, ys []float32) {
	var y mat.Dense
	y.Mul(mat.NewDense(n, k, xs), mat.NewDense(m, k, ws).T())

	for i := range n {
		for j := range m {
			ys[i*m+j] = float32(float64(ys[i*m+j]) + y.At(i, j))
		}
	}
}

// fcGEMM computes one row of the batch per task, accumulating onto the bias
// already stored in ys.
func fcGEMM(ctx context.Context, threads, n, m, k int, xs, ws, ys []float32) error {
	wm := blas32.General{Rows: m, Cols: k, Stride: k, Data: ws}
	return parallelFor(ctx, threads, n, func(i int) error {
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			blas32.General{Rows: 1, Cols: k, Stride: k, Data: xs[i*k : (i+1)*k]},
			wm,
			1,
			blas32.General{Rows: 1, Cols: m, Stride: m, Data: ys[i*m : (i+1)*m]},
		)
		return nil
	})
}
