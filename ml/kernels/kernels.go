// Package kernels implements the operator set shared by the cpu and accel
// backends. Backends differ only in the Config they execute with.
package kernels

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/ollama/devcheck/logutil"
	"github.com/ollama/devcheck/ml"
)

// Config selects the numeric strategy of a backend.
type Config struct {
	// Threads bounds the goroutines a single op fans out to. Values below 2
	// run sequentially.
	Threads int

	// BLAS selects float32 GEMM based convolution and FC instead of float64
	// direct loops.
	BLAS bool

	// LastMaxWins makes max pooling pick the last maximum of a window
	// instead of the first.
	LastMaxWins bool

	// Round is applied to every floating point output. nil leaves outputs
	// untouched.
	Round func(*ml.Tensor) *ml.Tensor
}

type kernel func(ctx context.Context, cfg Config, op ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error)

var kernels = map[ml.OpType]kernel{
	ml.OpScale:             scale,
	ml.OpAdd:               add,
	ml.OpRelu:              relu,
	ml.OpConv:              conv,
	ml.OpLRN:               lrn,
	ml.OpMaxPool:           maxPool,
	ml.OpFC:                fc,
	ml.OpSoftmax:           softmax,
	ml.OpLabelCrossEntropy: labelCrossEntropy,
	ml.OpAveragedLoss:      averagedLoss,

	ml.OpReluGradient:              reluGradient,
	ml.OpFCGradient:                fcGradient,
	ml.OpSoftmaxGradient:           softmaxGradient,
	ml.OpLabelCrossEntropyGradient: labelCrossEntropyGradient,
	ml.OpAveragedLossGradient:      averagedLossGradient,

	ml.OpXavierFill:   fill,
	ml.OpConstantFill: fill,
	ml.OpGaussianFill: fill,
	ml.OpUniformFill:  fill,
}

// Supports reports whether op has a kernel.
func Supports(op ml.OpType) bool {
	_, ok := kernels[op]
	return ok
}

// OpTypes lists every op type with a kernel, sorted.
func OpTypes() []ml.OpType {
	return slices.Sorted(maps.Keys(kernels))
}

// Execute runs the ops of g in order. Inputs are read from a private copy of
// inputs, so the caller's store is never modified. The returned store holds
// only the tensors produced by g.
func Execute(ctx context.Context, cfg Config, g *ml.Graph, inputs *ml.Store) (*ml.Store, error) {
	ws := inputs.Clone()
	out := ml.NewStore()

	for i, op := range g.Ops {
		if err := ctx.Err(); err != nil {
			return nil, &ml.ExecutionError{Op: i, OpType: op.Type, Err: err}
		}

		k, ok := kernels[op.Type]
		if !ok {
			return nil, &ml.ExecutionError{Op: i, OpType: op.Type, Err: fmt.Errorf("%w: %s", ml.ErrUnsupportedOp, op.Type)}
		}

		in := make([]*ml.Tensor, len(op.Inputs))
		for j, name := range op.Inputs {
			t, err := ws.Get(name)
			if err != nil {
				return nil, &ml.ExecutionError{Op: i, OpType: op.Type, Err: err}
			}
			in[j] = t
		}

		results, err := k(ctx, cfg, op, in)
		if err != nil {
			return nil, &ml.ExecutionError{Op: i, OpType: op.Type, Err: err}
		}

		if len(op.Outputs) > len(results) {
			return nil, &ml.ExecutionError{Op: i, OpType: op.Type, Err: fmt.Errorf("op produces %d outputs, %d requested", len(results), len(op.Outputs))}
		}

		for j, name := range op.Outputs {
			t := results[j]
			if cfg.Round != nil && t.DType().IsFloat() {
				t = cfg.Round(t)
			}
			ws.Put(name, t)
			out.Put(name, t)
		}

		logutil.Trace("op executed", "graph", g.Name, "op", i, "type", op.Type, "outputs", op.Outputs)
	}

	return out, nil
}

func argsOf[T ml.Args](op ml.Op) (T, error) {
	args, ok := op.Args.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("invalid arguments %T for %s", op.Args, op.Type)
	}
	return args, nil
}

func arity(in []*ml.Tensor, lo, hi int) error {
	if len(in) < lo || len(in) > hi {
		if lo == hi {
			return fmt.Errorf("expected %d inputs, got %d", lo, len(in))
		}
		return fmt.Errorf("expected %d to %d inputs, got %d", lo, hi, len(in))
	}
	return nil
}

func rank(t *ml.Tensor, n int) error {
	if t.Rank() != n {
		return fmt.Errorf("expected rank %d input, got shape %v", n, t.Shape())
	}
	return nil
}
