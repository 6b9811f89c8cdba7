package kernels

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/ollama/devcheck/ml"
)

// fill produces a parameter tensor from FillArgs. Values depend only on the
// op, its seed and its output name, so every backend fills identically.
func fill(_ context.Context, _ Config, op ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 0, 0); err != nil {
		return nil, err
	}

	if len(op.Outputs) == 0 {
		return nil, fmt.Errorf("%s has no outputs", op.Type)
	}

	args, err := argsOf[ml.FillArgs](op)
	if err != nil {
		return nil, err
	}

	n := 1
	for _, d := range args.Shape {
		if d < 0 {
			return nil, fmt.Errorf("invalid shape %v", args.Shape)
		}
		n *= d
	}

	h := fnv.New64a()
	h.Write([]byte(op.Outputs[0]))
	rng := rand.New(rand.NewPCG(args.Seed, h.Sum64()))

	s := make([]float32, n)
	switch op.Type {
	case ml.OpConstantFill:
		for i := range s {
			s[i] = args.Value
		}
	case ml.OpGaussianFill:
		if args.Std < 0 {
			return nil, fmt.Errorf("negative std %v", args.Std)
		}
		for i := range s {
			s[i] = float32(rng.NormFloat64()*float64(args.Std) + float64(args.Mean))
		}
	case ml.OpUniformFill:
		if args.Max < args.Min {
			return nil, fmt.Errorf("empty range [%v, %v]", args.Min, args.Max)
		}
		for i := range s {
			s[i] = float32(float64(args.Min) + rng.Float64()*float64(args.Max-args.Min))
		}
	case ml.OpXavierFill:
		scale := float64(args.Scale)
		if scale == 0 {
			fanIn := n
			if len(args.Shape) > 0 && args.Shape[0] > 0 {
				fanIn /= args.Shape[0]
			}
			scale = math.Sqrt(3 / float64(max(fanIn, 1)))
		}
		for i := range s {
			s[i] = float32((2*rng.Float64() - 1) * scale)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ml.ErrUnsupportedOp, op.Type)
	}

	t, err := ml.FromFloats(s, args.Shape...)
	if err != nil {
		return nil, err
	}

	outputs := make([]*ml.Tensor, len(op.Outputs))
	for i := range outputs {
		outputs[i] = t
	}
	return outputs, nil
}
