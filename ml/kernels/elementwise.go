package kernels

import (
	"context"
	"fmt"
	"slices"

	"github.com/ollama/devcheck/ml"
)

func scale(_ context.Context, _ Config, op ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 1, 1); err != nil {
		return nil, err
	}

	args, err := argsOf[ml.ScaleArgs](op)
	if err != nil {
		return nil, err
	}

	s := in[0].Floats()
	for i := range s {
		s[i] *= args.Scale
	}

	y, err := ml.FromFloats(s, in[0].Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{y}, nil
}

// add sums two tensors of the same shape. A single element b is broadcast.
func add(_ context.Context, _ Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 2, 2); err != nil {
		return nil, err
	}

	a, b := in[0], in[1]
	if !slices.Equal(a.Shape(), b.Shape()) && b.Len() != 1 {
		return nil, fmt.Errorf("cannot add shapes %v and %v", a.Shape(), b.Shape())
	}

	s, bs := a.Floats(), b.Floats()
	for i := range s {
		if len(bs) == 1 {
			s[i] += bs[0]
		} else {
			s[i] += bs[i]
		}
	}

	y, err := ml.FromFloats(s, a.Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{y}, nil
}

func relu(_ context.Context, _ Config, _ ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 1, 1); err != nil {
		return nil, err
	}

	s := in[0].Floats()
	for i, v := range s {
		if v < 0 {
			s[i] = 0
		}
	}

	y, err := ml.FromFloats(s, in[0].Shape()...)
	if err != nil {
		return nil, err
	}
	return []*ml.Tensor{y}, nil
}
