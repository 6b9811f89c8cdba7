package kernels

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"

	"github.com/ollama/devcheck/ml"
)

var (
	nhwcToNCHW = []int{0, 3, 1, 2}
	nchwToNHWC = []int{0, 2, 3, 1}
)

func permute[T float32 | int32](s []T, shape []int, axes []int) ([]T, []int, error) {
	permuted := make([]int, len(axes))
	for i, a := range axes {
		permuted[i] = shape[a]
	}

	if len(s) <= 1 {
		return slices.Clone(s), permuted, nil
	}

	n := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(slices.Clone(s)))
	if err := n.T(axes...); err != nil {
		return nil, nil, err
	}

	if err := n.Transpose(); err != nil {
		return nil, nil, err
	}

	data, ok := n.Data().([]T)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected transpose result %T", n.Data())
	}

	return data, permuted, nil
}

func transpose(t *ml.Tensor, axes []int) (*ml.Tensor, error) {
	if err := rank(t, len(axes)); err != nil {
		return nil, err
	}

	if t.DType() == ml.DTypeI32 {
		s, shape, err := permute(t.Ints(), t.Shape(), axes)
		if err != nil {
			return nil, err
		}
		return ml.FromInts(s, shape...)
	}

	s, shape, err := permute(t.Floats(), t.Shape(), axes)
	if err != nil {
		return nil, err
	}
	return ml.FromFloats(s, shape...)
}

// toNCHW converts a tensor in the given order to NCHW. NCHW tensors are
// returned unchanged.
func toNCHW(t *ml.Tensor, order ml.Order) (*ml.Tensor, error) {
	if order == ml.NHWC {
		return transpose(t, nhwcToNCHW)
	}
	return t, rank(t, 4)
}

// fromNCHW converts NCHW results back to order.
func fromNCHW(order ml.Order, ts ...*ml.Tensor) ([]*ml.Tensor, error) {
	if order != ml.NHWC {
		return ts, nil
	}

	out := make([]*ml.Tensor, len(ts))
	for i, t := range ts {
		var err error
		if out[i], err = transpose(t, nchwToNHWC); err != nil {
			return nil, err
		}
	}
	return out, nil
}
