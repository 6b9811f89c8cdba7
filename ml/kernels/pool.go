package kernels

import (
	"context"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/ollama/devcheck/ml"
)

// maxPool computes X -> Y, Idx. Idx holds, per output element, the flat
// h*W+w position of the selected maximum within its input plane.
func maxPool(ctx context.Context, cfg Config, op ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 1, 1); err != nil {
		return nil, err
	}

	args, err := argsOf[ml.PoolArgs](op)
	if err != nil {
		return nil, err
	}

	x, err := toNCHW(in[0], args.Order)
	if err != nil {
		return nil, err
	}

	k, s, p := args.Kernel, max(args.Stride, 1), args.Pad
	n, c, h, w := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	switch {
	case k < 1:
		return nil, fmt.Errorf("invalid kernel %d", k)
	case p < 0 || p >= k:
		return nil, fmt.Errorf("padding %d must be in [0, %d)", p, k)
	case h+2*p < k || w+2*p < k:
		return nil, fmt.Errorf("kernel %d larger than padded input %v", k, in[0].Shape())
	}

	oh, ow := (h+2*p-k)/s+1, (w+2*p-k)/s+1

	xs := x.Floats()
	ys := make([]float32, n*c*oh*ow)
	idx := make([]int32, n*c*oh*ow)

	if err := parallelFor(ctx, cfg.Threads, n*c, func(plane int) error {
		x := xs[plane*h*w : (plane+1)*h*w]
		y := ys[plane*oh*ow : (plane+1)*oh*ow]
		id := idx[plane*oh*ow : (plane+1)*oh*ow]

		for oy := range oh {
			for ox := range ow {
				best, at := math32.Inf(-1), -1
				for ky := range k {
					iy := oy*s - p + ky
					if iy < 0 || iy >= h {
						continue
					}
					for kx := range k {
						ix := ox*s - p + kx
						if ix < 0 || ix >= w {
							continue
						}

						v := x[iy*w+ix]
						if at < 0 || v > best || (cfg.LastMaxWins && v == best) {
							best, at = v, iy*w+ix
						}
					}
				}

				y[oy*ow+ox] = best
				id[oy*ow+ox] = int32(at)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	y, err := ml.FromFloats(ys, n, c, oh, ow)
	if err != nil {
		return nil, err
	}

	indices, err := ml.FromInts(idx, n, c, oh, ow)
	if err != nil {
		return nil, err
	}

	return fromNCHW(args.Order, y, indices)
}
