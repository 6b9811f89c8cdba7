// lrn.go
// Dieses Modul enthaelt Local Response Normalization ueber Kanaele.

package kernels

import (
	"context"
	"fmt"
	"math"

	"github.com/chewxy/math32"

	"github.com/ollama/devcheck/ml"
)

// lrn normalizes across channels: X -> Y, Scale with
// scale = bias + alpha/size * sum(x^2) over the channel window
// [c-(size-1)/2, c+size/2] and y = x * scale^-beta.
func lrn(ctx context.Context, cfg Config, op ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 1, 1); err != nil {
		return nil, err
	}

	args, err := argsOf[ml.LRNArgs](op)
	if err != nil {
		return nil, err
	}

	if args.Size < 1 {
		return nil, fmt.Errorf("invalid size %d", args.Size)
	}

	x, err := toNCHW(in[0], args.Order)
	if err != nil {
		return nil, err
	}

	n, c, plane := x.Dim(0), x.Dim(1), x.Dim(2)*x.Dim(3)
	xs := x.Floats()
	ys := make([]float32, len(xs))
	scales := make([]float32, len(xs))

	if err := parallelFor(ctx, cfg.Threads, n, func(b int) error {
		off := b * c * plane
		x, y, sc := xs[off:off+c*plane], ys[off:off+c*plane], scales[off:off+c*plane]
		if cfg.BLAS {
			lrnSliding(args, c, plane, x, y, sc)
		} else {
			lrnDirect(args, c, plane, x, y, sc)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	y, err := ml.FromFloats(ys, x.Shape()...)
	if err != nil {
		return nil, err
	}

	scale, err := ml.FromFloats(scales, x.Shape()...)
	if err != nil {
		return nil, err
	}

	return fromNCHW(args.Order, y, scale)
}

func lrnDirect(args ml.LRNArgs, c, plane int, x, y, scale []float32) {
	pre := (args.Size - 1) / 2
	alpha := float64(args.Alpha) / float64(args.Size)
	for ch := range c {
		lo, hi := max(ch-pre, 0), min(ch-pre+args.Size, c)
		for i := range plane {
			var sum float64
			for j := lo; j < hi; j++ {
				v := float64(x[j*plane+i])
				sum += v * v
			}

			s := float64(args.Bias) + alpha*sum
			scale[ch*plane+i] = float32(s)
			y[ch*plane+i] = float32(float64(x[ch*plane+i]) * math.Pow(s, -float64(args.Beta)))
		}
	}
}

// lrnSliding keeps a float32 running sum of squares while the window moves
// across channels.
func lrnSliding(args ml.LRNArgs, c, plane int, x, y, scale []float32) {
	pre := (args.Size - 1) / 2
	alpha := args.Alpha / float32(args.Size)
	for i := range plane {
		var sum float32
		for j := range min(args.Size-pre-1, c) {
			v := x[j*plane+i]
			sum += v * v
		}

		for ch := range c {
			if head := ch - pre + args.Size - 1; head < c {
				v := x[head*plane+i]
				sum += v * v
			}
			if tail := ch - pre - 1; tail >= 0 {
				v := x[tail*plane+i]
				sum -= v * v
			}

			s := args.Bias + alpha*sum
			scale[ch*plane+i] = s
			y[ch*plane+i] = x[ch*plane+i] * math32.Pow(s, -args.Beta)
		}
	}
}
