// conv.go
// Dieses Modul enthaelt die Faltung: direkte Variante mit float64-Akkumulator
// und im2col + GEMM Variante fuer den Beschleuniger.

package kernels

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ollama/devcheck/ml"
)

type convShape struct {
	c, h, w    int // input channels and spatial size
	m, oh, ow  int // output channels and spatial size
	k, s, p, g int
}

func (cs convShape) inputSize() int  { return cs.c * cs.h * cs.w }
func (cs convShape) outputSize() int { return cs.m * cs.oh * cs.ow }

// conv is a 2D convolution with square kernels: X, W[, b] -> Y. NCHW weights
// are [M, C/G, K, K]; NHWC weights are [M, K, K, C/G].
func conv(ctx context.Context, cfg Config, op ml.Op, in []*ml.Tensor) ([]*ml.Tensor, error) {
	if err := arity(in, 2, 3); err != nil {
		return nil, err
	}

	args, err := argsOf[ml.ConvArgs](op)
	if err != nil {
		return nil, err
	}

	x, err := toNCHW(in[0], args.Order)
	if err != nil {
		return nil, err
	}

	w, err := toNCHW(in[1], args.Order)
	if err != nil {
		return nil, err
	}

	cs := convShape{
		c: x.Dim(1), h: x.Dim(2), w: x.Dim(3),
		m: w.Dim(0),
		k: w.Dim(2), s: max(args.Stride, 1), p: args.Pad, g: max(args.Group, 1),
	}

	switch {
	case args.Kernel > 0 && (w.Dim(2) != args.Kernel || w.Dim(3) != args.Kernel):
		return nil, fmt.Errorf("kernel %d does not match weights %v", args.Kernel, in[1].Shape())
	case w.Dim(2) != w.Dim(3):
		return nil, fmt.Errorf("non-square kernel %v", in[1].Shape())
	case cs.c%cs.g != 0 || cs.m%cs.g != 0:
		return nil, fmt.Errorf("channels %d -> %d not divisible by group %d", cs.c, cs.m, cs.g)
	case w.Dim(1) != cs.c/cs.g:
		return nil, fmt.Errorf("weights %v do not match %d input channels in %d groups", in[1].Shape(), cs.c, cs.g)
	case cs.p < 0:
		return nil, fmt.Errorf("negative padding %d", cs.p)
	}

	cs.oh = (cs.h+2*cs.p-cs.k)/cs.s + 1
	cs.ow = (cs.w+2*cs.p-cs.k)/cs.s + 1
	if cs.h+2*cs.p < cs.k || cs.w+2*cs.p < cs.k {
		return nil, fmt.Errorf("kernel %d larger than padded input %v", cs.k, in[0].Shape())
	}

	bias := make([]float32, cs.m)
	if len(in) == 3 {
		if in[2].Len() != cs.m {
			return nil, fmt.Errorf("bias %v does not match %d output channels", in[2].Shape(), cs.m)
		}
		bias = in[2].Floats()
	}

	n := x.Dim(0)
	xs, ws := x.Floats(), w.Floats()
	ys := make([]float32, n*cs.outputSize())

	if err := parallelFor(ctx, cfg.Threads, n, func(b int) error {
		x := xs[b*cs.inputSize() : (b+1)*cs.inputSize()]
		y := ys[b*cs.outputSize() : (b+1)*cs.outputSize()]
		if cfg.BLAS {
			convGEMM(cs, x, ws, bias, y)
		} else {
			convDirect(cs, x, ws, bias, y)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	y, err := ml.FromFloats(ys, n, cs.m, cs.oh, cs.ow)
	if err != nil {
		return nil, err
	}

	return fromNCHW(args.Order, y)
}

// convDirect accumulates every output element in float64.
func convDirect(cs convShape, x, w, bias, y []float32) {
	cg, mg := cs.c/cs.g, cs.m/cs.g
	for oc := range cs.m {
		group := oc / mg
		for oy := range cs.oh {
			for ox := range cs.ow {
				sum := float64(bias[oc])
				for ic := range cg {
					ci := group*cg + ic
					for ky := range cs.k {
						iy := oy*cs.s - cs.p + ky
						if iy < 0 || iy >= cs.h {
							continue
						}
						for kx := range cs.k {
							ix := ox*cs.s - cs.p + kx
							if ix < 0 || ix >= cs.w {
								continue
							}
							sum += float64(x[(ci*cs.h+iy)*cs.w+ix]) * float64(w[((oc*cg+ic)*cs.k+ky)*cs.k+kx])
						}
					}
				}
				y[(oc*cs.oh+oy)*cs.ow+ox] = float32(sum)
			}
		}
	}
}

// convGEMM lowers each group to a float32 matrix product of the weights with
// the im2col expansion of the input.
func convGEMM(cs convShape, x, w, bias, y []float32) {
	cg, mg := cs.c/cs.g, cs.m/cs.g
	rows, cols := cg*cs.k*cs.k, cs.oh*cs.ow
	col := make([]float32, rows*cols)

	for group := range cs.g {
		im2col(cs, x[group*cg*cs.h*cs.w:], cg, col)

		out := y[group*mg*cols : (group+1)*mg*cols]
		for oc := range mg {
			b := bias[group*mg+oc]
			for i := range cols {
				out[oc*cols+i] = b
			}
		}

		if mg == 0 || rows == 0 || cols == 0 {
			continue
		}

		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas32.General{Rows: mg, Cols: rows, Stride: rows, Data: w[group*mg*rows : (group+1)*mg*rows]},
			blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: col},
			1,
			blas32.General{Rows: mg, Cols: cols, Stride: cols, Data: out},
		)
	}
}

// im2col writes the [channels*K*K, OH*OW] patch matrix of x into col.
// Padding positions are zero.
func im2col(cs convShape, x []float32, channels int, col []float32) {
	cols := cs.oh * cs.ow
	for c := range channels {
		for ky := range cs.k {
			for kx := range cs.k {
				row := (c*cs.k+ky)*cs.k + kx
				for oy := range cs.oh {
					iy := oy*cs.s - cs.p + ky
					for ox := range cs.ow {
						ix := ox*cs.s - cs.p + kx
						v := float32(0)
						if iy >= 0 && iy < cs.h && ix >= 0 && ix < cs.w {
							v = x[(c*cs.h+iy)*cs.w+ix]
						}
						col[row*cols+oy*cs.ow+ox] = v
					}
				}
			}
		}
	}
}
