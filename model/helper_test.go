package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ollama/devcheck/ml"
)

var (
	xavier = MustInitializer(Xavier(XavierOptions{}))
	zero   = MustInitializer(Constant(ConstantOptions{}))
)

func TestHelperConvShapes(t *testing.T) {
	cases := []struct {
		order ml.Order
		want  []int
	}{
		{ml.NCHW, []int{8, 2, 3, 3}},
		{ml.NHWC, []int{8, 3, 3, 2}},
	}

	for _, c := range cases {
		t.Run(c.order.String(), func(t *testing.T) {
			h := NewHelper("test", c.order, 1)
			out := h.GroupConv("data", "conv", 4, 8, 3, 2, xavier, zero, Pad(1))
			if err := h.Err(); err != nil {
				t.Fatal(err)
			}

			if out != "conv" {
				t.Errorf("unexpected output %q", out)
			}

			if diff := cmp.Diff([]string{"conv_w", "conv_b"}, h.Params()); diff != "" {
				t.Errorf("params (-want +got):\n%s", diff)
			}

			w := h.InitNet().Ops[0]
			if diff := cmp.Diff(c.want, w.Args.(ml.FillArgs).Shape); diff != "" {
				t.Errorf("weight shape (-want +got):\n%s", diff)
			}

			conv := h.Net().Ops[0]
			want := ml.ConvArgs{Kernel: 3, Stride: 1, Pad: 1, Group: 2, Order: c.order}
			if conv.Args != want {
				t.Errorf("expected %+v, got %+v", want, conv.Args)
			}
		})
	}
}

func TestHelperAuxiliaryOutputs(t *testing.T) {
	h := NewHelper("test", ml.NCHW, 1)
	h.LRN(h.Relu("x", "relu"), "norm", 5, 1e-4, 0.75)
	h.MaxPool("norm", "pool", 3, 2)
	if err := h.Err(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{"relu", "norm", "_norm_scale", "pool", "_pool_idx"}, h.Net().Outputs()); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"_pool_idx"}, h.PoolIndexNames()); diff != "" {
		t.Errorf("pool indices (-want +got):\n%s", diff)
	}
}

func TestHelperStickyError(t *testing.T) {
	h := NewHelper("test", ml.NCHW, 1)
	h.Conv("data", "conv1", 3, 8, 3, xavier, zero, Group(2))
	h.FC("conv1", "fc", 10, 10, xavier, zero)
	h.Relu("fc", "relu")

	if h.Err() == nil {
		t.Fatal("expected error")
	}

	if len(h.Net().Ops) != 0 || len(h.InitNet().Ops) != 0 || len(h.Params()) != 0 {
		t.Error("nothing should be added after an error")
	}
}

func TestHelperInvalidInitializer(t *testing.T) {
	h := NewHelper("test", ml.NCHW, 1)
	h.FC("x", "fc", 2, 2, Initializer{}, zero)
	if h.Err() == nil {
		t.Fatal("expected error")
	}
}
