package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/devcheck/ml"
)

func TestAddGradientOperators(t *testing.T) {
	h := NewHelper("test", ml.NCHW, 1)
	fc1 := h.FC("data", "fc1", 4, 8, xavier, zero)
	relu := h.Relu(fc1, "relu")
	fc2 := h.FC(relu, "fc2", 8, 3, xavier, zero)
	pred := h.Softmax(fc2, "pred")
	xent := h.LabelCrossEntropy(pred, "label", "xent")
	loss := h.AveragedLoss(xent, "loss")

	forward := len(h.Net().Ops)
	names := h.AddGradientOperators(loss)
	require.NoError(t, h.Err())

	want := []string{
		"loss_grad", "xent_grad", "pred_grad", "fc2_grad",
		"fc2_w_grad", "fc2_b_grad", "relu_grad",
		"fc1_grad", "fc1_w_grad", "fc1_b_grad", "data_grad",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("gradients (-want +got):\n%s", diff)
	}
	assert.Equal(t, names, h.Gradients())

	var types []ml.OpType
	for _, op := range h.Net().Ops[forward:] {
		types = append(types, op.Type)
	}
	assert.Equal(t, []ml.OpType{
		ml.OpConstantFill,
		ml.OpAveragedLossGradient,
		ml.OpLabelCrossEntropyGradient,
		ml.OpSoftmaxGradient,
		ml.OpFCGradient,
		ml.OpReluGradient,
		ml.OpFCGradient,
	}, types)

	seed := h.Net().Ops[forward]
	assert.Equal(t, ml.FillArgs{Value: 1}, seed.Args)

	fc := h.Net().Ops[forward+4]
	assert.Equal(t, []string{"relu", "fc2_w", "fc2_grad"}, fc.Inputs)
	assert.Equal(t, []string{"fc2_w_grad", "fc2_b_grad", "relu_grad"}, fc.Outputs)

	// Labels are not differentiated.
	assert.NotContains(t, names, "label_grad")
}

func TestAddGradientOperatorsStopsAtPool(t *testing.T) {
	h := NewHelper("test", ml.NCHW, 1)
	relu := h.Relu("data", "relu")
	pool := h.MaxPool(relu, "pool", 2, 2)
	fc := h.FC(pool, "fc", 4, 2, xavier, zero)
	loss := h.AveragedLoss(fc, "loss")

	names := h.AddGradientOperators(loss)
	require.NoError(t, h.Err())

	assert.Equal(t, []string{"loss_grad", "fc_grad", "fc_w_grad", "fc_b_grad", "pool_grad"}, names)
	assert.NotContains(t, h.Net().Outputs(), "relu_grad")
	assert.NotContains(t, h.Net().Outputs(), "data_grad")
}

func TestAddGradientOperatorsErrors(t *testing.T) {
	t.Run("unknown loss", func(t *testing.T) {
		h := NewHelper("test", ml.NCHW, 1)
		h.AveragedLoss(h.Relu("data", "relu"), "loss")

		assert.Nil(t, h.AddGradientOperators("missing"))
		assert.ErrorContains(t, h.Err(), `"missing" is not produced`)
		assert.Empty(t, h.Gradients())
	})

	t.Run("fan out", func(t *testing.T) {
		h := NewHelper("test", ml.NCHW, 1)
		relu := h.Relu("data", "relu")
		fc := h.FC(relu, "fc", 4, 4, xavier, zero)
		h.add(ml.Op{Type: ml.OpFC, Inputs: []string{fc, "fc_w", "fc_b"}, Outputs: []string{"out"}})
		h.add(ml.Op{Type: ml.OpRelu, Inputs: []string{relu}, Outputs: []string{"out"}})

		assert.Nil(t, h.AddGradientOperators("out"))
		assert.ErrorContains(t, h.Err(), "consumed more than once")
	})

	t.Run("sticky", func(t *testing.T) {
		h := NewHelper("test", ml.NCHW, 1)
		h.FC("data", "fc", 0, 4, xavier, zero)

		assert.Nil(t, h.AddGradientOperators("fc"))
		assert.Empty(t, h.Gradients())
	})
}
