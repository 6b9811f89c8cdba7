package model_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/devcheck/checker"
	"github.com/ollama/devcheck/ml"
	"github.com/ollama/devcheck/ml/backend/accel"
	"github.com/ollama/devcheck/ml/backend/cpu"
	"github.com/ollama/devcheck/model"
)

func TestMiniAlexNetStructure(t *testing.T) {
	m, err := model.New("mini_alexnet", model.Config{Order: ml.NCHW, Seed: 1})
	require.NoError(t, err)

	assert.Equal(t, 227, m.ImageSize())
	assert.Equal(t, []int{4, 3, 227, 227}, m.DataShape(4))
	assert.Equal(t, []string{"_pool1_idx", "_pool2_idx", "_pool5_idx"}, m.Ignore)
	assert.Len(t, m.Params, 16)
	assert.Equal(t, m.Params, m.InitNet.Outputs())
	assert.ElementsMatch(t, append([]string{"data", "label"}, m.Params...), m.Net.ExternalInputs())

	outputs := m.Net.Outputs()
	assert.Contains(t, outputs, "loss")
	assert.Contains(t, outputs, "_norm1_scale")
	assert.Equal(t, "pool5_grad", outputs[len(outputs)-1])
	assert.Subset(t, outputs, m.Gradients)
	assert.Equal(t, []string{
		"loss_grad", "xent_grad", "pred_grad", "fc8_grad",
		"fc8_w_grad", "fc8_b_grad", "relu7_grad",
		"fc7_grad", "fc7_w_grad", "fc7_b_grad", "relu6_grad",
		"fc6_grad", "fc6_w_grad", "fc6_b_grad", "pool5_grad",
	}, m.Gradients)

	fc6 := m.InitNet.Ops[indexOf(t, m.Params, "fc6_w")]
	assert.Equal(t, []int{1024, 1152}, fc6.Args.(ml.FillArgs).Shape)

	nhwc, err := model.MiniAlexNet(model.Config{Order: ml.NHWC})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 227, 227, 3}, nhwc.DataShape(2))
}

func indexOf(t *testing.T, names []string, name string) int {
	t.Helper()
	for i, n := range names {
		if n == name {
			return i
		}
	}
	t.Fatalf("%q not found", name)
	return -1
}

func TestMiniAlexNetImageSize(t *testing.T) {
	_, err := model.MiniAlexNet(model.Config{ImageSize: 40})
	assert.Error(t, err)

	m, err := model.MiniAlexNet(model.Config{ImageSize: 99})
	require.NoError(t, err)
	assert.Equal(t, 99, m.ImageSize())
}

func TestNewUnsupported(t *testing.T) {
	_, err := model.New("resnet", model.Config{})
	assert.ErrorIs(t, err, model.ErrUnsupportedModel)
	assert.Contains(t, model.Models(), "mini_alexnet")
}

func TestInputs(t *testing.T) {
	m, err := model.MiniAlexNet(model.Config{ImageSize: 99, Seed: 3})
	require.NoError(t, err)

	execCtx := newContext(t)
	a, err := m.Inputs(t.Context(), execCtx, ml.CPU, 4, 5)
	require.NoError(t, err)
	b, err := m.Inputs(t.Context(), execCtx, ml.CPU, 4, 5)
	require.NoError(t, err)

	assert.Equal(t, a.Names(), b.Names())
	for _, name := range a.Names() {
		x, err := a.Get(name)
		require.NoError(t, err)
		y, err := b.Get(name)
		require.NoError(t, err)
		assert.Equal(t, x.Floats(), y.Floats(), name)
	}

	label, err := a.Get("label")
	require.NoError(t, err)
	assert.Equal(t, ml.DTypeI32, label.DType())
	assert.Equal(t, []int32{1, 2, 3, 4}, label.Ints())

	data, err := a.Get("data")
	require.NoError(t, err)
	for _, v := range data.Floats() {
		if v < 0 || v >= 1 {
			t.Fatalf("data value %v outside [0, 1)", v)
		}
	}
}

func newContext(t *testing.T) *ml.Context {
	t.Helper()

	cpuBackend, err := cpu.New(ml.BackendParams{})
	require.NoError(t, err)

	accelBackend, err := accel.New(ml.BackendParams{Accelerators: 1, Threads: 4})
	require.NoError(t, err)

	c, err := ml.NewContext(ml.WithoutRegistry(), ml.WithBackend(cpuBackend), ml.WithBackend(accelBackend))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMiniAlexNetDevices(t *testing.T) {
	size, batch := 99, 2
	if !testing.Short() {
		size, batch = 227, 4
	}

	for _, order := range []ml.Order{ml.NCHW, ml.NHWC} {
		t.Run(fmt.Sprintf("%s/%d", order, size), func(t *testing.T) {
			execCtx := newContext(t)
			if !execCtx.Capabilities().Supports(ml.Accel) {
				t.Skip("no accelerator")
			}

			m, err := model.MiniAlexNet(model.Config{Order: order, ImageSize: size, Seed: 1701})
			require.NoError(t, err)

			inputs, err := m.Inputs(t.Context(), execCtx, ml.CPU, batch, 42)
			require.NoError(t, err)

			c, err := checker.NewDeviceChecker(0.05, []ml.Placement{ml.CPU, ml.Accel})
			require.NoError(t, err)

			ok, report, err := c.CheckGraph(t.Context(), execCtx, m.Net, inputs, m.Ignore)
			require.NoError(t, err)
			assert.True(t, ok, report.Summary())
			assert.Empty(t, report.Warnings)
			assert.Equal(t, m.Ignore, report.Ignored)
			assert.Contains(t, report.Compared, "loss")
			assert.Contains(t, report.Compared, "fc6_w_grad")
			assert.Contains(t, report.Compared, "pool5_grad")
		})
	}
}
