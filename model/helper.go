// helper.go - Graph-Builder fuer CNN-Modelle
// Enthält: Helper mit Conv, GroupConv, Relu, LRN, MaxPool, FC, Softmax und Loss-Ops.
// Jede parametrisierte Schicht legt Fill-Ops im Init-Graph an.

package model

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ollama/devcheck/ml"
)

// Helper appends layers to a forward graph and the fill ops of their
// parameters to an initialization graph. Errors are sticky: after the first
// invalid layer every further call is a no-op and Err reports the failure.
type Helper struct {
	order ml.Order
	seed  uint64

	net, init *ml.Graph
	params    []string
	poolIdx   []string
	grads     []string

	err error
}

func NewHelper(name string, order ml.Order, seed uint64) *Helper {
	return &Helper{
		order: order,
		seed:  seed,
		net:   ml.NewGraph(name),
		init:  ml.NewGraph(name + "_init"),
	}
}

type convOptions struct {
	stride, pad, group int
}

type ConvOption func(*convOptions)

func Stride(n int) ConvOption {
	return func(o *convOptions) { o.stride = n }
}

func Pad(n int) ConvOption {
	return func(o *convOptions) { o.pad = n }
}

func Group(n int) ConvOption {
	return func(o *convOptions) { o.group = n }
}

func (h *Helper) fail(err error) {
	if h.err == nil {
		h.err = err
	}
}

// param adds a fill op for a parameter named output_suffix.
func (h *Helper) param(output, suffix string, shape []int, init Initializer) string {
	name := output + "_" + suffix
	if h.err != nil {
		return name
	}

	op, err := init.op(name, shape, h.seed)
	if err != nil {
		h.fail(fmt.Errorf("%s: %w", output, err))
		return name
	}

	h.init.Add(op)
	h.params = append(h.params, name)
	return name
}

// Conv adds a square convolution from dimIn to dimOut channels with weights
// output_w and bias output_b.
func (h *Helper) Conv(input, output string, dimIn, dimOut, kernel int, weightInit, biasInit Initializer, opts ...ConvOption) string {
	if h.err != nil {
		return output
	}

	o := convOptions{stride: 1, group: 1}
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case dimIn < 1 || dimOut < 1 || kernel < 1 || o.stride < 1 || o.pad < 0 || o.group < 1:
		h.fail(fmt.Errorf("%s: invalid convolution %d -> %d kernel %d stride %d pad %d group %d", output, dimIn, dimOut, kernel, o.stride, o.pad, o.group))
		return output
	case dimIn%o.group != 0 || dimOut%o.group != 0:
		h.fail(fmt.Errorf("%s: channels %d -> %d not divisible by group %d", output, dimIn, dimOut, o.group))
		return output
	}

	shape := []int{dimOut, dimIn / o.group, kernel, kernel}
	if h.order == ml.NHWC {
		shape = []int{dimOut, kernel, kernel, dimIn / o.group}
	}

	w := h.param(output, "w", shape, weightInit)
	b := h.param(output, "b", []int{dimOut}, biasInit)

	return h.add(ml.Op{
		Type:    ml.OpConv,
		Inputs:  []string{input, w, b},
		Outputs: []string{output},
		Args:    ml.ConvArgs{Kernel: kernel, Stride: o.stride, Pad: o.pad, Group: o.group, Order: h.order},
	})
}

// GroupConv is Conv split into group independent channel groups.
func (h *Helper) GroupConv(input, output string, dimIn, dimOut, kernel, group int, weightInit, biasInit Initializer, opts ...ConvOption) string {
	return h.Conv(input, output, dimIn, dimOut, kernel, weightInit, biasInit, append(opts, Group(group))...)
}

func (h *Helper) Relu(input, output string) string {
	return h.add(ml.Op{Type: ml.OpRelu, Inputs: []string{input}, Outputs: []string{output}})
}

// LRN adds cross-channel normalization. The auxiliary scale output is named
// _output_scale.
func (h *Helper) LRN(input, output string, size int, alpha, beta float32) string {
	if size < 1 {
		h.fail(fmt.Errorf("%s: invalid LRN size %d", output, size))
	}

	return h.add(ml.Op{
		Type:    ml.OpLRN,
		Inputs:  []string{input},
		Outputs: []string{output, "_" + output + "_scale"},
		Args:    ml.LRNArgs{Size: size, Alpha: alpha, Beta: beta, Bias: 1, Order: h.order},
	})
}

// MaxPool adds max pooling. The argmax output is named _output_idx; it
// depends on how ties are broken and is listed by PoolIndexNames.
func (h *Helper) MaxPool(input, output string, kernel, stride int) string {
	if kernel < 1 || stride < 1 {
		h.fail(fmt.Errorf("%s: invalid pooling kernel %d stride %d", output, kernel, stride))
	}

	idx := "_" + output + "_idx"
	if h.err == nil {
		h.poolIdx = append(h.poolIdx, idx)
	}

	return h.add(ml.Op{
		Type:    ml.OpMaxPool,
		Inputs:  []string{input},
		Outputs: []string{output, idx},
		Args:    ml.PoolArgs{Kernel: kernel, Stride: stride, Order: h.order},
	})
}

// FC adds a fully connected layer with weights [dimOut, dimIn].
func (h *Helper) FC(input, output string, dimIn, dimOut int, weightInit, biasInit Initializer) string {
	if h.err != nil {
		return output
	}

	if dimIn < 1 || dimOut < 1 {
		h.fail(fmt.Errorf("%s: invalid fully connected layer %d -> %d", output, dimIn, dimOut))
		return output
	}

	w := h.param(output, "w", []int{dimOut, dimIn}, weightInit)
	b := h.param(output, "b", []int{dimOut}, biasInit)
	return h.add(ml.Op{Type: ml.OpFC, Inputs: []string{input, w, b}, Outputs: []string{output}})
}

func (h *Helper) Softmax(input, output string) string {
	return h.add(ml.Op{Type: ml.OpSoftmax, Inputs: []string{input}, Outputs: []string{output}})
}

func (h *Helper) LabelCrossEntropy(pred, label, output string) string {
	return h.add(ml.Op{Type: ml.OpLabelCrossEntropy, Inputs: []string{pred, label}, Outputs: []string{output}})
}

func (h *Helper) AveragedLoss(input, output string) string {
	return h.add(ml.Op{Type: ml.OpAveragedLoss, Inputs: []string{input}, Outputs: []string{output}})
}

func (h *Helper) add(op ml.Op) string {
	if h.err == nil {
		h.net.Add(op)
	}
	return op.Outputs[0]
}

// Err returns the first error encountered while building, joined with any
// structural problem of the graphs.
func (h *Helper) Err() error {
	if h.err != nil {
		return h.err
	}
	return errors.Join(h.net.Validate(), h.init.Validate())
}

// Net returns the forward graph followed by any backward ops.
func (h *Helper) Net() *ml.Graph {
	return h.net
}

// InitNet returns the graph producing every parameter.
func (h *Helper) InitNet() *ml.Graph {
	return h.init
}

// Params names the parameters in creation order, as produced by InitNet.
func (h *Helper) Params() []string {
	return slices.Clone(h.params)
}

// PoolIndexNames lists the argmax outputs of every MaxPool layer.
func (h *Helper) PoolIndexNames() []string {
	return slices.Clone(h.poolIdx)
}
