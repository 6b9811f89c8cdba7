package model

import (
	"fmt"
	"slices"

	"github.com/ollama/devcheck/ml"
)

// gradientName is the name of the gradient of the tensor named name.
func gradientName(name string) string {
	return name + "_grad"
}

// gradientOp returns the op computing the input gradients of op from the
// gradient dy of its first output, and the forward inputs those gradients
// belong to. ok is false for op types without a gradient.
func gradientOp(op ml.Op, dy string) (grad ml.Op, of []string, ok bool) {
	if len(op.Inputs) == 0 {
		return ml.Op{}, nil, false
	}

	x := op.Inputs[0]
	switch op.Type {
	case ml.OpRelu:
		return ml.Op{Type: ml.OpReluGradient, Inputs: []string{op.Outputs[0], dy}, Outputs: []string{gradientName(x)}}, []string{x}, true
	case ml.OpSoftmax:
		return ml.Op{Type: ml.OpSoftmaxGradient, Inputs: []string{op.Outputs[0], dy}, Outputs: []string{gradientName(x)}}, []string{x}, true
	case ml.OpLabelCrossEntropy:
		if len(op.Inputs) != 2 {
			return ml.Op{}, nil, false
		}
		return ml.Op{Type: ml.OpLabelCrossEntropyGradient, Inputs: []string{x, op.Inputs[1], dy}, Outputs: []string{gradientName(x)}}, []string{x}, true
	case ml.OpAveragedLoss:
		return ml.Op{Type: ml.OpAveragedLossGradient, Inputs: []string{x, dy}, Outputs: []string{gradientName(x)}}, []string{x}, true
	case ml.OpFC:
		if len(op.Inputs) != 3 {
			return ml.Op{}, nil, false
		}
		w, b := op.Inputs[1], op.Inputs[2]
		return ml.Op{
			Type:    ml.OpFCGradient,
			Inputs:  []string{x, w, dy},
			Outputs: []string{gradientName(w), gradientName(b), gradientName(x)},
		}, []string{w, b, x}, true
	default:
		return ml.Op{}, nil, false
	}
}

// AddGradientOperators appends the backward pass of loss to the forward
// graph, seeded with a gradient of one. Ops are differentiated in reverse
// until the first op type without a gradient kernel; layers before it get
// no gradients. It returns the gradient names in creation order.
func (h *Helper) AddGradientOperators(loss string) []string {
	if h.err != nil {
		return nil
	}

	forward := slices.Clone(h.net.Ops)
	if !slices.ContainsFunc(forward, func(op ml.Op) bool { return slices.Contains(op.Outputs, loss) }) {
		h.fail(fmt.Errorf("gradient: %q is not produced by %s", loss, h.net.Name))
		return nil
	}

	grads := map[string]string{loss: gradientName(loss)}
	h.net.Add(ml.Op{Type: ml.OpConstantFill, Outputs: []string{grads[loss]}, Args: ml.FillArgs{Value: 1}})
	names := []string{grads[loss]}

	for i := len(forward) - 1; i >= 0; i-- {
		op := forward[i]
		dy, ok := grads[op.Outputs[0]]
		if !ok {
			continue
		}

		grad, of, ok := gradientOp(op, dy)
		if !ok {
			break
		}

		for j, name := range of {
			if _, ok := grads[name]; ok {
				h.fail(fmt.Errorf("gradient: %q is consumed more than once", name))
				return nil
			}
			grads[name] = grad.Outputs[j]
		}

		h.net.Add(grad)
		names = append(names, grad.Outputs...)
	}

	h.grads = append(h.grads, names...)
	return names
}

// Gradients lists every gradient added by AddGradientOperators.
func (h *Helper) Gradients() []string {
	return slices.Clone(h.grads)
}
