package ml

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type OpType string

const (
	OpScale             OpType = "Scale"
	OpAdd               OpType = "Add"
	OpRelu              OpType = "Relu"
	OpConv              OpType = "Conv"
	OpLRN               OpType = "LRN"
	OpMaxPool           OpType = "MaxPool"
	OpFC                OpType = "FC"
	OpSoftmax           OpType = "Softmax"
	OpLabelCrossEntropy OpType = "LabelCrossEntropy"
	OpAveragedLoss      OpType = "AveragedLoss"

	OpReluGradient              OpType = "ReluGradient"
	OpFCGradient                OpType = "FCGradient"
	OpSoftmaxGradient           OpType = "SoftmaxGradient"
	OpLabelCrossEntropyGradient OpType = "LabelCrossEntropyGradient"
	OpAveragedLossGradient      OpType = "AveragedLossGradient"

	OpXavierFill   OpType = "XavierFill"
	OpConstantFill OpType = "ConstantFill"
	OpGaussianFill OpType = "GaussianFill"
	OpUniformFill  OpType = "UniformFill"
)

// Args holds the device independent parameters of an op. Each op type has
// its own Args implementation; ops without parameters leave Args nil.
type Args interface {
	opArgs()
}

type ScaleArgs struct {
	Scale float32
}

type ConvArgs struct {
	Kernel, Stride, Pad int

	// Group splits input and output channels into independent groups.
	// Zero is treated as one.
	Group int
	Order Order
}

type PoolArgs struct {
	Kernel, Stride, Pad int
	Order               Order
}

// LRNArgs configures cross-channel local response normalization:
// y = x * (Bias + Alpha/Size * sum(x^2))^-Beta over Size neighbouring channels.
type LRNArgs struct {
	Size              int
	Alpha, Beta, Bias float32
	Order             Order
}

// FillArgs configures the fill ops. Which fields apply depends on the op:
// ConstantFill uses Value, GaussianFill Mean and Std, UniformFill Min and
// Max, XavierFill Scale (zero derives it from the fan in).
type FillArgs struct {
	Shape []int

	Value     float32
	Mean, Std float32
	Min, Max  float32
	Scale     float32

	Seed uint64
}

func (ScaleArgs) opArgs() {}
func (ConvArgs) opArgs()  {}
func (PoolArgs) opArgs()  {}
func (LRNArgs) opArgs()   {}
func (FillArgs) opArgs()  {}

// Op is a single operation record.
type Op struct {
	Type    OpType
	Inputs  []string
	Outputs []string
	Args    Args
}

func (op Op) String() string {
	return fmt.Sprintf("%s(%s) -> %s", op.Type, strings.Join(op.Inputs, ", "), strings.Join(op.Outputs, ", "))
}

// Graph is an ordered sequence of ops. A graph carries no device
// information; the same graph is executed unchanged on every placement.
type Graph struct {
	Name string
	Ops  []Op
}

func NewGraph(name string) *Graph {
	return &Graph{Name: name}
}

// Add appends an op and returns its outputs.
func (g *Graph) Add(op Op) []string {
	g.Ops = append(g.Ops, op)
	return op.Outputs
}

// ExternalInputs returns the names read by some op before any op produced
// them, in first use order.
func (g *Graph) ExternalInputs() []string {
	produced := make(map[string]bool)
	seen := make(map[string]bool)

	var inputs []string
	for _, op := range g.Ops {
		for _, name := range op.Inputs {
			if !produced[name] && !seen[name] {
				seen[name] = true
				inputs = append(inputs, name)
			}
		}
		for _, name := range op.Outputs {
			produced[name] = true
		}
	}

	return inputs
}

// Outputs returns every name produced by the graph, in first production order.
func (g *Graph) Outputs() []string {
	seen := make(map[string]bool)

	var outputs []string
	for _, op := range g.Ops {
		for _, name := range op.Outputs {
			if !seen[name] {
				seen[name] = true
				outputs = append(outputs, name)
			}
		}
	}

	return outputs
}

// Validate checks that every op is well formed.
func (g *Graph) Validate() error {
	var errs []error
	for i, op := range g.Ops {
		if op.Type == "" {
			errs = append(errs, fmt.Errorf("op %d: missing type", i))
		}
		if len(op.Outputs) == 0 {
			errs = append(errs, fmt.Errorf("op %d (%s): no outputs", i, op.Type))
		}
		if slices.Contains(op.Inputs, "") || slices.Contains(op.Outputs, "") {
			errs = append(errs, fmt.Errorf("op %d (%s): empty tensor name", i, op.Type))
		}
	}

	return errors.Join(errs...)
}

// Clone returns a deep copy of the op list. Args are values and shared.
func (g *Graph) Clone() *Graph {
	c := &Graph{Name: g.Name, Ops: make([]Op, len(g.Ops))}
	for i, op := range g.Ops {
		c.Ops[i] = Op{
			Type:    op.Type,
			Inputs:  slices.Clone(op.Inputs),
			Outputs: slices.Clone(op.Outputs),
			Args:    op.Args,
		}
	}
	return c
}

func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph %s {\n", g.Name)
	for i, op := range g.Ops {
		fmt.Fprintf(&sb, "  %d: %s\n", i, op)
	}
	sb.WriteString("}")
	return sb.String()
}
