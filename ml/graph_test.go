package ml

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testGraph() *Graph {
	g := NewGraph("test")
	g.Add(Op{Type: OpScale, Inputs: []string{"x"}, Outputs: []string{"y"}, Args: ScaleArgs{Scale: 2}})
	g.Add(Op{Type: OpAdd, Inputs: []string{"y", "b"}, Outputs: []string{"z"}})
	g.Add(Op{Type: OpRelu, Inputs: []string{"z"}, Outputs: []string{"z"}})
	return g
}

func TestGraphInputsOutputs(t *testing.T) {
	g := testGraph()

	if diff := cmp.Diff([]string{"x", "b"}, g.ExternalInputs()); diff != "" {
		t.Errorf("inputs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"y", "z"}, g.Outputs()); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
}

func TestGraphValidate(t *testing.T) {
	if err := testGraph().Validate(); err != nil {
		t.Fatal(err)
	}

	g := NewGraph("bad")
	g.Add(Op{Inputs: []string{"x"}, Outputs: []string{"y"}})
	g.Add(Op{Type: OpRelu, Inputs: []string{"y"}})
	g.Add(Op{Type: OpRelu, Inputs: []string{""}, Outputs: []string{"z"}})
	if err := g.Validate(); err == nil {
		t.Error("expected validation error")
	}
}

func TestGraphClone(t *testing.T) {
	g := testGraph()
	c := g.Clone()
	c.Ops[0].Inputs[0] = "changed"
	c.Add(Op{Type: OpRelu, Inputs: []string{"z"}, Outputs: []string{"w"}})

	if g.Ops[0].Inputs[0] != "x" || len(g.Ops) != 3 {
		t.Error("clone shares state with the original graph")
	}
}
