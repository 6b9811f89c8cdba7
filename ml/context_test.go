package ml

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaleBackend multiplies every Scale op input by its scale factor.
type scaleBackend struct {
	typ    DeviceType
	closed int
}

func (b *scaleBackend) Name() string           { return "scale-" + b.typ.String() }
func (b *scaleBackend) DeviceType() DeviceType { return b.typ }
func (b *scaleBackend) Supports(op OpType) bool {
	return op == OpScale
}

func (b *scaleBackend) Devices() []DeviceInfo {
	return []DeviceInfo{{Placement: Placement{Type: b.typ}, Library: b.Name()}}
}

func (b *scaleBackend) Execute(ctx context.Context, g *Graph, device int, inputs *Store) (*Store, error) {
	if device != 0 {
		return nil, ErrNoDevice
	}

	ws := inputs.Clone()
	out := NewStore()
	for i, op := range g.Ops {
		if op.Type != OpScale {
			return nil, &ExecutionError{Op: i, OpType: op.Type, Err: ErrUnsupportedOp}
		}

		x, err := ws.Get(op.Inputs[0])
		if err != nil {
			return nil, &ExecutionError{Op: i, OpType: op.Type, Err: err}
		}

		s := x.Floats()
		for j := range s {
			s[j] *= op.Args.(ScaleArgs).Scale
		}

		y, err := FromFloats(s, x.Shape()...)
		if err != nil {
			return nil, err
		}
		ws.Put(op.Outputs[0], y)
		out.Put(op.Outputs[0], y)
	}
	return out, nil
}

func (b *scaleBackend) Close() { b.closed++ }

func scaleGraph(in, out string) *Graph {
	g := NewGraph("scale")
	g.Add(Op{Type: OpScale, Inputs: []string{in}, Outputs: []string{out}, Args: ScaleArgs{Scale: 2}})
	return g
}

func TestContextRun(t *testing.T) {
	c, err := NewContext(WithoutRegistry(), WithBackend(&scaleBackend{typ: DeviceCPU}))
	require.NoError(t, err)
	defer c.Close()

	inputs := NewStore()
	inputs.Put("x", mustFloats(t, []float32{1, 2, 3}, 3))

	out, err := c.Run(t.Context(), scaleGraph("x", "y"), CPU, inputs)
	require.NoError(t, err)

	y, err := out.Get("y")
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4, 6}, y.Floats())
	assert.False(t, inputs.Has("y"), "inputs must not be modified")
	assert.Equal(t, []string{"y"}, out.Names())
}

func TestContextRunErrors(t *testing.T) {
	c, err := NewContext(WithoutRegistry(), WithBackend(&scaleBackend{typ: DeviceCPU}))
	require.NoError(t, err)
	defer c.Close()

	t.Run("no device", func(t *testing.T) {
		_, err := c.Run(t.Context(), scaleGraph("x", "y"), Accel, NewStore())
		assert.ErrorIs(t, err, ErrExecution)
		assert.ErrorIs(t, err, ErrNoDevice)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := c.Run(t.Context(), scaleGraph("x", "y"), CPU, NewStore())
		assert.ErrorIs(t, err, ErrExecution)
		assert.ErrorIs(t, err, ErrNotFound)

		var execErr *ExecutionError
		require.True(t, errors.As(err, &execErr))
		assert.Equal(t, CPU, execErr.Placement)
		assert.Equal(t, 0, execErr.Op)
	})

	t.Run("bad index", func(t *testing.T) {
		_, err := c.Run(t.Context(), scaleGraph("x", "y"), Placement{Type: DeviceCPU, Index: 1}, NewStore())
		var execErr *ExecutionError
		require.True(t, errors.As(err, &execErr))
		assert.Equal(t, -1, execErr.Op)
		assert.Equal(t, 1, execErr.Placement.Index)
	})
}

func TestContextWorkspace(t *testing.T) {
	c, err := NewContext(WithoutRegistry(), WithBackend(&scaleBackend{typ: DeviceCPU}))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Feed("x", mustFloats(t, []float32{1}, 1)))
	require.NoError(t, c.RunOnce(t.Context(), scaleGraph("x", "y"), CPU))
	require.NoError(t, c.RunOnce(t.Context(), scaleGraph("y", "z"), CPU))

	z, err := c.Fetch("z")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, z.Floats())

	s, err := c.FetchAll("x", "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, s.Names())

	require.NoError(t, c.Reset())
	_, err = c.Fetch("x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContextIsolation(t *testing.T) {
	a, err := NewContext(WithoutRegistry(), WithBackend(&scaleBackend{typ: DeviceCPU}))
	require.NoError(t, err)
	defer a.Close()

	b, err := NewContext(WithoutRegistry(), WithBackend(&scaleBackend{typ: DeviceCPU}))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Feed("x", mustFloats(t, []float32{1}, 1)))
	_, err = b.Fetch("x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestContextClose(t *testing.T) {
	cpu := &scaleBackend{typ: DeviceCPU}
	c, err := NewContext(WithoutRegistry(), WithBackend(cpu))
	require.NoError(t, err)

	assert.True(t, c.Capabilities().Has(DeviceCPU))
	assert.False(t, c.Capabilities().Has(DeviceAccelerator))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, cpu.closed)

	_, err = c.Run(t.Context(), scaleGraph("x", "y"), CPU, NewStore())
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.ErrorIs(t, c.Feed("x", mustFloats(t, []float32{1}, 1)), ErrContextClosed)
	assert.ErrorIs(t, c.Reset(), ErrContextClosed)
	assert.Empty(t, c.Capabilities().Placements())
}

func TestContextOverride(t *testing.T) {
	first := &scaleBackend{typ: DeviceCPU}
	second := &scaleBackend{typ: DeviceCPU}
	c, err := NewContext(WithoutRegistry(), WithBackend(first), WithBackend(second))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, second.closed)
}
