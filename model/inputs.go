// inputs.go
// Dieses Modul erzeugt Eingabedaten, Labels und die initialisierten
// Parameter fuer einen Modell-Lauf.

package model

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/ollama/devcheck/ml"
)

// RandomData returns a batch of images with values uniform in [0, 1).
func (m *Model) RandomData(batch int, seed uint64) (*ml.Tensor, error) {
	if batch < 1 {
		return nil, fmt.Errorf("invalid batch size %d", batch)
	}

	shape := m.DataShape(batch)
	rng := rand.New(rand.NewPCG(seed, 0))

	s := make([]float32, batch*m.channels*m.imageSize*m.imageSize)
	for i := range s {
		s[i] = rng.Float32()
	}

	return ml.FromFloats(s, shape...)
}

// Labels returns the classes 1, 2, ... for a batch, wrapping at the number
// of classes.
func (m *Model) Labels(batch int) (*ml.Tensor, error) {
	labels := make([]int32, batch)
	for i := range labels {
		labels[i] = int32((i + 1) % m.classes)
	}
	return ml.FromInts(labels, batch)
}

// Inputs runs InitNet on placement p of execCtx and returns every parameter
// together with a random data batch and its labels. The workspace of execCtx
// is reset first, so repeated calls start from the same state.
func (m *Model) Inputs(ctx context.Context, execCtx *ml.Context, p ml.Placement, batch int, seed uint64) (*ml.Store, error) {
	if err := execCtx.Reset(); err != nil {
		return nil, err
	}

	if err := execCtx.RunOnce(ctx, m.InitNet, p); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", m.Name, err)
	}

	inputs, err := execCtx.FetchAll(m.Params...)
	if err != nil {
		return nil, err
	}

	data, err := m.RandomData(batch, seed)
	if err != nil {
		return nil, err
	}

	labels, err := m.Labels(batch)
	if err != nil {
		return nil, err
	}

	inputs.Put(m.Data, data)
	inputs.Put(m.Label, labels)
	return inputs, nil
}
