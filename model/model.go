// Package model - Modell-Registry und Modell-Beschreibung
//
// Hauptkomponenten:
// - Model: Vorwaerts-Graph, Init-Graph und Parameter-Namen
// - Register: Registriert Modell-Konstruktoren
// - New: Erstellt ein registriertes Modell

package model

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ollama/devcheck/ml"
)

var ErrUnsupportedModel = errors.New("model not supported")

// Config selects the layout and size of a model.
type Config struct {
	Order ml.Order

	// ImageSize is the square input size. Zero selects the model default.
	ImageSize int

	// Seed drives every parameter fill.
	Seed uint64
}

// Model is a forward graph together with the graph that initializes its
// parameters.
type Model struct {
	Name  string
	Order ml.Order

	Net     *ml.Graph
	InitNet *ml.Graph

	// Params names every tensor InitNet produces and Net reads.
	Params []string

	// Gradients names the backward outputs Net produces after the loss.
	Gradients []string

	// Ignore lists outputs whose values depend on how ties are broken and
	// must not be compared across devices.
	Ignore []string

	// Data and Label are the external inputs besides the parameters.
	Data, Label string

	imageSize, channels, classes int
}

func (m *Model) ImageSize() int { return m.imageSize }
func (m *Model) Channels() int  { return m.channels }
func (m *Model) Classes() int   { return m.classes }

// DataShape is the shape of a batch of images in the model's order.
func (m *Model) DataShape(batch int) []int {
	if m.Order == ml.NHWC {
		return []int{batch, m.imageSize, m.imageSize, m.channels}
	}
	return []int{batch, m.channels, m.imageSize, m.imageSize}
}

var (
	modelsMu sync.Mutex
	models   = make(map[string]func(Config) (*Model, error))
)

// Register makes a model constructor available by name.
func Register(name string, f func(Config) (*Model, error)) {
	modelsMu.Lock()
	defer modelsMu.Unlock()

	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// Models returns the registered model names, sorted.
func Models() []string {
	modelsMu.Lock()
	defer modelsMu.Unlock()

	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds a registered model.
func New(name string, c Config) (*Model, error) {
	modelsMu.Lock()
	f, ok := models[name]
	modelsMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}

	return f(c)
}
