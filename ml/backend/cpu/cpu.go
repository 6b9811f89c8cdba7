// cpu.go - Referenz-Backend fuer die CPU
// Enthält: sequentielle Kernel mit float64-Akkumulation, ein Gerät (cpu:0)

package cpu

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ollama/devcheck/ml"
	"github.com/ollama/devcheck/ml/kernels"
)

func init() {
	ml.RegisterBackend("cpu", New)
}

// Backend runs every op sequentially with float64 accumulators. It is the
// usual reference placement.
type Backend struct {
	cfg kernels.Config
}

func New(ml.BackendParams) (ml.Backend, error) {
	return &Backend{cfg: kernels.Config{Threads: 1}}, nil
}

func (b *Backend) Name() string {
	return "cpu"
}

func (b *Backend) DeviceType() ml.DeviceType {
	return ml.DeviceCPU
}

func (b *Backend) Devices() []ml.DeviceInfo {
	return []ml.DeviceInfo{{
		Placement:   ml.CPU,
		Library:     b.Name(),
		Description: fmt.Sprintf("%s/%s reference kernels", runtime.GOOS, runtime.GOARCH),
		Threads:     b.cfg.Threads,
		Precision:   ml.DTypeF32,
	}}
}

func (b *Backend) Supports(op ml.OpType) bool {
	return kernels.Supports(op)
}

func (b *Backend) Execute(ctx context.Context, g *ml.Graph, device int, inputs *ml.Store) (*ml.Store, error) {
	if device != 0 {
		return nil, fmt.Errorf("%w: cpu:%d", ml.ErrNoDevice, device)
	}

	return kernels.Execute(ctx, b.cfg, g, inputs)
}

func (b *Backend) Close() {}
