// accel.go - Beschleuniger-Backend
// Enthält: parallele Kernel ueber den Batch (errgroup), float32-GEMM,
// optionale Rundung der Ausgaben auf f16/bf16

package accel

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/ollama/devcheck/ml"
	"github.com/ollama/devcheck/ml/kernels"
)

func init() {
	ml.RegisterBackend("accel", New)
}

// Backend emulates an accelerator: kernels fan out over the batch, matrix
// products accumulate in float32, max pooling keeps the last maximum and
// outputs can be rounded to a lower precision. Each configured device index
// runs the same kernels.
type Backend struct {
	cfg       kernels.Config
	devices   int
	precision ml.DType
}

// New creates the accelerator backend. It returns an error matching
// ml.ErrUnavailable when no accelerator devices are configured.
func New(params ml.BackendParams) (ml.Backend, error) {
	if params.Accelerators < 1 {
		return nil, fmt.Errorf("%w: no accelerator devices configured", ml.ErrUnavailable)
	}

	threads := params.Threads
	if threads < 1 {
		threads = runtime.GOMAXPROCS(0)
	}

	precision := params.Precision
	switch precision {
	case ml.DTypeF32, ml.DTypeF16, ml.DTypeBF16:
	case ml.DTypeOther:
		precision = ml.DTypeF32
	default:
		return nil, fmt.Errorf("unsupported accelerator precision %s", precision)
	}

	slog.Debug("accelerator backend", "devices", params.Accelerators, "threads", threads, "precision", precision)
	return &Backend{
		cfg: kernels.Config{
			Threads:     threads,
			BLAS:        true,
			LastMaxWins: true,
			Round:       kernels.RoundTo(precision),
		},
		devices:   params.Accelerators,
		precision: precision,
	}, nil
}

func (b *Backend) Name() string {
	return "accel"
}

func (b *Backend) DeviceType() ml.DeviceType {
	return ml.DeviceAccelerator
}

func (b *Backend) Devices() []ml.DeviceInfo {
	devices := make([]ml.DeviceInfo, b.devices)
	for i := range devices {
		devices[i] = ml.DeviceInfo{
			Placement:   ml.Placement{Type: ml.DeviceAccelerator, Index: i},
			Library:     b.Name(),
			Description: fmt.Sprintf("emulated accelerator %d", i),
			Threads:     b.cfg.Threads,
			Precision:   b.precision,
		}
	}
	return devices
}

func (b *Backend) Supports(op ml.OpType) bool {
	return kernels.Supports(op)
}

func (b *Backend) Execute(ctx context.Context, g *ml.Graph, device int, inputs *ml.Store) (*ml.Store, error) {
	if device < 0 || device >= b.devices {
		return nil, fmt.Errorf("%w: accel:%d", ml.ErrNoDevice, device)
	}

	return kernels.Execute(ctx, b.cfg, g, inputs)
}

func (b *Backend) Close() {}
