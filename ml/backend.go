package ml

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Backend executes graphs on the devices of one device type.
type Backend interface {
	// Name is the library name the backend registered under.
	Name() string

	DeviceType() DeviceType

	// Devices enumerates the devices available through this backend.
	Devices() []DeviceInfo

	// Supports reports whether the backend has a kernel for op.
	Supports(op OpType) bool

	// Execute runs every op of g in order on the device with the given
	// index. The returned store holds every tensor produced by the graph
	// keyed by output name; inputs is only read.
	Execute(ctx context.Context, g *Graph, device int, inputs *Store) (*Store, error)

	// Close frees all resources associated with this backend
	Close()
}

// BackendParams controls how backends are instantiated
type BackendParams struct {
	// Threads is the number of goroutines a single run may use
	Threads int

	// Accelerators is the number of accelerator devices to expose. Zero
	// disables accelerator backends.
	Accelerators int

	// Precision is the precision accelerator outputs are rounded to
	Precision DType
}

var (
	backendsMu sync.Mutex
	backends   = make(map[string]func(BackendParams) (Backend, error))
)

// RegisterBackend registers a backend factory. Factories return an error
// matching ErrUnavailable when their devices are not present.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// Backends returns the names of registered backends, sorted.
func Backends() []string {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewBackend creates a registered backend by name.
func NewBackend(name string, params BackendParams) (Backend, error) {
	backendsMu.Lock()
	f, ok := backends[name]
	backendsMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unsupported backend %q", name)
	}

	return f(params)
}
