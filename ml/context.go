package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ollama/devcheck/envconfig"
	"github.com/ollama/devcheck/logutil"
)

// Context is an explicit execution context. It owns one backend per device
// type and a workspace store used to stage tensors between runs, such as
// parameters produced by an initialization graph. A Context replaces any
// process wide runtime state: independent contexts never share tensors.
//
// A Context is safe for concurrent use. Its lifecycle is NewContext, any
// number of Run/RunOnce/Reset calls, then Close.
type Context struct {
	id uuid.UUID

	mu        sync.Mutex
	backends  map[DeviceType]Backend
	workspace *Store
	closed    bool
}

type contextOptions struct {
	params    BackendParams
	overrides []Backend
	registry  bool
}

type ContextOption func(*contextOptions)

// WithBackend installs b for its device type instead of a registered
// backend.
func WithBackend(b Backend) ContextOption {
	return func(o *contextOptions) {
		o.overrides = append(o.overrides, b)
	}
}

// WithBackendParams overrides the parameters derived from the environment.
func WithBackendParams(p BackendParams) ContextOption {
	return func(o *contextOptions) {
		o.params = p
	}
}

// WithoutRegistry skips registered backends so that only backends installed
// with WithBackend are used.
func WithoutRegistry() ContextOption {
	return func(o *contextOptions) {
		o.registry = false
	}
}

// DefaultBackendParams derives backend parameters from the environment.
func DefaultBackendParams() BackendParams {
	p := BackendParams{
		Threads:   envconfig.AccelThreads(),
		Precision: DTypeF32,
	}

	if envconfig.Accel(true) {
		p.Accelerators = int(envconfig.AccelDevices())
	}

	if dtype, err := ParseDType(envconfig.AccelPrecision()); err == nil {
		p.Precision = dtype
	}

	return p
}

// NewContext creates an execution context, instantiating every registered
// backend whose devices are available.
func NewContext(opts ...ContextOption) (*Context, error) {
	o := contextOptions{params: DefaultBackendParams(), registry: true}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		id:        uuid.New(),
		backends:  make(map[DeviceType]Backend),
		workspace: NewStore(),
	}

	if o.registry {
		for _, name := range Backends() {
			b, err := NewBackend(name, o.params)
			if errors.Is(err, ErrUnavailable) {
				slog.Debug("backend unavailable", "backend", name, "error", err)
				continue
			} else if err != nil {
				c.Close()
				return nil, fmt.Errorf("create backend %s: %w", name, err)
			}

			if prev, ok := c.backends[b.DeviceType()]; ok {
				slog.Warn("duplicate backend for device type, keeping first", "type", b.DeviceType(), "kept", prev.Name(), "skipped", b.Name())
				b.Close()
				continue
			}
			c.backends[b.DeviceType()] = b
		}
	}

	for _, b := range o.overrides {
		if prev, ok := c.backends[b.DeviceType()]; ok {
			prev.Close()
		}
		c.backends[b.DeviceType()] = b
	}

	slog.Debug("execution context created", "id", c.id, "capabilities", c.Capabilities().Placements())
	return c, nil
}

func (c *Context) ID() string {
	return c.id.String()
}

// Capabilities returns the devices this context can execute on. Callers
// check it before building placements for optional devices.
func (c *Context) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()

	var devices []DeviceInfo
	if !c.closed {
		for _, b := range c.backends {
			devices = append(devices, b.Devices()...)
		}
	}

	return NewCapabilities(devices...)
}

func (c *Context) backend(p Placement) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrContextClosed
	}

	b, ok := c.backends[p.Type]
	if !ok {
		return nil, &ExecutionError{Placement: p, Op: -1, Err: fmt.Errorf("%w: no backend for %s", ErrNoDevice, p.Type)}
	}

	return b, nil
}

// Run executes g on placement p. The inputs store is only read; the returned
// store holds every produced tensor. Failures are *ExecutionError.
func (c *Context) Run(ctx context.Context, g *Graph, p Placement, inputs *Store) (*Store, error) {
	b, err := c.backend(p)
	if err != nil {
		return nil, err
	}

	if inputs == nil {
		inputs = NewStore()
	}

	runID := uuid.New()
	start := time.Now()
	logutil.Trace("run started", "context", c.id, "run", runID, "graph", g.Name, "placement", p, "backend", b.Name())

	out, err := b.Execute(ctx, g, p.Index, inputs)
	if err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			execErr.Placement = p
			return nil, execErr
		}
		return nil, &ExecutionError{Placement: p, Op: -1, Err: err}
	}

	slog.Debug("run finished", "context", c.id, "run", runID, "graph", g.Name, "placement", p, "outputs", out.Len(), "duration", time.Since(start))
	return out, nil
}

// RunOnce executes g with the workspace as input and merges the produced
// tensors back into the workspace.
func (c *Context) RunOnce(ctx context.Context, g *Graph, p Placement) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrContextClosed
	}
	inputs := c.workspace.Clone()
	c.mu.Unlock()

	out, err := c.Run(ctx, g, p, inputs)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	c.workspace.Merge(out)
	return nil
}

// Feed stores t in the workspace.
func (c *Context) Feed(name string, t *Tensor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContextClosed
	}
	c.workspace.Put(name, t)
	return nil
}

// Fetch returns a workspace tensor.
func (c *Context) Fetch(name string) (*Tensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrContextClosed
	}
	return c.workspace.Get(name)
}

// FetchAll collects the named workspace tensors into a new store.
func (c *Context) FetchAll(names ...string) (*Store, error) {
	s := NewStore()
	for _, name := range names {
		t, err := c.Fetch(name)
		if err != nil {
			return nil, err
		}
		s.Put(name, t)
	}
	return s, nil
}

// Reset clears the workspace. Backends stay open.
func (c *Context) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContextClosed
	}
	c.workspace = NewStore()
	return nil
}

// Close releases every backend. Further use of the context fails with
// ErrContextClosed; closing twice is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	for _, b := range c.backends {
		b.Close()
	}
	c.backends = nil
	c.workspace = nil
	c.closed = true

	slog.Debug("execution context closed", "id", c.id)
	return nil
}
