package ml

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store maps tensor names to tensors, remembering insertion order. A store
// is written by a single goroutine and may be read concurrently afterwards.
type Store struct {
	m *orderedmap.OrderedMap[string, *Tensor]
}

func NewStore() *Store {
	return &Store{m: orderedmap.New[string, *Tensor]()}
}

// Put stores t under name, replacing any previous tensor in place.
func (s *Store) Put(name string, t *Tensor) {
	if name == "" {
		panic("store: empty tensor name")
	}
	if t == nil {
		panic(fmt.Sprintf("store: nil tensor for %q", name))
	}

	s.m.Set(name, t)
}

// Get returns the tensor stored under name or a *NotFoundError.
func (s *Store) Get(name string) (*Tensor, error) {
	if t, ok := s.m.Get(name); ok {
		return t, nil
	}

	return nil, &NotFoundError{Name: name, Suggestion: Suggest(name, s.Names())}
}

func (s *Store) Has(name string) bool {
	_, ok := s.m.Get(name)
	return ok
}

// Names returns the stored names in insertion order.
func (s *Store) Names() []string {
	names := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (s *Store) Len() int {
	return s.m.Len()
}

// Bytes is the total size of the stored tensor data.
func (s *Store) Bytes() uint64 {
	var n uint64
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		n += uint64(pair.Value.Len() * pair.Value.DType().Size())
	}
	return n
}

// Clone returns a new store holding the same tensors. Tensors are immutable,
// so the clone is fully isolated from later Puts on s.
func (s *Store) Clone() *Store {
	c := NewStore()
	c.Merge(s)
	return c
}

// Merge copies every entry of o into s.
func (s *Store) Merge(o *Store) {
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		s.m.Set(pair.Key, pair.Value)
	}
}
