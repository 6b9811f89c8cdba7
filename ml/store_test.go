package ml

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustFloats(t *testing.T, s []float32, shape ...int) *Tensor {
	t.Helper()
	tt, err := FromFloats(s, shape...)
	if err != nil {
		t.Fatal(err)
	}
	return tt
}

func TestStorePutGet(t *testing.T) {
	s := NewStore()
	x := mustFloats(t, []float32{1, 2, 3}, 3)
	s.Put("x", x)

	got, err := s.Get("x")
	if err != nil {
		t.Fatal(err)
	}
	if got != x {
		t.Errorf("expected stored tensor")
	}

	if !s.Has("x") || s.Has("y") {
		t.Errorf("unexpected Has results")
	}
}

func TestStoreNotFound(t *testing.T) {
	s := NewStore()
	s.Put("conv1_w", mustFloats(t, []float32{1}))
	s.Put("conv1_b", mustFloats(t, []float32{1}))

	_, err := s.Get("conv1_x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
	if nf.Name != "conv1_x" || nf.Suggestion != "conv1_w" {
		t.Errorf("unexpected error contents: %+v", nf)
	}

	_, err = s.Get("something_else_entirely")
	if !errors.As(err, &nf) || nf.Suggestion != "" {
		t.Errorf("expected no suggestion, got %v", err)
	}
}

func TestStoreOrderAndClone(t *testing.T) {
	s := NewStore()
	for _, name := range []string{"c", "a", "b"} {
		s.Put(name, mustFloats(t, []float32{1}))
	}
	s.Put("a", mustFloats(t, []float32{2}))

	if diff := cmp.Diff([]string{"c", "a", "b"}, s.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}

	c := s.Clone()
	c.Put("d", mustFloats(t, []float32{3}))
	if s.Has("d") {
		t.Error("clone writes leaked into the original store")
	}
	if c.Len() != 4 || s.Len() != 3 {
		t.Errorf("unexpected lengths %d, %d", c.Len(), s.Len())
	}

	c.Put("e", mustFloats(t, make([]float32, 6), 2, 3).Cast(DTypeF16))
	if got := c.Bytes(); got != 4*4+6*2 {
		t.Errorf("bytes = %d", got)
	}
}

func TestStorePutPanics(t *testing.T) {
	for name, fn := range map[string]func(){
		"empty name": func() { NewStore().Put("", mustFloats(t, []float32{1})) },
		"nil tensor": func() { NewStore().Put("x", nil) },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			fn()
		})
	}
}

func TestSuggest(t *testing.T) {
	cases := []struct {
		name       string
		candidates []string
		want       string
	}{
		{"_pool1_idx", []string{"_pool1_idx", "_pool2_idx", "pool1"}, "_pool2_idx"},
		{"relu", []string{"relu1", "relu22"}, "relu1"},
		{"x", []string{"completely_different"}, ""},
		{"x", nil, ""},
	}

	for _, c := range cases {
		if got := Suggest(c.name, c.candidates); got != c.want {
			t.Errorf("Suggest(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}
