package ml

import (
	"encoding/binary"
	"fmt"
	"slices"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Tensor is an immutable, row-major n-dimensional array. Constructors copy
// their input and accessors return copies, so a Tensor can be shared freely
// between stores and goroutines.
type Tensor struct {
	dtype DType
	shape []int

	f32  []float32
	i32  []int32
	half []byte // f16 or bf16, little endian
}

func mul(s ...int) int {
	p := 1
	for _, v := range s {
		p *= v
	}

	return p
}

func checkShape(n int, shape []int) error {
	for i, d := range shape {
		if d < 0 {
			return fmt.Errorf("invalid shape %v: dimension %d is negative", shape, i)
		}
	}
	if mul(shape...) != n {
		return fmt.Errorf("shape %v holds %d elements, got %d", shape, mul(shape...), n)
	}
	return nil
}

// FromFloats creates an f32 tensor. An empty shape describes a scalar.
func FromFloats(s []float32, shape ...int) (*Tensor, error) {
	if err := checkShape(len(s), shape); err != nil {
		return nil, err
	}

	return &Tensor{dtype: DTypeF32, shape: slices.Clone(shape), f32: slices.Clone(s)}, nil
}

// FromInts creates an i32 tensor.
func FromInts(s []int32, shape ...int) (*Tensor, error) {
	if err := checkShape(len(s), shape); err != nil {
		return nil, err
	}

	return &Tensor{dtype: DTypeI32, shape: slices.Clone(shape), i32: slices.Clone(s)}, nil
}

// Must panics if err is not nil. It is meant for constant tensors in tests
// and examples.
func Must(t *Tensor, err error) *Tensor {
	if err != nil {
		panic(err)
	}
	return t
}

// Zeros creates a zero filled tensor of the given type.
func Zeros(dtype DType, shape ...int) (*Tensor, error) {
	n := mul(shape...)
	switch dtype {
	case DTypeF32:
		return FromFloats(make([]float32, n), shape...)
	case DTypeI32:
		return FromInts(make([]int32, n), shape...)
	case DTypeF16, DTypeBF16:
		t, err := FromFloats(make([]float32, n), shape...)
		if err != nil {
			return nil, err
		}
		return t.Cast(dtype), nil
	default:
		return nil, fmt.Errorf("zeros: unsupported dtype %s", dtype)
	}
}

func (t *Tensor) DType() DType {
	return t.dtype
}

func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// Dim returns the size of dimension n.
func (t *Tensor) Dim(n int) int {
	return t.shape[n]
}

// Rank is the number of dimensions; 0 for scalars.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Len is the number of elements.
func (t *Tensor) Len() int {
	return mul(t.shape...)
}

// Floats returns the elements converted to float32.
func (t *Tensor) Floats() []float32 {
	switch t.dtype {
	case DTypeF32:
		return slices.Clone(t.f32)
	case DTypeI32:
		s := make([]float32, len(t.i32))
		for i, v := range t.i32 {
			s[i] = float32(v)
		}
		return s
	case DTypeF16:
		s := make([]float32, len(t.half)/2)
		for i := range s {
			s[i] = float16.Frombits(binary.LittleEndian.Uint16(t.half[2*i:])).Float32()
		}
		return s
	case DTypeBF16:
		return bfloat16.DecodeFloat32(t.half)
	default:
		return nil
	}
}

// Float64s returns the elements widened to float64.
func (t *Tensor) Float64s() []float64 {
	if t.dtype == DTypeI32 {
		s := make([]float64, len(t.i32))
		for i, v := range t.i32 {
			s[i] = float64(v)
		}
		return s
	}

	f32s := t.Floats()
	s := make([]float64, len(f32s))
	for i, v := range f32s {
		s[i] = float64(v)
	}
	return s
}

// Ints returns the elements as int32, truncating floating point values.
func (t *Tensor) Ints() []int32 {
	if t.dtype == DTypeI32 {
		return slices.Clone(t.i32)
	}

	f32s := t.Floats()
	s := make([]int32, len(f32s))
	for i, v := range f32s {
		s[i] = int32(v)
	}
	return s
}

// Cast converts t to dtype. Casting to the same type returns t.
func (t *Tensor) Cast(dtype DType) *Tensor {
	if dtype == t.dtype {
		return t
	}

	shape := slices.Clone(t.shape)
	switch dtype {
	case DTypeF32:
		return &Tensor{dtype: dtype, shape: shape, f32: t.Floats()}
	case DTypeI32:
		return &Tensor{dtype: dtype, shape: shape, i32: t.Ints()}
	case DTypeF16:
		f32s := t.Floats()
		half := make([]byte, 2*len(f32s))
		for i, v := range f32s {
			binary.LittleEndian.PutUint16(half[2*i:], float16.Fromfloat32(v).Bits())
		}
		return &Tensor{dtype: dtype, shape: shape, half: half}
	case DTypeBF16:
		return &Tensor{dtype: dtype, shape: shape, half: bfloat16.EncodeFloat32(t.Floats())}
	default:
		panic(fmt.Sprintf("cast: unsupported dtype %s", dtype))
	}
}

// Unravel converts a flat row-major index into per-dimension coordinates.
func (t *Tensor) Unravel(i int) []int {
	return Unravel(t.shape, i)
}

func Unravel(shape []int, i int) []int {
	coords := make([]int, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		if shape[d] == 0 {
			return coords
		}
		coords[d] = i % shape[d]
		i /= shape[d]
	}
	return coords
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s)", t.shape, t.dtype)
}
