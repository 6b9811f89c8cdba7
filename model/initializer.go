package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/ollama/devcheck/ml"
)

var ErrInvalidInitializer = errors.New("invalid initializer")

// InitKind selects a parameter fill strategy. The zero value is not a valid
// kind, so an uninitialized Initializer is always rejected.
type InitKind int

const (
	InitXavier InitKind = iota + 1
	InitConstant
	InitGaussian
	InitUniform
)

func (k InitKind) String() string {
	switch k {
	case InitXavier:
		return "xavier"
	case InitConstant:
		return "constant"
	case InitGaussian:
		return "gaussian"
	case InitUniform:
		return "uniform"
	default:
		return "invalid"
	}
}

func (k InitKind) opType() ml.OpType {
	switch k {
	case InitXavier:
		return ml.OpXavierFill
	case InitConstant:
		return ml.OpConstantFill
	case InitGaussian:
		return ml.OpGaussianFill
	case InitUniform:
		return ml.OpUniformFill
	default:
		return ""
	}
}

// XavierOptions configures uniform Xavier fills in [-Scale, Scale]. A zero
// Scale derives sqrt(3 / fan_in) from the parameter shape.
type XavierOptions struct {
	Scale float32
}

type ConstantOptions struct {
	Value float32
}

type GaussianOptions struct {
	Mean, Std float32
}

type UniformOptions struct {
	Min, Max float32
}

// Initializer is a validated fill strategy: a kind plus the options of that
// kind. Build one with Xavier, Constant, Gaussian or Uniform.
type Initializer struct {
	kind InitKind

	xavier   XavierOptions
	constant ConstantOptions
	gaussian GaussianOptions
	uniform  UniformOptions
}

func finite(vs ...float32) bool {
	for _, v := range vs {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

func Xavier(opts XavierOptions) (Initializer, error) {
	if !finite(opts.Scale) || opts.Scale < 0 {
		return Initializer{}, fmt.Errorf("%w: xavier scale %v", ErrInvalidInitializer, opts.Scale)
	}
	return Initializer{kind: InitXavier, xavier: opts}, nil
}

func Constant(opts ConstantOptions) (Initializer, error) {
	if !finite(opts.Value) {
		return Initializer{}, fmt.Errorf("%w: constant value %v", ErrInvalidInitializer, opts.Value)
	}
	return Initializer{kind: InitConstant, constant: opts}, nil
}

func Gaussian(opts GaussianOptions) (Initializer, error) {
	if !finite(opts.Mean, opts.Std) || opts.Std < 0 {
		return Initializer{}, fmt.Errorf("%w: gaussian mean %v std %v", ErrInvalidInitializer, opts.Mean, opts.Std)
	}
	return Initializer{kind: InitGaussian, gaussian: opts}, nil
}

func Uniform(opts UniformOptions) (Initializer, error) {
	if !finite(opts.Min, opts.Max) || opts.Min > opts.Max {
		return Initializer{}, fmt.Errorf("%w: uniform range [%v, %v]", ErrInvalidInitializer, opts.Min, opts.Max)
	}
	return Initializer{kind: InitUniform, uniform: opts}, nil
}

// MustInitializer panics if err is not nil.
func MustInitializer(i Initializer, err error) Initializer {
	if err != nil {
		panic(err)
	}
	return i
}

func (i Initializer) Kind() InitKind {
	return i.kind
}

func (i Initializer) Valid() bool {
	return i.kind >= InitXavier && i.kind <= InitUniform
}

func (i Initializer) String() string {
	switch i.kind {
	case InitXavier:
		return fmt.Sprintf("xavier(scale=%v)", i.xavier.Scale)
	case InitConstant:
		return fmt.Sprintf("constant(%v)", i.constant.Value)
	case InitGaussian:
		return fmt.Sprintf("gaussian(mean=%v, std=%v)", i.gaussian.Mean, i.gaussian.Std)
	case InitUniform:
		return fmt.Sprintf("uniform(%v, %v)", i.uniform.Min, i.uniform.Max)
	default:
		return "invalid"
	}
}

// op builds the fill op producing a parameter named name.
func (i Initializer) op(name string, shape []int, seed uint64) (ml.Op, error) {
	if !i.Valid() {
		return ml.Op{}, fmt.Errorf("%w: %s has no fill strategy", ErrInvalidInitializer, name)
	}

	args := ml.FillArgs{
		Shape: shape,
		Value: i.constant.Value,
		Mean:  i.gaussian.Mean,
		Std:   i.gaussian.Std,
		Min:   i.uniform.Min,
		Max:   i.uniform.Max,
		Scale: i.xavier.Scale,
		Seed:  seed,
	}

	return ml.Op{Type: i.kind.opType(), Outputs: []string{name}, Args: args}, nil
}
