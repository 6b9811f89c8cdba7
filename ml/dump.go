package ml

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
)

type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places printed for float tensors.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.precision = n
	}
}

// DumpWithThreshold prints every element of tensors with at most n elements.
// Larger tensors are summarized per axis.
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.threshold = n
	}
}

// DumpWithEdgeItems sets how many leading and trailing entries of each axis
// a summarized tensor keeps.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.edgeItems = n
	}
}

type dumpOptions struct {
	precision, threshold, edgeItems int
}

// Dump renders t as nested brackets, one row per line.
func Dump(t *Tensor, opts ...DumpOptions) string {
	o := dumpOptions{precision: 4, threshold: 1000, edgeItems: 3}
	for _, opt := range opts {
		opt(&o)
	}

	d := dumper{shape: t.Shape(), items: o.edgeItems}
	if t.Len() <= o.threshold {
		d.items = math.MaxInt
	}

	switch {
	case t.DType().IsFloat():
		fs := t.Floats()
		d.format = func(i int) string { return strconv.FormatFloat(float64(fs[i]), 'f', o.precision, 32) }
	case t.DType() == DTypeI32:
		is := t.Ints()
		d.format = func(i int) string { return strconv.FormatInt(int64(is[i]), 10) }
	default:
		return "<unsupported>"
	}

	if len(d.shape) == 0 {
		return d.format(0)
	}

	d.strides = make([]int, len(d.shape))
	stride := 1
	for i := len(d.shape) - 1; i >= 0; i-- {
		d.strides[i] = stride
		stride *= d.shape[i]
	}

	var sb strings.Builder
	d.write(&sb, 0, 0)
	return sb.String()
}

type dumper struct {
	shape, strides []int
	items          int
	format         func(int) string
}

func (d *dumper) write(sb *strings.Builder, axis, offset int) {
	last := axis == len(d.shape)-1
	n := d.shape[axis]

	sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i == d.items && d.items < n-d.items {
			sb.WriteString("...")
			i = n - d.items - 1
		} else if last {
			text := d.format(offset + i)
			if !strings.HasPrefix(text, "-") {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		} else {
			d.write(sb, axis+1, offset+i*d.strides[axis])
		}

		if i < n-1 {
			sb.WriteByte(',')
			if last {
				sb.WriteByte(' ')
			} else {
				sb.WriteString(strings.Repeat("\n", len(d.shape)-axis-1))
				sb.WriteString(strings.Repeat(" ", axis+1))
			}
		}
	}
	sb.WriteByte(']')
}

type dumpValue struct {
	t    *Tensor
	opts []DumpOptions
}

func (v dumpValue) LogValue() slog.Value {
	return slog.StringValue(Dump(v.t, v.opts...))
}

// DumpValue defers Dump until a log handler formats the record.
func DumpValue(t *Tensor, opts ...DumpOptions) slog.LogValuer {
	return dumpValue{t: t, opts: opts}
}
