package kernels

import "github.com/ollama/devcheck/ml"

// RoundTo returns a Config.Round function emulating storage in dtype. f32
// needs no rounding and yields nil.
func RoundTo(dtype ml.DType) func(*ml.Tensor) *ml.Tensor {
	switch dtype {
	case ml.DTypeF16, ml.DTypeBF16:
		return func(t *ml.Tensor) *ml.Tensor {
			return t.Cast(dtype)
		}
	default:
		return nil
	}
}
