package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// parsed returns a getter that parses key with parse. Empty values yield
// defaultValue; values that fail to parse or validate are reported and
// yield defaultValue as well.
func parsed[T any](key string, defaultValue T, parse func(string) (T, error)) func() T {
	return func() T {
		s := Var(key)
		if s == "" {
			return defaultValue
		}

		v, err := parse(s)
		if err != nil {
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue, "error", err)
			return defaultValue
		}
		return v
	}
}

// BoolWithDefault returns a getter for a boolean variable. Any non-empty
// value that does not parse as a boolean counts as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		return parsed(k, defaultValue, func(s string) (bool, error) {
			if b, err := strconv.ParseBool(s); err == nil {
				return b, nil
			}
			return true, nil
		})()
	}
}

func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

func Uint(key string, defaultValue uint) func() uint {
	return parsed(key, defaultValue, func(s string) (uint, error) {
		n, err := strconv.ParseUint(s, 10, strconv.IntSize)
		return uint(n), err
	})
}

func Uint64(key string, defaultValue uint64) func() uint64 {
	return parsed(key, defaultValue, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, 64)
	})
}

// Float returns a getter for a float variable restricted by valid.
func Float(key string, defaultValue float64, valid func(float64) bool) func() float64 {
	return parsed(key, defaultValue, func(s string) (float64, error) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if valid != nil && !valid(f) {
			return 0, fmt.Errorf("%v out of range", f)
		}
		return f, nil
	})
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"DEVCHECK_DEBUG":           {"DEVCHECK_DEBUG", LogLevel(), "Show additional debug information (e.g. DEVCHECK_DEBUG=1)"},
		"DEVCHECK_TOLERANCE":       {"DEVCHECK_TOLERANCE", Tolerance(), "Default absolute tolerance for tensor comparison (default 0.05)"},
		"DEVCHECK_NUM_PARALLEL":    {"DEVCHECK_NUM_PARALLEL", NumParallel(), "Maximum number of device runs executed concurrently (default 1)"},
		"DEVCHECK_ACCEL":           {"DEVCHECK_ACCEL", Accel(true), "Enable the accelerator backend (default true)"},
		"DEVCHECK_ACCEL_DEVICES":   {"DEVCHECK_ACCEL_DEVICES", AccelDevices(), "Number of accelerator devices (default 1)"},
		"DEVCHECK_ACCEL_THREADS":   {"DEVCHECK_ACCEL_THREADS", AccelThreads(), "Goroutines per accelerator run (default GOMAXPROCS)"},
		"DEVCHECK_ACCEL_PRECISION": {"DEVCHECK_ACCEL_PRECISION", AccelPrecision(), "Accelerator output precision: f32, f16 or bf16 (default f32)"},
		"DEVCHECK_SEED":            {"DEVCHECK_SEED", Seed(), "Seed for parameter initialization and generated inputs"},
	}
}

// Values returns every setting formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
