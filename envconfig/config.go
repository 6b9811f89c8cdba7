// Package envconfig reads devcheck settings from the environment.
package envconfig

import (
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// LogLevel returns the log level for the application.
// Values are 0 or false INFO (Default), 1 or true DEBUG, 2 TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("DEVCHECK_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// AccelThreads is the number of goroutines an accelerator run may use.
func AccelThreads() int {
	n := Uint("DEVCHECK_ACCEL_THREADS", 0)()
	if n == 0 {
		return runtime.GOMAXPROCS(0)
	}

	return int(n)
}

// AccelPrecision is the precision the accelerator rounds its outputs to.
// Unknown values are reported and treated as f32.
func AccelPrecision() string {
	s := strings.ToLower(Var("DEVCHECK_ACCEL_PRECISION"))
	switch s {
	case "", "f32", "fp32", "float32":
		return "f32"
	case "f16", "fp16", "float16", "half":
		return "f16"
	case "bf16", "bfloat16":
		return "bf16"
	default:
		slog.Warn("invalid DEVCHECK_ACCEL_PRECISION, using f32", "value", s)
		return "f32"
	}
}

var (
	// Accel enables the accelerator backend.
	Accel = BoolWithDefault("DEVCHECK_ACCEL")
	// AccelDevices is the number of accelerator devices to expose.
	AccelDevices = Uint("DEVCHECK_ACCEL_DEVICES", 1)
	// NumParallel is the number of device runs the checker may execute at once.
	NumParallel = Uint("DEVCHECK_NUM_PARALLEL", 1)
	// Seed seeds the parameter initializers and generated inputs.
	Seed = Uint64("DEVCHECK_SEED", 1701)
	// Tolerance is the absolute elementwise tolerance used when none is given.
	// Negative or non-finite values fall back to the default.
	Tolerance = Float("DEVCHECK_TOLERANCE", 0.05, func(f float64) bool {
		return f >= 0 && !math.IsInf(f, 0)
	})
)

// Var returns an environment variable stripped of leading and trailing quotes or spaces
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
