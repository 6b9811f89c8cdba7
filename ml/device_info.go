package ml

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DeviceType is the kind of compute device a graph runs on.
type DeviceType int

const (
	DeviceCPU DeviceType = iota
	DeviceAccelerator
)

func (d DeviceType) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceAccelerator:
		return "accel"
	default:
		return "unknown"
	}
}

// Placement selects the device a graph execution targets. It never changes
// what the graph computes.
type Placement struct {
	Type  DeviceType
	Index int
}

var (
	CPU   = Placement{Type: DeviceCPU}
	Accel = Placement{Type: DeviceAccelerator}
)

func (p Placement) String() string {
	return p.Type.String() + ":" + strconv.Itoa(p.Index)
}

// ParsePlacement parses "cpu", "accel", "gpu" or "cuda" with an optional
// ":index" suffix.
func ParsePlacement(s string) (Placement, error) {
	name, index, hasIndex := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")

	var p Placement
	switch name {
	case "cpu":
		p.Type = DeviceCPU
	case "accel", "gpu", "cuda":
		p.Type = DeviceAccelerator
	default:
		return Placement{}, fmt.Errorf("unknown device %q", s)
	}

	if hasIndex {
		n, err := strconv.Atoi(index)
		if err != nil || n < 0 {
			return Placement{}, fmt.Errorf("invalid device index in %q", s)
		}
		p.Index = n
	}

	return p, nil
}

func ParsePlacements(s []string) ([]Placement, error) {
	placements := make([]Placement, 0, len(s))
	for _, v := range s {
		p, err := ParsePlacement(v)
		if err != nil {
			return nil, err
		}
		placements = append(placements, p)
	}
	return placements, nil
}

type DeviceInfo struct {
	Placement

	// Library is the name of the backend that drives the device.
	Library string `json:"library"`

	// Description is a user-friendly identification of the device
	Description string `json:"description"`

	// Threads is the number of goroutines a single run may use.
	Threads int `json:"threads,omitempty"`

	// Precision is the precision outputs are rounded to.
	Precision DType `json:"precision"`
}

// Capabilities is the set of devices an execution context can run on.
type Capabilities struct {
	devices []DeviceInfo
}

func NewCapabilities(devices ...DeviceInfo) Capabilities {
	devices = slices.Clone(devices)
	slices.SortFunc(devices, func(a, b DeviceInfo) int {
		if a.Type != b.Type {
			return int(a.Type) - int(b.Type)
		}
		return a.Index - b.Index
	})
	return Capabilities{devices: devices}
}

// Has reports whether at least one device of type t is available.
func (c Capabilities) Has(t DeviceType) bool {
	return slices.ContainsFunc(c.devices, func(d DeviceInfo) bool { return d.Type == t })
}

// Supports reports whether p names an available device.
func (c Capabilities) Supports(p Placement) bool {
	return slices.ContainsFunc(c.devices, func(d DeviceInfo) bool { return d.Placement == p })
}

func (c Capabilities) Devices() []DeviceInfo {
	return slices.Clone(c.devices)
}

func (c Capabilities) Placements() []Placement {
	placements := make([]Placement, len(c.devices))
	for i, d := range c.devices {
		placements[i] = d.Placement
	}
	return placements
}
