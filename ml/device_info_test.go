package ml

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePlacement(t *testing.T) {
	cases := []struct {
		in      string
		want    Placement
		wantErr bool
	}{
		{in: "cpu", want: CPU},
		{in: "CPU:0", want: CPU},
		{in: "accel", want: Accel},
		{in: "gpu:1", want: Placement{Type: DeviceAccelerator, Index: 1}},
		{in: " cuda:2 ", want: Placement{Type: DeviceAccelerator, Index: 2}},
		{in: "tpu", wantErr: true},
		{in: "cpu:-1", wantErr: true},
		{in: "cpu:x", wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			got, err := ParsePlacement(c.in)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != c.want {
				t.Errorf("expected %v, got %v", c.want, got)
			}
		})
	}
}

func TestPlacementString(t *testing.T) {
	if s := (Placement{Type: DeviceAccelerator, Index: 3}).String(); s != "accel:3" {
		t.Errorf("unexpected %q", s)
	}
}

func TestCapabilities(t *testing.T) {
	caps := NewCapabilities(
		DeviceInfo{Placement: Placement{Type: DeviceAccelerator, Index: 1}},
		DeviceInfo{Placement: CPU},
		DeviceInfo{Placement: Accel},
	)

	if !caps.Has(DeviceCPU) || !caps.Has(DeviceAccelerator) {
		t.Error("expected both device types")
	}
	if !caps.Supports(Placement{Type: DeviceAccelerator, Index: 1}) {
		t.Error("expected accel:1")
	}
	if caps.Supports(Placement{Type: DeviceAccelerator, Index: 2}) {
		t.Error("unexpected accel:2")
	}

	want := []Placement{CPU, Accel, {Type: DeviceAccelerator, Index: 1}}
	if diff := cmp.Diff(want, caps.Placements()); diff != "" {
		t.Errorf("placements (-want +got):\n%s", diff)
	}

	if (Capabilities{}).Has(DeviceCPU) {
		t.Error("empty capabilities should have nothing")
	}
}
