package analysis

import (
	"errors"
	"testing"
)

func TestHRZones(t *testing.T) {
	tests := []struct {
		hr   int
		zone string // empty when the sample falls in no zone
	}{
		{80, ""},
		{95, "Z1 (Erholung)"},
		{100, "Z1 (Erholung)"},
		{130, "Z2 (Grundlage)"},
		{150, "Z3 (GA2)"},
		{160, "Z4 (Schwelle)"},
		{180, "Z5 (VO2max)"},
		{190, ""},
		{205, ""},
	}

	for _, tt := range tests {
		dist, err := HRZones([]int{tt.hr}, 190)
		if err != nil {
			t.Fatalf("HRZones(%d) error = %v", tt.hr, err)
		}
		if tt.zone == "" {
			if dist.Total() != 0 {
				t.Errorf("HRZones(%d) counted %d seconds, want none", tt.hr, dist.Total())
			}
			continue
		}
		if dist.Seconds(tt.zone) != 1 || dist.Total() != 1 {
			t.Errorf("HRZones(%d) = %v, want one second in %s", tt.hr, dist, tt.zone)
		}
	}
}

func TestHRZones_RecoveryRide(t *testing.T) {
	hr := make([]int, 100)
	for i := range hr {
		hr[i] = 95
	}

	dist, err := HRZones(hr, 190)
	if err != nil {
		t.Fatalf("HRZones() error = %v", err)
	}
	if dist.Seconds("Z1 (Erholung)") != 100 {
		t.Errorf("Z1 = %d, want 100", dist.Seconds("Z1 (Erholung)"))
	}
	if len(dist) != len(HRZoneTable) {
		t.Errorf("len(dist) = %d, want %d", len(dist), len(HRZoneTable))
	}
}

func TestHRZones_Errors(t *testing.T) {
	if _, err := HRZones([]int{120}, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("hrMax 0: error = %v, want ErrInvalidConfig", err)
	}
	if _, err := HRZones(nil, 190); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("no samples: error = %v, want ErrInsufficientData", err)
	}
}

func TestPowerZones(t *testing.T) {
	power := []float64{100, 150, 200, 240, 280, 350, 1000}

	dist, err := PowerZones(power, 250)
	if err != nil {
		t.Fatalf("PowerZones() error = %v", err)
	}

	for i, z := range PowerZoneTable {
		if dist[i].Label != z.Label {
			t.Errorf("dist[%d].Label = %q, want %q", i, dist[i].Label, z.Label)
		}
		if dist[i].Seconds != 1 {
			t.Errorf("%s = %d seconds, want 1", z.Label, dist[i].Seconds)
		}
	}
}

func TestPowerZones_TotalMatchesSamples(t *testing.T) {
	power := make([]float64, 500)
	for i := range power {
		power[i] = float64(i * 2)
	}

	dist, err := PowerZones(power, 260)
	if err != nil {
		t.Fatalf("PowerZones() error = %v", err)
	}
	if dist.Total() != len(power) {
		t.Errorf("Total() = %d, want %d", dist.Total(), len(power))
	}
}

func TestPowerZones_Errors(t *testing.T) {
	if _, err := PowerZones([]float64{200}, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ftp 0: error = %v, want ErrInvalidConfig", err)
	}
	if _, err := PowerZones(nil, 250); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("no samples: error = %v, want ErrInsufficientData", err)
	}
}

func TestZoneDistribution_Add(t *testing.T) {
	a := ZoneDistribution{{Label: "Z1", Seconds: 10}, {Label: "Z2", Seconds: 5}}
	b := ZoneDistribution{{Label: "Z2", Seconds: 7}, {Label: "Z3", Seconds: 1}}

	sum := a.Add(b)
	if sum.Seconds("Z1") != 10 || sum.Seconds("Z2") != 12 || sum.Seconds("Z3") != 1 {
		t.Errorf("Add() = %v, want Z1=10 Z2=12 Z3=1", sum)
	}
	if sum.Total() != 23 {
		t.Errorf("Total() = %d, want 23", sum.Total())
	}
}
