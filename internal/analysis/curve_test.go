package analysis

import (
	"errors"
	"math"
	"testing"
)

func TestPowerCurve(t *testing.T) {
	tests := []struct {
		name     string
		power    []float64
		expected PowerDurationCurve
	}{
		{
			name:     "four samples",
			power:    []float64{100, 300, 200, 50},
			expected: PowerDurationCurve{300, 250, 200, 162.5},
		},
		{
			name:     "constant",
			power:    []float64{200, 200, 200},
			expected: PowerDurationCurve{200, 200, 200},
		},
		{
			name:     "NaN samples dropped",
			power:    []float64{100, math.NaN(), 300, 200, 50},
			expected: PowerDurationCurve{300, 250, 200, 162.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PowerCurve(tt.power)
			if err != nil {
				t.Fatalf("PowerCurve() error = %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("len(curve) = %d, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if math.Abs(got[i]-tt.expected[i]) > 0.001 {
					t.Errorf("curve[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestPowerCurve_NonIncreasing(t *testing.T) {
	power := make([]float64, 600)
	for i := range power {
		power[i] = 150 + float64((i*37)%200)
	}

	curve, err := PowerCurve(power)
	if err != nil {
		t.Fatalf("PowerCurve() error = %v", err)
	}
	for i := 1; i < len(curve); i++ {
		if curve[i] > curve[i-1]+0.01 {
			t.Errorf("curve[%d] = %v exceeds curve[%d] = %v", i, curve[i], i-1, curve[i-1])
		}
	}
}

func TestPowerCurve_InsufficientData(t *testing.T) {
	for _, power := range [][]float64{nil, {1, 2}, {math.NaN(), math.NaN(), math.NaN()}} {
		if _, err := PowerCurve(power); !errors.Is(err, ErrInsufficientData) {
			t.Errorf("PowerCurve(%v) error = %v, want ErrInsufficientData", power, err)
		}
	}
}

func TestPowerDurationCurve_AtAndScaled(t *testing.T) {
	curve := PowerDurationCurve{350, 300, 280}

	if v, ok := curve.At(2); !ok || v != 300 {
		t.Errorf("At(2) = %v, %v; want 300, true", v, ok)
	}
	if _, ok := curve.At(0); ok {
		t.Error("At(0) should be out of range")
	}
	if _, ok := curve.At(4); ok {
		t.Error("At(4) should be out of range")
	}

	scaled := curve.Scaled(70)
	if scaled[0] != 5 || scaled[1] != 4.29 || scaled[2] != 4 {
		t.Errorf("Scaled(70) = %v, want [5 4.29 4]", scaled)
	}
	if curve.Scaled(0) != nil {
		t.Error("Scaled(0) should be nil")
	}
}

func TestMergeCurves(t *testing.T) {
	merged := MergeCurves([]PowerDurationCurve{
		{300, 250},
		{280, 260, 240},
	})

	expected := PowerDurationCurve{300, 260, 240}
	if len(merged) != len(expected) {
		t.Fatalf("len(merged) = %d, want %d", len(merged), len(expected))
	}
	for i := range expected {
		if merged[i] != expected[i] {
			t.Errorf("merged[%d] = %v, want %v", i, merged[i], expected[i])
		}
	}

	if MergeCurves(nil) != nil {
		t.Error("MergeCurves(nil) should be nil")
	}
}

func TestAllTimeCurve(t *testing.T) {
	series := [][]float64{
		constantPower(10, 900), // too short, ignored
		constantPower(40, 350),
		append(constantPower(20, 400), constantPower(40, 100)...),
	}

	curve, err := AllTimeCurve(series, 0)
	if err != nil {
		t.Fatalf("AllTimeCurve() error = %v", err)
	}
	if len(curve) != 60 {
		t.Fatalf("len(curve) = %d, want 60", len(curve))
	}
	if curve[0] != 400 {
		t.Errorf("curve[0] = %v, want 400 (900 W series must be skipped)", curve[0])
	}
	if curve[39] != 350 {
		t.Errorf("curve[39] = %v, want 350", curve[39])
	}
	if curve[59] != 200 {
		t.Errorf("curve[59] = %v, want 200", curve[59])
	}
}

func TestAllTimeCurve_Weighted(t *testing.T) {
	curve, err := AllTimeCurve([][]float64{constantPower(40, 350)}, 70)
	if err != nil {
		t.Fatalf("AllTimeCurve() error = %v", err)
	}
	for i, v := range curve {
		if v != 5 {
			t.Fatalf("curve[%d] = %v, want 5 W/kg", i, v)
		}
	}
}

func TestAllTimeCurve_InsufficientData(t *testing.T) {
	_, err := AllTimeCurve([][]float64{constantPower(29, 200)}, 0)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("AllTimeCurve() error = %v, want ErrInsufficientData", err)
	}
}

func TestLastActivityCurve(t *testing.T) {
	newestFirst := [][]float64{
		constantPower(20, 500), // newest but too short
		constantPower(40, 220),
		constantPower(60, 300),
	}

	curve, err := LastActivityCurve(newestFirst, 0)
	if err != nil {
		t.Fatalf("LastActivityCurve() error = %v", err)
	}
	if len(curve) != 40 || curve[0] != 220 {
		t.Errorf("LastActivityCurve() = %d points starting at %v, want 40 points at 220", len(curve), curve[0])
	}

	if _, err := LastActivityCurve(newestFirst[:1], 0); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("LastActivityCurve() error = %v, want ErrInsufficientData", err)
	}
}
