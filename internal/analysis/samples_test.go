package analysis

import (
	"errors"
	"math"
	"testing"
	"time"
)

// Helper functions for creating test data
func floatPtr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}

var testStart = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// makeRide builds n 1 Hz samples with constant power, heart rate and speed.
func makeRide(n int, power float64, hr int, speed float64) []SamplePoint {
	points := make([]SamplePoint, n)
	for i := range points {
		points[i] = SamplePoint{
			Timestamp: testStart.Add(time.Duration(i) * time.Second),
			Power:     floatPtr(power),
			HeartRate: intPtr(hr),
			Speed:     floatPtr(speed),
			Distance:  floatPtr(float64(i) * speed),
		}
	}
	return points
}

func constantPower(n int, p float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func TestExtractSeries_SortsAndCountsMovingTime(t *testing.T) {
	points := makeRide(150, 200, 140, 5.0)
	// 30 stationary samples
	for i := 120; i < 150; i++ {
		points[i].Speed = floatPtr(0)
	}
	// reverse the input order
	reversed := make([]SamplePoint, len(points))
	for i, p := range points {
		reversed[len(points)-1-i] = p
	}

	ext, err := ExtractSeries(reversed)
	if err != nil {
		t.Fatalf("ExtractSeries() error = %v", err)
	}

	if !ext.StartTime.Equal(testStart) {
		t.Errorf("StartTime = %v, want %v", ext.StartTime, testStart)
	}
	if ext.DurationS == nil || *ext.DurationS != 120 {
		t.Errorf("DurationS = %v, want 120", ext.DurationS)
	}
	if len(ext.Power) != 150 {
		t.Errorf("len(Power) = %d, want 150", len(ext.Power))
	}
	if !reversed[0].Timestamp.After(reversed[1].Timestamp) {
		t.Error("input slice was modified")
	}
}

func TestExtractSeries_DropsDuplicateTimestamps(t *testing.T) {
	points := makeRide(100, 200, 140, 5.0)
	// repeat ten samples with a different reading at the same instant
	for i := 0; i < 10; i++ {
		dup := points[i]
		dup.Power = floatPtr(900)
		points = append(points, dup)
	}

	ext, err := ExtractSeries(points)
	if err != nil {
		t.Fatalf("ExtractSeries() error = %v", err)
	}
	if ext.Samples != 100 {
		t.Errorf("Samples = %d, want 100", ext.Samples)
	}
	if len(ext.Power) != 100 {
		t.Fatalf("len(Power) = %d, want 100", len(ext.Power))
	}
	for i, p := range ext.Power {
		if p != 200 {
			t.Fatalf("Power[%d] = %v, want the first reading 200", i, p)
		}
	}
	if ext.DurationS == nil || *ext.DurationS != 100 {
		t.Errorf("DurationS = %v, want 100", ext.DurationS)
	}
}

func TestExtractSeries_Duration(t *testing.T) {
	tests := []struct {
		name     string
		points   func() []SamplePoint
		expected *int
	}{
		{
			name: "no speed falls back to elapsed time",
			points: func() []SamplePoint {
				p := makeRide(300, 200, 140, 0)
				for i := range p {
					p[i].Speed = nil
				}
				return p
			},
			expected: intPtr(299),
		},
		{
			name: "moving time below minimum is nulled",
			points: func() []SamplePoint {
				return makeRide(30, 200, 140, 5)
			},
			expected: nil,
		},
		{
			name: "speed present but never moving",
			points: func() []SamplePoint {
				return makeRide(600, 200, 140, 0.2)
			},
			expected: nil,
		},
		{
			name: "elapsed time above maximum is nulled",
			points: func() []SamplePoint {
				return []SamplePoint{
					{Timestamp: testStart},
					{Timestamp: testStart.Add(9 * time.Hour)},
				}
			},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := ExtractSeries(tt.points())
			if err != nil {
				t.Fatalf("ExtractSeries() error = %v", err)
			}
			switch {
			case tt.expected == nil && ext.DurationS != nil:
				t.Errorf("DurationS = %d, want nil", *ext.DurationS)
			case tt.expected != nil && (ext.DurationS == nil || *ext.DurationS != *tt.expected):
				t.Errorf("DurationS = %v, want %d", ext.DurationS, *tt.expected)
			}
		})
	}
}

func TestExtractSeries_Distance(t *testing.T) {
	points := makeRide(100, 200, 140, 5)
	points[50].Distance = floatPtr(12345.6)

	ext, err := ExtractSeries(points)
	if err != nil {
		t.Fatalf("ExtractSeries() error = %v", err)
	}
	if ext.DistanceKm == nil || math.Abs(*ext.DistanceKm-12.35) > 1e-9 {
		t.Errorf("DistanceKm = %v, want 12.35", ext.DistanceKm)
	}

	for i := range points {
		points[i].Distance = nil
	}
	ext, _ = ExtractSeries(points)
	if ext.DistanceKm != nil {
		t.Errorf("DistanceKm = %v, want nil without distance data", *ext.DistanceKm)
	}
}

func TestExtractSeries_NoTimestamps(t *testing.T) {
	tests := []struct {
		name   string
		points []SamplePoint
	}{
		{"empty", nil},
		{"zero timestamps only", []SamplePoint{{Power: floatPtr(100)}, {Power: floatPtr(200)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractSeries(tt.points)
			if !errors.Is(err, ErrNoTimestamps) {
				t.Errorf("ExtractSeries() error = %v, want ErrNoTimestamps", err)
			}
		})
	}
}

func TestExtraction_Averages(t *testing.T) {
	ext := &Extraction{
		Power:     []float64{100, 200, 301},
		HeartRate: []int{100, 101, 102},
	}

	if got := ext.AverageHeartRate(); got == nil || *got != 101 {
		t.Errorf("AverageHeartRate() = %v, want 101", got)
	}
	if got := ext.AveragePower(); got == nil || *got != 200.33 {
		t.Errorf("AveragePower() = %v, want 200.33", got)
	}

	empty := &Extraction{}
	if empty.AverageHeartRate() != nil || empty.AveragePower() != nil {
		t.Error("averages of an empty extraction should be nil")
	}
}
