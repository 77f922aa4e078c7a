package analysis

import (
	"math"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestCalculateTrainingLoad_SingleActivity(t *testing.T) {
	loads := []ActivityLoad{{StartTime: day(0).Add(9 * time.Hour), TSS: floatPtr(100)}}

	points := CalculateTrainingLoad(loads, day(0))
	if len(points) != 1 {
		t.Fatalf("len(points) = %d, want 1", len(points))
	}

	p := points[0]
	if math.Abs(p.CTL-100.0/42) > 1e-9 {
		t.Errorf("CTL = %v, want %v", p.CTL, 100.0/42)
	}
	if math.Abs(p.ATL-100.0/7) > 1e-9 {
		t.Errorf("ATL = %v, want %v", p.ATL, 100.0/7)
	}
	if math.Abs(p.TSB-(p.CTL-p.ATL)) > 1e-9 {
		t.Errorf("TSB = %v, want CTL-ATL", p.TSB)
	}
}

func TestCalculateTrainingLoad_GapDecay(t *testing.T) {
	loads := []ActivityLoad{
		{StartTime: day(0), TSS: floatPtr(100)},
		{StartTime: day(11), TSS: floatPtr(100)},
	}

	points := CalculateTrainingLoad(loads, day(11))
	if len(points) != 12 {
		t.Fatalf("len(points) = %d, want 12", len(points))
	}

	expected := 100.0 / 42 * math.Pow(41.0/42, 10)
	if math.Abs(points[10].CTL-expected) > 1e-9 {
		t.Errorf("CTL after 10 rest days = %v, want %v", points[10].CTL, expected)
	}
	for i := 1; i <= 10; i++ {
		if points[i].TSS != 0 {
			t.Errorf("points[%d].TSS = %v, want 0", i, points[i].TSS)
		}
	}
	if points[11].TSS != 100 {
		t.Errorf("points[11].TSS = %v, want 100", points[11].TSS)
	}
}

func TestCalculateTrainingLoad_Calendar(t *testing.T) {
	tests := []struct {
		name   string
		loads  []ActivityLoad
		today  time.Time
		points int
		first  time.Time
	}{
		{
			name:   "zero filled through today",
			loads:  []ActivityLoad{{StartTime: day(0), TSS: floatPtr(50)}},
			today:  day(4).Add(15 * time.Hour),
			points: 5,
			first:  day(0),
		},
		{
			name: "same day summed",
			loads: []ActivityLoad{
				{StartTime: day(2).Add(7 * time.Hour), TSS: floatPtr(40)},
				{StartTime: day(2).Add(18 * time.Hour), TSS: floatPtr(60)},
			},
			today:  day(2),
			points: 1,
			first:  day(2),
		},
		{
			name: "non-positive and missing TSS ignored",
			loads: []ActivityLoad{
				{StartTime: day(0), TSS: floatPtr(0)},
				{StartTime: day(1), TSS: floatPtr(-5)},
				{StartTime: day(2), TSS: nil},
				{StartTime: day(3), TSS: floatPtr(80)},
			},
			today:  day(3),
			points: 1,
			first:  day(3),
		},
		{
			name:   "activity after today extends the range",
			loads:  []ActivityLoad{{StartTime: day(0), TSS: floatPtr(50)}, {StartTime: day(6), TSS: floatPtr(50)}},
			today:  day(3),
			points: 7,
			first:  day(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := CalculateTrainingLoad(tt.loads, tt.today)
			if len(points) != tt.points {
				t.Fatalf("len(points) = %d, want %d", len(points), tt.points)
			}
			if !points[0].Date.Equal(tt.first) {
				t.Errorf("first date = %v, want %v", points[0].Date, tt.first)
			}
			for i := 1; i < len(points); i++ {
				if points[i].Date.Sub(points[i-1].Date) != 24*time.Hour {
					t.Errorf("gap between points %d and %d", i-1, i)
				}
			}
		})
	}
}

func TestCalculateTrainingLoad_SameDaySum(t *testing.T) {
	loads := []ActivityLoad{
		{StartTime: day(2).Add(7 * time.Hour), TSS: floatPtr(40)},
		{StartTime: day(2).Add(18 * time.Hour), TSS: floatPtr(60)},
	}
	points := CalculateTrainingLoad(loads, day(2))
	if points[0].TSS != 100 {
		t.Errorf("TSS = %v, want 100", points[0].TSS)
	}
}

func TestCalculateTrainingLoad_Empty(t *testing.T) {
	if points := CalculateTrainingLoad(nil, day(0)); points != nil {
		t.Errorf("CalculateTrainingLoad(nil) = %v, want nil", points)
	}
	if points := CalculateTrainingLoad([]ActivityLoad{{StartTime: day(0), TSS: floatPtr(0)}}, day(0)); points != nil {
		t.Errorf("zero TSS only = %v, want nil", points)
	}
}

func TestCurrentLoad(t *testing.T) {
	if got := CurrentLoad(nil); got.CTL != 0 || !got.Date.IsZero() {
		t.Errorf("CurrentLoad(nil) = %+v, want zero value", got)
	}

	points := []TrainingLoadPoint{{Date: day(0), CTL: 10}, {Date: day(1), CTL: 12}}
	if got := CurrentLoad(points); got.CTL != 12 {
		t.Errorf("CurrentLoad().CTL = %v, want 12", got.CTL)
	}
}

func TestFormDescription(t *testing.T) {
	tests := []struct {
		tsb      float64
		expected string
	}{
		{30, "Very fresh (possibly detrained)"},
		{15, "Fresh and ready to race"},
		{5, "Neutral - good for training"},
		{-5, "Slightly fatigued"},
		{-15, "Tired but building fitness"},
		{-25, "Overloaded - rest needed"},
	}

	for _, tt := range tests {
		if got := FormDescription(tt.tsb); got != tt.expected {
			t.Errorf("FormDescription(%v) = %q, want %q", tt.tsb, got, tt.expected)
		}
	}
}
