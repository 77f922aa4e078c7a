package analysis

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrNoTimestamps is returned when a sample sequence carries no usable timestamp.
// No further processing of such a file is possible.
var ErrNoTimestamps = errors.New("no timestamped samples")

// ErrInsufficientData is returned when there is not enough data to produce a result.
// Callers treat it as "no artifact", not as a failure.
var ErrInsufficientData = errors.New("insufficient data")

// ErrInvalidConfig is returned when a user setting required by a computation is unusable.
var ErrInvalidConfig = errors.New("invalid user configuration")

// Duration bounds for a plausible activity, in seconds
const (
	MinDurationS = 60
	MaxDurationS = 8 * 3600

	// MovingSpeedThreshold is the speed (m/s) above which a sample counts as moving
	MovingSpeedThreshold = 0.5
)

// SamplePoint is one timestamped reading from a raw activity file.
// Optional fields are nil when the sensor did not report a value.
type SamplePoint struct {
	Timestamp time.Time
	Power     *float64 // watts
	HeartRate *int     // bpm
	Speed     *float64 // m/s
	Distance  *float64 // cumulative meters
}

// Extraction holds the validated series and scalar facts of one activity.
type Extraction struct {
	StartTime  time.Time
	EndTime    time.Time
	DurationS  *int     // moving seconds, nil when outside [MinDurationS, MaxDurationS]
	DistanceKm *float64 // max cumulative distance in km
	Samples    int

	// Power and HeartRate hold the non-missing values in time order.
	Power     []float64
	HeartRate []int
}

// ExtractSeries sorts the samples by time and derives the activity's core facts.
// Of several samples sharing a timestamp only the first in input order is kept.
// The input slice is not modified.
func ExtractSeries(points []SamplePoint) (*Extraction, error) {
	sorted := make([]SamplePoint, 0, len(points))
	for _, p := range points {
		if p.Timestamp.IsZero() {
			continue
		}
		sorted = append(sorted, p)
	}
	if len(sorted) == 0 {
		return nil, ErrNoTimestamps
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	sorted = dedupeTimestamps(sorted)

	ext := &Extraction{
		StartTime: sorted[0].Timestamp,
		EndTime:   sorted[len(sorted)-1].Timestamp,
		Samples:   len(sorted),
	}

	var (
		hasSpeed bool
		moving   int
		maxDist  float64
		hasDist  bool
	)

	for _, p := range sorted {
		if p.Power != nil && isFinite(*p.Power) && *p.Power >= 0 {
			ext.Power = append(ext.Power, *p.Power)
		}
		if p.HeartRate != nil {
			ext.HeartRate = append(ext.HeartRate, *p.HeartRate)
		}
		if p.Speed != nil && isFinite(*p.Speed) {
			hasSpeed = true
			if *p.Speed > MovingSpeedThreshold {
				moving++
			}
		}
		if p.Distance != nil && isFinite(*p.Distance) {
			if !hasDist || *p.Distance > maxDist {
				maxDist = *p.Distance
			}
			hasDist = true
		}
	}

	// Samples are 1 Hz, so the moving sample count is the moving time in seconds.
	duration := moving
	if !hasSpeed {
		duration = int(ext.EndTime.Sub(ext.StartTime).Seconds())
	}
	if duration >= MinDurationS && duration <= MaxDurationS {
		ext.DurationS = &duration
	}

	if hasDist && maxDist > 0 {
		km := round(maxDist/1000, 2)
		ext.DistanceKm = &km
	}

	return ext, nil
}

// dedupeTimestamps drops samples whose timestamp equals the previous one.
// points must be sorted.
func dedupeTimestamps(points []SamplePoint) []SamplePoint {
	out := points[:1]
	for _, p := range points[1:] {
		if !p.Timestamp.Equal(out[len(out)-1].Timestamp) {
			out = append(out, p)
		}
	}
	return out
}

// AverageHeartRate returns the mean heart rate rounded to 2 decimals, or nil.
func (e *Extraction) AverageHeartRate() *float64 {
	if e == nil || len(e.HeartRate) == 0 {
		return nil
	}
	var sum float64
	for _, hr := range e.HeartRate {
		sum += float64(hr)
	}
	avg := round(sum/float64(len(e.HeartRate)), 2)
	return &avg
}

// AveragePower returns the mean power rounded to 2 decimals, or nil.
func (e *Extraction) AveragePower() *float64 {
	if e == nil || len(e.Power) == 0 {
		return nil
	}
	avg := round(mean(e.Power), 2)
	return &avg
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

func roundPtr(x float64, places int) *float64 {
	if !isFinite(x) {
		return nil
	}
	v := round(x, places)
	return &v
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
