package samplefile

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/tormoder/fit"

	"ridemetrics/internal/analysis"
)

// ReadFIT decodes the record messages of a FIT activity file into samples.
func ReadFIT(path string) ([]analysis.SamplePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoded, err := fit.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}

	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	points := make([]analysis.SamplePoint, 0, len(activity.Records))
	for _, rec := range activity.Records {
		if p, ok := pointFromRecord(rec); ok {
			points = append(points, p)
		}
	}
	if len(points) == 0 {
		return nil, ErrNoTimestamps
	}
	return points, nil
}

// pointFromRecord converts one record message. Records without a valid
// timestamp are dropped.
func pointFromRecord(rec *fit.RecordMsg) (analysis.SamplePoint, bool) {
	if rec == nil || !validTime(rec.Timestamp) {
		return analysis.SamplePoint{}, false
	}

	p := analysis.SamplePoint{Timestamp: rec.Timestamp.UTC()}
	if rec.Power != math.MaxUint16 {
		w := float64(rec.Power)
		p.Power = &w
	}
	if rec.HeartRate != math.MaxUint8 {
		hr := int(rec.HeartRate)
		p.HeartRate = &hr
	}
	if speed, ok := recordSpeed(rec); ok {
		p.Speed = &speed
	}
	if d := rec.GetDistanceScaled(); isFinite(d) && d >= 0 {
		p.Distance = &d
	}
	return p, true
}

// recordSpeed prefers enhanced speed and falls back to the 16-bit field.
func recordSpeed(rec *fit.RecordMsg) (float64, bool) {
	speed := rec.GetEnhancedSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed, true
	}
	speed = rec.GetSpeedScaled()
	if isFinite(speed) && speed >= 0 {
		return speed, true
	}
	return 0, false
}

func validTime(t time.Time) bool {
	return !t.IsZero() && !fit.IsBaseTime(t)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
