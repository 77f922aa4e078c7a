package analysis

import (
	"sort"
	"time"
)

// ActivitySummary is the stored per-activity data the history views are built from.
type ActivitySummary struct {
	StartTime       time.Time
	NormalizedPower *float64
	AvgHeartRate    *float64
	IntensityFactor *float64
	Best            BestPowers
}

// EfficiencyPoint is NP/HR for one activity
type EfficiencyPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	EfficiencyFactor float64   `json:"efficiency_factor"`
	NormalizedPower  float64   `json:"normalized_power"`
	AvgHeartRate     float64   `json:"avg_heart_rate"`
	IntensityFactor  float64   `json:"intensity_factor"`
}

// EfficiencySeries returns EF = NP/HR over time for every activity that has
// NP, heart rate and IF.
func EfficiencySeries(rows []ActivitySummary) []EfficiencyPoint {
	var out []EfficiencyPoint
	for _, r := range rows {
		if r.NormalizedPower == nil || r.AvgHeartRate == nil || r.IntensityFactor == nil || *r.AvgHeartRate == 0 {
			continue
		}
		ef := *r.NormalizedPower / *r.AvgHeartRate
		if !isFinite(ef) {
			continue
		}
		out = append(out, EfficiencyPoint{
			Timestamp:        r.StartTime,
			EfficiencyFactor: round(ef, 3),
			NormalizedPower:  *r.NormalizedPower,
			AvgHeartRate:     *r.AvgHeartRate,
			IntensityFactor:  *r.IntensityFactor,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// BestOf returns, per window, the maximum over all activities.
func BestOf(rows []ActivitySummary) BestPowers {
	var best BestPowers
	for _, w := range BestPowerWindows {
		for _, r := range rows {
			v := r.Best.Get(w.Column)
			if v == nil {
				continue
			}
			if cur := best.Get(w.Column); cur == nil || *v > *cur {
				val := *v
				best.Set(w.Column, &val)
			}
		}
	}
	return best
}

// TimedPower is a best-power value at an activity's start time
type TimedPower struct {
	Timestamp time.Time `json:"start_time"`
	Power     float64   `json:"power"`
}

// PowerTimeSeries returns, for every window from one minute up, the
// best-power value of each activity over time.
func PowerTimeSeries(rows []ActivitySummary) map[string][]TimedPower {
	sorted := make([]ActivitySummary, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	series := make(map[string][]TimedPower)
	for _, w := range BestPowerWindows {
		if w.Seconds < 60 {
			continue
		}
		points := []TimedPower{}
		for _, r := range sorted {
			if r.StartTime.IsZero() {
				continue
			}
			if v := r.Best.Get(w.Column); v != nil {
				points = append(points, TimedPower{Timestamp: r.StartTime, Power: *v})
			}
		}
		series[w.Column] = points
	}
	return series
}
