package analysis

import (
	"math"
	"sort"
	"time"
)

// VO2max estimator parameters
const (
	vo2PeakFactor      = 23.0  // NP/HR ratio scaling (tier 1)
	vo2PowerFactor     = 15.0  // ml/kg/min per W/kg of 5-10 min power (tier 2)
	vo2DriftPerDay     = -0.03 // decay of the last estimate per day (tier 3)
	vo2MinRelative     = 40.0
	vo2MaxRelative     = 75.0
	vo2MinHeartRate    = 90.0
	vo2MaxPowerHRRatio = 3.0
	vo2MaxJump         = 400.0 // ml/min against the mean of recent estimates
	vo2History         = 3
	vo2SmoothingWindow = 5
)

// VO2Input is the per-activity data the VO2max estimator consumes.
type VO2Input struct {
	StartTime       time.Time
	NormalizedPower *float64
	AvgHeartRate    *float64
	IntensityFactor *float64
	DurationS       *int
	Max5MinPower    *float64
	Max10MinPower   *float64
}

// VO2maxEstimate is one smoothed estimate. Absolute is in ml/min, Relative
// in ml/kg/min.
type VO2maxEstimate struct {
	Timestamp time.Time `json:"timestamp"`
	Absolute  float64   `json:"vo2max_abs"`
	Relative  float64   `json:"vo2max"`
}

type vo2Estimator struct {
	weight float64
	hrMax  float64

	accepted []float64 // unrounded accepted absolute values, in order
	results  []VO2maxEstimate
}

// EstimateVO2max runs the three-tier estimator over activities in time
// order and returns the accepted estimates smoothed by a centered rolling
// median. Rows lacking NP, HR, IF or duration are ignored.
func EstimateVO2max(rows []VO2Input, weightKg, hrMax float64) ([]VO2maxEstimate, error) {
	if weightKg <= 0 || hrMax <= 0 || !isFinite(weightKg) || !isFinite(hrMax) {
		return nil, ErrInvalidConfig
	}

	sorted := make([]VO2Input, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})

	est := &vo2Estimator{weight: weightKg, hrMax: hrMax}
	for _, row := range sorted {
		if row.NormalizedPower == nil || row.AvgHeartRate == nil ||
			row.IntensityFactor == nil || row.DurationS == nil || *row.AvgHeartRate <= 0 {
			continue
		}
		est.process(row)
	}

	if len(est.results) == 0 {
		return nil, ErrInsufficientData
	}
	return smoothVO2max(est.results, weightKg), nil
}

func (e *vo2Estimator) process(row VO2Input) {
	np := *row.NormalizedPower
	hr := *row.AvgHeartRate
	ifv := *row.IntensityFactor
	dur := float64(*row.DurationS)
	hrFrac := hr / e.hrMax

	// Tier 1: NP/HR ratio on short, hard efforts
	if ifv >= 0.75 && dur >= 300 && dur <= 1500 && hrFrac >= 0.75 {
		abs := (np / hr) * ifv * e.weight * vo2PeakFactor
		if e.valid(abs/e.weight, abs, hr, np) {
			e.accept(row.StartTime, e.blend(abs))
			return
		}
	}

	// Tier 2: peak 5 then 10 minute power
	for _, peak := range []*float64{row.Max5MinPower, row.Max10MinPower} {
		if peak == nil || !isFinite(*peak) || *peak <= 0 {
			continue
		}
		rel := vo2PowerFactor * *peak / e.weight
		abs := rel * e.weight
		if e.valid(rel, abs, hr, np) {
			e.accept(row.StartTime, e.blend(abs))
			return
		}
	}

	// Tier 3: decay of the last accepted estimate on long steady rides
	if len(e.accepted) == 0 || ifv < 0.6 || dur < 1500 || hrFrac < 0.65 {
		return
	}
	last := e.results[len(e.results)-1].Timestamp
	days := math.Floor(row.StartTime.Sub(last).Hours() / 24)
	abs := math.Max(0, e.accepted[len(e.accepted)-1]+vo2DriftPerDay*days)
	if e.valid(abs/e.weight, abs, hr, np) {
		e.accept(row.StartTime, abs)
	}
}

// valid applies the plausibility gate shared by all tiers.
func (e *vo2Estimator) valid(rel, abs, hr, np float64) bool {
	if rel < vo2MinRelative || rel > vo2MaxRelative {
		return false
	}
	if hr < vo2MinHeartRate || np/hr > vo2MaxPowerHRRatio {
		return false
	}
	if len(e.accepted) > 0 {
		recent := e.accepted
		if len(recent) > vo2History {
			recent = recent[len(recent)-vo2History:]
		}
		if math.Abs(abs-mean(recent)) > vo2MaxJump {
			return false
		}
	}
	return true
}

// blend averages a new value with up to the two previous accepted ones.
func (e *vo2Estimator) blend(abs float64) float64 {
	prev := e.accepted
	if len(prev) > vo2History-1 {
		prev = prev[len(prev)-(vo2History-1):]
	}
	sum := abs
	for _, v := range prev {
		sum += v
	}
	return sum / float64(len(prev)+1)
}

func (e *vo2Estimator) accept(ts time.Time, abs float64) {
	e.accepted = append(e.accepted, abs)
	e.results = append(e.results, VO2maxEstimate{Timestamp: ts, Absolute: round(abs, 1)})
}

// smoothVO2max applies a centered rolling median (window 5, min 1 sample)
// to the rounded absolute series and derives the relative values.
func smoothVO2max(results []VO2maxEstimate, weightKg float64) []VO2maxEstimate {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})

	raw := make([]float64, len(results))
	for i, r := range results {
		raw[i] = r.Absolute
	}

	half := vo2SmoothingWindow / 2
	out := make([]VO2maxEstimate, len(results))
	for i, r := range results {
		lo, hi := i-half, i+half+1
		if lo < 0 {
			lo = 0
		}
		if hi > len(raw) {
			hi = len(raw)
		}
		abs := round(median(raw[lo:hi]), 1)
		out[i] = VO2maxEstimate{
			Timestamp: r.Timestamp,
			Absolute:  abs,
			Relative:  round(abs/weightKg, 1),
		}
	}
	return out
}

func median(values []float64) float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
