package analysis

// Curve construction thresholds
const (
	MinCurveSamples    = 3  // shortest series a single-activity curve is built for
	MinAllTimeSamples  = 30 // shortest series contributing to the all-time curve
	MinLastCurvePoints = 5
)

// PowerDurationCurve holds the best mean power for every duration: index i
// is the best mean over a window of i+1 seconds. 1 Hz sampling is assumed.
type PowerDurationCurve []float64

// At returns the best mean power for a duration in seconds.
func (c PowerDurationCurve) At(durationS int) (float64, bool) {
	if durationS < 1 || durationS > len(c) {
		return 0, false
	}
	return c[durationS-1], true
}

// Scaled returns a copy of the curve divided by divisor and rounded to 2
// decimals. Used for per-kilogram views of a stored (unweighted) curve.
func (c PowerDurationCurve) Scaled(divisor float64) PowerDurationCurve {
	if divisor <= 0 {
		return nil
	}
	out := make(PowerDurationCurve, len(c))
	for i, v := range c {
		out[i] = round(v/divisor, 2)
	}
	return out
}

// PowerCurve computes the single-activity power-duration curve. Missing
// (non-finite) samples are dropped first. Returns ErrInsufficientData for
// fewer than MinCurveSamples values.
func PowerCurve(power []float64) (PowerDurationCurve, error) {
	clean := finiteValues(power)
	if len(power) < MinCurveSamples || len(clean) == 0 {
		return nil, ErrInsufficientData
	}

	n := len(clean)
	sums, _ := prefixSums(clean)
	curve := make(PowerDurationCurve, n)
	for w := 1; w <= n; w++ {
		best := sums[w]
		for i := w + 1; i <= n; i++ {
			if s := sums[i] - sums[i-w]; s > best {
				best = s
			}
		}
		curve[w-1] = round(best/float64(w), 2)
	}
	return curve, nil
}

// MergeCurves takes the per-duration maximum across curves. A curve
// contributes only to the durations it covers.
func MergeCurves(curves []PowerDurationCurve) PowerDurationCurve {
	var longest int
	for _, c := range curves {
		if len(c) > longest {
			longest = len(c)
		}
	}
	if longest == 0 {
		return nil
	}

	merged := make(PowerDurationCurve, longest)
	covered := make([]bool, longest)
	for _, c := range curves {
		for i, v := range c {
			if !covered[i] || v > merged[i] {
				merged[i] = v
				covered[i] = true
			}
		}
	}
	return merged
}

// AllTimeCurve builds the user's all-time curve from the power series of
// every activity. Series shorter than MinAllTimeSamples are skipped. A
// positive weightKg divides each sample before the curve is computed;
// persisted curves must be built with weightKg 0.
func AllTimeCurve(series [][]float64, weightKg float64) (PowerDurationCurve, error) {
	var curves []PowerDurationCurve
	for _, power := range series {
		if len(power) < MinAllTimeSamples {
			continue
		}
		curve, err := PowerCurve(perKilogram(power, weightKg))
		if err != nil {
			continue
		}
		curves = append(curves, curve)
	}
	if len(curves) == 0 {
		return nil, ErrInsufficientData
	}
	return MergeCurves(curves), nil
}

// LastActivityCurve returns the curve of the most recent qualifying
// activity. seriesNewestFirst must be ordered most recent first.
func LastActivityCurve(seriesNewestFirst [][]float64, weightKg float64) (PowerDurationCurve, error) {
	for _, power := range seriesNewestFirst {
		if len(power) < MinAllTimeSamples {
			continue
		}
		curve, err := PowerCurve(perKilogram(power, weightKg))
		if err != nil || len(curve) < MinLastCurvePoints {
			continue
		}
		return curve, nil
	}
	return nil, ErrInsufficientData
}

func perKilogram(power []float64, weightKg float64) []float64 {
	if weightKg <= 0 {
		return power
	}
	out := make([]float64, len(power))
	for i, p := range power {
		out[i] = p / weightKg
	}
	return out
}

func finiteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}
