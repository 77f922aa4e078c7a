package analysis

import (
	"errors"
	"math"
)

// ErrCurveMismatch is returned when the fitted duration domain and the curve
// section disagree in length.
var ErrCurveMismatch = errors.New("duration domain does not match curve section")

// ErrInvalidCurve is returned when a curve contains non-finite values in the
// fitted domain.
var ErrInvalidCurve = errors.New("curve contains non-numeric values")

// Critical power model domain
const (
	MinCPCurvePoints = 300 // 5 minutes of durations
	CPMinDurationS   = 5
	CPMaxDurationS   = 3600
	CPModelSource    = "power_curve"

	MinActivityCPSamples = 600
)

// ActivityCPWindows are the rolling windows averaged into the per-activity
// critical power proxy.
var ActivityCPWindows = []int{180, 300, 1200}

// CriticalPowerModel is the two-parameter fit P(t) = W'/t + CP.
type CriticalPowerModel struct {
	CriticalPower float64   `json:"critical_power"`
	WPrime        float64   `json:"w_prime"`
	Durations     []int     `json:"durations"`
	Actual        []float64 `json:"actual"`
	Predicted     []float64 `json:"predicted"`
	MinSec        int       `json:"min_sec"`
	MaxSec        int       `json:"max_sec"`
	Source        string    `json:"source"`
}

// FitCriticalPower fits CP and W' by ordinary least squares of the curve
// against 1/t over durations [5, min(len, 3600)] seconds.
func FitCriticalPower(curve PowerDurationCurve) (*CriticalPowerModel, error) {
	if len(curve) < MinCPCurvePoints {
		return nil, ErrInsufficientData
	}

	maxSec := len(curve)
	if maxSec > CPMaxDurationS {
		maxSec = CPMaxDurationS
	}

	durations := make([]int, 0, maxSec-CPMinDurationS+1)
	for t := CPMinDurationS; t <= maxSec; t++ {
		durations = append(durations, t)
	}
	section := curve[CPMinDurationS-1 : maxSec]
	if len(durations) != len(section) {
		return nil, ErrCurveMismatch
	}

	n := float64(len(durations))
	var sumX, sumY float64
	for i, t := range durations {
		y := section[i]
		if !isFinite(y) {
			return nil, ErrInvalidCurve
		}
		sumX += 1 / float64(t)
		sumY += y
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for i, t := range durations {
		dx := 1/float64(t) - meanX
		sxx += dx * dx
		sxy += dx * (section[i] - meanY)
	}
	if sxx == 0 {
		return nil, ErrInsufficientData
	}

	wPrime := sxy / sxx
	cp := meanY - wPrime*meanX

	model := &CriticalPowerModel{
		CriticalPower: round(cp, 1),
		WPrime:        round(wPrime, 1),
		Durations:     durations,
		Actual:        make([]float64, len(durations)),
		Predicted:     make([]float64, len(durations)),
		MinSec:        CPMinDurationS,
		MaxSec:        maxSec,
		Source:        CPModelSource,
	}
	for i, t := range durations {
		model.Actual[i] = round(section[i], 1)
		model.Predicted[i] = round(wPrime/float64(t)+cp, 1)
	}

	return model, nil
}

// ActivityCriticalPower estimates a single-session CP proxy: the mean of the
// best rolling means over ActivityCPWindows, rounded to 1 decimal. Requires
// at least MinActivityCPSamples power samples.
func ActivityCriticalPower(power []float64) *float64 {
	if len(power) < MinActivityCPSamples {
		return nil
	}
	var estimates []float64
	for _, w := range ActivityCPWindows {
		means := rollingMeans(power, w)
		if len(means) == 0 {
			continue
		}
		best := math.Inf(-1)
		for _, m := range means {
			best = math.Max(best, m)
		}
		estimates = append(estimates, best)
	}
	if len(estimates) == 0 {
		return nil
	}
	return roundPtr(mean(estimates), 1)
}
