package analysis

import "math"

// Power metric constants
const (
	NPWindow       = 30  // samples in the normalized power rolling window
	MinNPSamples   = 180 // 3 minutes at 1 Hz
	MaxTSS         = 500 // single-session TSS above this is implausible
	MaxIF          = 1.5
	MaxEF          = 3.0
	MinEFHeartRate = 60
)

// BestPowerWindow names a rolling best-power window and the column it is stored in.
type BestPowerWindow struct {
	Column  string
	Seconds int
}

// BestPowerWindows lists the rolling windows evaluated for every activity.
var BestPowerWindows = []BestPowerWindow{
	{"max_5sec_power", 5},
	{"max_1min_power", 60},
	{"max_3min_power", 180},
	{"max_5min_power", 300},
	{"max_10min_power", 600},
	{"max_20min_power", 1200},
	{"max_30min_power", 1800},
}

// BestPowers holds the maximal mean power for each window in BestPowerWindows.
type BestPowers struct {
	Sec5  *float64 `json:"max_5sec_power,omitempty"`
	Min1  *float64 `json:"max_1min_power,omitempty"`
	Min3  *float64 `json:"max_3min_power,omitempty"`
	Min5  *float64 `json:"max_5min_power,omitempty"`
	Min10 *float64 `json:"max_10min_power,omitempty"`
	Min20 *float64 `json:"max_20min_power,omitempty"`
	Min30 *float64 `json:"max_30min_power,omitempty"`
}

// Get returns the value stored for a column name, or nil for unknown columns.
func (b *BestPowers) Get(column string) *float64 {
	if f := b.field(column); f != nil {
		return *f
	}
	return nil
}

// Set stores a value for a column name. Unknown columns are ignored.
func (b *BestPowers) Set(column string, v *float64) {
	if f := b.field(column); f != nil {
		*f = v
	}
}

func (b *BestPowers) field(column string) **float64 {
	switch column {
	case "max_5sec_power":
		return &b.Sec5
	case "max_1min_power":
		return &b.Min1
	case "max_3min_power":
		return &b.Min3
	case "max_5min_power":
		return &b.Min5
	case "max_10min_power":
		return &b.Min10
	case "max_20min_power":
		return &b.Min20
	case "max_30min_power":
		return &b.Min30
	}
	return nil
}

// NormalizedPower computes NP: the 4th root of the mean 4th power of the
// 30-sample rolling mean. Returns nil for fewer than MinNPSamples samples.
func NormalizedPower(power []float64) *float64 {
	if len(power) < MinNPSamples {
		return nil
	}
	means := rollingMeans(power, NPWindow)
	if len(means) == 0 {
		return nil
	}
	var sum float64
	for _, m := range means {
		sum += math.Pow(m, 4)
	}
	return roundPtr(math.Pow(sum/float64(len(means)), 0.25), 2)
}

// TSS computes the Training Stress Score. Returns nil when np or duration
// is missing or zero, or ftp is not positive.
func TSS(np *float64, durationS *int, ftp float64) *float64 {
	if np == nil || *np == 0 || !isFinite(*np) || durationS == nil || *durationS == 0 || ftp <= 0 {
		return nil
	}
	ratio := *np / ftp
	return roundPtr(float64(*durationS)/3600*ratio*ratio*100, 2)
}

// PlausibleTSS nils out TSS values above MaxTSS.
func PlausibleTSS(tss *float64) *float64 {
	if tss == nil || *tss > MaxTSS {
		return nil
	}
	return tss
}

// IntensityFactor computes NP/FTP rounded to 3 decimals, nil when NP is
// missing, FTP is not positive or the result is implausible (>= MaxIF).
func IntensityFactor(np *float64, ftp float64) *float64 {
	if np == nil || *np == 0 || !isFinite(*np) || ftp <= 0 {
		return nil
	}
	v := *np / ftp
	if v >= MaxIF {
		return nil
	}
	return roundPtr(v, 3)
}

// EfficiencyFactor computes NP/avg HR rounded to 3 decimals. Valid only for
// an average heart rate above MinEFHeartRate and a result below MaxEF.
func EfficiencyFactor(np, avgHR *float64) *float64 {
	if np == nil || *np == 0 || avgHR == nil || !isFinite(*avgHR) || *avgHR <= MinEFHeartRate {
		return nil
	}
	v := *np / *avgHR
	if !isFinite(v) || v >= MaxEF {
		return nil
	}
	return roundPtr(v, 3)
}

// RollingBestPowers computes the maximal full-window rolling mean for every
// window in BestPowerWindows. Windows longer than the series stay nil.
func RollingBestPowers(power []float64) BestPowers {
	var best BestPowers
	for _, w := range BestPowerWindows {
		best.Set(w.Column, maxRollingMean(power, w.Seconds))
	}
	return best
}

// ActivityMetrics are the scalar metrics derived from a single activity.
type ActivityMetrics struct {
	AvgPower         *float64
	AvgHeartRate     *float64
	NormalizedPower  *float64
	TSS              *float64
	IntensityFactor  *float64
	EfficiencyFactor *float64
	Best             BestPowers
}

// ComputeActivityMetrics derives the power and heart-rate metrics of an
// extraction. Implausible TSS, IF and EF values are nulled.
func ComputeActivityMetrics(ext *Extraction, ftp float64) ActivityMetrics {
	var m ActivityMetrics
	if ext == nil {
		return m
	}

	m.AvgHeartRate = ext.AverageHeartRate()
	if len(ext.Power) == 0 {
		return m
	}

	m.AvgPower = ext.AveragePower()
	m.NormalizedPower = NormalizedPower(ext.Power)
	m.TSS = PlausibleTSS(TSS(m.NormalizedPower, ext.DurationS, ftp))
	m.IntensityFactor = IntensityFactor(m.NormalizedPower, ftp)
	m.EfficiencyFactor = EfficiencyFactor(m.NormalizedPower, m.AvgHeartRate)
	m.Best = RollingBestPowers(ext.Power)

	return m
}

// rollingMeans returns the defined full-window rolling means of values.
// A window containing a non-finite value is undefined and skipped.
func rollingMeans(values []float64, window int) []float64 {
	if window <= 0 || len(values) < window {
		return nil
	}
	sums, bad := prefixSums(values)
	means := make([]float64, 0, len(values)-window+1)
	for i := window; i <= len(values); i++ {
		if bad[i]-bad[i-window] > 0 {
			continue
		}
		means = append(means, (sums[i]-sums[i-window])/float64(window))
	}
	return means
}

// maxRollingMean returns the maximal full-window rolling mean rounded to 2
// decimals, or nil when no window is defined.
func maxRollingMean(values []float64, window int) *float64 {
	means := rollingMeans(values, window)
	if len(means) == 0 {
		return nil
	}
	best := means[0]
	for _, m := range means[1:] {
		if m > best {
			best = m
		}
	}
	return roundPtr(best, 2)
}

// prefixSums returns running sums of the finite values and running counts
// of the non-finite ones, both with a leading zero.
func prefixSums(values []float64) ([]float64, []int) {
	sums := make([]float64, len(values)+1)
	bad := make([]int, len(values)+1)
	for i, v := range values {
		sums[i+1] = sums[i]
		bad[i+1] = bad[i]
		if isFinite(v) {
			sums[i+1] += v
		} else {
			bad[i+1]++
		}
	}
	return sums, bad
}
