package analysis

import "time"

// Training load time constants in days
const (
	CTLTimeConstant = 42.0
	ATLTimeConstant = 7.0
)

// ActivityLoad is the stress of one activity.
type ActivityLoad struct {
	StartTime time.Time
	TSS       *float64
}

// TrainingLoadPoint represents CTL/ATL/TSB for a day
type TrainingLoadPoint struct {
	Date time.Time `json:"date"`
	TSS  float64   `json:"tss"` // summed TSS of the day
	CTL  float64   `json:"ctl"` // Chronic Training Load (42-day) - "Fitness"
	ATL  float64   `json:"atl"` // Acute Training Load (7-day) - "Fatigue"
	TSB  float64   `json:"tsb"` // Training Stress Balance (CTL - ATL) - "Form"
}

// CalculateTrainingLoad computes CTL/ATL/TSB for every calendar day (UTC)
// from the first day with positive TSS through today. Days without
// activities count as zero load. Returns nil if no activity has TSS > 0.
func CalculateTrainingLoad(loads []ActivityLoad, today time.Time) []TrainingLoadPoint {
	daily := make(map[time.Time]float64)
	var first, last time.Time
	for _, l := range loads {
		if l.StartTime.IsZero() || l.TSS == nil || !isFinite(*l.TSS) || *l.TSS <= 0 {
			continue
		}
		day := utcDay(l.StartTime)
		daily[day] += *l.TSS // Sum multiple activities on same day
		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}
	if len(daily) == 0 {
		return nil
	}

	end := utcDay(today)
	if end.Before(last) {
		end = last
	}

	var (
		points   []TrainingLoadPoint
		ctl, atl float64
	)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		tss := daily[d] // 0 if no activity

		ctl += (tss - ctl) / CTLTimeConstant
		atl += (tss - atl) / ATLTimeConstant

		points = append(points, TrainingLoadPoint{
			Date: d,
			TSS:  tss,
			CTL:  ctl,
			ATL:  atl,
			TSB:  ctl - atl,
		})
	}

	return points
}

// CurrentLoad returns the most recent point of a series
func CurrentLoad(points []TrainingLoadPoint) TrainingLoadPoint {
	if len(points) == 0 {
		return TrainingLoadPoint{}
	}
	return points[len(points)-1]
}

// FormDescription returns a human-readable description of TSB
func FormDescription(tsb float64) string {
	switch {
	case tsb > 25:
		return "Very fresh (possibly detrained)"
	case tsb > 10:
		return "Fresh and ready to race"
	case tsb > 0:
		return "Neutral - good for training"
	case tsb > -10:
		return "Slightly fatigued"
	case tsb > -20:
		return "Tired but building fitness"
	default:
		return "Overloaded - rest needed"
	}
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
