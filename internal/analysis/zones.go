package analysis

import "math"

// Zone is a band of a threshold metric, as fractions [Low, High).
type Zone struct {
	Label string
	Low   float64
	High  float64
}

// HRZoneTable defines heart-rate zones as fractions of max heart rate.
// Samples at or above max heart rate fall in no zone.
var HRZoneTable = []Zone{
	{"Z1 (Erholung)", 0.50, 0.60},
	{"Z2 (Grundlage)", 0.60, 0.70},
	{"Z3 (GA2)", 0.70, 0.80},
	{"Z4 (Schwelle)", 0.80, 0.90},
	{"Z5 (VO2max)", 0.90, 1.00},
}

// PowerZoneTable defines power zones as fractions of FTP. The top zone is
// unbounded.
var PowerZoneTable = []Zone{
	{"Z1 (Recovery)", 0, 0.55},
	{"Z2 (Endurance)", 0.55, 0.75},
	{"Z3 (Tempo)", 0.75, 0.90},
	{"Z4 (Schwelle)", 0.90, 1.05},
	{"Z5 (VO2max)", 1.05, 1.20},
	{"Z6 (Anaerob)", 1.20, 1.50},
	{"Z7 (Sprint)", 1.50, math.Inf(1)},
}

// ZoneSeconds is the time spent in one zone.
type ZoneSeconds struct {
	Label   string `json:"zone"`
	Seconds int    `json:"seconds"`
}

// ZoneDistribution lists seconds per zone in table order.
type ZoneDistribution []ZoneSeconds

// Total returns the sum of seconds over all zones.
func (d ZoneDistribution) Total() int {
	var total int
	for _, z := range d {
		total += z.Seconds
	}
	return total
}

// Seconds returns the seconds recorded for a label.
func (d ZoneDistribution) Seconds(label string) int {
	for _, z := range d {
		if z.Label == label {
			return z.Seconds
		}
	}
	return 0
}

// NewZoneDistribution returns an all-zero distribution for a zone table.
func NewZoneDistribution(table []Zone) ZoneDistribution {
	d := make(ZoneDistribution, len(table))
	for i, z := range table {
		d[i] = ZoneSeconds{Label: z.Label}
	}
	return d
}

// Add accumulates other into d by label. Labels missing from d are appended.
func (d ZoneDistribution) Add(other ZoneDistribution) ZoneDistribution {
	for _, z := range other {
		found := false
		for i := range d {
			if d[i].Label == z.Label {
				d[i].Seconds += z.Seconds
				found = true
				break
			}
		}
		if !found {
			d = append(d, z)
		}
	}
	return d
}

// HRZones buckets heart-rate samples (1 Hz) into HRZoneTable. Zone bounds
// are truncated to whole beats.
func HRZones(heartRate []int, hrMax float64) (ZoneDistribution, error) {
	if hrMax <= 0 || !isFinite(hrMax) {
		return nil, ErrInvalidConfig
	}
	if len(heartRate) == 0 {
		return nil, ErrInsufficientData
	}

	dist := NewZoneDistribution(HRZoneTable)
	for i, z := range HRZoneTable {
		lower := int(z.Low * hrMax)
		upper := int(z.High * hrMax)
		for _, hr := range heartRate {
			if hr >= lower && hr < upper {
				dist[i].Seconds++
			}
		}
	}
	return dist, nil
}

// PowerZones buckets power samples (1 Hz) into PowerZoneTable.
func PowerZones(power []float64, ftp float64) (ZoneDistribution, error) {
	if ftp <= 0 || !isFinite(ftp) {
		return nil, ErrInvalidConfig
	}
	clean := finiteValues(power)
	if len(clean) == 0 {
		return nil, ErrInsufficientData
	}

	dist := NewZoneDistribution(PowerZoneTable)
	for i, z := range PowerZoneTable {
		low, high := z.Low*ftp, z.High*ftp
		for _, p := range clean {
			if p >= low && p < high {
				dist[i].Seconds++
			}
		}
	}
	return dist, nil
}
