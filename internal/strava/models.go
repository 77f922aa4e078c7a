package strava

import (
	"time"

	"ridemetrics/internal/analysis"
)

// rideTypes are the sport types whose power data we analyse
var rideTypes = map[string]bool{
	"Ride":             true,
	"VirtualRide":      true,
	"EBikeRide":        true,
	"GravelRide":       true,
	"MountainBikeRide": true,
}

// Activity is the subset of a Strava activity summary we use
type Activity struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	SportType    string    `json:"sport_type"`
	StartDate    time.Time `json:"start_date"`
	Distance     float64   `json:"distance"`     // meters
	MovingTime   int       `json:"moving_time"`  // seconds
	ElapsedTime  int       `json:"elapsed_time"` // seconds
	AverageWatts float64   `json:"average_watts"`
	DeviceWatts  bool      `json:"device_watts"`
	HasHeartrate bool      `json:"has_heartrate"`
}

// IsRide reports whether the activity is a bike ride of any kind
func (a Activity) IsRide() bool {
	if a.SportType != "" {
		return rideTypes[a.SportType]
	}
	return rideTypes[a.Type]
}

// Streams holds the per-second streams of one activity.
// Strava returns streams keyed by type when key_by_type=true
type Streams struct {
	Time           *StreamData[int]      `json:"time"`
	Watts          *StreamData[*float64] `json:"watts"`
	Heartrate      *StreamData[*int]     `json:"heartrate"`
	VelocitySmooth *StreamData[*float64] `json:"velocity_smooth"`
	Distance       *StreamData[*float64] `json:"distance"`
}

// StreamData represents a single stream type
type StreamData[T any] struct {
	Data         []T    `json:"data"`
	SeriesType   string `json:"series_type"`
	OriginalSize int    `json:"original_size"`
	Resolution   string `json:"resolution"`
}

// Len returns the length of the stream, or 0 if nil
func (s *Streams) Len() int {
	if s == nil || s.Time == nil {
		return 0
	}
	return len(s.Time.Data)
}

// HasPower returns true if a watts stream exists
func (s *Streams) HasPower() bool {
	return s != nil && s.Watts != nil && len(s.Watts.Data) > 0
}

// HasHeartrate returns true if heartrate data exists
func (s *Streams) HasHeartrate() bool {
	return s != nil && s.Heartrate != nil && len(s.Heartrate.Data) > 0
}

// SamplePoints converts the streams into samples starting at start.
// Time offsets are seconds since start; streams shorter than the time
// stream leave the missing values nil.
func (s *Streams) SamplePoints(start time.Time) []analysis.SamplePoint {
	n := s.Len()
	if n == 0 {
		return nil
	}

	points := make([]analysis.SamplePoint, n)
	for i, offset := range s.Time.Data {
		p := analysis.SamplePoint{Timestamp: start.Add(time.Duration(offset) * time.Second)}
		p.Power = at(s.Watts, i)
		p.HeartRate = at(s.Heartrate, i)
		p.Speed = at(s.VelocitySmooth, i)
		p.Distance = at(s.Distance, i)
		points[i] = p
	}
	return points
}

func at[T any](s *StreamData[*T], i int) *T {
	if s == nil || i >= len(s.Data) {
		return nil
	}
	return s.Data[i]
}
