package store

import (
	"time"

	"ridemetrics/internal/analysis"
)

// Auth represents OAuth tokens for Strava API access
type Auth struct {
	AthleteID    int64     `db:"athlete_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Activity sources
const (
	SourceFile   = "file"
	SourceStrava = "strava"
)

// Activity is one imported activity with its per-activity metrics
type Activity struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"user_id"`
	FileName         string    `json:"file_name"`
	FileHash         string    `json:"file_hash"`
	FileSize         int64     `json:"file_size"`
	StartTime        time.Time `json:"start_time"`
	DurationS        *int      `json:"duration,omitempty"` // moving seconds
	DistanceKm       *float64  `json:"distance_km,omitempty"`
	AvgPower         *float64  `json:"avg_power,omitempty"`
	AvgHeartRate     *float64  `json:"avg_heart_rate,omitempty"`
	NormalizedPower  *float64  `json:"normalized_power,omitempty"`
	TSS              *float64  `json:"tss,omitempty"`
	IntensityFactor  *float64  `json:"intensity_factor,omitempty"`
	EfficiencyFactor *float64  `json:"efficiency_factor,omitempty"`
	CriticalPower    *float64  `json:"critical_power,omitempty"`
	Source           string    `json:"source"`
	CreatedAt        time.Time `json:"created_at"`

	analysis.BestPowers
}

// ActivityZones holds the zone rows stored for one activity
type ActivityZones struct {
	ActivityID int64                     `json:"activity_id"`
	StartTime  time.Time                 `json:"start_time"`
	Zones      analysis.ZoneDistribution `json:"zones"`
}

// FileSnapshot records a sample file as seen by the last successful rebuild
type FileSnapshot struct {
	FileName string
	FileSize int64
	FileHash string
}

// RebuildRun is the outcome of one module in one rebuild run
type RebuildRun struct {
	RunID      string    `json:"run_id"`
	UserID     string    `json:"user_id"`
	Module     string    `json:"module"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
