package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridemetrics/internal/analysis"
	"ridemetrics/internal/cache"
	"ridemetrics/internal/config"
	"ridemetrics/internal/instrument"
	"ridemetrics/internal/logging"
	"ridemetrics/internal/store"
)

// Cache names of values that are not stored as artifacts
const (
	cacheTrainingLoad = "training_load"
	cacheVO2max       = "vo2max"
)

// QueryService provides read-only queries over stored artifacts
type QueryService struct {
	store    *store.Store
	settings *config.SettingsStore
	cache    cache.ArtifactCache
	log      logging.Logger
	now      func() time.Time
}

// NewQueryService creates a new query service. c may be nil.
func NewQueryService(st *store.Store, settings *config.SettingsStore, c cache.ArtifactCache, log logging.Logger) *QueryService {
	return &QueryService{
		store:    st,
		settings: settings,
		cache:    c,
		log:      log,
		now:      time.Now,
	}
}

// Summary contains everything the report shows for a user. TrainingLoad
// covers the last SummaryLoadDays days and VO2max is the latest estimate.
type Summary struct {
	User          string                       `json:"user"`
	Settings      config.UserConfig            `json:"settings"`
	Current       *analysis.TrainingLoadPoint  `json:"current,omitempty"`
	Form          string                       `json:"form,omitempty"`
	TrainingLoad  []analysis.TrainingLoadPoint `json:"training_load"`
	CP            *analysis.CriticalPowerModel `json:"critical_power,omitempty"`
	VO2max        *analysis.VO2maxEstimate     `json:"vo2max,omitempty"`
	Zones         *ZoneSummary                 `json:"zones,omitempty"`
	Bests         *analysis.BestPowers         `json:"power_bests,omitempty"`
	Recent        []store.Activity             `json:"recent_activities"`
	ActivityCount int                          `json:"activity_count"`
	GeneratedAt   time.Time                    `json:"generated_at"`
}

// cached reads a value through the artifact cache, loading it on a miss
func cached[T any](ctx context.Context, q *QueryService, user, name string, load func() (T, error)) (T, error) {
	key := cache.Key(user, name)
	var v T
	if q.cache != nil {
		ok, err := q.cache.Get(ctx, key, &v)
		if err != nil {
			q.log.Warnf("cache get %s: %v", key, err)
		}
		if ok {
			instrument.CacheHit()
			return v, nil
		}
		instrument.CacheMiss()
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if q.cache != nil {
		if err := q.cache.Set(ctx, key, v); err != nil {
			q.log.Warnf("cache set %s: %v", key, err)
		}
	}
	return v, nil
}

func loadArtifact[T any](q *QueryService, user, name string) func() (T, error) {
	return func() (T, error) {
		var v T
		_, err := q.store.GetArtifact(user, name, &v)
		return v, err
	}
}

// TrainingLoad returns the stored CTL/ATL/TSB series, oldest first
func (q *QueryService) TrainingLoad(ctx context.Context, user string) ([]analysis.TrainingLoadPoint, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	return cached(ctx, q, user, cacheTrainingLoad, func() ([]analysis.TrainingLoadPoint, error) {
		points, err := q.store.TrainingLoad(user)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, store.ErrArtifactNotFound
		}
		return points, nil
	})
}

// PowerCurve returns the all-time power-duration curve. weighted divides
// it by the user's current weight (W/kg).
func (q *QueryService) PowerCurve(ctx context.Context, user string, weighted bool) (analysis.PowerDurationCurve, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	curve, err := cached(ctx, q, user, store.ArtifactPowerCurve,
		loadArtifact[analysis.PowerDurationCurve](q, user, store.ArtifactPowerCurve))
	if err != nil || !weighted {
		return curve, err
	}

	settings, err := q.settings.Load(user)
	if err != nil {
		return nil, err
	}
	return curve.Scaled(settings.Weight), nil
}

// CriticalPower returns the CP/W' model fitted to the all-time curve
func (q *QueryService) CriticalPower(ctx context.Context, user string) (*analysis.CriticalPowerModel, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	return cached(ctx, q, user, store.ArtifactCPModel,
		loadArtifact[*analysis.CriticalPowerModel](q, user, store.ArtifactCPModel))
}

// VO2max returns the smoothed VO2max estimates, oldest first
func (q *QueryService) VO2max(ctx context.Context, user string) ([]analysis.VO2maxEstimate, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	return cached(ctx, q, user, cacheVO2max, func() ([]analysis.VO2maxEstimate, error) {
		estimates, err := q.store.VO2max(user)
		if err != nil {
			return nil, err
		}
		if len(estimates) == 0 {
			return nil, store.ErrArtifactNotFound
		}
		return estimates, nil
	})
}

// Zones returns the zone summary
func (q *QueryService) Zones(ctx context.Context, user string) (*ZoneSummary, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	return cached(ctx, q, user, store.ArtifactZones,
		loadArtifact[*ZoneSummary](q, user, store.ArtifactZones))
}

// PowerBests returns the best value per rolling window over all activities
func (q *QueryService) PowerBests(ctx context.Context, user string) (*analysis.BestPowers, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	return cached(ctx, q, user, store.ArtifactPowerBests,
		loadArtifact[*analysis.BestPowers](q, user, store.ArtifactPowerBests))
}

// Activities returns the user's most recent activities
func (q *QueryService) Activities(_ context.Context, user string, limit int) ([]store.Activity, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxActivitiesLimit {
		limit = MaxActivitiesLimit
	}
	activities, err := q.store.ListActivities(user, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	if activities == nil {
		activities = []store.Activity{}
	}
	return activities, nil
}

// Summary gathers the report data of a user. Missing artifacts leave their
// section empty.
func (q *QueryService) Summary(ctx context.Context, user string) (*Summary, error) {
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	settings, err := q.settings.Load(user)
	if err != nil {
		return nil, err
	}

	s := &Summary{User: user, Settings: settings, GeneratedAt: q.now()}

	load, err := q.TrainingLoad(ctx, user)
	if err := optional(err); err != nil {
		return nil, err
	}
	if len(load) > 0 {
		current := analysis.CurrentLoad(load)
		s.Current = &current
		s.Form = analysis.FormDescription(current.TSB)
		s.TrainingLoad = lastDays(load, SummaryLoadDays)
	}

	if s.CP, err = q.CriticalPower(ctx, user); optional(err) != nil {
		return nil, err
	}

	vo2, err := q.VO2max(ctx, user)
	if err := optional(err); err != nil {
		return nil, err
	}
	if len(vo2) > 0 {
		latest := vo2[len(vo2)-1]
		s.VO2max = &latest
	}

	if s.Zones, err = q.Zones(ctx, user); optional(err) != nil {
		return nil, err
	}
	if s.Bests, err = q.PowerBests(ctx, user); optional(err) != nil {
		return nil, err
	}

	if s.Recent, err = q.Activities(ctx, user, RecentActivitiesLimit); err != nil {
		return nil, err
	}
	if s.ActivityCount, err = q.store.CountActivities(user); err != nil {
		return nil, err
	}

	return s, nil
}

// optional drops not-found errors
func optional(err error) error {
	if errors.Is(err, store.ErrArtifactNotFound) {
		return nil
	}
	return err
}

// lastDays returns the points of the trailing window ending at the last point
func lastDays(points []analysis.TrainingLoadPoint, days int) []analysis.TrainingLoadPoint {
	if len(points) <= days {
		return points
	}
	return points[len(points)-days:]
}
