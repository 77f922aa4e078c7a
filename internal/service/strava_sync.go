package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ridemetrics/internal/config"
	"ridemetrics/internal/logging"
	"ridemetrics/internal/samplefile"
	"ridemetrics/internal/store"
	"ridemetrics/internal/strava"
)

// StravaClient is the part of the Strava API the sync uses
type StravaClient interface {
	GetAllActivities(ctx context.Context, after time.Time, onProgress func(fetched int)) ([]strava.Activity, error)
	GetPowerStreams(ctx context.Context, activityID int64) (*strava.Streams, error)
}

// StravaSync imports a user's rides from Strava as sample files
type StravaSync struct {
	client   StravaClient
	store    *store.Store
	importer *Importer
	cfg      *config.Config
	log      logging.Logger
	now      func() time.Time
}

// NewStravaSync creates a sync service for one authenticated client
func NewStravaSync(client StravaClient, st *store.Store, importer *Importer, cfg *config.Config, log logging.Logger) *StravaSync {
	return &StravaSync{
		client:   client,
		store:    st,
		importer: importer,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SyncProgress reports progress during sync
type SyncProgress struct {
	Phase     string // "activities", "streams", "import"
	Total     int
	Completed int
	Current   string
}

// SyncResult contains the results of a sync operation
type SyncResult struct {
	ActivitiesFetched int
	Rides             int
	AlreadyImported   int
	StreamsFetched    int
	Import            *ImportReport
	Errors            []error
}

// pendingRide is a ride written to disk and waiting for import
type pendingRide struct {
	id   int64
	path string
}

// Sync fetches rides started since the last successful sync, stores their
// streams as parquet sample files and imports them. progress may be nil and
// is closed when Sync returns.
func (s *StravaSync) Sync(ctx context.Context, user string, progress chan<- SyncProgress) (*SyncResult, error) {
	if progress != nil {
		defer close(progress)
	}
	user, err := config.NormalizeUser(user)
	if err != nil {
		return nil, err
	}
	log := s.log.With("user", user)
	started := s.now()

	after, err := s.lastSync(user)
	if err != nil {
		return nil, err
	}

	report := func(p SyncProgress) {
		if progress == nil {
			return
		}
		select {
		case progress <- p:
		case <-ctx.Done():
		}
	}

	result := &SyncResult{}
	report(SyncProgress{Phase: "activities"})
	activities, err := s.client.GetAllActivities(ctx, after, func(n int) {
		report(SyncProgress{Phase: "activities", Completed: n})
	})
	if err != nil {
		return result, fmt.Errorf("fetching activities: %w", err)
	}
	result.ActivitiesFetched = len(activities)

	var rides []strava.Activity
	for _, a := range activities {
		if !a.IsRide() {
			continue
		}
		result.Rides++
		done, err := s.store.StravaImported(user, a.ID)
		if err != nil {
			return result, err
		}
		if done {
			result.AlreadyImported++
			continue
		}
		rides = append(rides, a)
	}

	dir := s.cfg.SampleDir(user)
	var pending []pendingRide
	fetchFailed := false
	for i, a := range rides {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		report(SyncProgress{Phase: "streams", Total: len(rides), Completed: i, Current: a.Name})

		path, err := s.writeRide(ctx, dir, a)
		if err != nil {
			log.Warnf("strava activity %d: %v", a.ID, err)
			result.Errors = append(result.Errors, fmt.Errorf("activity %d: %w", a.ID, err))
			fetchFailed = true
			continue
		}
		result.StreamsFetched++
		pending = append(pending, pendingRide{id: a.ID, path: path})
	}

	if len(pending) > 0 {
		report(SyncProgress{Phase: "import", Total: len(pending)})
		if err := s.importRides(ctx, user, pending, result); err != nil {
			return result, err
		}
	}

	// A ride whose streams could not be fetched is retried next time
	if !fetchFailed {
		if err := s.store.SetSyncState(user, store.SyncKeyLastStravaSync, started.UTC().Format(syncTimeLayout)); err != nil {
			return result, fmt.Errorf("saving sync state: %w", err)
		}
	}

	log.Infof("strava sync: %d rides, %d new, %d errors", result.Rides, result.StreamsFetched, len(result.Errors))
	return result, nil
}

func (s *StravaSync) lastSync(user string) (time.Time, error) {
	v, err := s.store.GetSyncState(user, store.SyncKeyLastStravaSync)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading sync state: %w", err)
	}
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(syncTimeLayout, v)
	if err != nil {
		s.log.Warnf("ignoring malformed sync state %q: %v", v, err)
		return time.Time{}, nil
	}
	return t, nil
}

// writeRide downloads the streams of a and stores them as a sample file
func (s *StravaSync) writeRide(ctx context.Context, dir string, a strava.Activity) (string, error) {
	streams, err := s.client.GetPowerStreams(ctx, a.ID)
	if err != nil {
		return "", fmt.Errorf("fetching streams: %w", err)
	}
	points := streams.SamplePoints(a.StartDate)
	if len(points) == 0 {
		return "", fmt.Errorf("no stream data")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create sample dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("strava-%d.parquet", a.ID))
	if err := samplefile.WriteParquet(path, points); err != nil {
		return "", err
	}
	return path, nil
}

func (s *StravaSync) importRides(ctx context.Context, user string, rides []pendingRide, result *SyncResult) error {
	paths := make([]string, len(rides))
	for i, r := range rides {
		paths[i] = r.path
	}

	rep, err := s.importer.importFiles(ctx, user, store.SourceStrava, paths)
	if err != nil {
		return err
	}
	result.Import = rep
	result.Errors = append(result.Errors, rep.Errors...)

	// Results are in path order; a cancelled import stops early
	for i, res := range rep.Results {
		if res.Outcome == OutcomeFailed {
			os.Remove(rides[i].path)
			continue
		}
		if err := s.store.MarkStravaImported(user, rides[i].id); err != nil {
			return fmt.Errorf("marking activity %d: %w", rides[i].id, err)
		}
	}
	return nil
}
